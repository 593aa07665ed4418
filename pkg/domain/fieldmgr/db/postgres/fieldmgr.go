package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/fieldmgr/db"
)

type registry struct{}

var _ kdb.Registry = registry{}

func New() kdb.Registry {
	return registry{}
}

func (registry) ManagerOf(
	ctx context.Context, tx pool.Tx, moduleID string, field domain.FieldKey,
) (domain.FieldManager, bool, error) {
	var manager string
	err := tx.QueryRow(
		ctx,
		`select "manager" from "field_mgmt_record" where "module_id" = $1 and "field" = $2`,
		moduleID, string(field),
	).Scan(&manager)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.FieldManager(manager), true, nil
}

func (registry) Record(
	ctx context.Context, tx pool.Tx, moduleID string, field domain.FieldKey, manager domain.FieldManager,
) error {
	_, err := tx.Exec(
		ctx,
		`
		insert into "field_mgmt_record" ("module_id", "field", "manager")
		values ($1, $2, $3)
		on conflict ("module_id", "field") do update set "manager" = excluded."manager"
		`,
		moduleID, string(field), string(manager),
	)
	return err
}

func (registry) Forget(
	ctx context.Context, tx pool.Tx, moduleID string, field domain.FieldKey,
) error {
	_, err := tx.Exec(
		ctx,
		`delete from "field_mgmt_record" where "module_id" = $1 and "field" = $2`,
		moduleID, string(field),
	)
	return err
}

func (registry) ListByModule(
	ctx context.Context, tx pool.Tx, moduleID string,
) ([]domain.FieldManagementRecord, error) {
	rows, err := tx.Query(
		ctx,
		`select "field", "manager" from "field_mgmt_record" where "module_id" = $1`,
		moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.FieldManagementRecord{}
	for rows.Next() {
		var field, manager string
		if err := rows.Scan(&field, &manager); err != nil {
			return nil, err
		}
		records = append(records, domain.FieldManagementRecord{
			ModuleID: moduleID,
			Field:    domain.FieldKey(field),
			Manager:  domain.FieldManager(manager),
		})
	}
	return records, rows.Err()
}
