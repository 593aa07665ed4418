package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

func (m *appPG) ScaleProcess(
	ctx context.Context,
	moduleID string, process string, env domain.Environment,
	replicas *int, scaling *domain.AutoscalingConfig,
) error {
	if replicas == nil && scaling == nil {
		return domain.NewValidation("", "either replicas or autoscaling is required")
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var procSpecID string
	if err := tx.QueryRow(
		ctx,
		`select "id" from "module_process_spec" where "module_id" = $1 and "name" = $2`,
		moduleID, process,
	).Scan(&procSpecID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrProcessNotFound, process))
		}
		return err
	}

	autoscalingEnabled := scaling != nil
	scalingConfig := pgtype.JSONB{Status: pgtype.Null}
	if scaling != nil {
		if scalingConfig, err = jsonb(scaling); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		ctx,
		`
		insert into "process_spec_env_overlay" (
			"id", "proc_spec_id", "environment", "target_replicas", "autoscaling", "scaling_config"
		) values ($1, $2, $3, $4, $5, $6)
		on conflict ("proc_spec_id", "environment") do update set
			"target_replicas" = coalesce(excluded."target_replicas", "process_spec_env_overlay"."target_replicas"),
			"autoscaling" = excluded."autoscaling",
			"scaling_config" = excluded."scaling_config"
		`,
		uuid.NewString(), procSpecID, string(env), replicas, autoscalingEnabled, scalingConfig,
	); err != nil {
		return err
	}

	if err := m.fields.Record(ctx, tx, moduleID, domain.FieldEnvOverlay, domain.ManagerWebForm); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
