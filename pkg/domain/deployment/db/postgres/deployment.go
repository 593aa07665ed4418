package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

type deployPG struct {
	pool pool.Pool

	// replaced in tests.
	now func() time.Time
}

var _ kdb.Interface = &deployPG{}

func New(p pool.Pool) kdb.Interface {
	return &deployPG{pool: p, now: time.Now}
}

func jsonb(v any) (pgtype.JSONB, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{}, err
	}
	return pgtype.JSONB{Bytes: raw, Status: pgtype.Present}, nil
}

func unjsonb(col pgtype.JSONB, dest any) error {
	if col.Status != pgtype.Present {
		return nil
	}
	return json.Unmarshal(col.Bytes, dest)
}

func (m *deployPG) Create(ctx context.Context, d domain.Deployment) (domain.Deployment, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return domain.Deployment{}, err
	}
	defer tx.Rollback(ctx)

	// serialize concurrent creates on the same environment.
	var envID string
	if err := tx.QueryRow(
		ctx,
		`select "id" from "module_environment" where "id" = $1 for update`,
		d.EnvironmentID,
	).Scan(&envID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deployment{}, xe.Wrap(fmt.Errorf(
				"%w: environment '%s'", domain.ErrMissing, d.EnvironmentID,
			))
		}
		return domain.Deployment{}, err
	}

	var ongoing int
	if err := tx.QueryRow(
		ctx,
		`
		select count(*) from "deployment"
		where "environment_id" = $1 and "status" = 'pending'
		`,
		d.EnvironmentID,
	).Scan(&ongoing); err != nil {
		return domain.Deployment{}, err
	}
	if ongoing != 0 {
		return domain.Deployment{}, xe.Wrap(fmt.Errorf(
			"%w: environment '%s'", domain.ErrCannotDeployOngoingExists, d.EnvironmentID,
		))
	}

	d.ID = uuid.NewString()
	d.Status = domain.DeployPending
	d.CreatedAt = m.now()
	d.UpdatedAt = d.CreatedAt

	version, err := jsonb(d.Version)
	if err != nil {
		return domain.Deployment{}, err
	}
	advanced, err := jsonb(d.Advanced)
	if err != nil {
		return domain.Deployment{}, err
	}

	if _, err := tx.Exec(
		ctx,
		`
		insert into "deployment" (
			"id", "environment_id", "environment", "operator",
			"version", "advanced", "status", "created_at", "updated_at"
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		`,
		d.ID, d.EnvironmentID, string(d.Environment), d.Operator,
		version, advanced, string(d.Status), d.CreatedAt,
	); err != nil {
		return domain.Deployment{}, err
	}

	for _, phase := range domain.PhaseTypes() {
		phaseID := uuid.NewString()
		if _, err := tx.Exec(
			ctx,
			`insert into "deploy_phase" ("id", "deployment_id", "type") values ($1, $2, $3)`,
			phaseID, d.ID, string(phase),
		); err != nil {
			return domain.Deployment{}, err
		}
		for i, step := range domain.PhaseSteps[phase] {
			if _, err := tx.Exec(
				ctx,
				`insert into "deploy_step" ("id", "phase_id", "name", "ordinal") values ($1, $2, $3, $4)`,
				uuid.NewString(), phaseID, step, i,
			); err != nil {
				return domain.Deployment{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Deployment{}, err
	}
	return d, nil
}

const deploymentColumns = `
	"id", "environment_id", "environment", "operator",
	"version", "advanced", "status", "build_process_id", "build_id",
	"err_detail", "created_at", "updated_at"
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeployment(row rowScanner) (domain.Deployment, error) {
	var d domain.Deployment
	var version, advanced pgtype.JSONB
	if err := row.Scan(
		&d.ID, &d.EnvironmentID, &d.Environment, &d.Operator,
		&version, &advanced, &d.Status, &d.BuildProcessID, &d.BuildID,
		&d.ErrDetail, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return domain.Deployment{}, err
	}
	if err := unjsonb(version, &d.Version); err != nil {
		return domain.Deployment{}, err
	}
	if err := unjsonb(advanced, &d.Advanced); err != nil {
		return domain.Deployment{}, err
	}
	return d, nil
}

func (m *deployPG) Get(ctx context.Context, id string) (domain.Deployment, error) {
	row := m.pool.QueryRow(
		ctx, `select `+deploymentColumns+` from "deployment" where "id" = $1`, id,
	)
	d, err := scanDeployment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deployment{}, xe.Wrap(fmt.Errorf(
			"%w: '%s'", domain.ErrDeploymentNotFound, id,
		))
	}
	return d, err
}

func (m *deployPG) Latest(ctx context.Context, environmentID string) (domain.Deployment, error) {
	row := m.pool.QueryRow(
		ctx,
		`
		select `+deploymentColumns+` from "deployment"
		where "environment_id" = $1
		order by "created_at" desc limit 1
		`,
		environmentID,
	)
	d, err := scanDeployment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deployment{}, xe.Wrap(fmt.Errorf(
			"%w: environment '%s' has no deployments", domain.ErrDeploymentNotFound, environmentID,
		))
	}
	return d, err
}

func (m *deployPG) ListPending(ctx context.Context) ([]domain.Deployment, error) {
	rows, err := m.pool.Query(
		ctx,
		`select `+deploymentColumns+` from "deployment"
		where "status" = 'pending' order by "created_at"`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := []domain.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

func (m *deployPG) Finish(ctx context.Context, id string, status domain.DeployStatus, errDetail string) error {
	if !status.Terminal() {
		return xe.Wrap(fmt.Errorf("'%s' is not a terminal deploy status", status))
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var envID string
	if err := tx.QueryRow(
		ctx,
		`
		update "deployment" set "status" = $2, "err_detail" = $3, "updated_at" = $4
		where "id" = $1 and "status" = 'pending'
		returning "environment_id"
		`,
		id, string(status), errDetail, m.now(),
	).Scan(&envID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xe.Wrap(fmt.Errorf("%w: '%s' (or already finished)", domain.ErrDeploymentNotFound, id))
		}
		return err
	}

	if _, err := tx.Exec(
		ctx,
		`delete from "deploy_coordinator" where "environment_id" = $1 and "deployment_id" = $2`,
		envID, id,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (m *deployPG) SetBuildProcessID(ctx context.Context, id string, buildProcessID string) error {
	return m.setColumn(ctx, id, "build_process_id", buildProcessID)
}

func (m *deployPG) SetBuildID(ctx context.Context, id string, buildID string) error {
	return m.setColumn(ctx, id, "build_id", buildID)
}

func (m *deployPG) setColumn(ctx context.Context, id string, column string, value string) error {
	tag, err := m.pool.Exec(
		ctx,
		fmt.Sprintf(
			`update "deployment" set %q = $2, "updated_at" = $3 where "id" = $1`, column,
		),
		id, value, m.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrDeploymentNotFound, id))
	}
	return nil
}

func (m *deployPG) RequestInterrupt(ctx context.Context, id string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(
		ctx, `select "status" from "deployment" where "id" = $1 for update`, id,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrDeploymentNotFound, id))
		}
		return err
	}
	if domain.DeployStatus(status).Terminal() {
		return xe.Wrap(fmt.Errorf(
			"%w: deployment '%s' is already %s", domain.ErrDeployInterruptionFailed, id, status,
		))
	}

	if _, err := tx.Exec(
		ctx,
		`update "deployment" set "interrupt_requested" = true, "updated_at" = $2 where "id" = $1`,
		id, m.now(),
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *deployPG) InterruptRequested(ctx context.Context, id string) (bool, error) {
	var flag bool
	err := m.pool.QueryRow(
		ctx, `select "interrupt_requested" from "deployment" where "id" = $1`, id,
	).Scan(&flag)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrDeploymentNotFound, id))
	}
	return flag, err
}

func (m *deployPG) TouchPolling(ctx context.Context, id string, at time.Time) error {
	tag, err := m.pool.Exec(
		ctx,
		`update "deployment" set "polling_touched_at" = $2 where "id" = $1`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrDeploymentNotFound, id))
	}
	return nil
}

func (m *deployPG) PollingTouchedAt(ctx context.Context, id string) (time.Time, bool, error) {
	var at *time.Time
	err := m.pool.QueryRow(
		ctx, `select "polling_touched_at" from "deployment" where "id" = $1`, id,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrDeploymentNotFound, id))
	}
	if err != nil || at == nil {
		return time.Time{}, false, err
	}
	return *at, true, nil
}

func (m *deployPG) Phases(ctx context.Context, deploymentID string) ([]domain.DeployPhase, error) {
	rows, err := m.pool.Query(
		ctx,
		`
		select "id", "deployment_id", "type", "status", "started_at", "completed_at"
		from "deploy_phase"
		where "deployment_id" = $1
		`,
		deploymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byType := map[domain.PhaseType]domain.DeployPhase{}
	for rows.Next() {
		var p domain.DeployPhase
		if err := rows.Scan(
			&p.ID, &p.DeploymentID, &p.Type, &p.Status, &p.StartedAt, &p.CompletedAt,
		); err != nil {
			return nil, err
		}
		byType[p.Type] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps, err := m.pool.Query(
		ctx,
		`
		select "s"."id", "s"."phase_id", "s"."name", "s"."status", "s"."started_at", "s"."completed_at", "p"."type"
		from "deploy_step" as "s"
		inner join "deploy_phase" as "p" on "p"."id" = "s"."phase_id"
		where "p"."deployment_id" = $1
		order by "s"."ordinal"
		`,
		deploymentID,
	)
	if err != nil {
		return nil, err
	}
	defer steps.Close()

	for steps.Next() {
		var s domain.DeployStep
		var ptype domain.PhaseType
		if err := steps.Scan(
			&s.ID, &s.PhaseID, &s.Name, &s.Status, &s.StartedAt, &s.CompletedAt, &ptype,
		); err != nil {
			return nil, err
		}
		p := byType[ptype]
		p.Steps = append(p.Steps, s)
		byType[ptype] = p
	}
	if err := steps.Err(); err != nil {
		return nil, err
	}

	phases := []domain.DeployPhase{}
	for _, t := range domain.PhaseTypes() {
		if p, ok := byType[t]; ok {
			phases = append(phases, p)
		}
	}
	return phases, nil
}

func (m *deployPG) StartPhase(ctx context.Context, deploymentID string, phase domain.PhaseType) error {
	tag, err := m.pool.Exec(
		ctx,
		`
		update "deploy_phase" set "status" = 'running', "started_at" = $3
		where "deployment_id" = $1 and "type" = $2 and "status" = 'pending'
		`,
		deploymentID, string(phase), m.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(fmt.Errorf(
			"phase %s of deployment '%s' is not pending", phase, deploymentID,
		))
	}
	return nil
}

func (m *deployPG) FinishPhase(
	ctx context.Context, deploymentID string, phase domain.PhaseType, status domain.StepStatus,
) error {
	if !status.Terminal() {
		return xe.Wrap(fmt.Errorf("'%s' is not a terminal step status", status))
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := m.now()
	var phaseID string
	if err := tx.QueryRow(
		ctx,
		`
		update "deploy_phase" set "status" = $3, "completed_at" = $4
		where "deployment_id" = $1 and "type" = $2
		returning "id"
		`,
		deploymentID, string(phase), string(status), now,
	).Scan(&phaseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xe.Wrap(fmt.Errorf(
				"deployment '%s' has no phase %s", deploymentID, phase,
			))
		}
		return err
	}

	// close out whatever the phase left open.
	if _, err := tx.Exec(
		ctx,
		`
		update "deploy_step" set "status" = $2, "completed_at" = $3
		where "phase_id" = $1 and "status" in ('pending', 'running')
		`,
		phaseID, string(status), now,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (m *deployPG) StartStep(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error {
	return m.setStep(ctx, deploymentID, phase, step, domain.StepRunning)
}

func (m *deployPG) FinishStep(
	ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus,
) error {
	if !status.Terminal() {
		return xe.Wrap(fmt.Errorf("'%s' is not a terminal step status", status))
	}
	return m.setStep(ctx, deploymentID, phase, step, status)
}

func (m *deployPG) setStep(
	ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus,
) error {
	column := `"completed_at"`
	if status == domain.StepRunning {
		column = `"started_at"`
	}
	tag, err := m.pool.Exec(
		ctx,
		`
		update "deploy_step" set "status" = $4, `+column+` = $5
		where "name" = $3
			and "phase_id" = (
				select "id" from "deploy_phase" where "deployment_id" = $1 and "type" = $2
			)
		`,
		deploymentID, string(phase), step, string(status), m.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(fmt.Errorf(
			"deployment '%s' has no step '%s' in phase %s", deploymentID, step, phase,
		))
	}
	return nil
}

func (m *deployPG) AcquireLock(
	ctx context.Context, environmentID string, deploymentID string, ttl time.Duration,
) (bool, error) {
	now := m.now()
	tag, err := m.pool.Exec(
		ctx,
		`
		insert into "deploy_coordinator" ("environment_id", "deployment_id", "expires_at")
		values ($1, $2, $3)
		on conflict ("environment_id") do update set
			"deployment_id" = excluded."deployment_id",
			"expires_at" = excluded."expires_at"
		where "deploy_coordinator"."expires_at" <= $4
			or "deploy_coordinator"."deployment_id" = excluded."deployment_id"
		`,
		environmentID, deploymentID, now.Add(ttl), now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() != 0, nil
}

func (m *deployPG) ReleaseLock(ctx context.Context, environmentID string, deploymentID string) error {
	_, err := m.pool.Exec(
		ctx,
		`delete from "deploy_coordinator" where "environment_id" = $1 and "deployment_id" = $2`,
		environmentID, deploymentID,
	)
	return err
}
