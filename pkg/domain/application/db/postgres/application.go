package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	fieldmgr "github.com/tencentblueking/bkpaas-core/pkg/domain/fieldmgr/db"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

// a struct for DB operations related to applications and modules
type appPG struct {
	pool   pool.Pool
	fields fieldmgr.Registry
}

var _ kdb.Interface = &appPG{}

func New(p pool.Pool, fields fieldmgr.Registry) *appPG {
	return &appPG{pool: p, fields: fields}
}

func (m *appPG) Begin(ctx context.Context) (pool.Tx, error) {
	return m.pool.Begin(ctx)
}

func (m *appPG) Syncer() kdb.Syncer {
	return &syncer{fields: m.fields}
}

func (m *appPG) GetApplication(ctx context.Context, code string) (domain.Application, error) {
	var app domain.Application
	err := m.pool.QueryRow(
		ctx,
		`
		select "id", "code", "name", "type",
			"app_tenant_mode", "app_tenant_id", "platform_tenant_id",
			"region", "is_active"
		from "application" where "code" = $1
		`,
		code,
	).Scan(
		&app.ID, &app.Code, &app.Name, &app.Type,
		&app.AppTenantMode, &app.AppTenantID, &app.PlatformTenantID,
		&app.Region, &app.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Application{}, xe.Wrap(fmt.Errorf("%w: application '%s'", domain.ErrMissing, code))
	}
	if err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func (m *appPG) GetApplicationByID(ctx context.Context, id string) (domain.Application, error) {
	var app domain.Application
	err := m.pool.QueryRow(
		ctx,
		`
		select "id", "code", "name", "type",
			"app_tenant_mode", "app_tenant_id", "platform_tenant_id",
			"region", "is_active"
		from "application" where "id" = $1
		`,
		id,
	).Scan(
		&app.ID, &app.Code, &app.Name, &app.Type,
		&app.AppTenantMode, &app.AppTenantID, &app.PlatformTenantID,
		&app.Region, &app.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Application{}, xe.Wrap(fmt.Errorf("%w: application '%s'", domain.ErrMissing, id))
	}
	if err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func (m *appPG) CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error) {
	if err := domain.ValidateAppCode(app.Code); err != nil {
		return domain.Application{}, domain.NewValidation("code", err.Error())
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	_, err := m.pool.Exec(
		ctx,
		`
		insert into "application" (
			"id", "code", "name", "type",
			"app_tenant_mode", "app_tenant_id", "platform_tenant_id",
			"region", "is_active"
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
		app.ID, app.Code, app.Name, string(app.Type),
		string(app.AppTenantMode), app.AppTenantID, app.PlatformTenantID,
		app.Region, app.IsActive,
	)
	if err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func scanModule(row pgx.Row) (domain.Module, error) {
	var mod domain.Module
	var exposed *string
	err := row.Scan(
		&mod.ID, &mod.ApplicationID, &mod.Name, &mod.IsDefault,
		&mod.SourceOrigin, &mod.Language, &exposed,
	)
	if err != nil {
		return domain.Module{}, err
	}
	if exposed != nil {
		t := domain.ExposedURLType(*exposed)
		mod.ExposedURLType = &t
	}
	return mod, nil
}

const moduleColumns = `"id", "application_id", "name", "is_default", "source_origin", "language", "exposed_url_type"`

func (m *appPG) GetModule(ctx context.Context, applicationID string, name string) (domain.Module, error) {
	mod, err := scanModule(m.pool.QueryRow(
		ctx,
		`select `+moduleColumns+` from "module" where "application_id" = $1 and "name" = $2`,
		applicationID, name,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Module{}, xe.Wrap(fmt.Errorf("%w: module '%s'", domain.ErrMissing, name))
	}
	return mod, err
}

func (m *appPG) GetModuleByID(ctx context.Context, moduleID string) (domain.Module, error) {
	mod, err := scanModule(m.pool.QueryRow(
		ctx,
		`select `+moduleColumns+` from "module" where "id" = $1`,
		moduleID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Module{}, xe.Wrap(fmt.Errorf("%w: module '%s'", domain.ErrMissing, moduleID))
	}
	return mod, err
}

func (m *appPG) GetDefaultModule(ctx context.Context, applicationID string) (domain.Module, error) {
	mod, err := scanModule(m.pool.QueryRow(
		ctx,
		`select `+moduleColumns+` from "module" where "application_id" = $1 and "is_default"`,
		applicationID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Module{}, xe.Wrap(fmt.Errorf("%w: default module of application '%s'", domain.ErrMissing, applicationID))
	}
	return mod, err
}

func (m *appPG) ListModules(ctx context.Context, applicationID string) ([]domain.Module, error) {
	rows, err := m.pool.Query(
		ctx,
		`select `+moduleColumns+` from "module" where "application_id" = $1 order by "name"`,
		applicationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mods := []domain.Module{}
	for rows.Next() {
		mod, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, rows.Err()
}

func (m *appPG) CreateModule(ctx context.Context, module domain.Module) (domain.Module, error) {
	if err := domain.ValidateModuleName(module.Name); err != nil {
		return domain.Module{}, domain.NewValidation("name", err.Error())
	}
	if module.ID == "" {
		module.ID = uuid.NewString()
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return domain.Module{}, err
	}
	defer tx.Rollback(ctx)

	var appCode string
	if err := tx.QueryRow(
		ctx, `select "code" from "application" where "id" = $1`, module.ApplicationID,
	).Scan(&appCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Module{}, xe.Wrap(fmt.Errorf("%w: application '%s'", domain.ErrMissing, module.ApplicationID))
		}
		return domain.Module{}, err
	}

	if module.IsDefault {
		if _, err := tx.Exec(
			ctx,
			`update "module" set "is_default" = false where "application_id" = $1 and "is_default"`,
			module.ApplicationID,
		); err != nil {
			return domain.Module{}, err
		}
	}

	var exposed *string
	if module.ExposedURLType != nil {
		s := string(*module.ExposedURLType)
		exposed = &s
	}
	if _, err := tx.Exec(
		ctx,
		`
		insert into "module" ("id", "application_id", "name", "is_default", "source_origin", "language", "exposed_url_type")
		values ($1, $2, $3, $4, $5, $6, $7)
		`,
		module.ID, module.ApplicationID, module.Name, module.IsDefault,
		string(module.SourceOrigin), module.Language, exposed,
	); err != nil {
		return domain.Module{}, err
	}

	// every module gets exactly one environment per deploy target.
	for _, env := range domain.Environments() {
		engineAppID := uuid.NewString()
		engineAppName := fmt.Sprintf("bkapp-%s-m-%s-%s", appCode, module.Name, env)
		namespace := engineAppName
		if _, err := tx.Exec(
			ctx,
			`insert into "engine_app" ("id", "name", "namespace") values ($1, $2, $3)`,
			engineAppID, engineAppName, namespace,
		); err != nil {
			return domain.Module{}, err
		}
		if _, err := tx.Exec(
			ctx,
			`
			insert into "module_environment" ("id", "module_id", "environment", "engine_app_id")
			values ($1, $2, $3, $4)
			`,
			uuid.NewString(), module.ID, string(env), engineAppID,
		); err != nil {
			return domain.Module{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Module{}, err
	}
	return module, nil
}

const environmentQuery = `
	select
		"e"."id", "e"."module_id", "e"."environment",
		"a"."id", "a"."name", "a"."namespace", "a"."cluster_name"
	from "module_environment" as "e"
	inner join "engine_app" as "a" on "a"."id" = "e"."engine_app_id"
`

func scanEnvironment(row pgx.Row) (domain.ModuleEnvironment, error) {
	var env domain.ModuleEnvironment
	err := row.Scan(
		&env.ID, &env.ModuleID, &env.Environment,
		&env.EngineApp.ID, &env.EngineApp.Name, &env.EngineApp.Namespace, &env.EngineApp.ClusterName,
	)
	return env, err
}

func (m *appPG) GetEnvironment(ctx context.Context, moduleID string, env domain.Environment) (domain.ModuleEnvironment, error) {
	got, err := scanEnvironment(m.pool.QueryRow(
		ctx, environmentQuery+` where "e"."module_id" = $1 and "e"."environment" = $2`,
		moduleID, string(env),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ModuleEnvironment{}, xe.Wrap(fmt.Errorf("%w: environment '%s'", domain.ErrMissing, env))
	}
	return got, err
}

func (m *appPG) GetEnvironmentByID(ctx context.Context, environmentID string) (domain.ModuleEnvironment, error) {
	got, err := scanEnvironment(m.pool.QueryRow(
		ctx, environmentQuery+` where "e"."id" = $1`, environmentID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ModuleEnvironment{}, xe.Wrap(fmt.Errorf("%w: environment '%s'", domain.ErrMissing, environmentID))
	}
	return got, err
}

func (m *appPG) ListEnvironments(ctx context.Context, moduleID string) ([]domain.ModuleEnvironment, error) {
	rows, err := m.pool.Query(
		ctx, environmentQuery+` where "e"."module_id" = $1 order by "e"."environment"`, moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envs := []domain.ModuleEnvironment{}
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

func (m *appPG) BindEngineAppCluster(ctx context.Context, environmentID string, clusterName string) error {
	tag, err := m.pool.Exec(
		ctx,
		`
		update "engine_app" set "cluster_name" = $1
		where "id" = (select "engine_app_id" from "module_environment" where "id" = $2)
		`,
		clusterName, environmentID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(fmt.Errorf("%w: environment '%s'", domain.ErrMissing, environmentID))
	}
	return nil
}
