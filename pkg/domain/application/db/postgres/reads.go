package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

func (m *appPG) ListProcessSpecs(ctx context.Context, moduleID string) ([]domain.ModuleProcessSpec, error) {
	rows, err := m.pool.Query(
		ctx,
		`
		select
			"id", "module_id", "name", "command", "args", "proc_command",
			"target_port", "plan", "target_replicas",
			"autoscaling", "scaling_config", "probes", "services"
		from "module_process_spec"
		where "module_id" = $1
		order by "name"
		`,
		moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	specs := []domain.ModuleProcessSpec{}
	for rows.Next() {
		spec, err := scanProcessSpec(rows)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func scanProcessSpec(rows pgx.Rows) (domain.ModuleProcessSpec, error) {
	var spec domain.ModuleProcessSpec
	var command, args, scaling, probes, services pgtype.JSONB
	if err := rows.Scan(
		&spec.ID, &spec.ModuleID, &spec.Name, &command, &args, &spec.ProcCommand,
		&spec.TargetPort, &spec.Plan, &spec.TargetReplicas,
		&spec.AutoscalingEnabled, &scaling, &probes, &services,
	); err != nil {
		return domain.ModuleProcessSpec{}, err
	}
	if err := unjsonb(command, &spec.Command); err != nil {
		return domain.ModuleProcessSpec{}, err
	}
	if err := unjsonb(args, &spec.Args); err != nil {
		return domain.ModuleProcessSpec{}, err
	}
	if err := unjsonb(scaling, &spec.Autoscaling); err != nil {
		return domain.ModuleProcessSpec{}, err
	}
	if err := unjsonb(probes, &spec.Probes); err != nil {
		return domain.ModuleProcessSpec{}, err
	}
	if err := unjsonb(services, &spec.Services); err != nil {
		return domain.ModuleProcessSpec{}, err
	}
	return spec, nil
}

func (m *appPG) ListEnvOverlays(ctx context.Context, moduleID string) ([]domain.ProcessSpecEnvOverlay, error) {
	rows, err := m.pool.Query(
		ctx,
		`
		select
			"o"."id", "o"."proc_spec_id", "p"."name", "o"."environment",
			"o"."target_replicas", "o"."plan", "o"."autoscaling", "o"."scaling_config"
		from "process_spec_env_overlay" as "o"
		inner join "module_process_spec" as "p" on "p"."id" = "o"."proc_spec_id"
		where "p"."module_id" = $1
		order by "p"."name", "o"."environment"
		`,
		moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overlays := []domain.ProcessSpecEnvOverlay{}
	for rows.Next() {
		var ov domain.ProcessSpecEnvOverlay
		var plan *string
		var scaling pgtype.JSONB
		if err := rows.Scan(
			&ov.ID, &ov.ProcSpecID, &ov.ProcessName, &ov.Environment,
			&ov.TargetReplicas, &plan, &ov.AutoscalingEnabled, &scaling,
		); err != nil {
			return nil, err
		}
		if plan != nil {
			p := domain.ResQuotaPlan(*plan)
			ov.Plan = &p
		}
		if err := unjsonb(scaling, &ov.Autoscaling); err != nil {
			return nil, err
		}
		overlays = append(overlays, ov)
	}
	return overlays, rows.Err()
}

func (m *appPG) GetHook(ctx context.Context, moduleID string, hookType domain.DeployHookType) (domain.ModuleDeployHook, error) {
	var hook domain.ModuleDeployHook
	var command, args pgtype.JSONB
	err := m.pool.QueryRow(
		ctx,
		`
		select "id", "module_id", "type", "command", "args", "proc_command", "enabled"
		from "module_deploy_hook"
		where "module_id" = $1 and "type" = $2
		`,
		moduleID, string(hookType),
	).Scan(&hook.ID, &hook.ModuleID, &hook.Type, &command, &args, &hook.ProcCommand, &hook.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ModuleDeployHook{}, xe.Wrap(fmt.Errorf("%w: hook '%s'", domain.ErrMissing, hookType))
	}
	if err != nil {
		return domain.ModuleDeployHook{}, err
	}
	if err := unjsonb(command, &hook.Command); err != nil {
		return domain.ModuleDeployHook{}, err
	}
	if err := unjsonb(args, &hook.Args); err != nil {
		return domain.ModuleDeployHook{}, err
	}
	return hook, nil
}

func (m *appPG) ListEnvVars(ctx context.Context, moduleID string) ([]domain.PresetEnvVariable, error) {
	rows, err := m.pool.Query(
		ctx,
		`
		select "id", "module_id", "environment", "key", "value"
		from "preset_env_variable"
		where "module_id" = $1
		order by "environment", "key"
		`,
		moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vars := []domain.PresetEnvVariable{}
	for rows.Next() {
		var v domain.PresetEnvVariable
		if err := rows.Scan(&v.ID, &v.ModuleID, &v.Environment, &v.Key, &v.Value); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

func (m *appPG) ListMounts(ctx context.Context, moduleID string) ([]domain.Mount, error) {
	rows, err := m.pool.Query(
		ctx,
		`
		select "id", "module_id", "environment", "name", "mount_path", "source_config"
		from "mount"
		where "module_id" = $1
		order by "environment", "mount_path"
		`,
		moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mounts := []domain.Mount{}
	for rows.Next() {
		var mt domain.Mount
		var source pgtype.JSONB
		if err := rows.Scan(&mt.ID, &mt.ModuleID, &mt.Environment, &mt.Name, &mt.MountPath, &source); err != nil {
			return nil, err
		}
		if err := unjsonb(source, &mt.Source); err != nil {
			return nil, err
		}
		mounts = append(mounts, mt)
	}
	return mounts, rows.Err()
}

func (m *appPG) GetSvcDiscConfig(ctx context.Context, applicationID string) (domain.SvcDiscConfig, error) {
	cfg := domain.SvcDiscConfig{ApplicationID: applicationID}
	var bkSaaS pgtype.JSONB
	err := m.pool.QueryRow(
		ctx,
		`select "bk_saas" from "svc_disc_config" where "application_id" = $1`,
		applicationID,
	).Scan(&bkSaaS)
	if errors.Is(err, pgx.ErrNoRows) {
		return cfg, nil // absent config reads as empty
	}
	if err != nil {
		return domain.SvcDiscConfig{}, err
	}
	if err := unjsonb(bkSaaS, &cfg.BkSaaS); err != nil {
		return domain.SvcDiscConfig{}, err
	}
	return cfg, nil
}

func (m *appPG) GetDomainResolution(ctx context.Context, applicationID string) (domain.DomainResolution, error) {
	res := domain.DomainResolution{ApplicationID: applicationID}
	var nameservers, hostAliases pgtype.JSONB
	err := m.pool.QueryRow(
		ctx,
		`select "nameservers", "host_aliases" from "domain_resolution" where "application_id" = $1`,
		applicationID,
	).Scan(&nameservers, &hostAliases)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, nil
	}
	if err != nil {
		return domain.DomainResolution{}, err
	}
	if err := unjsonb(nameservers, &res.Nameservers); err != nil {
		return domain.DomainResolution{}, err
	}
	if err := unjsonb(hostAliases, &res.HostAliases); err != nil {
		return domain.DomainResolution{}, err
	}
	return res, nil
}

func (m *appPG) GetObservability(ctx context.Context, moduleID string) (domain.ObservabilityConfig, error) {
	cfg := domain.ObservabilityConfig{ModuleID: moduleID}
	var monitoring pgtype.JSONB
	err := m.pool.QueryRow(
		ctx,
		`select "monitoring" from "observability_config" where "module_id" = $1`,
		moduleID,
	).Scan(&monitoring)
	if errors.Is(err, pgx.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return domain.ObservabilityConfig{}, err
	}
	if err := unjsonb(monitoring, &cfg.Monitoring); err != nil {
		return domain.ObservabilityConfig{}, err
	}
	return cfg, nil
}
