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
)

// syncer reconciles importer-owned collections inside a caller's tx.
type syncer struct {
	fields fieldmgr.Registry
}

var _ kdb.Syncer = &syncer{}

// resetOrKeep implements the absent-field rule: when the input declares
// nothing, delete existing rows only if the recorded manager is the one
// applying; a different manager's state is preserved untouched.
func (s *syncer) resetOrKeep(
	ctx context.Context, tx pool.Tx,
	moduleID string, field domain.FieldKey, manager domain.FieldManager,
	deleteAll func() error,
) error {
	recorded, ok, err := s.fields.ManagerOf(ctx, tx, moduleID, field)
	if err != nil {
		return err
	}
	if !ok || recorded != manager {
		return nil
	}
	if err := deleteAll(); err != nil {
		return err
	}
	return s.fields.Forget(ctx, tx, moduleID, field)
}

func (s *syncer) SyncProcesses(
	ctx context.Context, tx pool.Tx,
	moduleID string, specs []domain.ModuleProcessSpec, manager domain.FieldManager,
) error {
	if len(specs) == 0 {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldProcesses, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "module_process_spec" where "module_id" = $1`, moduleID)
			return err
		})
	}

	existing, err := listProcessSpecsTx(ctx, tx, moduleID)
	if err != nil {
		return err
	}
	byName := map[string]domain.ModuleProcessSpec{}
	for _, e := range existing {
		byName[e.Name] = e
	}

	declared := map[string]struct{}{}
	for _, spec := range specs {
		declared[spec.Name] = struct{}{}

		command, err := jsonb(spec.Command)
		if err != nil {
			return err
		}
		args, err := jsonb(spec.Args)
		if err != nil {
			return err
		}
		scaling, err := jsonb(spec.Autoscaling)
		if err != nil {
			return err
		}
		probes, err := jsonb(spec.Probes)
		if err != nil {
			return err
		}
		services, err := jsonb(spec.Services)
		if err != nil {
			return err
		}

		if prev, ok := byName[spec.Name]; ok {
			spec.ID = prev.ID
			spec.ModuleID = moduleID
			if prev.Equal(spec) {
				continue // unchanged
			}
			if _, err := tx.Exec(
				ctx,
				`
				update "module_process_spec" set
					"command" = $1, "args" = $2, "proc_command" = $3,
					"target_port" = $4, "plan" = $5, "target_replicas" = $6,
					"autoscaling" = $7, "scaling_config" = $8, "probes" = $9, "services" = $10
				where "id" = $11
				`,
				command, args, spec.ProcCommand,
				spec.TargetPort, string(spec.Plan), spec.TargetReplicas,
				spec.AutoscalingEnabled, scaling, probes, services,
				prev.ID,
			); err != nil {
				return err
			}
			continue
		}

		if _, err := tx.Exec(
			ctx,
			`
			insert into "module_process_spec" (
				"id", "module_id", "name", "command", "args", "proc_command",
				"target_port", "plan", "target_replicas",
				"autoscaling", "scaling_config", "probes", "services"
			) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			`,
			uuid.NewString(), moduleID, spec.Name, command, args, spec.ProcCommand,
			spec.TargetPort, string(spec.Plan), spec.TargetReplicas,
			spec.AutoscalingEnabled, scaling, probes, services,
		); err != nil {
			return err
		}
	}

	for name, prev := range byName {
		if _, keep := declared[name]; keep {
			continue
		}
		// overlays of the dropped process go with it (FK cascade).
		if _, err := tx.Exec(
			ctx, `delete from "module_process_spec" where "id" = $1`, prev.ID,
		); err != nil {
			return err
		}
	}

	return s.fields.Record(ctx, tx, moduleID, domain.FieldProcesses, manager)
}

func (s *syncer) SyncHooks(
	ctx context.Context, tx pool.Tx,
	moduleID string, hooks []domain.ModuleDeployHook, manager domain.FieldManager,
) error {
	if len(hooks) == 0 {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldHooks, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "module_deploy_hook" where "module_id" = $1`, moduleID)
			return err
		})
	}

	declared := map[domain.DeployHookType]struct{}{}
	for _, hook := range hooks {
		declared[hook.Type] = struct{}{}

		command, err := jsonb(hook.Command)
		if err != nil {
			return err
		}
		args, err := jsonb(hook.Args)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`
			insert into "module_deploy_hook" ("id", "module_id", "type", "command", "args", "proc_command", "enabled")
			values ($1, $2, $3, $4, $5, $6, $7)
			on conflict ("module_id", "type") do update set
				"command" = excluded."command",
				"args" = excluded."args",
				"proc_command" = excluded."proc_command",
				"enabled" = excluded."enabled"
			`,
			uuid.NewString(), moduleID, string(hook.Type), command, args, hook.ProcCommand, hook.Enabled,
		); err != nil {
			return err
		}
	}

	rows, err := tx.Query(ctx, `select "type" from "module_deploy_hook" where "module_id" = $1`, moduleID)
	if err != nil {
		return err
	}
	stale := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return err
		}
		if _, keep := declared[domain.DeployHookType(t)]; !keep {
			stale = append(stale, t)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, t := range stale {
		if _, err := tx.Exec(
			ctx, `delete from "module_deploy_hook" where "module_id" = $1 and "type" = $2`, moduleID, t,
		); err != nil {
			return err
		}
	}

	return s.fields.Record(ctx, tx, moduleID, domain.FieldHooks, manager)
}

func (s *syncer) SyncEnvVars(
	ctx context.Context, tx pool.Tx,
	moduleID string, vars []domain.PresetEnvVariable, manager domain.FieldManager,
) error {
	if len(vars) == 0 {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldEnvVars, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "preset_env_variable" where "module_id" = $1`, moduleID)
			return err
		})
	}

	type key struct {
		env domain.Environment
		k   string
	}
	declared := map[key]struct{}{}
	for _, v := range vars {
		declared[key{v.Environment, v.Key}] = struct{}{}
		if _, err := tx.Exec(
			ctx,
			`
			insert into "preset_env_variable" ("id", "module_id", "environment", "key", "value")
			values ($1, $2, $3, $4, $5)
			on conflict ("module_id", "environment", "key") do update set "value" = excluded."value"
			`,
			uuid.NewString(), moduleID, string(v.Environment), v.Key, v.Value,
		); err != nil {
			return err
		}
	}

	rows, err := tx.Query(
		ctx, `select "environment", "key" from "preset_env_variable" where "module_id" = $1`, moduleID,
	)
	if err != nil {
		return err
	}
	stale := []key{}
	for rows.Next() {
		var env, k string
		if err := rows.Scan(&env, &k); err != nil {
			rows.Close()
			return err
		}
		if _, keep := declared[key{domain.Environment(env), k}]; !keep {
			stale = append(stale, key{domain.Environment(env), k})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, st := range stale {
		if _, err := tx.Exec(
			ctx,
			`delete from "preset_env_variable" where "module_id" = $1 and "environment" = $2 and "key" = $3`,
			moduleID, string(st.env), st.k,
		); err != nil {
			return err
		}
	}

	return s.fields.Record(ctx, tx, moduleID, domain.FieldEnvVars, manager)
}

func (s *syncer) SyncMounts(
	ctx context.Context, tx pool.Tx,
	moduleID string, mounts []domain.Mount, manager domain.FieldManager,
) error {
	if len(mounts) == 0 {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldMounts, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "mount" where "module_id" = $1`, moduleID)
			return err
		})
	}

	type key struct {
		env  domain.Environment
		path string
	}
	declared := map[key]struct{}{}
	for _, mt := range mounts {
		sourceType, err := mt.Source.Type()
		if err != nil {
			return domain.NewValidation("mounts", err.Error())
		}
		declared[key{mt.Environment, mt.MountPath}] = struct{}{}

		source, err := jsonb(mt.Source)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`
			insert into "mount" ("id", "module_id", "environment", "name", "mount_path", "source_type", "source_config")
			values ($1, $2, $3, $4, $5, $6, $7)
			on conflict ("module_id", "mount_path", "environment") do update set
				"name" = excluded."name",
				"source_type" = excluded."source_type",
				"source_config" = excluded."source_config"
			`,
			uuid.NewString(), moduleID, string(mt.Environment), mt.Name, mt.MountPath, string(sourceType), source,
		); err != nil {
			return err
		}
	}

	rows, err := tx.Query(
		ctx, `select "environment", "mount_path" from "mount" where "module_id" = $1`, moduleID,
	)
	if err != nil {
		return err
	}
	stale := []key{}
	for rows.Next() {
		var env, path string
		if err := rows.Scan(&env, &path); err != nil {
			rows.Close()
			return err
		}
		if _, keep := declared[key{domain.Environment(env), path}]; !keep {
			stale = append(stale, key{domain.Environment(env), path})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, st := range stale {
		if _, err := tx.Exec(
			ctx,
			`delete from "mount" where "module_id" = $1 and "environment" = $2 and "mount_path" = $3`,
			moduleID, string(st.env), st.path,
		); err != nil {
			return err
		}
	}

	return s.fields.Record(ctx, tx, moduleID, domain.FieldMounts, manager)
}

func (s *syncer) SyncSvcDiscovery(
	ctx context.Context, tx pool.Tx,
	applicationID string, moduleID string, cfg *domain.SvcDiscConfig, manager domain.FieldManager,
) error {
	if cfg == nil || len(cfg.BkSaaS) == 0 {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldSvcDiscovery, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "svc_disc_config" where "application_id" = $1`, applicationID)
			return err
		})
	}

	bkSaaS, err := jsonb(cfg.BkSaaS)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		`
		insert into "svc_disc_config" ("application_id", "bk_saas")
		values ($1, $2)
		on conflict ("application_id") do update set "bk_saas" = excluded."bk_saas"
		`,
		applicationID, bkSaaS,
	); err != nil {
		return err
	}
	return s.fields.Record(ctx, tx, moduleID, domain.FieldSvcDiscovery, manager)
}

func (s *syncer) SyncDomainResolution(
	ctx context.Context, tx pool.Tx,
	applicationID string, moduleID string, res *domain.DomainResolution, manager domain.FieldManager,
) error {
	if res == nil || (len(res.Nameservers) == 0 && len(res.HostAliases) == 0) {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldDomainResolution, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "domain_resolution" where "application_id" = $1`, applicationID)
			return err
		})
	}

	nameservers, err := jsonb(res.Nameservers)
	if err != nil {
		return err
	}
	hostAliases, err := jsonb(res.HostAliases)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		`
		insert into "domain_resolution" ("application_id", "nameservers", "host_aliases")
		values ($1, $2, $3)
		on conflict ("application_id") do update set
			"nameservers" = excluded."nameservers",
			"host_aliases" = excluded."host_aliases"
		`,
		applicationID, nameservers, hostAliases,
	); err != nil {
		return err
	}
	return s.fields.Record(ctx, tx, moduleID, domain.FieldDomainResolution, manager)
}

func (s *syncer) SyncEnvOverlays(
	ctx context.Context, tx pool.Tx,
	moduleID string, overlays []domain.ProcessSpecEnvOverlay, manager domain.FieldManager,
) error {
	if len(overlays) == 0 {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldEnvOverlay, manager, func() error {
			_, err := tx.Exec(
				ctx,
				`
				delete from "process_spec_env_overlay"
				where "proc_spec_id" in (select "id" from "module_process_spec" where "module_id" = $1)
				`,
				moduleID,
			)
			return err
		})
	}

	type key struct {
		process string
		env     domain.Environment
	}
	declared := map[key]struct{}{}
	for _, ov := range overlays {
		// overlays may only name real deploy targets of the module.
		if _, err := domain.AsEnvironment(string(ov.Environment)); err != nil {
			return domain.NewValidation("envOverlay", err.Error())
		}

		var procSpecID string
		if err := tx.QueryRow(
			ctx,
			`select "id" from "module_process_spec" where "module_id" = $1 and "name" = $2`,
			moduleID, ov.ProcessName,
		).Scan(&procSpecID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewValidation(
					"envOverlay",
					fmt.Sprintf("process '%s' is not declared", ov.ProcessName),
				)
			}
			return err
		}
		declared[key{ov.ProcessName, ov.Environment}] = struct{}{}

		var plan *string
		if ov.Plan != nil {
			p := string(*ov.Plan)
			plan = &p
		}
		scaling, err := jsonb(ov.Autoscaling)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx,
			`
			insert into "process_spec_env_overlay" (
				"id", "proc_spec_id", "environment",
				"target_replicas", "plan", "autoscaling", "scaling_config"
			) values ($1, $2, $3, $4, $5, $6, $7)
			on conflict ("proc_spec_id", "environment") do update set
				"target_replicas" = excluded."target_replicas",
				"plan" = excluded."plan",
				"autoscaling" = excluded."autoscaling",
				"scaling_config" = excluded."scaling_config"
			`,
			uuid.NewString(), procSpecID, string(ov.Environment),
			ov.TargetReplicas, plan, ov.AutoscalingEnabled, scaling,
		); err != nil {
			return err
		}
	}

	rows, err := tx.Query(
		ctx,
		`
		select "p"."name", "o"."environment"
		from "process_spec_env_overlay" as "o"
		inner join "module_process_spec" as "p" on "p"."id" = "o"."proc_spec_id"
		where "p"."module_id" = $1
		`,
		moduleID,
	)
	if err != nil {
		return err
	}
	stale := []key{}
	for rows.Next() {
		var process, env string
		if err := rows.Scan(&process, &env); err != nil {
			rows.Close()
			return err
		}
		if _, keep := declared[key{process, domain.Environment(env)}]; !keep {
			stale = append(stale, key{process, domain.Environment(env)})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, st := range stale {
		if _, err := tx.Exec(
			ctx,
			`
			delete from "process_spec_env_overlay"
			where "environment" = $1
				and "proc_spec_id" = (
					select "id" from "module_process_spec" where "module_id" = $2 and "name" = $3
				)
			`,
			string(st.env), moduleID, st.process,
		); err != nil {
			return err
		}
	}

	return s.fields.Record(ctx, tx, moduleID, domain.FieldEnvOverlay, manager)
}

func (s *syncer) SyncObservability(
	ctx context.Context, tx pool.Tx,
	moduleID string, cfg *domain.ObservabilityConfig, manager domain.FieldManager,
) error {
	if cfg == nil || cfg.Monitoring == nil {
		return s.resetOrKeep(ctx, tx, moduleID, domain.FieldObservability, manager, func() error {
			_, err := tx.Exec(ctx, `delete from "observability_config" where "module_id" = $1`, moduleID)
			return err
		})
	}

	monitoring, err := jsonb(cfg.Monitoring)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		`
		insert into "observability_config" ("module_id", "monitoring")
		values ($1, $2)
		on conflict ("module_id") do update set "monitoring" = excluded."monitoring"
		`,
		moduleID, monitoring,
	); err != nil {
		return err
	}
	return s.fields.Record(ctx, tx, moduleID, domain.FieldObservability, manager)
}

// listProcessSpecsTx reads process specs inside a transaction.
func listProcessSpecsTx(ctx context.Context, tx pool.Tx, moduleID string) ([]domain.ModuleProcessSpec, error) {
	rows, err := tx.Query(
		ctx,
		`
		select
			"id", "module_id", "name", "command", "args", "proc_command",
			"target_port", "plan", "target_replicas",
			"autoscaling", "scaling_config", "probes", "services"
		from "module_process_spec"
		where "module_id" = $1
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
