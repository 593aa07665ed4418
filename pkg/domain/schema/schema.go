// Package schema owns the relational layout of the core.
//
// One table per aggregate root plus its collections; intra-aggregate
// relations carry foreign keys, cross-aggregate references (field
// management records, svc-discovery pairs, cluster names on policies)
// are application-level strings checked lazily.
package schema

import (
	"context"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
)

var ddl = []string{
	`create table if not exists "application" (
		"id" varchar(36) primary key,
		"code" varchar(20) not null unique,
		"name" varchar(64) not null,
		"type" varchar(16) not null default 'default',
		"app_tenant_mode" varchar(8) not null default 'single',
		"app_tenant_id" varchar(32) not null default '',
		"platform_tenant_id" varchar(32) not null default '',
		"region" varchar(32) not null default '',
		"is_active" boolean not null default true,
		"created_at" timestamp with time zone not null default now()
	)`,
	`create table if not exists "module" (
		"id" varchar(36) primary key,
		"application_id" varchar(36) not null references "application" ("id") on delete cascade,
		"name" varchar(20) not null,
		"is_default" boolean not null default false,
		"source_origin" varchar(16) not null,
		"language" varchar(32) not null default '',
		"exposed_url_type" varchar(16),
		unique ("application_id", "name")
	)`,
	`create unique index if not exists "module_default_unique"
		on "module" ("application_id") where "is_default"`,
	`create table if not exists "engine_app" (
		"id" varchar(36) primary key,
		"name" varchar(64) not null unique,
		"namespace" varchar(64) not null,
		"cluster_name" varchar(32) not null default ''
	)`,
	`create table if not exists "module_environment" (
		"id" varchar(36) primary key,
		"module_id" varchar(36) not null references "module" ("id") on delete cascade,
		"environment" varchar(8) not null,
		"engine_app_id" varchar(36) not null references "engine_app" ("id"),
		unique ("module_id", "environment")
	)`,
	`create table if not exists "module_process_spec" (
		"id" varchar(36) primary key,
		"module_id" varchar(36) not null references "module" ("id") on delete cascade,
		"name" varchar(12) not null,
		"command" jsonb not null default '[]',
		"args" jsonb not null default '[]',
		"proc_command" text not null default '',
		"target_port" integer not null default 0,
		"plan" varchar(8) not null default 'default',
		"target_replicas" integer not null default 1,
		"autoscaling" boolean not null default false,
		"scaling_config" jsonb,
		"probes" jsonb,
		"services" jsonb not null default '[]',
		unique ("module_id", "name")
	)`,
	`create table if not exists "process_spec_env_overlay" (
		"id" varchar(36) primary key,
		"proc_spec_id" varchar(36) not null references "module_process_spec" ("id") on delete cascade,
		"environment" varchar(8) not null,
		"target_replicas" integer,
		"plan" varchar(8),
		"autoscaling" boolean,
		"scaling_config" jsonb,
		unique ("proc_spec_id", "environment")
	)`,
	`create table if not exists "module_deploy_hook" (
		"id" varchar(36) primary key,
		"module_id" varchar(36) not null references "module" ("id") on delete cascade,
		"type" varchar(24) not null,
		"command" jsonb not null default '[]',
		"args" jsonb not null default '[]',
		"proc_command" text not null default '',
		"enabled" boolean not null default true,
		unique ("module_id", "type")
	)`,
	`create table if not exists "preset_env_variable" (
		"id" varchar(36) primary key,
		"module_id" varchar(36) not null references "module" ("id") on delete cascade,
		"environment" varchar(8) not null,
		"key" varchar(64) not null,
		"value" text not null default '',
		unique ("module_id", "environment", "key")
	)`,
	`create table if not exists "mount" (
		"id" varchar(36) primary key,
		"module_id" varchar(36) not null references "module" ("id") on delete cascade,
		"environment" varchar(8) not null,
		"name" varchar(64) not null,
		"mount_path" varchar(128) not null,
		"source_type" varchar(24) not null,
		"source_config" jsonb not null,
		unique ("module_id", "mount_path", "environment")
	)`,
	`create table if not exists "svc_disc_config" (
		"application_id" varchar(36) primary key references "application" ("id") on delete cascade,
		"bk_saas" jsonb not null default '[]'
	)`,
	`create table if not exists "domain_resolution" (
		"application_id" varchar(36) primary key references "application" ("id") on delete cascade,
		"nameservers" jsonb not null default '[]',
		"host_aliases" jsonb not null default '[]'
	)`,
	`create table if not exists "observability_config" (
		"module_id" varchar(36) primary key references "module" ("id") on delete cascade,
		"monitoring" jsonb
	)`,
	`create table if not exists "field_mgmt_record" (
		"module_id" varchar(36) not null,
		"field" varchar(48) not null,
		"manager" varchar(24) not null,
		primary key ("module_id", "field")
	)`,
	`create table if not exists "deployment" (
		"id" varchar(36) primary key,
		"environment_id" varchar(36) not null references "module_environment" ("id"),
		"environment" varchar(8) not null,
		"operator" varchar(64) not null,
		"version" jsonb not null,
		"advanced" jsonb not null default '{}',
		"status" varchar(16) not null default 'pending',
		"build_process_id" varchar(64) not null default '',
		"build_id" varchar(64) not null default '',
		"err_detail" text not null default '',
		"interrupt_requested" boolean not null default false,
		"polling_touched_at" timestamp with time zone,
		"created_at" timestamp with time zone not null default now(),
		"updated_at" timestamp with time zone not null default now()
	)`,
	`create table if not exists "deploy_phase" (
		"id" varchar(36) primary key,
		"deployment_id" varchar(36) not null references "deployment" ("id") on delete cascade,
		"type" varchar(16) not null,
		"status" varchar(16) not null default 'pending',
		"started_at" timestamp with time zone,
		"completed_at" timestamp with time zone,
		unique ("deployment_id", "type")
	)`,
	`create table if not exists "deploy_step" (
		"id" varchar(36) primary key,
		"phase_id" varchar(36) not null references "deploy_phase" ("id") on delete cascade,
		"name" varchar(48) not null,
		"ordinal" integer not null,
		"status" varchar(16) not null default 'pending',
		"started_at" timestamp with time zone,
		"completed_at" timestamp with time zone,
		unique ("phase_id", "name")
	)`,
	`create table if not exists "deploy_coordinator" (
		"environment_id" varchar(36) primary key,
		"deployment_id" varchar(36) not null,
		"expires_at" timestamp with time zone not null
	)`,
	`create table if not exists "cluster" (
		"name" varchar(32) primary key,
		"region" varchar(32) not null default '',
		"is_default_for_region" boolean not null default false,
		"api_server_url" varchar(255) not null,
		"auth" jsonb not null,
		"ingress" jsonb not null default '{}',
		"allowed_tenant_ids" jsonb not null default '[]',
		"feature_flags" jsonb not null default '{}',
		"annotations" jsonb not null default '{}'
	)`,
	`create unique index if not exists "cluster_region_default_unique"
		on "cluster" ("region") where "is_default_for_region"`,
	`create table if not exists "cluster_allocation_policy" (
		"tenant_id" varchar(32) primary key,
		"type" varchar(8) not null,
		"rules" jsonb not null default '[]'
	)`,
}

// Apply creates missing tables and indexes. Statements are idempotent.
func Apply(ctx context.Context, p pool.Pool) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
