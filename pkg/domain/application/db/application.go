package db

import (
	"context"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// Interface is the module model: every persisted attribute of an
// application and its modules, read side and write side.
//
// Mutations of importer-owned collections go through Syncer only.
type Interface interface {
	// Begin opens a transaction for callers which span several
	// reads/syncs, like the descriptor importer.
	Begin(ctx context.Context) (pool.Tx, error)

	GetApplication(ctx context.Context, code string) (domain.Application, error)
	GetApplicationByID(ctx context.Context, id string) (domain.Application, error)
	CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error)

	GetModule(ctx context.Context, applicationID string, name string) (domain.Module, error)
	GetModuleByID(ctx context.Context, moduleID string) (domain.Module, error)
	GetDefaultModule(ctx context.Context, applicationID string) (domain.Module, error)
	ListModules(ctx context.Context, applicationID string) ([]domain.Module, error)

	// CreateModule also creates the two ModuleEnvironments and their
	// engine apps. When module.IsDefault is set, any previous default
	// of the application is demoted in the same transaction.
	CreateModule(ctx context.Context, module domain.Module) (domain.Module, error)

	GetEnvironment(ctx context.Context, moduleID string, env domain.Environment) (domain.ModuleEnvironment, error)
	GetEnvironmentByID(ctx context.Context, environmentID string) (domain.ModuleEnvironment, error)
	ListEnvironments(ctx context.Context, moduleID string) ([]domain.ModuleEnvironment, error)

	// BindEngineAppCluster records which cluster the engine app of an
	// environment was scheduled onto.
	BindEngineAppCluster(ctx context.Context, environmentID string, clusterName string) error

	ListProcessSpecs(ctx context.Context, moduleID string) ([]domain.ModuleProcessSpec, error)
	ListEnvOverlays(ctx context.Context, moduleID string) ([]domain.ProcessSpecEnvOverlay, error)
	GetHook(ctx context.Context, moduleID string, hookType domain.DeployHookType) (domain.ModuleDeployHook, error)
	ListEnvVars(ctx context.Context, moduleID string) ([]domain.PresetEnvVariable, error)
	ListMounts(ctx context.Context, moduleID string) ([]domain.Mount, error)
	GetSvcDiscConfig(ctx context.Context, applicationID string) (domain.SvcDiscConfig, error)
	GetDomainResolution(ctx context.Context, applicationID string) (domain.DomainResolution, error)
	GetObservability(ctx context.Context, moduleID string) (domain.ObservabilityConfig, error)

	// ScaleProcess upserts the env-overlay row of (process, env) with a
	// new replica count or autoscaling config, and marks the envOverlay
	// field as managed by the web form.
	ScaleProcess(ctx context.Context, moduleID string, process string, env domain.Environment, replicas *int, scaling *domain.AutoscalingConfig) error

	Syncer() Syncer
}

// Syncer is the sole write path of importer-owned collections.
//
// Each Sync method reconciles persisted state against newValue inside tx:
// enumerate both sides, classify create/update/delete/unchanged, write,
// and move the field-management record to manager.
//
// The conflict rule for empty/omitted input: when newValue declares
// nothing and the recorded manager equals manager, existing rows are
// deleted and the record cleared; when the recorded manager differs,
// nothing is touched.
type Syncer interface {
	SyncProcesses(ctx context.Context, tx pool.Tx, moduleID string, specs []domain.ModuleProcessSpec, manager domain.FieldManager) error
	SyncHooks(ctx context.Context, tx pool.Tx, moduleID string, hooks []domain.ModuleDeployHook, manager domain.FieldManager) error
	SyncEnvVars(ctx context.Context, tx pool.Tx, moduleID string, vars []domain.PresetEnvVariable, manager domain.FieldManager) error
	SyncMounts(ctx context.Context, tx pool.Tx, moduleID string, mounts []domain.Mount, manager domain.FieldManager) error
	SyncSvcDiscovery(ctx context.Context, tx pool.Tx, applicationID string, moduleID string, cfg *domain.SvcDiscConfig, manager domain.FieldManager) error
	SyncDomainResolution(ctx context.Context, tx pool.Tx, applicationID string, moduleID string, res *domain.DomainResolution, manager domain.FieldManager) error
	SyncEnvOverlays(ctx context.Context, tx pool.Tx, moduleID string, overlays []domain.ProcessSpecEnvOverlay, manager domain.FieldManager) error
	SyncObservability(ctx context.Context, tx pool.Tx, moduleID string, cfg *domain.ObservabilityConfig, manager domain.FieldManager) error
}
