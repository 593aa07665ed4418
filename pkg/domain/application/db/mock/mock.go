package mock

import (
	"context"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
)

type MockApplicationDB struct {
	t    *testing.T
	Impl struct {
		Begin                func(ctx context.Context) (pool.Tx, error)
		GetApplication       func(ctx context.Context, code string) (domain.Application, error)
		GetApplicationByID   func(ctx context.Context, id string) (domain.Application, error)
		CreateApplication    func(ctx context.Context, app domain.Application) (domain.Application, error)
		GetModule            func(ctx context.Context, applicationID string, name string) (domain.Module, error)
		GetModuleByID        func(ctx context.Context, moduleID string) (domain.Module, error)
		GetDefaultModule     func(ctx context.Context, applicationID string) (domain.Module, error)
		ListModules          func(ctx context.Context, applicationID string) ([]domain.Module, error)
		CreateModule         func(ctx context.Context, module domain.Module) (domain.Module, error)
		GetEnvironment       func(ctx context.Context, moduleID string, env domain.Environment) (domain.ModuleEnvironment, error)
		GetEnvironmentByID   func(ctx context.Context, environmentID string) (domain.ModuleEnvironment, error)
		ListEnvironments     func(ctx context.Context, moduleID string) ([]domain.ModuleEnvironment, error)
		BindEngineAppCluster func(ctx context.Context, environmentID string, clusterName string) error
		ListProcessSpecs     func(ctx context.Context, moduleID string) ([]domain.ModuleProcessSpec, error)
		ListEnvOverlays      func(ctx context.Context, moduleID string) ([]domain.ProcessSpecEnvOverlay, error)
		GetHook              func(ctx context.Context, moduleID string, hookType domain.DeployHookType) (domain.ModuleDeployHook, error)
		ListEnvVars          func(ctx context.Context, moduleID string) ([]domain.PresetEnvVariable, error)
		ListMounts           func(ctx context.Context, moduleID string) ([]domain.Mount, error)
		GetSvcDiscConfig     func(ctx context.Context, applicationID string) (domain.SvcDiscConfig, error)
		GetDomainResolution  func(ctx context.Context, applicationID string) (domain.DomainResolution, error)
		GetObservability     func(ctx context.Context, moduleID string) (domain.ObservabilityConfig, error)
		ScaleProcess         func(ctx context.Context, moduleID string, process string, env domain.Environment, replicas *int, scaling *domain.AutoscalingConfig) error
		Syncer               func() kdb.Syncer
	}
}

var _ kdb.Interface = &MockApplicationDB{}

func New(t *testing.T) *MockApplicationDB {
	return &MockApplicationDB{t: t}
}

func (m *MockApplicationDB) Begin(ctx context.Context) (pool.Tx, error) {
	if m.Impl.Begin == nil {
		m.t.Fatal("Begin is not implemented")
	}
	return m.Impl.Begin(ctx)
}

func (m *MockApplicationDB) GetApplication(ctx context.Context, code string) (domain.Application, error) {
	if m.Impl.GetApplication == nil {
		m.t.Fatal("GetApplication is not implemented")
	}
	return m.Impl.GetApplication(ctx, code)
}

func (m *MockApplicationDB) GetApplicationByID(ctx context.Context, id string) (domain.Application, error) {
	if m.Impl.GetApplicationByID == nil {
		m.t.Fatal("GetApplicationByID is not implemented")
	}
	return m.Impl.GetApplicationByID(ctx, id)
}

func (m *MockApplicationDB) CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error) {
	if m.Impl.CreateApplication == nil {
		m.t.Fatal("CreateApplication is not implemented")
	}
	return m.Impl.CreateApplication(ctx, app)
}

func (m *MockApplicationDB) GetModule(ctx context.Context, applicationID string, name string) (domain.Module, error) {
	if m.Impl.GetModule == nil {
		m.t.Fatal("GetModule is not implemented")
	}
	return m.Impl.GetModule(ctx, applicationID, name)
}

func (m *MockApplicationDB) GetModuleByID(ctx context.Context, moduleID string) (domain.Module, error) {
	if m.Impl.GetModuleByID == nil {
		m.t.Fatal("GetModuleByID is not implemented")
	}
	return m.Impl.GetModuleByID(ctx, moduleID)
}

func (m *MockApplicationDB) GetDefaultModule(ctx context.Context, applicationID string) (domain.Module, error) {
	if m.Impl.GetDefaultModule == nil {
		m.t.Fatal("GetDefaultModule is not implemented")
	}
	return m.Impl.GetDefaultModule(ctx, applicationID)
}

func (m *MockApplicationDB) ListModules(ctx context.Context, applicationID string) ([]domain.Module, error) {
	if m.Impl.ListModules == nil {
		m.t.Fatal("ListModules is not implemented")
	}
	return m.Impl.ListModules(ctx, applicationID)
}

func (m *MockApplicationDB) CreateModule(ctx context.Context, module domain.Module) (domain.Module, error) {
	if m.Impl.CreateModule == nil {
		m.t.Fatal("CreateModule is not implemented")
	}
	return m.Impl.CreateModule(ctx, module)
}

func (m *MockApplicationDB) GetEnvironment(ctx context.Context, moduleID string, env domain.Environment) (domain.ModuleEnvironment, error) {
	if m.Impl.GetEnvironment == nil {
		m.t.Fatal("GetEnvironment is not implemented")
	}
	return m.Impl.GetEnvironment(ctx, moduleID, env)
}

func (m *MockApplicationDB) GetEnvironmentByID(ctx context.Context, environmentID string) (domain.ModuleEnvironment, error) {
	if m.Impl.GetEnvironmentByID == nil {
		m.t.Fatal("GetEnvironmentByID is not implemented")
	}
	return m.Impl.GetEnvironmentByID(ctx, environmentID)
}

func (m *MockApplicationDB) ListEnvironments(ctx context.Context, moduleID string) ([]domain.ModuleEnvironment, error) {
	if m.Impl.ListEnvironments == nil {
		m.t.Fatal("ListEnvironments is not implemented")
	}
	return m.Impl.ListEnvironments(ctx, moduleID)
}

func (m *MockApplicationDB) BindEngineAppCluster(ctx context.Context, environmentID string, clusterName string) error {
	if m.Impl.BindEngineAppCluster == nil {
		m.t.Fatal("BindEngineAppCluster is not implemented")
	}
	return m.Impl.BindEngineAppCluster(ctx, environmentID, clusterName)
}

func (m *MockApplicationDB) ListProcessSpecs(ctx context.Context, moduleID string) ([]domain.ModuleProcessSpec, error) {
	if m.Impl.ListProcessSpecs == nil {
		m.t.Fatal("ListProcessSpecs is not implemented")
	}
	return m.Impl.ListProcessSpecs(ctx, moduleID)
}

func (m *MockApplicationDB) ListEnvOverlays(ctx context.Context, moduleID string) ([]domain.ProcessSpecEnvOverlay, error) {
	if m.Impl.ListEnvOverlays == nil {
		m.t.Fatal("ListEnvOverlays is not implemented")
	}
	return m.Impl.ListEnvOverlays(ctx, moduleID)
}

func (m *MockApplicationDB) GetHook(ctx context.Context, moduleID string, hookType domain.DeployHookType) (domain.ModuleDeployHook, error) {
	if m.Impl.GetHook == nil {
		m.t.Fatal("GetHook is not implemented")
	}
	return m.Impl.GetHook(ctx, moduleID, hookType)
}

func (m *MockApplicationDB) ListEnvVars(ctx context.Context, moduleID string) ([]domain.PresetEnvVariable, error) {
	if m.Impl.ListEnvVars == nil {
		m.t.Fatal("ListEnvVars is not implemented")
	}
	return m.Impl.ListEnvVars(ctx, moduleID)
}

func (m *MockApplicationDB) ListMounts(ctx context.Context, moduleID string) ([]domain.Mount, error) {
	if m.Impl.ListMounts == nil {
		m.t.Fatal("ListMounts is not implemented")
	}
	return m.Impl.ListMounts(ctx, moduleID)
}

func (m *MockApplicationDB) GetSvcDiscConfig(ctx context.Context, applicationID string) (domain.SvcDiscConfig, error) {
	if m.Impl.GetSvcDiscConfig == nil {
		m.t.Fatal("GetSvcDiscConfig is not implemented")
	}
	return m.Impl.GetSvcDiscConfig(ctx, applicationID)
}

func (m *MockApplicationDB) GetDomainResolution(ctx context.Context, applicationID string) (domain.DomainResolution, error) {
	if m.Impl.GetDomainResolution == nil {
		m.t.Fatal("GetDomainResolution is not implemented")
	}
	return m.Impl.GetDomainResolution(ctx, applicationID)
}

func (m *MockApplicationDB) GetObservability(ctx context.Context, moduleID string) (domain.ObservabilityConfig, error) {
	if m.Impl.GetObservability == nil {
		m.t.Fatal("GetObservability is not implemented")
	}
	return m.Impl.GetObservability(ctx, moduleID)
}

func (m *MockApplicationDB) ScaleProcess(ctx context.Context, moduleID string, process string, env domain.Environment, replicas *int, scaling *domain.AutoscalingConfig) error {
	if m.Impl.ScaleProcess == nil {
		m.t.Fatal("ScaleProcess is not implemented")
	}
	return m.Impl.ScaleProcess(ctx, moduleID, process, env, replicas, scaling)
}

func (m *MockApplicationDB) Syncer() kdb.Syncer {
	if m.Impl.Syncer == nil {
		m.t.Fatal("Syncer is not implemented")
	}
	return m.Impl.Syncer()
}
