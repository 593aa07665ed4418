package mock

import (
	"context"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
)

type MockSyncer struct {
	t    *testing.T
	Impl struct {
		SyncProcesses        func(ctx context.Context, tx pool.Tx, moduleID string, specs []domain.ModuleProcessSpec, manager domain.FieldManager) error
		SyncHooks            func(ctx context.Context, tx pool.Tx, moduleID string, hooks []domain.ModuleDeployHook, manager domain.FieldManager) error
		SyncEnvVars          func(ctx context.Context, tx pool.Tx, moduleID string, vars []domain.PresetEnvVariable, manager domain.FieldManager) error
		SyncMounts           func(ctx context.Context, tx pool.Tx, moduleID string, mounts []domain.Mount, manager domain.FieldManager) error
		SyncSvcDiscovery     func(ctx context.Context, tx pool.Tx, applicationID string, moduleID string, cfg *domain.SvcDiscConfig, manager domain.FieldManager) error
		SyncDomainResolution func(ctx context.Context, tx pool.Tx, applicationID string, moduleID string, res *domain.DomainResolution, manager domain.FieldManager) error
		SyncEnvOverlays      func(ctx context.Context, tx pool.Tx, moduleID string, overlays []domain.ProcessSpecEnvOverlay, manager domain.FieldManager) error
		SyncObservability    func(ctx context.Context, tx pool.Tx, moduleID string, cfg *domain.ObservabilityConfig, manager domain.FieldManager) error
	}
}

var _ kdb.Syncer = &MockSyncer{}

func NewSyncer(t *testing.T) *MockSyncer {
	return &MockSyncer{t: t}
}

func (m *MockSyncer) SyncProcesses(ctx context.Context, tx pool.Tx, moduleID string, specs []domain.ModuleProcessSpec, manager domain.FieldManager) error {
	if m.Impl.SyncProcesses == nil {
		m.t.Fatal("SyncProcesses is not implemented")
	}
	return m.Impl.SyncProcesses(ctx, tx, moduleID, specs, manager)
}

func (m *MockSyncer) SyncHooks(ctx context.Context, tx pool.Tx, moduleID string, hooks []domain.ModuleDeployHook, manager domain.FieldManager) error {
	if m.Impl.SyncHooks == nil {
		m.t.Fatal("SyncHooks is not implemented")
	}
	return m.Impl.SyncHooks(ctx, tx, moduleID, hooks, manager)
}

func (m *MockSyncer) SyncEnvVars(ctx context.Context, tx pool.Tx, moduleID string, vars []domain.PresetEnvVariable, manager domain.FieldManager) error {
	if m.Impl.SyncEnvVars == nil {
		m.t.Fatal("SyncEnvVars is not implemented")
	}
	return m.Impl.SyncEnvVars(ctx, tx, moduleID, vars, manager)
}

func (m *MockSyncer) SyncMounts(ctx context.Context, tx pool.Tx, moduleID string, mounts []domain.Mount, manager domain.FieldManager) error {
	if m.Impl.SyncMounts == nil {
		m.t.Fatal("SyncMounts is not implemented")
	}
	return m.Impl.SyncMounts(ctx, tx, moduleID, mounts, manager)
}

func (m *MockSyncer) SyncSvcDiscovery(ctx context.Context, tx pool.Tx, applicationID string, moduleID string, cfg *domain.SvcDiscConfig, manager domain.FieldManager) error {
	if m.Impl.SyncSvcDiscovery == nil {
		m.t.Fatal("SyncSvcDiscovery is not implemented")
	}
	return m.Impl.SyncSvcDiscovery(ctx, tx, applicationID, moduleID, cfg, manager)
}

func (m *MockSyncer) SyncDomainResolution(ctx context.Context, tx pool.Tx, applicationID string, moduleID string, res *domain.DomainResolution, manager domain.FieldManager) error {
	if m.Impl.SyncDomainResolution == nil {
		m.t.Fatal("SyncDomainResolution is not implemented")
	}
	return m.Impl.SyncDomainResolution(ctx, tx, applicationID, moduleID, res, manager)
}

func (m *MockSyncer) SyncEnvOverlays(ctx context.Context, tx pool.Tx, moduleID string, overlays []domain.ProcessSpecEnvOverlay, manager domain.FieldManager) error {
	if m.Impl.SyncEnvOverlays == nil {
		m.t.Fatal("SyncEnvOverlays is not implemented")
	}
	return m.Impl.SyncEnvOverlays(ctx, tx, moduleID, overlays, manager)
}

func (m *MockSyncer) SyncObservability(ctx context.Context, tx pool.Tx, moduleID string, cfg *domain.ObservabilityConfig, manager domain.FieldManager) error {
	if m.Impl.SyncObservability == nil {
		m.t.Fatal("SyncObservability is not implemented")
	}
	return m.Impl.SyncObservability(ctx, tx, moduleID, cfg, manager)
}
