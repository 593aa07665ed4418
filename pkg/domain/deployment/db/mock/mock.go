package mock

import (
	"context"
	"testing"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db"
)

type MockDeploymentDB struct {
	t    *testing.T
	Impl struct {
		Create             func(ctx context.Context, d domain.Deployment) (domain.Deployment, error)
		Get                func(ctx context.Context, id string) (domain.Deployment, error)
		Latest             func(ctx context.Context, environmentID string) (domain.Deployment, error)
		ListPending        func(ctx context.Context) ([]domain.Deployment, error)
		Finish             func(ctx context.Context, id string, status domain.DeployStatus, errDetail string) error
		SetBuildProcessID  func(ctx context.Context, id string, buildProcessID string) error
		SetBuildID         func(ctx context.Context, id string, buildID string) error
		RequestInterrupt   func(ctx context.Context, id string) error
		InterruptRequested func(ctx context.Context, id string) (bool, error)
		TouchPolling       func(ctx context.Context, id string, at time.Time) error
		PollingTouchedAt   func(ctx context.Context, id string) (time.Time, bool, error)
		Phases             func(ctx context.Context, deploymentID string) ([]domain.DeployPhase, error)
		StartPhase         func(ctx context.Context, deploymentID string, phase domain.PhaseType) error
		FinishPhase        func(ctx context.Context, deploymentID string, phase domain.PhaseType, status domain.StepStatus) error
		StartStep          func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error
		FinishStep         func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus) error
		AcquireLock        func(ctx context.Context, environmentID string, deploymentID string, ttl time.Duration) (bool, error)
		ReleaseLock        func(ctx context.Context, environmentID string, deploymentID string) error
	}
}

var _ kdb.Interface = &MockDeploymentDB{}

func New(t *testing.T) *MockDeploymentDB {
	return &MockDeploymentDB{t: t}
}

func (m *MockDeploymentDB) Create(ctx context.Context, d domain.Deployment) (domain.Deployment, error) {
	if m.Impl.Create == nil {
		m.t.Fatal("Create is not implemented")
	}
	return m.Impl.Create(ctx, d)
}

func (m *MockDeploymentDB) Get(ctx context.Context, id string) (domain.Deployment, error) {
	if m.Impl.Get == nil {
		m.t.Fatal("Get is not implemented")
	}
	return m.Impl.Get(ctx, id)
}

func (m *MockDeploymentDB) Latest(ctx context.Context, environmentID string) (domain.Deployment, error) {
	if m.Impl.Latest == nil {
		m.t.Fatal("Latest is not implemented")
	}
	return m.Impl.Latest(ctx, environmentID)
}

func (m *MockDeploymentDB) ListPending(ctx context.Context) ([]domain.Deployment, error) {
	if m.Impl.ListPending == nil {
		m.t.Fatal("ListPending is not implemented")
	}
	return m.Impl.ListPending(ctx)
}

func (m *MockDeploymentDB) Finish(ctx context.Context, id string, status domain.DeployStatus, errDetail string) error {
	if m.Impl.Finish == nil {
		m.t.Fatal("Finish is not implemented")
	}
	return m.Impl.Finish(ctx, id, status, errDetail)
}

func (m *MockDeploymentDB) SetBuildProcessID(ctx context.Context, id string, buildProcessID string) error {
	if m.Impl.SetBuildProcessID == nil {
		m.t.Fatal("SetBuildProcessID is not implemented")
	}
	return m.Impl.SetBuildProcessID(ctx, id, buildProcessID)
}

func (m *MockDeploymentDB) SetBuildID(ctx context.Context, id string, buildID string) error {
	if m.Impl.SetBuildID == nil {
		m.t.Fatal("SetBuildID is not implemented")
	}
	return m.Impl.SetBuildID(ctx, id, buildID)
}

func (m *MockDeploymentDB) RequestInterrupt(ctx context.Context, id string) error {
	if m.Impl.RequestInterrupt == nil {
		m.t.Fatal("RequestInterrupt is not implemented")
	}
	return m.Impl.RequestInterrupt(ctx, id)
}

func (m *MockDeploymentDB) InterruptRequested(ctx context.Context, id string) (bool, error) {
	if m.Impl.InterruptRequested == nil {
		m.t.Fatal("InterruptRequested is not implemented")
	}
	return m.Impl.InterruptRequested(ctx, id)
}

func (m *MockDeploymentDB) TouchPolling(ctx context.Context, id string, at time.Time) error {
	if m.Impl.TouchPolling == nil {
		m.t.Fatal("TouchPolling is not implemented")
	}
	return m.Impl.TouchPolling(ctx, id, at)
}

func (m *MockDeploymentDB) PollingTouchedAt(ctx context.Context, id string) (time.Time, bool, error) {
	if m.Impl.PollingTouchedAt == nil {
		m.t.Fatal("PollingTouchedAt is not implemented")
	}
	return m.Impl.PollingTouchedAt(ctx, id)
}

func (m *MockDeploymentDB) Phases(ctx context.Context, deploymentID string) ([]domain.DeployPhase, error) {
	if m.Impl.Phases == nil {
		m.t.Fatal("Phases is not implemented")
	}
	return m.Impl.Phases(ctx, deploymentID)
}

func (m *MockDeploymentDB) StartPhase(ctx context.Context, deploymentID string, phase domain.PhaseType) error {
	if m.Impl.StartPhase == nil {
		m.t.Fatal("StartPhase is not implemented")
	}
	return m.Impl.StartPhase(ctx, deploymentID, phase)
}

func (m *MockDeploymentDB) FinishPhase(ctx context.Context, deploymentID string, phase domain.PhaseType, status domain.StepStatus) error {
	if m.Impl.FinishPhase == nil {
		m.t.Fatal("FinishPhase is not implemented")
	}
	return m.Impl.FinishPhase(ctx, deploymentID, phase, status)
}

func (m *MockDeploymentDB) StartStep(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error {
	if m.Impl.StartStep == nil {
		m.t.Fatal("StartStep is not implemented")
	}
	return m.Impl.StartStep(ctx, deploymentID, phase, step)
}

func (m *MockDeploymentDB) FinishStep(ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus) error {
	if m.Impl.FinishStep == nil {
		m.t.Fatal("FinishStep is not implemented")
	}
	return m.Impl.FinishStep(ctx, deploymentID, phase, step, status)
}

func (m *MockDeploymentDB) AcquireLock(ctx context.Context, environmentID string, deploymentID string, ttl time.Duration) (bool, error) {
	if m.Impl.AcquireLock == nil {
		m.t.Fatal("AcquireLock is not implemented")
	}
	return m.Impl.AcquireLock(ctx, environmentID, deploymentID, ttl)
}

func (m *MockDeploymentDB) ReleaseLock(ctx context.Context, environmentID string, deploymentID string) error {
	if m.Impl.ReleaseLock == nil {
		m.t.Fatal("ReleaseLock is not implemented")
	}
	return m.Impl.ReleaseLock(ctx, environmentID, deploymentID)
}
