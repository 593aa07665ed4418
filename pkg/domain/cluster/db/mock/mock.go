package mock

import (
	"context"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db"
)

type MockRegistry struct {
	t    *testing.T
	Impl struct {
		Get              func(ctx context.Context, name string) (domain.Cluster, error)
		ListVisibleTo    func(ctx context.Context, tenantID string) ([]domain.Cluster, error)
		DefaultForRegion func(ctx context.Context, region string) (domain.Cluster, error)
		FeatureEnabled   func(ctx context.Context, name string, flag string) (bool, error)
		Register         func(ctx context.Context, c domain.Cluster) error
		Update           func(ctx context.Context, c domain.Cluster) error
		Delete           func(ctx context.Context, name string) error
		GetPolicy        func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error)
		SetPolicy        func(ctx context.Context, policy domain.ClusterAllocationPolicy) error
	}
}

var _ kdb.Registry = &MockRegistry{}

func New(t *testing.T) *MockRegistry {
	return &MockRegistry{t: t}
}

func (m *MockRegistry) Get(ctx context.Context, name string) (domain.Cluster, error) {
	if m.Impl.Get == nil {
		m.t.Fatal("Get is not implemented")
	}
	return m.Impl.Get(ctx, name)
}

func (m *MockRegistry) ListVisibleTo(ctx context.Context, tenantID string) ([]domain.Cluster, error) {
	if m.Impl.ListVisibleTo == nil {
		m.t.Fatal("ListVisibleTo is not implemented")
	}
	return m.Impl.ListVisibleTo(ctx, tenantID)
}

func (m *MockRegistry) DefaultForRegion(ctx context.Context, region string) (domain.Cluster, error) {
	if m.Impl.DefaultForRegion == nil {
		m.t.Fatal("DefaultForRegion is not implemented")
	}
	return m.Impl.DefaultForRegion(ctx, region)
}

func (m *MockRegistry) FeatureEnabled(ctx context.Context, name string, flag string) (bool, error) {
	if m.Impl.FeatureEnabled == nil {
		m.t.Fatal("FeatureEnabled is not implemented")
	}
	return m.Impl.FeatureEnabled(ctx, name, flag)
}

func (m *MockRegistry) Register(ctx context.Context, c domain.Cluster) error {
	if m.Impl.Register == nil {
		m.t.Fatal("Register is not implemented")
	}
	return m.Impl.Register(ctx, c)
}

func (m *MockRegistry) Update(ctx context.Context, c domain.Cluster) error {
	if m.Impl.Update == nil {
		m.t.Fatal("Update is not implemented")
	}
	return m.Impl.Update(ctx, c)
}

func (m *MockRegistry) Delete(ctx context.Context, name string) error {
	if m.Impl.Delete == nil {
		m.t.Fatal("Delete is not implemented")
	}
	return m.Impl.Delete(ctx, name)
}

func (m *MockRegistry) GetPolicy(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
	if m.Impl.GetPolicy == nil {
		m.t.Fatal("GetPolicy is not implemented")
	}
	return m.Impl.GetPolicy(ctx, tenantID)
}

func (m *MockRegistry) SetPolicy(ctx context.Context, policy domain.ClusterAllocationPolicy) error {
	if m.Impl.SetPolicy == nil {
		m.t.Fatal("SetPolicy is not implemented")
	}
	return m.Impl.SetPolicy(ctx, policy)
}
