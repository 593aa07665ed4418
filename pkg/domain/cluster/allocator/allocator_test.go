package allocator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/allocator"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db/mock"
)

// openToAll backs registry.Get with clusters every tenant may use.
func openToAll(registry *mock.MockRegistry) {
	registry.Impl.Get = func(ctx context.Context, name string) (domain.Cluster, error) {
		return domain.Cluster{
			Name:             name,
			AllowedTenantIDs: []string{domain.TenantSentinelAll},
		}, nil
	}
}

func TestAllocator_static(t *testing.T) {
	registry := mock.New(t)
	openToAll(registry)
	registry.Impl.GetPolicy = func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
		if tenantID != "tenant-a" {
			t.Errorf("unexpected tenant: %s", tenantID)
		}
		return domain.ClusterAllocationPolicy{
			TenantID: "tenant-a",
			Type:     domain.AllocationStatic,
			Rules: []domain.AllocationRule{
				{Clusters: []string{"main", "spare"}},
			},
		}, nil
	}

	testee := allocator.New(registry)
	names, err := testee.Allocate(
		context.Background(), "tenant-a", domain.EnvProd, domain.MatcherContext{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "main" || names[1] != "spare" {
		t.Errorf("unexpected clusters: %v", names)
	}
}

func TestAllocator_ruleBased(t *testing.T) {
	policy := domain.ClusterAllocationPolicy{
		TenantID: "tenant-a",
		Type:     domain.AllocationRuleBased,
		Rules: []domain.AllocationRule{
			{
				Matcher:     &domain.RuleMatcher{RegionIs: "ieod"},
				EnvSpecific: true,
				EnvClusters: domain.EnvClusters{
					Stag: []string{"ieod-stag"},
					Prod: []string{"ieod-prod"},
				},
			},
			{Clusters: []string{"default"}},
		},
	}

	registry := mock.New(t)
	openToAll(registry)
	registry.Impl.GetPolicy = func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
		return policy, nil
	}
	testee := allocator.New(registry)

	t.Run("the first matching rule wins", func(t *testing.T) {
		names, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvProd,
			domain.MatcherContext{Region: "ieod"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 1 || names[0] != "ieod-prod" {
			t.Errorf("unexpected clusters: %v", names)
		}
	})

	t.Run("env-specific rules pick the stag list for stag", func(t *testing.T) {
		names, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvStag,
			domain.MatcherContext{Region: "ieod"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 1 || names[0] != "ieod-stag" {
			t.Errorf("unexpected clusters: %v", names)
		}
	})

	t.Run("non-matching contexts fall through to the catch-all", func(t *testing.T) {
		names, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvProd,
			domain.MatcherContext{Region: "other"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 1 || names[0] != "default" {
			t.Errorf("unexpected clusters: %v", names)
		}
	})
}

func TestAllocator_tenantVisibility(t *testing.T) {
	clusters := map[string]domain.Cluster{
		"restricted": {Name: "restricted", AllowedTenantIDs: []string{"tenant-b"}},
		"open":       {Name: "open", AllowedTenantIDs: []string{domain.TenantSentinelAll}},
		"mine":       {Name: "mine", AllowedTenantIDs: []string{"tenant-a"}},
	}
	newRegistry := func(policy domain.ClusterAllocationPolicy) *mock.MockRegistry {
		registry := mock.New(t)
		registry.Impl.GetPolicy = func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
			return policy, nil
		}
		registry.Impl.Get = func(ctx context.Context, name string) (domain.Cluster, error) {
			c, ok := clusters[name]
			if !ok {
				return domain.Cluster{}, domain.ErrMissing
			}
			return c, nil
		}
		return registry
	}

	t.Run("clusters closed to the tenant are dropped", func(t *testing.T) {
		testee := allocator.New(newRegistry(domain.ClusterAllocationPolicy{
			TenantID: "tenant-a",
			Type:     domain.AllocationStatic,
			Rules:    []domain.AllocationRule{{Clusters: []string{"restricted", "open"}}},
		}))
		names, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvStag, domain.MatcherContext{},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 1 || names[0] != "open" {
			t.Errorf("unexpected clusters: %v", names)
		}
	})

	t.Run("a rule naming only closed clusters falls through", func(t *testing.T) {
		testee := allocator.New(newRegistry(domain.ClusterAllocationPolicy{
			TenantID: "tenant-a",
			Type:     domain.AllocationRuleBased,
			Rules: []domain.AllocationRule{
				{Clusters: []string{"restricted"}},
				{Clusters: []string{"mine"}},
			},
		}))
		names, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvProd, domain.MatcherContext{},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 1 || names[0] != "mine" {
			t.Errorf("unexpected clusters: %v", names)
		}
	})

	t.Run("unregistered cluster names are dropped", func(t *testing.T) {
		testee := allocator.New(newRegistry(domain.ClusterAllocationPolicy{
			TenantID: "tenant-a",
			Type:     domain.AllocationStatic,
			Rules:    []domain.AllocationRule{{Clusters: []string{"gone", "open"}}},
		}))
		names, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvStag, domain.MatcherContext{},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 1 || names[0] != "open" {
			t.Errorf("unexpected clusters: %v", names)
		}
	})

	t.Run("no visible cluster in any rule", func(t *testing.T) {
		testee := allocator.New(newRegistry(domain.ClusterAllocationPolicy{
			TenantID: "tenant-a",
			Type:     domain.AllocationRuleBased,
			Rules:    []domain.AllocationRule{{Clusters: []string{"restricted"}}},
		}))
		_, err := testee.Allocate(
			context.Background(), "tenant-a", domain.EnvProd, domain.MatcherContext{},
		)
		if !errors.Is(err, domain.ErrNoMatchingAllocationRule) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestAllocator_errors(t *testing.T) {
	t.Run("a tenant without a policy", func(t *testing.T) {
		registry := mock.New(t)
		registry.Impl.GetPolicy = func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
			return domain.ClusterAllocationPolicy{}, domain.ErrNoAllocationPolicy
		}
		_, err := allocator.New(registry).Allocate(
			context.Background(), "tenant-x", domain.EnvStag, domain.MatcherContext{},
		)
		if !errors.Is(err, domain.ErrNoAllocationPolicy) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no rule matches", func(t *testing.T) {
		registry := mock.New(t)
		registry.Impl.GetPolicy = func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
			return domain.ClusterAllocationPolicy{
				TenantID: "tenant-x",
				Type:     domain.AllocationRuleBased,
				Rules: []domain.AllocationRule{
					{Matcher: &domain.RuleMatcher{RegionIs: "ieod"}, Clusters: []string{"ieod-1"}},
				},
			}, nil
		}
		_, err := allocator.New(registry).Allocate(
			context.Background(), "tenant-x", domain.EnvStag,
			domain.MatcherContext{Region: "default"},
		)
		if !errors.Is(err, domain.ErrNoMatchingAllocationRule) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("a static policy with empty cluster lists", func(t *testing.T) {
		registry := mock.New(t)
		registry.Impl.GetPolicy = func(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
			return domain.ClusterAllocationPolicy{
				TenantID: "tenant-x",
				Type:     domain.AllocationStatic,
				Rules:    []domain.AllocationRule{{}},
			}, nil
		}
		_, err := allocator.New(registry).Allocate(
			context.Background(), "tenant-x", domain.EnvProd, domain.MatcherContext{},
		)
		if !errors.Is(err, domain.ErrNoMatchingAllocationRule) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
