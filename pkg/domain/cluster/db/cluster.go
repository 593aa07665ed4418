package db

import (
	"context"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// Registry is the persistent catalogue of Kubernetes clusters and the
// per-tenant allocation policies laid over them.
type Registry interface {
	// Get returns the cluster by name. domain.ErrMissing when unknown.
	Get(ctx context.Context, name string) (domain.Cluster, error)

	// ListVisibleTo returns clusters whose allowed-tenant list names the
	// tenant, or carries the "all" sentinel.
	ListVisibleTo(ctx context.Context, tenantID string) ([]domain.Cluster, error)

	// DefaultForRegion answers the legacy single-default lookup.
	// domain.ErrMissing when the region has no default cluster.
	DefaultForRegion(ctx context.Context, region string) (domain.Cluster, error)

	// FeatureEnabled reports a cluster feature flag. Unknown flags are false.
	FeatureEnabled(ctx context.Context, name string, flag string) (bool, error)

	// Register stores a new cluster. The name must be unused.
	Register(ctx context.Context, c domain.Cluster) error

	// Update replaces the stored record of an existing cluster.
	Update(ctx context.Context, c domain.Cluster) error

	// Delete removes a cluster. When allocation policies or engine apps
	// still reference it, Delete fails with domain.ErrClusterInUse and the
	// error message enumerates the referents.
	Delete(ctx context.Context, name string) error

	// GetPolicy returns the tenant's allocation policy.
	// domain.ErrNoAllocationPolicy when the tenant has none.
	GetPolicy(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error)

	// SetPolicy creates or replaces the tenant's allocation policy.
	SetPolicy(ctx context.Context, policy domain.ClusterAllocationPolicy) error
}
