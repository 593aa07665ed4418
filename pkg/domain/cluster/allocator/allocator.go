// Package allocator decides which clusters an environment deploys onto.
package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

type Allocator interface {
	// Allocate returns the cluster names for the tenant's environment,
	// in policy order. The first name is the authoritative placement.
	//
	// domain.ErrNoAllocationPolicy when the tenant has no policy,
	// domain.ErrNoMatchingAllocationRule when no rule matches mctx.
	Allocate(ctx context.Context, tenantID string, env domain.Environment, mctx domain.MatcherContext) ([]string, error)
}

type allocator struct {
	registry kdb.Registry
}

func New(registry kdb.Registry) Allocator {
	return &allocator{registry: registry}
}

func (a *allocator) Allocate(
	ctx context.Context, tenantID string, env domain.Environment, mctx domain.MatcherContext,
) ([]string, error) {
	policy, err := a.registry.GetPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	switch policy.Type {
	case domain.AllocationStatic:
		// a static policy is a single unconditional rule.
		for _, rule := range policy.Rules {
			names, err := a.visible(ctx, tenantID, rule.ClustersFor(env))
			if err != nil {
				return nil, err
			}
			if len(names) != 0 {
				return names, nil
			}
		}
		return nil, xe.Wrap(fmt.Errorf(
			"%w: static policy of tenant '%s' names no clusters for %s",
			domain.ErrNoMatchingAllocationRule, tenantID, env,
		))
	case domain.AllocationRuleBased:
		for _, rule := range policy.Rules {
			if rule.Matcher != nil && !rule.Matcher.Matches(mctx) {
				continue
			}
			names, err := a.visible(ctx, tenantID, rule.ClustersFor(env))
			if err != nil {
				return nil, err
			}
			if len(names) == 0 {
				continue
			}
			return names, nil
		}
		return nil, xe.Wrap(fmt.Errorf(
			"%w: tenant '%s', environment %s, region '%s'",
			domain.ErrNoMatchingAllocationRule, tenantID, env, mctx.Region,
		))
	default:
		return nil, xe.Wrap(fmt.Errorf(
			"unknown allocation policy type '%s' for tenant '%s'", policy.Type, tenantID,
		))
	}
}

// visible keeps the names whose registered cluster still allows the
// tenant. Names of unregistered clusters are dropped too; a policy may
// outlive the clusters it was written against.
func (a *allocator) visible(ctx context.Context, tenantID string, names []string) ([]string, error) {
	kept := make([]string, 0, len(names))
	for _, name := range names {
		c, err := a.registry.Get(ctx, name)
		if errors.Is(err, domain.ErrMissing) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.VisibleTo(tenantID) {
			kept = append(kept, name)
		}
	}
	return kept, nil
}
