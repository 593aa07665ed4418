package domain

import (
	"github.com/tencentblueking/bkpaas-core/pkg/utils/cmp"
)

// TenantSentinelAll in a cluster's allowed-tenant list means
// "visible to every tenant".
const TenantSentinelAll = "all"

type ClusterAuthType string

const (
	ClusterAuthCert  ClusterAuthType = "cert"
	ClusterAuthToken ClusterAuthType = "token"
)

// ClusterAuth carries credentials for one of the two auth modes.
type ClusterAuth struct {
	Type ClusterAuthType

	// for cert mode; all three are required.
	CAData   []byte
	CertData []byte
	KeyData  []byte

	// for token mode.
	Token string
}

// IngressConfig describes how apps on a cluster are exposed.
type IngressConfig struct {
	AppRootDomains    []string
	SubPathDomains    []string
	FrontendIngressIP string
	PortMap           map[string]int32

	// template with {name} and {domain} placeholders.
	DefaultIngressDomainTmpl string
}

// Cluster is a registered Kubernetes cluster, identified by Name for life.
type Cluster struct {
	Name   string
	Region string

	// one cluster per region answers legacy "default for region" lookups.
	IsDefaultForRegion bool

	APIServerURL string
	Auth         ClusterAuth
	Ingress      IngressConfig

	// tenant ids allowed to allocate onto this cluster,
	// or the single sentinel TenantSentinelAll.
	AllowedTenantIDs []string

	FeatureFlags map[string]bool

	// optional BCS project/cluster annotations, opaque to the core.
	Annotations map[string]string
}

// VisibleTo reports whether the cluster may serve the tenant.
func (c Cluster) VisibleTo(tenantID string) bool {
	for _, t := range c.AllowedTenantIDs {
		if t == TenantSentinelAll || t == tenantID {
			return true
		}
	}
	return false
}

type AllocationPolicyType string

const (
	AllocationStatic    AllocationPolicyType = "static"
	AllocationRuleBased AllocationPolicyType = "rule"
)

// RuleMatcher is the condition set of an allocation rule.
// All present conditions must hold for the rule to match.
type RuleMatcher struct {
	// matches when the context region equals this name. Empty = no condition.
	RegionIs string
}

func (m RuleMatcher) Matches(ctx MatcherContext) bool {
	if m.RegionIs != "" && m.RegionIs != ctx.Region {
		return false
	}
	return true
}

// MatcherContext is what an allocation request tells the rule engine.
type MatcherContext struct {
	Region string
}

// EnvClusters gives per-environment cluster name lists.
type EnvClusters struct {
	Stag []string
	Prod []string
}

func (e EnvClusters) For(env Environment) []string {
	if env == EnvProd {
		return e.Prod
	}
	return e.Stag
}

// AllocationRule is one entry of a rule-based policy.
type AllocationRule struct {
	Matcher *RuleMatcher

	// when true, read EnvClusters; otherwise Clusters applies to both envs.
	EnvSpecific bool
	Clusters    []string
	EnvClusters EnvClusters
}

func (r AllocationRule) ClustersFor(env Environment) []string {
	if r.EnvSpecific {
		return r.EnvClusters.For(env)
	}
	return r.Clusters
}

func (r AllocationRule) Equal(o AllocationRule) bool {
	if (r.Matcher == nil) != (o.Matcher == nil) {
		return false
	}
	if r.Matcher != nil && *r.Matcher != *o.Matcher {
		return false
	}
	return r.EnvSpecific == o.EnvSpecific &&
		cmp.SliceEq(r.Clusters, o.Clusters) &&
		cmp.SliceEq(r.EnvClusters.Stag, o.EnvClusters.Stag) &&
		cmp.SliceEq(r.EnvClusters.Prod, o.EnvClusters.Prod)
}

// ClusterAllocationPolicy maps one tenant onto clusters.
//
// Rules are evaluated top to bottom; the first match wins.
type ClusterAllocationPolicy struct {
	TenantID string
	Type     AllocationPolicyType
	Rules    []AllocationRule
}
