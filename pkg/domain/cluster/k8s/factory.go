// Package k8s builds and caches Kubernetes clients for registered clusters.
package k8s

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

const (
	// GroupBkApp is the API group of the BkApp custom resource.
	GroupBkApp = "paas.bk.tencent.com"

	// ResourceBkApps is the plural resource name of BkApp.
	ResourceBkApps = "bkapps"
)

// bkAppVersionPreference lists BkApp API versions best-first.
var bkAppVersionPreference = []string{"v1alpha2", "v1alpha1"}

// Clients bundles the per-cluster client surface the rest of the
// module consumes.
type Clients struct {
	Clientset  kubernetes.Interface
	Dynamic    dynamic.Interface
	Discovery  discovery.DiscoveryInterface
	RESTConfig *rest.Config
}

// PreferredBkAppGVR resolves the best BkApp GroupVersionResource the
// cluster serves, consulting bkAppVersionPreference in order.
func PreferredBkAppGVR(d discovery.DiscoveryInterface) (schema.GroupVersionResource, error) {
	groups, err := d.ServerGroups()
	if err != nil {
		return schema.GroupVersionResource{}, xe.Wrap(err)
	}
	served := map[string]bool{}
	for _, g := range groups.Groups {
		if g.Name != GroupBkApp {
			continue
		}
		for _, v := range g.Versions {
			served[v.Version] = true
		}
	}
	for _, v := range bkAppVersionPreference {
		if served[v] {
			return schema.GroupVersionResource{
				Group: GroupBkApp, Version: v, Resource: ResourceBkApps,
			}, nil
		}
	}
	return schema.GroupVersionResource{}, xe.Wrap(fmt.Errorf(
		"cluster serves no known version of %s", GroupBkApp,
	))
}

// Factory hands out clients for clusters in the registry.
type Factory interface {
	// ClientFor returns clients for the named cluster. Results are
	// cached per cluster for the factory's TTL.
	ClientFor(ctx context.Context, clusterName string) (*Clients, error)

	// Invalidate drops the cached clients of the cluster, so the next
	// ClientFor rebuilds them from the registry. Call after updating
	// the cluster's registry entry.
	Invalidate(clusterName string)
}

type cacheEntry struct {
	mu        sync.Mutex
	clients   *Clients
	expiresAt time.Time
}

type factory struct {
	registry kdb.Registry
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry

	// replaced in tests.
	build func(c domain.Cluster) (*Clients, error)
	now   func() time.Time
}

func NewFactory(registry kdb.Registry, ttl time.Duration) Factory {
	return &factory{
		registry: registry,
		ttl:      ttl,
		entries:  map[string]*cacheEntry{},
		build:    buildClients,
		now:      time.Now,
	}
}

func (f *factory) ClientFor(ctx context.Context, clusterName string) (*Clients, error) {
	f.mu.Lock()
	entry, ok := f.entries[clusterName]
	if !ok {
		entry = &cacheEntry{}
		f.entries[clusterName] = entry
	}
	f.mu.Unlock()

	// per-cluster lock: concurrent callers of the same cluster wait for
	// one build, callers of other clusters do not.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.clients != nil && f.now().Before(entry.expiresAt) {
		return entry.clients, nil
	}

	cluster, err := f.registry.Get(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	clients, err := f.build(cluster)
	if err != nil {
		return nil, err
	}
	entry.clients = clients
	entry.expiresAt = f.now().Add(f.ttl)
	return clients, nil
}

func (f *factory) Invalidate(clusterName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, clusterName)
}

// restConfig translates a registry entry into client-go connection config.
func restConfig(c domain.Cluster) (*rest.Config, error) {
	cfg := &rest.Config{Host: c.APIServerURL}
	switch c.Auth.Type {
	case domain.ClusterAuthCert:
		if len(c.Auth.CAData) == 0 || len(c.Auth.CertData) == 0 || len(c.Auth.KeyData) == 0 {
			return nil, xe.Wrap(fmt.Errorf(
				"cluster '%s': cert auth needs ca, cert and key", c.Name,
			))
		}
		cfg.TLSClientConfig = rest.TLSClientConfig{
			CAData:   c.Auth.CAData,
			CertData: c.Auth.CertData,
			KeyData:  c.Auth.KeyData,
		}
	case domain.ClusterAuthToken:
		if c.Auth.Token == "" {
			return nil, xe.Wrap(fmt.Errorf("cluster '%s': token auth needs a token", c.Name))
		}
		cfg.BearerToken = c.Auth.Token
		if len(c.Auth.CAData) != 0 {
			cfg.TLSClientConfig = rest.TLSClientConfig{CAData: c.Auth.CAData}
		} else {
			cfg.TLSClientConfig = rest.TLSClientConfig{Insecure: true}
		}
	default:
		return nil, xe.Wrap(fmt.Errorf(
			"cluster '%s': unknown auth type '%s'", c.Name, c.Auth.Type,
		))
	}
	return cfg, nil
}

func buildClients(c domain.Cluster) (*Clients, error) {
	cfg, err := restConfig(c)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return &Clients{
		Clientset:  clientset,
		Dynamic:    dyn,
		Discovery:  clientset.Discovery(),
		RESTConfig: cfg,
	}, nil
}
