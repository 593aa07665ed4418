package k8s

import (
	"context"
	"errors"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	discoveryfake "k8s.io/client-go/discovery/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	clustermock "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db/mock"
)

func tokenCluster(name string) domain.Cluster {
	return domain.Cluster{
		Name:         name,
		Region:       "default",
		APIServerURL: "https://" + name + ".example.com:6443",
		Auth:         domain.ClusterAuth{Type: domain.ClusterAuthToken, Token: "t0ken"},
	}
}

// testFactory swaps the client builder for a counter so no connection
// is attempted.
func testFactory(registry *clustermock.MockRegistry, ttl time.Duration) (*factory, *int, *time.Time) {
	f := NewFactory(registry, ttl).(*factory)
	builds := 0
	f.build = func(c domain.Cluster) (*Clients, error) {
		builds++
		return &Clients{}, nil
	}
	clock := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }
	return f, &builds, &clock
}

func TestFactory_ClientFor(t *testing.T) {
	t.Run("clients are cached until the ttl lapses", func(t *testing.T) {
		registry := clustermock.New(t)
		gets := 0
		registry.Impl.Get = func(_ context.Context, name string) (domain.Cluster, error) {
			gets++
			return tokenCluster(name), nil
		}
		f, builds, clock := testFactory(registry, 10*time.Minute)

		ctx := context.Background()
		first, err := f.ClientFor(ctx, "main")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := f.ClientFor(ctx, "main")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != second {
			t.Error("cached clients should be reused")
		}
		if *builds != 1 || gets != 1 {
			t.Errorf("unexpected build/get counts: %d %d", *builds, gets)
		}

		*clock = clock.Add(11 * time.Minute)
		third, err := f.ClientFor(ctx, "main")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if third == first {
			t.Error("expired clients should be rebuilt")
		}
		if *builds != 2 {
			t.Errorf("unexpected build count: %d", *builds)
		}
	})

	t.Run("clusters are cached independently", func(t *testing.T) {
		registry := clustermock.New(t)
		registry.Impl.Get = func(_ context.Context, name string) (domain.Cluster, error) {
			return tokenCluster(name), nil
		}
		f, builds, _ := testFactory(registry, 10*time.Minute)

		ctx := context.Background()
		if _, err := f.ClientFor(ctx, "main"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.ClientFor(ctx, "spare"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *builds != 2 {
			t.Errorf("unexpected build count: %d", *builds)
		}
	})

	t.Run("Invalidate forces a rebuild from the registry", func(t *testing.T) {
		registry := clustermock.New(t)
		gets := 0
		registry.Impl.Get = func(_ context.Context, name string) (domain.Cluster, error) {
			gets++
			return tokenCluster(name), nil
		}
		f, builds, _ := testFactory(registry, 10*time.Minute)

		ctx := context.Background()
		if _, err := f.ClientFor(ctx, "main"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f.Invalidate("main")
		if _, err := f.ClientFor(ctx, "main"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *builds != 2 || gets != 2 {
			t.Errorf("unexpected build/get counts: %d %d", *builds, gets)
		}
	})

	t.Run("registry misses are not cached", func(t *testing.T) {
		registry := clustermock.New(t)
		missing := errors.New("cluster not registered")
		registry.Impl.Get = func(context.Context, string) (domain.Cluster, error) {
			return domain.Cluster{}, missing
		}
		f, builds, _ := testFactory(registry, 10*time.Minute)

		if _, err := f.ClientFor(context.Background(), "ghost"); !errors.Is(err, missing) {
			t.Fatalf("unexpected error: %v", err)
		}
		if *builds != 0 {
			t.Errorf("unexpected build count: %d", *builds)
		}
	})
}

func TestRestConfig(t *testing.T) {
	t.Run("cert auth", func(t *testing.T) {
		cfg, err := restConfig(domain.Cluster{
			Name:         "main",
			APIServerURL: "https://main.example.com:6443",
			Auth: domain.ClusterAuth{
				Type:     domain.ClusterAuthCert,
				CAData:   []byte("ca"),
				CertData: []byte("cert"),
				KeyData:  []byte("key"),
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Host != "https://main.example.com:6443" {
			t.Errorf("unexpected host: %s", cfg.Host)
		}
		if string(cfg.TLSClientConfig.CertData) != "cert" || string(cfg.TLSClientConfig.KeyData) != "key" {
			t.Errorf("unexpected tls config: %+v", cfg.TLSClientConfig)
		}
	})

	t.Run("cert auth with missing material is rejected", func(t *testing.T) {
		_, err := restConfig(domain.Cluster{
			Name: "main",
			Auth: domain.ClusterAuth{Type: domain.ClusterAuthCert, CAData: []byte("ca")},
		})
		if err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("token auth without ca is insecure", func(t *testing.T) {
		cfg, err := restConfig(tokenCluster("main"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BearerToken != "t0ken" {
			t.Errorf("unexpected token: %s", cfg.BearerToken)
		}
		if !cfg.TLSClientConfig.Insecure {
			t.Error("token auth without ca should skip verification")
		}
	})

	t.Run("token auth with ca verifies", func(t *testing.T) {
		c := tokenCluster("main")
		c.Auth.CAData = []byte("ca")
		cfg, err := restConfig(c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.TLSClientConfig.Insecure || string(cfg.TLSClientConfig.CAData) != "ca" {
			t.Errorf("unexpected tls config: %+v", cfg.TLSClientConfig)
		}
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		c := tokenCluster("main")
		c.Auth.Token = ""
		if _, err := restConfig(c); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("unknown auth type is rejected", func(t *testing.T) {
		c := tokenCluster("main")
		c.Auth.Type = "kerberos"
		if _, err := restConfig(c); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestPreferredBkAppGVR(t *testing.T) {
	fakeDiscovery := func(groupVersions ...string) *discoveryfake.FakeDiscovery {
		resources := make([]*metav1.APIResourceList, 0, len(groupVersions))
		for _, gv := range groupVersions {
			resources = append(resources, &metav1.APIResourceList{GroupVersion: gv})
		}
		return &discoveryfake.FakeDiscovery{
			Fake: &k8stesting.Fake{Resources: resources},
		}
	}

	t.Run("prefers v1alpha2", func(t *testing.T) {
		d := fakeDiscovery("paas.bk.tencent.com/v1alpha1", "paas.bk.tencent.com/v1alpha2", "apps/v1")
		gvr, err := PreferredBkAppGVR(d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gvr.Group != GroupBkApp || gvr.Version != "v1alpha2" || gvr.Resource != ResourceBkApps {
			t.Errorf("unexpected gvr: %v", gvr)
		}
	})

	t.Run("falls back to v1alpha1", func(t *testing.T) {
		d := fakeDiscovery("paas.bk.tencent.com/v1alpha1", "apps/v1")
		gvr, err := PreferredBkAppGVR(d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gvr.Version != "v1alpha1" {
			t.Errorf("unexpected version: %s", gvr.Version)
		}
	})

	t.Run("clusters without the operator are errors", func(t *testing.T) {
		if _, err := PreferredBkAppGVR(fakeDiscovery("apps/v1")); err == nil {
			t.Fatal("expected an error")
		}
	})
}
