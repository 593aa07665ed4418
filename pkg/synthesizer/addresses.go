package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	clusterdb "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db"
)

// EnvKeyServiceAddresses carries the resolved service-discovery list,
// JSON-encoded, into the running processes.
const EnvKeyServiceAddresses = "BKPAAS_SERVICE_ADDRESSES_BKSAAS"

// placeholderDomain stands in when the target cluster exposes no
// ingress domains; consumers treat such addresses as unresolvable.
const placeholderDomain = "unknown.example.com"

// AddressResolver turns svc-discovery entries into the JSON value of
// EnvKeyServiceAddresses.
type AddressResolver interface {
	Resolve(ctx context.Context, entries []domain.SvcDiscEntry) (string, error)
}

type serviceAddress struct {
	Key   serviceAddressKey   `json:"key"`
	Value serviceAddressValue `json:"value"`
}

type serviceAddressKey struct {
	BkAppCode  string `json:"bk_app_code"`
	ModuleName string `json:"module_name,omitempty"`
}

type serviceAddressValue struct {
	Stag string `json:"stag"`
	Prod string `json:"prod"`
}

type addressResolver struct {
	registry    clusterdb.Registry
	clusterName string
}

// NewAddressResolver resolves against the ingress config of the named
// cluster, the one the current deployment targets.
func NewAddressResolver(registry clusterdb.Registry, clusterName string) AddressResolver {
	return &addressResolver{registry: registry, clusterName: clusterName}
}

func (r *addressResolver) Resolve(ctx context.Context, entries []domain.SvcDiscEntry) (string, error) {
	cluster, err := r.registry.Get(ctx, r.clusterName)
	if err != nil {
		return "", err
	}

	addresses := []serviceAddress{}
	for _, e := range entries {
		addresses = append(addresses, serviceAddress{
			Key: serviceAddressKey{BkAppCode: e.BkAppCode, ModuleName: e.ModuleName},
			Value: serviceAddressValue{
				Stag: exposedURL(cluster.Ingress, e, domain.EnvStag),
				Prod: exposedURL(cluster.Ingress, e, domain.EnvProd),
			},
		})
	}

	raw, err := json.Marshal(addresses)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// exposedURL builds the entry URL for one environment.
//
// Subdomain mode (app_root_domains present) wins over subpath mode:
//
//	prod:  http://{code}.{root}/            http://{module}-dot-{code}.{root}/
//	stag:  http://stag-dot-{code}.{root}/   http://{module}-dot-stag-dot-{code}.{root}/
//
// Subpath mode nests the same parts into the path with "--" separators.
func exposedURL(ingress domain.IngressConfig, e domain.SvcDiscEntry, env domain.Environment) string {
	parts := []string{}
	if e.ModuleName != "" {
		parts = append(parts, e.ModuleName)
	}
	if env == domain.EnvStag {
		parts = append(parts, "stag")
	}
	parts = append(parts, e.BkAppCode)

	if len(ingress.AppRootDomains) != 0 {
		return fmt.Sprintf("http://%s.%s/", strings.Join(parts, "-dot-"), ingress.AppRootDomains[0])
	}
	if len(ingress.SubPathDomains) != 0 {
		return fmt.Sprintf("http://%s/%s/", ingress.SubPathDomains[0], strings.Join(parts, "--"))
	}
	return fmt.Sprintf("http://%s.%s/", strings.Join(parts, "-dot-"), placeholderDomain)
}
