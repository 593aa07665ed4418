package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tencentblueking/bkpaas-core/pkg/utils/cmp"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/pointer"
)

type DeployHookType string

const HookPreRelease DeployHookType = "pre-release-hook"

// ModuleDeployHook is a typed hook executed around a deployment.
type ModuleDeployHook struct {
	ID       string
	ModuleID string
	Type     DeployHookType

	Command     []string
	Args        []string
	ProcCommand string

	Enabled bool
}

func (h ModuleDeployHook) Equal(o ModuleDeployHook) bool {
	return h.Type == o.Type &&
		cmp.SliceEq(h.Command, o.Command) &&
		cmp.SliceEq(h.Args, o.Args) &&
		h.ProcCommand == o.ProcCommand &&
		h.Enabled == o.Enabled
}

var rxEnvVarKey = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// prefixes the platform or kubernetes inject; user vars may not shadow them.
var reservedEnvPrefixes = []string{"BKPAAS_", "KUBERNETES_"}

func ValidateEnvVarKey(key string) error {
	if !rxEnvVarKey.MatchString(key) {
		return fmt.Errorf("env var key '%s': must match %s", key, rxEnvVarKey)
	}
	for _, prefix := range reservedEnvPrefixes {
		if strings.HasPrefix(key, prefix) {
			return fmt.Errorf("env var key '%s': prefix '%s' is reserved", key, prefix)
		}
	}
	return nil
}

// PresetEnvVariable is a name=value pair scoped to an environment
// (or EnvGlobal for both).
type PresetEnvVariable struct {
	ID          string
	ModuleID    string
	Environment Environment
	Key         string
	Value       string
}

func (v PresetEnvVariable) Equal(o PresetEnvVariable) bool {
	return v.Environment == o.Environment && v.Key == o.Key && v.Value == o.Value
}

type MountSourceType string

const (
	MountSourceConfigMap         MountSourceType = "ConfigMap"
	MountSourcePersistentStorage MountSourceType = "PersistentStorage"
)

// MountSource is a tagged variant: exactly one field is non-nil.
type MountSource struct {
	ConfigMap         *ConfigMapSource
	PersistentStorage *PersistentStorageSource
}

func (s MountSource) Type() (MountSourceType, error) {
	switch {
	case s.ConfigMap != nil && s.PersistentStorage == nil:
		return MountSourceConfigMap, nil
	case s.ConfigMap == nil && s.PersistentStorage != nil:
		return MountSourcePersistentStorage, nil
	default:
		return "", fmt.Errorf("mount source: exactly one of configMap, persistentStorage is required")
	}
}

func (s MountSource) Equal(o MountSource) bool {
	return pointer.SafeDeref(s.ConfigMap) == pointer.SafeDeref(o.ConfigMap) &&
		pointer.SafeDeref(s.PersistentStorage) == pointer.SafeDeref(o.PersistentStorage)
}

type ConfigMapSource struct {
	Name string
}

type PersistentStorageSource struct {
	Name string
}

// Mount declares a volume mounted into every process of a module.
type Mount struct {
	ID          string
	ModuleID    string
	Environment Environment
	Name        string
	MountPath   string
	Source      MountSource
}

func (m Mount) Equal(o Mount) bool {
	return m.Environment == o.Environment &&
		m.Name == o.Name &&
		m.MountPath == o.MountPath &&
		m.Source.Equal(o.Source)
}

func ValidateMountPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("mount path '%s': must be absolute", path)
	}
	if path == "/" {
		return fmt.Errorf("mount path must not be the filesystem root")
	}
	return nil
}

// SvcDiscEntry names another BK app (and optionally one of its modules)
// whose addresses the current application wants at runtime.
//
// Deliberately not a foreign key: the referent may not exist yet, and the
// pair is resolved lazily at manifest synthesis.
type SvcDiscEntry struct {
	BkAppCode  string
	ModuleName string // empty = the referent's default module
}

// SvcDiscConfig is an application-scoped singleton.
type SvcDiscConfig struct {
	ApplicationID string
	BkSaaS        []SvcDiscEntry
}

type HostAlias struct {
	IP        string
	Hostnames []string
}

func (h HostAlias) Equal(o HostAlias) bool {
	return h.IP == o.IP && cmp.SliceEq(h.Hostnames, o.Hostnames)
}

// DomainResolution is an application-scoped singleton for DNS tuning.
type DomainResolution struct {
	ApplicationID string
	Nameservers   []string
	HostAliases   []HostAlias
}

// ObservabilityConfig holds the module's metric scrape settings.
type ObservabilityConfig struct {
	ModuleID   string
	Monitoring *Monitoring
}

type Monitoring struct {
	Metrics []Metric
}

type Metric struct {
	Process     string
	ServiceName string
	Path        string
	Params      map[string]string
}

func (m Metric) Equal(o Metric) bool {
	return m.Process == o.Process &&
		m.ServiceName == o.ServiceName &&
		m.Path == o.Path &&
		cmp.MapEq(m.Params, o.Params)
}
