package domain

import (
	"fmt"
	"regexp"
)

// Environment is a deploy target of a module: staging or production.
type Environment string

const (
	EnvStag Environment = "stag"
	EnvProd Environment = "prod"

	// EnvGlobal is the wildcard scope for preset env vars.
	// It is not a deploy target.
	EnvGlobal Environment = "_global_"
)

func AsEnvironment(name string) (Environment, error) {
	switch name {
	case string(EnvStag):
		return EnvStag, nil
	case string(EnvProd):
		return EnvProd, nil
	default:
		return "", fmt.Errorf("'%s' is not an environment name", name)
	}
}

// Environments lists deployable environments, in fixed order.
func Environments() []Environment {
	return []Environment{EnvStag, EnvProd}
}

type AppType string

const (
	AppTypeDefault     AppType = "default"
	AppTypeCloudNative AppType = "cloud_native"
)

type TenantMode string

const (
	TenantModeSingle TenantMode = "single"
	TenantModeGlobal TenantMode = "global"
)

var (
	rxAppCode    = regexp.MustCompile(`^[a-z][a-z0-9-]{2,19}$`)
	rxModuleName = regexp.MustCompile(`^[a-z][a-z0-9-]{1,19}$`)
)

// names which module creation refuses; they collide with platform routes.
var reservedModuleNames = map[string]struct{}{
	"default": {}, "api": {}, "stag": {}, "prod": {},
}

func ValidateAppCode(code string) error {
	if !rxAppCode.MatchString(code) {
		return fmt.Errorf("app code '%s': must match %s", code, rxAppCode)
	}
	return nil
}

func ValidateModuleName(name string) error {
	if !rxModuleName.MatchString(name) {
		return fmt.Errorf("module name '%s': must match %s", name, rxModuleName)
	}
	if _, ng := reservedModuleNames[name]; ng {
		return fmt.Errorf("module name '%s' is reserved", name)
	}
	return nil
}

// Application is the root aggregate: a tenant-owned app made of modules.
type Application struct {
	ID   string
	Code string
	Name string
	Type AppType

	AppTenantMode    TenantMode
	AppTenantID      string
	PlatformTenantID string

	// Region is deprecated but still a required discriminator for
	// legacy cluster lookups.
	Region string

	IsActive bool
}

type SourceOrigin string

const (
	OriginAuthorizedVCS SourceOrigin = "authorized_vcs"
	OriginSMart         SourceOrigin = "s_mart"
	OriginImageRegistry SourceOrigin = "image_registry"
)

func AsSourceOrigin(s string) (SourceOrigin, error) {
	switch s {
	case string(OriginAuthorizedVCS):
		return OriginAuthorizedVCS, nil
	case string(OriginSMart):
		return OriginSMart, nil
	case string(OriginImageRegistry):
		return OriginImageRegistry, nil
	default:
		return "", fmt.Errorf("'%s' is not a source origin", s)
	}
}

type ExposedURLType string

const (
	ExposedSubdomain ExposedURLType = "subdomain"
	ExposedSubpath   ExposedURLType = "subpath"
)

// Module is the unit of independent deployment within an Application.
type Module struct {
	ID            string
	ApplicationID string
	Name          string
	IsDefault     bool
	SourceOrigin  SourceOrigin
	Language      string

	// nil means the module exposes no URL.
	ExposedURLType *ExposedURLType
}

// EngineApp pairs a (module, environment) with its workload-layer identity.
type EngineApp struct {
	ID        string
	Name      string
	Namespace string

	// Cluster the engine app is bound to; empty until first scheduling.
	ClusterName string
}

// ModuleEnvironment is one deploy target of a module.
//
// Every module has exactly two: stag and prod.
type ModuleEnvironment struct {
	ID          string
	ModuleID    string
	Environment Environment
	EngineApp   EngineApp
}
