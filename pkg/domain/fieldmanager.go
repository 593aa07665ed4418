package domain

// FieldManager is the logical identity which last wrote a module field.
//
// It decides whether absence in a later apply means "reset" or "leave alone":
// an omitted field is reset only when the recorded manager is the one applying.
type FieldManager string

const (
	ManagerAppDescriptor FieldManager = "app_descriptor"
	ManagerWebForm       FieldManager = "web_form"
)

// FieldKey is the logical name of a managed module field.
type FieldKey string

const (
	FieldProcesses        FieldKey = "spec.processes"
	FieldHooks            FieldKey = "spec.hooks"
	FieldEnvVars          FieldKey = "spec.configuration.env"
	FieldMounts           FieldKey = "spec.mounts"
	FieldSvcDiscovery     FieldKey = "spec.svcDiscovery"
	FieldDomainResolution FieldKey = "spec.domainResolution"
	FieldEnvOverlay       FieldKey = "spec.envOverlay"
	FieldObservability    FieldKey = "spec.observability"
)

// FieldManagementRecord pins (module, field) to its current manager.
//
// Records reference the field by key only, not by row: orphans are
// harmless and cleaned lazily.
type FieldManagementRecord struct {
	ModuleID string
	Field    FieldKey
	Manager  FieldManager
}
