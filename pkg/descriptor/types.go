// Package descriptor parses and validates BkApp v1alpha2 documents.
package descriptor

// The types below mirror the document structure. Field names follow the
// CRD's camelCase; the importer converts to domain types after validation.

type AppDescriptor struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name string `yaml:"name" json:"name"`

	// unknown annotation keys are preserved verbatim.
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

type Spec struct {
	Build            *Build            `yaml:"build,omitempty" json:"build,omitempty"`
	Processes        []Process         `yaml:"processes" json:"processes"`
	Hooks            *Hooks            `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Addons           []Addon           `yaml:"addons,omitempty" json:"addons,omitempty"`
	Configuration    *Configuration    `yaml:"configuration,omitempty" json:"configuration,omitempty"`
	EnvOverlay       *EnvOverlay       `yaml:"envOverlay,omitempty" json:"envOverlay,omitempty"`
	Mounts           []Mount           `yaml:"mounts,omitempty" json:"mounts,omitempty"`
	SvcDiscovery     *SvcDiscovery     `yaml:"svcDiscovery,omitempty" json:"svcDiscovery,omitempty"`
	DomainResolution *DomainResolution `yaml:"domainResolution,omitempty" json:"domainResolution,omitempty"`
	Observability    *Observability    `yaml:"observability,omitempty" json:"observability,omitempty"`
}

type Build struct {
	Image           string `yaml:"image,omitempty" json:"image,omitempty"`
	ImagePullPolicy string `yaml:"imagePullPolicy,omitempty" json:"imagePullPolicy,omitempty"`
}

type Process struct {
	Name         string       `yaml:"name" json:"name"`
	Replicas     *int         `yaml:"replicas,omitempty" json:"replicas,omitempty"`
	ResQuotaPlan string       `yaml:"resQuotaPlan,omitempty" json:"resQuotaPlan,omitempty"`
	Command      []string     `yaml:"command,omitempty" json:"command,omitempty"`
	Args         []string     `yaml:"args,omitempty" json:"args,omitempty"`
	ProcCommand  string       `yaml:"procCommand,omitempty" json:"procCommand,omitempty"`
	TargetPort   int32        `yaml:"targetPort,omitempty" json:"targetPort,omitempty"`
	Services     []Service    `yaml:"services,omitempty" json:"services,omitempty"`
	Probes       *Probes      `yaml:"probes,omitempty" json:"probes,omitempty"`
	Autoscaling  *Autoscaling `yaml:"autoscaling,omitempty" json:"autoscaling,omitempty"`
}

type Service struct {
	Name        string       `yaml:"name" json:"name"`
	TargetPort  int32        `yaml:"targetPort" json:"targetPort"`
	Protocol    string       `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	ExposedType *ExposedType `yaml:"exposedType,omitempty" json:"exposedType,omitempty"`
	Port        *int32       `yaml:"port,omitempty" json:"port,omitempty"`
}

type ExposedType struct {
	Name string `yaml:"name" json:"name"`
}

type Probes struct {
	Liveness  *Probe `yaml:"liveness,omitempty" json:"liveness,omitempty"`
	Readiness *Probe `yaml:"readiness,omitempty" json:"readiness,omitempty"`
	Startup   *Probe `yaml:"startup,omitempty" json:"startup,omitempty"`
}

type Probe struct {
	Exec                *ExecAction      `yaml:"exec,omitempty" json:"exec,omitempty"`
	HTTPGet             *HTTPGetAction   `yaml:"httpGet,omitempty" json:"httpGet,omitempty"`
	TCPSocket           *TCPSocketAction `yaml:"tcpSocket,omitempty" json:"tcpSocket,omitempty"`
	InitialDelaySeconds int32            `yaml:"initialDelaySeconds,omitempty" json:"initialDelaySeconds,omitempty"`
	TimeoutSeconds      int32            `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
	PeriodSeconds       int32            `yaml:"periodSeconds,omitempty" json:"periodSeconds,omitempty"`
	SuccessThreshold    int32            `yaml:"successThreshold,omitempty" json:"successThreshold,omitempty"`
	FailureThreshold    int32            `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`
}

type ExecAction struct {
	Command []string `yaml:"command" json:"command"`
}

type HTTPGetAction struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	Port int32  `yaml:"port" json:"port"`
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
}

type TCPSocketAction struct {
	Port int32  `yaml:"port" json:"port"`
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
}

type Autoscaling struct {
	MinReplicas int    `yaml:"minReplicas" json:"minReplicas"`
	MaxReplicas int    `yaml:"maxReplicas" json:"maxReplicas"`
	Policy      string `yaml:"policy,omitempty" json:"policy,omitempty"`
}

type Hooks struct {
	PreRelease *Hook `yaml:"preRelease,omitempty" json:"preRelease,omitempty"`
}

type Hook struct {
	Command     []string `yaml:"command,omitempty" json:"command,omitempty"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
	ProcCommand string   `yaml:"procCommand,omitempty" json:"procCommand,omitempty"`
}

// Addon names an add-on service the module wants provisioned.
type Addon struct {
	Name       string      `yaml:"name" json:"name"`
	Specs      []AddonSpec `yaml:"specs,omitempty" json:"specs,omitempty"`
	SharedFrom string      `yaml:"sharedFromModule,omitempty" json:"sharedFromModule,omitempty"`
}

type AddonSpec struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type Configuration struct {
	Env []EnvVar `yaml:"env,omitempty" json:"env,omitempty"`
}

type EnvVar struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type EnvOverlay struct {
	Replicas     []ReplicasOverlay    `yaml:"replicas,omitempty" json:"replicas,omitempty"`
	ResQuotas    []ResQuotaOverlay    `yaml:"resQuotas,omitempty" json:"resQuotas,omitempty"`
	Autoscaling  []AutoscalingOverlay `yaml:"autoscaling,omitempty" json:"autoscaling,omitempty"`
	EnvVariables []EnvVarOverlay      `yaml:"envVariables,omitempty" json:"envVariables,omitempty"`
	Mounts       []MountOverlay       `yaml:"mounts,omitempty" json:"mounts,omitempty"`
}

type ReplicasOverlay struct {
	EnvName string `yaml:"envName" json:"envName"`
	Process string `yaml:"process" json:"process"`
	Count   int    `yaml:"count" json:"count"`
}

type ResQuotaOverlay struct {
	EnvName string `yaml:"envName" json:"envName"`
	Process string `yaml:"process" json:"process"`
	Plan    string `yaml:"plan" json:"plan"`
}

type AutoscalingOverlay struct {
	EnvName     string `yaml:"envName" json:"envName"`
	Process     string `yaml:"process" json:"process"`
	MinReplicas int    `yaml:"minReplicas" json:"minReplicas"`
	MaxReplicas int    `yaml:"maxReplicas" json:"maxReplicas"`
	Policy      string `yaml:"policy,omitempty" json:"policy,omitempty"`
}

type EnvVarOverlay struct {
	EnvName string `yaml:"envName" json:"envName"`
	Name    string `yaml:"name" json:"name"`
	Value   string `yaml:"value" json:"value"`
}

type MountOverlay struct {
	EnvName   string      `yaml:"envName" json:"envName"`
	Name      string      `yaml:"name" json:"name"`
	MountPath string      `yaml:"mountPath" json:"mountPath"`
	Source    MountSource `yaml:"source" json:"source"`
}

type Mount struct {
	Name      string      `yaml:"name" json:"name"`
	MountPath string      `yaml:"mountPath" json:"mountPath"`
	Source    MountSource `yaml:"source" json:"source"`
}

type MountSource struct {
	ConfigMap         *NamedSource `yaml:"configMap,omitempty" json:"configMap,omitempty"`
	PersistentStorage *NamedSource `yaml:"persistentStorage,omitempty" json:"persistentStorage,omitempty"`
}

type NamedSource struct {
	Name string `yaml:"name" json:"name"`
}

type SvcDiscovery struct {
	BkSaaS []SvcDiscEntry `yaml:"bkSaaS,omitempty" json:"bkSaaS,omitempty"`
}

type SvcDiscEntry struct {
	BkAppCode  string `yaml:"bkAppCode" json:"bkAppCode"`
	ModuleName string `yaml:"moduleName,omitempty" json:"moduleName,omitempty"`
}

type DomainResolution struct {
	Nameservers []string    `yaml:"nameservers,omitempty" json:"nameservers,omitempty"`
	HostAliases []HostAlias `yaml:"hostAliases,omitempty" json:"hostAliases,omitempty"`
}

type HostAlias struct {
	IP        string   `yaml:"ip" json:"ip"`
	Hostnames []string `yaml:"hostnames" json:"hostnames"`
}

type Observability struct {
	Monitoring *Monitoring `yaml:"monitoring,omitempty" json:"monitoring,omitempty"`
}

type Monitoring struct {
	Metrics []Metric `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

type Metric struct {
	Process     string            `yaml:"process" json:"process"`
	ServiceName string            `yaml:"serviceName" json:"serviceName"`
	Path        string            `yaml:"path,omitempty" json:"path,omitempty"`
	Params      map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}
