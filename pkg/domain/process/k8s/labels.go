package k8s

// Platform labels stamped on workload resources by the operator.
const (
	labelPrefix = "bkapp.paas.bk.tencent.com/"

	LabelWlAppName      = labelPrefix + "wl-app-name"
	LabelAppCode        = labelPrefix + "code"
	LabelModuleName     = labelPrefix + "module-name"
	LabelEnvironment    = labelPrefix + "environment"
	LabelProcessName    = labelPrefix + "process-name"
	LabelResourceType   = labelPrefix + "resource-type"
	LabelReleaseVersion = labelPrefix + "release-version"
)

// ResourceTypeProcess is the LabelResourceType value marking workload
// resources which belong to an app process. Queries always match it so
// unrelated workloads in shared namespaces never leak in.
const ResourceTypeProcess = "process"

// AppRef is the application identity a workload resource resolves to.
type AppRef struct {
	// set when LabelWlAppName resolved the resource directly.
	WlAppName string

	// the fallback tuple.
	AppCode     string
	ModuleName  string
	Environment string
}

// ResolveApp classifies a resource's labels. The second return is false
// when the resource is not app-scoped at all.
func ResolveApp(labels map[string]string) (AppRef, bool) {
	if name := labels[LabelWlAppName]; name != "" {
		return AppRef{WlAppName: name}, true
	}
	code, module, env := labels[LabelAppCode], labels[LabelModuleName], labels[LabelEnvironment]
	if code != "" && module != "" && env != "" {
		return AppRef{AppCode: code, ModuleName: module, Environment: env}, true
	}
	return AppRef{}, false
}
