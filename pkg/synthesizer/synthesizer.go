// Package synthesizer emits BkApp manifests from persisted module state.
package synthesizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/slices"
)

const (
	apiVersion = "paas.bk.tencent.com/v1alpha2"
	kind       = "BkApp"

	annotationPrefix = "bkapp.paas.bk.tencent.com/"
)

// DeployContext carries the per-deployment inputs the module rows
// cannot know.
type DeployContext struct {
	App         domain.Application
	Module      domain.Module
	Environment domain.Environment

	// workload-layer identity of the target environment.
	EngineAppName string

	// the image to run: advanced_options.image, or the build artifact.
	Image string
}

// Synthesizer produces the JSON-serializable BkApp manifest the
// cluster-side operator consumes.
type Synthesizer interface {
	Synthesize(ctx context.Context, dctx DeployContext) (map[string]any, error)
}

type synthesizer struct {
	apps      appdb.Interface
	addresses AddressResolver
}

func New(apps appdb.Interface, addresses AddressResolver) Synthesizer {
	return &synthesizer{apps: apps, addresses: addresses}
}

func (s *synthesizer) Synthesize(ctx context.Context, dctx DeployContext) (map[string]any, error) {
	moduleID := dctx.Module.ID

	specs, err := s.apps.ListProcessSpecs(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	overlays, err := s.apps.ListEnvOverlays(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	envVars, err := s.apps.ListEnvVars(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	mounts, err := s.apps.ListMounts(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	svcDisc, err := s.apps.GetSvcDiscConfig(ctx, dctx.App.ID)
	if err != nil {
		return nil, err
	}
	domainRes, err := s.apps.GetDomainResolution(ctx, dctx.App.ID)
	if err != nil {
		return nil, err
	}
	observability, err := s.apps.GetObservability(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	hook, err := s.apps.GetHook(ctx, moduleID, domain.HookPreRelease)
	if err != nil && !isMissing(err) {
		return nil, err
	}

	spec := map[string]any{
		"build":     map[string]any{"image": dctx.Image},
		"processes": s.processes(specs, overlays, dctx.Environment),
	}

	if hook.ID != "" && hook.Enabled {
		spec["hooks"] = map[string]any{
			"preRelease": command(hook.Command, hook.Args, hook.ProcCommand),
		}
	}

	env := []any{}
	for _, v := range envVars {
		if v.Environment != domain.EnvGlobal {
			continue
		}
		env = append(env, map[string]any{"name": v.Key, "value": v.Value})
	}
	if len(svcDisc.BkSaaS) != 0 {
		addresses, err := s.addresses.Resolve(ctx, svcDisc.BkSaaS)
		if err != nil {
			return nil, err
		}
		env = append(env, map[string]any{
			"name":  EnvKeyServiceAddresses,
			"value": addresses,
		})
	}
	if len(env) != 0 {
		spec["configuration"] = map[string]any{"env": env}
	}

	if baseMounts := s.mounts(mounts, domain.EnvGlobal); len(baseMounts) != 0 {
		spec["mounts"] = baseMounts
	}

	if overlay := s.envOverlay(overlays, envVars, mounts); len(overlay) != 0 {
		spec["envOverlay"] = overlay
	}

	if len(svcDisc.BkSaaS) != 0 {
		entries := slices.Map(svcDisc.BkSaaS, func(e domain.SvcDiscEntry) any {
			entry := map[string]any{"bkAppCode": e.BkAppCode}
			if e.ModuleName != "" {
				entry["moduleName"] = e.ModuleName
			}
			return entry
		})
		spec["svcDiscovery"] = map[string]any{"bkSaaS": entries}
	}

	if len(domainRes.Nameservers) != 0 || len(domainRes.HostAliases) != 0 {
		res := map[string]any{}
		if len(domainRes.Nameservers) != 0 {
			res["nameservers"] = toAnySlice(domainRes.Nameservers)
		}
		if len(domainRes.HostAliases) != 0 {
			res["hostAliases"] = slices.Map(domainRes.HostAliases, func(a domain.HostAlias) any {
				return map[string]any{
					"ip":        a.IP,
					"hostnames": toAnySlice(a.Hostnames),
				}
			})
		}
		spec["domainResolution"] = res
	}

	if observability.Monitoring != nil && len(observability.Monitoring.Metrics) != 0 {
		metrics := []any{}
		for _, m := range observability.Monitoring.Metrics {
			metric := map[string]any{
				"process":     m.Process,
				"serviceName": m.ServiceName,
			}
			if m.Path != "" {
				metric["path"] = m.Path
			}
			if len(m.Params) != 0 {
				params := map[string]any{}
				for k, v := range m.Params {
					params[k] = v
				}
				metric["params"] = params
			}
			metrics = append(metrics, metric)
		}
		spec["observability"] = map[string]any{
			"monitoring": map[string]any{"metrics": metrics},
		}
	}

	manifest := map[string]any{
		"apiVersion": apiVersion,
		"kind":       kind,
		"metadata": map[string]any{
			"name": manifestName(dctx.App.Code, dctx.Module),
			"annotations": map[string]any{
				annotationPrefix + "code":        dctx.App.Code,
				annotationPrefix + "module-name": dctx.Module.Name,
				annotationPrefix + "environment": string(dctx.Environment),
				annotationPrefix + "wl-app-name": dctx.EngineAppName,
			},
		},
		"spec": spec,
	}
	return StripNulls(manifest).(map[string]any), nil
}

// manifestName is the BkApp resource name: the app code for the default
// module, "{code}-m-{module}" otherwise.
func manifestName(code string, module domain.Module) string {
	if module.IsDefault {
		return code
	}
	return fmt.Sprintf("%s-m-%s", code, module.Name)
}

// processes emits one entry per spec, in stored order. Replicas, plan
// and autoscaling take the env-overlay value when one matches env.
func (s *synthesizer) processes(
	specs []domain.ModuleProcessSpec,
	overlays []domain.ProcessSpecEnvOverlay,
	env domain.Environment,
) []any {
	overlayFor := map[string]domain.ProcessSpecEnvOverlay{}
	for _, ov := range overlays {
		if ov.Environment == env {
			overlayFor[ov.ProcessName] = ov
		}
	}

	out := []any{}
	for _, spec := range specs {
		replicas := spec.TargetReplicas
		plan := spec.Plan
		scalingEnabled := spec.AutoscalingEnabled
		scaling := spec.Autoscaling

		if ov, ok := overlayFor[spec.Name]; ok {
			if ov.TargetReplicas != nil {
				replicas = *ov.TargetReplicas
			}
			if ov.Plan != nil {
				plan = *ov.Plan
			}
			if ov.AutoscalingEnabled != nil {
				scalingEnabled = *ov.AutoscalingEnabled
			}
			if ov.Autoscaling != nil {
				scaling = ov.Autoscaling
			}
		}

		entry := map[string]any{
			"name":         spec.Name,
			"replicas":     replicas,
			"resQuotaPlan": string(plan),
		}
		if len(spec.Command) != 0 {
			entry["command"] = toAnySlice(spec.Command)
		}
		if len(spec.Args) != 0 {
			entry["args"] = toAnySlice(spec.Args)
		}
		if spec.ProcCommand != "" {
			entry["procCommand"] = spec.ProcCommand
		}
		if spec.TargetPort != 0 {
			entry["targetPort"] = spec.TargetPort
		}
		if scalingEnabled && scaling != nil {
			entry["autoscaling"] = map[string]any{
				"minReplicas": scaling.MinReplicas,
				"maxReplicas": scaling.MaxReplicas,
				"policy":      string(scaling.Policy),
			}
		}
		if probes := probesEntry(spec.Probes); probes != nil {
			entry["probes"] = probes
		}
		if services := servicesEntry(spec.Services); len(services) != 0 {
			entry["services"] = services
		}
		out = append(out, entry)
	}
	return out
}

func (s *synthesizer) envOverlay(
	overlays []domain.ProcessSpecEnvOverlay,
	envVars []domain.PresetEnvVariable,
	mounts []domain.Mount,
) map[string]any {
	overlay := map[string]any{}

	replicas := []any{}
	resQuotas := []any{}
	autoscaling := []any{}
	for _, ov := range overlays {
		if ov.TargetReplicas != nil {
			replicas = append(replicas, map[string]any{
				"envName": string(ov.Environment),
				"process": ov.ProcessName,
				"count":   *ov.TargetReplicas,
			})
		}
		if ov.Plan != nil {
			resQuotas = append(resQuotas, map[string]any{
				"envName": string(ov.Environment),
				"process": ov.ProcessName,
				"plan":    string(*ov.Plan),
			})
		}
		if ov.Autoscaling != nil {
			autoscaling = append(autoscaling, map[string]any{
				"envName":     string(ov.Environment),
				"process":     ov.ProcessName,
				"minReplicas": ov.Autoscaling.MinReplicas,
				"maxReplicas": ov.Autoscaling.MaxReplicas,
				"policy":      string(ov.Autoscaling.Policy),
			})
		}
	}
	if len(replicas) != 0 {
		overlay["replicas"] = replicas
	}
	if len(resQuotas) != 0 {
		overlay["resQuotas"] = resQuotas
	}
	if len(autoscaling) != 0 {
		overlay["autoscaling"] = autoscaling
	}

	envVariables := []any{}
	for _, v := range envVars {
		if v.Environment == domain.EnvGlobal {
			continue
		}
		envVariables = append(envVariables, map[string]any{
			"envName": string(v.Environment),
			"name":    v.Key,
			"value":   v.Value,
		})
	}
	if len(envVariables) != 0 {
		overlay["envVariables"] = envVariables
	}

	overlayMounts := []any{}
	for _, mt := range mounts {
		if mt.Environment == domain.EnvGlobal {
			continue
		}
		entry := mountEntry(mt)
		entry["envName"] = string(mt.Environment)
		overlayMounts = append(overlayMounts, entry)
	}
	if len(overlayMounts) != 0 {
		overlay["mounts"] = overlayMounts
	}

	return overlay
}

func (s *synthesizer) mounts(mounts []domain.Mount, env domain.Environment) []any {
	out := []any{}
	for _, mt := range mounts {
		if mt.Environment != env {
			continue
		}
		out = append(out, mountEntry(mt))
	}
	return out
}

func mountEntry(mt domain.Mount) map[string]any {
	source := map[string]any{}
	if mt.Source.ConfigMap != nil {
		source["configMap"] = map[string]any{"name": mt.Source.ConfigMap.Name}
	}
	if mt.Source.PersistentStorage != nil {
		source["persistentStorage"] = map[string]any{"name": mt.Source.PersistentStorage.Name}
	}
	return map[string]any{
		"name":      mt.Name,
		"mountPath": mt.MountPath,
		"source":    source,
	}
}

func servicesEntry(services []domain.ProcService) []any {
	out := []any{}
	for _, svc := range services {
		entry := map[string]any{
			"name":       svc.Name,
			"targetPort": svc.TargetPort,
			"protocol":   string(svc.Protocol),
		}
		if svc.ExposedType != nil {
			entry["exposedType"] = map[string]any{"name": *svc.ExposedType}
		}
		if svc.Port != nil {
			entry["port"] = *svc.Port
		}
		out = append(out, entry)
	}
	return out
}

func probesEntry(set domain.ProbeSet) map[string]any {
	out := map[string]any{}
	if p := probeEntry(set.Liveness); p != nil {
		out["liveness"] = p
	}
	if p := probeEntry(set.Readiness); p != nil {
		out["readiness"] = p
	}
	if p := probeEntry(set.Startup); p != nil {
		out["startup"] = p
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func probeEntry(p *domain.Probe) map[string]any {
	if p == nil {
		return nil
	}
	out := map[string]any{}
	if p.Handler.Exec != nil {
		out["exec"] = map[string]any{"command": toAnySlice(p.Handler.Exec.Command)}
	}
	if p.Handler.HTTPGet != nil {
		httpGet := map[string]any{"port": p.Handler.HTTPGet.Port}
		if p.Handler.HTTPGet.Path != "" {
			httpGet["path"] = p.Handler.HTTPGet.Path
		}
		if p.Handler.HTTPGet.Host != "" {
			httpGet["host"] = p.Handler.HTTPGet.Host
		}
		out["httpGet"] = httpGet
	}
	if p.Handler.TCPSocket != nil {
		tcp := map[string]any{"port": p.Handler.TCPSocket.Port}
		if p.Handler.TCPSocket.Host != "" {
			tcp["host"] = p.Handler.TCPSocket.Host
		}
		out["tcpSocket"] = tcp
	}
	if p.InitialDelaySeconds != 0 {
		out["initialDelaySeconds"] = p.InitialDelaySeconds
	}
	if p.TimeoutSeconds != 0 {
		out["timeoutSeconds"] = p.TimeoutSeconds
	}
	if p.PeriodSeconds != 0 {
		out["periodSeconds"] = p.PeriodSeconds
	}
	if p.SuccessThreshold != 0 {
		out["successThreshold"] = p.SuccessThreshold
	}
	if p.FailureThreshold != 0 {
		out["failureThreshold"] = p.FailureThreshold
	}
	return out
}

func command(cmd []string, args []string, procCommand string) map[string]any {
	out := map[string]any{}
	if len(cmd) != 0 {
		out["command"] = toAnySlice(cmd)
	}
	if len(args) != 0 {
		out["args"] = toAnySlice(args)
	}
	if procCommand != "" {
		out["procCommand"] = procCommand
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// StripNulls removes nil-valued entries recursively. The cluster-side
// operator cannot parse explicit nulls.
func StripNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, entry := range val {
			if entry == nil {
				delete(val, k)
				continue
			}
			val[k] = StripNulls(entry)
		}
		return val
	case []any:
		out := make([]any, 0, len(val))
		for _, entry := range val {
			if entry == nil {
				continue
			}
			out = append(out, StripNulls(entry))
		}
		return out
	default:
		return v
	}
}

func isMissing(err error) bool {
	return errors.Is(err, domain.ErrMissing)
}
