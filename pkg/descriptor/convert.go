package descriptor

import (
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/pointer"
)

// ModuleState is the typed content of a parsed descriptor, shaped for
// the module syncers.
type ModuleState struct {
	Processes        []domain.ModuleProcessSpec
	Overlays         []domain.ProcessSpecEnvOverlay
	Hooks            []domain.ModuleDeployHook
	EnvVars          []domain.PresetEnvVariable
	Mounts           []domain.Mount
	SvcDiscovery     *domain.SvcDiscConfig
	DomainResolution *domain.DomainResolution
	Observability    *domain.ObservabilityConfig

	// add-ons are provisioned by the pipeline, not synced to module rows.
	Addons []Addon

	// spec.build.image when the descriptor pins one.
	BuildImage string
}

// ModuleState converts the validated document into domain values.
// Call only after Parse succeeded.
func (d *AppDescriptor) ModuleState() *ModuleState {
	state := &ModuleState{Addons: d.Spec.Addons}
	if d.Spec.Build != nil {
		state.BuildImage = d.Spec.Build.Image
	}

	for _, proc := range d.Spec.Processes {
		spec := domain.ModuleProcessSpec{
			Name:           proc.Name,
			Command:        proc.Command,
			Args:           proc.Args,
			ProcCommand:    proc.ProcCommand,
			TargetPort:     proc.TargetPort,
			Plan:           domain.PlanDefault,
			TargetReplicas: 1,
		}
		if proc.ResQuotaPlan != "" {
			spec.Plan = domain.ResQuotaPlan(proc.ResQuotaPlan)
		}
		if proc.Replicas != nil {
			spec.TargetReplicas = *proc.Replicas
		}
		if proc.Autoscaling != nil {
			cfg := toAutoscaling(proc.Autoscaling)
			spec.AutoscalingEnabled = true
			spec.Autoscaling = &cfg
		}
		if proc.Probes != nil {
			spec.Probes = domain.ProbeSet{
				Liveness:  toProbe(proc.Probes.Liveness),
				Readiness: toProbe(proc.Probes.Readiness),
				Startup:   toProbe(proc.Probes.Startup),
			}
		}
		for _, svc := range proc.Services {
			out := domain.ProcService{
				Name:       svc.Name,
				TargetPort: svc.TargetPort,
				Protocol:   domain.ProtocolTCP,
				Port:       svc.Port,
			}
			if svc.Protocol != "" {
				out.Protocol = domain.ServiceProtocol(svc.Protocol)
			}
			if svc.ExposedType != nil {
				name := svc.ExposedType.Name
				out.ExposedType = &name
			}
			spec.Services = append(spec.Services, out)
		}
		state.Processes = append(state.Processes, spec)
	}

	if d.Spec.Hooks != nil && d.Spec.Hooks.PreRelease != nil {
		h := d.Spec.Hooks.PreRelease
		state.Hooks = append(state.Hooks, domain.ModuleDeployHook{
			Type:        domain.HookPreRelease,
			Command:     h.Command,
			Args:        h.Args,
			ProcCommand: h.ProcCommand,
			Enabled:     true,
		})
	}

	if d.Spec.Configuration != nil {
		for _, v := range d.Spec.Configuration.Env {
			state.EnvVars = append(state.EnvVars, domain.PresetEnvVariable{
				Environment: domain.EnvGlobal,
				Key:         v.Name,
				Value:       v.Value,
			})
		}
	}

	for _, mt := range d.Spec.Mounts {
		state.Mounts = append(state.Mounts, domain.Mount{
			Environment: domain.EnvGlobal,
			Name:        mt.Name,
			MountPath:   mt.MountPath,
			Source:      toMountSource(mt.Source),
		})
	}

	if ov := d.Spec.EnvOverlay; ov != nil {
		state.Overlays = foldOverlays(ov)
		for _, v := range ov.EnvVariables {
			state.EnvVars = append(state.EnvVars, domain.PresetEnvVariable{
				Environment: domain.Environment(v.EnvName),
				Key:         v.Name,
				Value:       v.Value,
			})
		}
		for _, mt := range ov.Mounts {
			state.Mounts = append(state.Mounts, domain.Mount{
				Environment: domain.Environment(mt.EnvName),
				Name:        mt.Name,
				MountPath:   mt.MountPath,
				Source:      toMountSource(mt.Source),
			})
		}
	}

	if d.Spec.SvcDiscovery != nil && len(d.Spec.SvcDiscovery.BkSaaS) != 0 {
		cfg := &domain.SvcDiscConfig{}
		for _, e := range d.Spec.SvcDiscovery.BkSaaS {
			cfg.BkSaaS = append(cfg.BkSaaS, domain.SvcDiscEntry{
				BkAppCode:  e.BkAppCode,
				ModuleName: e.ModuleName,
			})
		}
		state.SvcDiscovery = cfg
	}

	if d.Spec.DomainResolution != nil {
		res := &domain.DomainResolution{Nameservers: d.Spec.DomainResolution.Nameservers}
		for _, alias := range d.Spec.DomainResolution.HostAliases {
			res.HostAliases = append(res.HostAliases, domain.HostAlias{
				IP:        alias.IP,
				Hostnames: alias.Hostnames,
			})
		}
		if len(res.Nameservers) != 0 || len(res.HostAliases) != 0 {
			state.DomainResolution = res
		}
	}

	if d.Spec.Observability != nil && d.Spec.Observability.Monitoring != nil {
		monitoring := &domain.Monitoring{}
		for _, m := range d.Spec.Observability.Monitoring.Metrics {
			monitoring.Metrics = append(monitoring.Metrics, domain.Metric{
				Process:     m.Process,
				ServiceName: m.ServiceName,
				Path:        m.Path,
				Params:      m.Params,
			})
		}
		state.Observability = &domain.ObservabilityConfig{Monitoring: monitoring}
	}

	return state
}

// foldOverlays groups the per-kind overlay lists into one row per
// (process, environment) pair.
func foldOverlays(ov *EnvOverlay) []domain.ProcessSpecEnvOverlay {
	type key struct {
		process string
		env     domain.Environment
	}
	order := []key{}
	folded := map[key]*domain.ProcessSpecEnvOverlay{}
	at := func(process string, envName string) *domain.ProcessSpecEnvOverlay {
		k := key{process, domain.Environment(envName)}
		if row, ok := folded[k]; ok {
			return row
		}
		row := &domain.ProcessSpecEnvOverlay{
			ProcessName: process,
			Environment: k.env,
		}
		folded[k] = row
		order = append(order, k)
		return row
	}

	for _, r := range ov.Replicas {
		count := r.Count
		at(r.Process, r.EnvName).TargetReplicas = &count
	}
	for _, r := range ov.ResQuotas {
		plan := domain.ResQuotaPlan(r.Plan)
		at(r.Process, r.EnvName).Plan = &plan
	}
	for _, a := range ov.Autoscaling {
		cfg := domain.AutoscalingConfig{
			MinReplicas: a.MinReplicas,
			MaxReplicas: a.MaxReplicas,
			Policy:      scalingPolicyOrDefault(a.Policy),
		}
		row := at(a.Process, a.EnvName)
		row.AutoscalingEnabled = pointer.Ref(true)
		row.Autoscaling = &cfg
	}

	rows := []domain.ProcessSpecEnvOverlay{}
	for _, k := range order {
		rows = append(rows, *folded[k])
	}
	return rows
}

func toProbe(p *Probe) *domain.Probe {
	if p == nil {
		return nil
	}
	out := &domain.Probe{
		InitialDelaySeconds: p.InitialDelaySeconds,
		TimeoutSeconds:      p.TimeoutSeconds,
		PeriodSeconds:       p.PeriodSeconds,
		SuccessThreshold:    p.SuccessThreshold,
		FailureThreshold:    p.FailureThreshold,
	}
	if p.Exec != nil {
		out.Handler.Exec = &domain.ExecAction{Command: p.Exec.Command}
	}
	if p.HTTPGet != nil {
		out.Handler.HTTPGet = &domain.HTTPGetAction{
			Path: p.HTTPGet.Path,
			Port: p.HTTPGet.Port,
			Host: p.HTTPGet.Host,
		}
	}
	if p.TCPSocket != nil {
		out.Handler.TCPSocket = &domain.TCPSocketAction{
			Port: p.TCPSocket.Port,
			Host: p.TCPSocket.Host,
		}
	}
	return out
}

func toMountSource(s MountSource) domain.MountSource {
	out := domain.MountSource{}
	if s.ConfigMap != nil {
		out.ConfigMap = &domain.ConfigMapSource{Name: s.ConfigMap.Name}
	}
	if s.PersistentStorage != nil {
		out.PersistentStorage = &domain.PersistentStorageSource{Name: s.PersistentStorage.Name}
	}
	return out
}
