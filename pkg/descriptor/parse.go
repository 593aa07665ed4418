package descriptor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// Parse decodes a BkApp v1alpha2 document, structurally validates it,
// and runs the domain rules. Any single violation fails the whole parse.
//
// envVarCeiling caps the number of env vars a module may declare,
// counting base and overlay entries together. Zero means no cap.
func Parse(raw []byte, envVarCeiling int) (*AppDescriptor, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewValidation("", fmt.Sprintf("not a yaml mapping: %s", err))
	}

	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	docLoader := gojsonschema.NewGoLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, domain.NewValidation("", err.Error())
	}
	if !result.Valid() {
		details := []string{}
		for _, verr := range result.Errors() {
			details = append(details, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}
		return nil, domain.NewValidation("", strings.Join(details, "; "))
	}

	var d AppDescriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, domain.NewValidation("", err.Error())
	}
	if err := d.validate(envVarCeiling); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *AppDescriptor) validate(envVarCeiling int) error {
	if len(d.Spec.Processes) == 0 {
		return domain.NewValidation("spec.processes", "at least one process is required")
	}

	seenProcs := map[string]struct{}{}
	bkHTTPCount := 0
	for _, proc := range d.Spec.Processes {
		if err := domain.ValidateProcessName(proc.Name); err != nil {
			return domain.NewValidation("spec.processes", err.Error())
		}
		if _, dup := seenProcs[proc.Name]; dup {
			return domain.NewValidation(
				"spec.processes", fmt.Sprintf("duplicate process name '%s'", proc.Name),
			)
		}
		seenProcs[proc.Name] = struct{}{}

		if len(proc.Command) != 0 && proc.ProcCommand != "" {
			return domain.NewValidation(
				"spec.processes",
				fmt.Sprintf("process '%s': command and procCommand are mutually exclusive", proc.Name),
			)
		}

		svcNames := map[string]struct{}{}
		svcPorts := map[int32]struct{}{}
		for _, svc := range proc.Services {
			if _, dup := svcNames[svc.Name]; dup {
				return domain.NewValidation(
					"spec.processes",
					fmt.Sprintf("process '%s': duplicate service name '%s'", proc.Name, svc.Name),
				)
			}
			svcNames[svc.Name] = struct{}{}
			if _, dup := svcPorts[svc.TargetPort]; dup {
				return domain.NewValidation(
					"spec.processes",
					fmt.Sprintf("process '%s': duplicate service targetPort %d", proc.Name, svc.TargetPort),
				)
			}
			svcPorts[svc.TargetPort] = struct{}{}

			if svc.ExposedType != nil {
				if svc.ExposedType.Name != domain.ExposedTypeBkHTTP {
					return domain.NewValidation(
						"spec.processes",
						fmt.Sprintf("service '%s': unknown exposedType '%s'", svc.Name, svc.ExposedType.Name),
					)
				}
				bkHTTPCount++
			}
		}

		if proc.Autoscaling != nil {
			if err := toAutoscaling(proc.Autoscaling).Validate(); err != nil {
				return domain.NewValidation("spec.processes", fmt.Sprintf("process '%s': %s", proc.Name, err))
			}
		}
	}
	if bkHTTPCount > 1 {
		return domain.NewValidation(
			"spec.processes",
			fmt.Sprintf("at most one service may carry exposedType %s, found %d", domain.ExposedTypeBkHTTP, bkHTTPCount),
		)
	}

	envVarCount := 0
	if d.Spec.Configuration != nil {
		for _, v := range d.Spec.Configuration.Env {
			if err := domain.ValidateEnvVarKey(v.Name); err != nil {
				return domain.NewValidation("spec.configuration.env", err.Error())
			}
			envVarCount++
		}
	}

	mountKey := func(env, path string) string { return env + ":" + path }
	seenMounts := map[string]struct{}{}
	for _, mt := range d.Spec.Mounts {
		if err := domain.ValidateMountPath(mt.MountPath); err != nil {
			return domain.NewValidation("spec.mounts", err.Error())
		}
		key := mountKey(string(domain.EnvGlobal), mt.MountPath)
		if _, dup := seenMounts[key]; dup {
			return domain.NewValidation(
				"spec.mounts", fmt.Sprintf("duplicate mount path '%s'", mt.MountPath),
			)
		}
		seenMounts[key] = struct{}{}
	}

	if ov := d.Spec.EnvOverlay; ov != nil {
		for _, r := range ov.Replicas {
			if err := validateOverlayTarget(r.EnvName, r.Process, seenProcs); err != nil {
				return err
			}
		}
		for _, r := range ov.ResQuotas {
			if err := validateOverlayTarget(r.EnvName, r.Process, seenProcs); err != nil {
				return err
			}
			if _, err := domain.AsResQuotaPlan(r.Plan); err != nil {
				return domain.NewValidation("spec.envOverlay.resQuotas", err.Error())
			}
		}
		for _, a := range ov.Autoscaling {
			if err := validateOverlayTarget(a.EnvName, a.Process, seenProcs); err != nil {
				return err
			}
			cfg := domain.AutoscalingConfig{
				MinReplicas: a.MinReplicas,
				MaxReplicas: a.MaxReplicas,
				Policy:      scalingPolicyOrDefault(a.Policy),
			}
			if err := cfg.Validate(); err != nil {
				return domain.NewValidation("spec.envOverlay.autoscaling", err.Error())
			}
		}
		for _, v := range ov.EnvVariables {
			if _, err := domain.AsEnvironment(v.EnvName); err != nil {
				return domain.NewValidation("spec.envOverlay.envVariables", err.Error())
			}
			if err := domain.ValidateEnvVarKey(v.Name); err != nil {
				return domain.NewValidation("spec.envOverlay.envVariables", err.Error())
			}
			envVarCount++
		}
		for _, mt := range ov.Mounts {
			if _, err := domain.AsEnvironment(mt.EnvName); err != nil {
				return domain.NewValidation("spec.envOverlay.mounts", err.Error())
			}
			if err := domain.ValidateMountPath(mt.MountPath); err != nil {
				return domain.NewValidation("spec.envOverlay.mounts", err.Error())
			}
			key := mountKey(mt.EnvName, mt.MountPath)
			if _, dup := seenMounts[key]; dup {
				return domain.NewValidation(
					"spec.envOverlay.mounts",
					fmt.Sprintf("duplicate mount path '%s' in environment %s", mt.MountPath, mt.EnvName),
				)
			}
			seenMounts[key] = struct{}{}
		}
	}

	if envVarCeiling > 0 && envVarCount > envVarCeiling {
		return domain.NewValidation(
			"spec.configuration.env",
			fmt.Sprintf("%d env vars declared, at most %d allowed", envVarCount, envVarCeiling),
		)
	}

	if d.Spec.Observability != nil && d.Spec.Observability.Monitoring != nil {
		for _, m := range d.Spec.Observability.Monitoring.Metrics {
			if _, ok := seenProcs[m.Process]; !ok {
				return domain.NewValidation(
					"spec.observability",
					fmt.Sprintf("metric targets unknown process '%s'", m.Process),
				)
			}
		}
	}

	return nil
}

func validateOverlayTarget(envName string, process string, procs map[string]struct{}) error {
	if _, err := domain.AsEnvironment(envName); err != nil {
		return domain.NewValidation("spec.envOverlay", err.Error())
	}
	if _, ok := procs[process]; !ok {
		return domain.NewValidation(
			"spec.envOverlay", fmt.Sprintf("overlay targets unknown process '%s'", process),
		)
	}
	return nil
}

func scalingPolicyOrDefault(policy string) domain.ScalingPolicy {
	if policy == "" {
		return domain.ScalingPolicyDefault
	}
	return domain.ScalingPolicy(policy)
}

func toAutoscaling(a *Autoscaling) domain.AutoscalingConfig {
	return domain.AutoscalingConfig{
		MinReplicas: a.MinReplicas,
		MaxReplicas: a.MaxReplicas,
		Policy:      scalingPolicyOrDefault(a.Policy),
	}
}
