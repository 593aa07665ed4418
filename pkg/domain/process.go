package domain

import (
	"fmt"
	"regexp"

	"github.com/tencentblueking/bkpaas-core/pkg/utils/cmp"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/pointer"
)

var rxProcessName = regexp.MustCompile(`^[a-z][a-z0-9-]{0,11}$`)

func ValidateProcessName(name string) error {
	if !rxProcessName.MatchString(name) {
		return fmt.Errorf("process name '%s': lowercase alnum/hyphen, at most 12 chars, starting with a letter", name)
	}
	return nil
}

// ResQuotaPlan names a predefined resource quota.
type ResQuotaPlan string

const (
	PlanDefault ResQuotaPlan = "default"
	Plan4C1G    ResQuotaPlan = "4c1g"
	Plan4C2G    ResQuotaPlan = "4c2g"
	Plan4C4G    ResQuotaPlan = "4c4g"
)

func AsResQuotaPlan(s string) (ResQuotaPlan, error) {
	switch s {
	case string(PlanDefault):
		return PlanDefault, nil
	case string(Plan4C1G):
		return Plan4C1G, nil
	case string(Plan4C2G):
		return Plan4C2G, nil
	case string(Plan4C4G):
		return Plan4C4G, nil
	default:
		return "", fmt.Errorf("'%s' is not a resource quota plan", s)
	}
}

// ScalingPolicy names an autoscaling policy. Only "default" exists today.
type ScalingPolicy string

const ScalingPolicyDefault ScalingPolicy = "default"

type AutoscalingConfig struct {
	MinReplicas int
	MaxReplicas int
	Policy      ScalingPolicy
}

func (a AutoscalingConfig) Validate() error {
	if a.MinReplicas < 1 {
		return fmt.Errorf("autoscaling: minReplicas must be >= 1, got %d", a.MinReplicas)
	}
	if a.MaxReplicas < a.MinReplicas {
		return fmt.Errorf(
			"autoscaling: maxReplicas (%d) must be >= minReplicas (%d)",
			a.MaxReplicas, a.MinReplicas,
		)
	}
	if a.Policy != ScalingPolicyDefault {
		return fmt.Errorf("autoscaling: unknown policy '%s'", a.Policy)
	}
	return nil
}

type ServiceProtocol string

const (
	ProtocolTCP ServiceProtocol = "TCP"
	ProtocolUDP ServiceProtocol = "UDP"
)

// ExposedTypeBkHTTP marks the single module-wide HTTP entrance.
const ExposedTypeBkHTTP = "bk/http"

// ProcService is a port a process exposes inside (or outside) the cluster.
type ProcService struct {
	Name       string
	TargetPort int32
	Protocol   ServiceProtocol

	// nil means cluster-internal only.
	ExposedType *string

	// nil means: same as TargetPort.
	Port *int32
}

func (s ProcService) Equal(o ProcService) bool {
	return s.Name == o.Name &&
		s.TargetPort == o.TargetPort &&
		s.Protocol == o.Protocol &&
		pointer.SafeDeref(s.ExposedType) == pointer.SafeDeref(o.ExposedType) &&
		pointer.SafeDeref(s.Port) == pointer.SafeDeref(o.Port)
}

type ProbeType string

const (
	ProbeLiveness  ProbeType = "liveness"
	ProbeReadiness ProbeType = "readiness"
	ProbeStartup   ProbeType = "startup"
)

// ProbeHandler is a tagged variant: exactly one field is non-nil.
type ProbeHandler struct {
	Exec      *ExecAction
	HTTPGet   *HTTPGetAction
	TCPSocket *TCPSocketAction
}

type ExecAction struct {
	Command []string
}

type HTTPGetAction struct {
	Path string
	Port int32
	Host string
}

type TCPSocketAction struct {
	Port int32
	Host string
}

type Probe struct {
	Handler             ProbeHandler
	InitialDelaySeconds int32
	TimeoutSeconds      int32
	PeriodSeconds       int32
	SuccessThreshold    int32
	FailureThreshold    int32
}

func (h ProbeHandler) Equal(o ProbeHandler) bool {
	if (h.Exec == nil) != (o.Exec == nil) ||
		(h.HTTPGet == nil) != (o.HTTPGet == nil) ||
		(h.TCPSocket == nil) != (o.TCPSocket == nil) {
		return false
	}
	if h.Exec != nil && !cmp.SliceEq(h.Exec.Command, o.Exec.Command) {
		return false
	}
	if h.HTTPGet != nil && *h.HTTPGet != *o.HTTPGet {
		return false
	}
	if h.TCPSocket != nil && *h.TCPSocket != *o.TCPSocket {
		return false
	}
	return true
}

func (p Probe) Equal(o Probe) bool {
	return p.Handler.Equal(o.Handler) &&
		p.InitialDelaySeconds == o.InitialDelaySeconds &&
		p.TimeoutSeconds == o.TimeoutSeconds &&
		p.PeriodSeconds == o.PeriodSeconds &&
		p.SuccessThreshold == o.SuccessThreshold &&
		p.FailureThreshold == o.FailureThreshold
}

type ProbeSet struct {
	Liveness  *Probe
	Readiness *Probe
	Startup   *Probe
}

func (s ProbeSet) Equal(o ProbeSet) bool {
	eq := func(a, b *Probe) bool {
		if (a == nil) != (b == nil) {
			return false
		}
		return a == nil || a.Equal(*b)
	}
	return eq(s.Liveness, o.Liveness) &&
		eq(s.Readiness, o.Readiness) &&
		eq(s.Startup, o.Startup)
}

// ModuleProcessSpec declares one long-running process type of a module.
//
// Its lifecycle is owned by the descriptor importer: after initial
// creation the importer's syncer is the sole writer.
type ModuleProcessSpec struct {
	ID       string
	ModuleID string
	Name     string

	// Command+Args, or ProcCommand as one shell line. Not both.
	Command     []string
	Args        []string
	ProcCommand string

	TargetPort     int32
	Plan           ResQuotaPlan
	TargetReplicas int

	AutoscalingEnabled bool
	Autoscaling        *AutoscalingConfig

	Probes   ProbeSet
	Services []ProcService
}

func (p ModuleProcessSpec) Equal(o ModuleProcessSpec) bool {
	return p.Name == o.Name &&
		cmp.SliceEq(p.Command, o.Command) &&
		cmp.SliceEq(p.Args, o.Args) &&
		p.ProcCommand == o.ProcCommand &&
		p.TargetPort == o.TargetPort &&
		p.Plan == o.Plan &&
		p.TargetReplicas == o.TargetReplicas &&
		p.AutoscalingEnabled == o.AutoscalingEnabled &&
		pointer.SafeDeref(p.Autoscaling) == pointer.SafeDeref(o.Autoscaling) &&
		p.Probes.Equal(o.Probes) &&
		cmp.SliceEqWith(p.Services, o.Services, ProcService.Equal)
}

// ProcessSpecEnvOverlay overrides parts of a process spec per environment.
//
// A nil field means "inherit from the base spec".
type ProcessSpecEnvOverlay struct {
	ID         string
	ProcSpecID string

	// name of the process the overlay targets; resolved to ProcSpecID
	// on write, filled on read.
	ProcessName string

	Environment Environment

	TargetReplicas     *int
	Plan               *ResQuotaPlan
	AutoscalingEnabled *bool
	Autoscaling        *AutoscalingConfig
}

func (ov ProcessSpecEnvOverlay) Equal(o ProcessSpecEnvOverlay) bool {
	return ov.ProcessName == o.ProcessName &&
		ov.Environment == o.Environment &&
		pointer.SafeDeref(ov.TargetReplicas) == pointer.SafeDeref(o.TargetReplicas) &&
		pointer.SafeDeref(ov.Plan) == pointer.SafeDeref(o.Plan) &&
		pointer.SafeDeref(ov.AutoscalingEnabled) == pointer.SafeDeref(o.AutoscalingEnabled) &&
		pointer.SafeDeref(ov.Autoscaling) == pointer.SafeDeref(o.Autoscaling)
}
