package domain

import (
	"fmt"
	"time"
)

type DeployStatus string

const (
	DeployPending     DeployStatus = "pending"
	DeploySuccessful  DeployStatus = "successful"
	DeployFailed      DeployStatus = "failed"
	DeployInterrupted DeployStatus = "interrupted"
)

func AsDeployStatus(s string) (DeployStatus, error) {
	switch s {
	case string(DeployPending):
		return DeployPending, nil
	case string(DeploySuccessful):
		return DeploySuccessful, nil
	case string(DeployFailed):
		return DeployFailed, nil
	case string(DeployInterrupted):
		return DeployInterrupted, nil
	default:
		return "", fmt.Errorf("'%s' is not a deploy status", s)
	}
}

// Terminal reports whether the status admits no further transition.
func (s DeployStatus) Terminal() bool {
	switch s {
	case DeploySuccessful, DeployFailed, DeployInterrupted:
		return true
	default:
		return false
	}
}

type VersionType string

const (
	VersionBranch  VersionType = "branch"
	VersionTag     VersionType = "tag"
	VersionPackage VersionType = "package"
	VersionImage   VersionType = "image"
)

// VersionInfo names what is being deployed: a VCS revision, a source
// package version, or an image tag.
type VersionInfo struct {
	Type     VersionType
	Name     string
	Revision string
}

// AdvancedOptions tune a single deployment.
type AdvancedOptions struct {
	// deploy this image instead of building one.
	Image string

	// skip the build phase and reuse the given build artifact.
	BuildID string

	// extra dir within the source tree to deploy from.
	SourceDir string
}

// Deployment is one deploy attempt against a module environment.
//
// Immutable once its status is terminal.
type Deployment struct {
	ID            string
	EnvironmentID string
	Environment   Environment
	Operator      string
	Version       VersionInfo
	Advanced      AdvancedOptions

	Status DeployStatus

	// set once the build service accepted the build request.
	BuildProcessID string

	// set once the build reached a terminal state successfully.
	BuildID string

	ErrDetail string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type PhaseType string

const (
	PhasePreparation PhaseType = "preparation"
	PhaseBuild       PhaseType = "build"
	PhasePreRelease  PhaseType = "pre_release"
	PhaseRelease     PhaseType = "release"
)

// PhaseTypes lists the phases of a deployment, in execution order.
func PhaseTypes() []PhaseType {
	return []PhaseType{PhasePreparation, PhaseBuild, PhasePreRelease, PhaseRelease}
}

type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepRunning     StepStatus = "running"
	StepSuccessful  StepStatus = "successful"
	StepFailed      StepStatus = "failed"
	StepInterrupted StepStatus = "interrupted"
	StepSkipped     StepStatus = "skipped"
)

func (s StepStatus) Terminal() bool {
	switch s {
	case StepSuccessful, StepFailed, StepInterrupted, StepSkipped:
		return true
	default:
		return false
	}
}

// DeployPhase groups the steps of one pipeline phase.
//
// Phases are never deleted; each deployment creates its own set.
type DeployPhase struct {
	ID           string
	DeploymentID string
	Type         PhaseType
	Status       StepStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Steps        []DeployStep
}

type DeployStep struct {
	ID          string
	PhaseID     string
	Name        string
	Status      StepStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// step names per phase, in execution order.
var PhaseSteps = map[PhaseType][]string{
	PhasePreparation: {
		"parse app description",
		"upload source",
		"provision services",
	},
	PhaseBuild: {
		"invoke build",
		"build image",
	},
	PhasePreRelease: {
		"execute pre-release hook",
	},
	PhaseRelease: {
		"apply manifest",
		"wait for rollout",
	},
}
