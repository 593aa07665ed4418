package db

import (
	"context"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// Interface persists deployments, their phase/step progress, and the
// per-environment coordinator lock.
type Interface interface {
	// Create stores a new pending deployment and its full phase/step
	// skeleton. Fails with domain.ErrCannotDeployOngoingExists when the
	// environment already has a non-terminal deployment.
	Create(ctx context.Context, d domain.Deployment) (domain.Deployment, error)

	// Get returns the deployment. domain.ErrDeploymentNotFound when unknown.
	Get(ctx context.Context, id string) (domain.Deployment, error)

	// Latest returns the most recent deployment of the environment.
	// domain.ErrDeploymentNotFound when the environment has none.
	Latest(ctx context.Context, environmentID string) (domain.Deployment, error)

	// ListPending returns the non-terminal deployments, oldest first.
	// This is the worker's task queue.
	ListPending(ctx context.Context) ([]domain.Deployment, error)

	// Finish moves the deployment to a terminal status with an optional
	// error detail, and releases the coordinator lock it holds.
	Finish(ctx context.Context, id string, status domain.DeployStatus, errDetail string) error

	// SetBuildProcessID records the id the build service assigned.
	SetBuildProcessID(ctx context.Context, id string, buildProcessID string) error

	// SetBuildID records the finished build artifact.
	SetBuildID(ctx context.Context, id string, buildID string) error

	// RequestInterrupt flags a running deployment for interruption.
	// domain.ErrDeployInterruptionFailed when the deployment is already
	// terminal.
	RequestInterrupt(ctx context.Context, id string) error

	// InterruptRequested reads the interruption flag.
	InterruptRequested(ctx context.Context, id string) (bool, error)

	// TouchPolling marks build-poller liveness on the deployment.
	TouchPolling(ctx context.Context, id string, at time.Time) error

	// PollingTouchedAt reads the poller-liveness stamp; ok is false
	// when no poll tick has touched the deployment yet.
	PollingTouchedAt(ctx context.Context, id string) (at time.Time, ok bool, err error)

	// Phases returns the deployment's phases with steps, in execution order.
	Phases(ctx context.Context, deploymentID string) ([]domain.DeployPhase, error)

	// StartPhase moves the phase to running and stamps its start time.
	StartPhase(ctx context.Context, deploymentID string, phase domain.PhaseType) error

	// FinishPhase moves the phase to a terminal status. Steps of the
	// phase still pending or running are closed with the same status.
	FinishPhase(ctx context.Context, deploymentID string, phase domain.PhaseType, status domain.StepStatus) error

	// StartStep moves the named step of the phase to running.
	StartStep(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error

	// FinishStep moves the named step to a terminal status.
	FinishStep(ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus) error

	// AcquireLock takes the environment's coordinator lock for the
	// deployment. It succeeds when no lock row exists, when the existing
	// row has expired, or when the deployment already holds it (renewal).
	AcquireLock(ctx context.Context, environmentID string, deploymentID string, ttl time.Duration) (bool, error)

	// ReleaseLock frees the lock if the deployment holds it.
	ReleaseLock(ctx context.Context, environmentID string, deploymentID string) error
}
