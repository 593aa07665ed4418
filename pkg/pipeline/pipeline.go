// Package pipeline runs one deployment from pending to a terminal
// status through the four phases: preparation, build, pre_release and
// release.
//
// Progress is cooperative. The interrupt flag is read between steps
// and inside every polling loop; on detection the running step is
// marked interrupted and everything after it skipped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
	"github.com/tencentblueking/bkpaas-core/pkg/descriptor"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/allocator"
	clusterdb "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/k8s"
	depdb "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db"
	"github.com/tencentblueking/bkpaas-core/pkg/importer"
	"github.com/tencentblueking/bkpaas-core/pkg/objstore"
	"github.com/tencentblueking/bkpaas-core/pkg/sourceexport"
)

// Config tunes the pipeline's timeouts and limits. All timeouts are
// wall-clock, measured from the phase's start.
type Config struct {
	// overall build timeout, measured from the poller's first tick.
	BuildTimeout time.Duration

	// pre-release hook pod timeout.
	HookTimeout time.Duration

	// rollout readiness timeout after the manifest is applied.
	RolloutTimeout time.Duration

	// coordinator lock TTL; renewed on every poll tick.
	LockTTL time.Duration

	// interval of all polling loops.
	PollInterval time.Duration

	// compressed source archives above this emit a warning. 0 disables.
	ArchiveSizeWarnBytes int64

	// per-module env var cap enforced on descriptors. 0 disables.
	EnvVarCeiling int

	// root of per-deployment scratch dirs. Empty means os.TempDir.
	WorkDir string
}

// ExporterFactory gives the exporter handling the module's source
// origin, with its repository bindings resolved.
type ExporterFactory func(app domain.Application, module domain.Module) (sourceexport.Exporter, error)

// AddonProvisioner binds declared add-on service instances that the
// module has not provisioned yet.
type AddonProvisioner interface {
	Provision(ctx context.Context, appCode string, moduleName string, env domain.Environment, addons []descriptor.Addon) error
}

type Pipeline struct {
	Deployments depdb.Interface
	Apps        appdb.Interface
	Clusters    clusterdb.Registry
	Allocator   allocator.Allocator
	Kube        k8s.Factory
	Builds      buildsvc.Client
	Store       objstore.Store
	Importer    importer.Importer
	Exporters   ExporterFactory

	// nil when the deployment has no add-on collaborator.
	Addons AddonProvisioner

	Config Config
	Logger *log.Logger
}

// target is the resolved deploy destination plus state threaded
// between phases of one run.
type target struct {
	d       domain.Deployment
	app     domain.Application
	module  domain.Module
	env     domain.ModuleEnvironment
	cluster string

	// produced by preparation.
	state        *descriptor.ModuleState
	procfile     map[string]string
	sourceTarKey string

	// produced by the build phase for built modules.
	builtImage string
}

// runImage is the image the released workload and the pre-release
// hook run with.
func (t *target) runImage() string {
	if t.d.Advanced.Image != "" {
		return t.d.Advanced.Image
	}
	if t.module.SourceOrigin == domain.OriginImageRegistry {
		return t.d.Version.Name
	}
	return t.builtImage
}

// Run drives the deployment to a terminal status. It acquires the
// per-environment coordinator lock first and releases it on every
// terminal path.
func (p *Pipeline) Run(ctx context.Context, deploymentID string) error {
	d, err := p.Deployments.Get(ctx, deploymentID)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return nil
	}

	held, err := p.Deployments.AcquireLock(ctx, d.EnvironmentID, d.ID, p.Config.LockTTL)
	if err != nil {
		return err
	}
	if !held {
		ferr := domain.ErrCannotDeployOngoingExists
		_ = p.Deployments.Finish(ctx, d.ID, domain.DeployFailed, ferr.Message)
		return ferr
	}

	t, err := p.resolveTarget(ctx, d)
	if err != nil {
		p.terminate(ctx, d.ID, domain.PhasePreparation, err)
		return err
	}

	phases := []struct {
		typ domain.PhaseType
		fn  func(context.Context, *target) error
	}{
		{domain.PhasePreparation, p.preparation},
		{domain.PhaseBuild, p.build},
		{domain.PhasePreRelease, p.preRelease},
		{domain.PhaseRelease, p.release},
	}
	for _, phase := range phases {
		if err := p.checkInterrupt(ctx, d.ID); err != nil {
			p.terminate(ctx, d.ID, phase.typ, err)
			return err
		}
		if err := p.Deployments.StartPhase(ctx, d.ID, phase.typ); err != nil {
			p.terminate(ctx, d.ID, phase.typ, err)
			return err
		}
		if err := phase.fn(ctx, t); err != nil {
			p.terminate(ctx, d.ID, phase.typ, err)
			return err
		}
		if err := p.Deployments.FinishPhase(ctx, d.ID, phase.typ, domain.StepSuccessful); err != nil {
			p.terminate(ctx, d.ID, phase.typ, err)
			return err
		}
	}
	return p.Deployments.Finish(ctx, d.ID, domain.DeploySuccessful, "")
}

// Interrupt flags a running deployment for cooperative interruption.
// Detection latency is one poll tick at worst.
func (p *Pipeline) Interrupt(ctx context.Context, deploymentID string) error {
	return p.Deployments.RequestInterrupt(ctx, deploymentID)
}

func (p *Pipeline) resolveTarget(ctx context.Context, d domain.Deployment) (*target, error) {
	env, err := p.Apps.GetEnvironmentByID(ctx, d.EnvironmentID)
	if err != nil {
		return nil, err
	}
	module, err := p.Apps.GetModuleByID(ctx, env.ModuleID)
	if err != nil {
		return nil, err
	}
	app, err := p.Apps.GetApplicationByID(ctx, module.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !app.IsActive {
		return nil, domain.ErrCannotDeployApp
	}

	cluster := env.EngineApp.ClusterName
	if cluster == "" {
		names, err := p.Allocator.Allocate(
			ctx, app.AppTenantID, env.Environment,
			domain.MatcherContext{Region: app.Region},
		)
		if err != nil {
			return nil, err
		}
		cluster = names[0]
		if err := p.Apps.BindEngineAppCluster(ctx, env.ID, cluster); err != nil {
			return nil, err
		}
		env.EngineApp.ClusterName = cluster
	}

	return &target{d: d, app: app, module: module, env: env, cluster: cluster}, nil
}

// terminate closes phase/step records and the deployment itself after
// a failure or interruption detected while phase was current.
func (p *Pipeline) terminate(ctx context.Context, deploymentID string, phase domain.PhaseType, cause error) {
	interrupted := errors.Is(cause, domain.ErrDeployInterrupted)

	phaseStatus := domain.StepFailed
	deployStatus, detail := domain.DeployFailed, cause.Error()
	if interrupted {
		phaseStatus = domain.StepInterrupted
		deployStatus, detail = domain.DeployInterrupted, ""
	}

	// the step which observed the failure or the flag is already
	// closed; anything still pending was never reached.
	p.skipPendingSteps(ctx, deploymentID)
	if err := p.Deployments.FinishPhase(ctx, deploymentID, phase, phaseStatus); err != nil {
		p.Logger.Printf("close phase %s of deployment %s: %v", phase, deploymentID, err)
	}
	past := false
	for _, typ := range domain.PhaseTypes() {
		if typ == phase {
			past = true
			continue
		}
		if !past {
			continue
		}
		if err := p.Deployments.FinishPhase(ctx, deploymentID, typ, domain.StepSkipped); err != nil {
			p.Logger.Printf("close phase %s of deployment %s: %v", typ, deploymentID, err)
		}
	}
	if err := p.Deployments.Finish(ctx, deploymentID, deployStatus, detail); err != nil {
		p.Logger.Printf("finish deployment %s: %v", deploymentID, err)
	}
}

func (p *Pipeline) skipPendingSteps(ctx context.Context, deploymentID string) {
	phases, err := p.Deployments.Phases(ctx, deploymentID)
	if err != nil {
		p.Logger.Printf("list phases of deployment %s: %v", deploymentID, err)
		return
	}
	for _, phase := range phases {
		for _, step := range phase.Steps {
			if step.Status != domain.StepPending {
				continue
			}
			if err := p.Deployments.FinishStep(
				ctx, deploymentID, phase.Type, step.Name, domain.StepSkipped,
			); err != nil {
				p.Logger.Printf("skip step '%s': %v", step.Name, err)
			}
		}
	}
}

func (p *Pipeline) checkInterrupt(ctx context.Context, deploymentID string) error {
	interrupted, err := p.Deployments.InterruptRequested(ctx, deploymentID)
	if err != nil {
		return err
	}
	if interrupted {
		return domain.ErrDeployInterrupted
	}
	return nil
}

// renewLock keeps the coordinator lock of the deployment alive during
// long polling loops.
func (p *Pipeline) renewLock(environmentID string, deploymentID string) func(context.Context) error {
	return func(ctx context.Context) error {
		held, err := p.Deployments.AcquireLock(ctx, environmentID, deploymentID, p.Config.LockTTL)
		if err != nil {
			return err
		}
		if !held {
			return fmt.Errorf("coordinator lock of environment %s was taken over", environmentID)
		}
		return nil
	}
}

// runStep executes one step with interrupt checks at its boundaries
// and persists its status transitions.
func (p *Pipeline) runStep(
	ctx context.Context,
	deploymentID string, phase domain.PhaseType, step string,
	fn func(context.Context) error,
) error {
	if err := p.checkInterrupt(ctx, deploymentID); err != nil {
		return err
	}
	if err := p.Deployments.StartStep(ctx, deploymentID, phase, step); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		status := domain.StepFailed
		if errors.Is(err, domain.ErrDeployInterrupted) {
			status = domain.StepInterrupted
		}
		if ferr := p.Deployments.FinishStep(ctx, deploymentID, phase, step, status); ferr != nil {
			p.Logger.Printf("close step '%s': %v", step, ferr)
		}
		return err
	}
	return p.Deployments.FinishStep(ctx, deploymentID, phase, step, domain.StepSuccessful)
}

func (p *Pipeline) skipStep(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) {
	if err := p.Deployments.FinishStep(ctx, deploymentID, phase, step, domain.StepSkipped); err != nil {
		p.Logger.Printf("skip step '%s': %v", step, err)
	}
}
