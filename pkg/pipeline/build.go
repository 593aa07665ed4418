package pipeline

import (
	"context"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	"github.com/tencentblueking/bkpaas-core/pkg/pipeline/buildpoll"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/maps"
)

const (
	stepInvokeBuild = "invoke build"
	stepBuildImage  = "build image"
)

// build submits the build request and polls it to a terminal status.
//
// Image deployments and build-reuse deployments skip the phase.
func (p *Pipeline) build(ctx context.Context, t *target) error {
	if t.module.SourceOrigin == domain.OriginImageRegistry || t.d.Advanced.Image != "" {
		p.skipStep(ctx, t.d.ID, domain.PhaseBuild, stepInvokeBuild)
		p.skipStep(ctx, t.d.ID, domain.PhaseBuild, stepBuildImage)
		return nil
	}
	if t.d.Advanced.BuildID != "" {
		if err := p.Deployments.SetBuildID(ctx, t.d.ID, t.d.Advanced.BuildID); err != nil {
			return err
		}
		state, err := p.Builds.State(ctx, t.d.Advanced.BuildID)
		if err != nil {
			return err
		}
		t.builtImage = state.Image
		p.skipStep(ctx, t.d.ID, domain.PhaseBuild, stepInvokeBuild)
		p.skipStep(ctx, t.d.ID, domain.PhaseBuild, stepBuildImage)
		return nil
	}

	if err := p.checkInterrupt(ctx, t.d.ID); err != nil {
		return err
	}
	if err := p.Deployments.StartStep(ctx, t.d.ID, domain.PhaseBuild, stepInvokeBuild); err != nil {
		return err
	}

	env, err := p.presetEnv(ctx, t)
	if err != nil {
		return err
	}
	p.Logger.Printf(
		"deployment %s: submitting build of %s '%s' (processes: %v)",
		t.d.ID, t.d.Version.Type, t.d.Version.Name, maps.KeysOf(t.procfile),
	)
	buildProcessID, err := p.Builds.Submit(ctx, buildsvc.BuildRequest{
		VersionInfo:   t.d.Version,
		SourceTarPath: t.sourceTarKey,
		Procfile:      t.procfile,
		Env:           env,
	})
	if err != nil {
		_ = p.Deployments.FinishStep(ctx, t.d.ID, domain.PhaseBuild, stepInvokeBuild, domain.StepFailed)
		return err
	}
	if err := p.Deployments.SetBuildProcessID(ctx, t.d.ID, buildProcessID); err != nil {
		return err
	}

	poller := &buildpoll.Poller{
		Builds:         p.Builds,
		Deployments:    p.Deployments,
		Logger:         p.Logger,
		OverallTimeout: p.Config.BuildTimeout,
		Tick:           p.Config.PollInterval,
		RenewLock:      p.renewLock(t.d.EnvironmentID, t.d.ID),
	}
	final, err := poller.Wait(ctx, t.d.ID, buildProcessID)
	if err != nil {
		return err
	}

	switch final.Status {
	case buildsvc.BuildSuccessful:
		if err := p.Deployments.SetBuildID(ctx, t.d.ID, final.BuildID); err != nil {
			return err
		}
		t.builtImage = final.Image
		return nil
	case buildsvc.BuildInterrupted:
		return domain.ErrDeployInterrupted
	default:
		return domain.NewExternal(
			"BUILD_FAILED", "build service reported failure: "+final.Message, nil,
		)
	}
}

// presetEnv collects the env vars of the target environment: the
// global scope overlaid by the environment scope.
func (p *Pipeline) presetEnv(ctx context.Context, t *target) (map[string]string, error) {
	vars, err := p.Apps.ListEnvVars(ctx, t.module.ID)
	if err != nil {
		return nil, err
	}
	env := map[string]string{}
	for _, v := range vars {
		if v.Environment == domain.EnvGlobal {
			env[v.Key] = v.Value
		}
	}
	for _, v := range vars {
		if v.Environment == t.env.Environment {
			env[v.Key] = v.Value
		}
	}
	return env, nil
}
