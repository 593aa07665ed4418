package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/k8s"
	"github.com/tencentblueking/bkpaas-core/pkg/loop"
	"github.com/tencentblueking/bkpaas-core/pkg/manifestwriter"
	"github.com/tencentblueking/bkpaas-core/pkg/synthesizer"
)

const (
	stepApplyManifest  = "apply manifest"
	stepWaitForRollout = "wait for rollout"
)

// Operator-reported resource phases.
const (
	statusAppPending = "AppPending"
	statusAppRunning = "AppRunning"
	statusAppFailed  = "AppFailed"
)

// release synthesizes the BkApp manifest, applies it, and waits for
// the operator to report the rollout running.
func (p *Pipeline) release(ctx context.Context, t *target) error {
	clients, err := p.Kube.ClientFor(ctx, t.cluster)
	if err != nil {
		return err
	}
	gvr, err := k8s.PreferredBkAppGVR(clients.Discovery)
	if err != nil {
		return err
	}
	writer := manifestwriter.New(clients.Dynamic, gvr, p.Logger)

	synth := synthesizer.New(p.Apps, synthesizer.NewAddressResolver(p.Clusters, t.cluster))
	manifest, err := synth.Synthesize(ctx, synthesizer.DeployContext{
		App:           t.app,
		Module:        t.module,
		Environment:   t.env.Environment,
		EngineAppName: t.env.EngineApp.Name,
		Image:         t.runImage(),
	})
	if err != nil {
		return err
	}
	namespace := t.env.EngineApp.Namespace
	name := manifestName(manifest)

	err = p.runStep(ctx, t.d.ID, domain.PhaseRelease, stepApplyManifest, func(ctx context.Context) error {
		return writer.Apply(ctx, namespace, manifest)
	})
	if err != nil {
		return err
	}

	return p.runStep(ctx, t.d.ID, domain.PhaseRelease, stepWaitForRollout, func(ctx context.Context) error {
		return p.waitForRollout(ctx, t, writer, namespace, name)
	})
}

func (p *Pipeline) waitForRollout(
	ctx context.Context, t *target, writer manifestwriter.Writer, namespace string, name string,
) error {
	deadline := time.Now().Add(p.Config.RolloutTimeout)
	_, err := loop.Start(ctx, struct{}{}, func(ctx context.Context, s struct{}) (struct{}, loop.Next) {
		if time.Now().After(deadline) {
			return s, loop.Break(&domain.Error{
				Kind: domain.KindTimeout, Code: "ROLLOUT_TIMEOUT",
				Message: fmt.Sprintf("workload did not reach %s within %s", statusAppRunning, p.Config.RolloutTimeout),
			})
		}
		if err := p.checkInterrupt(ctx, t.d.ID); err != nil {
			return s, loop.Break(err)
		}
		if err := p.renewLock(t.d.EnvironmentID, t.d.ID)(ctx); err != nil {
			return s, loop.Break(err)
		}

		phase, err := writer.StatusPhase(ctx, namespace, name)
		if err != nil {
			return s, loop.Break(err)
		}
		switch phase {
		case statusAppRunning:
			return s, loop.Break(nil)
		case statusAppFailed:
			return s, loop.Break(domain.NewExternal(
				"ROLLOUT_FAILED", "the operator reported the rollout failed", nil,
			))
		default:
			// "", AppPending, or an intermediate phase: keep waiting.
			return s, loop.Continue(p.Config.PollInterval)
		}
	})
	return err
}

func manifestName(manifest map[string]any) string {
	meta, ok := manifest["metadata"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := meta["name"].(string)
	return name
}
