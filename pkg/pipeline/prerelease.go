package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	prock8s "github.com/tencentblueking/bkpaas-core/pkg/domain/process/k8s"
	"github.com/tencentblueking/bkpaas-core/pkg/loop"
)

const stepExecuteHook = "execute pre-release hook"

// preRelease runs the module's pre-release hook as a transient pod in
// the target namespace and waits for its terminal phase.
func (p *Pipeline) preRelease(ctx context.Context, t *target) error {
	hook, err := p.Apps.GetHook(ctx, t.module.ID, domain.HookPreRelease)
	if errors.Is(err, domain.ErrMissing) || (err == nil && !hook.Enabled) {
		p.skipStep(ctx, t.d.ID, domain.PhasePreRelease, stepExecuteHook)
		return nil
	}
	if err != nil {
		return err
	}
	return p.runStep(ctx, t.d.ID, domain.PhasePreRelease, stepExecuteHook, func(ctx context.Context) error {
		return p.runHookPod(ctx, t, hook)
	})
}

func (p *Pipeline) runHookPod(ctx context.Context, t *target, hook domain.ModuleDeployHook) error {
	clients, err := p.Kube.ClientFor(ctx, t.cluster)
	if err != nil {
		return err
	}

	env, err := p.presetEnv(ctx, t)
	if err != nil {
		return err
	}
	pod := hookPod(t, hook, env)
	pods := clients.Clientset.CoreV1().Pods(t.env.EngineApp.Namespace)

	// a leftover pod of an earlier attempt blocks creation.
	if err := pods.Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil && !k8serrors.IsNotFound(err) {
		return err
	}
	if _, err := pods.Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return err
	}
	defer func() {
		if err := pods.Delete(context.Background(), pod.Name, metav1.DeleteOptions{}); err != nil && !k8serrors.IsNotFound(err) {
			p.Logger.Printf("clean up hook pod %s: %v", pod.Name, err)
		}
	}()

	deadline := time.Now().Add(p.Config.HookTimeout)
	_, err = loop.Start(ctx, struct{}{}, func(ctx context.Context, s struct{}) (struct{}, loop.Next) {
		if time.Now().After(deadline) {
			return s, loop.Break(&domain.Error{
				Kind: domain.KindTimeout, Code: "HOOK_TIMEOUT",
				Message: fmt.Sprintf("pre-release hook did not finish within %s", p.Config.HookTimeout),
			})
		}
		if err := p.checkInterrupt(ctx, t.d.ID); err != nil {
			return s, loop.Break(err)
		}
		if err := p.renewLock(t.d.EnvironmentID, t.d.ID)(ctx); err != nil {
			return s, loop.Break(err)
		}

		got, err := pods.Get(ctx, pod.Name, metav1.GetOptions{})
		if err != nil {
			return s, loop.Break(err)
		}
		switch got.Status.Phase {
		case corev1.PodSucceeded:
			return s, loop.Break(nil)
		case corev1.PodFailed:
			return s, loop.Break(domain.NewExternal(
				"HOOK_FAILED",
				fmt.Sprintf("pre-release hook failed: %s", podFailure(got)),
				nil,
			))
		default:
			return s, loop.Continue(p.Config.PollInterval)
		}
	})
	return err
}

func hookPod(t *target, hook domain.ModuleDeployHook, env map[string]string) *corev1.Pod {
	command, args := hook.Command, hook.Args
	if hook.ProcCommand != "" {
		command, args = []string{"/bin/sh", "-c"}, []string{hook.ProcCommand}
	}

	var podEnv []corev1.EnvVar
	for key, value := range env {
		podEnv = append(podEnv, corev1.EnvVar{Name: key, Value: value})
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: fmt.Sprintf("pre-release-hook-%s", t.env.EngineApp.Name),
			Labels: map[string]string{
				prock8s.LabelWlAppName:    t.env.EngineApp.Name,
				prock8s.LabelAppCode:      t.app.Code,
				prock8s.LabelModuleName:   t.module.Name,
				prock8s.LabelEnvironment:  string(t.env.Environment),
				prock8s.LabelResourceType: "hook",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    "hook",
				Image:   t.runImage(),
				Command: command,
				Args:    args,
				Env:     podEnv,
			}},
		},
	}
}

func podFailure(pod *corev1.Pod) string {
	for _, status := range pod.Status.ContainerStatuses {
		if term := status.State.Terminated; term != nil && term.ExitCode != 0 {
			if term.Message != "" {
				return term.Message
			}
			return fmt.Sprintf("exit code %d (%s)", term.ExitCode, term.Reason)
		}
	}
	if pod.Status.Message != "" {
		return pod.Status.Message
	}
	return "pod phase Failed"
}
