// Package k8s surfaces running app processes from target clusters.
package k8s

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

// MaxWatchSeconds caps every watch; longer requests are clamped.
const MaxWatchSeconds int64 = 120

// Target names the environment whose processes are being inspected.
type Target struct {
	EngineApp   domain.EngineApp
	Module      domain.Module
	Environment domain.Environment
	AppType     domain.AppType
}

// Process is the runtime view of one process type.
type Process struct {
	Type     string
	Replicas int32

	// ready replica count.
	Success int32
	Failed  int32
}

// InstanceStateStarting replaces Running for pods not yet ready.
const InstanceStateStarting = "Starting"

// Instance is one pod of a process.
type Instance struct {
	Name        string
	ProcessType string
	State       string
	Ready       bool
	Restarts    int32
}

type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
	EventError    EventType = "ERROR"
)

// Event is one element of a merged process/instance watch stream.
type Event struct {
	Type EventType

	// "process" or "instance".
	Kind string

	ResourceVersion string

	Process  *Process
	Instance *Instance

	// set on EventError.
	Message string
}

type WatchOptions struct {
	// resume points, one per underlying watch.
	ProcessResourceVersion  string
	InstanceResourceVersion string

	// clamped to MaxWatchSeconds.
	TimeoutSeconds int64
}

// Controller reads and scales the workload objects behind processes.
type Controller interface {
	// ListProcesses returns process views plus the list resource version.
	// extraLabels narrow the platform selector further.
	ListProcesses(ctx context.Context, target Target, extraLabels map[string]string) ([]Process, string, error)

	// ListInstances returns pods of the process (all processes when
	// processType is empty) plus the list resource version. For default
	// apps, pods without a positive release-version label are dropped.
	ListInstances(ctx context.Context, target Target, processType string) ([]Instance, string, error)

	// GetProcessByType finds one process. domain.ErrProcessNotFound
	// when the type is not running.
	GetProcessByType(ctx context.Context, target Target, processType string) (Process, error)

	// Scale persists the new replica target (or autoscaling config) on
	// the module's env overlay, then resizes the running workload.
	Scale(ctx context.Context, target Target, processType string, replicas *int, scaling *domain.AutoscalingConfig) error

	// Watch merges process and instance events into one stream. An
	// ERROR event is emitted and the channel closed on upstream failure.
	Watch(ctx context.Context, target Target, opts WatchOptions) (<-chan Event, error)
}

type controller struct {
	clientset kubernetes.Interface
	apps      appdb.Interface
	logger    *log.Logger
}

func New(clientset kubernetes.Interface, apps appdb.Interface, logger *log.Logger) Controller {
	return &controller{clientset: clientset, apps: apps, logger: logger}
}

// platformSelector is the base selector every process query carries.
func platformSelector(target Target, processType string, extra map[string]string) string {
	set := labels.Set{
		LabelModuleName:   target.Module.Name,
		LabelResourceType: ResourceTypeProcess,
	}
	if processType != "" {
		set[LabelProcessName] = processType
	}
	for k, v := range extra {
		set[k] = v
	}
	return set.String()
}

func (c *controller) ListProcesses(
	ctx context.Context, target Target, extraLabels map[string]string,
) ([]Process, string, error) {
	list, err := c.clientset.AppsV1().Deployments(target.EngineApp.Namespace).List(
		ctx, metav1.ListOptions{LabelSelector: platformSelector(target, "", extraLabels)},
	)
	if err != nil {
		return nil, "", xe.Wrap(err)
	}

	procs := []Process{}
	for _, depl := range list.Items {
		if _, scoped := ResolveApp(depl.Labels); !scoped {
			continue
		}
		replicas := int32(0)
		if depl.Spec.Replicas != nil {
			replicas = *depl.Spec.Replicas
		}
		ready := depl.Status.ReadyReplicas
		failed := depl.Status.Replicas - ready
		if failed < 0 {
			failed = 0
		}
		procs = append(procs, Process{
			Type:     depl.Labels[LabelProcessName],
			Replicas: replicas,
			Success:  ready,
			Failed:   failed,
		})
	}
	return procs, list.ResourceVersion, nil
}

func (c *controller) ListInstances(
	ctx context.Context, target Target, processType string,
) ([]Instance, string, error) {
	list, err := c.clientset.CoreV1().Pods(target.EngineApp.Namespace).List(
		ctx, metav1.ListOptions{LabelSelector: platformSelector(target, processType, nil)},
	)
	if err != nil {
		return nil, "", xe.Wrap(err)
	}

	instances := []Instance{}
	for _, pod := range list.Items {
		if _, scoped := ResolveApp(pod.Labels); !scoped {
			continue
		}
		if target.AppType == domain.AppTypeDefault && !releasedInstance(pod.Labels) {
			continue
		}
		instances = append(instances, toInstance(&pod))
	}
	return instances, list.ResourceVersion, nil
}

// releasedInstance keeps only pods of an actual release: the
// release-version label must parse to a positive number.
func releasedInstance(podLabels map[string]string) bool {
	raw, ok := podLabels[LabelReleaseVersion]
	if !ok {
		return false
	}
	version, err := strconv.Atoi(raw)
	return err == nil && version > 0
}

func toInstance(pod *corev1.Pod) Instance {
	ready := false
	restarts := int32(0)
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			ready = true
		}
	}
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
	}

	state := string(pod.Status.Phase)
	if pod.Status.Phase == corev1.PodRunning && !ready {
		state = InstanceStateStarting
	}
	return Instance{
		Name:        pod.Name,
		ProcessType: pod.Labels[LabelProcessName],
		State:       state,
		Ready:       ready,
		Restarts:    restarts,
	}
}

func (c *controller) GetProcessByType(
	ctx context.Context, target Target, processType string,
) (Process, error) {
	procs, _, err := c.ListProcesses(ctx, target, map[string]string{LabelProcessName: processType})
	if err != nil {
		return Process{}, err
	}
	if len(procs) == 0 {
		return Process{}, xe.Wrap(fmt.Errorf("%w: '%s'", domain.ErrProcessNotFound, processType))
	}
	return procs[0], nil
}

func (c *controller) Scale(
	ctx context.Context, target Target, processType string,
	replicas *int, scaling *domain.AutoscalingConfig,
) error {
	if err := c.apps.ScaleProcess(
		ctx, target.Module.ID, processType, target.Environment, replicas, scaling,
	); err != nil {
		return err
	}
	if replicas == nil {
		// autoscaling takes over; the operator adjusts the workload.
		return nil
	}

	deployments := c.clientset.AppsV1().Deployments(target.EngineApp.Namespace)
	list, err := deployments.List(
		ctx, metav1.ListOptions{LabelSelector: platformSelector(target, processType, nil)},
	)
	if err != nil {
		return xe.Wrap(err)
	}
	if len(list.Items) == 0 {
		return xe.Wrap(fmt.Errorf("%w: '%s' has no workload", domain.ErrProcessNotFound, processType))
	}

	for _, depl := range list.Items {
		scale, err := deployments.GetScale(ctx, depl.Name, metav1.GetOptions{})
		if err != nil {
			return xe.Wrap(err)
		}
		scale.Spec.Replicas = int32(*replicas)
		if _, err := deployments.UpdateScale(ctx, depl.Name, scale, metav1.UpdateOptions{}); err != nil {
			return xe.Wrap(err)
		}
	}
	return nil
}

func (c *controller) Watch(
	ctx context.Context, target Target, opts WatchOptions,
) (<-chan Event, error) {
	timeout := opts.TimeoutSeconds
	if timeout <= 0 || timeout > MaxWatchSeconds {
		timeout = MaxWatchSeconds
	}
	selector := platformSelector(target, "", nil)

	procWatch, err := c.clientset.AppsV1().Deployments(target.EngineApp.Namespace).Watch(
		ctx, metav1.ListOptions{
			LabelSelector:   selector,
			ResourceVersion: opts.ProcessResourceVersion,
			TimeoutSeconds:  &timeout,
		},
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	instWatch, err := c.clientset.CoreV1().Pods(target.EngineApp.Namespace).Watch(
		ctx, metav1.ListOptions{
			LabelSelector:   selector,
			ResourceVersion: opts.InstanceResourceVersion,
			TimeoutSeconds:  &timeout,
		},
	)
	if err != nil {
		procWatch.Stop()
		return nil, xe.Wrap(err)
	}

	out := make(chan Event)
	go c.merge(ctx, target, procWatch, instWatch, out)
	return out, nil
}

// merge forwards both watch streams into out until either closes,
// errors, or ctx is done.
func (c *controller) merge(
	ctx context.Context, target Target,
	procWatch watch.Interface, instWatch watch.Interface,
	out chan<- Event,
) {
	defer close(out)
	defer procWatch.Stop()
	defer instWatch.Stop()

	var once sync.Once
	done := make(chan struct{})
	stop := func() { once.Do(func() { close(done) }) }

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.forward(ctx, target, "process", procWatch, emit, done, stop)
	}()
	go func() {
		defer wg.Done()
		c.forward(ctx, target, "instance", instWatch, emit, done, stop)
	}()
	wg.Wait()
}

func (c *controller) forward(
	ctx context.Context, target Target, kind string,
	w watch.Interface, emit func(Event) bool,
	done <-chan struct{}, stop func(),
) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case raw, ok := <-w.ResultChan():
			if !ok {
				return
			}
			if raw.Type == watch.Error {
				c.logger.Printf("%s watch of %s closed on error: %v", kind, target.EngineApp.Name, raw.Object)
				emit(Event{
					Type:    EventError,
					Kind:    kind,
					Message: fmt.Sprintf("%v", raw.Object),
				})
				return
			}
			ev, ok := c.translate(kind, raw)
			if !ok {
				continue
			}
			if target.AppType == domain.AppTypeDefault && ev.Instance != nil {
				if pod, isPod := raw.Object.(*corev1.Pod); isPod && !releasedInstance(pod.Labels) {
					continue
				}
			}
			if !emit(ev) {
				return
			}
		}
	}
}

func (c *controller) translate(kind string, raw watch.Event) (Event, bool) {
	ev := Event{Type: EventType(raw.Type), Kind: kind}
	switch obj := raw.Object.(type) {
	case *corev1.Pod:
		if _, scoped := ResolveApp(obj.Labels); !scoped {
			return Event{}, false
		}
		inst := toInstance(obj)
		ev.Instance = &inst
		ev.ResourceVersion = obj.ResourceVersion
	case *appsv1.Deployment:
		if _, scoped := ResolveApp(obj.Labels); !scoped {
			return Event{}, false
		}
		replicas := int32(0)
		if obj.Spec.Replicas != nil {
			replicas = *obj.Spec.Replicas
		}
		ev.Process = &Process{
			Type:     obj.Labels[LabelProcessName],
			Replicas: replicas,
			Success:  obj.Status.ReadyReplicas,
		}
		ev.ResourceVersion = obj.ResourceVersion
	default:
		return Event{}, false
	}
	return ev, true
}
