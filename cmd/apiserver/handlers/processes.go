package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/api/apierrors"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	clusterk8s "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/k8s"
	prock8s "github.com/tencentblueking/bkpaas-core/pkg/domain/process/k8s"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/slices"
)

// resolvedTarget bundles everything a process operation needs about
// its environment.
type resolvedTarget struct {
	app    domain.Application
	module domain.Module
	env    domain.ModuleEnvironment
}

func (t resolvedTarget) processTarget() prock8s.Target {
	return prock8s.Target{
		EngineApp:   t.env.EngineApp,
		Module:      t.module,
		Environment: t.env.Environment,
		AppType:     t.app.Type,
	}
}

func resolveEnvironment(
	ctx context.Context, apps appdb.Interface, code string, moduleName string, envName string,
) (domain.ModuleEnvironment, error) {
	t, err := resolveTarget(ctx, apps, code, moduleName, envName)
	if err != nil {
		return domain.ModuleEnvironment{}, err
	}
	return t.env, nil
}

func resolveTarget(
	ctx context.Context, apps appdb.Interface, code string, moduleName string, envName string,
) (resolvedTarget, error) {
	env, err := domain.AsEnvironment(envName)
	if err != nil {
		return resolvedTarget{}, domain.NewValidation("environment", err.Error())
	}
	app, err := apps.GetApplication(ctx, code)
	if err != nil {
		return resolvedTarget{}, err
	}
	module, err := apps.GetModule(ctx, app.ID, moduleName)
	if err != nil {
		return resolvedTarget{}, err
	}
	moduleEnv, err := apps.GetEnvironment(ctx, module.ID, env)
	if err != nil {
		return resolvedTarget{}, err
	}
	return resolvedTarget{app: app, module: module, env: moduleEnv}, nil
}

// ControllerFactory builds a process controller against the cluster
// the environment's engine app runs on.
type ControllerFactory func(ctx context.Context, clusterName string) (prock8s.Controller, error)

// NewControllerFactory is the production wiring of ControllerFactory.
func NewControllerFactory(kube clusterk8s.Factory, apps appdb.Interface, logger *log.Logger) ControllerFactory {
	return func(ctx context.Context, clusterName string) (prock8s.Controller, error) {
		clients, err := kube.ClientFor(ctx, clusterName)
		if err != nil {
			return nil, err
		}
		return prock8s.New(clients.Clientset, apps, logger), nil
	}
}

type processView struct {
	Type     string `json:"type"`
	Replicas int32  `json:"replicas"`
	Success  int32  `json:"success"`
	Failed   int32  `json:"failed"`
}

type instanceView struct {
	Name        string `json:"name"`
	ProcessType string `json:"process_type"`
	State       string `json:"state"`
	Ready       bool   `json:"ready"`
	Restarts    int32  `json:"restarts"`
}

type processListResult struct {
	Processes               []processView  `json:"processes"`
	Instances               []instanceView `json:"instances"`
	ProcessResourceVersion  string         `json:"process_resource_version"`
	InstanceResourceVersion string         `json:"instance_resource_version"`

	// pre-signed watch stream URL resuming from the versions above.
	WatchURL string `json:"watch_url,omitempty"`
}

// ListProcessesHandler returns the runtime processes and instances of
// an environment, plus a signed URL to watch them from this snapshot.
func ListProcessesHandler(
	apps appdb.Interface, controllers ControllerFactory, signer *StreamSigner,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		t, err := resolveTarget(ctx, apps, c.Param("code"), c.Param("module"), c.Param("env"))
		if err != nil {
			return apierrors.From(err)
		}
		if t.env.EngineApp.ClusterName == "" {
			// never deployed; nothing can be running.
			return c.JSON(http.StatusOK, processListResult{
				Processes: []processView{}, Instances: []instanceView{},
			})
		}
		ctl, err := controllers(ctx, t.env.EngineApp.ClusterName)
		if err != nil {
			return apierrors.From(err)
		}

		processes, procRV, err := ctl.ListProcesses(ctx, t.processTarget(), nil)
		if err != nil {
			return apierrors.From(err)
		}
		instances, instRV, err := ctl.ListInstances(ctx, t.processTarget(), "")
		if err != nil {
			return apierrors.From(err)
		}

		result := processListResult{
			Processes: slices.Map(processes, func(p prock8s.Process) processView {
				return processView{
					Type: p.Type, Replicas: p.Replicas, Success: p.Success, Failed: p.Failed,
				}
			}),
			Instances: slices.Map(instances, func(inst prock8s.Instance) instanceView {
				return instanceView{
					Name:        inst.Name,
					ProcessType: inst.ProcessType,
					State:       inst.State,
					Ready:       inst.Ready,
					Restarts:    inst.Restarts,
				}
			}),
			ProcessResourceVersion:  procRV,
			InstanceResourceVersion: instRV,
		}
		if signer != nil {
			url, err := signer.WatchURL(
				c.Param("code"), c.Param("module"), c.Param("env"), procRV, instRV,
			)
			if err != nil {
				return apierrors.From(err)
			}
			result.WatchURL = url
		}
		return c.JSON(http.StatusOK, result)
	}
}

type autoscalingBody struct {
	MinReplicas int    `json:"min_replicas"`
	MaxReplicas int    `json:"max_replicas"`
	Policy      string `json:"policy,omitempty"`
}

type updateProcessBody struct {
	Operation      string           `json:"operation"`
	TargetReplicas *int             `json:"target_replicas,omitempty"`
	Autoscaling    *autoscalingBody `json:"autoscaling,omitempty"`
}

// UpdateProcessHandler scales, starts, or stops one process type.
// Stop scales to zero; start restores one replica unless a target is
// given.
func UpdateProcessHandler(apps appdb.Interface, controllers ControllerFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		t, err := resolveTarget(ctx, apps, c.Param("code"), c.Param("module"), c.Param("env"))
		if err != nil {
			return apierrors.From(err)
		}
		processType := c.Param("process")

		var body updateProcessBody
		if err := c.Bind(&body); err != nil {
			return apierrors.BadRequest("request body is not a valid process update")
		}

		var replicas *int
		var scaling *domain.AutoscalingConfig
		switch body.Operation {
		case "scale":
			if body.TargetReplicas == nil && body.Autoscaling == nil {
				return apierrors.BadRequest("scale needs target_replicas or autoscaling")
			}
			replicas = body.TargetReplicas
			if as := body.Autoscaling; as != nil {
				policy := domain.ScalingPolicy(as.Policy)
				if as.Policy == "" {
					policy = domain.ScalingPolicyDefault
				}
				scaling = &domain.AutoscalingConfig{
					MinReplicas: as.MinReplicas,
					MaxReplicas: as.MaxReplicas,
					Policy:      policy,
				}
				if err := scaling.Validate(); err != nil {
					return apierrors.BadRequest(err.Error())
				}
			}
		case "stop":
			zero := 0
			replicas = &zero
		case "start":
			one := 1
			if body.TargetReplicas != nil {
				one = *body.TargetReplicas
			}
			replicas = &one
		default:
			return apierrors.BadRequest("operation must be one of scale, start, stop")
		}

		if t.env.EngineApp.ClusterName == "" {
			return apierrors.From(domain.ErrProcessNotFound)
		}
		ctl, err := controllers(ctx, t.env.EngineApp.ClusterName)
		if err != nil {
			return apierrors.From(err)
		}
		if err := ctl.Scale(ctx, t.processTarget(), processType, replicas, scaling); err != nil {
			return apierrors.From(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
