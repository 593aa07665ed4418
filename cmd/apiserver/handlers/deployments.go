package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/api/apierrors"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	depdb "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db"
)

type versionInfoBody struct {
	Type     string `json:"version_type"`
	Name     string `json:"version_name"`
	Revision string `json:"revision,omitempty"`
}

type advancedOptionsBody struct {
	Image     string `json:"image,omitempty"`
	BuildID   string `json:"build_id,omitempty"`
	SourceDir string `json:"source_dir,omitempty"`
}

type createDeploymentBody struct {
	Operator string               `json:"operator"`
	Version  versionInfoBody      `json:"version_info"`
	Advanced *advancedOptionsBody `json:"advanced_options,omitempty"`
}

type deploymentDetail struct {
	ID             string `json:"id"`
	Environment    string `json:"environment"`
	Operator       string `json:"operator"`
	Status         string `json:"status"`
	BuildProcessID string `json:"build_process_id,omitempty"`
	BuildID        string `json:"build_id,omitempty"`
	ErrDetail      string `json:"error_detail,omitempty"`

	Version versionInfoBody `json:"version_info"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type stepDetail struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type phaseDetail struct {
	Type   string       `json:"type"`
	Status string       `json:"status"`
	Steps  []stepDetail `json:"steps"`
}

type deploymentResult struct {
	Deployment deploymentDetail `json:"deployment"`
	Phases     []phaseDetail    `json:"phases"`
}

type createdDeployment struct {
	deploymentDetail
	StreamURL string `json:"stream_url"`
}

// CreateDeploymentHandler starts a deployment of one module
// environment. The pipeline worker picks it up; the response carries
// the pending record and a signed event stream URL.
func CreateDeploymentHandler(
	apps appdb.Interface, deployments depdb.Interface, signer *StreamSigner,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		env, err := resolveEnvironment(ctx, apps, c.Param("code"), c.Param("module"), c.Param("env"))
		if err != nil {
			return apierrors.From(err)
		}

		var body createDeploymentBody
		if err := c.Bind(&body); err != nil {
			return apierrors.BadRequest("request body is not a valid deployment request")
		}
		if body.Operator == "" {
			return apierrors.BadRequest("operator is required")
		}
		if body.Version.Type == "" || body.Version.Name == "" {
			return apierrors.BadRequest("version_info.version_type and version_info.version_name are required")
		}

		d := domain.Deployment{
			EnvironmentID: env.ID,
			Environment:   env.Environment,
			Operator:      body.Operator,
			Version: domain.VersionInfo{
				Type:     domain.VersionType(body.Version.Type),
				Name:     body.Version.Name,
				Revision: body.Version.Revision,
			},
		}
		if adv := body.Advanced; adv != nil {
			d.Advanced = domain.AdvancedOptions{
				Image:     adv.Image,
				BuildID:   adv.BuildID,
				SourceDir: adv.SourceDir,
			}
		}

		created, err := deployments.Create(ctx, d)
		if err != nil {
			return apierrors.From(err)
		}
		streamURL, err := signer.DeploymentStreamURL(created.ID)
		if err != nil {
			return apierrors.From(err)
		}
		return c.JSON(http.StatusCreated, createdDeployment{
			deploymentDetail: composeDeployment(created),
			StreamURL:        streamURL,
		})
	}
}

// GetDeploymentResultHandler reports a deployment's status plus its
// phase/step breakdown.
func GetDeploymentResultHandler(deployments depdb.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		result, err := composeResult(ctx, deployments, id)
		if err != nil {
			return apierrors.From(err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

func composeResult(
	ctx context.Context, deployments depdb.Interface, id string,
) (deploymentResult, error) {
	d, err := deployments.Get(ctx, id)
	if err != nil {
		return deploymentResult{}, err
	}
	phases, err := deployments.Phases(ctx, id)
	if err != nil {
		return deploymentResult{}, err
	}

	result := deploymentResult{Deployment: composeDeployment(d)}
	for _, phase := range phases {
		pd := phaseDetail{Type: string(phase.Type), Status: string(phase.Status)}
		for _, step := range phase.Steps {
			pd.Steps = append(pd.Steps, stepDetail{
				Name:        step.Name,
				Status:      string(step.Status),
				StartedAt:   step.StartedAt,
				CompletedAt: step.CompletedAt,
			})
		}
		result.Phases = append(result.Phases, pd)
	}
	return result, nil
}

// WatchDeploymentHandler streams deployment result snapshots as
// newline-delimited JSON. A line is emitted whenever the result
// changes; the stream ends when the deployment turns terminal.
func WatchDeploymentHandler(
	deployments depdb.Interface, signer *StreamSigner, tick time.Duration,
) echo.HandlerFunc {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		claims, err := signer.verifyDeployment(c.QueryParam("token"))
		if err != nil {
			return apierrors.Unauthorized("stream token is missing, invalid, or expired")
		}

		first, err := composeResult(ctx, deployments, claims.DeploymentID)
		if err != nil {
			return apierrors.From(err)
		}

		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
		resp.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(resp)

		last := ""
		result := first
		for {
			line, err := json.Marshal(result)
			if err != nil {
				return nil
			}
			if string(line) != last {
				if err := enc.Encode(result); err != nil {
					return nil
				}
				resp.Flush()
				last = string(line)
			}
			if domain.DeployStatus(result.Deployment.Status).Terminal() {
				return nil
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(tick):
			}
			result, err = composeResult(ctx, deployments, claims.DeploymentID)
			if err != nil {
				return nil
			}
		}
	}
}

// InterruptDeploymentHandler flags a running deployment for
// cooperative interruption. Best-effort: the pipeline reacts within
// one poll tick.
func InterruptDeploymentHandler(deployments depdb.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := deployments.RequestInterrupt(ctx, c.Param("id")); err != nil {
			return apierrors.From(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func composeDeployment(d domain.Deployment) deploymentDetail {
	return deploymentDetail{
		ID:             d.ID,
		Environment:    string(d.Environment),
		Operator:       d.Operator,
		Status:         string(d.Status),
		BuildProcessID: d.BuildProcessID,
		BuildID:        d.BuildID,
		ErrDetail:      d.ErrDetail,
		Version: versionInfoBody{
			Type:     string(d.Version.Type),
			Name:     d.Version.Name,
			Revision: d.Version.Revision,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
