package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/api/apierrors"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
	prock8s "github.com/tencentblueking/bkpaas-core/pkg/domain/process/k8s"
)

// StreamSigner issues and verifies the short-lived tokens embedded in
// watch stream URLs. Watch requests carry no session; the token is
// the whole authorization.
type StreamSigner struct {
	Secret   []byte
	Expiry   time.Duration
	BasePath string

	// base path of deployment event streams.
	DeployBasePath string

	// test seam.
	Now func() time.Time
}

type streamClaims struct {
	AppCode    string `json:"code"`
	ModuleName string `json:"module"`
	Env        string `json:"env"`
	ProcRV     string `json:"rv_proc,omitempty"`
	InstRV     string `json:"rv_inst,omitempty"`
	jwt.RegisteredClaims
}

// WatchURL returns a relative URL carrying a signed watch token.
func (s *StreamSigner) WatchURL(code string, module string, env string, procRV string, instRV string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	claims := streamClaims{
		AppCode:    code,
		ModuleName: module,
		Env:        env,
		ProcRV:     procRV,
		InstRV:     instRV,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now()),
			ExpiresAt: jwt.NewNumericDate(now().Add(s.Expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?token=%s", s.BasePath, url.QueryEscape(token)), nil
}

func (s *StreamSigner) verify(token string) (*streamClaims, error) {
	claims := &streamClaims{}
	if err := s.parseInto(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

type deployStreamClaims struct {
	DeploymentID string `json:"deployment_id"`
	jwt.RegisteredClaims
}

// DeploymentStreamURL returns a relative URL carrying a signed
// deployment event stream token.
func (s *StreamSigner) DeploymentStreamURL(deploymentID string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	claims := deployStreamClaims{
		DeploymentID: deploymentID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now()),
			ExpiresAt: jwt.NewNumericDate(now().Add(s.Expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?token=%s", s.DeployBasePath, url.QueryEscape(token)), nil
}

func (s *StreamSigner) verifyDeployment(token string) (*deployStreamClaims, error) {
	claims := &deployStreamClaims{}
	if err := s.parseInto(token, claims); err != nil {
		return nil, err
	}
	if claims.DeploymentID == "" {
		return nil, fmt.Errorf("token carries no deployment")
	}
	return claims, nil
}

func (s *StreamSigner) parseInto(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (any, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid stream token")
	}
	return nil
}

// watchEvent is one JSON line of the stream.
type watchEvent struct {
	Type            string        `json:"type"`
	Kind            string        `json:"kind"`
	ResourceVersion string        `json:"resource_version,omitempty"`
	Process         *processView  `json:"process,omitempty"`
	Instance        *instanceView `json:"instance,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// WatchProcessesHandler streams merged process/instance events as
// newline-delimited JSON until the server-side watch times out.
func WatchProcessesHandler(
	apps appdb.Interface, controllers ControllerFactory, signer *StreamSigner,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		claims, err := signer.verify(c.QueryParam("token"))
		if err != nil {
			return apierrors.Unauthorized("watch token is missing, invalid, or expired")
		}

		t, err := resolveTarget(ctx, apps, claims.AppCode, claims.ModuleName, claims.Env)
		if err != nil {
			return apierrors.From(err)
		}
		if t.env.EngineApp.ClusterName == "" {
			return apierrors.BadRequest("environment has never been deployed")
		}
		ctl, err := controllers(ctx, t.env.EngineApp.ClusterName)
		if err != nil {
			return apierrors.From(err)
		}

		var timeoutSeconds int64
		if raw := c.QueryParam("timeout_seconds"); raw != "" {
			fmt.Sscanf(raw, "%d", &timeoutSeconds)
		}
		events, err := ctl.Watch(ctx, t.processTarget(), prock8s.WatchOptions{
			ProcessResourceVersion:  claims.ProcRV,
			InstanceResourceVersion: claims.InstRV,
			TimeoutSeconds:          timeoutSeconds,
		})
		if err != nil {
			return apierrors.From(err)
		}

		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
		resp.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(resp)

		for ev := range events {
			line := watchEvent{
				Type:            string(ev.Type),
				Kind:            ev.Kind,
				ResourceVersion: ev.ResourceVersion,
				Message:         ev.Message,
			}
			if p := ev.Process; p != nil {
				line.Process = &processView{
					Type: p.Type, Replicas: p.Replicas, Success: p.Success, Failed: p.Failed,
				}
			}
			if inst := ev.Instance; inst != nil {
				line.Instance = &instanceView{
					Name:        inst.Name,
					ProcessType: inst.ProcessType,
					State:       inst.State,
					Ready:       inst.Ready,
					Restarts:    inst.Restarts,
				}
			}
			if err := enc.Encode(line); err != nil {
				return nil
			}
			resp.Flush()
		}
		return nil
	}
}
