package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
	buildmock "github.com/tencentblueking/bkpaas-core/pkg/buildsvc/mock"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appmock "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db/mock"
	clusterk8s "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/k8s"
	depmock "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db/mock"
	"github.com/tencentblueking/bkpaas-core/pkg/pipeline"
	"github.com/tencentblueking/bkpaas-core/pkg/sourceexport"
)

type stubAllocator struct {
	names []string
	err   error
	calls []string
}

func (a *stubAllocator) Allocate(
	ctx context.Context, tenantID string, env domain.Environment, mctx domain.MatcherContext,
) ([]string, error) {
	a.calls = append(a.calls, fmt.Sprintf("%s/%s/%s", tenantID, env, mctx.Region))
	return a.names, a.err
}

type stubKubeFactory struct {
	err error
}

func (f *stubKubeFactory) ClientFor(ctx context.Context, clusterName string) (*clusterk8s.Clients, error) {
	return nil, f.err
}

func (f *stubKubeFactory) Invalidate(clusterName string) {}

type stubExporter struct {
	err error
}

func (e *stubExporter) Export(ctx context.Context, destDir string, version domain.VersionInfo) error {
	return e.err
}

// procfileExporter materializes a one-process source tree.
type procfileExporter struct{}

func (e *procfileExporter) Export(ctx context.Context, destDir string, version domain.VersionInfo) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(
		filepath.Join(destDir, "Procfile"), []byte("web: gunicorn app:wsgi\n"), 0644,
	)
}

type stubStore struct {
	keys []string
}

func (s *stubStore) Upload(ctx context.Context, key string, localPath string) (string, error) {
	s.keys = append(s.keys, key)
	return key, nil
}

func (s *stubStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not stored")
}

// progress records every status transition a run makes.
type progress struct {
	phases map[domain.PhaseType]domain.StepStatus
	steps  map[string]domain.StepStatus
	status domain.DeployStatus
	detail string
}

// trackingDB wires the transition-recording methods of the deployment
// mock; tests add the scenario-specific reads on top.
func trackingDB(t *testing.T, d domain.Deployment) (*depmock.MockDeploymentDB, *progress) {
	rec := &progress{
		phases: map[domain.PhaseType]domain.StepStatus{},
		steps:  map[string]domain.StepStatus{},
	}
	db := depmock.New(t)
	db.Impl.Get = func(ctx context.Context, id string) (domain.Deployment, error) {
		if id != d.ID {
			return domain.Deployment{}, domain.ErrDeploymentNotFound
		}
		return d, nil
	}
	db.Impl.AcquireLock = func(ctx context.Context, environmentID string, deploymentID string, ttl time.Duration) (bool, error) {
		return true, nil
	}
	db.Impl.InterruptRequested = func(ctx context.Context, id string) (bool, error) {
		return false, nil
	}
	db.Impl.StartPhase = func(ctx context.Context, deploymentID string, phase domain.PhaseType) error {
		return nil
	}
	db.Impl.FinishPhase = func(ctx context.Context, deploymentID string, phase domain.PhaseType, status domain.StepStatus) error {
		if _, done := rec.phases[phase]; !done {
			rec.phases[phase] = status
		}
		return nil
	}
	db.Impl.StartStep = func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error {
		return nil
	}
	db.Impl.FinishStep = func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus) error {
		rec.steps[step] = status
		return nil
	}
	db.Impl.Finish = func(ctx context.Context, id string, status domain.DeployStatus, errDetail string) error {
		rec.status = status
		rec.detail = errDetail
		return nil
	}
	db.Impl.Phases = func(ctx context.Context, deploymentID string) ([]domain.DeployPhase, error) {
		return nil, nil
	}
	return db, rec
}

func quietLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

// moduleDB serves the fixed app/module/env triple of these tests.
func moduleDB(t *testing.T, app domain.Application, module domain.Module, env domain.ModuleEnvironment) *appmock.MockApplicationDB {
	apps := appmock.New(t)
	apps.Impl.GetEnvironmentByID = func(ctx context.Context, id string) (domain.ModuleEnvironment, error) {
		return env, nil
	}
	apps.Impl.GetModuleByID = func(ctx context.Context, id string) (domain.Module, error) {
		return module, nil
	}
	apps.Impl.GetApplicationByID = func(ctx context.Context, id string) (domain.Application, error) {
		return app, nil
	}
	return apps
}

var (
	testApp = domain.Application{
		ID: "app-1", Code: "demo", Region: "default",
		AppTenantID: "tenant-a", IsActive: true,
		Type: domain.AppTypeCloudNative,
	}
	imageModule = domain.Module{
		ID: "mod-1", ApplicationID: "app-1", Name: "default",
		IsDefault: true, SourceOrigin: domain.OriginImageRegistry,
	}
	testEnv = domain.ModuleEnvironment{
		ID: "env-1", ModuleID: "mod-1", Environment: domain.EnvStag,
		EngineApp: domain.EngineApp{
			ID: "eng-1", Name: "bkapp-demo-stag", Namespace: "bkapp-demo-stag",
			ClusterName: "main",
		},
	}
)

func imageDeployment() domain.Deployment {
	return domain.Deployment{
		ID: "dep-1", EnvironmentID: "env-1", Environment: domain.EnvStag,
		Operator: "admin",
		Version:  domain.VersionInfo{Type: domain.VersionImage, Name: "registry.invalid/demo:v2"},
		Status:   domain.DeployPending,
	}
}

func TestPipeline_Run(t *testing.T) {
	t.Run("a terminal deployment is a no-op", func(t *testing.T) {
		db := depmock.New(t)
		db.Impl.Get = func(ctx context.Context, id string) (domain.Deployment, error) {
			d := imageDeployment()
			d.Status = domain.DeploySuccessful
			return d, nil
		}
		p := &pipeline.Pipeline{Deployments: db, Logger: quietLogger()}
		if err := p.Run(context.Background(), "dep-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("lock contention fails the deployment", func(t *testing.T) {
		db, rec := trackingDB(t, imageDeployment())
		db.Impl.AcquireLock = func(ctx context.Context, environmentID string, deploymentID string, ttl time.Duration) (bool, error) {
			return false, nil
		}
		p := &pipeline.Pipeline{Deployments: db, Logger: quietLogger()}

		err := p.Run(context.Background(), "dep-1")
		if !errors.Is(err, domain.ErrCannotDeployOngoingExists) {
			t.Errorf("unexpected error: %v", err)
		}
		if rec.status != domain.DeployFailed {
			t.Errorf("unexpected status: %s", rec.status)
		}
	})

	t.Run("an inactive app fails preparation and skips the rest", func(t *testing.T) {
		db, rec := trackingDB(t, imageDeployment())
		inactive := testApp
		inactive.IsActive = false
		p := &pipeline.Pipeline{
			Deployments: db,
			Apps:        moduleDB(t, inactive, imageModule, testEnv),
			Logger:      quietLogger(),
		}

		err := p.Run(context.Background(), "dep-1")
		if !errors.Is(err, domain.ErrCannotDeployApp) {
			t.Errorf("unexpected error: %v", err)
		}
		if rec.status != domain.DeployFailed || rec.detail == "" {
			t.Errorf("unexpected finish: %s %q", rec.status, rec.detail)
		}
		if rec.phases[domain.PhasePreparation] != domain.StepFailed {
			t.Errorf("unexpected preparation status: %s", rec.phases[domain.PhasePreparation])
		}
		for _, later := range []domain.PhaseType{domain.PhaseBuild, domain.PhasePreRelease, domain.PhaseRelease} {
			if rec.phases[later] != domain.StepSkipped {
				t.Errorf("phase %s: unexpected status %s", later, rec.phases[later])
			}
		}
	})

	t.Run("a pre-set interrupt flag skips everything", func(t *testing.T) {
		db, rec := trackingDB(t, imageDeployment())
		db.Impl.InterruptRequested = func(ctx context.Context, id string) (bool, error) {
			return true, nil
		}
		db.Impl.Phases = func(ctx context.Context, deploymentID string) ([]domain.DeployPhase, error) {
			return []domain.DeployPhase{
				{
					Type:   domain.PhasePreparation,
					Status: domain.StepPending,
					Steps: []domain.DeployStep{
						{Name: "parse app description", Status: domain.StepPending},
					},
				},
			}, nil
		}
		p := &pipeline.Pipeline{
			Deployments: db,
			Apps:        moduleDB(t, testApp, imageModule, testEnv),
			Logger:      quietLogger(),
		}

		err := p.Run(context.Background(), "dep-1")
		if !errors.Is(err, domain.ErrDeployInterrupted) {
			t.Errorf("unexpected error: %v", err)
		}
		if rec.status != domain.DeployInterrupted {
			t.Errorf("unexpected status: %s", rec.status)
		}
		if rec.phases[domain.PhasePreparation] != domain.StepInterrupted {
			t.Errorf("unexpected preparation status: %s", rec.phases[domain.PhasePreparation])
		}
		for _, later := range []domain.PhaseType{domain.PhaseBuild, domain.PhasePreRelease, domain.PhaseRelease} {
			if rec.phases[later] != domain.StepSkipped {
				t.Errorf("phase %s: unexpected status %s", later, rec.phases[later])
			}
		}
		if rec.steps["parse app description"] != domain.StepSkipped {
			t.Errorf("pending steps were not skipped: %+v", rec.steps)
		}
	})

	t.Run("image deployments skip preparation and build", func(t *testing.T) {
		db, rec := trackingDB(t, imageDeployment())
		apps := moduleDB(t, testApp, imageModule, testEnv)
		apps.Impl.GetHook = func(ctx context.Context, moduleID string, hookType domain.DeployHookType) (domain.ModuleDeployHook, error) {
			return domain.ModuleDeployHook{}, domain.ErrMissing
		}

		// release fails at cluster access; the skip bookkeeping of the
		// earlier phases is what this test is after.
		clusterDown := errors.New("cluster unreachable")
		p := &pipeline.Pipeline{
			Deployments: db,
			Apps:        apps,
			Kube:        &stubKubeFactory{err: clusterDown},
			Exporters: func(app domain.Application, module domain.Module) (sourceexport.Exporter, error) {
				return &stubExporter{}, nil
			},
			Logger: quietLogger(),
		}

		err := p.Run(context.Background(), "dep-1")
		if !errors.Is(err, clusterDown) {
			t.Errorf("unexpected error: %v", err)
		}

		for _, step := range []string{
			"parse app description", "upload source", "provision services",
			"invoke build", "build image",
			"execute pre-release hook",
		} {
			if rec.steps[step] != domain.StepSkipped {
				t.Errorf("step '%s': unexpected status %s", step, rec.steps[step])
			}
		}
		for _, phase := range []domain.PhaseType{domain.PhasePreparation, domain.PhaseBuild, domain.PhasePreRelease} {
			if rec.phases[phase] != domain.StepSuccessful {
				t.Errorf("phase %s: unexpected status %s", phase, rec.phases[phase])
			}
		}
		if rec.phases[domain.PhaseRelease] != domain.StepFailed {
			t.Errorf("unexpected release status: %s", rec.phases[domain.PhaseRelease])
		}
		if rec.status != domain.DeployFailed {
			t.Errorf("unexpected status: %s", rec.status)
		}
	})

	t.Run("a build failure skips pre-release and release", func(t *testing.T) {
		d := imageDeployment()
		d.Version = domain.VersionInfo{
			Type: domain.VersionBranch, Name: "main", Revision: "abc123",
		}
		db, rec := trackingDB(t, d)

		vcsModule := imageModule
		vcsModule.SourceOrigin = domain.OriginAuthorizedVCS
		apps := moduleDB(t, testApp, vcsModule, testEnv)
		apps.Impl.ListEnvVars = func(ctx context.Context, moduleID string) ([]domain.PresetEnvVariable, error) {
			return nil, nil
		}

		builderDown := errors.New("builder offline")
		builds := buildmock.New(t)
		builds.Impl.Submit = func(ctx context.Context, req buildsvc.BuildRequest) (string, error) {
			return "", builderDown
		}

		p := &pipeline.Pipeline{
			Deployments: db,
			Apps:        apps,
			Builds:      builds,
			Store:       &stubStore{},
			Exporters: func(app domain.Application, module domain.Module) (sourceexport.Exporter, error) {
				return &procfileExporter{}, nil
			},
			Config: pipeline.Config{WorkDir: t.TempDir()},
			Logger: quietLogger(),
		}

		err := p.Run(context.Background(), "dep-1")
		if !errors.Is(err, builderDown) {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.status != domain.DeployFailed {
			t.Errorf("unexpected status: %s", rec.status)
		}
		if rec.phases[domain.PhasePreparation] != domain.StepSuccessful {
			t.Errorf("unexpected preparation status: %s", rec.phases[domain.PhasePreparation])
		}
		if rec.phases[domain.PhaseBuild] != domain.StepFailed {
			t.Errorf("unexpected build status: %s", rec.phases[domain.PhaseBuild])
		}
		for _, later := range []domain.PhaseType{domain.PhasePreRelease, domain.PhaseRelease} {
			if rec.phases[later] != domain.StepSkipped {
				t.Errorf("phase %s: unexpected status %s", later, rec.phases[later])
			}
		}
	})

	t.Run("an unbound environment is scheduled through the allocator", func(t *testing.T) {
		db, _ := trackingDB(t, imageDeployment())
		db.Impl.InterruptRequested = func(ctx context.Context, id string) (bool, error) {
			// stop right after target resolution.
			return true, nil
		}

		unbound := testEnv
		unbound.EngineApp.ClusterName = ""
		apps := moduleDB(t, testApp, imageModule, unbound)
		bound := ""
		apps.Impl.BindEngineAppCluster = func(ctx context.Context, environmentID string, clusterName string) error {
			bound = clusterName
			return nil
		}

		alloc := &stubAllocator{names: []string{"main", "spare"}}
		p := &pipeline.Pipeline{
			Deployments: db,
			Apps:        apps,
			Allocator:   alloc,
			Logger:      quietLogger(),
		}

		if err := p.Run(context.Background(), "dep-1"); !errors.Is(err, domain.ErrDeployInterrupted) {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(alloc.calls) != 1 || alloc.calls[0] != "tenant-a/stag/default" {
			t.Errorf("unexpected allocator calls: %v", alloc.calls)
		}
		if bound != "main" {
			t.Errorf("unexpected binding: %s", bound)
		}
	})
}

func TestPipeline_Interrupt(t *testing.T) {
	db := depmock.New(t)
	requested := ""
	db.Impl.RequestInterrupt = func(ctx context.Context, id string) error {
		requested = id
		return nil
	}
	p := &pipeline.Pipeline{Deployments: db, Logger: quietLogger()}
	if err := p.Interrupt(context.Background(), "dep-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requested != "dep-1" {
		t.Errorf("unexpected id: %s", requested)
	}
}
