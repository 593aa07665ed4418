package descriptor_test

import (
	"errors"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/descriptor"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

func TestParse(t *testing.T) {
	t.Run("a full document is accepted and converted", func(t *testing.T) {
		raw := []byte(`
apiVersion: paas.bk.tencent.com/v1alpha2
kind: BkApp
metadata:
  name: demo
spec:
  build:
    image: registry.invalid/demo:latest
  processes:
    - name: web
      replicas: 2
      procCommand: python main.py
      targetPort: 8000
      services:
        - name: web
          targetPort: 8000
          exposedType:
            name: bk/http
    - name: worker
      command: ["celery"]
      args: ["worker", "-l", "info"]
  hooks:
    preRelease:
      procCommand: python manage.py migrate
  configuration:
    env:
      - name: FOO
        value: bar
  envOverlay:
    replicas:
      - envName: prod
        process: web
        count: 4
    envVariables:
      - envName: stag
        name: DEBUG
        value: "1"
  mounts:
    - name: etc
      mountPath: /etc/app
      source:
        configMap:
          name: app-cm
`)
		d, err := descriptor.Parse(raw, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		state := d.ModuleState()
		if state.BuildImage != "registry.invalid/demo:latest" {
			t.Errorf("unexpected build image: %s", state.BuildImage)
		}
		if len(state.Processes) != 2 {
			t.Fatalf("unexpected processes: %+v", state.Processes)
		}
		web := state.Processes[0]
		if web.Name != "web" || web.TargetReplicas != 2 || web.ProcCommand != "python main.py" {
			t.Errorf("unexpected web process: %+v", web)
		}
		if len(web.Services) != 1 || web.Services[0].ExposedType == nil {
			t.Errorf("unexpected web services: %+v", web.Services)
		}
		worker := state.Processes[1]
		if worker.TargetReplicas != 1 || worker.Plan != domain.PlanDefault {
			t.Errorf("defaults are not applied: %+v", worker)
		}
		if len(state.Hooks) != 1 || state.Hooks[0].Type != domain.HookPreRelease || !state.Hooks[0].Enabled {
			t.Errorf("unexpected hooks: %+v", state.Hooks)
		}
		if len(state.EnvVars) != 2 {
			t.Fatalf("unexpected env vars: %+v", state.EnvVars)
		}
		if state.EnvVars[0].Environment != domain.EnvGlobal || state.EnvVars[0].Key != "FOO" {
			t.Errorf("unexpected global env var: %+v", state.EnvVars[0])
		}
		if state.EnvVars[1].Environment != domain.EnvStag || state.EnvVars[1].Key != "DEBUG" {
			t.Errorf("unexpected overlay env var: %+v", state.EnvVars[1])
		}
		if len(state.Overlays) != 1 || state.Overlays[0].Environment != domain.EnvProd {
			t.Errorf("unexpected overlays: %+v", state.Overlays)
		}
		if len(state.Mounts) != 1 || state.Mounts[0].MountPath != "/etc/app" {
			t.Errorf("unexpected mounts: %+v", state.Mounts)
		}
	})

	theoryReject := func(raw string, wantField string) func(*testing.T) {
		return func(t *testing.T) {
			_, err := descriptor.Parse([]byte(raw), 0)
			if err == nil {
				t.Fatal("error is expected, but got nil")
			}
			derr, ok := domain.AsError(err)
			if !ok {
				t.Fatalf("not a domain error: %v", err)
			}
			if derr.Kind != domain.KindValidation {
				t.Errorf("unexpected kind: %s", derr.Kind)
			}
			if wantField != "" && derr.Field != wantField {
				t.Errorf("unexpected field: %s (error: %v)", derr.Field, err)
			}
		}
	}

	header := `
apiVersion: paas.bk.tencent.com/v1alpha2
kind: BkApp
metadata:
  name: demo
spec:
`

	t.Run("a document without processes is rejected", theoryReject(header+`
  processes: []
`, ""))

	t.Run("duplicate process names are rejected", theoryReject(header+`
  processes:
    - name: web
      procCommand: run a
    - name: web
      procCommand: run b
`, "spec.processes"))

	t.Run("command and procCommand together are rejected", theoryReject(header+`
  processes:
    - name: web
      command: ["run"]
      procCommand: run
`, "spec.processes"))

	t.Run("an uppercase process name is rejected", theoryReject(header+`
  processes:
    - name: Web
      procCommand: run
`, ""))

	t.Run("more than one bk/http service is rejected", theoryReject(header+`
  processes:
    - name: web
      procCommand: run
      services:
        - name: a
          targetPort: 8000
          exposedType:
            name: bk/http
        - name: b
          targetPort: 8001
          exposedType:
            name: bk/http
`, "spec.processes"))

	t.Run("an overlay naming an unknown environment is rejected", theoryReject(header+`
  processes:
    - name: web
      procCommand: run
  envOverlay:
    replicas:
      - envName: _global_
        process: web
        count: 2
`, "spec.envOverlay"))

	t.Run("an overlay naming an unknown process is rejected", theoryReject(header+`
  processes:
    - name: web
      procCommand: run
  envOverlay:
    replicas:
      - envName: prod
        process: worker
        count: 2
`, "spec.envOverlay"))

	t.Run("a reserved env var prefix is rejected", theoryReject(header+`
  processes:
    - name: web
      procCommand: run
  configuration:
    env:
      - name: BKPAAS_SECRET
        value: x
`, "spec.configuration.env"))

	t.Run("a metric for an unknown process is rejected", theoryReject(header+`
  processes:
    - name: web
      procCommand: run
  observability:
    monitoring:
      metrics:
        - process: worker
          serviceName: metrics
`, "spec.observability"))

	t.Run("env vars over the ceiling are rejected", func(t *testing.T) {
		raw := header + `
  processes:
    - name: web
      procCommand: run
  configuration:
    env:
      - name: A
        value: "1"
      - name: B
        value: "2"
  envOverlay:
    envVariables:
      - envName: stag
        name: C
        value: "3"
`
		if _, err := descriptor.Parse([]byte(raw), 3); err != nil {
			t.Errorf("unexpected error at the ceiling: %v", err)
		}
		_, err := descriptor.Parse([]byte(raw), 2)
		if err == nil {
			t.Fatal("error is expected, but got nil")
		}
		if derr, ok := domain.AsError(err); !ok || derr.Field != "spec.configuration.env" {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("a non-yaml document is rejected", func(t *testing.T) {
		_, err := descriptor.Parse([]byte(`:	not yaml`), 0)
		if err == nil {
			t.Fatal("error is expected, but got nil")
		}
		var derr *domain.Error
		if !errors.As(err, &derr) || derr.Kind != domain.KindValidation {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
