package core_test

import (
	"strings"
	"testing"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/configs/core"
)

const fullConf = `
port: 8080
database: "host=db user=bkpaas dbname=bkpaas sslmode=disable"
objStore:
  endpoint: "http://minio:9000"
  region: "us-east-1"
  bucket: "source-packages"
  accessKey: "minioadmin"
  secretKey: "minioadmin"
  forcePathStyle: true
buildServiceURL: "http://build-svc:8090"
sourceServiceURL: "http://source-svc:8091"
pipeline:
  buildTimeoutSeconds: 1200
  hookTimeoutSeconds: 120
  rolloutTimeoutSeconds: 300
  pollIntervalSeconds: 5
  lockTTLSeconds: 30
  envVarCeiling: 2
  archiveWarnBytes: 104857600
  workDir: "/var/run/bkpaas"
stream:
  signingSecret: "s3cret"
  urlExpirySeconds: 60
clusterCacheTTLSeconds: 120
`

const minimalConf = `
port: 8080
database: "host=db user=bkpaas dbname=bkpaas sslmode=disable"
objStore:
  endpoint: "http://minio:9000"
  region: "us-east-1"
  bucket: "source-packages"
  accessKey: "minioadmin"
  secretKey: "minioadmin"
buildServiceURL: "http://build-svc:8090"
sourceServiceURL: "http://source-svc:8091"
stream:
  signingSecret: "s3cret"
`

func TestUnmarshal(t *testing.T) {
	t.Run("a fully specified config seals verbatim", func(t *testing.T) {
		conf, err := core.Unmarshal([]byte(fullConf))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if conf.Port() != 8080 {
			t.Errorf("unexpected port: %d", conf.Port())
		}
		if !strings.Contains(conf.Database(), "dbname=bkpaas") {
			t.Errorf("unexpected database: %s", conf.Database())
		}
		if conf.BuildServiceURL() != "http://build-svc:8090" {
			t.Errorf("unexpected build service url: %s", conf.BuildServiceURL())
		}
		if conf.SourceServiceURL() != "http://source-svc:8091" {
			t.Errorf("unexpected source service url: %s", conf.SourceServiceURL())
		}
		if conf.ClusterCacheTTL() != 120*time.Second {
			t.Errorf("unexpected cluster cache ttl: %s", conf.ClusterCacheTTL())
		}

		store := conf.ObjStore().AsStoreConfig()
		if store.Endpoint != "http://minio:9000" || store.Bucket != "source-packages" {
			t.Errorf("unexpected objstore config: %+v", store)
		}
		if store.AccessKeyID != "minioadmin" || store.SecretAccessKey != "minioadmin" {
			t.Errorf("unexpected objstore credentials: %+v", store)
		}
		if !store.ForcePathStyle {
			t.Error("forcePathStyle should be carried over")
		}

		pipe := conf.Pipeline().AsPipelineConfig()
		if pipe.BuildTimeout != 1200*time.Second {
			t.Errorf("unexpected build timeout: %s", pipe.BuildTimeout)
		}
		if pipe.HookTimeout != 120*time.Second {
			t.Errorf("unexpected hook timeout: %s", pipe.HookTimeout)
		}
		if pipe.RolloutTimeout != 300*time.Second {
			t.Errorf("unexpected rollout timeout: %s", pipe.RolloutTimeout)
		}
		if pipe.PollInterval != 5*time.Second {
			t.Errorf("unexpected poll interval: %s", pipe.PollInterval)
		}
		if pipe.LockTTL != 30*time.Second {
			t.Errorf("unexpected lock ttl: %s", pipe.LockTTL)
		}
		if pipe.EnvVarCeiling != 2 {
			t.Errorf("unexpected env var ceiling: %d", pipe.EnvVarCeiling)
		}
		if pipe.ArchiveSizeWarnBytes != 104857600 {
			t.Errorf("unexpected archive warn bytes: %d", pipe.ArchiveSizeWarnBytes)
		}
		if pipe.WorkDir != "/var/run/bkpaas" {
			t.Errorf("unexpected work dir: %s", pipe.WorkDir)
		}

		if conf.Stream().SigningSecret() != "s3cret" {
			t.Error("unexpected signing secret")
		}
		if conf.Stream().URLExpiry() != 60*time.Second {
			t.Errorf("unexpected url expiry: %s", conf.Stream().URLExpiry())
		}
	})

	t.Run("omitted knobs take defaults", func(t *testing.T) {
		conf, err := core.Unmarshal([]byte(minimalConf))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		pipe := conf.Pipeline().AsPipelineConfig()
		if pipe.BuildTimeout != 900*time.Second {
			t.Errorf("unexpected build timeout: %s", pipe.BuildTimeout)
		}
		if pipe.HookTimeout != 300*time.Second {
			t.Errorf("unexpected hook timeout: %s", pipe.HookTimeout)
		}
		if pipe.RolloutTimeout != 600*time.Second {
			t.Errorf("unexpected rollout timeout: %s", pipe.RolloutTimeout)
		}
		if pipe.PollInterval != 2*time.Second {
			t.Errorf("unexpected poll interval: %s", pipe.PollInterval)
		}
		if pipe.LockTTL != 60*time.Second {
			t.Errorf("unexpected lock ttl: %s", pipe.LockTTL)
		}
		if conf.Stream().URLExpiry() != 180*time.Second {
			t.Errorf("unexpected url expiry: %s", conf.Stream().URLExpiry())
		}
		if conf.ClusterCacheTTL() != 600*time.Second {
			t.Errorf("unexpected cluster cache ttl: %s", conf.ClusterCacheTTL())
		}
	})

	t.Run("missing required fields cause panic on seal", func(t *testing.T) {
		theory := func(conf string, wantPath string) func(*testing.T) {
			return func(t *testing.T) {
				defer func() {
					r := recover()
					if r == nil {
						t.Fatal("expected a panic for missing required field")
					}
					msg, ok := r.(string)
					if !ok || !strings.Contains(msg, wantPath) {
						t.Errorf("unexpected panic: %v", r)
					}
				}()
				core.Unmarshal([]byte(conf))
			}
		}

		t.Run("port", theory(strings.Replace(minimalConf, "port: 8080\n", "", 1), "(root).port"))
		t.Run("objStore", theory(`
port: 8080
database: "host=db"
buildServiceURL: "http://build-svc:8090"
sourceServiceURL: "http://source-svc:8091"
stream:
  signingSecret: "s3cret"
`, "(root).objStore"))
		t.Run("objStore.bucket", theory(
			strings.Replace(minimalConf, "  bucket: \"source-packages\"\n", "", 1),
			"(root).objStore.bucket",
		))
		t.Run("stream.signingSecret", theory(
			strings.Replace(minimalConf, "stream:\n  signingSecret: \"s3cret\"\n", "stream: {}\n", 1),
			"(root).stream.signingSecret",
		))
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		if _, err := core.Unmarshal([]byte("port: [:")); err == nil {
			t.Fatal("expected an error for malformed yaml")
		}
	})
}
