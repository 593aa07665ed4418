package core

import (
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/objstore"
	"github.com/tencentblueking/bkpaas-core/pkg/pipeline"
)

// CoreConfig is the sealed configuration of both the apiserver and the
// pipeline worker.
//
// To get an instance, unmarshal a CoreConfigMarshall and TrySeal it.
type CoreConfig struct {
	port             int32
	database         string
	objStore         *ObjStoreConfig
	buildServiceURL  string
	sourceServiceURL string
	pipeline         *PipelineConfig
	stream           *StreamConfig
	clusterCacheTTL  time.Duration
}

// Port the apiserver listens on.
func (c *CoreConfig) Port() int32 {
	return c.port
}

// Connection string for the database.
func (c *CoreConfig) Database() string {
	return c.database
}

func (c *CoreConfig) ObjStore() *ObjStoreConfig {
	return c.objStore
}

// Base URL of the external build service.
func (c *CoreConfig) BuildServiceURL() string {
	return c.buildServiceURL
}

// Base URL of the source repository service.
func (c *CoreConfig) SourceServiceURL() string {
	return c.sourceServiceURL
}

func (c *CoreConfig) Pipeline() *PipelineConfig {
	return c.pipeline
}

func (c *CoreConfig) Stream() *StreamConfig {
	return c.stream
}

// TTL of cached per-cluster kubernetes clients.
func (c *CoreConfig) ClusterCacheTTL() time.Duration {
	return c.clusterCacheTTL
}

// ObjStoreConfig points at the bucket holding source archives.
type ObjStoreConfig struct {
	endpoint       string
	region         string
	bucket         string
	accessKey      string
	secretKey      string
	forcePathStyle bool
}

func (o *ObjStoreConfig) AsStoreConfig() objstore.Config {
	return objstore.Config{
		Endpoint:        o.endpoint,
		Region:          o.region,
		Bucket:          o.bucket,
		AccessKeyID:     o.accessKey,
		SecretAccessKey: o.secretKey,
		ForcePathStyle:  o.forcePathStyle,
	}
}

// PipelineConfig carries the deployment pipeline's timeouts and limits.
type PipelineConfig struct {
	buildTimeout     time.Duration
	hookTimeout      time.Duration
	rolloutTimeout   time.Duration
	pollInterval     time.Duration
	lockTTL          time.Duration
	envVarCeiling    int
	archiveWarnBytes int64
	workDir          string
}

func (p *PipelineConfig) AsPipelineConfig() pipeline.Config {
	return pipeline.Config{
		BuildTimeout:         p.buildTimeout,
		HookTimeout:          p.hookTimeout,
		RolloutTimeout:       p.rolloutTimeout,
		PollInterval:         p.pollInterval,
		LockTTL:              p.lockTTL,
		EnvVarCeiling:        p.envVarCeiling,
		ArchiveSizeWarnBytes: p.archiveWarnBytes,
		WorkDir:              p.workDir,
	}
}

// StreamConfig signs short-lived watch-stream URLs.
type StreamConfig struct {
	signingSecret string
	urlExpiry     time.Duration
}

func (s *StreamConfig) SigningSecret() string {
	return s.signingSecret
}

func (s *StreamConfig) URLExpiry() time.Duration {
	return s.urlExpiry
}
