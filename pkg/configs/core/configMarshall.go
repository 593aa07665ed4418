package core

import (
	"time"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type CoreConfigMarshall struct {
	Port             int32                   `yaml:"port"`
	Database         string                  `yaml:"database"`
	ObjStore         *ObjStoreConfigMarshall `yaml:"objStore"`
	BuildServiceURL  string                  `yaml:"buildServiceURL"`
	SourceServiceURL string                  `yaml:"sourceServiceURL"`
	Pipeline         *PipelineConfigMarshall `yaml:"pipeline,omitempty"`
	Stream           *StreamConfigMarshall   `yaml:"stream"`

	ClusterCacheTTLSeconds int `yaml:"clusterCacheTTLSeconds,omitempty"`
}

var _ Marshalled[*CoreConfig] = &CoreConfigMarshall{}

func (c *CoreConfigMarshall) trySeal(path string) *CoreConfig {
	pipe := c.Pipeline
	if pipe == nil {
		pipe = &PipelineConfigMarshall{}
	}
	cacheTTL := c.ClusterCacheTTLSeconds
	if cacheTTL == 0 {
		cacheTTL = 600
	}
	return &CoreConfig{
		port:             required(c.Port, path+".port"),
		database:         required(c.Database, path+".database"),
		objStore:         nonnil(c.ObjStore, path+".objStore").trySeal(path + ".objStore"),
		buildServiceURL:  required(c.BuildServiceURL, path+".buildServiceURL"),
		sourceServiceURL: required(c.SourceServiceURL, path+".sourceServiceURL"),
		pipeline:         pipe.trySeal(path + ".pipeline"),
		stream:           nonnil(c.Stream, path+".stream").trySeal(path + ".stream"),
		clusterCacheTTL:  time.Duration(cacheTTL) * time.Second,
	}
}

type ObjStoreConfigMarshall struct {
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	AccessKey      string `yaml:"accessKey"`
	SecretKey      string `yaml:"secretKey"`
	ForcePathStyle bool   `yaml:"forcePathStyle,omitempty"`
}

func (o *ObjStoreConfigMarshall) trySeal(path string) *ObjStoreConfig {
	return &ObjStoreConfig{
		endpoint:       required(o.Endpoint, path+".endpoint"),
		region:         required(o.Region, path+".region"),
		bucket:         required(o.Bucket, path+".bucket"),
		accessKey:      required(o.AccessKey, path+".accessKey"),
		secretKey:      required(o.SecretKey, path+".secretKey"),
		forcePathStyle: o.ForcePathStyle,
	}
}

// PipelineConfigMarshall holds the deployment pipeline tuning knobs.
// Every field has a serviceable default; an empty block is valid.
type PipelineConfigMarshall struct {
	BuildTimeoutSeconds   int `yaml:"buildTimeoutSeconds,omitempty"`
	HookTimeoutSeconds    int `yaml:"hookTimeoutSeconds,omitempty"`
	RolloutTimeoutSeconds int `yaml:"rolloutTimeoutSeconds,omitempty"`
	PollIntervalSeconds   int `yaml:"pollIntervalSeconds,omitempty"`
	LockTTLSeconds        int `yaml:"lockTTLSeconds,omitempty"`

	EnvVarCeiling    int    `yaml:"envVarCeiling,omitempty"`
	ArchiveWarnBytes int64  `yaml:"archiveWarnBytes,omitempty"`
	WorkDir          string `yaml:"workDir,omitempty"`
}

func (p *PipelineConfigMarshall) trySeal(path string) *PipelineConfig {
	return &PipelineConfig{
		buildTimeout:     secondsOr(p.BuildTimeoutSeconds, 900),
		hookTimeout:      secondsOr(p.HookTimeoutSeconds, 300),
		rolloutTimeout:   secondsOr(p.RolloutTimeoutSeconds, 600),
		pollInterval:     secondsOr(p.PollIntervalSeconds, 2),
		lockTTL:          secondsOr(p.LockTTLSeconds, 60),
		envVarCeiling:    p.EnvVarCeiling,
		archiveWarnBytes: p.ArchiveWarnBytes,
		workDir:          p.WorkDir,
	}
}

type StreamConfigMarshall struct {
	SigningSecret    string `yaml:"signingSecret"`
	URLExpirySeconds int    `yaml:"urlExpirySeconds,omitempty"`
}

func (s *StreamConfigMarshall) trySeal(path string) *StreamConfig {
	return &StreamConfig{
		signingSecret: required(s.SigningSecret, path+".signingSecret"),
		urlExpiry:     secondsOr(s.URLExpirySeconds, 180),
	}
}

func secondsOr(v int, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
