// Package config loads the blocksync configuration from a YAML file and the
// environment.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/c2h5oh/datasize"
	"github.com/caarlos0/env/v7"
	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/reload"
	"github.com/roach88/blocksync/internal/rules"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Notification transports.
const (
	TransportSocket = "socket"
	TransportRedis  = "redis"
	TransportMemory = "memory"
)

// Config is the complete blocksync configuration.
type Config struct {
	Store             StoreConfig    `yaml:"store"`
	Assets            AssetsConfig   `yaml:"assets"`
	Artifact          ArtifactConfig `yaml:"artifact"`
	Notify            NotifyConfig   `yaml:"notify"`
	Reload            ReloadConfig   `yaml:"reload"`
	Trust             TrustConfig    `yaml:"trust"`
	Metrics           MetricsConfig  `yaml:"metrics"`
	Sentry            SentryConfig   `yaml:"sentry"`
	DefaultCategories []string       `yaml:"default_categories"`
}

// StoreConfig locates the shared database.
type StoreConfig struct {
	Path string `yaml:"path" env:"BLOCKSYNC_DB"`
}

// AssetsConfig locates the rule assets.
type AssetsConfig struct {
	Root        string            `yaml:"root" env:"BLOCKSYNC_ASSETS"`
	MaxFileSize datasize.ByteSize `yaml:"max_file_size" env:"BLOCKSYNC_MAX_FILE_SIZE"`
}

// ArtifactConfig describes the materialized artifact.
type ArtifactConfig struct {
	Path string `yaml:"path" env:"BLOCKSYNC_ARTIFACT"`
	ID   string `yaml:"id" env:"BLOCKSYNC_ARTIFACT_ID"`
}

// NotifyConfig selects and configures the notification transport.
//
// With the socket transport the engine listens on SocketPath and the runtime
// listens on ReloadSocketPath, where reload notifications are posted.
type NotifyConfig struct {
	Transport        string  `yaml:"transport" env:"BLOCKSYNC_TRANSPORT"`
	SocketPath       string  `yaml:"socket_path" env:"BLOCKSYNC_SOCKET"`
	ReloadSocketPath string  `yaml:"reload_socket_path" env:"BLOCKSYNC_RELOAD_SOCKET"`
	RedisURL         string  `yaml:"redis_url" env:"BLOCKSYNC_REDIS_URL"`
	Channel          string  `yaml:"channel"`
	PeerID           string  `yaml:"peer_id" env:"BLOCKSYNC_PEER_ID"`
	MaxRate          float64 `yaml:"max_rate"`
	Burst            int     `yaml:"burst"`
}

// ReloadConfig configures the runtime reload.  An empty command posts a
// reload notification on the bus instead.
type ReloadConfig struct {
	Command []string `yaml:"command" env:"BLOCKSYNC_RELOAD_COMMAND" envSeparator:" "`
}

// TrustConfig configures the trusted-domain cache.
type TrustConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// MetricsConfig configures the Prometheus endpoint.  An empty address
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"BLOCKSYNC_METRICS_ADDR"`
}

// SentryConfig configures error reporting.  An empty DSN disables it.
type SentryConfig struct {
	DSN string `yaml:"dsn" env:"SENTRY_DSN"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "blocksync.db",
		},
		Assets: AssetsConfig{
			Root:        "assets",
			MaxFileSize: rules.DefaultMaxFileSize,
		},
		Artifact: ArtifactConfig{
			Path: "blockerList.json",
			ID:   reload.DefaultArtifactID,
		},
		Notify: NotifyConfig{
			Transport:        TransportSocket,
			SocketPath:       "blocksync.sock",
			ReloadSocketPath: "blocksync-runtime.sock",
			Channel:          notify.DefaultChannel,
			PeerID:           notify.DefaultPeer,
			MaxRate:          50,
			Burst:            10,
		},
		Trust: TrustConfig{
			CacheTTL: 2 * time.Second,
		},
	}
}

// Load returns the configuration from the file at path, or the built-in
// defaults if path is empty, with environment overrides applied.
func Load(path string) (c *Config, err error) {
	c = Default()

	if path != "" {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("reading config: %w", rerr)
		}

		if err = Validate(path, data); err != nil {
			return nil, err
		}

		if err = yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("decoding config %s: %w", path, err)
		}
	}

	if err = env.Parse(c); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err = c.check(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks the YAML document data against the configuration schema.
// name is used in error positions.
func Validate(name string, data []byte) (err error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err = schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", name, err)
	}

	doc := ctx.BuildFile(file)
	if err = doc.Err(); err != nil {
		return fmt.Errorf("building config %s: %w", name, err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err = def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %w", name, err)
	}

	return nil
}

// check validates the values that the environment may have overridden.
func (c *Config) check() (err error) {
	switch c.Notify.Transport {
	case TransportSocket, TransportRedis, TransportMemory:
	default:
		return fmt.Errorf("notify.transport: unknown transport %q", c.Notify.Transport)
	}

	if c.Notify.Transport == TransportRedis && c.Notify.RedisURL == "" {
		return fmt.Errorf("notify.redis_url: required for the redis transport")
	}

	if c.Notify.Transport == TransportSocket && len(c.Reload.Command) == 0 {
		switch c.Notify.ReloadSocketPath {
		case "":
			return fmt.Errorf("notify.reload_socket_path: required without reload.command")
		case c.Notify.SocketPath:
			return fmt.Errorf("notify.reload_socket_path: must differ from notify.socket_path")
		}
	}

	if _, err = c.DefaultCategoryIDs(); err != nil {
		return fmt.Errorf("default_categories: %w", err)
	}

	return nil
}

// DefaultCategoryIDs returns the configured default category set, or the
// built-in one when none is configured.
func (c *Config) DefaultCategoryIDs() (ids []category.ID, err error) {
	if len(c.DefaultCategories) == 0 {
		return category.Default(), nil
	}

	ids, err = category.ParseAll(c.DefaultCategories)
	if err != nil {
		return nil, err
	}

	return category.Dedup(ids), nil
}

// Layout returns the asset layout.
func (c *Config) Layout() rules.Layout {
	return rules.Layout{Root: c.Assets.Root}
}
