// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/devicehub/lib/blobstore"
	"github.com/bureau-foundation/devicehub/lib/integrity"
	"github.com/bureau-foundation/devicehub/lib/registry"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/secret"
	"github.com/bureau-foundation/devicehub/lib/sqlitepool"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "DEVICEHUB_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local machines and test benches.
	Development Environment = "development"
	// Production is for deployed servers.
	Production Environment = "production"
)

// Config is the server configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Listen    ListenConfig    `yaml:"listen"`
	Paths     PathsConfig     `yaml:"paths"`
	Store     StoreConfig     `yaml:"store"`
	Registry  RegistryConfig  `yaml:"registry"`
	Session   SessionConfig   `yaml:"session"`
	Integrity IntegrityConfig `yaml:"integrity"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`

	// Per-environment overrides, applied after the base sections when
	// Environment matches.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment block may replace.
// Only non-empty fields take effect.
type Overrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// ListenConfig is the device protocol listen address.
type ListenConfig struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string `yaml:"host"`

	// Port is the TCP port. Default: 12345.
	Port int `yaml:"port"`
}

// Address returns host:port suitable for net.Listen.
func (l ListenConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Data holds the database, the blob tree and the lock file.
	// Supports ${HOME} and ${VAR:-default} expansion.
	Data string `yaml:"data"`
}

// StoreConfig tunes persistence.
type StoreConfig struct {
	// Synchronous is the SQLite synchronous level: FULL or NORMAL.
	// Default: FULL.
	Synchronous string `yaml:"synchronous"`

	// Compression is the codec for new image blobs: none, lz4 or zstd.
	// Default: zstd.
	Compression string `yaml:"compression"`
}

// RegistryConfig configures authentication and access policy.
type RegistryConfig struct {
	// BcryptCost is the cost for new secret hashes. Default: 10.
	BcryptCost int `yaml:"bcrypt_cost"`

	// ImageReadPolicy is shared-domain or default-domain.
	// Default: shared-domain.
	ImageReadPolicy string `yaml:"image_read_policy"`

	// DefaultDomain is the domain consulted by the default-domain
	// policy. Required with that policy, ignored otherwise.
	DefaultDomain string `yaml:"default_domain"`
}

// SessionConfig bounds per-connection input.
type SessionConfig struct {
	// MaxImageBytes bounds one EI payload. Default: 16 MiB.
	MaxImageBytes int64 `yaml:"max_image_bytes"`

	// MaxCommandBytes bounds one string message. Default: 4096.
	MaxCommandBytes int `yaml:"max_command_bytes"`
}

// IntegrityConfig selects the program integrity oracle.
type IntegrityConfig struct {
	// AllowAll accepts every program. Rejected in production.
	AllowAll bool `yaml:"allow_all"`

	// AllowListFile is a "name,size" text file of accepted programs.
	AllowListFile string `yaml:"allow_list_file"`

	// Programs are accepted in addition to AllowListFile entries.
	Programs []integrity.Program `yaml:"programs"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`

	// Format is text, json or auto. Auto picks text when stderr is a
	// terminal and json otherwise. Default: auto.
	Format string `yaml:"format"`
}

// Log formats accepted in LogConfig.Format.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Default returns the configuration used for fields the file leaves
// unset.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen:      ListenConfig{Port: device.DefaultPort},
		Paths:       PathsConfig{Data: "${HOME}/.local/share/devicehub"},
		Store: StoreConfig{
			Synchronous: string(sqlitepool.SynchronousFull),
			Compression: "zstd",
		},
		Registry: RegistryConfig{
			BcryptCost:      secret.DefaultCost,
			ImageReadPolicy: string(registry.PolicySharedDomain),
		},
		Session: SessionConfig{
			MaxImageBytes:   16 << 20,
			MaxCommandBytes: 4096,
		},
		Log: LogConfig{Level: "info", Format: LogFormatAuto},
	}
}

// Load loads configuration from the file named by DEVICEHUB_CONFIG.
// There is no discovery: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your devicehub.yaml, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over [Default]. Unknown keys
// are an error. The result is not validated; call [Config.Validate]
// after applying command-line overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over [Default], then applies environment
// overrides and variable expansion. An empty document yields the
// defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.ExpandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides merges the block matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil && overrides.Paths.Data != "" {
		c.Paths.Data = overrides.Paths.Data
	}
	if overrides.Metrics != nil && overrides.Metrics.Listen != "" {
		c.Metrics.Listen = overrides.Metrics.Listen
	}
	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in path fields.
// Command-line overrides that may carry such patterns should be set
// before calling it again.
func (c *Config) ExpandVariables() {
	c.Paths.Data = expandVars(c.Paths.Data)
	c.Integrity.AllowListFile = expandVars(c.Integrity.AllowListFile)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if c.Paths.Data == "" {
		errs = append(errs, errors.New("paths.data is required"))
	}

	if _, err := sqlitepool.ParseSynchronous(c.Store.Synchronous); err != nil {
		errs = append(errs, fmt.Errorf("store.synchronous: %w", err))
	}
	if _, err := blobstore.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, fmt.Errorf("store.compression: %w", err))
	}

	if c.Registry.BcryptCost < secret.MinCost || c.Registry.BcryptCost > secret.MaxCost {
		errs = append(errs, fmt.Errorf("registry.bcrypt_cost must be between %d and %d, got %d",
			secret.MinCost, secret.MaxCost, c.Registry.BcryptCost))
	}
	policy, err := registry.ParseImagePolicy(c.Registry.ImageReadPolicy)
	if err != nil {
		errs = append(errs, fmt.Errorf("registry.image_read_policy: %w", err))
	}
	if policy == registry.PolicyDefaultDomain {
		if err := device.ValidateDomainName(c.Registry.DefaultDomain); err != nil {
			errs = append(errs, fmt.Errorf("registry.default_domain: %w", err))
		}
	}

	if c.Session.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("session.max_image_bytes must be positive"))
	}
	if c.Session.MaxCommandBytes <= 0 {
		errs = append(errs, errors.New("session.max_command_bytes must be positive"))
	}

	if c.Integrity.AllowAll {
		if c.Environment == Production {
			errs = append(errs, errors.New("integrity.allow_all is not permitted in production"))
		}
	} else if c.Integrity.AllowListFile == "" && len(c.Integrity.Programs) == 0 {
		errs = append(errs, errors.New("integrity: set allow_all, allow_list_file or programs"))
	}
	for i, program := range c.Integrity.Programs {
		if program.Name == "" || program.Size < 0 {
			errs = append(errs, fmt.Errorf("integrity.programs[%d]: need a name and a non-negative size", i))
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be auto, text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// StoreSynchronous returns the validated synchronous level.
func (c *Config) StoreSynchronous() sqlitepool.Synchronous {
	level, _ := sqlitepool.ParseSynchronous(c.Store.Synchronous)
	return level
}

// Oracle builds the integrity oracle the configuration describes.
func (c *Config) Oracle(logger *slog.Logger) (integrity.Oracle, error) {
	if c.Integrity.AllowAll {
		return integrity.AllowAll{}, nil
	}
	programs := append([]integrity.Program(nil), c.Integrity.Programs...)
	if c.Integrity.AllowListFile != "" {
		fromFile, err := integrity.LoadAllowListFile(c.Integrity.AllowListFile, logger)
		if err != nil {
			return nil, err
		}
		programs = append(programs, fromFile...)
	}
	return integrity.NewAllowList(programs...), nil
}
