package quote

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"coincharts/pkg/confkit"
)

// Config describes the set of quote sources available to the application.
type Config struct {
	Default string                   `yaml:"default"`
	Sources map[string]*SourceConfig `yaml:"sources"`
}

// SourceConfig represents configuration for a single quote source.
type SourceConfig struct {
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
	MaxRetries     int           `yaml:"max_retries"`
}

// SourceBuilder constructs a Source from configuration.
type SourceBuilder func(name string, cfg *SourceConfig) (Source, error)

var (
	sourceRegistry   = make(map[string]SourceBuilder)
	sourceRegistryMu sync.RWMutex
)

// RegisterSource registers a quote source constructor.
func RegisterSource(typeName string, builder SourceBuilder) {
	sourceRegistryMu.Lock()
	defer sourceRegistryMu.Unlock()
	sourceRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupSourceBuilder(typeName string) (SourceBuilder, bool) {
	sourceRegistryMu.RLock()
	defer sourceRegistryMu.RUnlock()
	builder, ok := sourceRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open quote config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads quote configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/quote.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read quote config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal quote config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Sources == nil {
		c.Sources = make(map[string]*SourceConfig)
	}
	for name, src := range c.Sources {
		if src == nil {
			src = &SourceConfig{}
			c.Sources[name] = src
		}
		src.expandEnv()
		if err := src.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *SourceConfig) expandEnv() {
	s.Type = strings.TrimSpace(os.ExpandEnv(s.Type))
	s.BaseURL = strings.TrimSpace(os.ExpandEnv(s.BaseURL))
	s.APIKey = strings.TrimSpace(os.ExpandEnv(s.APIKey))
	s.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(s.HTTPTimeoutRaw))
}

func (s *SourceConfig) parseDurations(name string) error {
	if s.HTTPTimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(s.HTTPTimeoutRaw)
	if err != nil {
		return fmt.Errorf("quote source %s: invalid http_timeout %q: %w", name, s.HTTPTimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("quote source %s: http_timeout must be positive, got %s", name, d)
	}
	s.HTTPTimeout = d
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("quote config: sources cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Sources[c.Default]; !ok {
			return fmt.Errorf("quote config: default source %q not defined", c.Default)
		}
	}
	for name, src := range c.Sources {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("quote config: source name cannot be empty")
		}
		if src == nil {
			return fmt.Errorf("quote config: source %s is nil", name)
		}
		if strings.TrimSpace(src.Type) == "" {
			return fmt.Errorf("quote config: source %s must specify type", name)
		}
		if _, ok := lookupSourceBuilder(src.Type); !ok {
			return fmt.Errorf("quote config: source %s has unsupported type %q", name, src.Type)
		}
	}
	return nil
}

// BuildSources instantiates quote sources according to configuration.
func (c *Config) BuildSources() (map[string]Source, error) {
	result := make(map[string]Source, len(c.Sources))
	for name, srcCfg := range c.Sources {
		builder, ok := lookupSourceBuilder(srcCfg.Type)
		if !ok {
			return nil, fmt.Errorf("quote source %s: unsupported type %q", name, srcCfg.Type)
		}
		src, err := builder(name, srcCfg)
		if err != nil {
			return nil, fmt.Errorf("quote source %s: %w", name, err)
		}
		result[name] = src
	}
	return result, nil
}
