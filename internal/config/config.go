package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the dashboard backend.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Clients  ClientsConfig  `yaml:"clients"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
	Window   WindowConfig   `yaml:"window"`
	Resolver ResolverConfig `yaml:"resolver"`
	Insight  InsightConfig  `yaml:"insight"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups backend integrations.
type ClientsConfig struct {
	SkyWalking SkyWalkingClientConfig `yaml:"skywalking"`
}

// SkyWalkingClientConfig configures access to the OAP GraphQL endpoint.
type SkyWalkingClientConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	GraphQLPath string        `yaml:"graphqlPath"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of expensive lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	InventoryTTL time.Duration `yaml:"inventoryTTL"`
	TopologyTTL  time.Duration `yaml:"topologyTTL"`
}

// WindowConfig tunes the shared observation window.
type WindowConfig struct {
	Skew time.Duration `yaml:"skew"`
}

// ResolverConfig controls entity name qualification.
type ResolverConfig struct {
	ClusterPrefix string `yaml:"clusterPrefix"`
	Qualify       bool   `yaml:"qualify"`
}

// InsightConfig tunes the storage trace scanner.
type InsightConfig struct {
	PageSize    int `yaml:"pageSize"`
	Concurrency int `yaml:"concurrency"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SKYOBSERV_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			SkyWalking: SkyWalkingClientConfig{
				GraphQLPath: "/graphql",
				Timeout:     10 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			InventoryTTL: time.Minute,
			TopologyTTL:  time.Minute,
		},
		Window: WindowConfig{Skew: 2 * time.Minute},
		Resolver: ResolverConfig{
			ClusterPrefix: "k8s-cluster",
			Qualify:       true,
		},
		Insight: InsightConfig{
			PageSize:    60,
			Concurrency: 8,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SKYOBSERV_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SKYOBSERV_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SKYOBSERV_OAP_BASE_URL"); v != "" {
		cfg.Clients.SkyWalking.BaseURL = v
	}
	if v := os.Getenv("SKYOBSERV_OAP_GRAPHQL_PATH"); v != "" {
		cfg.Clients.SkyWalking.GraphQLPath = v
	}
	if v := os.Getenv("SKYOBSERV_OAP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.SkyWalking.Timeout = d
		}
	}
	if v := os.Getenv("SKYOBSERV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SKYOBSERV_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SKYOBSERV_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SKYOBSERV_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SKYOBSERV_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SKYOBSERV_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SKYOBSERV_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SKYOBSERV_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SKYOBSERV_CACHE_INVENTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.InventoryTTL = d
		}
	}
	if v := os.Getenv("SKYOBSERV_CACHE_TOPOLOGY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TopologyTTL = d
		}
	}
	if v := os.Getenv("SKYOBSERV_WINDOW_SKEW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Window.Skew = d
		}
	}
	if v := os.Getenv("SKYOBSERV_CLUSTER_PREFIX"); v != "" {
		cfg.Resolver.ClusterPrefix = v
	}
	if v := os.Getenv("SKYOBSERV_RESOLVER_QUALIFY"); v != "" {
		cfg.Resolver.Qualify = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SKYOBSERV_INSIGHT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Insight.PageSize = n
		}
	}
	if v := os.Getenv("SKYOBSERV_INSIGHT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Insight.Concurrency = n
		}
	}
}
