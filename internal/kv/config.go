package kv

import (
	"fmt"
	"strings"
	"time"

	"kvchat/internal/utils"
)

const (
	BackendEtcd   = "etcd"
	BackendConsul = "consul"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	DefaultDialTimeout    = 5 * time.Second
	DefaultRequestTimeout = 3 * time.Second
	DefaultConnectRetries = 5
)

// Config selects and addresses a store backend.
type Config struct {
	Backend   string   `yaml:"backend"`
	Endpoints []string `yaml:"endpoints"`
	// Namespace prefixes every key so several deployments can share a cluster.
	Namespace      string        `yaml:"namespace"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Token          string        `yaml:"token"`
	Database       int           `yaml:"database"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ConnectRetries int           `yaml:"connect_retries"`
	Transactions   bool          `yaml:"transactions"`
}

func DefaultConfig() Config {
	return Config{
		Backend:        BackendEtcd,
		Endpoints:      []string{"127.0.0.1:2379"},
		DialTimeout:    DefaultDialTimeout,
		RequestTimeout: DefaultRequestTimeout,
		ConnectRetries: DefaultConnectRetries,
		Transactions:   true,
	}
}

// Sanitize fills zero values with defaults.
func (c *Config) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendEtcd
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 1
	}
	if c.Namespace != "" && !strings.HasSuffix(c.Namespace, "/") {
		c.Namespace += "/"
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendEtcd, BackendConsul, BackendRedis:
	default:
		return ErrUnknownBackend.WithDetails(c.Backend)
	}
	if len(c.Endpoints) == 0 {
		return utils.ValidationError(fmt.Sprintf("store backend %q needs at least one endpoint", c.Backend))
	}
	for _, ep := range c.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return utils.ValidationError("empty store endpoint")
		}
	}
	return nil
}
