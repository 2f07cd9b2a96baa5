package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/artpar/storedeploy/internal/shell/objectstore"
	"github.com/artpar/storedeploy/internal/shell/pipeline"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log         LogConfig           `mapstructure:"log"`
	Server      ServerConfig        `mapstructure:"server"`
	SSH         SSHConfig           `mapstructure:"ssh"`
	Workdir     WorkdirConfig       `mapstructure:"workdir"`
	Health      domain.HealthPolicy `mapstructure:"health"`
	ObjectStore ObjectStoreConfig   `mapstructure:"objectstore"`
	Docker      DockerConfig        `mapstructure:"docker"`
	Project     ProjectConfig       `mapstructure:"project"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds a whole response, including deployment streams.
	// Zero disables it.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Token protects /api/v1 when set.
	Token string `mapstructure:"token"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SSHConfig holds the connection settings of remote deployments.
type SSHConfig struct {
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	KeyPath        string        `mapstructure:"key_path"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// Remote returns the backend config template. The host is set per target.
func (c SSHConfig) Remote() backend.RemoteConfig {
	return backend.RemoteConfig{
		Port:           c.Port,
		User:           c.User,
		KeyPath:        c.KeyPath,
		KnownHostsPath: c.KnownHosts,
		ConnectTimeout: c.ConnectTimeout,
		CommandTimeout: c.CommandTimeout,
	}
}

// WorkdirConfig holds the settings of local deployments.
type WorkdirConfig struct {
	Root           string        `mapstructure:"root"`
	Shell          string        `mapstructure:"shell"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// Local returns the backend config template. The directory is set per run.
func (c WorkdirConfig) Local() backend.LocalConfig {
	return backend.LocalConfig{
		Shell:          c.Shell,
		CommandTimeout: c.CommandTimeout,
	}
}

// ObjectStoreConfig enables image upload after reconciliation.
type ObjectStoreConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	objectstore.Config `mapstructure:",squash"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
	// APIProbe checks local container health through the Docker API
	// instead of docker inspect.
	APIProbe bool `mapstructure:"api_probe"`
	// ReadyCheck makes /ready ping the Docker daemon.
	ReadyCheck bool `mapstructure:"ready_check"`
}

// ProjectConfig names the compose project and carries its secrets.
type ProjectConfig struct {
	Name         string `mapstructure:"name"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	CookieSecret string `mapstructure:"cookie_secret"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	store := objectstore.DefaultConfig()
	remote := backend.DefaultRemoteConfig("")

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.token", "")
	v.SetDefault("ssh.port", remote.Port)
	v.SetDefault("ssh.user", remote.User)
	v.SetDefault("ssh.key_path", remote.KeyPath)
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.connect_timeout", remote.ConnectTimeout.String())
	v.SetDefault("ssh.command_timeout", remote.CommandTimeout.String())
	v.SetDefault("workdir.root", pipeline.DefaultLocalRoot())
	v.SetDefault("workdir.shell", "sh")
	v.SetDefault("workdir.command_timeout", "10m")
	v.SetDefault("health.interval", domain.DefaultHealthInterval.String())
	v.SetDefault("health.timeout", domain.DefaultHealthTimeout.String())
	v.SetDefault("health.retries", domain.DefaultHealthRetries)
	v.SetDefault("objectstore.enabled", false)
	v.SetDefault("objectstore.endpoint", store.Endpoint)
	v.SetDefault("objectstore.access_key", store.AccessKey)
	v.SetDefault("objectstore.secret_key", store.SecretKey)
	v.SetDefault("objectstore.use_ssl", store.UseSSL)
	v.SetDefault("objectstore.region", store.Region)
	v.SetDefault("objectstore.bucket", store.Bucket)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.api_probe", false)
	v.SetDefault("docker.ready_check", true)
	v.SetDefault("project.name", deployment.DefaultProjectName)
	v.SetDefault("project.jwt_secret", "")
	v.SetDefault("project.cookie_secret", "")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("STOREDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ObjectStore.Enabled {
		if err := cfg.ObjectStore.Validate(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to w so progress output on stdout stays readable.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
