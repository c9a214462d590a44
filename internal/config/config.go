// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	SCIF     SCIFConfig     `mapstructure:"scif"`
	Device   DeviceConfig   `mapstructure:"device"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents database configuration. Persistence is optional;
// with Enabled false samples are only streamed, never stored.
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	Retention      time.Duration `mapstructure:"retention"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	SmcWriteEnabled bool     `mapstructure:"smc_write_enabled"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SCIFConfig selects the transport library and bind behaviour
type SCIFConfig struct {
	LibraryName    string `mapstructure:"library_name"`
	LibraryVersion int    `mapstructure:"library_version"`
	// BindMode is "auto", "privileged" or "ephemeral". Auto binds a
	// privileged port only when running as root.
	BindMode string `mapstructure:"bind_mode"`
}

// DeviceConfig represents card handling configuration
type DeviceConfig struct {
	SysfsRoot      string        `mapstructure:"sysfs_root"`
	Devices        []int         `mapstructure:"devices"`
	OpenOnStart    bool          `mapstructure:"open_on_start"`
	OpenRetries    int           `mapstructure:"open_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	EnableRAS      bool          `mapstructure:"enable_ras"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	ScanInterval   time.Duration `mapstructure:"scan_interval"`
	SmbaWait       time.Duration `mapstructure:"smba_wait"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

var (
	validEnvironments = []string{"development", "staging", "production", "test"}
	validLevels       = []string{"debug", "info", "warn", "error", "fatal"}
	validBindModes    = []string{"auto", "privileged", "ephemeral"}
)

// Load loads configuration from file and environment variables. Extra search
// paths are tried before the defaults. A missing config file is not an
// error; defaults and MICMGMT_* variables still apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/micmgmt")

	// Environment variable support
	v.SetEnvPrefix("MICMGMT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "micmgmt")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "168h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.smc_write_enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// SCIF defaults
	v.SetDefault("scif.library_name", "libscif")
	v.SetDefault("scif.library_version", 0)
	v.SetDefault("scif.bind_mode", "auto")

	// Device defaults
	v.SetDefault("device.sysfs_root", "/sys")
	v.SetDefault("device.devices", []int{})
	v.SetDefault("device.open_on_start", true)
	v.SetDefault("device.open_retries", 3)
	v.SetDefault("device.retry_delay", "300ms")
	v.SetDefault("device.enable_ras", false)
	v.SetDefault("device.sample_interval", "10s")
	v.SetDefault("device.scan_interval", "60s")
	v.SetDefault("device.smba_wait", "0s")

	// App defaults
	v.SetDefault("app.name", "micmgmt-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database.enabled is set")
	}
	if config.SCIF.LibraryName == "" {
		return fmt.Errorf("scif.library_name is required")
	}
	if !slices.Contains(validBindModes, config.SCIF.BindMode) {
		return fmt.Errorf("scif.bind_mode must be one of: %v", validBindModes)
	}
	if config.Device.OpenRetries < 1 {
		return fmt.Errorf("device.open_retries must be at least 1")
	}
	if config.Device.SampleInterval <= 0 {
		return fmt.Errorf("device.sample_interval must be positive")
	}
	if config.Device.ScanInterval <= 0 {
		return fmt.Errorf("device.scan_interval must be positive")
	}
	for _, n := range config.Device.Devices {
		if n < 0 {
			return fmt.Errorf("device.devices contains negative card number %d", n)
		}
	}
	if !slices.Contains(validEnvironments, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvironments)
	}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// PrivilegedBind resolves the configured bind mode. isRoot is consulted
// only in auto mode.
func (c *Config) PrivilegedBind(isRoot bool) bool {
	switch c.SCIF.BindMode {
	case "privileged":
		return true
	case "ephemeral":
		return false
	default:
		return isRoot
	}
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
