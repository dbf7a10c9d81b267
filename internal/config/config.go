package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/KevinKickass/ngxconfig/internal/eeprom"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Sequencer SequencerConfig `mapstructure:"sequencer"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Presets   PresetsConfig   `mapstructure:"presets"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	AutoConnect bool          `mapstructure:"auto_connect"`
	// Simulate replaces the serial port with an in-process controller.
	Simulate    bool          `mapstructure:"simulate"`
}

// ProtocolConfig holds the EEPROM request/response PGNs the device listens on.
type ProtocolConfig struct {
	WritePGN      uint32 `mapstructure:"write_pgn"`
	ReadPGN       uint32 `mapstructure:"read_pgn"`
	ResponsePGN   uint32 `mapstructure:"response_pgn"`
	SourceAddress uint8  `mapstructure:"source_address"`
	Priority      uint8  `mapstructure:"priority"`
}

func (p ProtocolConfig) EEPROM() eeprom.Protocol {
	return eeprom.Protocol{
		WritePGN:    p.WritePGN,
		ReadPGN:     p.ReadPGN,
		ResponsePGN: p.ResponsePGN,
		SA:          p.SourceAddress,
		Priority:    p.Priority,
	}
}

type SequencerConfig struct {
	OpTimeout            time.Duration `mapstructure:"op_timeout"`
	RetryLimit           int           `mapstructure:"retry_limit"`
	TolerateReadFailures bool          `mapstructure:"tolerate_read_failures"`
	WritePacing          time.Duration `mapstructure:"write_pacing"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv         string        `mapstructure:"jwt_secret_env"`
	AdminPasswordHashEnv string        `mapstructure:"admin_password_hash_env"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
}

type PresetsConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.read_timeout", "50ms")
	v.SetDefault("serial.auto_connect", false)
	v.SetDefault("serial.simulate", false)

	v.SetDefault("protocol.write_pgn", eeprom.DefaultWritePGN)
	v.SetDefault("protocol.read_pgn", eeprom.DefaultReadPGN)
	v.SetDefault("protocol.response_pgn", eeprom.DefaultResponsePGN)
	v.SetDefault("protocol.source_address", eeprom.DefaultSA)
	v.SetDefault("protocol.priority", eeprom.DefaultPriority)

	v.SetDefault("sequencer.op_timeout", "300ms")
	v.SetDefault("sequencer.retry_limit", 3)
	v.SetDefault("sequencer.tolerate_read_failures", true)
	v.SetDefault("sequencer.write_pacing", "0s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "ngxconfig")
	v.SetDefault("database.user", "ngxconfig")
	v.SetDefault("database.max_connections", 4)

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "NGX_JWT_SECRET")
	v.SetDefault("auth.admin_password_hash_env", "NGX_ADMIN_PASSWORD_HASH")
	v.SetDefault("auth.session_ttl", "8h")

	v.SetDefault("presets.search_paths", []string{})
	v.SetDefault("log.development", false)
}

// Load reads the YAML file at path. An empty path uses defaults and
// environment only. Every key can be overridden with NGX_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	// Environment Variables mit Prefix NGX_
	v.SetEnvPrefix("NGX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Sequencer.RetryLimit < 1 {
		return nil, fmt.Errorf("sequencer.retry_limit must be at least 1, got %d", config.Sequencer.RetryLimit)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "NGX_JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback
		return devSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}

// AdminPasswordHash returns the encoded argon2id hash guarding Admin mode,
// or "" when Admin mode is disabled.
func (a *AuthConfig) AdminPasswordHash() string {
	if a.AdminPasswordHashEnv == "" {
		return ""
	}
	return os.Getenv(a.AdminPasswordHashEnv)
}
