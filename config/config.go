package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Lobby    LobbyConfig    `mapstructure:"lobby"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
}

type AuthConfig struct {
	CookieName string `mapstructure:"cookie_name"`
}

// LobbyConfig tunes matchmaking. A zero ChallengeTimeout keeps challenges
// pending until they are resolved or a party disconnects.
type LobbyConfig struct {
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type MonitorConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.max_message_size", 64*1024)
	v.SetDefault("auth.cookie_name", "dm.sid")
	v.SetDefault("lobby.challenge_timeout", time.Duration(0))
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "petlobby")
	v.SetDefault("admin.token", "")
	v.SetDefault("monitor.namespace", "petlobby")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. The file is optional; defaults
// and environment variables (SERVER_HTTP_ADDRESS, STORE_DRIVER, ...) apply
// either way.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
