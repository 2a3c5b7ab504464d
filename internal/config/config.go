package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "HUDDLE"

// Config is the relay server configuration.
type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	LogLevel   string        `mapstructure:"log_level"`

	SpeakerInterval  time.Duration `mapstructure:"speaker_interval"`
	SpeakerThreshold float64       `mapstructure:"speaker_threshold"`
	ChatLimit        int           `mapstructure:"chat_limit"`
	ChatInterval     time.Duration `mapstructure:"chat_interval"`
	SlowStrikes      int           `mapstructure:"slow_strikes"`
	MaxRoomSize      int           `mapstructure:"max_room_size"`
	// AdminKey enables DELETE /api/rooms/:name when set.
	AdminKey string `mapstructure:"admin_key"`
}

type DeviceConfig struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
	Kind  string `mapstructure:"kind"`
}

// ClientConfig configures the huddle command-line client.
type ClientConfig struct {
	ServerURL        string         `mapstructure:"server_url"`
	TokenURL         string         `mapstructure:"token_url"`
	ICEServers       []string       `mapstructure:"ice_servers"`
	Devices          []DeviceConfig `mapstructure:"devices"`
	SpeakerSmoothing int            `mapstructure:"speaker_smoothing"`
	RequestTimeout   time.Duration  `mapstructure:"request_timeout"`
	LogLevel         string         `mapstructure:"log_level"`
}

func envFile(base string) string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/%s.%s.yaml", base, env)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// read loads fileName when it exists; a missing file leaves defaults and env in charge.
func read(v *viper.Viper, fileName string) error {
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", fileName, err)
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	return nil
}

// Load reads config/config.<CONFIG_ENV>.yaml.
func Load() (*Config, error) {
	return LoadFile(envFile("config"))
}

func LoadFile(fileName string) (*Config, error) {
	v := newViper()
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("token_ttl", "1h")
	v.SetDefault("log_level", "info")
	v.SetDefault("speaker_interval", "300ms")
	v.SetDefault("speaker_threshold", 0.05)
	v.SetDefault("chat_limit", 5)
	v.SetDefault("chat_interval", "5s")
	v.SetDefault("slow_strikes", 3)
	v.SetDefault("max_room_size", 8)
	v.SetDefault("admin_key", "")

	if err := read(v, fileName); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		return nil, errors.New("secret must be set (config file or HUDDLE_SECRET)")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("server config")
	return &cfg, nil
}

// LoadClient reads fileName, or config/client.<CONFIG_ENV>.yaml when fileName is empty.
func LoadClient(fileName string) (*ClientConfig, error) {
	if fileName == "" {
		fileName = envFile("client")
	}
	v := newViper()
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("token_url", "http://localhost:8080/api/token")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("devices", []map[string]string{
		{"id": "default-mic", "label": "Default microphone", "kind": "audio"},
		{"id": "default-cam", "label": "Default camera", "kind": "video"},
	})
	v.SetDefault("speaker_smoothing", 1)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("log_level", "warn")

	if err := read(v, fileName); err != nil {
		return nil, err
	}
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}
