package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const appName = "retouch"

// Because we don't need viper's mess for just storing configuration from
// a source.
type config struct {
	Main      configMain      `toml:"main"`
	Service   configService   `toml:"service"`
	Server    configServer    `toml:"server"`
	Display   configDisplay   `toml:"display"`
	Journal   configJournal   `toml:"journal"`
	Telemetry configTelemetry `toml:"telemetry"`
}

type configMain struct {
	LogLevel      string `toml:"log_level" env:"RETOUCH_LOG_LEVEL"`
	DevMode       bool   `toml:"dev_mode" env:"RETOUCH_DEV_MODE"`
	DataDirectory string `toml:"data_directory" env:"RETOUCH_DATA_DIRECTORY"`
}

type configService struct {
	URL     string `toml:"url" env:"RETOUCH_SERVICE_URL"`
	Timeout int    `toml:"timeout" env:"RETOUCH_SERVICE_TIMEOUT"` // seconds
}

type configServer struct {
	Host       string `toml:"host" env:"RETOUCH_SERVER_HOST"`
	Port       int    `toml:"port" env:"RETOUCH_SERVER_PORT"`
	Prefix     string `toml:"prefix" env:"RETOUCH_SERVER_PREFIX"`
	MaxHistory int    `toml:"max_history" env:"RETOUCH_SERVER_MAX_HISTORY"`
	MaxUpload  int64  `toml:"max_upload" env:"RETOUCH_SERVER_MAX_UPLOAD"` // bytes
}

type configDisplay struct {
	Backend   string `toml:"backend" env:"RETOUCH_DISPLAY"`
	Directory string `toml:"directory" env:"RETOUCH_DISPLAY_DIRECTORY"`
	Cols      int    `toml:"cols"`
	Rows      int    `toml:"rows"`
}

type configJournal struct {
	Enabled bool   `toml:"enabled" env:"RETOUCH_JOURNAL"`
	Source  string `toml:"source" env:"RETOUCH_JOURNAL_SOURCE"`
}

type configTelemetry struct {
	Endpoint string `toml:"endpoint" env:"RETOUCH_OTEL_ENDPOINT"`
}

// Config holds the configuration data from configuration files
// or flags.
//
// This variable sets some default values that might be overwritten
// by a configuration file.
var Config = config{
	Main: configMain{
		LogLevel:      "info",
		DevMode:       false,
		DataDirectory: filepath.Join(xdg.DataHome, appName),
	},
	Service: configService{
		URL:     "http://127.0.0.1:8000/api/py",
		Timeout: 30,
	},
	Server: configServer{
		Host:       "127.0.0.1",
		Port:       8000,
		Prefix:     "/api/py",
		MaxHistory: 100,
		MaxUpload:  50 << 20,
	},
	Display: configDisplay{
		Backend: "file",
		Cols:    60,
		Rows:    20,
	},
	Journal: configJournal{
		Enabled: true,
	},
}

// LoadConfiguration loads the configuration file, then applies the
// environment overrides.
func LoadConfiguration(configPath string) error {
	if configPath != "" {
		if err := loadFile(configPath); err != nil {
			return err
		}
	}

	if err := env.Parse(&Config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if Config.Journal.Source == "" {
		Config.Journal.Source = "sqlite3:" + filepath.Join(Config.Main.DataDirectory, "journal.sqlite3")
	}

	return nil
}

func loadFile(configPath string) error {
	fd, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer fd.Close()

	dec := toml.NewDecoder(fd)
	if err := dec.Decode(&Config); err != nil {
		return err
	}

	return nil
}

// WriteConfig writes configuration to a file.
func WriteConfig(filename string) error {
	fd, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	enc := toml.NewEncoder(fd).
		ArraysWithOneElementPerLine(true).
		Indentation("  ").
		Order(toml.OrderPreserve)

	if err = enc.Encode(Config); err != nil {
		defer fd.Close()
		return err
	}

	return fd.Close()
}

// ServiceTimeout returns the service request timeout.
func ServiceTimeout() time.Duration {
	return time.Duration(Config.Service.Timeout) * time.Second
}

// ServerAddr returns the reference service listen address.
func ServerAddr() string {
	return fmt.Sprintf("%s:%d", Config.Server.Host, Config.Server.Port)
}

// DefaultConfigPath returns the configuration file location under
// the XDG config home.
func DefaultConfigPath() (string, error) {
	return xdg.ConfigFile(filepath.Join(appName, "config.toml"))
}
