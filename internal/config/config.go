package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Deploy  DeployConfig  `json:"deploy"`
	Logs    LogsConfig    `json:"logs"`
	Monitor MonitorConfig `json:"monitor"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type DeployConfig struct {
	Token            string `json:"token"`
	TargetsFile      string `json:"targetsFile"`
	Command          string `json:"command"`
	Timeout          string `json:"timeout"`          // e.g. "10m"
	PreflightTimeout string `json:"preflightTimeout"` // e.g. "3s"
	SSHKeyFile       string `json:"sshKeyFile"`
	SSHUser          string `json:"sshUser"` // fallback when a target has no user
}

type LogsConfig struct {
	Dir           string `json:"dir"`
	Retention     string `json:"retention"`     // e.g. "168h"
	SweepInterval string `json:"sweepInterval"` // e.g. "1h"
	PollInterval  string `json:"pollInterval"`  // stream tail poll, e.g. "500ms"
}

type MonitorConfig struct {
	ServicesFile string `json:"servicesFile"`
	Interval     string `json:"interval"`     // e.g. "30s"
	ProbeTimeout string `json:"probeTimeout"` // e.g. "5s"
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()

	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "debug"),
		},
		Deploy: DeployConfig{
			Token:            getEnv("DEPLOY_TOKEN", ""),
			TargetsFile:      getEnv("TARGETS_FILE", "targets.json"),
			Command:          getEnv("DEPLOY_COMMAND", "./deploy.sh"),
			Timeout:          getEnv("DEPLOY_TIMEOUT", "10m"),
			PreflightTimeout: getEnv("PREFLIGHT_TIMEOUT", "3s"),
			SSHKeyFile:       getEnv("SSH_KEY_FILE", ""),
			SSHUser:          getEnv("SSH_USER", "root"),
		},
		Logs: LogsConfig{
			Dir:           getEnv("LOG_DIR", "deploy-logs"),
			Retention:     getEnv("LOG_RETENTION", "168h"),
			SweepInterval: getEnv("SWEEP_INTERVAL", "1h"),
			PollInterval:  getEnv("STREAM_POLL_INTERVAL", "500ms"),
		},
		Monitor: MonitorConfig{
			ServicesFile: getEnv("SERVICES_FILE", "services.yaml"),
			Interval:     getEnv("MONITOR_INTERVAL", "30s"),
			ProbeTimeout: getEnv("PROBE_TIMEOUT", "5s"),
		},
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			log.Err(err)
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Deploy.Command == "" {
		cfg.Deploy.Command = "./deploy.sh"
	}
	if cfg.Deploy.Timeout == "" {
		cfg.Deploy.Timeout = "10m"
	}
	if cfg.Deploy.PreflightTimeout == "" {
		cfg.Deploy.PreflightTimeout = "3s"
	}
	if cfg.Logs.Dir == "" {
		cfg.Logs.Dir = "deploy-logs"
	}
	if cfg.Logs.Retention == "" {
		cfg.Logs.Retention = "168h"
	}
	if cfg.Logs.SweepInterval == "" {
		cfg.Logs.SweepInterval = "1h"
	}
	if cfg.Logs.PollInterval == "" {
		cfg.Logs.PollInterval = "500ms"
	}
	if cfg.Monitor.Interval == "" {
		cfg.Monitor.Interval = "30s"
	}
	if cfg.Monitor.ProbeTimeout == "" {
		cfg.Monitor.ProbeTimeout = "5s"
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

// ParseDuration parses s, falling back to d when s is empty or invalid.
func ParseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
