package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NMEA0183  TransportConfig `yaml:"nmea0183"`
	NMEA2000  TransportConfig `yaml:"nmea2000"`
	State     StateConfig     `yaml:"state"`
	Autopilot AutopilotConfig `yaml:"autopilot"`
	Safety    SafetyConfig    `yaml:"safety"`
	Web       WebConfig       `yaml:"web"`
	Export    ExportConfig    `yaml:"export"`
	Log       LogConfig       `yaml:"log"`
}

type TransportConfig struct {
	Addr           string   `yaml:"addr"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	MaxFrameBytes  int      `yaml:"max_frame_bytes"`
}

type StateConfig struct {
	// StaleAfter is the default expected-interval before a channel is
	// flagged stale. Rudder and heading use CriticalStaleAfter because the
	// autopilot safety gate reads them.
	StaleAfter         Duration `yaml:"stale_after"`
	CriticalStaleAfter Duration `yaml:"critical_stale_after"`
}

type AutopilotConfig struct {
	ConfirmWindow  Duration `yaml:"confirm_window"`
	AckTimeout     Duration `yaml:"ack_timeout"`
	CommandRate    float64  `yaml:"command_rate"`
	RetainTerminal Duration `yaml:"retain_terminal"`
}

type SafetyConfig struct {
	HeartbeatInterval   Duration `yaml:"heartbeat_interval"`
	HeartbeatMultiplier int      `yaml:"heartbeat_multiplier"`
	BackoffInitial      Duration `yaml:"backoff_initial"`
	BackoffMax          Duration `yaml:"backoff_max"`
	BreakerThreshold    int      `yaml:"breaker_threshold"`
	BreakerCooldown     Duration `yaml:"breaker_cooldown"`
	QueueSize           int      `yaml:"queue_size"`
	QueueEntryTTL       Duration `yaml:"queue_entry_ttl"`
	AckFailureLimit     int      `yaml:"ack_failure_limit"`
	ReassemblyTimeout   Duration `yaml:"reassembly_timeout"`
	EventRetention      Duration `yaml:"event_retention"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
}

type ExportConfig struct {
	Enable         bool     `yaml:"enable"`
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	StateTopic     string   `yaml:"state_topic"`
	EventTopic     string   `yaml:"event_topic"`
	QoS            byte     `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

type LogConfig struct {
	// Path enables rotating file logging when non-empty; stderr otherwise.
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and fills defaults in place.
func (cfg *Config) Validate() error {
	if cfg.NMEA0183.Addr == "" {
		return fmt.Errorf("nmea0183.addr is required")
	}
	if cfg.NMEA2000.Addr == "" {
		return fmt.Errorf("nmea2000.addr is required")
	}
	fillTransportDefaults(&cfg.NMEA0183, 4096)
	fillTransportDefaults(&cfg.NMEA2000, 1024)

	defDur(&cfg.State.StaleAfter, 5*time.Second)
	defDur(&cfg.State.CriticalStaleAfter, 2*time.Second)

	defDur(&cfg.Autopilot.ConfirmWindow, 5*time.Second)
	defDur(&cfg.Autopilot.AckTimeout, 3*time.Second)
	if cfg.Autopilot.CommandRate <= 0 {
		cfg.Autopilot.CommandRate = 1
	}
	defDur(&cfg.Autopilot.RetainTerminal, 60*time.Second)

	defDur(&cfg.Safety.HeartbeatInterval, 2*time.Second)
	if cfg.Safety.HeartbeatMultiplier <= 0 {
		cfg.Safety.HeartbeatMultiplier = 3
	}
	defDur(&cfg.Safety.BackoffInitial, 250*time.Millisecond)
	defDur(&cfg.Safety.BackoffMax, 30*time.Second)
	if cfg.Safety.BreakerThreshold <= 0 {
		cfg.Safety.BreakerThreshold = 5
	}
	defDur(&cfg.Safety.BreakerCooldown, 60*time.Second)
	if cfg.Safety.QueueSize <= 0 {
		cfg.Safety.QueueSize = 16
	}
	defDur(&cfg.Safety.QueueEntryTTL, 10*time.Second)
	if cfg.Safety.AckFailureLimit <= 0 {
		cfg.Safety.AckFailureLimit = 3
	}
	defDur(&cfg.Safety.ReassemblyTimeout, 500*time.Millisecond)
	defDur(&cfg.Safety.EventRetention, 1*time.Hour)

	if cfg.Web.Enable && cfg.Web.Addr == "" {
		cfg.Web.Addr = "127.0.0.1:8787"
	}

	if cfg.Export.Enable {
		if cfg.Export.Broker == "" {
			return fmt.Errorf("export.broker is required when export.enable is true")
		}
		if cfg.Export.ClientID == "" {
			cfg.Export.ClientID = "helmlink"
		}
		if cfg.Export.StateTopic == "" {
			cfg.Export.StateTopic = "vessel/state"
		}
		if cfg.Export.EventTopic == "" {
			cfg.Export.EventTopic = "vessel/safety"
		}
		defDur(&cfg.Export.ConnectTimeout, 10*time.Second)
	}

	if cfg.Log.Path != "" {
		if cfg.Log.MaxSizeMB <= 0 {
			cfg.Log.MaxSizeMB = 20
		}
		if cfg.Log.MaxBackups <= 0 {
			cfg.Log.MaxBackups = 3
		}
	}

	return nil
}

func fillTransportDefaults(tc *TransportConfig, maxFrame int) {
	defDur(&tc.ConnectTimeout, 10*time.Second)
	defDur(&tc.ReadTimeout, 5*time.Second)
	if tc.MaxFrameBytes <= 0 {
		tc.MaxFrameBytes = maxFrame
	}
}

func defDur(d *Duration, def time.Duration) {
	if *d <= 0 {
		*d = Duration(def)
	}
}
