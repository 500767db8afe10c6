// Package config loads daemon settings and the declarative system
// inventory from TOML, environment and command-line flags.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ostvolt/coolantctl/internal/errors"
)

const (
	DefaultLogLevel          = "info"
	DefaultControlMode       = "setpoint"
	DefaultControlInterval   = 5  // seconds
	DefaultSchedulerInterval = 60 // seconds
	DefaultTelemetryDB       = "/var/lib/coolantctl/telemetry.db"
	DefaultMQTTTopicPrefix   = "coolantctl"

	envConfigPath = "COOLANTCTL_CONFIG"
)

// Config is the fully resolved daemon configuration. Values are
// immutable after Load.
type Config struct {
	LogLevel          string   `mapstructure:"log_level"`
	Monitor           bool     `mapstructure:"monitor"`
	ControlMode       string   `mapstructure:"control_mode"`
	ControlInterval   int      `mapstructure:"control_interval"`
	SchedulerInterval int      `mapstructure:"scheduler_interval"`
	Telemetry         bool     `mapstructure:"telemetry"`
	TelemetryDB       string   `mapstructure:"database"`
	MQTTBroker        string   `mapstructure:"mqtt_broker"`
	MQTTClientID      string   `mapstructure:"mqtt_client_id"`
	MQTTTopicPrefix   string   `mapstructure:"mqtt_topic_prefix"`
	Systems           []System `mapstructure:"systems"`
}

// System declares one cooling system with its pumps and zones.
type System struct {
	ID         string      `mapstructure:"id"`
	Thresholds *Thresholds `mapstructure:"thresholds"`
	Pumps      []Pump      `mapstructure:"pumps"`
	Zones      []Zone      `mapstructure:"zones"`
}

// Thresholds overrides the built-in coolant alarm limits of a system.
type Thresholds struct {
	InletWarning     float64 `mapstructure:"inlet_warning"`
	InletCritical    float64 `mapstructure:"inlet_critical"`
	OutletWarning    float64 `mapstructure:"outlet_warning"`
	OutletCritical   float64 `mapstructure:"outlet_critical"`
	FlowWarning      float64 `mapstructure:"flow_warning"`
	FlowCritical     float64 `mapstructure:"flow_critical"`
	PressureWarning  float64 `mapstructure:"pressure_warning"`
	PressureCritical float64 `mapstructure:"pressure_critical"`
	LevelWarning     float64 `mapstructure:"level_warning"`
	LevelCritical    float64 `mapstructure:"level_critical"`
	DeltaTDegraded   float64 `mapstructure:"delta_t_degraded"`
}

// Pump declares one circulation pump. Delays are in seconds; zero means
// the controller's built-in defaults.
type Pump struct {
	ID            string    `mapstructure:"id"`
	MaxRPM        float64   `mapstructure:"max_rpm"`
	RatedPower    float64   `mapstructure:"rated_power"`
	MinSpeed      float64   `mapstructure:"min_speed"`
	MaxSpeed      float64   `mapstructure:"max_speed"`
	OptimalSpeed  float64   `mapstructure:"optimal_speed"`
	StartupDelay  float64   `mapstructure:"startup_delay"`
	ShutdownDelay float64   `mapstructure:"shutdown_delay"`
	Redundant     bool      `mapstructure:"redundant"`
	PrimaryPump   string    `mapstructure:"primary_pump"`
	Schedule      *Schedule `mapstructure:"schedule"`
}

// Schedule declares a daily on/off window for a pump.
type Schedule struct {
	Start       string   `mapstructure:"start"`
	Stop        string   `mapstructure:"stop"`
	TargetSpeed float64  `mapstructure:"target_speed"`
	Days        []string `mapstructure:"days"`
	Enabled     bool     `mapstructure:"enabled"`
}

// Zone declares one thermal zone.
type Zone struct {
	ID        string     `mapstructure:"id"`
	Target    float64    `mapstructure:"target"`
	Min       float64    `mapstructure:"min"`
	Max       float64    `mapstructure:"max"`
	Priority  int        `mapstructure:"priority"`
	Actuators []Actuator `mapstructure:"actuators"`
}

// Actuator declares one zone actuator. Pump is the referenced pump ID
// and only meaningful for type "pump".
type Actuator struct {
	ID   string `mapstructure:"id"`
	Type string `mapstructure:"type"`
	Pump string `mapstructure:"pump"`
}

// Weekdays resolves the schedule's day names.
func (s Schedule) Weekdays() ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}

	out := make([]time.Weekday, 0, len(s.Days))
	for _, name := range s.Days {
		day, ok := names[strings.ToLower(name)]
		if !ok {
			return nil, errors.New().WithData(errors.ErrInvalidConfig, fmt.Sprintf("unknown weekday %q", name))
		}
		out = append(out, day)
	}

	return out, nil
}

// Load resolves configuration from flags, the COOLANTCTL_CONFIG file
// (or /etc/coolantctl.toml) and environment variables, in that order of
// precedence, then validates the result.
func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	// A fresh FlagSet per call: Load must be re-entrant for tests.
	fs := pflag.NewFlagSet("coolantctl", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel, "Logging level (debug, info, warning, error)")
	fs.Bool("monitor", false, "Compute control outputs without commanding actuators")
	fs.String("control-mode", DefaultControlMode, "Initial thermal control mode")
	fs.Int("control-interval", DefaultControlInterval, "Control cycle interval in seconds")
	fs.Int("scheduler-interval", DefaultSchedulerInterval, "Pump scheduler interval in seconds")
	fs.Bool("telemetry", false, "Enable telemetry recording")
	fs.String("database", DefaultTelemetryDB, "Telemetry database path")
	fs.String("mqtt-broker", "", "MQTT broker URL")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"log_level":          "log-level",
		"monitor":            "monitor",
		"control_mode":       "control-mode",
		"control_interval":   "control-interval",
		"scheduler_interval": "scheduler-interval",
		"telemetry":          "telemetry",
		"database":           "database",
		"mqtt_broker":        "mqtt-broker",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("COOLANTCTL")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("monitor", false)
	v.SetDefault("control_mode", DefaultControlMode)
	v.SetDefault("control_interval", DefaultControlInterval)
	v.SetDefault("scheduler_interval", DefaultSchedulerInterval)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", DefaultTelemetryDB)
	v.SetDefault("mqtt_topic_prefix", DefaultMQTTTopicPrefix)
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName("coolantctl")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks daemon settings and the system inventory for
// structural errors: duplicate identifiers, dangling references,
// inverted bands and malformed schedules.
func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	switch c.ControlMode {
	case "setpoint", "deltat", "economy", "performance":
	default:
		return errFactory.WithData(errors.ErrUnknownMode, c.ControlMode)
	}

	if c.ControlInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, fmt.Sprintf("control_interval %d", c.ControlInterval))
	}
	if c.SchedulerInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, fmt.Sprintf("scheduler_interval %d", c.SchedulerInterval))
	}

	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidDBPath, "Telemetry enabled without a database path")
	}

	systemIDs := make(map[string]bool)
	pumpIDs := make(map[string]bool)
	zoneIDs := make(map[string]bool)

	for i := range c.Systems {
		sys := &c.Systems[i]
		if sys.ID == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, "system without id")
		}
		if systemIDs[sys.ID] {
			return errFactory.WithData(errors.ErrDuplicateID, fmt.Sprintf("system %s", sys.ID))
		}
		systemIDs[sys.ID] = true

		localPumps := make(map[string]bool)
		for _, p := range sys.Pumps {
			if p.ID == "" {
				return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("system %s has a pump without id", sys.ID))
			}
			if pumpIDs[p.ID] {
				return errFactory.WithData(errors.ErrDuplicateID, fmt.Sprintf("pump %s", p.ID))
			}
			pumpIDs[p.ID] = true
			localPumps[p.ID] = true

			if p.MaxRPM <= 0 || p.RatedPower <= 0 {
				return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("pump %s needs max_rpm and rated_power", p.ID))
			}
			if p.MinSpeed != 0 && p.MaxSpeed != 0 && p.MinSpeed >= p.MaxSpeed {
				return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("pump %s speed band inverted", p.ID))
			}
			if p.Schedule != nil {
				if err := validateSchedule(p.ID, p.Schedule); err != nil {
					return err
				}
			}
		}

		for _, p := range sys.Pumps {
			if p.Redundant && !localPumps[p.PrimaryPump] {
				return errFactory.WithData(errors.ErrUnknownPumpRef,
					fmt.Sprintf("pump %s names primary %q outside system %s", p.ID, p.PrimaryPump, sys.ID))
			}
		}

		for _, z := range sys.Zones {
			if z.ID == "" {
				return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("system %s has a zone without id", sys.ID))
			}
			if zoneIDs[z.ID] {
				return errFactory.WithData(errors.ErrDuplicateID, fmt.Sprintf("zone %s", z.ID))
			}
			zoneIDs[z.ID] = true

			if z.Min >= z.Max {
				return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("zone %s temperature band inverted", z.ID))
			}
			if z.Target < z.Min || z.Target > z.Max {
				return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("zone %s target outside band", z.ID))
			}
			for _, a := range z.Actuators {
				if a.Type == "pump" && !localPumps[a.Pump] {
					return errFactory.WithData(errors.ErrUnknownPumpRef,
						fmt.Sprintf("zone %s actuator %s names pump %q outside system %s", z.ID, a.ID, a.Pump, sys.ID))
				}
			}
		}
	}

	return nil
}

func validateSchedule(pumpID string, s *Schedule) error {
	errFactory := errors.New()

	for _, clock := range []string{s.Start, s.Stop} {
		if _, err := time.Parse("15:04", clock); err != nil {
			return errFactory.WithData(errors.ErrInvalidConfig,
				fmt.Sprintf("pump %s schedule time %q is not HH:MM", pumpID, clock))
		}
	}
	if s.TargetSpeed < 0 || s.TargetSpeed > 100 {
		return errFactory.WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("pump %s schedule target speed %.1f out of range", pumpID, s.TargetSpeed))
	}
	if len(s.Days) == 0 {
		return errFactory.WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("pump %s schedule has no days", pumpID))
	}
	if _, err := s.Weekdays(); err != nil {
		return err
	}

	return nil
}
