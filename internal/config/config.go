// Package config loads the YAML run configuration. It names the CSV tables
// that define the result graph and carries every tunable of a run; nothing
// here is process-wide state, the loaded Config is passed to constructors.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// DebugPollInterval replaces the poll interval in debug mode.
const DebugPollInterval = 10 * time.Millisecond

// Config is a complete run configuration.
type Config struct {
	Tables          Tables        `yaml:"tables"`
	Results         string        `yaml:"results"` // base path of results files
	PollInterval    time.Duration `yaml:"poll_interval"`
	HistoryDuration time.Duration `yaml:"history"`
	Debug           bool          `yaml:"debug"`

	Board      BoardConfig      `yaml:"board"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Control    *ControlConfig   `yaml:"control,omitempty"`
	Fits       []FitConfig      `yaml:"fits,omitempty"`
	Rise       RiseConfig       `yaml:"rise"`
	Groups     Groups           `yaml:"groups,omitempty"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Tables are the paths of the parameter tables. Empty paths are skipped.
type Tables struct {
	Sensors string `yaml:"sensors"`
	Scaled  string `yaml:"scaled,omitempty"`
	Flux    string `yaml:"flux,omitempty"`
	Extrap  string `yaml:"extrap,omitempty"`
	Power   string `yaml:"power,omitempty"`
}

// BoardConfig selects the acquisition board.
type BoardConfig struct {
	Kind        string        `yaml:"kind"` // hwmon, constant or ramp
	Root        string        `yaml:"root,omitempty"`
	Value       float64       `yaml:"value,omitempty"`
	Gain        float64       `yaml:"gain,omitempty"`
	Tau         time.Duration `yaml:"tau,omitempty"`
	Noise       float64       `yaml:"noise,omitempty"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// InstrumentConfig locates the power supply.
type InstrumentConfig struct {
	Address      string        `yaml:"address,omitempty"` // host:port of a raw SCPI socket
	Simulated    bool          `yaml:"simulated"`
	CurrentLimit float64       `yaml:"current_limit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ControlConfig enables feedback control of one controllable result.
type ControlConfig struct {
	Control          string     `yaml:"control"`
	Feedback         string     `yaml:"feedback"`
	Setpoint         float64    `yaml:"setpoint"`
	Gains            [3]float64 `yaml:"gains,flow"`
	OutputLimits     [2]float64 `yaml:"output_limits,flow"`
	MaxJump          float64    `yaml:"max_jump"`
	MaxMissed        int        `yaml:"max_missed"`
	ContinueFromLast bool       `yaml:"continue_from_last"`
}

// FitConfig defines a result computed from a rod temperature-profile fit.
type FitConfig struct {
	Name         string                 `yaml:"name"`
	Unit         string                 `yaml:"unit"`
	Model        string                 `yaml:"model"`
	Output       string                 `yaml:"output"`
	Inputs       []string               `yaml:"inputs,flow"`
	Positions    []float64              `yaml:"positions,flow"`
	Conductivity float64                `yaml:"conductivity"`
	Params       map[string]ParamConfig `yaml:"params,omitempty"`
}

// ParamConfig is the starting point of one fit parameter.
type ParamConfig struct {
	Guess float64 `yaml:"guess"`
	Fixed bool    `yaml:"fixed,omitempty"`
}

// RiseConfig tunes step-response estimation of readings flagged est_rise.
type RiseConfig struct {
	Window   int     `yaml:"window"`
	Fraction float64 `yaml:"fraction"`
}

// TelemetryConfig enables MQTT publishing of every tick.
type TelemetryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Broker    string        `yaml:"broker,omitempty"`
	Topic     string        `yaml:"topic,omitempty"`
	QoS       byte          `yaml:"qos,omitempty"`
	KeepAlive time.Duration `yaml:"keep_alive,omitempty"`

	// PublishTimeout bounds each publish so a stalled broker cannot hold
	// up a tick.
	PublishTimeout time.Duration `yaml:"publish_timeout,omitempty"`
}

// LoggingConfig selects log level and file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		Tables:          Tables{Sensors: "sensors.csv"},
		Results:         "results/results.csv",
		PollInterval:    2 * time.Second,
		HistoryDuration: 5 * time.Minute,
		Board: BoardConfig{
			Kind:        "constant",
			Value:       1,
			Root:        "/sys/class/hwmon",
			Gain:        100,
			Tau:         time.Minute,
			Noise:       0.01,
			ReadTimeout: time.Second,
		},
		Instrument: InstrumentConfig{
			CurrentLimit: 4,
			Timeout:      2 * time.Second,
		},
		Rise: RiseConfig{Window: 30, Fraction: 0.95},
		Telemetry: TelemetryConfig{
			Topic:          "boilerdaq",
			KeepAlive:      30 * time.Second,
			PublishTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", File: "boilerdaq.log"},
	}
}

// DefaultControl is the control section used when a file enables control
// without tuning it.
func DefaultControl() ControlConfig {
	return ControlConfig{
		Control:      "V",
		Setpoint:     30,
		Gains:        [3]float64{12, 0.08, 1},
		OutputLimits: [2]float64{0, 300},
		MaxJump:      10,
		MaxMissed:    3,
	}
}

// UnmarshalYAML fills unset control fields from DefaultControl.
func (c *ControlConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain ControlConfig
	v := plain(DefaultControl())
	if err := node.Decode(&v); err != nil {
		return err
	}
	*c = ControlConfig(v)
	return nil
}

// Load reads path over the defaults, applies environment overrides,
// resolves relative paths against the directory of path and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	cfg.resolve(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOILERDAQ_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("BOILERDAQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BOILERDAQ_INSTRUMENT"); v != "" {
		c.Instrument.Address = v
		c.Instrument.Simulated = false
	}
}

func (c *Config) resolve(dir string) {
	for _, p := range []*string{
		&c.Tables.Sensors, &c.Tables.Scaled, &c.Tables.Flux,
		&c.Tables.Extrap, &c.Tables.Power, &c.Results,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks the configuration for values a run cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Tables.Sensors == "" {
		errs = append(errs, errors.New("tables.sensors is required"))
	}
	if c.Results == "" {
		errs = append(errs, errors.New("results is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.HistoryDuration <= 0 {
		errs = append(errs, errors.New("history must be positive"))
	}
	switch c.Board.Kind {
	case "hwmon", "constant", "ramp":
	default:
		errs = append(errs, fmt.Errorf("board.kind %q is not one of hwmon, constant, ramp", c.Board.Kind))
	}
	if c.Tables.Power != "" && c.Instrument.Address == "" && !c.Instrument.Simulated {
		errs = append(errs, errors.New("instrument.address is required unless instrument.simulated is set"))
	}
	if c.Rise.Window < 4 {
		errs = append(errs, errors.New("rise.window must be at least 4"))
	}
	if c.Rise.Fraction <= 0 || c.Rise.Fraction >= 1 {
		errs = append(errs, errors.New("rise.fraction must be between 0 and 1"))
	}
	if ctl := c.Control; ctl != nil {
		if ctl.Control == "" || ctl.Feedback == "" {
			errs = append(errs, errors.New("control.control and control.feedback are required"))
		}
		if ctl.OutputLimits[0] > ctl.OutputLimits[1] {
			errs = append(errs, errors.New("control.output_limits are reversed"))
		}
		if ctl.MaxJump < 0 {
			errs = append(errs, errors.New("control.max_jump must not be negative"))
		}
		if ctl.MaxMissed < 0 {
			errs = append(errs, errors.New("control.max_missed must not be negative"))
		}
	}
	for i, f := range c.Fits {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("fits[%d]: name is required", i))
		}
		if len(f.Inputs) != len(f.Positions) {
			errs = append(errs, fmt.Errorf("fits[%d]: %d inputs but %d positions", i, len(f.Inputs), len(f.Positions)))
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.Broker == "" {
		errs = append(errs, errors.New("telemetry.broker is required when telemetry is enabled"))
	}
	return multierr.Combine(errs...)
}

// Interval is the effective poll interval.
func (c *Config) Interval() time.Duration {
	if c.Debug {
		return DebugPollInterval
	}
	return c.PollInterval
}

// HistoryLength is the number of points each result keeps, enough to cover
// HistoryDuration at PollInterval.
func (c *Config) HistoryLength() int {
	n := int(c.HistoryDuration / c.PollInterval)
	if n < 1 {
		return 1
	}
	return n
}

// BoardKind is the effective board kind; debug runs always use the ramp.
func (c *Config) BoardKind() string {
	if c.Debug {
		return "ramp"
	}
	return c.Board.Kind
}
