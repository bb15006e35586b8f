package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "HYDROCAM"
	defaultConfigName = "hydrocam"
	defaultConfigDir  = "/etc"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`

	CaptureInterval   time.Duration `mapstructure:"capture_interval"`
	SaveInterval      time.Duration `mapstructure:"save_interval"`
	SaveOffset        time.Duration `mapstructure:"save_offset"`
	MinimumBrightness float64       `mapstructure:"minimum_brightness"`

	OutputDir    string `mapstructure:"output_dir"`
	ResourcesDir string `mapstructure:"resources_dir"`

	CaptureCommand string   `mapstructure:"capture_command"`
	CaptureArgs    []string `mapstructure:"capture_args"`

	SensorModel  int    `mapstructure:"sensor_model"`
	SensorPin    int    `mapstructure:"sensor_pin"`
	SensorIIODir string `mapstructure:"sensor_iio_dir"`

	Listen string `mapstructure:"listen"`

	HistoryEnabled bool   `mapstructure:"history_enabled"`
	HistoryDB      string `mapstructure:"history_db"`

	MQTTBroker string `mapstructure:"mqtt_broker"`
	MQTTTopic  string `mapstructure:"mqtt_topic"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	PIDFile  string `mapstructure:"pid_file"`
}

// Defaults mirrors the reference deployment: a 1280x720 frame every five
// minutes, saves every thirty minutes when the scene is bright enough.
var Defaults = map[string]any{
	"width":              1280,
	"height":             720,
	"capture_interval":   5 * time.Minute,
	"save_interval":      30 * time.Minute,
	"save_offset":        10 * time.Second,
	"minimum_brightness": 25.0,
	"output_dir":         "./bin",
	"resources_dir":      "./res",
	"capture_command":    "raspiyuv",
	"capture_args":       []string{"-rgb", "-w", "{width}", "-h", "{height}", "-o", "-"},
	"sensor_model":       22,
	"sensor_pin":         4,
	"sensor_iio_dir":     "/sys/bus/iio/devices",
	"listen":             ":8080",
	"history_enabled":    true,
	"history_db":         "./hydrocam.db",
	"mqtt_broker":        "",
	"mqtt_topic":         "hydrocam/captures",
	"log_level":          string(LogLevelInfo),
	"log_file":           "",
	"pid_file":           filepath.Join(os.TempDir(), "hydrocam.pid"),
}

// Load resolves configuration from flags, environment, an optional TOML
// file and defaults, in that order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: envPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if err := v.BindPFlags(flags); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if f := flags.Lookup("config"); f != nil && f.Changed {
		path = f.Value.String()
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(defaultConfigDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	// Flag defaults are zero values; viper only prefers a flag over the
	// defaults table when it was set on the command line.
	flags := pflag.NewFlagSet("hydrocam", pflag.ContinueOnError)

	flags.String("config", "", "Path to a TOML configuration file")
	flags.Int("width", 0, "Capture width in pixels")
	flags.Int("height", 0, "Capture height in pixels")
	flags.Duration("capture_interval", 0, "Interval between captures")
	flags.Duration("save_interval", 0, "Interval between saves to disk")
	flags.Duration("save_offset", 0, "Delay after each save boundary before saving")
	flags.Float64("minimum_brightness", 0, "Minimum average brightness (0-255) required to save")
	flags.String("output_dir", "", "Directory for saved captures")
	flags.String("resources_dir", "", "Directory holding overlay icons and font")
	flags.String("capture_command", "", "Imaging utility producing raw RGB on stdout")
	flags.String("listen", "", "HTTP listen address")
	flags.String("log_level", "", "Log level: debug, info, warning, error")
	flags.String("log_file", "", "Additional JSON log file")
	flags.String("history_db", "", "Path to the capture history database")
	flags.String("mqtt_broker", "", "MQTT broker host:port, empty disables publishing")

	return flags
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.Width <= 0 || c.Height <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, validationError{"width/height", [2]int{c.Width, c.Height}, "must be positive"})
	case c.CaptureInterval <= 0:
		return errFactory.WithData(errors.ErrInvalidInterval, validationError{"capture_interval", c.CaptureInterval, "must be positive"})
	case c.SaveInterval <= 0:
		return errFactory.WithData(errors.ErrInvalidInterval, validationError{"save_interval", c.SaveInterval, "must be positive"})
	case c.SaveOffset < 0 || c.SaveOffset >= c.SaveInterval:
		return errFactory.WithData(errors.ErrInvalidInterval, validationError{"save_offset", c.SaveOffset, "must be within save_interval"})
	case c.MinimumBrightness < 0 || c.MinimumBrightness > 255:
		return errFactory.WithData(errors.ErrInvalidConfig, validationError{"minimum_brightness", c.MinimumBrightness, "must be within 0-255"})
	case c.CaptureCommand == "":
		return errFactory.WithData(errors.ErrInvalidConfig, validationError{"capture_command", c.CaptureCommand, "must be set"})
	case c.OutputDir == "":
		return errFactory.WithData(errors.ErrInvalidConfig, validationError{"output_dir", c.OutputDir, "must be set"})
	}

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, validationError{"log_level", c.LogLevel, "unknown level"})
	}

	return nil
}
