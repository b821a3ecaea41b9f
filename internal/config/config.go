package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/ring"
	"codeberg.org/mutker/simtempd/internal/sensor"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix        = "SIMTEMPD"
	DefaultLogLevel         = "info"
	DefaultMetricsDB        = "/var/lib/simtempd/status.db"
	DefaultMetricsInterval  = 5
	DefaultMetricsBatchSize = 12
	DefaultNATSPrefix       = "simtemp"
	configName              = "simtempd"
	configType              = "toml"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	SamplingMS       int
	ThresholdMC      int32
	Mode             string
	Capacity         int
	LogLevel         string
	Debug            bool
	Verbose          bool
	Metrics          bool
	MetricsDB        string
	MetricsInterval  int // seconds
	MetricsBatchSize int
	PrometheusAddr   string
	NATSURL          string
	NATSPrefix       string
	PIDDir           string

	// ConfigFile is the file the values were read from, empty if none.
	ConfigFile string
}

// flag name -> viper key
var flagKeys = map[string]string{
	"sampling-ms":        "sampling_ms",
	"threshold-mc":       "threshold_mc",
	"mode":               "mode",
	"capacity":           "capacity",
	"log-level":          "log_level",
	"debug":              "debug",
	"verbose":            "verbose",
	"metrics":            "metrics",
	"metrics-db":         "metrics_db",
	"metrics-interval":   "metrics_interval",
	"metrics-batch-size": "metrics_batch_size",
	"prometheus-addr":    "prometheus_addr",
	"nats-url":           "nats_url",
	"nats-prefix":        "nats_prefix",
	"pid-dir":            "pid_dir",
}

func setDefaults(v *viper.Viper) {
	defaults := device.DefaultConfig()

	v.SetDefault("sampling_ms", defaults.SamplingPeriod.Milliseconds())
	v.SetDefault("threshold_mc", defaults.Threshold)
	v.SetDefault("mode", defaults.Mode.String())
	v.SetDefault("capacity", ring.DefaultCapacity)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("metrics_interval", DefaultMetricsInterval)
	v.SetDefault("metrics_batch_size", DefaultMetricsBatchSize)
	v.SetDefault("prometheus_addr", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_prefix", DefaultNATSPrefix)
	v.SetDefault("pid_dir", os.TempDir())
}

// RegisterFlags defines every configuration flag on fs. Values given on
// the command line take precedence over environment and file.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := device.DefaultConfig()

	fs.String("config", "", "Path to the configuration file")
	fs.Int("sampling-ms", int(defaults.SamplingPeriod.Milliseconds()), "Sampling period in milliseconds")
	fs.Int32("threshold-mc", defaults.Threshold, "Alert threshold in milli-degrees Celsius")
	fs.String("mode", defaults.Mode.String(), "Simulation mode (normal, noisy)")
	fs.Int("capacity", ring.DefaultCapacity, "Sample buffer capacity")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("metrics", false, "Record status snapshots to SQLite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the status history database")
	fs.Int("metrics-interval", DefaultMetricsInterval, "Seconds between status snapshots")
	fs.Int("metrics-batch-size", DefaultMetricsBatchSize, "Snapshots buffered before a write")
	fs.String("prometheus-addr", "", "Listen address for /metrics, /health and /stream")
	fs.String("nats-url", "", "NATS server URL for the control binding")
	fs.String("nats-prefix", DefaultNATSPrefix, "Subject prefix for the control binding")
	fs.String("pid-dir", os.TempDir(), "Directory for the PID file")
}

// Loader resolves configuration from flags, environment and a TOML file
// and optionally watches the file for changes.
type Loader struct {
	mu   sync.Mutex
	v    *viper.Viper
	opts options
}

func NewLoader(opts ...Option) (*Loader, error) {
	o := options{
		envPrefix:  DefaultEnvPrefix,
		searchDirs: []string{"/etc"},
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
		}
	}

	return &Loader{v: viper.New(), opts: o}, nil
}

// Load reads all sources and validates the result. fs may be nil; when
// given it must have been set up with RegisterFlags and parsed.
func (l *Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.v
	setDefaults(v)

	v.SetEnvPrefix(l.opts.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	path := l.opts.configPath
	if path == "" && fs != nil {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		path = os.Getenv(l.opts.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		for _, dir := range l.opts.searchDirs {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg, err := l.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolve reads the merged settings. The device integers are parsed
// strictly: viper's typed getters turn garbage into 0 and truncate.
func (l *Loader) resolve() (*Config, error) {
	v := l.v

	samplingMS, err := intSetting(v, "sampling_ms", math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	thresholdMC, err := intSetting(v, "threshold_mc", math.MinInt32, math.MaxInt32)
	if err != nil {
		return nil, err
	}

	return &Config{
		SamplingMS:       int(samplingMS),
		ThresholdMC:      int32(thresholdMC),
		Mode:             strings.TrimSpace(v.GetString("mode")),
		Capacity:         v.GetInt("capacity"),
		LogLevel:         v.GetString("log_level"),
		Debug:            v.GetBool("debug"),
		Verbose:          v.GetBool("verbose"),
		Metrics:          v.GetBool("metrics"),
		MetricsDB:        v.GetString("metrics_db"),
		MetricsInterval:  v.GetInt("metrics_interval"),
		MetricsBatchSize: v.GetInt("metrics_batch_size"),
		PrometheusAddr:   v.GetString("prometheus_addr"),
		NATSURL:          v.GetString("nats_url"),
		NATSPrefix:       v.GetString("nats_prefix"),
		PIDDir:           v.GetString("pid_dir"),
		ConfigFile:       v.ConfigFileUsed(),
	}, nil
}

func intSetting(v *viper.Viper, key string, lo, hi int64) (int64, error) {
	raw := v.Get(key)

	n, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, invalidField(key, raw, "must be an integer")
	}
	if n < lo || n > hi {
		return 0, invalidField(key, raw, fmt.Sprintf("must be within [%d, %d]", lo, hi))
	}

	return n, nil
}

func invalidField(field string, value any, reason string) error {
	return errors.New().Wrap(errors.ErrInvalidConfig, &ValidationError{Field: field, Value: value, Reason: reason})
}

// Watch calls fn with the re-validated configuration each time the config
// file changes. Invalid edits are logged and skipped. It returns an error
// when no config file is in use; callbacks stop once ctx is done.
func (l *Loader) Watch(ctx context.Context, fn func(*Config)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.v.ConfigFileUsed() == "" {
		return errors.New().WithMessage(errors.ErrWatchConfig, "no configuration file in use")
	}

	log := logger.New("config")

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}

		l.mu.Lock()
		cfg, err := l.resolve()
		l.mu.Unlock()

		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}

		log.Info().Str("file", e.Name).Msg("Configuration reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()

	return nil
}

// Validate applies the same rules the control interface enforces at
// runtime plus checks for the ambient settings.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.SamplingMS <= 0 {
		return invalidField("sampling_ms", c.SamplingMS, "must be positive")
	}
	if int64(c.SamplingMS) > math.MaxUint32 {
		return invalidField("sampling_ms", c.SamplingMS, "must fit in 32 bits")
	}
	if _, err := sensor.ParseMode(c.Mode); err != nil {
		return errFactory.Wrap(errors.ErrInvalidMode, &ValidationError{
			Field: "mode", Value: c.Mode, Reason: "expected one of " + strings.Join(sensor.Modes(), ", "),
		})
	}
	if c.Capacity < 1 {
		return invalidField("capacity", c.Capacity, "must be at least 1")
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.Wrap(errors.ErrInvalidLogLevel, &ValidationError{
			Field: "log_level", Value: c.LogLevel, Reason: "expected debug, info, warning or error",
		})
	}
	if c.MetricsInterval <= 0 {
		return invalidField("metrics_interval", c.MetricsInterval, "must be positive")
	}
	if c.MetricsBatchSize <= 0 {
		return invalidField("metrics_batch_size", c.MetricsBatchSize, "must be positive")
	}
	if c.NATSPrefix == "" {
		return invalidField("nats_prefix", c.NATSPrefix, "must not be empty")
	}

	return nil
}

// SamplingPeriod returns sampling_ms as a duration.
func (c *Config) SamplingPeriod() time.Duration {
	return time.Duration(c.SamplingMS) * time.Millisecond
}

// Device converts the configuration into the device's initial settings.
func (c *Config) Device() (device.Config, error) {
	mode, err := sensor.ParseMode(c.Mode)
	if err != nil {
		return device.Config{}, err
	}

	cfg := device.Config{
		SamplingPeriod: c.SamplingPeriod(),
		Threshold:      c.ThresholdMC,
		Mode:           mode,
		Capacity:       c.Capacity,
	}

	return cfg, cfg.Validate()
}

// Apply pushes the runtime-adjustable settings of c into ctl, skipping
// values that already match.
func (c *Config) Apply(ctl device.Controller) error {
	if p := c.SamplingPeriod(); p != ctl.SamplingPeriod() {
		if err := ctl.SetSamplingPeriod(p); err != nil {
			return err
		}
	}
	if c.ThresholdMC != ctl.Threshold() {
		if err := ctl.SetThreshold(c.ThresholdMC); err != nil {
			return err
		}
	}

	mode, err := sensor.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if mode != ctl.Mode() {
		return ctl.SetMode(mode)
	}

	return nil
}
