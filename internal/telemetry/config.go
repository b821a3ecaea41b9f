package telemetry

import "codeberg.org/mutker/simtempd/internal/errors"

const (
	defaultNamespace   = "simtemp"
	defaultMetricsPath = "/metrics"
)

type Config struct {
	Addr        string // empty disables the HTTP server
	Namespace   string
	MetricsPath string
}

func DefaultConfig() Config {
	return Config{
		Namespace:   defaultNamespace,
		MetricsPath: defaultMetricsPath,
	}
}

func (c Config) Enabled() bool {
	return c.Addr != ""
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Namespace == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "empty metrics namespace")
	}
	if c.MetricsPath == "" || c.MetricsPath[0] != '/' {
		return errFactory.WithData(ErrInvalidConfig, c.MetricsPath)
	}
	return nil
}
