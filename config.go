package perfcollect

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "PERFCOLLECT"

// Report formats.
const (
	FormatTSV   = "tsv"
	FormatCSV   = "csv"
	FormatTable = "table"
	FormatXLSX  = "xlsx"
)

// Config is the per-process configuration. Every rank of a job is expected
// to see the same Events.
type Config struct {
	// Events is the comma-separated event specification.
	Events     string `mapstructure:"events"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Textfile   string `mapstructure:"textfile"`
	Totals     bool   `mapstructure:"totals"`
	Kernel     bool   `mapstructure:"kernel"`
	Hypervisor bool   `mapstructure:"hypervisor"`
	Verbose    bool   `mapstructure:"verbose"`
}

var defaults = map[string]interface{}{
	"events":     "",
	"format":     FormatTSV,
	"output":     "",
	"textfile":   "",
	"totals":     false,
	"kernel":     false,
	"hypervisor": false,
	"verbose":    false,
}

// LoadConfig reads the configuration from PERFCOLLECT_* environment
// variables.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, def := range defaults {
		v.SetDefault(key, def)
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config")
	}
	cfg.Format = strings.ToLower(cfg.Format)
	switch cfg.Format {
	case FormatTSV, FormatCSV, FormatTable:
	case FormatXLSX:
		if cfg.Output == "" {
			cfg.Output = "perfcollect.xlsx"
		}
	default:
		return cfg, errors.Errorf("config: unknown report format %q", cfg.Format)
	}
	return cfg, nil
}
