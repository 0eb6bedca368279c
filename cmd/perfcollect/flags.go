package main

import (
	"strconv"

	"github.com/zyedidia/perfcollect"
	"go.uber.org/zap"
)

// reportFlags override the PERFCOLLECT_* environment.
type reportFlags struct {
	Events     string `short:"e" long:"events" description:"Comma-separated list of events to count (default: $PERFCOLLECT_EVENTS)"`
	Format     string `short:"f" long:"format" choice:"tsv" choice:"csv" choice:"table" choice:"xlsx" description:"Report format"`
	Output     string `short:"o" long:"output" description:"Write the report to file"`
	Totals     bool   `long:"totals" description:"Append a row with the sum over all ranks"`
	Textfile   string `long:"textfile" description:"Also write the report as Prometheus text exposition to file"`
	Kernel     bool   `long:"kernel" description:"Include kernel code in measurements"`
	Hypervisor bool   `long:"hypervisor" description:"Include hypervisor code in measurements"`
}

// env returns the flags that are set as PERFCOLLECT_* assignments, so that
// they reach ranks started by the launcher.
func (f *reportFlags) env() []string {
	var env []string
	set := func(key, val string) {
		if val != "" {
			env = append(env, perfcollect.EnvPrefix+"_"+key+"="+val)
		}
	}
	set("EVENTS", f.Events)
	set("FORMAT", f.Format)
	set("OUTPUT", f.Output)
	set("TEXTFILE", f.Textfile)
	if f.Totals {
		set("TOTALS", strconv.FormatBool(f.Totals))
	}
	if f.Kernel {
		set("KERNEL", strconv.FormatBool(f.Kernel))
	}
	if f.Hypervisor {
		set("HYPERVISOR", strconv.FormatBool(f.Hypervisor))
	}
	if opts.Verbose {
		set("VERBOSE", "true")
	}
	return env
}

// config loads the environment configuration, applies the flags on top and
// installs the logger.
func (f *reportFlags) config() (perfcollect.Config, *zap.Logger, error) {
	cfg, err := perfcollect.LoadConfig()
	if err != nil {
		return cfg, nil, err
	}
	if f.Events != "" {
		cfg.Events = f.Events
	}
	if f.Format != "" {
		cfg.Format = f.Format
	}
	if f.Output != "" {
		cfg.Output = f.Output
	}
	if f.Textfile != "" {
		cfg.Textfile = f.Textfile
	}
	cfg.Totals = cfg.Totals || f.Totals
	cfg.Kernel = cfg.Kernel || f.Kernel
	cfg.Hypervisor = cfg.Hypervisor || f.Hypervisor
	cfg.Verbose = cfg.Verbose || opts.Verbose
	if cfg.Format == perfcollect.FormatXLSX && cfg.Output == "" {
		cfg.Output = "perfcollect.xlsx"
	}

	logger := perfcollect.NewLogger(cfg.Verbose)
	perfcollect.SetLogger(logger)
	return cfg, logger, nil
}
