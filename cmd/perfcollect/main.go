package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// Version is the perfcollect release.
var Version = "0.1.0"

var opts struct {
	Verbose bool `short:"V" long:"verbose" description:"Show verbose debug information"`
	Version bool `short:"v" long:"version" description:"Show version information"`
}

func fatal(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
	os.Exit(1)
}

// exitCode carries the exit status of a measured program up to main.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

func main() {
	// counters are inherited from this thread by the programs it starts
	runtime.LockOSThread()

	flagparser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash|flags.PassAfterNonOption)
	flagparser.Usage = "[OPTIONS] COMMAND [ARGS]"
	flagparser.SubcommandsOptional = true
	flagparser.AddCommand("rank",
		"Count one rank of a job",
		"Starts counters, joins the job described by the environment, runs the program and reports at teardown.",
		&rankCommand{})
	flagparser.AddCommand("launch",
		"Start a job on this host",
		"Starts N ranks of the program, each counted and gathered on rank 0.",
		&launchCommand{})
	flagparser.AddCommand("list",
		"List available events",
		"Lists available events for one of the hardware, software, cache or trace event types.",
		&listCommand{})

	_, err := flagparser.Parse()
	if err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			fmt.Println(ferr.Message)
			os.Exit(0)
		}
		fatal("error:", err)
	}

	if opts.Version {
		fmt.Println("perfcollect version", Version)
		os.Exit(0)
	}
	if flagparser.Active == nil {
		flagparser.WriteHelp(os.Stdout)
	}
}
