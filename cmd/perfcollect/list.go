package main

import (
	"fmt"
	"sort"

	perfutils "github.com/hodgesds/perf-utils"
	"github.com/pkg/errors"
	"github.com/zyedidia/perfcollect"
)

type listCommand struct {
	Args struct {
		Type string `positional-arg-name:"TYPE" description:"hardware, software, cache or trace"`
	} `positional-args:"yes" required:"yes"`
}

// availableTracepoints returns subsystem:event names of the kernel
// tracepoints.
func availableTracepoints() []string {
	evs, err := perfutils.AvailableEvents()
	if err != nil {
		return nil
	}
	var names []string
	for subsystem, v := range evs {
		for _, event := range v {
			names = append(names, fmt.Sprintf("%s:%s", subsystem, event))
		}
	}
	sort.Strings(names)
	return names
}

func (c *listCommand) Execute(args []string) error {
	var events []string
	switch c.Args.Type {
	case "software":
		events = perfcollect.AvailableSoftwareEvents()
	case "hardware":
		events = perfcollect.AvailableHardwareEvents()
	case "cache":
		events = perfcollect.AvailableCacheEvents()
	case "trace":
		events = availableTracepoints()
	default:
		return errors.Errorf("invalid event type %q", c.Args.Type)
	}

	if len(events) == 0 {
		fmt.Println("No events found, do you have the right permissions?")
	}
	for _, e := range events {
		fmt.Printf("[%s event]: %s\n", c.Args.Type, e)
	}
	return nil
}
