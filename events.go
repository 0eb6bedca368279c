package perfcollect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zyedidia/perf"
)

var hardwareEvents = map[string]perf.HardwareCounter{
	"instructions":            perf.Instructions,
	"cpu-cycles":              perf.CPUCycles,
	"cache-references":        perf.CacheReferences,
	"cache-misses":            perf.CacheMisses,
	"branch-instructions":     perf.BranchInstructions,
	"branch-misses":           perf.BranchMisses,
	"bus-cycles":              perf.BusCycles,
	"stalled-cycles-frontend": perf.StalledCyclesFrontend,
	"stalled-cycles-backend":  perf.StalledCyclesBackend,
	"ref-cycles":              perf.RefCPUCycles,
}

var softwareEvents = map[string]perf.SoftwareCounter{
	"cpu-clock":        perf.CPUClock,
	"task-clock":       perf.TaskClock,
	"page-faults":      perf.PageFaults,
	"context-switches": perf.ContextSwitches,
	"cpu-migrations":   perf.CPUMigrations,
	"minor-faults":     perf.MinorPageFaults,
	"major-faults":     perf.MajorPageFaults,
	"alignment-faults": perf.AlignmentFaults,
	"emulation-faults": perf.EmulationFaults,
}

var caches = map[string]perf.Cache{
	"l1d":  perf.L1D,
	"l1i":  perf.L1I,
	"ll":   perf.LL,
	"dtlb": perf.DTLB,
	"itlb": perf.ITLB,
	"bpu":  perf.BPU,
	"node": perf.NODE,
}

var cacheAccesses = map[string]perf.CacheOp{
	"read":     perf.Read,
	"write":    perf.Write,
	"prefetch": perf.Prefetch,
}

var cacheResults = map[string]perf.CacheOpResult{
	"accesses": perf.Access,
	"misses":   perf.Miss,
}

// PAPI preset names that have a direct generic perf equivalent. Job scripts
// written for PAPI based collectors keep working unchanged.
var papiPresets = map[string]string{
	"PAPI_TOT_CYC": "cpu-cycles",
	"PAPI_TOT_INS": "instructions",
	"PAPI_REF_CYC": "ref-cycles",
	"PAPI_BR_INS":  "branch-instructions",
	"PAPI_BR_MSP":  "branch-misses",
	"PAPI_L1_DCM":  "l1d-read-misses",
	"PAPI_L1_ICM":  "l1i-read-misses",
	"PAPI_L3_TCA":  "cache-references",
	"PAPI_L3_TCM":  "cache-misses",
	"PAPI_TLB_DM":  "dtlb-read-misses",
	"PAPI_TLB_IM":  "itlb-read-misses",
	"PAPI_STL_ICY": "stalled-cycles-frontend",
	"PAPI_RES_STL": "stalled-cycles-backend",
}

type cacheEvent struct {
	cache  perf.Cache
	op     perf.CacheOp
	result perf.CacheOpResult
	label  string
}

func (e cacheEvent) Configure(attr *perf.Attr) error {
	attr.Type = perf.HardwareCacheEvent
	attr.Config = uint64(e.cache) | uint64(e.op)<<8 | uint64(e.result)<<16
	attr.Label = e.label
	return nil
}

// rawEvent is a PMU specific event code written as r<hex>, like perf-stat.
type rawEvent struct {
	config uint64
	label  string
}

func (e rawEvent) Configure(attr *perf.Attr) error {
	attr.Type = perf.RawEvent
	attr.Config = e.config
	attr.Label = e.label
	return nil
}

func cacheEvents() map[string]cacheEvent {
	events := make(map[string]cacheEvent)
	for cn, c := range caches {
		for an, a := range cacheAccesses {
			for rn, r := range cacheResults {
				evn := fmt.Sprintf("%s-%s-%s", cn, an, rn)
				events[evn] = cacheEvent{
					cache:  c,
					op:     a,
					result: r,
					label:  evn,
				}
			}
		}
	}
	return events
}

// ParseEventSpec splits a comma-separated event specification. Order is
// preserved, empty tokens are dropped and tokens are not trimmed. Duplicates
// are kept.
func ParseEventSpec(s string) []string {
	var names []string
	for _, tok := range strings.Split(s, ",") {
		if tok == "" {
			continue
		}
		names = append(names, tok)
	}
	return names
}

// IsAvailable returns true if the given event can be opened on the current
// system.
func IsAvailable(ev perf.Configurator) bool {
	fa := &perf.Attr{}
	if err := ev.Configure(fa); err != nil {
		return false
	}
	p, err := perf.Open(fa, perf.CallingThread, perf.AnyCPU, nil)
	if err == nil {
		p.Close()
		return true
	}
	return false
}

func available[E perf.Configurator](evs map[string]E) []string {
	events := make([]string, 0, len(evs))
	for evn, ev := range evs {
		if !IsAvailable(ev) {
			continue
		}
		events = append(events, evn)
	}
	sort.Strings(events)
	return events
}

// AvailableHardwareEvents returns the list of available hardware events.
func AvailableHardwareEvents() []string {
	return available(hardwareEvents)
}

// AvailableSoftwareEvents returns the list of available software events.
func AvailableSoftwareEvents() []string {
	return available(softwareEvents)
}

// AvailableCacheEvents returns the list of available cache events.
func AvailableCacheEvents() []string {
	return available(cacheEvents())
}

// NameToConfig converts the name of an event to a perf configurator.
func NameToConfig(name string) (perf.Configurator, error) {
	if alias, ok := papiPresets[name]; ok {
		name = alias
	}
	if ev, ok := hardwareEvents[name]; ok {
		return ev, nil
	} else if ev, ok := softwareEvents[name]; ok {
		return ev, nil
	} else if ev, ok := cacheEvents()[name]; ok {
		return ev, nil
	} else if strings.Contains(name, ":") {
		parts := strings.SplitN(name, ":", 2)
		return perf.Tracepoint(parts[0], parts[1]), nil
	} else if len(name) > 1 && name[0] == 'r' {
		config, err := strconv.ParseUint(name[1:], 16, 64)
		if err == nil {
			return rawEvent{config: config, label: name}, nil
		}
	}

	return nil, fmt.Errorf("not found: event %s", name)
}
