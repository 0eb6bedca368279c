package perfcollect

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/zyedidia/perf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// A Library is the hardware counter runtime. It is initialized once per
// process and hands out event sets.
type Library interface {
	Init() error
	// ThreadInit makes counts from other threads of the process attributed
	// to the event sets created afterwards.
	ThreadInit() error
	CreateEventSet() (EventSet, error)
}

// An EventSet is a group of counters started and stopped together.
type EventSet interface {
	// AddNamed registers a counter by its platform event name.
	AddNamed(name string) error
	Start() error
	NumEvents() int
	// Stop stops counting and returns one value per registered event, in
	// registration order. The set can not be restarted.
	Stop() ([]int64, error)
	// Names returns the registered event names in registration order.
	Names() ([]string, error)
}

// PerfLibrary is a Library backed by the Linux perf_event_open interface.
type PerfLibrary struct {
	// Pid is the process or thread to count. perf.CallingThread together
	// with inheritance covers every thread and child created after the event
	// set is opened.
	Pid     int
	Options perf.Options

	tid int
}

// NewPerfLibrary returns a library counting the calling thread and its
// descendants in user mode.
func NewPerfLibrary(kernel, hypervisor bool) *PerfLibrary {
	return &PerfLibrary{
		Pid: perf.CallingThread,
		Options: perf.Options{
			ExcludeKernel:     !kernel,
			ExcludeHypervisor: !hypervisor,
		},
	}
}

func (l *PerfLibrary) Init() error {
	if !perf.Supported() {
		return ErrUnsupported
	}
	return nil
}

// ThreadInit pins the calling goroutine to its OS thread. Events are opened
// on that thread with inheritance, so the goroutine that calls ThreadInit
// must be the one that later spawns the measured work.
func (l *PerfLibrary) ThreadInit() error {
	runtime.LockOSThread()
	l.tid = unix.Gettid()
	l.Options.Inherit = true
	logger.Debug("counting thread", zap.Int("tid", l.tid))
	return nil
}

func (l *PerfLibrary) CreateEventSet() (EventSet, error) {
	return &perfEventSet{
		pid:  l.Pid,
		opts: l.Options,
	}, nil
}

type perfEventSet struct {
	pid     int
	opts    perf.Options
	events  []*perf.Event
	names   []string
	stopped bool
}

func (s *perfEventSet) AddNamed(name string) error {
	if s.stopped {
		return ErrNotCounting
	}
	cfg, err := NameToConfig(name)
	if err != nil {
		return err
	}
	fa := &perf.Attr{
		CountFormat: perf.CountFormat{
			Enabled: true,
			Running: true,
		},
		Options: s.opts,
	}
	fa.Options.Disabled = true
	if err := cfg.Configure(fa); err != nil {
		return errors.Wrapf(err, "configure %s", name)
	}
	fa.Label = name

	ev, err := perf.Open(fa, s.pid, perf.AnyCPU, nil)
	if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	s.events = append(s.events, ev)
	s.names = append(s.names, name)
	return nil
}

func (s *perfEventSet) Start() error {
	if s.stopped {
		return ErrNotCounting
	}
	var errs error
	for i, ev := range s.events {
		errs = multierr.Append(errs, errors.Wrapf(ev.Enable(), "enable %s", s.names[i]))
	}
	return errs
}

func (s *perfEventSet) NumEvents() int {
	return len(s.events)
}

func (s *perfEventSet) Stop() ([]int64, error) {
	if s.stopped {
		return nil, ErrNotCounting
	}
	s.stopped = true

	values := make([]int64, len(s.events))
	var errs error
	for i, ev := range s.events {
		if err := ev.Disable(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "disable %s", s.names[i]))
		}
		c, err := ev.ReadCount()
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "read %s", s.names[i]))
		} else {
			values[i] = scale(c)
		}
		ev.Close()
	}
	return values, errs
}

func (s *perfEventSet) Names() ([]string, error) {
	return append([]string(nil), s.names...), nil
}

// scale extrapolates a count that was multiplexed with other events.
func scale(c perf.Count) int64 {
	if c.Running == 0 {
		return 0
	}
	if c.Enabled != c.Running {
		logger.Debug("multiplexing occurred",
			zap.String("event", c.Label),
			zap.Duration("enabled", c.Enabled),
			zap.Duration("running", c.Running))
		return int64(float64(c.Value) * float64(c.Enabled) / float64(c.Running))
	}
	return int64(c.Value)
}
