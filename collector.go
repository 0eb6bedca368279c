package perfcollect

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the position of a process in the collection lifecycle.
type State int

const (
	Uninitialized State = iota
	Counting
	Stopped
	// Reported is reached by the coordinator once the table is rendered.
	Reported
	// Passed is reached by the other ranks once the gather returned.
	Passed
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Counting:
		return "counting"
	case Stopped:
		return "stopped"
	case Reported:
		return "reported"
	case Passed:
		return "passed"
	case TornDown:
		return "torn-down"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// A Collector wraps a Runtime and brackets its lifetime with one counter
// session. Init starts the counters before the wrapped Init, Finalize stops
// them, gathers every rank's counter vector on the coordinator, prints the
// report there and then runs the wrapped Finalize.
//
// Counter failures never change what Init and Finalize return: those are
// always the wrapped runtime's own results. Failures are logged and available
// from Err.
//
// Init and Finalize must each be called once, from the same goroutine.
type Collector struct {
	rt      Runtime
	lib     Library
	cfg     Config
	out     io.Writer
	log     *zap.Logger
	diag    *Diagnostics
	session *Session
	// job-wide counter vector length, -1 until agreed on in Init
	pinned int
	state  State
	// true once Finalize ran, whatever state it reached
	finalized bool
}

// An Option configures a Collector.
type Option func(*Collector)

// WithOutput sets where the report is written when Config.Output is empty.
// The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Collector) {
		c.out = w
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) {
		c.log = l
	}
}

// New returns a collector counting with lib around rt.
func New(rt Runtime, lib Library, cfg Config, opts ...Option) *Collector {
	c := &Collector{
		rt:     rt,
		lib:    lib,
		cfg:    cfg,
		out:    os.Stdout,
		log:    logger,
		pinned: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.diag = NewDiagnostics(c.log)
	c.session = &Session{diag: c.diag}
	return c
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	return c.state
}

// Err returns every counter subsystem failure seen so far, or nil.
func (c *Collector) Err() error {
	return c.diag.Err()
}

// Init starts counting and then initializes the wrapped runtime, returning
// its result unchanged.
func (c *Collector) Init(ctx context.Context) error {
	if c.state != Uninitialized {
		c.diag.Check("init", ErrInitialized)
		return c.rt.Init(ctx)
	}

	c.session = StartSession(c.lib, c.cfg.Events, c.diag)
	c.state = Counting
	c.log.Debug("counting", zap.Strings("events", c.session.Registered()))

	if err := c.rt.Init(ctx); err != nil {
		return err
	}
	c.pin(ctx)
	return nil
}

// pin sets the counter vector length of the job to the length of the
// coordinator's event list.
func (c *Collector) pin(ctx context.Context) {
	local := c.session.Width()
	n, err := c.rt.Bcast(ctx, int64(local), Coordinator)
	if !c.diag.Check("agree on event count", err) {
		c.pinned = local
		return
	}
	c.pinned = int(n)
	if c.pinned != local {
		c.diag.Check("agree on event count",
			errors.Errorf("event list has %d events, coordinator's has %d", local, c.pinned))
	}
}

// Finalize stops counting, takes part in the gather, reports on the
// coordinator and finalizes the wrapped runtime, returning its result
// unchanged. Every rank reaches the gather whatever failed before it. Only
// the first call collects; later calls go straight to the wrapped Finalize.
func (c *Collector) Finalize(ctx context.Context) error {
	if c.finalized {
		c.diag.Check("finalize", ErrFinalized)
		return c.rt.Finalize(ctx)
	}
	c.finalized = true

	values := c.session.Stop()
	c.state = Stopped

	n := c.pinned
	if n < 0 {
		n = len(values)
	}
	values = c.fit(values, n)

	rank, err := c.rt.Rank()
	if !c.diag.Check("query rank", err) {
		rank = -1
	}
	size, err := c.rt.Size()
	if !c.diag.Check("query size", err) {
		size = -1
	}

	all, err := c.rt.Gather(ctx, values, Coordinator)
	gathered := c.diag.Check("gather counters", err)
	if rank == Coordinator {
		if gathered {
			c.report(all, n, size)
		}
		c.state = Reported
	} else {
		c.state = Passed
	}

	err = c.rt.Finalize(ctx)
	c.state = TornDown
	return err
}

// fit pads or truncates values to n entries.
func (c *Collector) fit(values []int64, n int) []int64 {
	if len(values) == n {
		return values
	}
	c.diag.Check("fit counters", errors.Errorf("read %d counters, job uses %d", len(values), n))
	fitted := make([]int64, n)
	copy(fitted, values)
	return fitted
}

func (c *Collector) report(all []int64, n, size int) {
	names := c.session.Names()
	if len(names) > n {
		names = names[:n]
	}
	for i := len(names); i < n; i++ {
		names = append(names, fmt.Sprintf("event%d", i))
	}

	t, err := NewTable(names, all, size)
	if !c.diag.Check("build report", err) {
		return
	}
	c.diag.Check("write report", c.render(t))
	if c.cfg.Textfile != "" {
		c.diag.Check("write textfile", WriteTextfile(c.cfg.Textfile, t))
	}
}

func (c *Collector) render(t *Table) (err error) {
	if c.cfg.Format == FormatXLSX {
		xw := NewXLSXWriter(c.cfg.Output)
		t.WriteTo(xw, c.cfg.Totals)
		return xw.Err()
	}

	out := c.out
	if c.cfg.Output != "" {
		f, err := os.OpenFile(c.cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}

	switch c.cfg.Format {
	case FormatCSV:
		cw := NewCSVWriter(out)
		t.WriteTo(cw, c.cfg.Totals)
		return cw.Error()
	case FormatTable:
		t.WriteTo(NewTableWriter(out), c.cfg.Totals)
		return nil
	default:
		tw := NewTSVWriter(out)
		t.WriteTo(tw, c.cfg.Totals)
		return tw.Err()
	}
}

// Rank returns the wrapped runtime's rank.
func (c *Collector) Rank() (int, error) {
	return c.rt.Rank()
}

// Size returns the wrapped runtime's size.
func (c *Collector) Size() (int, error) {
	return c.rt.Size()
}

// Gather calls the wrapped runtime's Gather.
func (c *Collector) Gather(ctx context.Context, send []int64, root int) ([]int64, error) {
	return c.rt.Gather(ctx, send, root)
}

// Bcast calls the wrapped runtime's Bcast.
func (c *Collector) Bcast(ctx context.Context, value int64, root int) (int64, error) {
	return c.rt.Bcast(ctx, value, root)
}
