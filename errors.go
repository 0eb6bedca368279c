package perfcollect

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNoEvents    = errors.New("no events requested: PERFCOLLECT_EVENTS is unset or empty")
	ErrUnsupported = errors.New("perf_event_open is not supported by this kernel")
	ErrNoCounters  = errors.New("no counters registered in the event set")
	ErrNotCounting = errors.New("event set is not counting")
	ErrInitialized = errors.New("init called more than once")
	ErrFinalized   = errors.New("finalize called more than once")
)

// Diagnostics is the single sink for counter subsystem failures. Failures are
// logged and remembered but never returned from the wrapped lifecycle calls.
type Diagnostics struct {
	log  *zap.Logger
	errs error
}

// NewDiagnostics returns a sink that logs through l.
func NewDiagnostics(l *zap.Logger) *Diagnostics {
	return &Diagnostics{log: l}
}

// Check records err under op. It reports whether err was nil.
func (d *Diagnostics) Check(op string, err error) bool {
	if err == nil {
		return true
	}
	for _, e := range multierr.Errors(err) {
		e = errors.WithMessage(e, op)
		d.log.Warn("counter subsystem", zap.String("error", e.Error()))
		d.errs = multierr.Append(d.errs, e)
	}
	return false
}

// Err returns every recorded failure combined, or nil.
func (d *Diagnostics) Err() error {
	return d.errs
}
