package perfcollect

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zyedidia/perfcollect/comm"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

// countingRuntime records how often each collective is entered.
type countingRuntime struct {
	Runtime
	gathers     int
	finalizes   int
	initErr     error
	finalizeErr error
}

func (r *countingRuntime) Init(ctx context.Context) error {
	if err := r.Runtime.Init(ctx); err != nil {
		return err
	}
	return r.initErr
}

func (r *countingRuntime) Finalize(ctx context.Context) error {
	r.finalizes++
	if err := r.Runtime.Finalize(ctx); err != nil {
		return err
	}
	return r.finalizeErr
}

func (r *countingRuntime) Gather(ctx context.Context, send []int64, root int) ([]int64, error) {
	r.gathers++
	return r.Runtime.Gather(ctx, send, root)
}

type rankRun struct {
	rt      *countingRuntime
	coll    *Collector
	out     bytes.Buffer
	initErr error
	finErr  error
}

// runJob runs Init and Finalize on every rank of an in-process job, one
// goroutine per rank.
func runJob(libs []*fakeLibrary, cfg Config, log *zap.Logger) []*rankRun {
	cfgs := make([]Config, len(libs))
	for r := range cfgs {
		cfgs[r] = cfg
	}
	return runJobWith(libs, cfgs, log)
}

// runJobWith is runJob with a configuration per rank.
func runJobWith(libs []*fakeLibrary, cfgs []Config, log *zap.Logger) []*rankRun {
	world := comm.NewLocal(len(libs))
	runs := make([]*rankRun, len(libs))
	var wg sync.WaitGroup
	for r := range runs {
		run := &rankRun{rt: &countingRuntime{Runtime: world[r]}}
		run.coll = New(run.rt, libs[r], cfgs[r], WithOutput(&run.out), WithLogger(log))
		runs[r] = run

		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			run.initErr = run.coll.Init(ctx)
			run.finErr = run.coll.Finalize(ctx)
		}()
	}
	wg.Wait()
	return runs
}

func exampleLibs() []*fakeLibrary {
	return []*fakeLibrary{
		{values: map[string]int64{"cyc": 100, "ins": 10}},
		{values: map[string]int64{"cyc": 200, "ins": 20}},
	}
}

func TestCollectorReport(t *testing.T) {
	runs := runJob(exampleLibs(), Config{Events: "cyc,ins"}, zaptest.NewLogger(t))

	for _, run := range runs {
		require.NoError(t, run.initErr)
		require.NoError(t, run.finErr)
		require.NoError(t, run.coll.Err())
		assert.Equal(t, TornDown, run.coll.State())
	}
	assert.Equal(t, SummaryBanner+"rank\tcyc\tins\n0\t100\t10\n1\t200\t20\n", runs[0].out.String())
	assert.Empty(t, runs[1].out.String())
}

func TestCollectorColumnOrderFollowsEventList(t *testing.T) {
	runs := runJob(exampleLibs(), Config{Events: "ins,cyc"}, zaptest.NewLogger(t))
	assert.Equal(t, SummaryBanner+"rank\tins\tcyc\n0\t10\t100\n1\t20\t200\n", runs[0].out.String())
}

func TestCollectorStates(t *testing.T) {
	lib := &fakeLibrary{values: map[string]int64{"cyc": 1}}
	var out bytes.Buffer
	coll := New(comm.Self(), lib, Config{Events: "cyc"}, WithOutput(&out), WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	assert.Equal(t, Uninitialized, coll.State())
	require.NoError(t, coll.Init(ctx))
	assert.Equal(t, Counting, coll.State())
	require.NoError(t, coll.Finalize(ctx))
	assert.Equal(t, TornDown, coll.State())
	assert.Equal(t, "torn-down", coll.State().String())
}

func TestCollectorFinalizeTwice(t *testing.T) {
	lib := &fakeLibrary{values: map[string]int64{"cyc": 1}}
	rt := &countingRuntime{Runtime: comm.Self()}
	var out bytes.Buffer
	coll := New(rt, lib, Config{Events: "cyc"}, WithOutput(&out), WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, coll.Init(ctx))
	require.NoError(t, coll.Finalize(ctx))
	report := out.String()

	// the second call only reaches the wrapped runtime, whose own error is
	// returned
	err := coll.Finalize(ctx)
	assert.True(t, errors.Is(err, comm.ErrNotInitialized))
	assert.True(t, errors.Is(coll.Err(), ErrFinalized))
	assert.Equal(t, 1, rt.gathers)
	assert.Equal(t, 2, rt.finalizes)
	assert.Equal(t, 1, lib.set.stops)
	assert.Equal(t, report, out.String())
}

func TestCollectorInitTwice(t *testing.T) {
	lib := &fakeLibrary{}
	coll := New(comm.Self(), lib, Config{Events: "cyc"}, WithOutput(&bytes.Buffer{}), WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, coll.Init(ctx))
	require.NoError(t, coll.Init(ctx))
	assert.True(t, errors.Is(coll.Err(), ErrInitialized))
	assert.Equal(t, 1, lib.creates)
}

func TestCollectorWithoutEvents(t *testing.T) {
	runs := runJob([]*fakeLibrary{{}, {}}, Config{}, zaptest.NewLogger(t))

	for _, run := range runs {
		require.NoError(t, run.initErr)
		require.NoError(t, run.finErr)
		assert.True(t, errors.Is(run.coll.Err(), ErrNoEvents))
		assert.Equal(t, 1, run.rt.gathers)
	}
	assert.Equal(t, SummaryBanner+"rank\n0\n1\n", runs[0].out.String())
}

func TestCollectorKeepsColumnsOfFailedEvents(t *testing.T) {
	libs := exampleLibs()
	libs[1].reject = map[string]bool{"cyc": true}

	runs := runJob(libs, Config{Events: "cyc,ins", Totals: true}, zaptest.NewLogger(t))

	require.NoError(t, runs[0].coll.Err())
	require.Error(t, runs[1].coll.Err())
	assert.Contains(t, runs[1].coll.Err().Error(), "add event cyc")
	assert.NotContains(t, runs[1].coll.Err().Error(), "coordinator")
	assert.Equal(t, SummaryBanner+"rank\tcyc\tins\n0\t100\t10\n1\t0\t20\nsum\t100\t30\n", runs[0].out.String())
}

func TestCollectorAgreesOnEventCount(t *testing.T) {
	cfgs := []Config{{Events: "cyc,ins"}, {Events: "cyc"}}

	runs := runJobWith(exampleLibs(), cfgs, zaptest.NewLogger(t))

	require.NoError(t, runs[0].coll.Err())
	require.Error(t, runs[1].coll.Err())
	assert.Contains(t, runs[1].coll.Err().Error(), "event list has 1 events, coordinator's has 2")
	assert.Equal(t, SummaryBanner+"rank\tcyc\tins\n0\t100\t10\n1\t200\t0\n", runs[0].out.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCollectorReportsWriteErrors(t *testing.T) {
	for _, format := range []string{FormatTSV, FormatCSV} {
		t.Run(format, func(t *testing.T) {
			lib := &fakeLibrary{values: map[string]int64{"cyc": 1}}
			coll := New(comm.Self(), lib, Config{Events: "cyc", Format: format},
				WithOutput(failingWriter{}), WithLogger(zaptest.NewLogger(t)))
			ctx := context.Background()

			require.NoError(t, coll.Init(ctx))
			require.NoError(t, coll.Finalize(ctx))
			require.Error(t, coll.Err())
			assert.Contains(t, coll.Err().Error(), "write report: disk full")
		})
	}
}

func TestCollectorReturnsRuntimeErrors(t *testing.T) {
	initErr := errors.New("init failed")
	rt := &countingRuntime{Runtime: comm.Self(), initErr: initErr}
	coll := New(rt, &fakeLibrary{}, Config{Events: "cyc"}, WithOutput(&bytes.Buffer{}), WithLogger(zaptest.NewLogger(t)))
	assert.Equal(t, initErr, coll.Init(context.Background()))

	finErr := errors.New("finalize failed")
	rt = &countingRuntime{Runtime: comm.Self(), finalizeErr: finErr}
	lib := &fakeLibrary{readErr: errors.New("read failed")}
	coll = New(rt, lib, Config{Events: "cyc"}, WithOutput(&bytes.Buffer{}), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, coll.Init(context.Background()))
	assert.Equal(t, finErr, coll.Finalize(context.Background()))
	assert.Contains(t, coll.Err().Error(), "read failed")
}

func TestCollectorWritesConfiguredOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Events:   "cyc,ins",
		Format:   FormatCSV,
		Output:   filepath.Join(dir, "report.csv"),
		Textfile: filepath.Join(dir, "report.prom"),
		Totals:   true,
	}
	runs := runJob(exampleLibs(), cfg, zaptest.NewLogger(t))
	require.NoError(t, runs[0].coll.Err())
	assert.Empty(t, runs[0].out.String())

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, "rank,cyc,ins\n0,100,10\n1,200,20\nsum,300,30\n", string(data))

	_, err = os.Stat(cfg.Textfile)
	assert.NoError(t, err)
}

func TestCollectorEveryRankGathersOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 8).Draw(t, "ranks")
		events := []string{"cyc", "ins", "l1"}
		libs := make([]*fakeLibrary, w)
		for r := range libs {
			lib := &fakeLibrary{
				values: map[string]int64{"cyc": int64(r), "ins": int64(10 * r), "l1": int64(100 * r)},
				reject: make(map[string]bool),
			}
			for _, ev := range events {
				lib.reject[ev] = rapid.Bool().Draw(t, "reject")
			}
			switch rapid.IntRange(0, 3).Draw(t, "failure") {
			case 1:
				lib.initErr = ErrUnsupported
			case 2:
				lib.createErr = errors.New("create failed")
			case 3:
				lib.readErr = errors.New("read failed")
			}
			libs[r] = lib
		}

		runs := runJob(libs, Config{Events: strings.Join(events, ",")}, zap.NewNop())

		for _, run := range runs {
			require.NoError(t, run.initErr)
			require.NoError(t, run.finErr)
			require.Equal(t, 1, run.rt.gathers)
			require.Equal(t, 1, run.rt.finalizes)
		}
		lines := strings.Split(strings.TrimPrefix(runs[0].out.String(), SummaryBanner), "\n")
		// header, one line per rank, empty string after the last newline
		require.Len(t, lines, w+2)
		for _, run := range runs[1:] {
			require.Empty(t, run.out.String())
		}
	})
}
