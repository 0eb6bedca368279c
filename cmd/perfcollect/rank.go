package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/zyedidia/perfcollect"
	"github.com/zyedidia/perfcollect/comm"
	"go.uber.org/zap"
)

type rankCommand struct {
	reportFlags
}

func (c *rankCommand) Execute(args []string) error {
	if len(args) == 0 {
		return errors.New("rank: no program given")
	}
	cfg, logger, err := c.config()
	if err != nil {
		return err
	}
	defer logger.Sync()

	node, err := comm.FromEnv(logger)
	if err != nil {
		return errors.Wrap(err, "rank")
	}
	lib := perfcollect.NewPerfLibrary(cfg.Kernel, cfg.Hypervisor)
	coll := perfcollect.New(node, lib, cfg, perfcollect.WithLogger(logger))

	ctx := context.Background()
	if err := coll.Init(ctx); err != nil {
		return errors.Wrap(err, "init")
	}

	code := run(args, logger)

	if err := coll.Finalize(ctx); err != nil {
		logger.Error("finalize", zap.Error(err))
		if code == 0 {
			code = 1
		}
	}
	if code != 0 {
		return exitCode(code)
	}
	return nil
}

// run starts the program from the calling thread, forwards termination
// signals to it and returns its exit status.
func run(args []string, logger *zap.Logger) int {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := cmd.Start(); err != nil {
		logger.Error("start program", zap.String("program", args[0]), zap.Error(err))
		return 127
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-sigs:
				cmd.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	if err := cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return exitStatus(ee)
		}
		logger.Error("wait program", zap.Error(err))
		return 1
	}
	return 0
}

// exitStatus returns the status a shell reports for the program: its exit
// code, or 128 plus the signal number if a signal killed it.
func exitStatus(ee *exec.ExitError) int {
	if code := ee.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}
