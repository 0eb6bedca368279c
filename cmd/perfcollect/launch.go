package main

import (
	"context"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/zyedidia/perfcollect/comm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type launchCommand struct {
	Procs       int    `short:"n" long:"np" default:"1" description:"Number of ranks to start"`
	Coordinator string `long:"coordinator" description:"Address rank 0 listens on (default: a free loopback port)"`
	reportFlags
}

// freeAddr returns a loopback address with a port that was free a moment
// ago.
func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

// rankEnv returns base extended with the description of rank in a job of
// size ranks coordinated at addr.
func rankEnv(base []string, rank, size int, addr string, extra []string) []string {
	env := append([]string(nil), base...)
	env = append(env,
		comm.RankVars[0]+"="+strconv.Itoa(rank),
		comm.SizeVars[0]+"="+strconv.Itoa(size),
		comm.CoordinatorVar+"="+addr,
	)
	return append(env, extra...)
}

func (c *launchCommand) Execute(args []string) error {
	if len(args) == 0 {
		return errors.New("launch: no program given")
	}
	if c.Procs < 1 {
		return errors.Errorf("launch: invalid number of ranks %d", c.Procs)
	}
	_, logger, err := c.config()
	if err != nil {
		return err
	}
	defer logger.Sync()

	addr := c.Coordinator
	if addr == "" {
		if addr, err = freeAddr(); err != nil {
			return errors.Wrap(err, "launch: pick coordinator port")
		}
	}
	self, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "launch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codes := make([]int, c.Procs)
	var g errgroup.Group
	for r := 0; r < c.Procs; r++ {
		cmd := exec.CommandContext(ctx, self, append([]string{"rank", "--"}, args...)...)
		cmd.Env = rankEnv(os.Environ(), r, c.Procs, addr, c.env())
		cmd.Stdin = nil
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if r == 0 {
			cmd.Stdin = os.Stdin
		}
		logger.Debug("starting rank", zap.Int("rank", r), zap.String("coordinator", addr))

		r := r
		g.Go(func() error {
			err := cmd.Run()
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				codes[r] = exitStatus(ee)
				return nil
			}
			return errors.Wrapf(err, "rank %d", r)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	worst := 0
	for _, code := range codes {
		if code > worst {
			worst = code
		}
	}
	if worst != 0 {
		return exitCode(worst)
	}
	return nil
}
