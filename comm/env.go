package comm

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Environment variables describing the job, in lookup order. The
// PERFCOLLECT_ ones are set by the launcher; the others let ranks started
// by an MPI launcher find their place in the job.
var (
	RankVars = []string{"PERFCOLLECT_RANK", "OMPI_COMM_WORLD_RANK", "PMI_RANK"}
	SizeVars = []string{"PERFCOLLECT_SIZE", "OMPI_COMM_WORLD_SIZE", "PMI_SIZE"}
)

// CoordinatorVar holds the host:port of rank 0.
const CoordinatorVar = "PERFCOLLECT_COORDINATOR"

func lookupInt(vars []string) (int, bool, error) {
	for _, v := range vars {
		s, ok := os.LookupEnv(v)
		if !ok || s == "" {
			continue
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, true, errors.Wrapf(err, "parse %s", v)
		}
		return i, true, nil
	}
	return 0, false, nil
}

// FromEnv returns the node described by the environment. Without any rank
// or size variable the process is a job of its own, coordinated on a
// loopback address.
func FromEnv(log *zap.Logger) (*Node, error) {
	rank, rok, err := lookupInt(RankVars)
	if err != nil {
		return nil, err
	}
	size, sok, err := lookupInt(SizeVars)
	if err != nil {
		return nil, err
	}
	addr := os.Getenv(CoordinatorVar)
	if !rok && !sok {
		rank, size = 0, 1
		if addr == "" {
			addr = "127.0.0.1:0"
		}
	}
	return NewNode(rank, size, addr, log)
}
