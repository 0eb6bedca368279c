// Package comm provides process-group runtimes: an in-process world for
// tests and single-host use, and a TCP world whose coordinator serves the
// collectives over gRPC.
package comm

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrCountMismatch   = errors.New("ranks contributed different numbers of values")
	ErrRootUnsupported = errors.New("only rank 0 can be the root of a collective")
	ErrNotInitialized  = errors.New("runtime is not initialized")
)

// A round is one collective call, completed once every rank contributed.
type round struct {
	parts   [][]int64
	arrived []bool
	count   int
	done    chan struct{}
}

// A rendezvous matches the contributions of size ranks to the same
// collective call by key and releases them together.
type rendezvous struct {
	size int

	mu     sync.Mutex
	rounds map[string]*round
}

func newRendezvous(size int) *rendezvous {
	return &rendezvous{
		size:   size,
		rounds: make(map[string]*round),
	}
}

// contribute adds data from rank to the round key and blocks until all ranks
// contributed or ctx is done. It returns every rank's contribution.
func (r *rendezvous) contribute(ctx context.Context, key string, rank int, data []int64) ([][]int64, error) {
	if rank < 0 || rank >= r.size {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", rank, r.size)
	}

	r.mu.Lock()
	rd, ok := r.rounds[key]
	if !ok {
		rd = &round{
			parts:   make([][]int64, r.size),
			arrived: make([]bool, r.size),
			done:    make(chan struct{}),
		}
		r.rounds[key] = rd
	}
	if rd.arrived[rank] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: rank %d contributed twice", key, rank)
	}
	rd.parts[rank] = append([]int64(nil), data...)
	rd.arrived[rank] = true
	rd.count++
	if rd.count == r.size {
		delete(r.rounds, key)
		close(rd.done)
	}
	r.mu.Unlock()

	select {
	case <-rd.done:
		return rd.parts, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func checkRoot(root, size int) error {
	if root < 0 || root >= size {
		return fmt.Errorf("root %d out of range [0, %d)", root, size)
	}
	return nil
}

// concat joins the parts of a gather in rank order. All parts must have the
// same length.
func concat(parts [][]int64) ([]int64, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	n := len(parts[0])
	all := make([]int64, 0, n*len(parts))
	for rank, p := range parts {
		if len(p) != n {
			return nil, errors.Wrapf(ErrCountMismatch, "rank %d sent %d values, rank 0 sent %d", rank, len(p), n)
		}
		all = append(all, p...)
	}
	return all, nil
}

// sequence numbers the collective calls of one rank so that the n-th call
// of an operation meets the n-th call of every other rank.
type sequence map[string]int

func (s sequence) next(op string) string {
	key := op + "/" + strconv.Itoa(s[op])
	s[op]++
	return key
}
