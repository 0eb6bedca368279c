package comm

import (
	"context"
)

// Local is one rank of an in-process world. Ranks of the same world run on
// separate goroutines and meet in a shared rendezvous.
type Local struct {
	rank   int
	rv     *rendezvous
	seq    sequence
	active bool
}

// NewLocal creates a world of size ranks. Element i of the result is rank i.
func NewLocal(size int) []*Local {
	rv := newRendezvous(size)
	ranks := make([]*Local, size)
	for i := range ranks {
		ranks[i] = &Local{
			rank: i,
			rv:   rv,
			seq:  make(sequence),
		}
	}
	return ranks
}

// Self returns a world with a single rank.
func Self() *Local {
	return NewLocal(1)[0]
}

func (l *Local) Init(ctx context.Context) error {
	l.active = true
	return nil
}

// Finalize waits for every rank to finalize.
func (l *Local) Finalize(ctx context.Context) error {
	if !l.active {
		return ErrNotInitialized
	}
	_, err := l.rv.contribute(ctx, l.seq.next("finalize"), l.rank, nil)
	l.active = false
	return err
}

func (l *Local) Rank() (int, error) {
	return l.rank, nil
}

func (l *Local) Size() (int, error) {
	return l.rv.size, nil
}

func (l *Local) Gather(ctx context.Context, send []int64, root int) ([]int64, error) {
	if !l.active {
		return nil, ErrNotInitialized
	}
	if err := checkRoot(root, l.rv.size); err != nil {
		return nil, err
	}
	parts, err := l.rv.contribute(ctx, l.seq.next("gather"), l.rank, send)
	if err != nil {
		return nil, err
	}
	all, err := concat(parts)
	if err != nil {
		return nil, err
	}
	if l.rank != root {
		return nil, nil
	}
	return all, nil
}

func (l *Local) Bcast(ctx context.Context, value int64, root int) (int64, error) {
	if !l.active {
		return 0, ErrNotInitialized
	}
	if err := checkRoot(root, l.rv.size); err != nil {
		return 0, err
	}
	var data []int64
	if l.rank == root {
		data = []int64{value}
	}
	parts, err := l.rv.contribute(ctx, l.seq.next("bcast"), l.rank, data)
	if err != nil {
		return 0, err
	}
	return parts[root][0], nil
}
