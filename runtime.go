package perfcollect

import "context"

// Coordinator is the rank that receives the gathered counters and prints the
// report.
const Coordinator = 0

// A Runtime is a process-group runtime: a fixed set of cooperating processes
// with contiguous ranks starting at 0. Init and Finalize bracket the process's
// participation. Gather and Bcast are collectives: every rank must call them
// in the same order, and each call blocks until all ranks have arrived. A
// rank that never arrives blocks the others indefinitely unless the caller's
// context ends.
type Runtime interface {
	Init(ctx context.Context) error
	Finalize(ctx context.Context) error
	Rank() (int, error)
	Size() (int, error)
	// Gather concatenates the send slices of all ranks in rank order on root.
	// Every rank must contribute the same number of values. Ranks other than
	// root receive nil.
	Gather(ctx context.Context, send []int64, root int) ([]int64, error)
	// Bcast returns root's value on every rank.
	Bcast(ctx context.Context, value int64, root int) (int64, error)
}
