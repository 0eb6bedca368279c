// Command sum is a small job that sums random numbers split over in-process
// ranks, each rank counting its own thread. Run it with PERFCOLLECT_EVENTS
// set, or rely on the default event list.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/jessevdk/go-flags"
	"github.com/zyedidia/perfcollect"
	"github.com/zyedidia/perfcollect/comm"
)

const size = 10000000

func sum(numbers []int32) int64 {
	var sum int64
	for _, i := range numbers {
		sum += int64(i)
	}
	return sum
}

// share returns the numbers summed by rank. The last rank also takes the
// remainder of the division.
func share(numbers []int32, rank, nranks int) []int32 {
	chunk := len(numbers) / nranks
	end := (rank + 1) * chunk
	if rank == nranks-1 {
		end = len(numbers)
	}
	return numbers[rank*chunk : end]
}

func rankMain(rt perfcollect.Runtime, numbers []int32, cfg perfcollect.Config) error {
	ctx := context.Background()
	coll := perfcollect.New(rt, perfcollect.NewPerfLibrary(false, false), cfg)
	if err := coll.Init(ctx); err != nil {
		return err
	}

	rank, _ := coll.Rank()
	nranks, _ := coll.Size()
	partials, err := coll.Gather(ctx, []int64{sum(share(numbers, rank, nranks))}, perfcollect.Coordinator)
	if err != nil {
		return err
	}
	if rank == perfcollect.Coordinator {
		var total int64
		for _, p := range partials {
			total += p
		}
		fmt.Println(total)
	}
	return coll.Finalize(ctx)
}

var opts struct {
	Ranks int `short:"n" long:"np" default:"4" description:"Number of ranks"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	cfg, err := perfcollect.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Events == "" {
		cfg.Events = "instructions,branch-instructions,branch-misses"
	}

	numbers := make([]int32, size)
	for i := 0; i < size; i++ {
		numbers[i] = rand.Int31()
	}

	var wg sync.WaitGroup
	for _, rt := range comm.NewLocal(opts.Ranks) {
		wg.Add(1)
		go func(rt *comm.Local) {
			defer wg.Done()
			if err := rankMain(rt, numbers, cfg); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}(rt)
	}
	wg.Wait()
}
