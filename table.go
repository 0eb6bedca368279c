package perfcollect

import (
	"fmt"
	"strconv"
)

// A Table holds the counter vector of every rank, row r being rank r.
type Table struct {
	Events []string
	Rows   [][]int64
}

// NewTable splits the gathered values of size ranks into rows of
// len(events) columns.
func NewTable(events []string, gathered []int64, size int) (*Table, error) {
	n := len(events)
	if size < 0 || len(gathered) != size*n {
		return nil, fmt.Errorf("gathered %d values, expected %d ranks x %d events", len(gathered), size, n)
	}
	rows := make([][]int64, size)
	for r := range rows {
		rows[r] = gathered[r*n : (r+1)*n]
	}
	return &Table{
		Events: events,
		Rows:   rows,
	}, nil
}

// Totals returns the per-event sum over all ranks.
func (t *Table) Totals() []int64 {
	sums := make([]int64, len(t.Events))
	for _, row := range t.Rows {
		for i, v := range row {
			sums[i] += v
		}
	}
	return sums
}

func record(first string, values []int64) []string {
	rec := make([]string, 0, len(values)+1)
	rec = append(rec, first)
	for _, v := range values {
		rec = append(rec, strconv.FormatInt(v, 10))
	}
	return rec
}

// WriteTo writes the table to mw, one row per rank in rank order, followed by
// a sum row if totals is set.
func (t *Table) WriteTo(mw MetricsWriter, totals bool) {
	header := append([]string{"rank"}, t.Events...)
	mw.SetHeader(header)
	for r, row := range t.Rows {
		mw.Append(record(strconv.Itoa(r), row))
	}
	if totals {
		mw.Append(record("sum", t.Totals()))
	}
	mw.Render()
}
