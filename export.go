package perfcollect

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes the table in the Prometheus text exposition format,
// suitable for the node exporter textfile collector.
func WriteTextfile(path string, t *Table) error {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perfcollect_counter_value",
			Help: "Hardware counter value of one rank at teardown.",
		},
		[]string{"rank", "event"},
	)
	if err := reg.Register(gauge); err != nil {
		return err
	}
	for r, row := range t.Rows {
		for i, v := range row {
			gauge.WithLabelValues(strconv.Itoa(r), t.Events[i]).Set(float64(v))
		}
	}
	return prometheus.WriteToTextfile(path, reg)
}
