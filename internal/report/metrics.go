package report

import (
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// DurationBuckets are the histogram buckets for invocation durations, in seconds.
var DurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Collector exposes journal contents as Prometheus metrics. Every value is a
// projection of journal records, recomputed on each scrape, so the numbers
// survive restarts and count invocations from every wrapper process.
type Collector struct {
	journal *Journal

	invocations *prometheus.Desc
	duration    *prometheus.Desc
	lines       *prometheus.Desc
	exitCodes   *prometheus.Desc
	skipped     *prometheus.Desc
}

// NewCollector creates a collector over j.
func NewCollector(j *Journal) *Collector {
	return &Collector{
		journal: j,
		invocations: prometheus.NewDesc(
			"ccwrap_invocations_total",
			"Compiler invocations by outcome",
			[]string{"outcome"}, nil,
		),
		duration: prometheus.NewDesc(
			"ccwrap_invocation_duration_seconds",
			"Wall time of compiler invocations",
			nil, nil,
		),
		lines: prometheus.NewDesc(
			"ccwrap_relayed_lines_total",
			"Output lines relayed from the compiler by stream",
			[]string{"stream"}, nil,
		),
		exitCodes: prometheus.NewDesc(
			"ccwrap_exit_codes_total",
			"Wrapper exit codes",
			[]string{"code"}, nil,
		),
		skipped: prometheus.NewDesc(
			"ccwrap_journal_skipped_lines",
			"Journal lines that could not be parsed",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.invocations
	ch <- c.duration
	ch <- c.lines
	ch <- c.exitCodes
	ch <- c.skipped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	results, skipped, err := c.journal.ReadAll()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.invocations, err)
		return
	}
	s := Summarize(results, skipped)

	ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue, float64(s.Succeeded), OutcomeSuccess)
	ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue, float64(s.ChildFailures), OutcomeChildFailure)
	ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue, float64(s.WrapperFailures), OutcomeWrapperFailure)

	ch <- prometheus.MustNewConstMetric(c.lines, prometheus.CounterValue, float64(s.StdoutLines), "stdout")
	ch <- prometheus.MustNewConstMetric(c.lines, prometheus.CounterValue, float64(s.StderrLines), "stderr")

	codes := make([]int, 0, len(s.ByCode))
	for code := range s.ByCode {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		ch <- prometheus.MustNewConstMetric(c.exitCodes, prometheus.CounterValue, float64(s.ByCode[code]), strconv.Itoa(code))
	}

	ch <- c.durationHistogram(results)
	ch <- prometheus.MustNewConstMetric(c.skipped, prometheus.GaugeValue, float64(skipped))
}

func (c *Collector) durationHistogram(results []*Result) prometheus.Metric {
	buckets := make(map[float64]uint64, len(DurationBuckets))
	var sum float64
	for _, r := range results {
		sum += r.Duration
		for _, b := range DurationBuckets {
			if r.Duration <= b {
				buckets[b]++
			}
		}
	}
	return prometheus.MustNewConstHistogram(c.duration, uint64(len(results)), sum, buckets)
}
