package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovoronkov/reelcut/internal/registry"
)

// JobStats gives the collector access to live pipeline state.
type JobStats interface {
	ActiveJobs() int
}

// Collector implements prometheus.Collector to read registry totals and live
// gauges at scrape time.
type Collector struct {
	reg   *registry.Registry
	stats JobStats

	activeJobs      *prometheus.Desc
	registrySources *prometheus.Desc
	registryClips   *prometheus.Desc
	registryJobs    *prometheus.Desc
}

// NewCollector creates a collector. reg may be nil (registry gauges report 0);
// stats may be nil if no pipeline is running.
func NewCollector(reg *registry.Registry, stats JobStats) *Collector {
	return &Collector{
		reg:   reg,
		stats: stats,
		activeJobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_jobs"),
			"Current number of in-progress processing jobs.",
			nil, nil,
		),
		registrySources: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "sources"),
			"Sources recorded in the registry.",
			nil, nil,
		),
		registryClips: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "clips"),
			"Clips recorded in the registry.",
			nil, nil,
		),
		registryJobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "jobs"),
			"Completed jobs recorded in the registry.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeJobs
	ch <- c.registrySources
	ch <- c.registryClips
	ch <- c.registryJobs
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		ch <- prometheus.MustNewConstMetric(c.activeJobs, prometheus.GaugeValue, float64(c.stats.ActiveJobs()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.activeJobs, prometheus.GaugeValue, 0)
	}

	var s registry.Stats
	if c.reg != nil {
		if got, err := c.reg.Stats(context.Background()); err == nil {
			s = got
		}
	}
	ch <- prometheus.MustNewConstMetric(c.registrySources, prometheus.GaugeValue, float64(s.Sources))
	ch <- prometheus.MustNewConstMetric(c.registryClips, prometheus.GaugeValue, float64(s.Clips))
	ch <- prometheus.MustNewConstMetric(c.registryJobs, prometheus.GaugeValue, float64(s.Jobs))
}
