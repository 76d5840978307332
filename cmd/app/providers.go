package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/pkg/metrics"
)

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideCollector(reg *prometheus.Registry) *metrics.Collector {
	return metrics.NewCollector(reg)
}

func provideObserver(collector *metrics.Collector, logger *slog.Logger) summarizer.Observer {
	return summarizer.MultiObserver{summarizer.NewLogObserver(logger), collector}
}
