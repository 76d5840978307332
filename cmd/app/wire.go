//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanqian/transcript-summarizer/internal/bootstrap"
	"github.com/yanqian/transcript-summarizer/internal/infra/config"
	httpiface "github.com/yanqian/transcript-summarizer/internal/interface/http"
	"github.com/yanqian/transcript-summarizer/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		bootstrap.ProviderSet,
		provideRegistry,
		provideCollector,
		provideObserver,
		wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
