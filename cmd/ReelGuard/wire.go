//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"ReelGuard/internal/biz"
	"ReelGuard/internal/conf"
	"ReelGuard/internal/data"
	"ReelGuard/internal/server"
	"ReelGuard/internal/service"
	"ReelGuard/pkg/ai"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, log.Logger) (*application, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*conf.Bootstrap), "Server", "Data", "Reliability"),
		wire.FieldsOf(new(*conf.Data), "Provider"),
		wire.FieldsOf(new(*conf.Reliability), "Breaker", "Health", "Orchestrator", "Fallback", "Alerting"),
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		ai.NewClient,
		wire.Bind(new(biz.RecommendationProvider), new(*ai.Client)),
		newReliabilityJobs,
		newApplication,
	))
}
