package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCircuitRegistry,
	NewHealthAggregator,
	NewStrategyProviders,
	NewFallbackCascade,
	NewReliabilityUsecase,
	NewAlertManager,
	wire.Bind(new(RecoveryRunner), new(*ReliabilityUsecase)),
)
