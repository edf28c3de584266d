// Package oteladapters provides OpenTelemetry implementations of the statepersist observability
// interfaces, for users who want plug-and-play observability of persist and hydrate cycles and of
// the storage engines.
//
// Usage example:
//
//	plugin, _ := statepersist.NewPlugin(
//		registry,
//		statepersist.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("app"))),
//		statepersist.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("app"))),
//		statepersist.WithContextualLogger(oteladapters.NewSlogBridgeLogger("app")),
//	)
package oteladapters
