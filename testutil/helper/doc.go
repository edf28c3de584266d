// Package helper provides test doubles for the statepersist packages: slog, metrics, tracing and
// contextual logger spies, plus storage engines that record or fail on demand.
package helper
