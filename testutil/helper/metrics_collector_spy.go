package helper

import (
	"context"
	"sync"
	"time"
)

// MetricsCollectorSpy captures metrics calls for testing.
// It implements the context-aware collector interface too, so tests can assert which variant was used.
type MetricsCollectorSpy struct {
	records     []SpyMetricRecord
	mu          sync.Mutex
	recordCalls bool
}

// Metric record kinds.
const (
	KindDuration = "duration"
	KindCounter  = "counter"
	KindValue    = "value"
)

// SpyMetricRecord represents one recorded metrics call.
type SpyMetricRecord struct {
	Kind        string
	Metric      string
	Duration    time.Duration
	Value       float64
	Labels      map[string]string
	WithContext bool
}

// NewMetricsCollectorSpy creates a new MetricsCollectorSpy.
// Set recordCalls to true to capture all metrics calls for inspection in tests.
func NewMetricsCollectorSpy(recordCalls bool) *MetricsCollectorSpy {
	return &MetricsCollectorSpy{
		records:     make([]SpyMetricRecord, 0),
		recordCalls: recordCalls,
	}
}

// RecordDuration implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: KindDuration, Metric: metric, Duration: duration, Labels: labels})
}

// IncrementCounter implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: KindCounter, Metric: metric, Labels: labels})
}

// RecordValue implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: KindValue, Metric: metric, Value: value, Labels: labels})
}

// RecordDurationContext implements the ContextualMetricsCollector interface.
func (s *MetricsCollectorSpy) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: KindDuration, Metric: metric, Duration: duration, Labels: labels, WithContext: true})
}

// IncrementCounterContext implements the ContextualMetricsCollector interface.
func (s *MetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: KindCounter, Metric: metric, Labels: labels, WithContext: true})
}

// RecordValueContext implements the ContextualMetricsCollector interface.
func (s *MetricsCollectorSpy) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: KindValue, Metric: metric, Value: value, Labels: labels, WithContext: true})
}

func (s *MetricsCollectorSpy) record(record SpyMetricRecord) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Make a copy of labels to avoid external modifications
	labelsCopy := make(map[string]string, len(record.Labels))
	for k, v := range record.Labels {
		labelsCopy[k] = v
	}

	record.Labels = labelsCopy
	s.records = append(s.records, record)
}

// GetRecords returns a copy of all captured records.
func (s *MetricsCollectorSpy) GetRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyMetricRecord, len(s.records))
	copy(records, s.records)

	return records
}

// Reset clears all captured metric records.
func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

// CountRecordsForMetric counts how many records of kind exist for metric.
func (s *MetricsCollectorSpy) CountRecordsForMetric(kind, metric string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.records {
		if record.Kind == kind && record.Metric == metric {
			count++
		}
	}

	return count
}

// MetricRecordMatcher provides a fluent interface for checking metric records.
type MetricRecordMatcher struct {
	candidates []SpyMetricRecord
}

// HasDurationRecordForMetric starts a fluent chain to check a duration record.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcher(KindDuration, metric)
}

// HasCounterRecordForMetric starts a fluent chain to check a counter record.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcher(KindCounter, metric)
}

// HasValueRecordForMetric starts a fluent chain to check a value record.
func (s *MetricsCollectorSpy) HasValueRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcher(KindValue, metric)
}

func (s *MetricsCollectorSpy) matcher(kind, metric string) *MetricRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &MetricRecordMatcher{}
	for _, record := range s.records {
		if record.Kind == kind && record.Metric == metric {
			m.candidates = append(m.candidates, record)
		}
	}

	return m
}

// WithOperation keeps the records that have the specified operation label.
func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.WithLabel("operation", operation)
}

// WithStatus keeps the records that have the specified status label.
func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

// WithLabel keeps the records that have the specified label with the given value.
func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	kept := m.candidates[:0:0]
	for _, record := range m.candidates {
		if labelValue, exists := record.Labels[key]; exists && labelValue == value {
			kept = append(kept, record)
		}
	}

	m.candidates = kept

	return m
}

// WithContext keeps the records made through the context-aware methods.
func (m *MetricRecordMatcher) WithContext() *MetricRecordMatcher {
	kept := m.candidates[:0:0]
	for _, record := range m.candidates {
		if record.WithContext {
			kept = append(kept, record)
		}
	}

	m.candidates = kept

	return m
}

// Assert returns true if at least one record met all conditions in the fluent chain.
func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

// Count returns how many records met all conditions in the fluent chain.
func (m *MetricRecordMatcher) Count() int {
	return len(m.candidates)
}
