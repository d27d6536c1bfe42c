package tracing

/*
	Poor Mans OpenTracing.

	Standardizes logging of operation duration.
*/

import (
	"time"

	"github.com/go-logr/logr"
)

type Tracer interface {
	StartSpan(operationName string) Span
}

type Span interface {
	SetBaggageItem(key string, value any)
	Finish()
}

// NopTracer discards all spans.
type NopTracer struct{}

func (t NopTracer) StartSpan(operationName string) Span {
	return nopSpan{}
}

type nopSpan struct{}

func (s nopSpan) SetBaggageItem(key string, value any) {}

func (s nopSpan) Finish() {}

// LoggingTracer logs operation durations through a logr.Logger.
type LoggingTracer struct {
	logger logr.Logger
}

func NewLoggingTracer(logger logr.Logger) *LoggingTracer {
	return &LoggingTracer{logger: logger}
}

func (t LoggingTracer) StartSpan(operationName string) Span {
	return &loggingSpan{
		logger:        t.logger,
		operationName: operationName,
		baggage:       make(map[string]any),
		start:         time.Now(),
	}
}

type loggingSpan struct {
	logger        logr.Logger
	operationName string
	baggage       map[string]any
	start         time.Time
}

func (s *loggingSpan) Finish() {
	s.logger.WithValues(baggageToVals(s.baggage)...).
		WithValues("operation_name", s.operationName, "time_ms", time.Since(s.start).Seconds()*1e3).
		Info("Trace")
}

func (s *loggingSpan) SetBaggageItem(key string, value any) {
	s.baggage[key] = value
}

func baggageToVals(baggage map[string]any) []any {
	result := make([]any, 0, len(baggage)*2)
	for k, v := range baggage {
		result = append(result, k, v)
	}
	return result
}
