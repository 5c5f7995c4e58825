package collector

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opstrack/recorder/internal/collector"

func meter() metric.Meter {
	return otel.GetMeterProvider().Meter(instrumentationName)
}
