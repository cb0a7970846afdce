package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for dex proxy telemetry, following OpenTelemetry naming: namespace.attribute_name.
const (
	AttrEnvironment = attribute.Key("environment")
	AttrVenue       = attribute.Key("venue")
	AttrOperation   = attribute.Key("operation")
	AttrBase        = attribute.Key("upstream.base")
	AttrResult      = attribute.Key("result")
	AttrStatusCode  = attribute.Key("http.status_code")
)

// Instrument names shared with the histogram views.
const (
	MetricUpstreamRequests = "dexproxy_upstream_requests"
	MetricUpstreamDuration = "dexproxy_upstream_request_duration"
	MetricUpstreamErrors   = "dexproxy_upstream_errors"
)

// Result values
const (
	ResultSuccess      = "success"
	ResultHTTPError    = "http_error"
	ResultNetworkError = "network_error"
	ResultNotReady     = "not_configured"
	ResultDecodeError  = "decode_error"
)

// UpstreamAttributes returns the common attributes for an upstream call.
func UpstreamAttributes(environment, venue, operation, base, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrOperation.String(operation),
		AttrBase.String(base),
		AttrResult.String(result),
	}
}

// ErrorAttributes returns attributes for upstream error metrics.
func ErrorAttributes(environment, venue, operation string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrOperation.String(operation),
		AttrStatusCode.Int(status),
	}
}
