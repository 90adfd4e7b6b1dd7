package config

// OTLPConfig holds OTLP trace export configuration.
//
// Traces are exported over OTLP/HTTP to any compatible collector
// (otel-collector, Jaeger, a vendor agent). An empty Endpoint disables
// the exporter. See internal/observability for the setup.
type OTLPConfig struct {
	// Endpoint is the OTLP/HTTP collector address (e.g., localhost:4318; empty disables)
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the service name reported on spans (default: recall)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}
