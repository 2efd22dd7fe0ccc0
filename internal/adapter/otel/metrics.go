package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentdock"

// Metrics holds all agentdock metric instruments. The registry's buffered
// write path and the endpoint manager report through these so that dropped
// fire-and-forget work stays observable.
type Metrics struct {
	RegistryWritesFlushed   metric.Int64Counter
	RegistryWritesDropped   metric.Int64Counter
	RegistryWritesCoalesced metric.Int64Counter
	BreakerOpened           metric.Int64Counter
	EndpointsStarted        metric.Int64Counter
	EndpointStartFailed     metric.Int64Counter
	PortReused              metric.Int64Counter
	PortReassigned          metric.Int64Counter
	SyncDownloaded          metric.Int64Counter
	SyncUploaded            metric.Int64Counter
	Heartbeats              metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RegistryWritesFlushed, err = meter.Int64Counter("agentdock.registry.writes.flushed",
		metric.WithDescription("Registry writes flushed to the backing store"))
	if err != nil {
		return nil, err
	}

	m.RegistryWritesDropped, err = meter.Int64Counter("agentdock.registry.writes.dropped",
		metric.WithDescription("Registry writes dropped while the store was unavailable"))
	if err != nil {
		return nil, err
	}

	m.RegistryWritesCoalesced, err = meter.Int64Counter("agentdock.registry.writes.coalesced",
		metric.WithDescription("Registry writes collapsed into a newer write for the same key"))
	if err != nil {
		return nil, err
	}

	m.BreakerOpened, err = meter.Int64Counter("agentdock.registry.breaker.opened",
		metric.WithDescription("Circuit breaker open transitions"))
	if err != nil {
		return nil, err
	}

	m.EndpointsStarted, err = meter.Int64Counter("agentdock.endpoints.started",
		metric.WithDescription("Agent endpoint servers started"))
	if err != nil {
		return nil, err
	}

	m.EndpointStartFailed, err = meter.Int64Counter("agentdock.endpoints.start_failed",
		metric.WithDescription("Agent endpoint server start failures"))
	if err != nil {
		return nil, err
	}

	m.PortReused, err = meter.Int64Counter("agentdock.endpoints.port_reused",
		metric.WithDescription("Publishes that rebound the preferred port"))
	if err != nil {
		return nil, err
	}

	m.PortReassigned, err = meter.Int64Counter("agentdock.endpoints.port_reassigned",
		metric.WithDescription("Publishes that fell back to an OS-assigned port"))
	if err != nil {
		return nil, err
	}

	m.SyncDownloaded, err = meter.Int64Counter("agentdock.sync.downloaded",
		metric.WithDescription("Agent records downloaded from the registry during reconciliation"))
	if err != nil {
		return nil, err
	}

	m.SyncUploaded, err = meter.Int64Counter("agentdock.sync.uploaded",
		metric.WithDescription("Agent records uploaded to the registry during reconciliation"))
	if err != nil {
		return nil, err
	}

	m.Heartbeats, err = meter.Int64Counter("agentdock.endpoints.heartbeats",
		metric.WithDescription("Heartbeat refreshes written to the registry"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
