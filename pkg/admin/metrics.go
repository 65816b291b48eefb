package admin

import (
	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/metrics"
)

// refreshEndpointGauges recomputes the per-protocol endpoint gauges
// from the current registry snapshot. Tolerates uninitialized metrics,
// matching the engine's recorders.
func (s *Server) refreshEndpointGauges() {
	if metrics.EndpointsConfigured == nil && metrics.EndpointsActive == nil {
		return
	}

	total := make(map[string]float64)
	active := make(map[string]float64)
	for _, ep := range s.registry.Snapshot().All() {
		total[ep.Protocol]++
		if ep.IsActive() {
			active[ep.Protocol]++
		}
	}

	for _, proto := range []string{endpoint.ProtocolHTTP, endpoint.ProtocolSOAP} {
		if metrics.EndpointsConfigured != nil {
			if vec, err := metrics.EndpointsConfigured.WithLabels(proto); err == nil {
				vec.Set(total[proto])
			}
		}
		if metrics.EndpointsActive != nil {
			if vec, err := metrics.EndpointsActive.WithLabels(proto); err == nil {
				vec.Set(active[proto])
			}
		}
	}
}
