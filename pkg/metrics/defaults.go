package metrics

import (
	"sync"
	"time"
)

// Default metrics for the dispatch engine, initialized by Init().
//
// Label conventions: method is the uppercase HTTP verb; strategy is
// static, proxy, conditional, or none for unmatched requests; status
// is the numeric response code; protocol is http or soap.
var (
	// RequestsTotal counts dispatched mock requests.
	// Labels: method, strategy, status.
	RequestsTotal *Counter

	// RequestDuration tracks mock request duration in seconds.
	// Labels: method, strategy.
	RequestDuration *Histogram

	// EndpointsConfigured is the number of registered endpoints.
	// Labels: protocol.
	EndpointsConfigured *Gauge

	// EndpointsActive is the number of endpoints participating in
	// matching. Labels: protocol.
	EndpointsActive *Gauge

	// MatchMissesTotal counts requests no endpoint matched.
	MatchMissesTotal *Counter

	// SandboxFailuresTotal counts conditional evaluations that fell
	// back to the default response. Labels: kind (error, timeout).
	SandboxFailuresTotal *Counter

	// ProxyRequestsTotal counts outbound forwarding attempts.
	// Labels: method, status (numeric code, or error).
	ProxyRequestsTotal *Counter

	// LogSubscribers is the number of live log feed subscribers.
	// Labels: scope (global, endpoint).
	LogSubscribers *Gauge

	// LogEventsDroppedTotal counts log events dropped because a
	// subscriber buffer was full.
	LogEventsDroppedTotal *Counter

	// UptimeSeconds is the server uptime in seconds.
	UptimeSeconds *Gauge

	runtimeCollector     *RuntimeCollector
	runtimeCollectorStop func()
	defaultRegistry      *Registry
	initOnce             sync.Once
)

// Init initializes the default metrics and returns the registry.
// Idempotent and safe to call multiple times.
func Init() *Registry {
	initOnce.Do(func() {
		defaultRegistry = NewRegistry()

		RequestsTotal = defaultRegistry.NewCounter(
			"stubd_requests_total",
			"Total number of dispatched mock requests",
			"method", "strategy", "status",
		)
		RequestDuration = defaultRegistry.NewHistogram(
			"stubd_request_duration_seconds",
			"Duration of mock requests in seconds",
			DefaultBuckets,
			"method", "strategy",
		)
		EndpointsConfigured = defaultRegistry.NewGauge(
			"stubd_endpoints_total",
			"Number of registered endpoints",
			"protocol",
		)
		EndpointsActive = defaultRegistry.NewGauge(
			"stubd_endpoints_active",
			"Number of endpoints participating in matching",
			"protocol",
		)
		MatchMissesTotal = defaultRegistry.NewCounter(
			"stubd_match_misses_total",
			"Number of requests that matched no endpoint",
		)
		SandboxFailuresTotal = defaultRegistry.NewCounter(
			"stubd_sandbox_failures_total",
			"Number of conditional evaluations that fell back to the default response",
			"kind",
		)
		ProxyRequestsTotal = defaultRegistry.NewCounter(
			"stubd_proxy_requests_total",
			"Total number of outbound forwarding attempts",
			"method", "status",
		)
		LogSubscribers = defaultRegistry.NewGauge(
			"stubd_log_subscribers",
			"Number of live log feed subscribers",
			"scope",
		)
		LogEventsDroppedTotal = defaultRegistry.NewCounter(
			"stubd_log_events_dropped_total",
			"Number of log events dropped due to full subscriber buffers",
		)
		UptimeSeconds = defaultRegistry.NewGauge(
			"stubd_uptime_seconds",
			"Server uptime in seconds",
		)

		runtimeCollector = NewRuntimeCollector(defaultRegistry, UptimeSeconds)
		runtimeCollectorStop = runtimeCollector.Start(10 * time.Second)
	})

	return defaultRegistry
}

// DefaultRegistry returns the default registry, or nil before Init().
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Reset clears the default metrics so Init() can run again. For tests.
func Reset() {
	if runtimeCollectorStop != nil {
		runtimeCollectorStop()
		runtimeCollectorStop = nil
	}

	initOnce = sync.Once{}
	defaultRegistry = nil
	RequestsTotal = nil
	RequestDuration = nil
	EndpointsConfigured = nil
	EndpointsActive = nil
	MatchMissesTotal = nil
	SandboxFailuresTotal = nil
	ProxyRequestsTotal = nil
	LogSubscribers = nil
	LogEventsDroppedTotal = nil
	UptimeSeconds = nil
	runtimeCollector = nil
}
