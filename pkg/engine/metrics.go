package engine

import (
	"strconv"
	"time"

	"github.com/stubd/stubd/pkg/metrics"
)

// Subscriber scope labels for the stubd_log_subscribers gauge.
const (
	scopeGlobal   = "global"
	scopeEndpoint = "endpoint"
)

// The record helpers tolerate uninitialized metrics so the engine
// works without metrics.Init(), e.g. in tests.

func recordRequest(method, strategy string, status int, elapsed time.Duration) {
	if metrics.RequestsTotal != nil {
		if vec, err := metrics.RequestsTotal.WithLabels(method, strategy, strconv.Itoa(status)); err == nil {
			_ = vec.Inc()
		}
	}
	if metrics.RequestDuration != nil {
		if vec, err := metrics.RequestDuration.WithLabels(method, strategy); err == nil {
			vec.Observe(elapsed.Seconds())
		}
	}
}

func recordMatchMiss() {
	if metrics.MatchMissesTotal != nil {
		_ = metrics.MatchMissesTotal.Inc()
	}
}

func recordSandboxFailure(timeout bool) {
	if metrics.SandboxFailuresTotal == nil {
		return
	}
	kind := "error"
	if timeout {
		kind = "timeout"
	}
	if vec, err := metrics.SandboxFailuresTotal.WithLabels(kind); err == nil {
		_ = vec.Inc()
	}
}

// recordProxyRequest counts one outbound attempt. Status zero means
// the attempt never produced a response.
func recordProxyRequest(method string, status int) {
	if metrics.ProxyRequestsTotal == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	if vec, err := metrics.ProxyRequestsTotal.WithLabels(method, label); err == nil {
		_ = vec.Inc()
	}
}

func recordSubscribers(scope string, delta float64) {
	if metrics.LogSubscribers == nil {
		return
	}
	if vec, err := metrics.LogSubscribers.WithLabels(scope); err == nil {
		vec.Add(delta)
	}
}

func recordDroppedEvent() {
	if metrics.LogEventsDroppedTotal != nil {
		_ = metrics.LogEventsDroppedTotal.Inc()
	}
}
