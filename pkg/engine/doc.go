// Package engine is the mock dispatch core: it resolves inbound
// requests against the endpoint registry, executes the matched
// endpoint's response strategy (static, proxy, or conditional), and
// records every transaction in the request log.
//
// The package exposes three pieces: Handler, the http.Handler serving
// the mock traffic port; InMemoryLog, the bounded request log with
// live subscriptions; and Server, which ties both to an http.Server
// with graceful start and stop.
package engine
