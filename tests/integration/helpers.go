//go:build chrome

// Package integration drives the gateway end to end against a real headless
// Chrome reachable at GATEWAY_TEST_CDP_URL (defaulting to
// http://127.0.0.1:9222), exercising the full cdpconn -> chrome -> breaker ->
// cache -> coordinator -> server stack from spec §8's end-to-end scenarios.
// These tests require a running browser and are excluded from the default
// `go test ./...` run; invoke with `-tags chrome`.
package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"
)

const defaultTestCDPURL = "http://127.0.0.1:9222"

// testCDPURL returns the devtools endpoint the integration suite dials,
// honoring GATEWAY_TEST_CDP_URL so CI can point at its own browser.
func testCDPURL() string {
	if v := os.Getenv("GATEWAY_TEST_CDP_URL"); v != "" {
		return v
	}
	return defaultTestCDPURL
}

const readyHTML = `<!DOCTYPE html>
<html>
<head><title>Ready Page</title></head>
<body>
	<h1 id="content">Loading...</h1>
	<script>
		setTimeout(function() {
			document.getElementById('content').textContent = 'Rendered by JavaScript';
			window.prerenderReady = true;
		}, 500);
	</script>
</body>
</html>`

const staticHTML = `<!DOCTYPE html>
<html>
<head><title>Static Page</title></head>
<body><h1>Static content, no JS readiness signal</h1></body>
</html>`

const neverReadyHTML = `<!DOCTYPE html>
<html>
<head><title>Never Ready</title></head>
<body>
	<h1>Waiting forever</h1>
	<script>window.prerenderReady = false;</script>
</body>
</html>`

const analyticsHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Analytics Test</title>
	<link rel="stylesheet" href="/blocked.css">
</head>
<body><h1>Page with a blockable subresource</h1></body>
</html>`

// FixtureServer serves the HTML pages the integration scenarios render.
type FixtureServer struct {
	Server *httptest.Server
}

// NewFixtureServer starts a FixtureServer on a random local port.
func NewFixtureServer() *FixtureServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, readyHTML)
	})

	mux.HandleFunc("/static", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, staticHTML)
	})

	mux.HandleFunc("/never-ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, neverReadyHTML)
	})

	mux.HandleFunc("/analytics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, analyticsHTML)
	})

	mux.HandleFunc("/blocked.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, "h1 { color: red; }")
	})

	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/static", http.StatusFound)
	})

	mux.HandleFunc("/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<html><head><title>Not Found</title></head><body>404</body></html>`)
	})

	return &FixtureServer{Server: httptest.NewServer(mux)}
}

// Close shuts down the fixture server.
func (f *FixtureServer) Close() { f.Server.Close() }

// URL returns the fixture server's base URL.
func (f *FixtureServer) URL() string { return f.Server.URL }

// waitUntil polls cond every interval until it reports true or the timeout
// elapses, returning whether cond was ever observed true.
func waitUntil(timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(interval)
	}
	return cond()
}
