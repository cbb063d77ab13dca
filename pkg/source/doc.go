// Package source provides ready-made streams over external systems.
//
// Prometheus(cfg) polls a Prometheus text exposition endpoint every
// cfg.Interval and emits one *Scrape per cycle. A failed scrape is emitted with
// Err set so assertions can check reachability; it does not end the stream.
//
// Authentication (mTLS, API key, bearer token, basic) is applied by the shared
// authRoundTripper.
package source
