package api

import (
	"github.com/streamwatch/streamwatch/internal/dispatch"
	"github.com/streamwatch/streamwatch/internal/integration"
	"github.com/streamwatch/streamwatch/internal/registrar"
)

// Source exposes the engine state served by the API.
type Source interface {
	Tests() []registrar.TestInfo
	Streams() []dispatch.Status
	Integrations() []integration.Info
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"`
	TestCount     int    `json:"test_count"`
	StreamCount   int    `json:"stream_count"`
	Running       int    `json:"running"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	Notifications int    `json:"notifications"`
}

// TestResponse is one entry of GET /api/v1/tests.
type TestResponse struct {
	registrar.TestInfo
	Failures     int    `json:"failures"`
	Errors       int    `json:"errors"`
	LastNotified string `json:"last_notified,omitempty"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
