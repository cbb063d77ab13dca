// Package api implements the streamwatch status HTTP API.
//
// Routes (all GET, JSON):
//
//	/api/v1/health               overall engine state and stream counts
//	/api/v1/tests                registered tests with their notification totals
//	/api/v1/streams              state of every dispatched stream
//	/api/v1/integrations         declared integrations and their queues
//	/api/v1/notifications        notification history of every test
//	/api/v1/notifications/{test} notification history of one test
//
// The handler also serves /metrics and one /ws/{alias} route per WebSocket
// integration when those are supplied. The /api/v1 routes sit behind the
// configured API key check.
package api
