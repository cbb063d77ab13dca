// Package auth enforces API key authentication on the status surfaces.
//
// UnaryInterceptor and StreamInterceptor guard the gRPC health service;
// Middleware guards the HTTP API. All three read the key from the same
// header (gRPC metadata key) and pass every request through when mode is
// not "apikey" or no key is configured.
package auth
