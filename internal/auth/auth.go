package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Checker validates presented API keys.
type Checker struct {
	header string
	key    string
	active bool
}

// New returns a Checker. It is inactive unless mode is "apikey" and key is
// non-empty.
func New(mode, header, key string) Checker {
	return Checker{
		header: strings.ToLower(header),
		key:    key,
		active: mode == "apikey" && key != "",
	}
}

// Active reports whether requests are checked.
func (c Checker) Active() bool { return c.active }

func (c Checker) valid(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.key)) == 1
}

func (c Checker) fromContext(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(c.header)
	if len(vals) == 0 || !c.valid(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

// UnaryInterceptor rejects unary calls without a valid key with
// codes.Unauthenticated.
func (c Checker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if c.active {
			if err := c.fromContext(ctx); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
func (c Checker) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if c.active {
			if err := c.fromContext(ss.Context()); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}

// Middleware rejects HTTP requests without a valid key with 401.
func (c Checker) Middleware(next http.Handler) http.Handler {
	if !c.active {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.valid(r.Header.Get(c.header)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
