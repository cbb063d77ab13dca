package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req any) (any, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, c Checker, header, key string) (any, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(header, key))
	}
	return c.UnaryInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestUnary_ModeNone_PassesThrough(t *testing.T) {
	c := New("none", "x-api-key", "secret")
	res, err := c.UnaryInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, passHandler)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestUnary_EmptyKey_PassesThrough(t *testing.T) {
	c := New("apikey", "x-api-key", "")
	require.False(t, c.Active(), "a checker without a key must be inactive")
	_, err := c.UnaryInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, passHandler)
	assert.NoError(t, err)
}

func TestUnary_Keys(t *testing.T) {
	c := New("apikey", "X-API-Key", "supersecret")

	_, err := callWithKey(t, c, "x-api-key", "supersecret")
	require.NoError(t, err)
	for _, key := range []string{"wrong", ""} {
		_, err := callWithKey(t, c, "x-api-key", key)
		assert.Equal(t, codes.Unauthenticated, status.Code(err), "key %q", key)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestStream_Keys(t *testing.T) {
	c := New("apikey", "x-api-key", "supersecret")
	called := false
	handler := func(any, grpc.ServerStream) error { called = true; return nil }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "nope"))
	err := c.StreamInterceptor()(nil, fakeStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	require.False(t, called, "handler ran for a rejected stream")

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "supersecret"))
	require.NoError(t, c.StreamInterceptor()(nil, fakeStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler))
	assert.True(t, called)
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name string
		c    Checker
		key  string
		want int
	}{
		{"inactive", New("none", "x-api-key", "k"), "", http.StatusNoContent},
		{"valid", New("apikey", "x-api-key", "k"), "k", http.StatusNoContent},
		{"invalid", New("apikey", "x-api-key", "k"), "bad", http.StatusUnauthorized},
		{"missing", New("apikey", "x-api-key", "k"), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
			if tt.key != "" {
				req.Header.Set("X-Api-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			tt.c.Middleware(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
