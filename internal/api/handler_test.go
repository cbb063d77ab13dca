package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResp_EncodeFailureIs500(t *testing.T) {
	rr := httptest.NewRecorder()
	jsonResp(rr, http.StatusOK, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestJSONResp_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	jsonResp(rr, http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"n":1}`, rr.Body.String())
}
