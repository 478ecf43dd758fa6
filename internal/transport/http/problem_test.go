package transporthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/webshopsessions/internal/logging"
)

func TestWriteProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events/preview?limit=0", nil)
	WriteProblem(rec, req, http.StatusBadRequest, "invalid parameters", "limit must be a positive integer",
		map[string][]string{"limit": {"must be >= 1"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, Problem{
		Type:     "https://webshop.example/problems/invalid-parameters",
		Title:    "invalid parameters",
		Status:   http.StatusBadRequest,
		Detail:   "limit must be a positive integer",
		Instance: "/events/preview",
		Errors:   map[string][]string{"limit": {"must be >= 1"}},
	}, p)
}

func TestWriteProblem_EchoesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics/orders", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-42"))
	WriteProblem(rec, req, http.StatusServiceUnavailable, "store unavailable", "order metrics failed", nil)

	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "req-42", p.Meta["request_id"])
	assert.Equal(t, "https://webshop.example/problems/store-unavailable", p.Type)
}
