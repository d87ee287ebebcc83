package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindd/internal/remind"
)

type stubSource struct {
	status remind.Status
}

func (s stubSource) Status() remind.Status { return s.status }

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewServer(stubSource{}).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestStatusEndpointReportsSnapshot(t *testing.T) {
	next := time.Date(2024, 1, 10, 8, 45, 0, 0, time.UTC)
	src := stubSource{status: remind.Status{
		LastSync:     time.Date(2024, 1, 10, 8, 30, 0, 0, time.UTC),
		NextSync:     time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Pending:      1,
		NextReminder: &next,
		Dispatched:   3,
	}}

	srv := httptest.NewServer(NewServer(src).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var got remind.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 1, got.Pending)
	assert.Equal(t, uint64(3), got.Dispatched)
	require.NotNil(t, got.NextReminder)
	assert.True(t, got.NextReminder.Equal(next))
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := httptest.NewServer(NewServer(stubSource{}).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
