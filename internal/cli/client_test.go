package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsAdminTokenAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"cost_spent":1500,"remaining_balance":500,"researched_at":"1500-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	out, err := c.Research(context.Background(), "n1", "arquebus")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/v1/nations/n1/research", gotPath)
	assert.Equal(t, "arquebus", gotBody["tech_id"])
	assert.Equal(t, int64(1500), out.CostSpent)
	assert.Equal(t, int64(500), out.RemainingBalance)
}

func TestClientStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient research points: required 1525, available 500","kind":"insufficient_research_points","required":1525,"available":500}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Research(context.Background(), "n1", "matchlock")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, "insufficient_research_points", apiErr.Kind)
	assert.Equal(t, int64(1525), apiErr.Required)
	assert.Equal(t, int64(500), apiErr.Available)
	assert.True(t, IsAPIError(err))
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Categories(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestTreeRevealQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"category":"naval","name":"Naval","lines":[]}`))
	}))
	defer srv.Close()

	tree, err := NewClient(srv.URL, "tok").Tree(context.Background(), "n1", "naval", true)
	require.NoError(t, err)
	assert.Equal(t, "reveal=1", gotQuery)
	assert.Equal(t, "Naval", tree.Name)
}

func TestProfileRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p, err := LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, Profile{}, p)

	want := Profile{APIBaseURL: "http://game:8080", NationID: "n1"}
	require.NoError(t, SaveProfile(want))
	got, err := LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, ClearProfile())
	got, err = LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, Profile{}, got)
}
