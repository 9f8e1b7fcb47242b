// Package server_test provides unit tests for the HTTP server package.
package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/familytree/internal/config"
	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/internal/server"
	"github.com/scrypster/familytree/internal/storage/sqlite"
	"github.com/scrypster/familytree/pkg/types"
)

func testConfig(mode, token string) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Security:  config.SecurityConfig{SecurityMode: mode, APIToken: token},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
}

// startTestServer starts a server over an in-memory SQLite store seeded with
// two members and returns its base URL. Cleanup is registered with t.Cleanup.
func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err, "failed to create in-memory SQLite store")

	for _, id := range []string{"ana", "rui"} {
		require.NoError(t, store.UpsertMember(context.Background(), &types.Member{ID: id, FirstName: id, LastName: "Lopes"}))
	}

	eng, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	addr, err := server.Start(ctx, cfg, eng, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		time.Sleep(100 * time.Millisecond)
		_ = store.Close()
	})

	return "http://" + addr
}

func TestServer_StartsOnRandomPort(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	_, port, err := net.SplitHostPort(strings.TrimPrefix(baseURL, "http://"))
	require.NoError(t, err, "address should be valid host:port format")
	assert.NotEqual(t, "0", port, "port should not be 0 in actual address")
}

func TestServer_HealthEndpoint(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	for _, path := range []string{"/health", "/api/health"} {
		resp, err := http.Get(baseURL + path)
		require.NoError(t, err)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, "healthy", body["status"])
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range expectedHeaders {
		assert.Equal(t, want, resp.Header.Get(name), "header %q", name)
	}
}

func TestServer_MetricsExposeRelationCounters(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	body, _ := json.Marshal(map[string]string{"from_member_id": "ana", "to_member_id": "rui", "relation_type": "spouse"})
	resp, err := http.Post(baseURL+"/api/relations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(text), "familytree_relation_mutations_total")
}

func TestServer_GracefulShutdown(t *testing.T) {
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	eng, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := server.Start(ctx, testConfig("development", ""), eng, nil)
	require.NoError(t, err)
	baseURL := "http://" + addr

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err, "server should be responding before shutdown")
	_ = resp.Body.Close()

	cancel()

	assert.Eventually(t, func() bool {
		req, _ := http.NewRequest("GET", baseURL+"/health", nil)
		client := &http.Client{Timeout: 200 * time.Millisecond}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
		return err != nil
	}, 3*time.Second, 50*time.Millisecond, "server should stop responding after shutdown")
}

func TestServer_DevelopmentMode_NoAuth(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/api/relations")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode,
		"in development mode, /api/relations should be accessible without auth")
}

func TestServer_ProductionMode_RequiresAuth(t *testing.T) {
	testToken := "test-secret-token-xyz123"
	baseURL := startTestServer(t, testConfig("production", testToken))

	t.Run("without_auth_header", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/relations")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("with_valid_auth_header", func(t *testing.T) {
		req, err := http.NewRequest("GET", baseURL+"/api/relations", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testToken)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health_is_public", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/health")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
