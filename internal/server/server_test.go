package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"        //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	"nhooyr.io/websocket/wsjson" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/simple-memory/internal/api/mcp"
	"github.com/scrypster/simple-memory/internal/config"
	"github.com/scrypster/simple-memory/internal/engine"
	"github.com/scrypster/simple-memory/internal/notify"
	"github.com/scrypster/simple-memory/internal/server"
	"github.com/scrypster/simple-memory/internal/storage/memory"
	"github.com/scrypster/simple-memory/web/handlers"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Storage:   config.StorageConfig{StorageEngine: config.EngineMemory},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		Notify:    config.NotifyConfig{BreakerMaxFailures: 3},
	}
}

// startTestServer starts a server on a random port backed by a fresh
// in-memory repository wired to a change-event bus.
func startTestServer(t *testing.T, cfg *config.Config) (*server.Running, context.CancelFunc) {
	t.Helper()

	bus := notify.NewBus()
	repo := notify.NewRepository(memory.NewRepository(), bus)
	deps := server.Deps{
		Repo: repo,
		MCP:  mcp.NewServer(repo, engine.NewQueryEngine(repo)),
		Bus:  bus,
	}

	ctx, cancel := context.WithCancel(context.Background())
	running, err := server.Start(ctx, cfg, deps)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		select {
		case <-running.Done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
		_ = repo.Close()
	})
	return running, cancel
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_StartsOnRandomPort(t *testing.T) {
	running, _ := startTestServer(t, testConfig())

	host, port, err := net.SplitHostPort(running.Addr)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.NotEqual(t, "0", port)
}

func TestServer_HealthAndSecurityHeaders(t *testing.T) {
	running, _ := startTestServer(t, testConfig())

	resp, err := http.Get("http://" + running.Addr + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	var health handlers.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, config.EngineMemory, health.Engine)
	assert.Zero(t, health.Sessions)
}

func TestServer_MCPOverHTTP(t *testing.T) {
	running, _ := startTestServer(t, testConfig())
	url := "http://" + running.Addr + "/mcp"

	resp := postJSON(t, url, `{"jsonrpc":"2.0","id":1,"method":"create_session","params":{"name":"http"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created mcp.JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Nil(t, created.Error)

	resp = postJSON(t, url, `{"jsonrpc":"2.0","method":"initialized"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	health, err := http.Get("http://" + running.Addr + "/api/health")
	require.NoError(t, err)
	defer health.Body.Close()
	var h handlers.HealthResponse
	require.NoError(t, json.NewDecoder(health.Body).Decode(&h))
	assert.Equal(t, 1, h.Sessions)
}

func TestServer_ChangeFeed(t *testing.T) {
	running, _ := startTestServer(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+running.Addr+"/ws", nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.Eventually(t, func() bool { return running.Hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	postJSON(t, "http://"+running.Addr+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"create_session","arguments":{"name":"feed"}}}`)

	var msg handlers.Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg)) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NotNil(t, msg.Event)
	assert.Equal(t, notify.SessionCreated, msg.Event.Type)
}

func TestServer_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	running, _ := startTestServer(t, cfg)

	first, err := http.Get("http://" + running.Addr + "/api/health")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get("http://" + running.Addr + "/api/health")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	running, cancel := startTestServer(t, testConfig())
	cancel()

	select {
	case <-running.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err := http.Get("http://" + running.Addr + "/api/health")
	assert.Error(t, err)
}

func TestStart_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig()
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port

	repo := memory.NewRepository()
	_, err = server.Start(context.Background(), cfg, server.Deps{Repo: repo, MCP: mcp.NewServer(repo, engine.NewQueryEngine(repo))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}
