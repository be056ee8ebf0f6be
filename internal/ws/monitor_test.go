package ws

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monrelay/internal/auth"
	"monrelay/internal/config"
	"monrelay/internal/relay"
)

func startServer(t *testing.T, cfg *config.Config) (*relay.Relay, string) {
	t.Helper()

	rl := relay.New(relay.Config{})
	t.Cleanup(rl.Close)

	r := chi.NewRouter()
	r.Get("/ws/monitor", Viewer(rl, cfg))
	r.Get("/ws/agent", Agent(rl))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return rl, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

// Scenario A end to end: agent snapshot, then a pre-subscribed viewer.
func TestAgentSnapshotReachesSubscribedViewer(t *testing.T) {
	rl, base := startServer(t, &config.Config{})

	agent := dial(t, base+"/ws/agent")
	created := readFrame(t, agent)
	assert.Equal(t, "session_created", created["type"])

	require.NoError(t, agent.WriteJSON(map[string]any{
		"type":    "system_stats",
		"payload": map[string]any{"hostId": "web1@10.0.0.5", "cpu": 10},
	}))

	// wait for the relay to bind the host before the viewer shows up
	require.Eventually(t, func() bool {
		_, ok := rl.GetSessionByHostname("web1@10.0.0.5")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	viewer := dial(t, base+"/ws/monitor?subscribe="+url.QueryEscape("web1@10.0.0.5"))

	assert.Equal(t, "session_created", readFrame(t, viewer)["type"])
	assert.Equal(t, "subscribe_ack", readFrame(t, viewer)["type"])

	status := readFrame(t, viewer)
	assert.Equal(t, "monitoring_status", status["type"])
	data := status["data"].(map[string]any)
	assert.Equal(t, "installed", data["status"])
	assert.Equal(t, true, data["available"])

	stats := readFrame(t, viewer)
	assert.Equal(t, "system_stats", stats["type"])
	data = stats["data"].(map[string]any)
	assert.Equal(t, "web1@10.0.0.5", data["hostId"])
	assert.Equal(t, float64(10), data["cpu"])
	assert.Equal(t, true, data["cached"])

	// Scenario C: the agent drops, the viewer is told
	agent.Close()
	status = readFrame(t, viewer)
	assert.Equal(t, "monitoring_status", status["type"])
	data = status["data"].(map[string]any)
	assert.Equal(t, "not_installed", data["status"])
	assert.Equal(t, false, data["available"])
}

func TestViewerPingPong(t *testing.T) {
	_, base := startServer(t, &config.Config{})

	viewer := dial(t, base+"/ws/monitor")
	assert.Equal(t, "session_created", readFrame(t, viewer)["type"])

	require.NoError(t, viewer.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, viewer)["type"])
}

func TestViewerPathRequiresTokenWhenConfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	_, base := startServer(t, cfg)

	// no token: upgrade is refused
	_, _, err := websocket.DefaultDialer.Dial(base+"/ws/monitor", nil)
	assert.Error(t, err)

	// garbage token: refused
	_, _, err = websocket.DefaultDialer.Dial(base+"/ws/monitor?token=nonsense", nil)
	assert.Error(t, err)

	// valid token: accepted
	token, err := auth.GenerateJWT(auth.JWTClaims{
		Subject:   "op-1",
		Username:  "operator",
		ExpiresAt: time.Now().Add(time.Hour),
	}, "test-secret")
	require.NoError(t, err)

	viewer := dial(t, base+"/ws/monitor?token="+token)
	assert.Equal(t, "session_created", readFrame(t, viewer)["type"])
}

func TestAgentPathSkipsTokenCheck(t *testing.T) {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	_, base := startServer(t, cfg)

	agent := dial(t, base+"/ws/agent")
	assert.Equal(t, "session_created", readFrame(t, agent)["type"])
}
