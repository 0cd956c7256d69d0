package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"clearquote/internal/backend"
	"clearquote/internal/models"
	"clearquote/internal/monitor"
	"clearquote/internal/storage"
)

type testEnv struct {
	server  *Server
	web     *httptest.Server
	monitor *monitor.Monitor
	store   *storage.HealthStore
}

// newTestEnv wires a server against a fake backend. The monitor is left
// unstarted so tests control exactly when fetches happen.
func newTestEnv(t *testing.T, backendHandler http.Handler) *testEnv {
	t.Helper()

	fake := httptest.NewServer(backendHandler)
	t.Cleanup(fake.Close)

	client := backend.New(fake.URL, 2*time.Second, nil)
	mon := monitor.New(client, monitor.Config{
		PollInterval:   time.Hour, // ticks never fire during a test
		MaxRetries:     1,
		BaseRetryDelay: 10 * time.Millisecond,
		FetchTimeout:   time.Second,
	}, nil)
	t.Cleanup(mon.Stop)

	store, err := storage.NewHealthStore(filepath.Join(t.TempDir(), "health.db"))
	if err != nil {
		t.Fatalf("NewHealthStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv := New(":0", client, mon, store, 50, nil)
	mon.SetOnUpdate(srv.BroadcastHealth)

	web := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(web.Close)

	return &testEnv{server: srv, web: web, monitor: mon, store: store}
}

func validBackend(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(models.ConfigStatus{
			GeminiAPIKeySet: true,
			DBURLSet:        true,
			GeminiModel:     "gemini-2.0-flash",
			Validation:      models.Validation{IsValid: true},
		})
	})
	return mux
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthEndpointBeforeFirstFetch(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	var payload healthPayload
	resp := getJSON(t, env.web.URL+"/api/health", &payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !payload.Snapshot.IsLoading {
		t.Error("IsLoading should be true before any fetch")
	}
	if payload.Health.State != monitor.StateUnknown {
		t.Errorf("health state = %q, want unknown", payload.Health.State)
	}
}

func TestRefreshEndpointTriggersFetch(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	resp := postJSON(t, env.web.URL+"/api/health/refresh", struct{}{}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	waitFor(t, time.Second, "fetch applied", func() bool {
		return env.monitor.Snapshot().LastStatus != nil
	})

	var payload healthPayload
	getJSON(t, env.web.URL+"/api/health", &payload)
	if payload.Health.State != monitor.StateHealthy {
		t.Errorf("health state = %q, want healthy", payload.Health.State)
	}
}

func TestVisibilityEndpointTogglesPolling(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	postJSON(t, env.web.URL+"/api/health/visibility", map[string]bool{"visible": true}, nil)
	waitFor(t, time.Second, "polling active", func() bool {
		return env.monitor.Snapshot().PollingActive
	})

	postJSON(t, env.web.URL+"/api/health/visibility", map[string]bool{"visible": false}, nil)
	if env.monitor.Snapshot().PollingActive {
		t.Error("polling should pause when hidden")
	}
}

func TestConfigStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	resp := getJSON(t, env.web.URL+"/api/config/status", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before any fetch = %d, want 503", resp.StatusCode)
	}

	env.monitor.RefreshNow()
	waitFor(t, time.Second, "fetch applied", func() bool {
		return env.monitor.Snapshot().LastStatus != nil
	})

	var status models.ConfigStatus
	resp = getJSON(t, env.web.URL+"/api/config/status", &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !status.Validation.IsValid {
		t.Errorf("config status = %+v", status)
	}
}

func TestQueryProxyAttachesParsedTable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		var req models.QueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(models.QueryResponse{
			Answer: "Here you go:\n\n| month | revenue |\n| --- | --- |\n| Jan | 1200 |",
			Stage:  "answered",
		})
	})
	env := newTestEnv(t, mux)

	var reply struct {
		Answer string `json:"answer"`
		Table  *struct {
			Headers []string   `json:"headers"`
			Rows    [][]string `json:"rows"`
		} `json:"table"`
	}
	resp := postJSON(t, env.web.URL+"/api/query", models.QueryRequest{Question: "revenue by month"}, &reply)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if reply.Table == nil {
		t.Fatal("expected a parsed table in the reply")
	}
	if len(reply.Table.Headers) != 2 || reply.Table.Headers[0] != "month" {
		t.Errorf("table headers = %v", reply.Table.Headers)
	}
	if len(reply.Table.Rows) != 1 || reply.Table.Rows[0][1] != "1200" {
		t.Errorf("table rows = %v", reply.Table.Rows)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	resp := postJSON(t, env.web.URL+"/api/query", models.QueryRequest{Question: "   "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProxyMapsBackendFailuresToBadGateway(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "exploded", http.StatusInternalServerError)
	})
	env := newTestEnv(t, mux)

	var body map[string]string
	resp := postJSON(t, env.web.URL+"/api/query", models.QueryRequest{Question: "q"}, &body)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Error("expected an error message in the body")
	}
}

func TestDataFetchRequiresTables(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	resp := postJSON(t, env.web.URL+"/api/data/fetch", models.TableFetchRequest{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := env.store.Append(models.HealthSample{
			CheckedAt: base.Add(time.Duration(i) * time.Minute),
			State:     monitor.StateHealthy,
			OK:        true,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	var samples []models.HealthSample
	resp := getJSON(t, env.web.URL+"/api/health/history?limit=2", &samples)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(samples) != 2 {
		t.Errorf("samples = %d, want 2", len(samples))
	}

	var uptime struct {
		TotalChecks   int     `json:"total_checks"`
		UptimePercent float64 `json:"uptime_percent"`
	}
	getJSON(t, env.web.URL+"/api/health/uptime", &uptime)
	if uptime.TotalChecks != 3 || uptime.UptimePercent != 100 {
		t.Errorf("uptime = %+v", uptime)
	}
}

func TestHealthWebSocketPushesTransitions(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	wsURL := strings.Replace(env.web.URL, "http", "ws", 1) + "/ws/health"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial healthPayload
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial payload: %v", err)
	}
	if initial.Health.State != monitor.StateUnknown {
		t.Errorf("initial state = %q, want unknown", initial.Health.State)
	}

	env.monitor.RefreshNow()

	// RefreshNow produces at least two transitions: refresh-begin and the
	// applied result. Read until the healthy one arrives.
	for {
		var payload healthPayload
		if err := conn.ReadJSON(&payload); err != nil {
			t.Fatalf("read transition: %v", err)
		}
		if payload.Health.State == monitor.StateHealthy {
			break
		}
	}
}

func TestIndexServed(t *testing.T) {
	env := newTestEnv(t, validBackend(t))

	resp, err := http.Get(env.web.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}
