package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/soundboard/internal/artifacts"
	"github.com/ent0n29/soundboard/internal/backend"
	"github.com/ent0n29/soundboard/internal/config"
	"github.com/ent0n29/soundboard/internal/limits"
	"github.com/ent0n29/soundboard/internal/observability"
	"github.com/ent0n29/soundboard/internal/protocol"
	"github.com/ent0n29/soundboard/internal/service"
	"github.com/ent0n29/soundboard/internal/speech"
)

func newTestServer(t *testing.T, mutate func(*limits.Limits)) *httptest.Server {
	t.Helper()
	dir, err := artifacts.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	lim := limits.Default()
	lim.SynthesisTimeout = 0
	if mutate != nil {
		mutate(&lim)
	}
	svc, err := service.New(service.Options{
		Backend:    backend.NewMock(),
		Limits:     lim,
		Output:     dir,
		Delivery:   speech.DeliveryBase64,
		Concat:     true,
		SfxEnabled: true,
		Metrics:    observability.NewMetrics("httpapi_test"),
	})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}
	ts := httptest.NewServer(New(config.ServerConfig{}, svc, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any, header map[string]string) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	postJSON(t, ts.URL+"/v1/speak", map[string]any{"text": "Metrics please."}, nil)

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	if !strings.Contains(buf.String(), "httpapi_test_requests_total") {
		t.Fatalf("metrics output missing requests_total")
	}
}

func TestVoicesCatalog(t *testing.T) {
	ts := newTestServer(t, nil)
	res, err := http.Get(ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET /v1/voices error = %v", err)
	}
	defer res.Body.Close()
	catalog := decodeBody[service.Catalog](t, res)
	if catalog.DefaultVoice == "" || len(catalog.Voices) == 0 || len(catalog.SfxTags) == 0 {
		t.Fatalf("unexpected catalog: %+v", catalog)
	}
}

func TestSpeakAndHistory(t *testing.T) {
	ts := newTestServer(t, nil)

	res := postJSON(t, ts.URL+"/v1/speak", map[string]any{"text": "Hello from the board."}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("speak status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	result := decodeBody[speech.SpeechResult](t, res)
	if result.JobID == "" || result.ChunkCount == 0 || result.ConcatBase64 == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	hres, err := http.Get(ts.URL + "/v1/history?limit=5")
	if err != nil {
		t.Fatalf("GET /v1/history error = %v", err)
	}
	defer hres.Body.Close()
	body := decodeBody[struct {
		Records []struct {
			JobID string `json:"job_id"`
		} `json:"records"`
	}](t, hres)
	if len(body.Records) != 1 || body.Records[0].JobID != result.JobID {
		t.Fatalf("history = %+v, want one record for %s", body.Records, result.JobID)
	}

	jres, err := http.Get(ts.URL + "/v1/jobs/" + result.JobID)
	if err != nil {
		t.Fatalf("GET job error = %v", err)
	}
	jres.Body.Close()
	if jres.StatusCode != http.StatusOK {
		t.Fatalf("job status = %d, want %d", jres.StatusCode, http.StatusOK)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	res, err := http.Get(ts.URL + "/v1/history?limit=zero")
	if err != nil {
		t.Fatalf("GET /v1/history error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestSpeakErrorsMapToStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
		want int
		code speech.ErrorCode
	}{
		{name: "empty text", body: map[string]any{"text": "  "}, want: http.StatusBadRequest, code: speech.CodeInvalidInput},
		{name: "bad voice", body: map[string]any{"text": "hi", "voice": "nobody"}, want: http.StatusBadRequest, code: speech.CodeInvalidVoice},
		{name: "bad mode", body: map[string]any{"text": "hi", "mode": "karaoke"}, want: http.StatusBadRequest, code: speech.CodeInvalidInput},
	}
	for _, tc := range tests {
		res := postJSON(t, ts.URL+"/v1/speak", tc.body, nil)
		if res.StatusCode != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, res.StatusCode, tc.want)
		}
		body := decodeBody[errorResponse](t, res)
		if body.Code != string(tc.code) {
			t.Fatalf("%s: code = %q, want %q", tc.name, body.Code, tc.code)
		}
	}
}

func TestDialogueEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	res := postJSON(t, ts.URL+"/v1/dialogue", map[string]any{"script": "Alice: Hi there.\nBob: Hello."}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dialogue status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	body := decodeBody[service.DialogueResult](t, res)
	if len(body.Speakers) != 2 || body.Cast["Alice"] == "" {
		t.Fatalf("unexpected dialogue result: %+v", body)
	}

	res = postJSON(t, ts.URL+"/v1/dialogue", map[string]any{"script": "   "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty dialogue status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	ts := newTestServer(t, func(l *limits.Limits) {
		l.RateLimitCalls = 1
		l.RateLimitWindow = time.Minute
	})

	first := postJSON(t, ts.URL+"/v1/speak", map[string]any{"text": "one"}, map[string]string{"X-Client-ID": "a"})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d, want %d", first.StatusCode, http.StatusOK)
	}
	second := postJSON(t, ts.URL+"/v1/speak", map[string]any{"text": "two"}, map[string]string{"X-Client-ID": "a"})
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", second.StatusCode, http.StatusTooManyRequests)
	}
	body := decodeBody[errorResponse](t, second)
	if !body.Retryable {
		t.Fatalf("rate limited response retryable = false, want true")
	}
	other := postJSON(t, ts.URL+"/v1/speak", map[string]any{"text": "three"}, map[string]string{"X-Client-ID": "b"})
	if other.StatusCode != http.StatusOK {
		t.Fatalf("other client status = %d, want %d", other.StatusCode, http.StatusOK)
	}
}

func TestInterruptUnknownJob(t *testing.T) {
	ts := newTestServer(t, nil)
	res := postJSON(t, ts.URL+"/v1/jobs/missing/interrupt", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	postJSON(t, ts.URL+"/v1/speak", map[string]any{"text": "Stats."}, nil)

	res, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats error = %v", err)
	}
	defer res.Body.Close()
	body := decodeBody[struct {
		Latency    observability.LatencySnapshot `json:"latency"`
		Guardrails map[string]int                `json:"guardrails"`
	}](t, res)
	if len(body.Latency.Stages) == 0 {
		t.Fatalf("latency stages empty")
	}
	if body.Guardrails["max_concurrent"] == 0 {
		t.Fatalf("guardrails = %+v, want max_concurrent", body.Guardrails)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/speak/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestSpeakWebsocketStreamsProgress(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(protocol.SpeakMessage{Type: protocol.TypeSpeak, RequestID: "r1", Text: "First sentence. Second sentence."}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var types []string
	for {
		msg := readWS(t, conn)
		typ, _ := msg["type"].(string)
		types = append(types, typ)
		if got := msg["request_id"]; got != "r1" {
			t.Fatalf("request_id = %v, want r1", got)
		}
		if typ == string(protocol.TypeSpeechResult) || typ == string(protocol.TypeErrorEvent) {
			break
		}
	}
	if types[0] != string(protocol.TypeJobStarted) {
		t.Fatalf("first message = %q, want job_started", types[0])
	}
	if types[len(types)-1] != string(protocol.TypeSpeechResult) {
		t.Fatalf("last message = %q, want speech_result (all: %v)", types[len(types)-1], types)
	}
	chunks := 0
	for _, typ := range types {
		if typ == string(protocol.TypeChunkSynthesized) {
			chunks++
		}
	}
	if chunks == 0 {
		t.Fatalf("no chunk_synthesized messages in %v", types)
	}
}

func TestWebsocketRejectsBadMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"karaoke"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	msg := readWS(t, conn)
	if msg["type"] != string(protocol.TypeErrorEvent) || msg["code"] != string(speech.CodeInvalidInput) {
		t.Fatalf("unexpected message: %v", msg)
	}

	if err := conn.WriteJSON(protocol.InterruptMessage{Type: protocol.TypeInterrupt, JobID: "missing"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	msg = readWS(t, conn)
	if msg["code"] != string(speech.CodeJobNotFound) {
		t.Fatalf("interrupt code = %v, want %s", msg["code"], speech.CodeJobNotFound)
	}
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/speak/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("Dial() error = nil, want handshake failure")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %v, want 403", res)
	}
}

func TestStatusForCode(t *testing.T) {
	tests := map[speech.ErrorCode]int{
		speech.CodeBusy:               http.StatusServiceUnavailable,
		speech.CodeRateLimited:        http.StatusTooManyRequests,
		speech.CodeTimeout:            http.StatusGatewayTimeout,
		speech.CodeTooManyCues:        http.StatusBadRequest,
		speech.CodeBackendUnavailable: http.StatusBadGateway,
		speech.CodeSynthesisFailed:    http.StatusBadGateway,
		speech.CodeJobNotFound:        http.StatusNotFound,
	}
	for code, want := range tests {
		if got := statusForCode(code); got != want {
			t.Fatalf("statusForCode(%s) = %d, want %d", code, got, want)
		}
	}
}
