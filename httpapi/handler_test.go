package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/courier"
	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/messaging"
	"github.com/opd-ai/courier/qr"
	"github.com/opd-ai/courier/session"
	testsim "github.com/opd-ai/courier/testing"
)

// stubChannel returns canned results and records bulk options.
type stubChannel struct {
	state     courier.State
	challenge *qr.Challenge
	err       error
	started   bool
	health    courier.Health
	bulkOpts  courier.BulkOptions
	report    *messaging.BulkReport
}

func (s *stubChannel) State() courier.State                { return s.state }
func (s *stubChannel) QRChallenge() (*qr.Challenge, error) { return s.challenge, nil }
func (s *stubChannel) SendOne(ctx context.Context, target string, p interfaces.Payload, opts courier.SendOptions) (*messaging.Receipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &messaging.Receipt{MessageID: "m1", Address: target, Attempts: 1}, nil
}
func (s *stubChannel) SendBulk(ctx context.Context, targets []string, p interfaces.Payload, opts courier.BulkOptions) (*messaging.BulkReport, error) {
	s.bulkOpts = opts
	return s.report, s.err
}
func (s *stubChannel) QueryRegistration(ctx context.Context, target string) (*courier.Registration, error) {
	return &courier.Registration{Address: target, Registered: true}, s.err
}
func (s *stubChannel) Chats(ctx context.Context) ([]interfaces.Chat, error) { return nil, s.err }
func (s *stubChannel) ChatByID(ctx context.Context, id string) (*interfaces.Chat, error) {
	return &interfaces.Chat{ID: id}, s.err
}
func (s *stubChannel) GroupInviteCode(ctx context.Context, groupID string) (string, error) {
	return "CODE", s.err
}
func (s *stubChannel) CreateGroup(ctx context.Context, name string, participants []string) (*interfaces.GroupCreation, error) {
	return &interfaces.GroupCreation{Name: name}, s.err
}
func (s *stubChannel) Restart(ctx context.Context) (bool, error)        { return s.started, s.err }
func (s *stubChannel) ResetSession(ctx context.Context) error           { return s.err }
func (s *stubChannel) HealthCheck(ctx context.Context) courier.Health { return s.health }
func (s *stubChannel) Stats() courier.Stats                             { return courier.Stats{Phase: "CONNECTED"} }

func serve(t *testing.T, ch Channel) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(NewHandler(ch)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid target", fmt.Errorf("%w: x", courier.ErrInvalidTarget), http.StatusBadRequest},
		{"invalid payload", courier.ErrInvalidPayload, http.StatusBadRequest},
		{"not ready", fmt.Errorf("%w: phase QR_PENDING", courier.ErrChannelNotReady), http.StatusServiceUnavailable},
		{"closed", lifecycle.ErrClosed, http.StatusServiceUnavailable},
		{"send failed", &courier.SendError{Target: "1@c.us", Attempts: 3, Err: interfaces.ErrSessionClosed}, http.StatusBadGateway},
		{"no store", courier.ErrNoSessionStore, http.StatusNotImplemented},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, &stubChannel{err: tt.err})
			resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/messages", SendRequest{To: "15550109999", Text: "hi"})
			assert.Equal(t, tt.want, resp.StatusCode)

			var er ErrorResponse
			require.NoError(t, json.Unmarshal(body, &er))
			assert.Equal(t, "send failed", er.Error)
			assert.Equal(t, tt.err.Error(), er.Details)
		})
	}
}

func TestInvalidBody(t *testing.T) {
	srv := serve(t, &stubChannel{})
	resp, err := http.Post(srv.URL+"/api/v1/messages", "application/json", bytes.NewBufferString(`{"to":`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/messages", "application/json", bytes.NewBufferString(`{"recipient":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields rejected")
}

func TestRestartStatus(t *testing.T) {
	srv := serve(t, &stubChannel{started: true})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/restart", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var rr RestartResponse
	require.NoError(t, json.Unmarshal(body, &rr))
	assert.True(t, rr.Started)

	srv = serve(t, &stubChannel{started: false})
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/restart", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	srv = serve(t, &stubChannel{started: true, err: errors.New("initialize transport: boom")})
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/restart", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestBulkOverrides(t *testing.T) {
	stub := &stubChannel{report: &messaging.BulkReport{Total: 1}}
	srv := serve(t, stub)

	pacing := int64(250)
	abort := false
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/messages/bulk", BulkRequest{
		Targets:         []string{"15550109999"},
		Text:            "hi",
		PacingMs:        &pacing,
		ContinueOnError: &abort,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, stub.bulkOpts.Pacing)
	assert.Equal(t, 250*time.Millisecond, *stub.bulkOpts.Pacing)
	require.NotNil(t, stub.bulkOpts.ContinueOnError)
	assert.False(t, *stub.bulkOpts.ContinueOnError)
	assert.Nil(t, stub.bulkOpts.NotReadyPause)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/messages/bulk", BulkRequest{Targets: []string{"1"}, Text: "hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, stub.bulkOpts.Pacing, "unset fields defer to the channel policy")
	assert.Nil(t, stub.bulkOpts.ContinueOnError)

	stub.report, stub.err = nil, courier.ErrInvalidTarget
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/messages/bulk", BulkRequest{Text: "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthStatusCode(t *testing.T) {
	srv := serve(t, &stubChannel{health: courier.Health{Status: courier.HealthHealthy}})
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv = serve(t, &stubChannel{health: courier.Health{Status: courier.HealthNotReady, Hints: []string{courier.HintScanQR}}})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), courier.HintScanQR)
}

func TestRequestIDEchoed(t *testing.T) {
	srv := serve(t, &stubChannel{})
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/stats", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHandlerPanicRecovered(t *testing.T) {
	r := NewRouter(NewHandler(&stubChannel{}))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("handler bug") })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/boom")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	// The server keeps serving after a panic.
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// newLiveChannel runs a real channel over a simulated transport.
func newLiveChannel(t *testing.T, script ...interfaces.Event) (*courier.Channel, *testsim.SimulatedTransport) {
	t.Helper()
	var tr *testsim.SimulatedTransport
	options := courier.NewOptions()
	options.Store = session.NewMemoryStore()
	options.Lifecycle.CoolDown = 0
	options.Factory = func() (interfaces.IMessagingTransport, error) {
		tr = testsim.NewSimulatedTransport(&interfaces.TransportConfig{UseSimulation: true, ClientID: "http-test", CallTimeout: time.Second})
		tr.AddRegistered("15550109999@c.us")
		if script != nil {
			tr.SetInitScript(script...)
		}
		return tr, nil
	}
	ch, err := courier.New(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close(context.Background()) })
	require.NoError(t, ch.Start(context.Background()))
	return ch, tr
}

func TestLiveChannelFlow(t *testing.T) {
	ch, tr := newLiveChannel(t)
	srv := serve(t, ch)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/state", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]any
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, "CONNECTED", state["phase"])
	assert.Equal(t, true, state["isReady"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/messages", SendRequest{To: "+1 555 010 9999", Text: "hello"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var receipt messaging.Receipt
	require.NoError(t, json.Unmarshal(body, &receipt))
	assert.Equal(t, "15550109999@c.us", receipt.Address)
	assert.Len(t, tr.SentMessages(), 1)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/messages", SendRequest{To: "abc", Text: "hello"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/registrations/15550109999", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"registered":true`)

	pacing := int64(0)
	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/messages/bulk", BulkRequest{
		Targets:  []string{"15550100001", "bad", "15550100003"},
		Text:     "hi",
		PacingMs: &pacing,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var report messaging.BulkReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/qr", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveQRFlow(t *testing.T) {
	ch, _ := newLiveChannel(t, interfaces.Event{Type: interfaces.EventQR, QR: "ABC"})
	srv := serve(t, ch)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/qr", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"raw":"ABC"`)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/qr.png", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/messages", SendRequest{To: "15550109999", Text: "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), courier.HintScanQR)
}
