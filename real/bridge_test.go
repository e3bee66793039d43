package real

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/session"
)

type wireRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wireEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type wireResponse struct {
	ID     string       `json:"id"`
	Result any          `json:"result,omitempty"`
	Error  *BridgeError `json:"error,omitempty"`
}

// reply is what the fake worker does for one request.
type reply struct {
	result any
	err    *BridgeError
	events []wireEvent
	hang   bool
	drop   bool
}

// fakeWorker is an in-process automation worker.
type fakeWorker struct {
	t      *testing.T
	server *httptest.Server
	handle func(req wireRequest) reply

	mu       sync.Mutex
	requests []wireRequest
	conn     *websocket.Conn
}

func newFakeWorker(t *testing.T, handle func(req wireRequest) reply) *fakeWorker {
	w := &fakeWorker{t: t, handle: handle}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		w.mu.Lock()
		w.conn = conn
		w.mu.Unlock()
		defer conn.Close()

		for {
			var req wireRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			w.mu.Lock()
			w.requests = append(w.requests, req)
			w.mu.Unlock()

			rep := reply{result: true}
			if w.handle != nil {
				rep = w.handle(req)
			}
			if rep.drop {
				return
			}
			if rep.hang {
				continue
			}
			if err := conn.WriteJSON(wireResponse{ID: req.ID, Result: rep.result, Error: rep.err}); err != nil {
				return
			}
			for _, ev := range rep.events {
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(w.server.Close)
	return w
}

func (w *fakeWorker) url() string {
	return "ws" + strings.TrimPrefix(w.server.URL, "http")
}

func (w *fakeWorker) methods() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, r := range w.requests {
		out = append(out, r.Method)
	}
	return out
}

func (w *fakeWorker) request(method string) (wireRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.requests {
		if r.Method == method {
			return r, true
		}
	}
	return wireRequest{}, false
}

func (w *fakeWorker) push(ev wireEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(ev)
}

func testConfig(url string) *interfaces.TransportConfig {
	return &interfaces.TransportConfig{
		BridgeURL:        url,
		ClientID:         "panel",
		CallTimeout:      2 * time.Second,
		HandshakeTimeout: time.Second,
	}
}

// eventRecorder collects events from the read loop.
type eventRecorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *eventRecorder) handle(ev interfaces.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.Event(nil), r.events...)
}

func (r *eventRecorder) types() []interfaces.EventType {
	var out []interfaces.EventType
	for _, ev := range r.snapshot() {
		out = append(out, ev.Type)
	}
	return out
}

func TestInitializeDeliversEventsInOrder(t *testing.T) {
	w := newFakeWorker(t, func(req wireRequest) reply {
		if req.Method == MethodInitialize {
			return reply{result: true, events: []wireEvent{
				{Event: "qr", Data: map[string]any{"qr": "2@abc"}},
				{Event: "authenticated", Data: map[string]any{"session": []byte("cred")}},
				{Event: "ready", Data: map[string]any{"info": map[string]any{"address": "1555@c.us", "pushName": "Ops"}}},
			}}
		}
		return reply{result: true}
	})

	store := session.NewMemoryStore()
	tr := NewBridgeTransport(testConfig(w.url()), store)
	rec := &eventRecorder{}
	tr.Subscribe(rec.handle)

	require.NoError(t, tr.Initialize(context.Background()))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)

	evs := rec.snapshot()
	assert.Equal(t, []interfaces.EventType{interfaces.EventQR, interfaces.EventAuthenticated, interfaces.EventReady}, rec.types())
	assert.Equal(t, "2@abc", evs[0].QR)
	require.NotNil(t, evs[2].Info)
	assert.Equal(t, "Ops", evs[2].Info.PushName)

	saved, err := store.Load(context.Background(), "panel")
	require.NoError(t, err)
	assert.Equal(t, "cred", string(saved))

	require.NoError(t, tr.Destroy(context.Background()))
	assert.Contains(t, w.methods(), MethodDestroy)
}

func TestInitializeSendsStoredSession(t *testing.T) {
	w := newFakeWorker(t, nil)
	store := session.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "panel", []byte("previous")))

	tr := NewBridgeTransport(testConfig(w.url()), store)
	require.NoError(t, tr.Initialize(context.Background()))
	defer tr.Destroy(context.Background())

	req, ok := w.request(MethodInitialize)
	require.True(t, ok)
	var params initializeParams
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, "panel", params.ClientID)
	assert.Equal(t, "previous", string(params.Session))
}

func TestSendMessageRoundTrip(t *testing.T) {
	w := newFakeWorker(t, func(req wireRequest) reply {
		if req.Method == MethodSendMessage {
			return reply{result: map[string]any{"id": "true_1555@c.us_ABC", "ack": 1}}
		}
		return reply{result: true}
	})
	tr := NewBridgeTransport(testConfig(w.url()), nil)
	require.NoError(t, tr.Initialize(context.Background()))
	defer tr.Destroy(context.Background())

	msg, err := tr.SendMessage(context.Background(), "1555@c.us", interfaces.Payload{Text: "hello"}, interfaces.SendOptions{LinkPreview: true})
	require.NoError(t, err)
	assert.Equal(t, "true_1555@c.us_ABC", msg.ID)
	assert.Equal(t, interfaces.AckServer, msg.Ack)

	req, ok := w.request(MethodSendMessage)
	require.True(t, ok)
	var params sendParams
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, "1555@c.us", params.To)
	assert.Equal(t, "hello", params.Payload.Text)
	assert.True(t, params.Options.LinkPreview)
}

func TestQueryMethods(t *testing.T) {
	w := newFakeWorker(t, func(req wireRequest) reply {
		switch req.Method {
		case MethodIsRegisteredUser:
			return reply{result: true}
		case MethodGetChats:
			return reply{result: []map[string]any{{"id": "a@c.us", "name": "A"}, {"id": "g@g.us", "name": "G", "isGroup": true}}}
		case MethodGetChatByID:
			return reply{result: map[string]any{"id": "g@g.us", "isGroup": true, "group": map[string]any{"participants": []map[string]any{{"address": "a@c.us", "isAdmin": true}}}}}
		case MethodGetInviteCode:
			return reply{result: "Ab12Cd"}
		case MethodCreateGroup:
			return reply{result: map[string]any{"id": "new@g.us", "name": "ops", "missingParticipants": []string{"b@c.us"}}}
		case MethodGetState:
			return reply{result: "CONNECTED"}
		}
		return reply{result: true}
	})
	tr := NewBridgeTransport(testConfig(w.url()), nil)
	ctx := context.Background()
	require.NoError(t, tr.Initialize(ctx))
	defer tr.Destroy(ctx)

	ok, err := tr.IsRegisteredUser(ctx, "a@c.us")
	require.NoError(t, err)
	assert.True(t, ok)

	chats, err := tr.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.True(t, chats[1].IsGroup)

	chat, err := tr.ChatByID(ctx, "g@g.us")
	require.NoError(t, err)
	require.NotNil(t, chat.Group)
	assert.True(t, chat.Group.Participants[0].IsAdmin)

	code, err := tr.GroupInviteCode(ctx, "g@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Ab12Cd", code)

	created, err := tr.CreateGroup(ctx, "ops", []string{"a@c.us", "b@c.us"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b@c.us"}, created.MissingParticipants)

	state, err := tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", state)
}

func TestSessionClosedErrorCode(t *testing.T) {
	w := newFakeWorker(t, func(req wireRequest) reply {
		if req.Method == MethodSendMessage {
			return reply{err: &BridgeError{Code: CodeSessionClosed, Message: "Target closed"}}
		}
		if req.Method == MethodIsRegisteredUser {
			return reply{err: &BridgeError{Code: "INVALID_WID", Message: "bad address"}}
		}
		return reply{result: true}
	})
	tr := NewBridgeTransport(testConfig(w.url()), nil)
	ctx := context.Background()
	require.NoError(t, tr.Initialize(ctx))
	defer tr.Destroy(ctx)

	_, err := tr.SendMessage(ctx, "a@c.us", interfaces.Payload{Text: "x"}, interfaces.SendOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrSessionClosed)

	var bErr *BridgeError
	_, err = tr.IsRegisteredUser(ctx, "nope")
	require.ErrorAs(t, err, &bErr)
	assert.Equal(t, "INVALID_WID", bErr.Code)
	assert.False(t, interfaces.IsSessionClosed(err))
}

func TestConnectionLossFailsPendingAndEmitsDisconnect(t *testing.T) {
	w := newFakeWorker(t, func(req wireRequest) reply {
		if req.Method == MethodSendMessage {
			return reply{drop: true}
		}
		return reply{result: true}
	})
	tr := NewBridgeTransport(testConfig(w.url()), nil)
	rec := &eventRecorder{}
	tr.Subscribe(rec.handle)
	ctx := context.Background()
	require.NoError(t, tr.Initialize(ctx))

	_, err := tr.SendMessage(ctx, "a@c.us", interfaces.Payload{Text: "x"}, interfaces.SendOptions{})
	require.Error(t, err)
	assert.True(t, interfaces.IsSessionClosed(err))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := rec.snapshot()[0]
	assert.Equal(t, interfaces.EventDisconnected, ev.Type)
	assert.True(t, interfaces.IsSessionClosedReason(ev.Reason))

	_, err = tr.State(ctx)
	assert.True(t, interfaces.IsSessionClosed(err))
	assert.NoError(t, tr.Destroy(ctx))
}

func TestCallTimeout(t *testing.T) {
	w := newFakeWorker(t, func(req wireRequest) reply {
		if req.Method == MethodGetState {
			return reply{hang: true}
		}
		return reply{result: true}
	})
	cfg := testConfig(w.url())
	cfg.CallTimeout = 50 * time.Millisecond
	tr := NewBridgeTransport(cfg, nil)
	ctx := context.Background()
	require.NoError(t, tr.Initialize(ctx))
	defer tr.Destroy(ctx)

	_, err := tr.State(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorEventDecoding(t *testing.T) {
	w := newFakeWorker(t, nil)
	tr := NewBridgeTransport(testConfig(w.url()), nil)
	rec := &eventRecorder{}
	tr.Subscribe(rec.handle)
	ctx := context.Background()
	require.NoError(t, tr.Initialize(ctx))
	defer tr.Destroy(ctx)

	require.NoError(t, w.push(wireEvent{Event: "error", Data: map[string]any{"code": CodeSessionClosed, "message": "Execution context was destroyed"}}))
	require.NoError(t, w.push(wireEvent{Event: "bogus"}))
	require.NoError(t, w.push(wireEvent{Event: "message", Data: map[string]any{"id": "m1", "from": "a@c.us", "body": "hi"}}))
	require.NoError(t, w.push(wireEvent{Event: "change_state", Data: map[string]any{"state": "OPENING"}}))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	evs := rec.snapshot()
	assert.True(t, interfaces.IsSessionClosed(evs[0].Err))
	require.NotNil(t, evs[1].Message)
	assert.Equal(t, "hi", evs[1].Message.Body)
	assert.Equal(t, "OPENING", evs[2].State)
}

func TestNotConnectedCallsAreSessionClosed(t *testing.T) {
	tr := NewBridgeTransport(testConfig("ws://127.0.0.1:1/none"), nil)
	_, err := tr.State(context.Background())
	assert.True(t, errors.Is(err, interfaces.ErrSessionClosed))
	assert.NoError(t, tr.Destroy(context.Background()))
	assert.ErrorIs(t, tr.Initialize(context.Background()), interfaces.ErrSessionClosed)
}

func TestDialFailure(t *testing.T) {
	tr := NewBridgeTransport(testConfig("ws://127.0.0.1:1/none"), nil)
	err := tr.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial bridge")
}
