package real

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/limits"
	"github.com/opd-ai/courier/session"
)

// sessionSaveTimeout bounds persisting a credential handed back on
// authentication.
const sessionSaveTimeout = 10 * time.Second

// BridgeTransport implements interfaces.IMessagingTransport by talking JSON
// over a WebSocket to an automation worker that drives the messaging web
// client in a headless browser.
type BridgeTransport struct {
	config *interfaces.TransportConfig
	store  session.Store
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  []interfaces.EventHandler
	destroyed bool
	done      chan struct{}

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *frame
}

// NewBridgeTransport creates a bridge transport. store may be nil, in which
// case credentials are never persisted.
func NewBridgeTransport(config *interfaces.TransportConfig, store session.Store) *BridgeTransport {
	logrus.WithFields(logrus.Fields{
		"function":     "NewBridgeTransport",
		"bridge_url":   config.BridgeURL,
		"client_id":    config.ClientID,
		"call_timeout": config.CallTimeout,
	}).Info("Creating bridge messaging transport")

	return &BridgeTransport{
		config: config,
		store:  store,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		pending: make(map[string]chan *frame),
	}
}

// Subscribe implements interfaces.IMessagingTransport.
func (b *BridgeTransport) Subscribe(handler interfaces.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Initialize dials the worker, starts the read loop and asks the worker to
// launch the client with the stored credential, if any.
func (b *BridgeTransport) Initialize(ctx context.Context) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return interfaces.ErrSessionClosed
	}
	if b.conn != nil {
		b.mu.Unlock()
		return errors.New("bridge transport already initialized")
	}
	b.mu.Unlock()

	conn, _, err := b.dialer.DialContext(ctx, b.config.BridgeURL, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "BridgeTransport.Initialize",
			"bridge_url": b.config.BridgeURL,
			"error":      err.Error(),
		}).Error("Failed to dial automation worker")
		return fmt.Errorf("dial bridge: %w", err)
	}
	conn.SetReadLimit(limits.MaxBridgeFrame)

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		conn.Close()
		return interfaces.ErrSessionClosed
	}
	b.conn = conn
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go b.readLoop(conn, done)

	params := initializeParams{ClientID: b.config.ClientID}
	if b.store != nil {
		blob, err := b.store.Load(ctx, b.config.ClientID)
		switch {
		case err == nil:
			params.Session = blob
		case errors.Is(err, session.ErrNotFound):
		default:
			logrus.WithFields(logrus.Fields{
				"function":  "BridgeTransport.Initialize",
				"client_id": b.config.ClientID,
				"error":     err.Error(),
			}).Warn("Failed to load stored session, a QR scan will be required")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "BridgeTransport.Initialize",
		"client_id":   b.config.ClientID,
		"has_session": params.Session != nil,
	}).Info("Initializing messaging client via bridge")

	return b.call(ctx, MethodInitialize, params, nil)
}

// Destroy asks the worker to close the client and then drops the connection.
func (b *BridgeTransport) Destroy(ctx context.Context) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	conn := b.conn
	done := b.done
	b.mu.Unlock()

	if conn == nil {
		return nil
	}

	callErr := b.call(ctx, MethodDestroy, nil, nil)

	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "destroy"),
		time.Now().Add(time.Second))
	b.writeMu.Unlock()
	closeErr := conn.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	logrus.WithFields(logrus.Fields{
		"function": "BridgeTransport.Destroy",
	}).Info("Bridge transport destroyed")

	if callErr != nil && !interfaces.IsSessionClosed(callErr) {
		return callErr
	}
	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		return fmt.Errorf("close bridge connection: %w", closeErr)
	}
	return nil
}

// SendMessage implements interfaces.IMessagingTransport.
func (b *BridgeTransport) SendMessage(ctx context.Context, to string, payload interfaces.Payload, opts interfaces.SendOptions) (*interfaces.SentMessage, error) {
	var msg interfaces.SentMessage
	if err := b.call(ctx, MethodSendMessage, sendParams{To: to, Payload: payload, Options: opts}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// IsRegisteredUser implements interfaces.IMessagingTransport.
func (b *BridgeTransport) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	var ok bool
	err := b.call(ctx, MethodIsRegisteredUser, addressParams{Address: address}, &ok)
	return ok, err
}

// Chats implements interfaces.IMessagingTransport.
func (b *BridgeTransport) Chats(ctx context.Context) ([]interfaces.Chat, error) {
	var chats []interfaces.Chat
	if err := b.call(ctx, MethodGetChats, nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// ChatByID implements interfaces.IMessagingTransport.
func (b *BridgeTransport) ChatByID(ctx context.Context, id string) (*interfaces.Chat, error) {
	var chat interfaces.Chat
	if err := b.call(ctx, MethodGetChatByID, idParams{ID: id}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GroupInviteCode implements interfaces.IMessagingTransport.
func (b *BridgeTransport) GroupInviteCode(ctx context.Context, groupID string) (string, error) {
	var code string
	err := b.call(ctx, MethodGetInviteCode, groupParams{GroupID: groupID}, &code)
	return code, err
}

// CreateGroup implements interfaces.IMessagingTransport.
func (b *BridgeTransport) CreateGroup(ctx context.Context, name string, participants []string) (*interfaces.GroupCreation, error) {
	var res interfaces.GroupCreation
	if err := b.call(ctx, MethodCreateGroup, createGroupParams{Name: name, Participants: participants}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// State implements interfaces.IMessagingTransport.
func (b *BridgeTransport) State(ctx context.Context) (string, error) {
	var state string
	err := b.call(ctx, MethodGetState, nil, &state)
	return state, err
}

// IsSimulation reports that this is a real transport.
func (b *BridgeTransport) IsSimulation() bool {
	return false
}

// call performs one request/response exchange. A lost connection surfaces as
// interfaces.ErrSessionClosed so callers can retry after a restart.
func (b *BridgeTransport) call(ctx context.Context, method string, params, out any) error {
	b.mu.Lock()
	conn, done := b.conn, b.done
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("bridge %s: not connected: %w", method, interfaces.ErrSessionClosed)
	}

	if b.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.CallTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan *frame, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	b.writeMu.Lock()
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	err := conn.WriteJSON(request{ID: id, Method: method, Params: params})
	b.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("bridge %s: write: %v: %w", method, err, interfaces.ErrSessionClosed)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "BridgeTransport.call",
		"method":     method,
		"request_id": id,
	}).Debug("Bridge request sent")

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("bridge %s: %w", method, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("bridge %s: decode result: %w", method, err)
			}
		}
		return nil
	case <-done:
		return fmt.Errorf("bridge %s: connection lost: %w", method, interfaces.ErrSessionClosed)
	case <-ctx.Done():
		return fmt.Errorf("bridge %s: %w", method, ctx.Err())
	}
}

// readLoop routes responses to waiting calls and dispatches events in
// arrival order. It exits when the connection fails.
func (b *BridgeTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			b.connectionLost(err)
			return
		}

		if f.ID != "" {
			b.pendingMu.Lock()
			ch, ok := b.pending[f.ID]
			b.pendingMu.Unlock()
			if ok {
				select {
				case ch <- &f:
				default:
				}
			}
			continue
		}
		if f.Event == "" {
			continue
		}

		ev, err := decodeEvent(&f)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "BridgeTransport.readLoop",
				"event":    f.Event,
				"error":    err.Error(),
			}).Warn("Ignoring malformed bridge event")
			continue
		}
		if ev.Type == interfaces.EventAuthenticated && len(ev.Session) > 0 {
			b.persistSession(ev.Session)
		}
		b.dispatch(ev)
	}
}

// connectionLost reports an unexpected drop as a session-closed disconnect.
func (b *BridgeTransport) connectionLost(err error) {
	b.mu.Lock()
	destroyed := b.destroyed
	b.mu.Unlock()
	if destroyed {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "BridgeTransport.connectionLost",
		"error":    err.Error(),
	}).Warn("Bridge connection lost")

	b.dispatch(interfaces.Event{
		Type:   interfaces.EventDisconnected,
		Reason: "Session closed: " + err.Error(),
	})
}

func (b *BridgeTransport) persistSession(blob []byte) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionSaveTimeout)
	defer cancel()
	if err := b.store.Save(ctx, b.config.ClientID, blob); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "BridgeTransport.persistSession",
			"client_id": b.config.ClientID,
			"error":     err.Error(),
		}).Warn("Failed to persist session credential")
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":  "BridgeTransport.persistSession",
		"client_id": b.config.ClientID,
	}).Info("Session credential persisted")
}

func (b *BridgeTransport) dispatch(ev interfaces.Event) {
	b.mu.Lock()
	handlers := append([]interfaces.EventHandler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}
