package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
)

// SimulatedTransport implements interfaces.IMessagingTransport in memory. It
// emits a scripted sequence of lifecycle events on Initialize and lets tests
// inject events, send failures and wedged teardowns.
type SimulatedTransport struct {
	mu     sync.Mutex
	config *interfaces.TransportConfig

	handlers   []interfaces.EventHandler
	initScript []interfaces.Event

	initErr      error
	destroyErr   error
	destroyBlock <-chan struct{}
	sendFailures []error
	stateErr     error
	state        string

	registered map[string]bool
	chats      map[string]interfaces.Chat
	sent       []SendRecord
	seq        int

	initCount    int
	destroyCount int
	destroyed    bool
}

// SendRecord is one SendMessage call observed by the simulation.
type SendRecord struct {
	To      string
	Payload interfaces.Payload
	Options interfaces.SendOptions
	Success bool
	Error   error
}

// SimulatedClientInfo is the identity the default script reports on ready.
var SimulatedClientInfo = interfaces.ClientInfo{
	Address:  "15550000000@c.us",
	PushName: "courier-sim",
	Platform: "simulation",
}

// NewSimulatedTransport creates a simulated transport whose default script
// authenticates and becomes ready immediately.
func NewSimulatedTransport(config *interfaces.TransportConfig) *SimulatedTransport {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	fields := logrus.Fields{
		"function": "NewSimulatedTransport",
	}
	if config != nil {
		fields["client_id"] = config.ClientID
	}
	logrus.WithFields(fields).Info("Creating simulated messaging transport")

	info := SimulatedClientInfo
	return &SimulatedTransport{
		config: config,
		initScript: []interfaces.Event{
			{Type: interfaces.EventAuthenticated},
			{Type: interfaces.EventReady, Info: &info},
		},
		state:      "CONNECTED",
		registered: make(map[string]bool),
		chats:      make(map[string]interfaces.Chat),
	}
}

// Subscribe implements interfaces.IMessagingTransport.
func (s *SimulatedTransport) Subscribe(handler interfaces.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Initialize emits the init script synchronously, in order.
func (s *SimulatedTransport) Initialize(ctx context.Context) error {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.initCount++
	if s.destroyed {
		s.mu.Unlock()
		return interfaces.ErrSessionClosed
	}
	if s.initErr != nil {
		err := s.initErr
		s.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedTransport.Initialize",
			"error":    err.Error(),
		}).Error("Simulated initialize failure")
		return err
	}
	script := append([]interfaces.Event(nil), s.initScript...)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "SimulatedTransport.Initialize",
		"script_count": len(script),
	}).Info("Simulating client initialization")

	for _, ev := range script {
		s.Emit(ev)
	}
	return nil
}

// Destroy marks the instance unusable. If a destroy block is installed it
// waits for it or for ctx, whichever comes first.
func (s *SimulatedTransport) Destroy(ctx context.Context) error {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	s.mu.Lock()
	s.destroyCount++
	block := s.destroyBlock
	err := s.destroyErr
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SimulatedTransport.Destroy",
	}).Info("Simulated client destroyed")
	return err
}

// SendMessage records the send, failing with the next queued error if any.
func (s *SimulatedTransport) SendMessage(ctx context.Context, to string, payload interfaces.Payload, opts interfaces.SendOptions) (*interfaces.SentMessage, error) {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch {
	case s.destroyed:
		err = fmt.Errorf("send to %s: %w", to, interfaces.ErrSessionClosed)
	case len(s.sendFailures) > 0:
		err = s.sendFailures[0]
		s.sendFailures = s.sendFailures[1:]
	}
	if err != nil {
		s.sent = append(s.sent, SendRecord{To: to, Payload: payload, Options: opts, Error: err})
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedTransport.SendMessage",
			"to":       to,
			"error":    err.Error(),
		}).Error("Simulated send failure")
		return nil, err
	}

	s.seq++
	s.sent = append(s.sent, SendRecord{To: to, Payload: payload, Options: opts, Success: true})
	msg := &interfaces.SentMessage{
		ID:        fmt.Sprintf("true_%s_SIM%06d", to, s.seq),
		Timestamp: time.Now(),
		Ack:       interfaces.AckServer,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "SimulatedTransport.SendMessage",
		"to":         to,
		"message_id": msg.ID,
		"total_sent": len(s.sent),
	}).Info("Message send simulated successfully")
	return msg, nil
}

// IsRegisteredUser reports whether address was added with AddRegistered.
func (s *SimulatedTransport) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered[address], nil
}

// Chats lists simulated chats ordered by ID.
func (s *SimulatedTransport) Chats(ctx context.Context) ([]interfaces.Chat, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chats := make([]interfaces.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		chats = append(chats, c)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return chats, nil
}

// ChatByID returns a simulated chat.
func (s *SimulatedTransport) ChatByID(ctx context.Context, id string) (*interfaces.Chat, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s not found in simulation", id)
	}
	return &c, nil
}

// GroupInviteCode returns a deterministic code for known groups.
func (s *SimulatedTransport) GroupInviteCode(ctx context.Context, groupID string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[groupID]
	if !ok || !c.IsGroup {
		return "", fmt.Errorf("group %s not found in simulation", groupID)
	}
	return fmt.Sprintf("SIM%x", len(groupID)*7919), nil
}

// CreateGroup adds a group chat. Unregistered participants are reported as
// missing.
func (s *SimulatedTransport) CreateGroup(ctx context.Context, name string, participants []string) (*interfaces.GroupCreation, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := fmt.Sprintf("1203630%08d@g.us", s.seq)
	result := &interfaces.GroupCreation{ID: id, Name: name}
	meta := &interfaces.GroupMetadata{CreatedAt: time.Now()}
	for _, p := range participants {
		if !s.registered[p] {
			result.MissingParticipants = append(result.MissingParticipants, p)
			continue
		}
		meta.Participants = append(meta.Participants, interfaces.Participant{Address: p})
	}
	s.chats[id] = interfaces.Chat{ID: id, Name: name, IsGroup: true, Timestamp: meta.CreatedAt, Group: meta}
	return result, nil
}

// State returns the configured raw state, or the configured probe error.
func (s *SimulatedTransport) State(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return "", interfaces.ErrSessionClosed
	}
	if s.stateErr != nil {
		return "", s.stateErr
	}
	return s.state, nil
}

// IsSimulation reports that this is not a real transport.
func (s *SimulatedTransport) IsSimulation() bool {
	return true
}

func (s *SimulatedTransport) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return interfaces.ErrSessionClosed
	}
	return nil
}

// Emit delivers ev to every subscriber, in subscription order.
func (s *SimulatedTransport) Emit(ev interfaces.Event) {
	s.mu.Lock()
	handlers := append([]interfaces.EventHandler(nil), s.handlers...)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "SimulatedTransport.Emit",
		"event":         ev.Type,
		"handler_count": len(handlers),
	}).Debug("Emitting simulated event")

	for _, h := range handlers {
		h(ev)
	}
}

// SetInitScript replaces the events emitted by Initialize.
func (s *SimulatedTransport) SetInitScript(events ...interfaces.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initScript = append([]interfaces.Event(nil), events...)
}

// SetInitError makes Initialize fail with err.
func (s *SimulatedTransport) SetInitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initErr = err
}

// SetDestroyError makes Destroy return err after tearing down.
func (s *SimulatedTransport) SetDestroyError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyErr = err
}

// BlockDestroy makes Destroy wait until ch is closed or its context ends.
func (s *SimulatedTransport) BlockDestroy(ch <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyBlock = ch
}

// FailNextSends queues errors returned by the next SendMessage calls.
func (s *SimulatedTransport) FailNextSends(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendFailures = append(s.sendFailures, errs...)
}

// SetState sets the raw state string and probe error returned by State.
func (s *SimulatedTransport) SetState(state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.stateErr = err
}

// AddRegistered marks an address as registered on the simulated network.
func (s *SimulatedTransport) AddRegistered(addresses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addresses {
		s.registered[a] = true
	}
}

// AddChat adds a chat to the simulated client.
func (s *SimulatedTransport) AddChat(chat interfaces.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
}

// SentMessages returns a copy of the send log.
func (s *SimulatedTransport) SentMessages() []SendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRecord(nil), s.sent...)
}

// InitializeCount returns how many times Initialize was called.
func (s *SimulatedTransport) InitializeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCount
}

// DestroyCount returns how many times Destroy was called.
func (s *SimulatedTransport) DestroyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyCount
}

// Destroyed reports whether Destroy completed.
func (s *SimulatedTransport) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
