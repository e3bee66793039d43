package courier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/session"
	testsim "github.com/opd-ai/courier/testing"
)

// simFactory builds simulated transports, optionally wrapped, and remembers
// every instance it handed out.
type simFactory struct {
	mu    sync.Mutex
	built []*testsim.SimulatedTransport
	setup func(i int, tr *testsim.SimulatedTransport)
	wrap  func(i int, tr *testsim.SimulatedTransport) interfaces.IMessagingTransport
}

func (f *simFactory) New() (interfaces.IMessagingTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := testsim.NewSimulatedTransport(&interfaces.TransportConfig{
		UseSimulation: true,
		ClientID:      "courier-test",
		CallTimeout:   time.Second,
	})
	i := len(f.built)
	if f.setup != nil {
		f.setup(i, tr)
	}
	f.built = append(f.built, tr)
	if f.wrap != nil {
		return f.wrap(i, tr), nil
	}
	return tr, nil
}

func (f *simFactory) instances() []*testsim.SimulatedTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*testsim.SimulatedTransport(nil), f.built...)
}

func (f *simFactory) current(t *testing.T) *testsim.SimulatedTransport {
	t.Helper()
	all := f.instances()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func testOptions(f *simFactory, clk *testsim.ManualClock) *Options {
	options := NewOptions()
	options.Factory = f.New
	options.Store = session.NewMemoryStore()
	options.TimeProvider = clk
	options.HealthProbeTimeout = 100 * time.Millisecond
	options.Lifecycle = lifecycle.Config{
		DestroyTimeout:    time.Second,
		CoolDown:          0,
		FailureBackoff:    10 * time.Second,
		AutoRestartDelay:  5 * time.Second,
		InitializeTimeout: time.Second,
		MaxAttempts:       3,
	}
	return options
}

// newTestChannel builds a channel over simulated transports with a manual
// clock that advances by itself on every sleep.
func newTestChannel(t *testing.T, f *simFactory, tweak ...func(*Options)) (*Channel, *testsim.ManualClock) {
	t.Helper()
	clk := testsim.NewManualClock(time.Unix(1000, 0))
	clk.SetAutoAdvance(true)
	options := testOptions(f, clk)
	for _, fn := range tweak {
		fn(options)
	}
	ch, err := New(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close(context.Background()) })
	return ch, clk
}

func startConnected(t *testing.T, f *simFactory, tweak ...func(*Options)) (*Channel, *testsim.ManualClock) {
	t.Helper()
	ch, clk := newTestChannel(t, f, tweak...)
	require.NoError(t, ch.Start(context.Background()))
	require.Equal(t, lifecycle.PhaseConnected, ch.State().Phase)
	return ch, clk
}

func textPayload(s string) interfaces.Payload {
	return interfaces.Payload{Text: s}
}
