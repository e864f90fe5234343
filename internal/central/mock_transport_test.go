package central

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/roster"
)

type charKey struct {
	peer ble.PeerID
	char uuid.UUID
}

// mockCentral records engine calls and lets tests play back radio events.
type mockCentral struct {
	mu           sync.Mutex
	power        ble.PowerState
	disconnectCb func(ble.PeerID, error)
	scanCb       func(ble.Advertisement)
	scanErr      error
	scanCalls    int
	stopCalls    int
	connectCbs   map[ble.PeerID]func(error)
	connects     []ble.PeerID
	canceled     []ble.PeerID
	serviceCbs   map[ble.PeerID]func([]uuid.UUID, error)
	charCbs      map[ble.PeerID]func([]uuid.UUID, error)
	readCbs      map[charKey][]func([]byte, error)
	notifyCbs    map[charKey]func([]byte)
	notifyOn     map[charKey]bool
}

func newMockCentral(power ble.PowerState) *mockCentral {
	return &mockCentral{
		power:      power,
		connectCbs: make(map[ble.PeerID]func(error)),
		serviceCbs: make(map[ble.PeerID]func([]uuid.UUID, error)),
		charCbs:    make(map[ble.PeerID]func([]uuid.UUID, error)),
		readCbs:    make(map[charKey][]func([]byte, error)),
		notifyCbs:  make(map[charKey]func([]byte)),
		notifyOn:   make(map[charKey]bool),
	}
}

func (m *mockCentral) PowerState() ble.PowerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power
}

func (m *mockCentral) OnPowerStateChange(func(ble.PowerState)) {}

func (m *mockCentral) OnDisconnect(cb func(ble.PeerID, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCb = cb
}

func (m *mockCentral) Scan(_ uuid.UUID, cb func(ble.Advertisement)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	if m.scanErr != nil {
		return m.scanErr
	}
	m.scanCb = cb
	return nil
}

func (m *mockCentral) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return nil
}

func (m *mockCentral) Connect(peer ble.PeerID, cb func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, peer)
	m.connectCbs[peer] = cb
}

func (m *mockCentral) CancelConnection(peer ble.PeerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, peer)
	return nil
}

func (m *mockCentral) DiscoverServices(peer ble.PeerID, _ []uuid.UUID, cb func([]uuid.UUID, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceCbs[peer] = cb
}

func (m *mockCentral) DiscoverCharacteristics(peer ble.PeerID, _ uuid.UUID, _ []uuid.UUID, cb func([]uuid.UUID, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charCbs[peer] = cb
}

func (m *mockCentral) ReadValue(peer ble.PeerID, char uuid.UUID, cb func([]byte, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := charKey{peer, char}
	m.readCbs[k] = append(m.readCbs[k], cb)
}

func (m *mockCentral) SetNotify(peer ble.PeerID, char uuid.UUID, enabled bool, onValue func([]byte), onResult func(error)) {
	m.mu.Lock()
	k := charKey{peer, char}
	m.notifyOn[k] = enabled
	m.notifyCbs[k] = onValue
	m.mu.Unlock()
	onResult(nil)
}

// SimulateAdvertisement reports a sighting of peer advertising the quiz service.
func (m *mockCentral) SimulateAdvertisement(peer ble.PeerID) {
	m.mu.Lock()
	cb := m.scanCb
	m.mu.Unlock()
	if cb != nil {
		cb(ble.Advertisement{Peer: peer, LocalName: "Quiz " + string(peer), Services: []uuid.UUID{ble.ServiceUUID}})
	}
}

func (m *mockCentral) SimulateConnect(peer ble.PeerID, err error) {
	m.mu.Lock()
	cb := m.connectCbs[peer]
	delete(m.connectCbs, peer)
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (m *mockCentral) SimulateServices(peer ble.PeerID, found []uuid.UUID, err error) {
	m.mu.Lock()
	cb := m.serviceCbs[peer]
	m.mu.Unlock()
	if cb != nil {
		cb(found, err)
	}
}

func (m *mockCentral) SimulateCharacteristics(peer ble.PeerID, found []uuid.UUID, err error) {
	m.mu.Lock()
	cb := m.charCbs[peer]
	m.mu.Unlock()
	if cb != nil {
		cb(found, err)
	}
}

// SimulateRead completes the oldest pending read of char on peer.
func (m *mockCentral) SimulateRead(peer ble.PeerID, char uuid.UUID, value []byte, err error) {
	m.mu.Lock()
	k := charKey{peer, char}
	cbs := m.readCbs[k]
	if len(cbs) == 0 {
		m.mu.Unlock()
		return
	}
	cb := cbs[0]
	m.readCbs[k] = cbs[1:]
	m.mu.Unlock()
	cb(value, err)
}

func (m *mockCentral) SimulateNotification(peer ble.PeerID, char uuid.UUID, value []byte) {
	m.mu.Lock()
	cb := m.notifyCbs[charKey{peer, char}]
	m.mu.Unlock()
	if cb != nil {
		cb(value)
	}
}

func (m *mockCentral) SimulateDisconnect(peer ble.PeerID, err error) {
	m.mu.Lock()
	cb := m.disconnectCb
	m.mu.Unlock()
	if cb != nil {
		cb(peer, err)
	}
}

func (m *mockCentral) pendingReads(peer ble.PeerID, char uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readCbs[charKey{peer, char}])
}

func (m *mockCentral) notifyEnabled(peer ble.PeerID, char uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifyOn[charKey{peer, char}]
}

func (m *mockCentral) canceledPeers() []ble.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ble.PeerID, len(m.canceled))
	copy(out, m.canceled)
	return out
}

func (m *mockCentral) counts() (scans, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanCalls, m.stopCalls
}

// fakeTimer is a timer the test fires by hand.
type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasLive := !t.stopped && !t.fired
	t.stopped = true
	return wasLive
}

// fakeClock hands out fakeTimers in creation order.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeTimer, len(c.timers))
	copy(out, c.timers)
	return out
}

func (c *fakeClock) isStopped(t *fakeTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.stopped
}

// fire runs a timer's callback. force fires it even if stopped, to model
// a timer that fired just as it was being stopped.
func (c *fakeClock) fire(t *fakeTimer, force bool) {
	c.mu.Lock()
	if t.stopped && !force {
		c.mu.Unlock()
		return
	}
	t.fired = true
	c.mu.Unlock()
	t.f()
}

type testEnv struct {
	engine    *Engine
	transport *mockCentral
	monitor   *ble.Monitor
	clock     *fakeClock
	changes   *changeLog
}

// changeLog records roster and discovery notifications.
type changeLog struct {
	mu        sync.Mutex
	roster    int
	discovery []bool
}

func (l *changeLog) rosterCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roster
}

func (l *changeLog) discoveryEvents() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, len(l.discovery))
	copy(out, l.discovery)
	return out
}

func newTestEnv(t *testing.T, power ble.PowerState) *testEnv {
	t.Helper()
	transport := newMockCentral(power)
	monitor := ble.NewMonitor(power)
	clock := &fakeClock{}

	e := New(transport, monitor, DefaultOptions())
	e.afterFunc = clock.AfterFunc

	log := &changeLog{}
	e.Roster().OnChange(func([]roster.Peer) {
		log.mu.Lock()
		log.roster++
		log.mu.Unlock()
	})
	e.OnDiscoveryChange(func(active bool) {
		log.mu.Lock()
		log.discovery = append(log.discovery, active)
		log.mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	env := &testEnv{engine: e, transport: transport, monitor: monitor, clock: clock, changes: log}
	env.flush(t)
	return env
}

// flush waits until everything posted so far has run on the engine loop.
func (env *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.engine.loop.Do(ctx, func() {}); err != nil {
		t.Fatalf("engine loop did not drain: %v", err)
	}
}

// connectPlayer walks peer through discovery, connection and GATT setup.
func (env *testEnv) connectPlayer(t *testing.T, peer ble.PeerID, identity, answer string) {
	t.Helper()
	m := env.transport
	m.SimulateAdvertisement(peer)
	env.flush(t)
	m.SimulateConnect(peer, nil)
	env.flush(t)
	m.SimulateServices(peer, []uuid.UUID{ble.ServiceUUID}, nil)
	env.flush(t)
	m.SimulateCharacteristics(peer, []uuid.UUID{ble.PlayerIdentityUUID, ble.CurrentAnswerUUID}, nil)
	env.flush(t)
	m.SimulateRead(peer, ble.PlayerIdentityUUID, []byte(identity), nil)
	m.SimulateRead(peer, ble.CurrentAnswerUUID, []byte(answer), nil)
	env.flush(t)
}
