package peripheral

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/quizlink/internal/ble"
)

type readResponse struct {
	req   ble.ReadRequest
	value []byte
	code  ble.ATTError
}

type writeResponse struct {
	req  ble.WriteRequest
	code ble.ATTError
}

type notification struct {
	char    uuid.UUID
	value   []byte
	central ble.CentralID
}

// mockPeripheral records engine calls and lets tests play back remote traffic.
type mockPeripheral struct {
	mu            sync.Mutex
	handler       ble.RequestHandler
	addErr        error
	services      int
	initial       map[uuid.UUID][]byte
	advertiseCbs  []func(bool, error)
	advertiseName string
	stopCalls     int
	reads         []readResponse
	writes        []writeResponse
	served        map[uuid.UUID][]byte
	notified      []notification
	failFor       map[ble.CentralID]bool
	nextReq       uint64
}

func newMockPeripheral() *mockPeripheral {
	return &mockPeripheral{
		served:  make(map[uuid.UUID][]byte),
		failFor: make(map[ble.CentralID]bool),
	}
}

func (m *mockPeripheral) PowerState() ble.PowerState {
	return ble.PowerStatePoweredOn
}

func (m *mockPeripheral) OnPowerStateChange(func(ble.PowerState)) {}

func (m *mockPeripheral) AddService(_ *ble.Schema, values map[uuid.UUID][]byte, handler ble.RequestHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.services++
	m.handler = handler
	m.initial = values
	return nil
}

func (m *mockPeripheral) Advertise(_ uuid.UUID, localName string, cb func(bool, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertiseName = localName
	m.advertiseCbs = append(m.advertiseCbs, cb)
}

func (m *mockPeripheral) StopAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return nil
}

func (m *mockPeripheral) RespondToRead(req ble.ReadRequest, value []byte, code ble.ATTError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, readResponse{req: req, value: value, code: code})
}

func (m *mockPeripheral) RespondToWrite(req ble.WriteRequest, code ble.ATTError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, writeResponse{req: req, code: code})
}

func (m *mockPeripheral) SetValue(char uuid.UUID, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.served[char] = value
	return nil
}

func (m *mockPeripheral) UpdateValue(char uuid.UUID, value []byte, central ble.CentralID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[central] {
		return errors.New("notify queue full")
	}
	m.notified = append(m.notified, notification{char: char, value: value, central: central})
	return nil
}

// SimulateAdvertiseResult completes the oldest pending Advertise call.
func (m *mockPeripheral) SimulateAdvertiseResult(advertising bool, err error) {
	m.mu.Lock()
	if len(m.advertiseCbs) == 0 {
		m.mu.Unlock()
		return
	}
	cb := m.advertiseCbs[0]
	m.advertiseCbs = m.advertiseCbs[1:]
	m.mu.Unlock()
	cb(advertising, err)
}

func (m *mockPeripheral) requestHandler() ble.RequestHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

func (m *mockPeripheral) SimulateRead(central ble.CentralID, char uuid.UUID, offset int) {
	m.mu.Lock()
	m.nextReq++
	req := ble.ReadRequest{ID: m.nextReq, Central: central, Characteristic: char, Offset: offset}
	m.mu.Unlock()
	m.requestHandler().ReadRequested(req)
}

func (m *mockPeripheral) SimulateWrite(central ble.CentralID, char uuid.UUID, offset int, value []byte) {
	m.mu.Lock()
	m.nextReq++
	req := ble.WriteRequest{ID: m.nextReq, Central: central, Characteristic: char, Offset: offset, Value: value}
	m.mu.Unlock()
	m.requestHandler().WriteRequested(req)
}

func (m *mockPeripheral) SimulateSubscribe(central ble.CentralID, char uuid.UUID) {
	m.requestHandler().Subscribed(central, char)
}

func (m *mockPeripheral) SimulateUnsubscribe(central ble.CentralID, char uuid.UUID) {
	m.requestHandler().Unsubscribed(central, char)
}

func (m *mockPeripheral) lastRead() readResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[len(m.reads)-1]
}

func (m *mockPeripheral) lastWrite() writeResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[len(m.writes)-1]
}

func (m *mockPeripheral) notifications() []notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification, len(m.notified))
	copy(out, m.notified)
	return out
}

func (m *mockPeripheral) pendingAdvertise() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.advertiseCbs)
}

func (m *mockPeripheral) stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

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

func (c *fakeClock) fire(t *fakeTimer) {
	c.mu.Lock()
	stopped := t.stopped
	c.mu.Unlock()
	if !stopped {
		t.f()
	}
}

type testEnv struct {
	engine    *Engine
	transport *mockPeripheral
	monitor   *ble.Monitor
	clock     *fakeClock

	mu     sync.Mutex
	states []bool
}

func newTestEnv(t *testing.T, power ble.PowerState) *testEnv {
	t.Helper()
	transport := newMockPeripheral()
	monitor := ble.NewMonitor(power)
	clock := &fakeClock{}

	opts := DefaultOptions()
	opts.Identity = "123"
	opts.LocalName = "Quiz Player"
	e := New(transport, monitor, opts)
	e.afterFunc = clock.AfterFunc

	env := &testEnv{engine: e, transport: transport, monitor: monitor, clock: clock}
	e.OnAdvertisingChange(func(active bool) {
		env.mu.Lock()
		env.states = append(env.states, active)
		env.mu.Unlock()
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

	env.flush(t)
	return env
}

func (env *testEnv) advertisingEvents() []bool {
	env.mu.Lock()
	defer env.mu.Unlock()
	out := make([]bool, len(env.states))
	copy(out, env.states)
	return out
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

// subscribers reads the subscriber set for char on the engine loop.
func (env *testEnv) subscribers(t *testing.T, char uuid.UUID) []ble.CentralID {
	t.Helper()
	var out []ble.CentralID
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.engine.loop.Do(ctx, func() {
		out = append(out, env.engine.subscribers[char]...)
	}); err != nil {
		t.Fatalf("engine loop did not drain: %v", err)
	}
	return out
}

// startAdvertising starts the engine and confirms the transport advertised.
func (env *testEnv) startAdvertising(t *testing.T) {
	t.Helper()
	env.engine.Start()
	env.flush(t)
	env.transport.SimulateAdvertiseResult(true, nil)
	env.flush(t)
	if !env.engine.Advertising() {
		t.Fatal("engine not advertising after a successful start")
	}
}
