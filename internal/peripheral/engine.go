// Package peripheral implements the quiz player role: it publishes the
// player's identity and current answer as GATT characteristics and
// advertises them for a host to find.
package peripheral

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/ble/protocol"
	"github.com/chaz8081/quizlink/internal/loop"
)

// Options configures the engine.
type Options struct {
	LocalName string // advertised local name
	Identity  string // value of the player identity characteristic
	RetryMax  int    // cap, in seconds, on the advertise retry backoff
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		LocalName: "quizlink",
		RetryMax:  30,
	}
}

type timer interface {
	Stop() bool
}

// Engine is the advertising state machine. Like the central engine, public
// methods post to the engine loop and return immediately.
type Engine struct {
	transport ble.Peripheral
	monitor   *ble.Monitor
	schema    *ble.Schema
	store     *Store
	loop      *loop.Loop
	opts      Options

	afterFunc func(time.Duration, func()) timer

	// Owned by the loop.
	wantAdvertise bool
	advertising   bool
	pending       bool
	advGen        uint64
	serviceAdded  bool
	attempt       int
	retry         timer
	retryGen      uint64
	subscribers   map[uuid.UUID][]ble.CentralID

	active atomic.Bool

	obsMu     sync.Mutex
	nextObs   uint64
	observers []advertisingObserver
}

type advertisingObserver struct {
	id uint64
	fn func(advertising bool)
}

// New creates an engine publishing identity and an empty answer.
func New(transport ble.Peripheral, monitor *ble.Monitor, opts Options) *Engine {
	if opts.RetryMax <= 0 {
		opts.RetryMax = DefaultOptions().RetryMax
	}
	e := &Engine{
		transport:   transport,
		monitor:     monitor,
		schema:      ble.QuizPlayerSchema(true),
		store:       NewStore(),
		loop:        loop.New(),
		opts:        opts,
		afterFunc:   func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) },
		subscribers: make(map[uuid.UUID][]ble.CentralID),
	}
	e.store.Set(ble.PlayerIdentityUUID, protocol.EncodeText(opts.Identity))
	e.store.Set(ble.CurrentAnswerUUID, nil)
	return e
}

// Run drives the engine until ctx is done, then stops advertising.
func (e *Engine) Run(ctx context.Context) {
	sub := e.monitor.Subscribe(availabilityObserver{e})
	defer e.monitor.Unsubscribe(sub)
	e.loop.Post(func() { e.availabilityChanged(e.monitor.Current()) })

	_ = e.loop.Run(ctx)
	e.shutdown()
}

// Start asks the engine to advertise. It advertises as soon as the radio is
// available and keeps doing so across availability changes until Stop.
func (e *Engine) Start() {
	e.loop.Post(func() {
		e.wantAdvertise = true
		e.startAdvertising()
	})
}

// Stop halts advertising and suppresses automatic resume.
func (e *Engine) Stop() {
	e.loop.Post(e.stop)
}

// Publish stores value for char and notifies every subscribed central.
func (e *Engine) Publish(char uuid.UUID, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	e.loop.Post(func() { e.publish(char, cp) })
}

// SubmitAnswer publishes text as the player's current answer.
func (e *Engine) SubmitAnswer(text string) {
	e.Publish(ble.CurrentAnswerUUID, protocol.EncodeText(text))
}

// Answer returns the currently published answer.
func (e *Engine) Answer() string {
	return string(e.store.Get(ble.CurrentAnswerUUID))
}

// Identity returns the published player identity.
func (e *Engine) Identity() string {
	return string(e.store.Get(ble.PlayerIdentityUUID))
}

// Advertising reports whether the transport is advertising.
func (e *Engine) Advertising() bool { return e.active.Load() }

// Availability returns the current radio availability.
func (e *Engine) Availability() ble.Availability { return e.monitor.Current() }

// OnAdvertisingChange registers fn for advertising transitions. fn runs on
// the engine loop. The returned func unregisters it.
func (e *Engine) OnAdvertisingChange(fn func(advertising bool)) (cancel func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.nextObs++
	id := e.nextObs
	e.observers = append(e.observers, advertisingObserver{id: id, fn: fn})
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		e.observers = slices.DeleteFunc(e.observers, func(o advertisingObserver) bool {
			return o.id == id
		})
	}
}

func (e *Engine) setAdvertising(active bool) {
	e.advertising = active
	if e.active.Swap(active) == active {
		return
	}
	slog.Info("[peripheral] advertising state changed", "advertising", active)

	e.obsMu.Lock()
	obs := slices.Clone(e.observers)
	e.obsMu.Unlock()
	for _, o := range obs {
		o.fn(active)
	}
}

func (e *Engine) ensureService() bool {
	if e.serviceAdded {
		return true
	}
	if err := e.transport.AddService(e.schema, e.store.Values(), requestHandler{e}); err != nil {
		slog.Error("[peripheral] add service failed", "service", e.schema.Service(), "error", err)
		return false
	}
	e.serviceAdded = true
	slog.Info("[peripheral] service published", "service", e.schema.Service())
	return true
}

func (e *Engine) startAdvertising() {
	if !e.wantAdvertise || e.advertising || e.pending || e.retry != nil {
		return
	}
	if a := e.monitor.Current(); !a.IsAvailable() {
		slog.Info("[peripheral] advertising deferred until radio is available", "availability", a)
		return
	}
	if !e.ensureService() {
		e.scheduleRetry()
		return
	}

	e.advGen++
	gen := e.advGen
	e.pending = true
	e.transport.Advertise(e.schema.Service(), e.opts.LocalName, func(advertising bool, err error) {
		e.loop.Post(func() { e.handleAdvertiseState(gen, advertising, err) })
	})
}

func (e *Engine) handleAdvertiseState(gen uint64, advertising bool, err error) {
	if gen != e.advGen {
		// Superseded by a stop; make sure a late start does not linger.
		if advertising && !e.wantAdvertise {
			e.stopTransport()
		}
		return
	}
	e.pending = false

	if err != nil || !advertising {
		if err != nil {
			slog.Warn("[peripheral] advertising failed", "error", err, "attempt", e.attempt+1)
		}
		e.setAdvertising(false)
		e.scheduleRetry()
		return
	}
	e.attempt = 0
	e.setAdvertising(true)
}

func (e *Engine) scheduleRetry() {
	if !e.wantAdvertise || e.retry != nil || !e.monitor.Current().IsAvailable() {
		return
	}
	delay := backoffDelay(e.attempt, e.opts.RetryMax)
	e.attempt++
	e.retryGen++
	gen := e.retryGen
	slog.Info("[peripheral] advertise retry backoff", "attempt", e.attempt+1, "delay", delay)
	e.retry = e.afterFunc(delay, func() {
		e.loop.Post(func() { e.retryFired(gen) })
	})
}

func (e *Engine) retryFired(gen uint64) {
	if gen != e.retryGen || e.retry == nil {
		return
	}
	e.retry = nil
	e.startAdvertising()
}

func (e *Engine) cancelRetry() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.retryGen++
	e.attempt = 0
}

func (e *Engine) stop() {
	e.wantAdvertise = false
	e.cancelRetry()
	e.haltAdvertising()
}

// haltAdvertising stops the transport and invalidates any start in flight.
func (e *Engine) haltAdvertising() {
	e.advGen++
	wasActive := e.advertising || e.pending
	e.pending = false
	if wasActive {
		e.stopTransport()
	}
	e.setAdvertising(false)
}

func (e *Engine) stopTransport() {
	if err := e.transport.StopAdvertising(); err != nil {
		slog.Warn("[peripheral] stop advertising failed", "error", err)
	}
}

func (e *Engine) publish(char uuid.UUID, value []byte) {
	desc, ok := e.schema.Characteristic(char)
	if !ok {
		slog.Warn("[peripheral] publish to unknown characteristic", "characteristic", char)
		return
	}
	e.store.Set(char, value)
	if e.serviceAdded {
		if err := e.transport.SetValue(char, value); err != nil {
			slog.Warn("[peripheral] set value failed", "characteristic", desc.Name, "error", err)
		}
	}
	slog.Debug("[peripheral] value published", "characteristic", desc.Name, "bytes", len(value))

	if !desc.Access.Has(ble.AccessNotify) {
		return
	}
	for _, central := range e.subscribers[char] {
		if err := e.transport.UpdateValue(char, value, central); err != nil {
			slog.Warn("[peripheral] notify failed", "central", central, "characteristic", desc.Name, "error", err)
		}
	}
}

func (e *Engine) handleRead(req ble.ReadRequest) {
	desc, ok := e.schema.Characteristic(req.Characteristic)
	if !ok {
		e.transport.RespondToRead(req, nil, ble.ATTAttributeNotFound)
		return
	}
	if !desc.Access.Has(ble.AccessRead) {
		e.transport.RespondToRead(req, nil, ble.ATTReadNotPermitted)
		return
	}
	value, err := protocol.ReadAt(e.store.Get(req.Characteristic), req.Offset)
	if err != nil {
		slog.Debug("[peripheral] read rejected", "central", req.Central, "characteristic", desc.Name, "error", err)
		e.transport.RespondToRead(req, nil, ble.ATTInvalidOffset)
		return
	}
	e.transport.RespondToRead(req, value, ble.ATTSuccess)
}

func (e *Engine) handleWrite(req ble.WriteRequest) {
	desc, ok := e.schema.Characteristic(req.Characteristic)
	if !ok {
		e.transport.RespondToWrite(req, ble.ATTAttributeNotFound)
		return
	}
	if !desc.Access.Has(ble.AccessWrite) {
		e.transport.RespondToWrite(req, ble.ATTWriteNotPermitted)
		return
	}
	value, err := protocol.WriteAt(e.store.Get(req.Characteristic), req.Offset, req.Value)
	if err != nil {
		e.transport.RespondToWrite(req, ble.ATTInvalidOffset)
		return
	}
	if len(value) > protocol.MaxValueBytes {
		e.transport.RespondToWrite(req, ble.ATTInvalidLength)
		return
	}
	e.transport.RespondToWrite(req, ble.ATTSuccess)
	slog.Info("[peripheral] value written by central", "central", req.Central, "characteristic", desc.Name)
	e.publish(req.Characteristic, value)
}

func (e *Engine) handleSubscribe(central ble.CentralID, char uuid.UUID) {
	desc, ok := e.schema.Characteristic(char)
	if !ok || !desc.Access.Has(ble.AccessNotify) {
		slog.Debug("[peripheral] ignoring subscription", "central", central, "characteristic", char)
		return
	}
	if slices.Contains(e.subscribers[char], central) {
		return
	}
	e.subscribers[char] = append(e.subscribers[char], central)
	slog.Info("[peripheral] central subscribed", "central", central, "characteristic", desc.Name)
}

func (e *Engine) handleUnsubscribe(central ble.CentralID, char uuid.UUID) {
	subs := e.subscribers[char]
	i := slices.Index(subs, central)
	if i < 0 {
		return
	}
	e.subscribers[char] = slices.Delete(subs, i, i+1)
	slog.Info("[peripheral] central unsubscribed", "central", central, "characteristic", char)
}

func (e *Engine) availabilityChanged(a ble.Availability) {
	if a.IsAvailable() {
		e.startAdvertising()
		return
	}
	// Retry timers are pointless without a radio; availability drives resume.
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
		e.retryGen++
	}
	if e.advertising || e.pending {
		slog.Warn("[peripheral] radio lost, advertising stopped", "availability", a)
	}
	e.haltAdvertising()
	clear(e.subscribers)
}

func (e *Engine) shutdown() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	if e.advertising || e.pending {
		e.stopTransport()
	}
	e.pending = false
	e.setAdvertising(false)
}

// requestHandler moves transport requests onto the engine loop.
type requestHandler struct{ e *Engine }

func (h requestHandler) ReadRequested(req ble.ReadRequest) {
	h.e.loop.Post(func() { h.e.handleRead(req) })
}

func (h requestHandler) WriteRequested(req ble.WriteRequest) {
	h.e.loop.Post(func() { h.e.handleWrite(req) })
}

func (h requestHandler) Subscribed(central ble.CentralID, char uuid.UUID) {
	h.e.loop.Post(func() { h.e.handleSubscribe(central, char) })
}

func (h requestHandler) Unsubscribed(central ble.CentralID, char uuid.UUID) {
	h.e.loop.Post(func() { h.e.handleUnsubscribe(central, char) })
}

// availabilityObserver adapts monitor callbacks onto the engine loop.
type availabilityObserver struct{ e *Engine }

func (o availabilityObserver) AvailabilityChanged(a ble.Availability) {
	o.e.loop.Post(func() { o.e.availabilityChanged(a) })
}

func (o availabilityObserver) UnavailabilityCauseChanged(cause ble.Cause) {
	slog.Info("[peripheral] unavailability cause changed", "cause", cause)
}
