// Package central implements the quiz host role: it scans for quiz players,
// connects to them, reads their identity, follows their answers and keeps
// the roster of players current.
package central

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/quizlink/internal/ble"
	"github.com/chaz8081/quizlink/internal/ble/protocol"
	"github.com/chaz8081/quizlink/internal/loop"
	"github.com/chaz8081/quizlink/internal/roster"
)

// DefaultScanDuration is how long a discovery window lasts when the caller
// does not pick one.
const DefaultScanDuration = 10 * time.Second

// Options configures the engine.
type Options struct {
	ScanDuration time.Duration // discovery window used when StartDiscovery gets 0
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{ScanDuration: DefaultScanDuration}
}

type timer interface {
	Stop() bool
}

// Engine is the scanning state machine. Public methods only post work to
// the engine loop and return immediately; results surface through the
// roster and the discovery observers.
type Engine struct {
	transport ble.Central
	monitor   *ble.Monitor
	schema    *ble.Schema
	roster    *roster.Roster
	loop      *loop.Loop
	opts      Options

	afterFunc func(time.Duration, func()) timer

	// Owned by the loop.
	wantScan bool
	scanning bool
	timer    timer
	timerGen uint64

	discovering atomic.Bool

	obsMu     sync.Mutex
	nextObs   uint64
	observers []discoveryObserver
}

type discoveryObserver struct {
	id uint64
	fn func(active bool)
}

// New creates an engine on top of the transport. Availability is taken from
// monitor, which the caller keeps fed with the transport's power state.
func New(transport ble.Central, monitor *ble.Monitor, opts Options) *Engine {
	if opts.ScanDuration <= 0 {
		opts.ScanDuration = DefaultScanDuration
	}
	e := &Engine{
		transport: transport,
		monitor:   monitor,
		schema:    ble.QuizPlayerSchema(false),
		roster:    roster.New(),
		loop:      loop.New(),
		opts:      opts,
		afterFunc: func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) },
	}
	transport.OnDisconnect(func(peer ble.PeerID, err error) {
		e.loop.Post(func() { e.handleDisconnect(peer, err) })
	})
	return e
}

// Run drives the engine until ctx is done, then stops scanning and cancels
// every connection it holds.
func (e *Engine) Run(ctx context.Context) {
	sub := e.monitor.Subscribe(availabilityObserver{e})
	defer e.monitor.Unsubscribe(sub)
	e.loop.Post(func() { e.availabilityChanged(e.monitor.Current()) })

	_ = e.loop.Run(ctx)
	e.shutdown()
}

// StartDiscovery opens a discovery window of duration d (the configured
// default when d is 0). Discovery is reported active right away even if the
// radio is not ready yet; scanning begins once it is.
func (e *Engine) StartDiscovery(d time.Duration) {
	if d <= 0 {
		d = e.opts.ScanDuration
	}
	e.loop.Post(func() { e.startDiscovery(d) })
}

// StopDiscovery ends the discovery window. Already discovered players stay.
func (e *Engine) StopDiscovery() {
	e.loop.Post(e.stopDiscovery)
}

// ResetAnswers clears every player's answer locally for a new round.
func (e *Engine) ResetAnswers() {
	e.loop.Post(func() {
		e.roster.UpdateAll(func(p *roster.Peer) { p.Answer = nil })
		slog.Info("[central] answers reset", "players", e.roster.Len())
	})
}

// Discovering reports whether a discovery window is open.
func (e *Engine) Discovering() bool { return e.discovering.Load() }

// Roster returns the live roster. Callers may snapshot it or observe it.
func (e *Engine) Roster() *roster.Roster { return e.roster }

// Players returns a snapshot of the roster.
func (e *Engine) Players() []roster.Peer { return e.roster.Snapshot() }

// Availability returns the current radio availability.
func (e *Engine) Availability() ble.Availability { return e.monitor.Current() }

// OnDiscoveryChange registers fn for discovery-active transitions. fn runs
// on the engine loop. The returned func unregisters it.
func (e *Engine) OnDiscoveryChange(fn func(active bool)) (cancel func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.nextObs++
	id := e.nextObs
	e.observers = append(e.observers, discoveryObserver{id: id, fn: fn})
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		e.observers = slices.DeleteFunc(e.observers, func(o discoveryObserver) bool {
			return o.id == id
		})
	}
}

func (e *Engine) setDiscovering(active bool) {
	if e.discovering.Swap(active) == active {
		return
	}
	slog.Info("[central] discovery state changed", "active", active)

	e.obsMu.Lock()
	obs := slices.Clone(e.observers)
	e.obsMu.Unlock()
	for _, o := range obs {
		o.fn(active)
	}
}

func (e *Engine) startDiscovery(d time.Duration) {
	e.wantScan = true
	e.setDiscovering(true)
	if e.timer == nil {
		e.armTimer(d)
	}
	e.startScan()
}

func (e *Engine) stopDiscovery() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// Any fire already queued from the old timer is now stale.
	e.timerGen++
	e.wantScan = false
	e.stopScan()
	e.setDiscovering(false)
}

func (e *Engine) armTimer(d time.Duration) {
	e.timerGen++
	gen := e.timerGen
	e.timer = e.afterFunc(d, func() {
		e.loop.Post(func() { e.scanTimedOut(gen) })
	})
}

func (e *Engine) scanTimedOut(gen uint64) {
	if gen != e.timerGen || e.timer == nil {
		return
	}
	e.timer = nil
	slog.Info("[central] discovery window elapsed")
	e.stopDiscovery()
}

func (e *Engine) startScan() {
	if !e.wantScan || e.scanning {
		return
	}
	if a := e.monitor.Current(); !a.IsAvailable() {
		slog.Info("[central] scan deferred until radio is available", "availability", a)
		return
	}
	err := e.transport.Scan(e.schema.Service(), func(adv ble.Advertisement) {
		e.loop.Post(func() { e.handleAdvertisement(adv) })
	})
	if err != nil {
		slog.Warn("[central] scan failed to start", "error", err)
		return
	}
	e.scanning = true
	slog.Info("[central] scanning", "service", e.schema.Service())
}

func (e *Engine) stopScan() {
	if !e.scanning {
		return
	}
	e.scanning = false
	if err := e.transport.StopScan(); err != nil {
		slog.Warn("[central] stop scan failed", "error", err)
	}
	slog.Info("[central] scanning stopped")
}

func (e *Engine) handleAdvertisement(adv ble.Advertisement) {
	if !e.scanning || !adv.HasService(e.schema.Service()) {
		return
	}
	if e.roster.Contains(adv.Peer) {
		return
	}

	e.roster.Upsert(adv.Peer, func(p *roster.Peer) {
		p.State = roster.StateDiscovered
		p.LocalName = adv.LocalName
	})
	slog.Info("[central] player discovered", "peer", adv.Peer, "name", adv.LocalName, "rssi", adv.RSSI)

	peer := adv.Peer
	e.transport.Connect(peer, func(err error) {
		e.loop.Post(func() { e.handleConnect(peer, err) })
	})
}

func (e *Engine) handleConnect(peer ble.PeerID, err error) {
	if err != nil {
		slog.Warn("[central] connect failed", "peer", peer, "error", fmt.Errorf("%w: %w", ble.ErrConnectFailed, err))
		e.roster.Remove(peer)
		return
	}
	// Dropped while the connect was pending: the link is unwanted.
	if !e.roster.Contains(peer) {
		slog.Info("[central] dropping late connection", "peer", peer)
		e.cancelConnection(peer)
		return
	}

	e.roster.Upsert(peer, func(p *roster.Peer) { p.State = roster.StateConnected })
	slog.Info("[central] player connected", "peer", peer)

	svc := e.schema.Service()
	e.transport.DiscoverServices(peer, []uuid.UUID{svc}, func(found []uuid.UUID, err error) {
		e.loop.Post(func() { e.handleServices(peer, found, err) })
	})
}

func (e *Engine) handleServices(peer ble.PeerID, found []uuid.UUID, err error) {
	if !e.roster.Contains(peer) {
		return
	}
	svc := e.schema.Service()
	if err != nil || !slices.Contains(found, svc) {
		// The peer stays connected without identity or answer.
		slog.Warn("[central] degraded player", "peer", peer, "error", joinCause(ble.ErrServiceNotFound, err))
		return
	}

	e.transport.DiscoverCharacteristics(peer, svc, e.schema.CharacteristicIDs(), func(found []uuid.UUID, err error) {
		e.loop.Post(func() { e.handleCharacteristics(peer, found, err) })
	})
}

func (e *Engine) handleCharacteristics(peer ble.PeerID, found []uuid.UUID, err error) {
	if !e.roster.Contains(peer) {
		return
	}
	if err != nil {
		slog.Warn("[central] degraded player", "peer", peer, "error", joinCause(ble.ErrCharacteristicNotFound, err))
		return
	}

	for _, c := range e.schema.Characteristics() {
		if !slices.Contains(found, c.ID) {
			slog.Warn("[central] degraded player", "peer", peer, "characteristic", c.Name,
				"error", ble.ErrCharacteristicNotFound)
			continue
		}
		char := c.ID
		if c.Access.Has(ble.AccessNotify) {
			e.transport.SetNotify(peer, char, true,
				func(value []byte) {
					e.loop.Post(func() { e.handleValue(peer, char, value, nil) })
				},
				func(err error) {
					if err != nil {
						slog.Warn("[central] enable notifications failed", "peer", peer, "characteristic", c.Name, "error", err)
					}
				})
		}
		if c.Access.Has(ble.AccessRead) {
			e.transport.ReadValue(peer, char, func(value []byte, err error) {
				e.loop.Post(func() { e.handleValue(peer, char, value, err) })
			})
		}
	}
}

func (e *Engine) handleValue(peer ble.PeerID, char uuid.UUID, value []byte, err error) {
	if err != nil {
		slog.Warn("[central] read failed", "peer", peer, "characteristic", char, "error", err)
		return
	}
	text, ok := protocol.DecodeText(value)
	if !ok {
		slog.Warn("[central] dropping non UTF-8 value", "peer", peer, "characteristic", char)
		return
	}

	// A value can race ahead of the discovery event; the peer is created then.
	known := e.roster.Contains(peer)
	e.roster.Upsert(peer, func(p *roster.Peer) {
		if !known {
			p.State = roster.StateConnected
		}
		switch char {
		case ble.PlayerIdentityUUID:
			p.Identity = &text
		case ble.CurrentAnswerUUID:
			p.Answer = &text
		}
	})
	if !known {
		slog.Debug("[central] value arrived before discovery", "peer", peer)
	}
	slog.Debug("[central] value updated", "peer", peer, "characteristic", char, "value", text)
}

func (e *Engine) handleDisconnect(peer ble.PeerID, err error) {
	if !e.roster.Remove(peer) {
		return
	}
	if err != nil {
		slog.Warn("[central] player disconnected", "peer", peer, "error", fmt.Errorf("%w: %w", ble.ErrDisconnected, err))
		return
	}
	slog.Info("[central] player disconnected", "peer", peer)
}

func (e *Engine) availabilityChanged(a ble.Availability) {
	if a.IsAvailable() {
		e.startScan()
		return
	}
	if e.scanning {
		e.stopScan()
	}
	// Connections do not survive the radio going away.
	for _, p := range e.roster.Snapshot() {
		e.cancelConnection(p.ID)
	}
	if e.roster.Clear() {
		slog.Warn("[central] radio lost, roster cleared", "availability", a)
	}
}

func (e *Engine) shutdown() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.stopScan()
	for _, p := range e.roster.Snapshot() {
		e.cancelConnection(p.ID)
	}
	e.setDiscovering(false)
}

func (e *Engine) cancelConnection(peer ble.PeerID) {
	if err := e.transport.CancelConnection(peer); err != nil {
		slog.Warn("[central] cancel connection failed", "peer", peer, "error", err)
	}
}

// joinCause wraps a transport error under the engine sentinel.
func joinCause(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// availabilityObserver adapts monitor callbacks onto the engine loop.
type availabilityObserver struct{ e *Engine }

func (o availabilityObserver) AvailabilityChanged(a ble.Availability) {
	o.e.loop.Post(func() { o.e.availabilityChanged(a) })
}

func (o availabilityObserver) UnavailabilityCauseChanged(cause ble.Cause) {
	slog.Info("[central] unavailability cause changed", "cause", cause)
}
