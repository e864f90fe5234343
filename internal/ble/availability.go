package ble

import (
	"fmt"
	"log/slog"
	"sync"
)

// PowerState is the radio power state as reported by the transport.
type PowerState int

const (
	PowerStateUnknown PowerState = iota
	PowerStateResetting
	PowerStateUnsupported
	PowerStateUnauthorized
	PowerStatePoweredOff
	PowerStatePoweredOn
)

func (s PowerState) String() string {
	switch s {
	case PowerStateResetting:
		return "resetting"
	case PowerStateUnsupported:
		return "unsupported"
	case PowerStateUnauthorized:
		return "unauthorized"
	case PowerStatePoweredOff:
		return "powered-off"
	case PowerStatePoweredOn:
		return "powered-on"
	default:
		return "unknown"
	}
}

// Cause explains why the radio is unavailable.
type Cause int

const (
	// CauseUnknown doubles as a wildcard in Availability.Equal.
	CauseUnknown Cause = iota
	CauseResetting
	CauseUnsupported
	CauseUnauthorized
	CausePoweredOff
)

func (c Cause) String() string {
	switch c {
	case CauseResetting:
		return "resetting"
	case CauseUnsupported:
		return "unsupported"
	case CauseUnauthorized:
		return "unauthorized"
	case CausePoweredOff:
		return "powered-off"
	default:
		return "unknown"
	}
}

// Availability is either Available or Unavailable with a Cause.
// The zero value is Unavailable(CauseUnknown).
type Availability struct {
	available bool
	cause     Cause
}

// Available is the availability of a powered-on radio.
var Available = Availability{available: true}

// Unavailable returns an unavailable Availability with the given cause.
func Unavailable(cause Cause) Availability {
	return Availability{cause: cause}
}

// AvailabilityFor maps a power state to an Availability.
func AvailabilityFor(s PowerState) Availability {
	switch s {
	case PowerStatePoweredOn:
		return Available
	case PowerStateResetting:
		return Unavailable(CauseResetting)
	case PowerStateUnsupported:
		return Unavailable(CauseUnsupported)
	case PowerStateUnauthorized:
		return Unavailable(CauseUnauthorized)
	case PowerStatePoweredOff:
		return Unavailable(CausePoweredOff)
	default:
		return Unavailable(CauseUnknown)
	}
}

// IsAvailable reports whether the radio is usable.
func (a Availability) IsAvailable() bool { return a.available }

// Cause returns the unavailability cause. ok is false when available.
func (a Availability) Cause() (cause Cause, ok bool) {
	if a.available {
		return CauseUnknown, false
	}
	return a.cause, true
}

// Equal is the relaxed comparison: Unavailable(CauseUnknown) matches any
// Unavailable value in either direction. Use == for exact comparison.
func (a Availability) Equal(b Availability) bool {
	if a.available || b.available {
		return a.available == b.available
	}
	if a.cause == CauseUnknown || b.cause == CauseUnknown {
		return true
	}
	return a.cause == b.cause
}

func (a Availability) String() string {
	if a.available {
		return "available"
	}
	return fmt.Sprintf("unavailable(%s)", a.cause)
}

// AvailabilityObserver is told about availability transitions.
type AvailabilityObserver interface {
	AvailabilityChanged(a Availability)
	UnavailabilityCauseChanged(cause Cause)
}

// Subscription is the handle returned by Monitor.Subscribe.
type Subscription uint64

// Monitor mirrors the radio power state as an Availability and tells
// subscribed observers when it changes. It holds no retry logic.
type Monitor struct {
	mu        sync.Mutex
	current   Availability
	nextID    Subscription
	order     []Subscription
	observers map[Subscription]AvailabilityObserver

	// deliverMu keeps deliveries from concurrent Update calls from interleaving.
	deliverMu sync.Mutex
}

// NewMonitor creates a Monitor seeded with the given power state.
func NewMonitor(initial PowerState) *Monitor {
	return &Monitor{
		current:   AvailabilityFor(initial),
		observers: make(map[Subscription]AvailabilityObserver),
	}
}

// Current returns the latest Availability.
func (m *Monitor) Current() Availability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers an observer. The caller must Unsubscribe on teardown;
// the monitor never keeps an observer alive past that.
func (m *Monitor) Subscribe(o AvailabilityObserver) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.order = append(m.order, id)
	m.observers[id] = o
	return id
}

// Unsubscribe drops an observer. Unknown handles are ignored.
func (m *Monitor) Unsubscribe(id Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.observers[id]; !ok {
		return
	}
	delete(m.observers, id)
	for i, s := range m.order {
		if s == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Update recomputes availability from a power state report and notifies
// observers synchronously, in subscription order, when it changed.
func (m *Monitor) Update(s PowerState) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	next := AvailabilityFor(s)

	m.mu.Lock()
	prev := m.current
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.current = next
	order := make([]Subscription, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	slog.Info("[monitor] availability changed", "from", prev, "to", next, "power_state", s)

	causeOnly := !prev.available && !next.available
	for _, id := range order {
		o, ok := m.observer(id)
		if !ok {
			continue
		}
		o.AvailabilityChanged(next)
		if causeOnly {
			if o, ok := m.observer(id); ok {
				o.UnavailabilityCauseChanged(next.cause)
			}
		}
	}
}

// observer returns the observer for id if it is still subscribed.
func (m *Monitor) observer(id Subscription) (AvailabilityObserver, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.observers[id]
	return o, ok
}
