package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// TinyGoCentral implements Central on top of tinygo-org/bluetooth.
// tinygo calls block, so every asynchronous operation runs on its own
// goroutine and reports through the caller's callback.
//
// On macOS the peer id is a CoreBluetooth UUID, elsewhere it is the MAC.
type TinyGoCentral struct {
	adapter *bluetooth.Adapter

	mu           sync.Mutex
	power        PowerState
	powerCb      func(PowerState)
	disconnectCb func(PeerID, error)
	addresses    map[PeerID]bluetooth.Address
	peers        map[PeerID]*tinyGoPeer
}

// tinyGoPeer caches what has been discovered on one connection.
type tinyGoPeer struct {
	device   bluetooth.Device
	services map[uuid.UUID]bluetooth.DeviceService
	chars    map[uuid.UUID]bluetooth.DeviceCharacteristic
}

// NewTinyGoCentral creates a Central on the default adapter. Call Enable
// before use.
func NewTinyGoCentral() *TinyGoCentral {
	return &TinyGoCentral{
		adapter:   bluetooth.DefaultAdapter,
		addresses: make(map[PeerID]bluetooth.Address),
		peers:     make(map[PeerID]*tinyGoPeer),
	}
}

// Enable powers up the adapter. tinygo exposes no power state, so success
// is reported as powered on and failure as unsupported.
func (c *TinyGoCentral) Enable() error {
	err := c.adapter.Enable()
	if err != nil {
		c.setPower(PowerStateUnsupported)
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// On macOS, tinygo/bluetooth fires this callback (with connected=false)
	// when a peripheral disconnects, via DidDisconnectPeripheral.
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		peer := PeerID(device.Address.String())
		c.mu.Lock()
		_, known := c.peers[peer]
		delete(c.peers, peer)
		cb := c.disconnectCb
		c.mu.Unlock()
		if known && cb != nil {
			cb(peer, nil)
		}
	})

	c.setPower(PowerStatePoweredOn)
	return nil
}

func (c *TinyGoCentral) setPower(s PowerState) {
	c.mu.Lock()
	changed := c.power != s
	c.power = s
	cb := c.powerCb
	c.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

func (c *TinyGoCentral) PowerState() PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power
}

func (c *TinyGoCentral) OnPowerStateChange(callback func(PowerState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerCb = callback
}

func (c *TinyGoCentral) OnDisconnect(callback func(PeerID, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = callback
}

func (c *TinyGoCentral) Scan(service uuid.UUID, onAdvertisement func(Advertisement)) error {
	svc, err := toTinyGoUUID(service)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	err = startBlocking(scanStartGrace, func() error {
		return c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(svc) {
				return
			}
			peer := PeerID(result.Address.String())
			c.mu.Lock()
			c.addresses[peer] = result.Address
			c.mu.Unlock()
			onAdvertisement(Advertisement{
				Peer:      peer,
				LocalName: result.LocalName(),
				RSSI:      int(result.RSSI),
				Services:  []uuid.UUID{service},
			})
		})
	}, func(err error) {
		slog.Warn("[BLE] scan ended with error", "error", err)
	})
	if err != nil {
		return fmt.Errorf("ble: start scan: %w", err)
	}
	return nil
}

// scanStartGrace is how long Scan waits for the adapter to reject a scan
// (already scanning, adapter gone) before assuming it is running.
const scanStartGrace = 100 * time.Millisecond

// startBlocking runs a blocking call on its own goroutine. An error it
// returns within grace is returned to the caller; a later one goes to onLate.
func startBlocking(grace time.Duration, run func() error, onLate func(error)) error {
	errCh := make(chan error, 1)
	go func() { errCh <- run() }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(grace):
	}

	go func() {
		if err := <-errCh; err != nil {
			onLate(err)
		}
	}()
	return nil
}

func (c *TinyGoCentral) StopScan() error {
	if err := c.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

func (c *TinyGoCentral) Connect(peer PeerID, onResult func(error)) {
	c.mu.Lock()
	addr, ok := c.addresses[peer]
	c.mu.Unlock()
	if !ok {
		go onResult(fmt.Errorf("ble: connect to %s: peer never seen", peer))
		return
	}

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	go func() {
		device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			onResult(fmt.Errorf("ble: connect to %s: %w", peer, err))
			return
		}
		c.mu.Lock()
		c.peers[peer] = &tinyGoPeer{
			device:   device,
			services: make(map[uuid.UUID]bluetooth.DeviceService),
			chars:    make(map[uuid.UUID]bluetooth.DeviceCharacteristic),
		}
		c.mu.Unlock()
		onResult(nil)
	}()
}

func (c *TinyGoCentral) CancelConnection(peer PeerID) error {
	c.mu.Lock()
	p, ok := c.peers[peer]
	delete(c.peers, peer)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := p.device.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", peer, err)
	}
	return nil
}

func (c *TinyGoCentral) peer(id PeerID) (*tinyGoPeer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	if !ok {
		return nil, fmt.Errorf("ble: %s: %w", id, ErrDisconnected)
	}
	return p, nil
}

func (c *TinyGoCentral) DiscoverServices(peer PeerID, services []uuid.UUID, onResult func([]uuid.UUID, error)) {
	go func() {
		p, err := c.peer(peer)
		if err != nil {
			onResult(nil, err)
			return
		}
		filter, err := toTinyGoUUIDs(services)
		if err != nil {
			onResult(nil, err)
			return
		}
		svcs, err := p.device.DiscoverServices(filter)
		if err != nil {
			onResult(nil, fmt.Errorf("ble: discover services: %w", err))
			return
		}

		var found []uuid.UUID
		c.mu.Lock()
		for _, s := range svcs {
			id, err := fromTinyGoUUID(s.UUID())
			if err != nil {
				continue
			}
			p.services[id] = s
			found = append(found, id)
		}
		c.mu.Unlock()
		onResult(found, nil)
	}()
}

func (c *TinyGoCentral) DiscoverCharacteristics(peer PeerID, service uuid.UUID, chars []uuid.UUID, onResult func([]uuid.UUID, error)) {
	go func() {
		p, err := c.peer(peer)
		if err != nil {
			onResult(nil, err)
			return
		}
		c.mu.Lock()
		svc, ok := p.services[service]
		c.mu.Unlock()
		if !ok {
			onResult(nil, fmt.Errorf("ble: service %s: %w", service, ErrServiceNotFound))
			return
		}
		filter, err := toTinyGoUUIDs(chars)
		if err != nil {
			onResult(nil, err)
			return
		}
		discovered, err := svc.DiscoverCharacteristics(filter)
		if err != nil {
			onResult(nil, fmt.Errorf("ble: discover characteristics: %w", err))
			return
		}

		var found []uuid.UUID
		c.mu.Lock()
		for _, ch := range discovered {
			id, err := fromTinyGoUUID(ch.UUID())
			if err != nil {
				continue
			}
			p.chars[id] = ch
			found = append(found, id)
		}
		c.mu.Unlock()
		onResult(found, nil)
	}()
}

func (c *TinyGoCentral) characteristic(peer PeerID, char uuid.UUID) (bluetooth.DeviceCharacteristic, error) {
	p, err := c.peer(peer)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := p.chars[char]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: %s: %w", char, ErrCharacteristicNotFound)
	}
	return ch, nil
}

func (c *TinyGoCentral) ReadValue(peer PeerID, char uuid.UUID, onResult func([]byte, error)) {
	go func() {
		ch, err := c.characteristic(peer, char)
		if err != nil {
			onResult(nil, err)
			return
		}
		buf := make([]byte, 512)
		n, err := ch.Read(buf)
		if err != nil {
			onResult(nil, fmt.Errorf("ble: read %s: %w", char, err))
			return
		}
		onResult(buf[:n], nil)
	}()
}

func (c *TinyGoCentral) SetNotify(peer PeerID, char uuid.UUID, enabled bool, onValue func([]byte), onResult func(error)) {
	go func() {
		ch, err := c.characteristic(peer, char)
		if err != nil {
			onResult(err)
			return
		}
		var cb func([]byte)
		if enabled {
			cb = func(buf []byte) {
				value := make([]byte, len(buf))
				copy(value, buf)
				onValue(value)
			}
		}
		if err := ch.EnableNotifications(cb); err != nil {
			onResult(fmt.Errorf("ble: notifications on %s: %w", char, err))
			return
		}
		onResult(nil)
	}()
}

// Compile-time check that TinyGoCentral implements Central.
var _ Central = (*TinyGoCentral)(nil)

func toTinyGoUUID(id uuid.UUID) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(id.String())
}

func toTinyGoUUIDs(ids []uuid.UUID) ([]bluetooth.UUID, error) {
	out := make([]bluetooth.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := toTinyGoUUID(id)
		if err != nil {
			return nil, fmt.Errorf("ble: parse UUID %s: %w", id, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func fromTinyGoUUID(u bluetooth.UUID) (uuid.UUID, error) {
	return uuid.Parse(u.String())
}
