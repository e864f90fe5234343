//go:build !darwin

package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// TinyGoPeripheral implements Peripheral on top of tinygo-org/bluetooth.
//
// The stack answers reads itself from the value last written to the
// characteristic handle, so SetValue keeps that value current and
// ReadRequested is never delivered. tinygo does not surface subscriptions
// either: writing a handle notifies every subscribed central, so SetValue
// is also the notification path. Writes are accepted by the stack before
// they are seen here.
type TinyGoPeripheral struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement

	mu      sync.Mutex
	power   PowerState
	powerCb func(PowerState)
	handles map[uuid.UUID]*bluetooth.Characteristic

	nextReq atomic.Uint64
}

// NewTinyGoPeripheral creates a Peripheral on the default adapter. Call
// Enable before use.
func NewTinyGoPeripheral() (*TinyGoPeripheral, error) {
	return &TinyGoPeripheral{
		adapter: bluetooth.DefaultAdapter,
		handles: make(map[uuid.UUID]*bluetooth.Characteristic),
	}, nil
}

// Enable powers up the adapter and reports the resulting power state.
func (p *TinyGoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		p.setPower(PowerStateUnsupported)
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		slog.Info("[BLE] central connection changed", "central", device.Address.String(), "connected", connected)
	})
	p.setPower(PowerStatePoweredOn)
	return nil
}

func (p *TinyGoPeripheral) setPower(s PowerState) {
	p.mu.Lock()
	changed := p.power != s
	p.power = s
	cb := p.powerCb
	p.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

func (p *TinyGoPeripheral) PowerState() PowerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.power
}

func (p *TinyGoPeripheral) OnPowerStateChange(callback func(PowerState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powerCb = callback
}

func (p *TinyGoPeripheral) AddService(schema *Schema, values map[uuid.UUID][]byte, handler RequestHandler) error {
	svc, err := toTinyGoUUID(schema.Service())
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	service := &bluetooth.Service{UUID: svc}
	handles := make(map[uuid.UUID]*bluetooth.Characteristic)
	for _, desc := range schema.Characteristics() {
		id, err := toTinyGoUUID(desc.ID)
		if err != nil {
			return fmt.Errorf("ble: parse characteristic UUID: %w", err)
		}
		handle := new(bluetooth.Characteristic)
		handles[desc.ID] = handle

		cfg := bluetooth.CharacteristicConfig{
			Handle: handle,
			UUID:   id,
			Value:  values[desc.ID],
			Flags:  tinyGoFlags(desc.Access),
		}
		if desc.Access.Has(AccessWrite) {
			char := desc.ID
			cfg.WriteEvent = func(client bluetooth.Connection, offset int, value []byte) {
				v := make([]byte, len(value))
				copy(v, value)
				handler.WriteRequested(WriteRequest{
					ID:             p.nextReq.Add(1),
					Central:        CentralID(fmt.Sprint(client)),
					Characteristic: char,
					Offset:         offset,
					Value:          v,
				})
			}
		}
		service.Characteristics = append(service.Characteristics, cfg)
	}

	if err := p.adapter.AddService(service); err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	p.mu.Lock()
	p.handles = handles
	p.mu.Unlock()
	return nil
}

func (p *TinyGoPeripheral) Advertise(service uuid.UUID, localName string, onStateChange func(bool, error)) {
	svc, err := toTinyGoUUID(service)
	if err != nil {
		go onStateChange(false, fmt.Errorf("ble: parse service UUID: %w", err))
		return
	}

	go func() {
		adv := p.adapter.DefaultAdvertisement()
		err := adv.Configure(bluetooth.AdvertisementOptions{
			LocalName:    localName,
			ServiceUUIDs: []bluetooth.UUID{svc},
		})
		if err != nil {
			onStateChange(false, fmt.Errorf("ble: configure advertisement: %w", err))
			return
		}
		if err := adv.Start(); err != nil {
			onStateChange(false, fmt.Errorf("ble: start advertising: %w", err))
			return
		}
		p.mu.Lock()
		p.adv = adv
		p.mu.Unlock()
		onStateChange(true, nil)
	}()
}

func (p *TinyGoPeripheral) StopAdvertising() error {
	p.mu.Lock()
	adv := p.adv
	p.adv = nil
	p.mu.Unlock()
	if adv == nil {
		return nil
	}
	if err := adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertising: %w", err)
	}
	return nil
}

// RespondToRead is never needed: the stack serves reads itself.
func (p *TinyGoPeripheral) RespondToRead(req ReadRequest, _ []byte, code ATTError) {
	slog.Debug("[BLE] read served by stack", "central", req.Central, "code", code)
}

// RespondToWrite can only log a rejection; the stack has already accepted
// the write by the time it is delivered.
func (p *TinyGoPeripheral) RespondToWrite(req WriteRequest, code ATTError) {
	if code != ATTSuccess {
		slog.Warn("[BLE] write rejected after the stack accepted it",
			"central", req.Central, "characteristic", req.Characteristic, "code", code)
	}
}

// SetValue updates the value the stack serves and notifies its subscribers.
func (p *TinyGoPeripheral) SetValue(char uuid.UUID, value []byte) error {
	p.mu.Lock()
	handle, ok := p.handles[char]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: %s: %w", char, ErrCharacteristicNotFound)
	}
	if _, err := handle.Write(value); err != nil {
		return fmt.Errorf("ble: set value %s: %w", char, err)
	}
	return nil
}

// UpdateValue is unsupported; no subscriptions are ever reported, so the
// engine never targets a single central here.
func (p *TinyGoPeripheral) UpdateValue(char uuid.UUID, _ []byte, central CentralID) error {
	return fmt.Errorf("ble: notify %s on %s: per-central notifications unsupported", central, char)
}

// Compile-time check that TinyGoPeripheral implements Peripheral.
var _ Peripheral = (*TinyGoPeripheral)(nil)

func tinyGoFlags(a Access) bluetooth.CharacteristicPermissions {
	var flags bluetooth.CharacteristicPermissions
	if a.Has(AccessRead) {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if a.Has(AccessWrite) {
		flags |= bluetooth.CharacteristicWritePermission
	}
	if a.Has(AccessNotify) {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	return flags
}
