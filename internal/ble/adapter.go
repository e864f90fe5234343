// Package ble holds the pieces shared by both quiz roles: radio availability,
// the quiz player GATT schema, and the transport contracts the engines drive.
// The radio stack itself sits behind the Central and Peripheral interfaces.
package ble

import "github.com/google/uuid"

// PeerID identifies a remote peripheral for the lifetime of one connection.
// It is the only valid equality key for a remote peer.
type PeerID string

// CentralID identifies a remote central connected to the local peripheral.
type CentralID string

// Advertisement is one matching advertisement sighting.
type Advertisement struct {
	Peer      PeerID
	LocalName string
	RSSI      int
	Services  []uuid.UUID
}

// HasService reports whether the advertisement lists the given service.
func (a Advertisement) HasService(id uuid.UUID) bool {
	for _, s := range a.Services {
		if s == id {
			return true
		}
	}
	return false
}

// Central abstracts the scanning side of the radio for testing.
// Every asynchronous result is reported through the callback passed to the
// call that started it. Callbacks may run on any goroutine.
type Central interface {
	// PowerState returns the current radio power state.
	PowerState() PowerState
	// OnPowerStateChange registers the callback for power state reports.
	OnPowerStateChange(callback func(PowerState))
	// OnDisconnect registers the callback invoked when a connection drops.
	// err is nil for a clean disconnect.
	OnDisconnect(callback func(peer PeerID, err error))

	// Scan starts reporting advertisements that list the given service.
	Scan(service uuid.UUID, onAdvertisement func(Advertisement)) error
	// StopScan halts an active scan.
	StopScan() error

	// Connect establishes a connection to a previously seen peer.
	Connect(peer PeerID, onResult func(err error))
	// CancelConnection tears down a pending or established connection.
	CancelConnection(peer PeerID) error

	// DiscoverServices looks up the given services on a connected peer.
	DiscoverServices(peer PeerID, services []uuid.UUID, onResult func(found []uuid.UUID, err error))
	// DiscoverCharacteristics looks up characteristics within a service.
	DiscoverCharacteristics(peer PeerID, service uuid.UUID, chars []uuid.UUID, onResult func(found []uuid.UUID, err error))
	// ReadValue reads a characteristic value once.
	ReadValue(peer PeerID, char uuid.UUID, onResult func(value []byte, err error))
	// SetNotify enables or disables notifications. Notified values go to onValue.
	SetNotify(peer PeerID, char uuid.UUID, enabled bool, onValue func(value []byte), onResult func(err error))
}

// ReadRequest is a remote central asking for a characteristic value.
type ReadRequest struct {
	ID             uint64
	Central        CentralID
	Characteristic uuid.UUID
	Offset         int
}

// WriteRequest is a remote central writing a characteristic value.
type WriteRequest struct {
	ID             uint64
	Central        CentralID
	Characteristic uuid.UUID
	Offset         int
	Value          []byte
}

// RequestHandler receives attribute traffic from remote centrals.
type RequestHandler interface {
	ReadRequested(req ReadRequest)
	WriteRequested(req WriteRequest)
	Subscribed(central CentralID, char uuid.UUID)
	Unsubscribed(central CentralID, char uuid.UUID)
}

// Peripheral abstracts the advertising side of the radio for testing.
type Peripheral interface {
	// PowerState returns the current radio power state.
	PowerState() PowerState
	// OnPowerStateChange registers the callback for power state reports.
	OnPowerStateChange(callback func(PowerState))

	// AddService publishes the schema with its initial values. Requests for
	// its characteristics are delivered to handler.
	AddService(schema *Schema, values map[uuid.UUID][]byte, handler RequestHandler) error
	// Advertise starts advertising the service. onStateChange reports whether
	// advertising actually started.
	Advertise(service uuid.UUID, localName string, onStateChange func(advertising bool, err error))
	// StopAdvertising halts advertising.
	StopAdvertising() error

	// RespondToRead answers a ReadRequest with a value or an ATT error.
	RespondToRead(req ReadRequest, value []byte, code ATTError)
	// RespondToWrite answers a WriteRequest.
	RespondToWrite(req WriteRequest, code ATTError)
	// SetValue refreshes the value the stack serves for a characteristic.
	SetValue(char uuid.UUID, value []byte) error
	// UpdateValue notifies a single subscribed central of a new value.
	UpdateValue(char uuid.UUID, value []byte, central CentralID) error
}
