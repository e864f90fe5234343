//go:build darwin

package ble

import "fmt"

// TinyGoPeripheral is unavailable on macOS: tinygo's CoreBluetooth backend
// is central-only.
type TinyGoPeripheral struct{ Peripheral }

// NewTinyGoPeripheral always fails on macOS.
func NewTinyGoPeripheral() (*TinyGoPeripheral, error) {
	return nil, fmt.Errorf("ble: peripheral role on macOS: %w", ErrTransportUnavailable)
}

// Enable always fails on macOS.
func (p *TinyGoPeripheral) Enable() error {
	return fmt.Errorf("ble: peripheral role on macOS: %w", ErrTransportUnavailable)
}
