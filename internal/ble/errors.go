package ble

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. None of these reach the UI collaborator; engines
// log them and reflect them as roster or advertising state.
var (
	ErrTransportUnavailable   = errors.New("ble: transport unavailable")
	ErrConnectFailed          = errors.New("ble: connect failed")
	ErrServiceNotFound        = errors.New("ble: service not found")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
	ErrInvalidOffset          = errors.New("ble: invalid offset")
	ErrDisconnected           = errors.New("ble: disconnected")
)

// ATTError is an ATT protocol error code sent back to a remote requester.
type ATTError uint8

// ATT error codes (Bluetooth Core Vol 3, Part F, 3.4.1.1).
const (
	ATTSuccess           ATTError = 0x00
	ATTInvalidHandle     ATTError = 0x01
	ATTReadNotPermitted  ATTError = 0x02
	ATTWriteNotPermitted ATTError = 0x03
	ATTInvalidOffset     ATTError = 0x07
	ATTAttributeNotFound ATTError = 0x0A
	ATTInvalidLength     ATTError = 0x0D
	ATTUnlikelyError     ATTError = 0x0E
)

var attErrorNames = map[ATTError]string{
	ATTSuccess:           "Success",
	ATTInvalidHandle:     "Invalid Handle",
	ATTReadNotPermitted:  "Read Not Permitted",
	ATTWriteNotPermitted: "Write Not Permitted",
	ATTInvalidOffset:     "Invalid Offset",
	ATTAttributeNotFound: "Attribute Not Found",
	ATTInvalidLength:     "Invalid Attribute Value Length",
	ATTUnlikelyError:     "Unlikely Error",
}

func (e ATTError) String() string {
	if name, ok := attErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("ATT Error (0x%02X)", uint8(e))
}

// Error implements error so a code can be returned or wrapped directly.
func (e ATTError) Error() string {
	return "att: " + e.String()
}
