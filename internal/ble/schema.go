package ble

import (
	"strings"

	"github.com/google/uuid"
)

// Quiz player GATT UUIDs. These are wire constants shared with the
// existing host and player apps and must not change.
var (
	ServiceUUID        = uuid.MustParse("EC4EC8FA-DD02-458F-BF7E-D65943E50F86")
	PlayerIdentityUUID = uuid.MustParse("76FAE4EA-9D0F-49E2-885A-0D45FE7C0073")
	CurrentAnswerUUID  = uuid.MustParse("8E6942B4-2D41-4742-9096-AED89416215B")
)

// Access is a bit set of characteristic access modes.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessNotify
)

// Has reports whether all bits in m are set.
func (a Access) Has(m Access) bool { return a&m == m }

func (a Access) String() string {
	var parts []string
	if a.Has(AccessRead) {
		parts = append(parts, "read")
	}
	if a.Has(AccessWrite) {
		parts = append(parts, "write")
	}
	if a.Has(AccessNotify) {
		parts = append(parts, "notify")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CharacteristicDescriptor describes one characteristic of a service.
type CharacteristicDescriptor struct {
	ID     uuid.UUID
	Name   string
	Access Access
}

// Schema is one service and its ordered characteristics. It is immutable
// once built and shared by both roles.
type Schema struct {
	service uuid.UUID
	chars   []CharacteristicDescriptor
}

// NewSchema builds a Schema. The descriptors are copied.
func NewSchema(service uuid.UUID, chars ...CharacteristicDescriptor) *Schema {
	cp := make([]CharacteristicDescriptor, len(chars))
	copy(cp, chars)
	return &Schema{service: service, chars: cp}
}

// QuizPlayerSchema returns the quiz player service. The peripheral variant
// also accepts writes to the answer characteristic.
func QuizPlayerSchema(writableAnswer bool) *Schema {
	answer := AccessRead | AccessNotify
	if writableAnswer {
		answer |= AccessWrite
	}
	return NewSchema(ServiceUUID,
		CharacteristicDescriptor{ID: PlayerIdentityUUID, Name: "player-identity", Access: AccessRead},
		CharacteristicDescriptor{ID: CurrentAnswerUUID, Name: "current-answer", Access: answer},
	)
}

// Service returns the service UUID.
func (s *Schema) Service() uuid.UUID { return s.service }

// Characteristics returns a copy of the descriptors in order.
func (s *Schema) Characteristics() []CharacteristicDescriptor {
	cp := make([]CharacteristicDescriptor, len(s.chars))
	copy(cp, s.chars)
	return cp
}

// CharacteristicIDs returns the characteristic UUIDs in order.
func (s *Schema) CharacteristicIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.chars))
	for i, c := range s.chars {
		ids[i] = c.ID
	}
	return ids
}

// Characteristic looks up a descriptor by UUID.
func (s *Schema) Characteristic(id uuid.UUID) (CharacteristicDescriptor, bool) {
	for _, c := range s.chars {
		if c.ID == id {
			return c, true
		}
	}
	return CharacteristicDescriptor{}, false
}

// Has reports whether the schema contains the characteristic.
func (s *Schema) Has(id uuid.UUID) bool {
	_, ok := s.Characteristic(id)
	return ok
}
