package models

import "strconv"

// Confidence ranks how reliably a slot value was extracted.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "none"
	}
}

// Slots holds the structured fields collected from a conversation.
// A zero value means the slot is unknown.
type Slots struct {
	Name             string `json:"name,omitempty"`
	Date             string `json:"date,omitempty"`
	Time             string `json:"time,omitempty"`
	PartySize        int    `json:"party_size,omitempty"`
	BookingReference string `json:"booking_reference,omitempty"`
	SpecialRequests  string `json:"special_requests,omitempty"`
}

// Has reports whether the named slot carries a value.
func (s Slots) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Get returns the named slot rendered as text.
func (s Slots) Get(name string) (string, bool) {
	var v string
	switch name {
	case SlotName:
		v = s.Name
	case SlotDate:
		v = s.Date
	case SlotTime:
		v = s.Time
	case SlotPartySize:
		if s.PartySize != 0 {
			v = strconv.Itoa(s.PartySize)
		}
	case SlotBookingReference:
		v = s.BookingReference
	case SlotSpecialRequests:
		v = s.SpecialRequests
	}
	return v, v != ""
}

// Take copies one slot from src.
func (s *Slots) Take(name string, src Slots) {
	switch name {
	case SlotName:
		s.Name = src.Name
	case SlotDate:
		s.Date = src.Date
	case SlotTime:
		s.Time = src.Time
	case SlotPartySize:
		s.PartySize = src.PartySize
	case SlotBookingReference:
		s.BookingReference = src.BookingReference
	case SlotSpecialRequests:
		s.SpecialRequests = src.SpecialRequests
	}
}

// Clear drops one slot.
func (s *Slots) Clear(name string) {
	s.Take(name, Slots{})
}

// Present lists the names of the slots that carry a value.
func (s Slots) Present() []string {
	var out []string
	for _, name := range AllSlots {
		if s.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Missing returns the names from required that are still unknown, in order.
func (s Slots) Missing(required []string) []string {
	var out []string
	for _, name := range required {
		if !s.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Empty reports whether no slot is known.
func (s Slots) Empty() bool {
	return len(s.Present()) == 0
}

// Known renders the present slots as a plain map.
func (s Slots) Known() map[string]string {
	out := make(map[string]string)
	for _, name := range AllSlots {
		if v, ok := s.Get(name); ok {
			out[name] = v
		}
	}
	return out
}

// AllSlots lists every slot name.
var AllSlots = []string{
	SlotName,
	SlotDate,
	SlotTime,
	SlotPartySize,
	SlotBookingReference,
	SlotSpecialRequests,
}
