package models

// Booking is a reservation as reported by the booking service.
type Booking struct {
	Reference       string `json:"booking_reference"`
	Name            string `json:"customer_name"`
	Date            string `json:"visit_date"`
	Time            string `json:"visit_time"`
	PartySize       int    `json:"party_size"`
	Status          string `json:"status"`
	Mobile          string `json:"mobile,omitempty"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// AvailabilityQuery asks for free times on a date.
type AvailabilityQuery struct {
	Date      string
	Time      string
	PartySize int
}

// Availability lists free start times for a date.
type Availability struct {
	Date  string   `json:"date"`
	Times []string `json:"available_slots"`
}

// BookingRequest carries everything needed to create a reservation.
type BookingRequest struct {
	Name            string
	Date            string
	Time            string
	PartySize       int
	Mobile          string
	SpecialRequests string
}

// BookingChanges lists the fields to amend; empty values are left untouched.
type BookingChanges struct {
	Date            string
	Time            string
	PartySize       int
	SpecialRequests string
}

// Empty reports whether no change was requested.
func (c BookingChanges) Empty() bool {
	return c.Date == "" && c.Time == "" && c.PartySize == 0 && c.SpecialRequests == ""
}
