package models

// Step is the booking pipeline position of a conversation.
type Step string

const (
	StepGreeting        Step = "GREETING"
	StepAskingName      Step = "ASKING_NAME"
	StepAskingDate      Step = "ASKING_DATE"
	StepAskingTime      Step = "ASKING_TIME"
	StepAskingPartySize Step = "ASKING_PARTY_SIZE"
	StepReady           Step = "READY"
	StepCompleted       Step = "COMPLETED"
)

// InPipeline reports whether the step belongs to an unfinished booking flow.
func (s Step) InPipeline() bool {
	switch s {
	case StepAskingName, StepAskingDate, StepAskingTime, StepAskingPartySize, StepReady:
		return true
	}
	return false
}

// Intent is the recognized goal of a single user turn.
type Intent string

const (
	IntentNone              Intent = ""
	IntentGreeting          Intent = "greeting"
	IntentCheckAvailability Intent = "check_availability"
	IntentCreateBooking     Intent = "create_booking"
	IntentGetBooking        Intent = "get_booking"
	IntentUpdateBooking     Intent = "update_booking"
	IntentCancelBooking     Intent = "cancel_booking"
	IntentProvideInfo       Intent = "provide_info"
	IntentUnclear           Intent = "unclear"
)

// Intents lists every intent in tie-break order.
var Intents = []Intent{
	IntentGreeting,
	IntentCheckAvailability,
	IntentCreateBooking,
	IntentGetBooking,
	IntentUpdateBooking,
	IntentCancelBooking,
	IntentProvideInfo,
	IntentUnclear,
}

// ParseIntent maps a raw label onto a known intent.
func ParseIntent(raw string) (Intent, bool) {
	for _, it := range Intents {
		if string(it) == raw {
			return it, true
		}
	}
	return IntentNone, false
}

// Continuable reports whether short follow-up answers may stay attached to the intent.
func (i Intent) Continuable() bool {
	return i != IntentNone && i != IntentUnclear && i != IntentGreeting
}

// Slot names.
const (
	SlotName             = "name"
	SlotDate             = "date"
	SlotTime             = "time"
	SlotPartySize        = "party_size"
	SlotBookingReference = "booking_reference"
	SlotSpecialRequests  = "special_requests"
)

// RequiredBookingSlots is the fixed order in which the pipeline asks for missing data.
var RequiredBookingSlots = []string{SlotName, SlotDate, SlotTime, SlotPartySize}

const (
	// MinPartySize и MaxPartySize ограничивают допустимый размер компании
	MinPartySize = 1
	MaxPartySize = 20

	// DefaultAvailabilityPartySize используется при проверке наличия мест без указания гостей
	DefaultAvailabilityPartySize = 2

	// DefaultHistoryLimit максимальное количество реплик в истории сессии
	DefaultHistoryLimit = 20

	// DefaultMaxSessions максимальное количество сессий в памяти
	DefaultMaxSessions = 100

	// MaxDispatchAttempts after this many failed create attempts the draft is dropped
	MaxDispatchAttempts = 3

	// MaxBookingDays how far ahead a reservation date may be
	MaxBookingDays = 365

	// DateLayout and TimeLayout are the canonical slot formats
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusChanged   = "changed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
