package dialogue

import (
	"context"
	"testing"
	"time"

	"tablechat/internal/dispatcher"
	"tablechat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedDispatcher struct {
	requests []dispatcher.Request
	outcomes []dispatcher.Outcome
}

func (s *scriptedDispatcher) Dispatch(_ context.Context, req dispatcher.Request) dispatcher.Outcome {
	s.requests = append(s.requests, req)
	if len(s.outcomes) == 0 {
		return dispatcher.Outcome{Intent: req.Intent, Reason: dispatcher.ReasonUnavailable}
	}
	out := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	out.Intent = req.Intent
	return out
}

func newState() *models.ConversationState {
	return models.NewConversationState("s1", time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC))
}

func high(names ...string) map[string]models.Confidence {
	out := make(map[string]models.Confidence, len(names))
	for _, n := range names {
		out[n] = models.ConfidenceHigh
	}
	return out
}

func TestExpect(t *testing.T) {
	st := newState()
	assert.Equal(t, "", Expect(st))

	st.Step = models.StepAskingTime
	assert.Equal(t, models.SlotTime, Expect(st))

	st.Step = models.StepGreeting
	st.LastIntent = models.IntentCancelBooking
	assert.Equal(t, models.SlotBookingReference, Expect(st))

	st.LastIntent = models.IntentUpdateBooking
	st.Pending.BookingReference = "ABC1234"
	assert.Equal(t, "", Expect(st))

	st.LastIntent = models.IntentCheckAvailability
	assert.Equal(t, models.SlotDate, Expect(st))
}

func TestMachine_AsksInFixedOrder(t *testing.T) {
	d := &scriptedDispatcher{}
	m := NewMachine(d, nil, 0, nil)
	st := newState()

	res := m.Step(context.Background(), st, Input{
		Intent:     models.IntentCreateBooking,
		Extracted:  models.Slots{Time: "19:00", PartySize: 2},
		Confidence: high(models.SlotTime, models.SlotPartySize),
	})
	assert.Equal(t, models.StepAskingName, st.Step)
	assert.Contains(t, res.Reply, "What name")

	m.Step(context.Background(), st, Input{
		Intent:     models.IntentProvideInfo,
		Extracted:  models.Slots{Name: "Ann Lee"},
		Confidence: high(models.SlotName),
	})
	assert.Equal(t, models.StepAskingDate, st.Step)
	assert.Empty(t, d.requests)
}

func TestMachine_InvalidFieldIsAskedAgain(t *testing.T) {
	d := &scriptedDispatcher{outcomes: []dispatcher.Outcome{
		{Reason: dispatcher.ReasonInvalid, Field: models.SlotTime},
	}}
	m := NewMachine(d, nil, 3, nil)
	st := newState()

	res := m.Step(context.Background(), st, Input{
		Intent:     models.IntentCreateBooking,
		Extracted:  models.Slots{Name: "Ann Lee", Date: "2026-10-18", Time: "whenever", PartySize: 2},
		Confidence: high(models.SlotName, models.SlotDate, models.SlotTime, models.SlotPartySize),
	})
	require.Len(t, d.requests, 1)
	assert.Equal(t, models.StepAskingTime, st.Step)
	assert.Equal(t, "", st.Slots.Time)
	assert.Equal(t, 0, st.Attempts)
	assert.Contains(t, res.Reply, "What time")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, dispatcher.ReasonInvalid, res.Outcome.Reason)
}

func TestMachine_ConfirmationResetsDraft(t *testing.T) {
	d := &scriptedDispatcher{outcomes: []dispatcher.Outcome{{
		Success:   true,
		Reference: "XYZ4321",
		Booking:   &models.Booking{Reference: "XYZ4321", Name: "Ann Lee", Date: "2026-10-18", Time: "19:00", PartySize: 2},
	}}}
	m := NewMachine(d, nil, 3, nil)
	st := newState()

	res := m.Step(context.Background(), st, Input{
		Intent:     models.IntentCreateBooking,
		Extracted:  models.Slots{Name: "Ann Lee", Date: "2026-10-18", Time: "19:00", PartySize: 2, SpecialRequests: "birthday"},
		Confidence: high(models.SlotName, models.SlotDate, models.SlotTime, models.SlotPartySize, models.SlotSpecialRequests),
	})
	assert.Contains(t, res.Reply, "XYZ4321")
	assert.Contains(t, res.Reply, "Special requests: birthday")
	assert.Equal(t, models.StepGreeting, st.Step)
	assert.True(t, st.Slots.Empty())
	assert.Equal(t, "XYZ4321", st.LastReference)
	assert.Equal(t, models.IntentNone, st.LastIntent)
}

func TestMachine_AvailabilityNone(t *testing.T) {
	d := &scriptedDispatcher{outcomes: []dispatcher.Outcome{{
		Success:      true,
		Availability: &models.Availability{Date: "2026-10-18"},
	}}}
	m := NewMachine(d, nil, 3, nil)
	st := newState()

	res := m.Step(context.Background(), st, Input{
		Intent:    models.IntentCheckAvailability,
		Extracted: models.Slots{Date: "2026-10-18", PartySize: 6},
	})
	assert.Contains(t, res.Reply, "no tables left on 2026-10-18 for 6")
	require.Len(t, d.requests, 1)
	assert.Equal(t, 6, d.requests[0].Slots.PartySize)
	assert.Equal(t, 6, st.Slots.PartySize)
	assert.Equal(t, models.ConfidenceMedium, st.Confidence[models.SlotPartySize])
}

func TestMachine_AvailabilityUsesDraftSlots(t *testing.T) {
	d := &scriptedDispatcher{outcomes: []dispatcher.Outcome{{
		Success:      true,
		Availability: &models.Availability{Date: "2026-10-19", Times: []string{"18:00"}},
	}}}
	m := NewMachine(d, nil, 3, nil)
	st := newState()
	st.Step = models.StepAskingTime
	st.LastIntent = models.IntentCreateBooking
	st.Slots = models.Slots{Name: "Ann Lee", Date: "2026-10-19"}

	res := m.Step(context.Background(), st, Input{Intent: models.IntentCheckAvailability})
	require.Len(t, d.requests, 1)
	assert.Equal(t, "2026-10-19", d.requests[0].Slots.Date)
	assert.Contains(t, res.Reply, "18:00")
	assert.Equal(t, models.StepAskingTime, st.Step)
	assert.Equal(t, models.IntentCreateBooking, st.LastIntent)
}

func TestMachine_SideFailureRemindsOfDraft(t *testing.T) {
	d := &scriptedDispatcher{outcomes: []dispatcher.Outcome{
		{Reason: dispatcher.ReasonNotFound, Reference: "NOPE123"},
	}}
	m := NewMachine(d, nil, 3, nil)
	st := newState()
	st.Step = models.StepAskingPartySize
	st.Slots = models.Slots{Name: "Ann Lee", Date: "2026-10-19", Time: "19:00"}

	res := m.Step(context.Background(), st, Input{
		Intent:    models.IntentGetBooking,
		Extracted: models.Slots{BookingReference: "NOPE123"},
	})
	assert.Contains(t, res.Reply, "couldn't find a booking with reference NOPE123")
	assert.Contains(t, res.Reply, "How many people")
	assert.Equal(t, models.StepAskingPartySize, st.Step)
	assert.Equal(t, models.IntentCreateBooking, st.LastIntent)
}

func TestMachine_CancelNeedsReference(t *testing.T) {
	d := &scriptedDispatcher{}
	m := NewMachine(d, nil, 3, nil)
	st := newState()
	st.LastReference = "ABC1234"

	res := m.Step(context.Background(), st, Input{Intent: models.IntentCancelBooking})
	assert.Contains(t, res.Reply, "Which booking should I cancel")
	assert.Empty(t, d.requests)
	assert.Equal(t, models.SlotBookingReference, Expect(st))
}

func TestMachine_UnclearOutsidePipelineShowsMenu(t *testing.T) {
	m := NewMachine(&scriptedDispatcher{}, nil, 3, nil)
	st := newState()

	res := m.Step(context.Background(), st, Input{Intent: models.IntentUnclear, Message: "???"})
	assert.Contains(t, res.Reply, "What would you like to do?")
	assert.Equal(t, models.IntentUnclear, st.LastIntent)
}
