package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots_Helpers(t *testing.T) {
	s := Slots{Name: "John Smith", PartySize: 4}

	t.Run("HasAndGet", func(t *testing.T) {
		assert.True(t, s.Has(SlotName))
		assert.False(t, s.Has(SlotDate))
		v, ok := s.Get(SlotPartySize)
		assert.True(t, ok)
		assert.Equal(t, "4", v)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.Equal(t, []string{SlotDate, SlotTime}, s.Missing(RequiredBookingSlots))
	})

	t.Run("Known", func(t *testing.T) {
		assert.Equal(t, map[string]string{"name": "John Smith", "party_size": "4"}, s.Known())
	})

	t.Run("Clear", func(t *testing.T) {
		c := s
		c.Clear(SlotName)
		assert.False(t, c.Has(SlotName))
		assert.True(t, s.Has(SlotName))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.True(t, Slots{}.Empty())
		assert.False(t, s.Empty())
	})
}

func TestConversationState_Merge(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	t.Run("FillsUnknown", func(t *testing.T) {
		st := NewConversationState("s1", now)
		changed := st.Merge(Slots{Date: "2026-10-18"}, map[string]Confidence{SlotDate: ConfidenceLow}, false)
		assert.Equal(t, []string{SlotDate}, changed)
		assert.Equal(t, "2026-10-18", st.Slots.Date)
	})

	t.Run("KeepsHigherConfidence", func(t *testing.T) {
		st := NewConversationState("s1", now)
		st.Merge(Slots{Time: "19:00"}, map[string]Confidence{SlotTime: ConfidenceHigh}, false)
		changed := st.Merge(Slots{Time: "16:00"}, map[string]Confidence{SlotTime: ConfidenceLow}, false)
		assert.Empty(t, changed)
		assert.Equal(t, "19:00", st.Slots.Time)
	})

	t.Run("ReplaceOverrides", func(t *testing.T) {
		st := NewConversationState("s1", now)
		st.Merge(Slots{Time: "19:00"}, map[string]Confidence{SlotTime: ConfidenceHigh}, false)
		changed := st.Merge(Slots{Time: "20:00"}, map[string]Confidence{SlotTime: ConfidenceLow}, true)
		assert.Equal(t, []string{SlotTime}, changed)
		assert.Equal(t, "20:00", st.Slots.Time)
		assert.Equal(t, ConfidenceLow, st.Confidence[SlotTime])
	})

	t.Run("EqualConfidenceOverrides", func(t *testing.T) {
		st := NewConversationState("s1", now)
		st.Merge(Slots{Name: "John"}, map[string]Confidence{SlotName: ConfidenceMedium}, false)
		st.Merge(Slots{Name: "Jane"}, map[string]Confidence{SlotName: ConfidenceMedium}, false)
		assert.Equal(t, "Jane", st.Slots.Name)
	})
}

func TestConversationState_Lifecycle(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	st := NewConversationState("s1", now)
	require.Equal(t, StepGreeting, st.Step)

	st.Merge(Slots{Name: "John", Date: "2026-10-18"}, map[string]Confidence{SlotName: ConfidenceHigh, SlotDate: ConfidenceHigh}, false)
	missing, ok := st.NextMissing()
	assert.True(t, ok)
	assert.Equal(t, SlotTime, missing)

	st.Step = StepReady
	st.LastIntent = IntentCreateBooking
	st.LastReference = "ABC1234"
	st.ResetPipeline()
	assert.Equal(t, StepGreeting, st.Step)
	assert.True(t, st.Slots.Empty())
	assert.Equal(t, IntentNone, st.LastIntent)
	assert.Equal(t, "ABC1234", st.LastReference)
}

func TestConversationState_AddTurn(t *testing.T) {
	now := time.Now()
	st := NewConversationState("s1", now)
	for i := 0; i < 25; i++ {
		st.AddTurn(RoleUser, "msg", 20, now)
	}
	assert.Len(t, st.History, 20)
}

func TestConversationState_Clone(t *testing.T) {
	st := NewConversationState("s1", time.Now())
	st.Merge(Slots{Name: "John"}, map[string]Confidence{SlotName: ConfidenceHigh}, false)
	cp := st.Clone()
	cp.Confidence[SlotName] = ConfidenceLow
	cp.Slots.Name = "Jane"
	assert.Equal(t, ConfidenceHigh, st.Confidence[SlotName])
	assert.Equal(t, "John", st.Slots.Name)
}

func TestParseIntent(t *testing.T) {
	it, ok := ParseIntent("cancel_booking")
	assert.True(t, ok)
	assert.Equal(t, IntentCancelBooking, it)

	_, ok = ParseIntent("order_pizza")
	assert.False(t, ok)

	assert.True(t, IntentCreateBooking.Continuable())
	assert.False(t, IntentGreeting.Continuable())
	assert.False(t, IntentUnclear.Continuable())
}

func TestStep_InPipeline(t *testing.T) {
	assert.False(t, StepGreeting.InPipeline())
	assert.True(t, StepAskingDate.InPipeline())
	assert.True(t, StepReady.InPipeline())
	assert.False(t, StepCompleted.InPipeline())
}
