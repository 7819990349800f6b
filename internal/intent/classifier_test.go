package intent

import (
	"context"
	"testing"
	"time"

	"tablechat/internal/domain"
	"tablechat/internal/models"
	"tablechat/internal/oracle"
	"tablechat/internal/prompts"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Keywords(t *testing.T) {
	c := New(nil)

	tests := []struct {
		msg  string
		want models.Intent
	}{
		{"hi", models.IntentGreeting},
		{"Hello there!", models.IntentGreeting},
		{"what can you do?", models.IntentGreeting},
		{"I'd like to book a table for 4 tomorrow", models.IntentCreateBooking},
		{"hi, can I reserve a table?", models.IntentCreateBooking},
		{"Do you have any tables on Friday?", models.IntentCheckAvailability},
		{"what's the availability tomorrow", models.IntentCheckAvailability},
		{"is there a table free tonight", models.IntentCheckAvailability},
		{"check my booking please", models.IntentGetBooking},
		{"What was my reference?", models.IntentGetBooking},
		{"change my booking to 8pm", models.IntentUpdateBooking},
		{"can we move it to Saturday", models.IntentUpdateBooking},
		{"cancel my booking ABC1234", models.IntentCancelBooking},
		{"Please CANCEL my reservation", models.IntentCancelBooking},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := c.Classify(context.Background(), Input{Message: tt.msg})
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, ViaKeyword, got.Via)
		})
	}
}

func TestClassify_KeywordsPreemptContinuation(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), Input{
		Message: "cancel ABC1234",
		Last:    models.IntentCreateBooking,
	})
	assert.Equal(t, models.IntentCancelBooking, got.Intent)
}

func TestClassify_Continuation(t *testing.T) {
	c := New(nil)

	tests := []struct {
		msg  string
		last models.Intent
		want models.Intent
		via  string
	}{
		{"4", models.IntentCreateBooking, models.IntentCreateBooking, ViaContinuation},
		{"tomorrow", models.IntentCheckAvailability, models.IntentCheckAvailability, ViaContinuation},
		{"ABC1234", models.IntentCancelBooking, models.IntentCancelBooking, ViaContinuation},
		{"yes please", models.IntentCheckAvailability, models.IntentCreateBooking, ViaAffirmation},
		{"4", models.IntentGreeting, models.IntentProvideInfo, ViaSlots},
		{"4", models.IntentUnclear, models.IntentProvideInfo, ViaSlots},
		{"4", models.IntentNone, models.IntentProvideInfo, ViaSlots},
	}

	for _, tt := range tests {
		t.Run(string(tt.last)+"/"+tt.msg, func(t *testing.T) {
			got := c.Classify(context.Background(), Input{
				Message:   tt.msg,
				Last:      tt.last,
				Extracted: models.Slots{PartySize: 4},
			})
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, tt.via, got.Via)
		})
	}
}

func TestClassify_WeakCuesYieldToContinuation(t *testing.T) {
	c := New(nil)

	tests := []struct {
		msg  string
		last models.Intent
		want models.Intent
		via  string
	}{
		{"the reference is ABC1234", models.IntentCancelBooking, models.IntentCancelBooking, ViaContinuation},
		{"my booking reference is ABC1234", models.IntentUpdateBooking, models.IntentUpdateBooking, ViaContinuation},
		{"a table by the window", models.IntentCreateBooking, models.IntentCreateBooking, ViaContinuation},
		{"my booking reference is ABC1234", models.IntentNone, models.IntentGetBooking, ViaKeyword},
		{"the reference is ABC1234", models.IntentGreeting, models.IntentGetBooking, ViaKeyword},
		{"cancel the reference ABC1234", models.IntentUpdateBooking, models.IntentCancelBooking, ViaKeyword},
	}

	for _, tt := range tests {
		t.Run(string(tt.last)+"/"+tt.msg, func(t *testing.T) {
			got := c.Classify(context.Background(), Input{Message: tt.msg, Last: tt.last})
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, tt.via, got.Via)
		})
	}
}

func TestClassify_LongMessageIsNotContinuation(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), Input{
		Message:   "so it would be me and my three colleagues from the office coming along",
		Last:      models.IntentCreateBooking,
		Extracted: models.Slots{PartySize: 4},
	})
	assert.Equal(t, models.IntentProvideInfo, got.Intent)
}

func TestClassify_Unclear(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), Input{Message: "the weather is nice"})
	assert.Equal(t, models.IntentUnclear, got.Intent)
	assert.Equal(t, ViaFallback, got.Via)

	got = c.Classify(context.Background(), Input{Message: "   "})
	assert.Equal(t, models.IntentUnclear, got.Intent)
}

func TestClassify_OracleFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply oracle.Reply
		want  models.Intent
		via   string
	}{
		{"known label", oracle.Reply{Text: " \"check_availability\".\n"}, models.IntentCheckAvailability, ViaOracle},
		{"chatty answer", oracle.Reply{Text: "I think the intent is probably create_booking"}, models.IntentUnclear, ViaFallback},
		{"failure", oracle.Reply{Err: domain.ErrOracleUnavailable}, models.IntentUnclear, ViaFallback},
		{"slow", oracle.Reply{Text: "greeting", Delay: time.Second}, models.IntentUnclear, ViaFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := oracle.NewScripted(tt.reply)
			c := New(nil, WithOracle(o, prompts.Default(), 30*time.Millisecond))

			got := c.Classify(context.Background(), Input{Message: "whatever you reckon works for us"})
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, tt.via, got.Via)
			assert.Equal(t, 1, o.Calls())
		})
	}
}

func TestClassify_OracleSkippedWhenKeywordsMatch(t *testing.T) {
	o := oracle.NewScripted(oracle.Reply{Text: "unclear"})
	c := New(nil, WithOracle(o, prompts.Default(), time.Second))

	got := c.Classify(context.Background(), Input{Message: "book a table"})
	assert.Equal(t, models.IntentCreateBooking, got.Intent)
	assert.Zero(t, o.Calls())
}

func TestImpliesReplacement(t *testing.T) {
	assert.True(t, ImpliesReplacement("Actually, make it 8pm"))
	assert.True(t, ImpliesReplacement("can I change the date to friday"))
	assert.True(t, ImpliesReplacement("friday instead"))
	assert.False(t, ImpliesReplacement("friday at 8pm"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what's my reference", Normalize("  What’s my   reference?! "))
	assert.Equal(t, "at 7:30 on 05/11/2026", Normalize("at 7:30, on 05/11/2026"))
}
