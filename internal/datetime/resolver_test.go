package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Saturday 17 October 2026.
var refNow = time.Date(2026, 10, 17, 15, 30, 0, 0, time.UTC)

func newTestResolver(p HourPolicy) *Resolver {
	return NewResolver(
		WithHourPolicy(p),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return refNow }),
	)
}

func TestResolveDate_Relative(t *testing.T) {
	r := newTestResolver(PolicySplit)

	tests := []struct {
		phrase string
		want   string
	}{
		{"today", "2026-10-17"},
		{"Tonight please", "2026-10-17"},
		{"tomorrow", "2026-10-18"},
		{"the day after tomorrow", "2026-10-19"},
		{"monday", "2026-10-19"},
		{"next monday", "2026-10-26"},
		{"friday", "2026-10-23"},
		{"next Friday", "2026-10-30"},
		{"saturday", "2026-10-24"},
		{"this weekend", "2026-10-24"},
		{"in 3 days", "2026-10-20"},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := r.ResolveDate(tt.phrase, refNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDate_Explicit(t *testing.T) {
	r := newTestResolver(PolicySplit)

	tests := []struct {
		phrase string
		want   string
	}{
		{"2026-11-05", "2026-11-05"},
		{"on 05/11/2026", "2026-11-05"},
		{"15 March", "2027-03-15"},
		{"december 24th", "2026-12-24"},
		{"the 3rd of november", "2026-11-03"},
		{"march 15, 2028", "2028-03-15"},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := r.ResolveDate(tt.phrase, refNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDate_Unresolved(t *testing.T) {
	r := newTestResolver(PolicySplit)

	for _, phrase := range []string{"", "whenever", "2026-02-31", "31/02/2026", "soon-ish"} {
		t.Run(phrase, func(t *testing.T) {
			_, err := r.ResolveDate(phrase, refNow)
			assert.ErrorIs(t, err, ErrUnresolved)
		})
	}
}

func TestResolveDate_WeekdaysAreStrictlyFutureAndIdempotent(t *testing.T) {
	r := newTestResolver(PolicySplit)
	names := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

	for offset := 0; offset < 7; offset++ {
		ref := refNow.AddDate(0, 0, offset)
		today := ref.Format("2006-01-02")
		for _, name := range names {
			for _, phrase := range []string{name, "next " + name} {
				got, err := r.ResolveDate(phrase, ref)
				require.NoError(t, err)
				assert.Greater(t, got, today, "%s from %s", phrase, today)

				resolved, err := time.Parse("2006-01-02", got)
				require.NoError(t, err)
				again, err := r.ResolveDate(got, resolved)
				require.NoError(t, err)
				assert.Equal(t, got, again)
			}
		}
	}
}

func TestResolveDate_SaturdayOnSaturday(t *testing.T) {
	r := newTestResolver(PolicySplit)
	got, err := r.ResolveDate("weekend", refNow)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-24", got)
}

func TestResolveTime(t *testing.T) {
	r := newTestResolver(PolicySplit)

	tests := []struct {
		phrase string
		want   string
	}{
		{"7pm", "19:00"},
		{"7:30pm", "19:30"},
		{"7.30 p.m.", "19:30"},
		{"12am", "00:00"},
		{"12pm", "12:00"},
		{"9am", "09:00"},
		{"19:00", "19:00"},
		{"19:00:00", "19:00"},
		{"noon", "12:00"},
		{"at 8 PM", "20:00"},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := r.ResolveTime(tt.phrase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTime_Invalid(t *testing.T) {
	r := newTestResolver(PolicySplit)
	for _, phrase := range []string{"", "later", "13pm", "0am", "25:00", "7:75"} {
		t.Run(phrase, func(t *testing.T) {
			_, err := r.ResolveTime(phrase)
			assert.ErrorIs(t, err, ErrUnresolved)
		})
	}
}

func TestHourPolicy(t *testing.T) {
	tests := []struct {
		policy HourPolicy
		phrase string
		want   string
	}{
		{PolicySplit, "4", "16:00"},
		{PolicySplit, "5", "17:00"},
		{PolicySplit, "8", "08:00"},
		{PolicySplit, "7:30", "07:30"},
		{PolicyEvening, "8", "20:00"},
		{PolicyEvening, "7:00", "19:00"},
		{PolicyEvening, "12", "12:00"},
		{PolicyLiteral, "4", "04:00"},
		{PolicyLiteral, "18", "18:00"},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String()+"/"+tt.phrase, func(t *testing.T) {
			got, err := newTestResolver(tt.policy).ResolveTime(tt.phrase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHourPolicy(t *testing.T) {
	p, err := ParseHourPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicySplit, p)

	p, err = ParseHourPolicy("Evening")
	require.NoError(t, err)
	assert.Equal(t, PolicyEvening, p)

	_, err = ParseHourPolicy("morning")
	assert.Error(t, err)
}

func TestCanonicalForms(t *testing.T) {
	assert.True(t, CanonicalDate("2026-10-17"))
	assert.False(t, CanonicalDate("17/10/2026"))
	assert.True(t, CanonicalTime("19:30"))
	assert.False(t, CanonicalTime("7:30"))
	assert.False(t, CanonicalTime("19:30:00"))
	assert.True(t, IsWeekday("Friday"))
	assert.False(t, IsWeekday("Fry"))
}

func TestDateSpans(t *testing.T) {
	text := "table for 4 on 05/11/2026 or march 3rd, in 2 days"
	spans := DateSpans(text)
	var got []string
	for _, sp := range spans {
		got = append(got, text[sp[0]:sp[1]])
	}
	assert.ElementsMatch(t, []string{"05/11/2026", "march 3rd", "in 2 days"}, got)
	assert.Empty(t, DateSpans("for 4 people at 7pm"))
	assert.True(t, IsMonth("Sept"))
	assert.False(t, IsMonth("Smith"))
}
