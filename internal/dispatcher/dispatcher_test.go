package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"tablechat/internal/booking"
	"tablechat/internal/datetime"
	"tablechat/internal/events"
	"tablechat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CheckAvailability(ctx context.Context, q models.AvailabilityQuery) (*models.Availability, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Availability), args.Error(1)
}

func (m *mockClient) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockClient) GetBooking(ctx context.Context, ref string) (*models.Booking, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockClient) UpdateBooking(ctx context.Context, ref string, c models.BookingChanges) (*models.Booking, error) {
	args := m.Called(ctx, ref, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockClient) CancelBooking(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

var refNow = time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)

func newDispatcher(client *mockClient, bus *events.EventBus) *Dispatcher {
	r := datetime.NewResolver(
		datetime.WithClock(func() time.Time { return refNow }),
		datetime.WithLocation(time.UTC),
	)
	return New(client, r, WithEvents(bus), WithTimeout(time.Second))
}

func TestDispatch_CreateCanonicalizesLate(t *testing.T) {
	client := new(mockClient)
	bus := events.NewEventBus()
	var published []*events.Event
	bus.Subscribe(events.EventBookingCreated, func(e *events.Event) error {
		published = append(published, e)
		return nil
	})
	d := newDispatcher(client, bus)

	want := models.BookingRequest{Name: "John Smith", Date: "2026-10-18", Time: "19:00", PartySize: 4}
	client.On("CreateBooking", mock.Anything, want).
		Return(&models.Booking{Reference: "ABC1234", Name: "John Smith", Date: "2026-10-18", Time: "19:00", PartySize: 4, Status: "confirmed"}, nil).
		Once()

	out := d.Dispatch(context.Background(), Request{
		Intent:    models.IntentCreateBooking,
		Slots:     models.Slots{Name: "John Smith", Date: "tomorrow", Time: "7pm", PartySize: 4},
		SessionID: "s1",
	})

	require.True(t, out.Success)
	assert.Equal(t, "ABC1234", out.Reference)
	client.AssertExpectations(t)

	require.Len(t, published, 1)
	var payload events.BookingEventPayload
	require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	assert.Equal(t, "ABC1234", payload.Reference)
	assert.Equal(t, "s1", payload.SessionID)
}

func TestDispatch_FailureReasons(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		reason   Reason
		terminal bool
		detail   string
	}{
		{"not found", booking.ErrNotFound, ReasonNotFound, false, ""},
		{"unauthorized", booking.ErrUnauthorized, ReasonUnauthorized, true, ""},
		{"wrapped unauthorized", fmt.Errorf("get booking: %w", booking.ErrUnauthorized), ReasonUnauthorized, true, ""},
		{"rejected", booking.Rejected("fully booked"), ReasonRejected, false, "fully booked"},
		{"unavailable", fmt.Errorf("%w: connection refused", booking.ErrUnavailable), ReasonUnavailable, false, ""},
		{"timeout", context.DeadlineExceeded, ReasonUnavailable, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockClient)
			d := newDispatcher(client, nil)
			client.On("GetBooking", mock.Anything, "ABC1234").Return(nil, tt.err).Once()

			out := d.Dispatch(context.Background(), Request{
				Intent: models.IntentGetBooking,
				Slots:  models.Slots{BookingReference: "ABC1234"},
			})
			assert.False(t, out.Success)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, tt.terminal, out.Terminal)
			assert.Equal(t, tt.detail, out.Detail)
			assert.Equal(t, "ABC1234", out.Reference)
		})
	}
}

func TestDispatch_Invalid(t *testing.T) {
	client := new(mockClient)
	d := newDispatcher(client, nil)
	ctx := context.Background()

	out := d.Dispatch(ctx, Request{Intent: models.IntentCreateBooking, Slots: models.Slots{Name: "Ada", Date: "2026-10-18", Time: "whenever", PartySize: 2}})
	assert.Equal(t, ReasonInvalid, out.Reason)
	assert.Equal(t, models.SlotTime, out.Field)

	out = d.Dispatch(ctx, Request{Intent: models.IntentCreateBooking, Slots: models.Slots{Name: "Ada", Date: "2026-10-18"}})
	assert.Equal(t, ReasonInvalid, out.Reason)
	assert.Equal(t, models.SlotTime, out.Field)

	out = d.Dispatch(ctx, Request{Intent: models.IntentCancelBooking})
	assert.Equal(t, models.SlotBookingReference, out.Field)

	out = d.Dispatch(ctx, Request{Intent: models.IntentUpdateBooking, Slots: models.Slots{BookingReference: "ABC1234"}})
	assert.Equal(t, ReasonInvalid, out.Reason)

	out = d.Dispatch(ctx, Request{Intent: models.IntentGreeting})
	assert.Equal(t, ReasonInvalid, out.Reason)

	client.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestDispatch_AvailabilityDefaultsPartySize(t *testing.T) {
	client := new(mockClient)
	d := newDispatcher(client, nil)
	client.On("CheckAvailability", mock.Anything, models.AvailabilityQuery{Date: "2026-10-19", PartySize: 2}).
		Return(&models.Availability{Date: "2026-10-19", Times: []string{"18:00"}}, nil).Once()

	out := d.Dispatch(context.Background(), Request{
		Intent: models.IntentCheckAvailability,
		Slots:  models.Slots{Date: "monday"},
	})
	require.True(t, out.Success)
	assert.Equal(t, []string{"18:00"}, out.Availability.Times)
	client.AssertExpectations(t)
}

func TestDispatch_UpdateAndCancelPublish(t *testing.T) {
	client := new(mockClient)
	bus := events.NewEventBus()
	var types []string
	bus.SubscribeAll(func(e *events.Event) error {
		types = append(types, e.Type)
		return nil
	})
	d := newDispatcher(client, bus)
	ctx := context.Background()

	client.On("UpdateBooking", mock.Anything, "ABC1234", models.BookingChanges{Time: "20:00"}).
		Return(&models.Booking{Reference: "ABC1234", Time: "20:00", Status: models.StatusChanged}, nil).Once()
	client.On("CancelBooking", mock.Anything, "ABC1234").Return(nil).Once()

	out := d.Dispatch(ctx, Request{Intent: models.IntentUpdateBooking, Slots: models.Slots{BookingReference: "ABC1234", Time: "8pm"}})
	assert.True(t, out.Success)
	out = d.Dispatch(ctx, Request{Intent: models.IntentCancelBooking, Slots: models.Slots{BookingReference: "ABC1234"}})
	assert.True(t, out.Success)

	assert.Equal(t, []string{events.EventBookingUpdated, events.EventBookingCancelled}, types)
	client.AssertExpectations(t)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	client := new(mockClient)
	d := newDispatcher(client, nil)
	client.On("CancelBooking", mock.Anything, "ABC1234").Run(func(mock.Arguments) {
		panic("boom")
	}).Return(nil)

	var out Outcome
	assert.NotPanics(t, func() {
		out = d.Dispatch(context.Background(), Request{Intent: models.IntentCancelBooking, Slots: models.Slots{BookingReference: "ABC1234"}})
	})
	assert.False(t, out.Success)
	assert.Equal(t, ReasonUnavailable, out.Reason)
}
