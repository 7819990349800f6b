// Package dispatcher turns a finished slot set into a booking service call
// and folds whatever comes back into an Outcome. It never returns an error
// and never panics past its boundary.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"tablechat/internal/booking"
	"tablechat/internal/datetime"
	"tablechat/internal/domain"
	"tablechat/internal/events"
	"tablechat/internal/metrics"
	"tablechat/internal/models"

	"github.com/rs/zerolog"
)

// Reason classifies a failed dispatch.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNotFound     Reason = "not_found"
	ReasonUnavailable  Reason = "unavailable"
	ReasonRejected     Reason = "rejected"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonInvalid      Reason = "invalid"
)

// Request is one action against the booking service. For update_booking
// the date, time, party size and special requests in Slots are the changes.
type Request struct {
	Intent    models.Intent
	Slots     models.Slots
	SessionID string
}

// Outcome is the result of a dispatch: Success with data, or a Reason.
type Outcome struct {
	Intent  models.Intent
	Success bool
	Reason  Reason
	// Detail is the service's own explanation for a rejection.
	Detail string
	// Field names the slot that failed canonicalization for ReasonInvalid.
	Field        string
	Reference    string
	Booking      *models.Booking
	Availability *models.Availability
	// Terminal means retrying the same request cannot help.
	Terminal bool
}

func failure(it models.Intent, reason Reason) Outcome {
	return Outcome{Intent: it, Reason: reason}
}

type Dispatcher struct {
	client   domain.BookingClient
	resolver *datetime.Resolver
	events   domain.EventPublisher
	timeout  time.Duration
	logger   *zerolog.Logger
}

type Option func(*Dispatcher)

func WithEvents(p domain.EventPublisher) Option {
	return func(d *Dispatcher) { d.events = p }
}

// WithTimeout bounds each booking call.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(client domain.BookingClient, resolver *datetime.Resolver, opts ...Option) *Dispatcher {
	nop := zerolog.Nop()
	d := &Dispatcher{
		client:   client,
		resolver: resolver,
		timeout:  30 * time.Second,
		logger:   &nop,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.resolver == nil {
		d.resolver = datetime.NewResolver()
	}
	return d
}

// Dispatch performs the action for req.Intent.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("intent", string(req.Intent)).
				Msg("panic in booking dispatch")
			out = failure(req.Intent, ReasonUnavailable)
		}
		label := "ok"
		if !out.Success {
			label = string(out.Reason)
		}
		metrics.IncDispatch(string(req.Intent), label)
		d.logger.Debug().
			Str("intent", string(req.Intent)).
			Str("outcome", label).
			Dur("took", time.Since(start)).
			Msg("dispatch finished")
	}()

	slots, field, err := d.canonical(req.Slots)
	if err != nil {
		d.logger.Warn().Err(err).Str("field", field).Msg("slot not canonical at dispatch")
		out = failure(req.Intent, ReasonInvalid)
		out.Field = field
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch req.Intent {
	case models.IntentCheckAvailability:
		return d.availability(callCtx, slots)
	case models.IntentCreateBooking:
		return d.create(callCtx, slots, req.SessionID)
	case models.IntentGetBooking:
		return d.get(callCtx, slots)
	case models.IntentUpdateBooking:
		return d.update(callCtx, slots, req.SessionID)
	case models.IntentCancelBooking:
		return d.cancel(callCtx, slots, req.SessionID)
	default:
		return failure(req.Intent, ReasonInvalid)
	}
}

// canonical turns any date or time still in natural form into the canonical
// one. Already canonical values pass through unchanged.
func (d *Dispatcher) canonical(s models.Slots) (models.Slots, string, error) {
	if s.Date != "" && !datetime.CanonicalDate(s.Date) {
		v, err := d.resolver.ResolveDate(s.Date, d.resolver.Now())
		if err != nil {
			return s, models.SlotDate, fmt.Errorf("date %q: %w", s.Date, err)
		}
		s.Date = v
	}
	if s.Time != "" && !datetime.CanonicalTime(s.Time) {
		v, err := d.resolver.ResolveTime(s.Time)
		if err != nil {
			return s, models.SlotTime, fmt.Errorf("time %q: %w", s.Time, err)
		}
		s.Time = v
	}
	return s, "", nil
}

func (d *Dispatcher) fail(it models.Intent, err error) Outcome {
	var reason Reason
	switch {
	case errors.Is(err, booking.ErrNotFound):
		reason = ReasonNotFound
	case errors.Is(err, booking.ErrUnauthorized):
		reason = ReasonUnauthorized
	case errors.Is(err, booking.ErrRejected):
		reason = ReasonRejected
	default:
		reason = ReasonUnavailable
	}
	d.logger.Warn().Err(err).Str("intent", string(it)).Str("reason", string(reason)).Msg("booking call failed")
	out := failure(it, reason)
	out.Terminal = booking.IsTerminal(err)
	if reason == ReasonRejected {
		out.Detail = booking.Detail(err)
	}
	return out
}

func (d *Dispatcher) availability(ctx context.Context, s models.Slots) Outcome {
	it := models.IntentCheckAvailability
	if s.Date == "" {
		out := failure(it, ReasonInvalid)
		out.Field = models.SlotDate
		return out
	}
	party := s.PartySize
	if party == 0 {
		party = models.DefaultAvailabilityPartySize
	}
	avail, err := d.client.CheckAvailability(ctx, models.AvailabilityQuery{Date: s.Date, Time: s.Time, PartySize: party})
	if err != nil {
		return d.fail(it, err)
	}
	return Outcome{Intent: it, Success: true, Availability: avail}
}

func (d *Dispatcher) create(ctx context.Context, s models.Slots, sessionID string) Outcome {
	it := models.IntentCreateBooking
	if missing := s.Missing(models.RequiredBookingSlots); len(missing) > 0 {
		out := failure(it, ReasonInvalid)
		out.Field = missing[0]
		return out
	}
	b, err := d.client.CreateBooking(ctx, models.BookingRequest{
		Name:            s.Name,
		Date:            s.Date,
		Time:            s.Time,
		PartySize:       s.PartySize,
		SpecialRequests: s.SpecialRequests,
	})
	if err != nil {
		return d.fail(it, err)
	}
	d.publish(events.EventBookingCreated, b, sessionID)
	return Outcome{Intent: it, Success: true, Reference: b.Reference, Booking: b}
}

func (d *Dispatcher) get(ctx context.Context, s models.Slots) Outcome {
	it := models.IntentGetBooking
	if s.BookingReference == "" {
		out := failure(it, ReasonInvalid)
		out.Field = models.SlotBookingReference
		return out
	}
	b, err := d.client.GetBooking(ctx, s.BookingReference)
	if err != nil {
		out := d.fail(it, err)
		out.Reference = s.BookingReference
		return out
	}
	return Outcome{Intent: it, Success: true, Reference: s.BookingReference, Booking: b}
}

func (d *Dispatcher) update(ctx context.Context, s models.Slots, sessionID string) Outcome {
	it := models.IntentUpdateBooking
	if s.BookingReference == "" {
		out := failure(it, ReasonInvalid)
		out.Field = models.SlotBookingReference
		return out
	}
	changes := models.BookingChanges{
		Date:            s.Date,
		Time:            s.Time,
		PartySize:       s.PartySize,
		SpecialRequests: s.SpecialRequests,
	}
	if changes.Empty() {
		return failure(it, ReasonInvalid)
	}
	b, err := d.client.UpdateBooking(ctx, s.BookingReference, changes)
	if err != nil {
		out := d.fail(it, err)
		out.Reference = s.BookingReference
		return out
	}
	d.publish(events.EventBookingUpdated, b, sessionID)
	return Outcome{Intent: it, Success: true, Reference: s.BookingReference, Booking: b}
}

func (d *Dispatcher) cancel(ctx context.Context, s models.Slots, sessionID string) Outcome {
	it := models.IntentCancelBooking
	if s.BookingReference == "" {
		out := failure(it, ReasonInvalid)
		out.Field = models.SlotBookingReference
		return out
	}
	if err := d.client.CancelBooking(ctx, s.BookingReference); err != nil {
		out := d.fail(it, err)
		out.Reference = s.BookingReference
		return out
	}
	d.publish(events.EventBookingCancelled, &models.Booking{
		Reference: s.BookingReference,
		Status:    models.StatusCancelled,
	}, sessionID)
	return Outcome{Intent: it, Success: true, Reference: s.BookingReference}
}

func (d *Dispatcher) publish(eventType string, b *models.Booking, sessionID string) {
	if d.events == nil || b == nil {
		return
	}
	payload := events.BookingEventPayload{
		Reference: b.Reference,
		SessionID: sessionID,
		Name:      b.Name,
		Date:      b.Date,
		Time:      b.Time,
		PartySize: b.PartySize,
		Status:    b.Status,
	}
	if err := d.events.PublishJSON(eventType, payload); err != nil {
		d.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
