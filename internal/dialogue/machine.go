// Package dialogue holds the booking conversation state machine and the
// engine that runs one chat turn end to end.
package dialogue

import (
	"context"
	"strings"

	"tablechat/internal/dispatcher"
	"tablechat/internal/models"
	"tablechat/internal/prompts"

	"github.com/rs/zerolog"
)

// maxListedTimes caps how many free times an availability answer lists.
const maxListedTimes = 8

// Dispatcher is the part of dispatcher.Dispatcher the machine needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) dispatcher.Outcome
}

// Input is one classified, extracted user turn.
type Input struct {
	Intent     models.Intent
	Message    string
	Extracted  models.Slots
	Confidence map[string]models.Confidence
	// Replace lets extracted values overwrite known ones regardless of confidence.
	Replace bool
}

// Result is what a step produced.
type Result struct {
	Reply   string
	Outcome *dispatcher.Outcome
}

// view carries every field reply templates may reference.
type view struct {
	Name            string
	Date            string
	Time            string
	PartySize       int
	Reference       string
	SpecialRequests string
	Status          string
	Reason          string
	Detail          string
	Reminder        string
	Times           []string
}

type Machine struct {
	dispatcher  Dispatcher
	prompts     *prompts.Set
	maxAttempts int
	logger      *zerolog.Logger
}

func NewMachine(d Dispatcher, set *prompts.Set, maxAttempts int, logger *zerolog.Logger) *Machine {
	if set == nil {
		set = prompts.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = models.MaxDispatchAttempts
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Machine{dispatcher: d, prompts: set, maxAttempts: maxAttempts, logger: logger}
}

// Expect returns the slot the conversation is waiting for, if any.
func Expect(st *models.ConversationState) string {
	switch st.Step {
	case models.StepAskingName:
		return models.SlotName
	case models.StepAskingDate:
		return models.SlotDate
	case models.StepAskingTime:
		return models.SlotTime
	case models.StepAskingPartySize:
		return models.SlotPartySize
	}
	switch st.LastIntent {
	case models.IntentGetBooking, models.IntentCancelBooking:
		return models.SlotBookingReference
	case models.IntentUpdateBooking:
		if st.Pending.BookingReference == "" {
			return models.SlotBookingReference
		}
	case models.IntentCheckAvailability:
		if st.Pending.Date == "" {
			return models.SlotDate
		}
	}
	return ""
}

// Step advances st by one user turn and returns the reply.
func (m *Machine) Step(ctx context.Context, st *models.ConversationState, in Input) Result {
	switch in.Intent {
	case models.IntentGreeting:
		st.Merge(in.Extracted, in.Confidence, in.Replace)
		if st.Step.InPipeline() {
			return m.advance(ctx, st)
		}
		st.LastIntent = models.IntentGreeting
		return m.reply("menu", view{})

	case models.IntentCheckAvailability:
		return m.availability(ctx, st, in)

	case models.IntentGetBooking:
		return m.get(ctx, st, in)

	case models.IntentCancelBooking:
		return m.cancel(ctx, st, in)

	case models.IntentUpdateBooking:
		if st.Step.InPipeline() && in.Extracted.BookingReference == "" {
			// правка черновика, а не существующей брони
			st.Merge(in.Extracted, in.Confidence, true)
			st.LastIntent = models.IntentCreateBooking
			return m.advance(ctx, st)
		}
		return m.update(ctx, st, in)

	case models.IntentCreateBooking, models.IntentProvideInfo:
		st.Merge(in.Extracted, in.Confidence, in.Replace)
		st.LastIntent = models.IntentCreateBooking
		return m.advance(ctx, st)

	default:
		if st.Step.InPipeline() {
			return m.reply("unclear", view{Reminder: m.ask(st)})
		}
		st.LastIntent = models.IntentUnclear
		return m.reply("menu", view{})
	}
}

// advance asks for the first missing booking slot or, with all four known,
// places the booking.
func (m *Machine) advance(ctx context.Context, st *models.ConversationState) Result {
	if missing, ok := st.NextMissing(); ok {
		st.Step = stepFor(missing)
		return Result{Reply: m.ask(st)}
	}

	st.Step = models.StepReady
	out := m.dispatcher.Dispatch(ctx, dispatcher.Request{
		Intent:    models.IntentCreateBooking,
		Slots:     st.Slots,
		SessionID: st.SessionID,
	})

	if out.Success {
		st.Step = models.StepCompleted
		v := bookingView(out.Booking)
		v.Reference = out.Reference
		if v.SpecialRequests == "" {
			v.SpecialRequests = st.Slots.SpecialRequests
		}
		res := m.reply("booking_confirmed", v)
		res.Outcome = &out
		st.LastReference = out.Reference
		st.ResetPipeline()
		return res
	}

	if out.Reason == dispatcher.ReasonInvalid && out.Field != "" {
		// значение не прошло канонизацию: забываем его и спрашиваем заново
		st.Forget(out.Field)
		res := m.advance(ctx, st)
		res.Outcome = &out
		return res
	}

	st.Attempts++
	reason := m.reason(out)
	if out.Terminal || st.Attempts >= m.maxAttempts {
		m.logger.Warn().
			Str("reason", string(out.Reason)).
			Int("attempts", st.Attempts).
			Msg("booking abandoned")
		res := m.reply("booking_abandoned", view{Reason: reason})
		res.Outcome = &out
		st.ResetPipeline()
		return res
	}
	res := m.reply("booking_failed", view{Reason: reason})
	res.Outcome = &out
	return res
}

// ask renders the prompt for the current pipeline step.
func (m *Machine) ask(st *models.ConversationState) string {
	var name string
	switch st.Step {
	case models.StepAskingName:
		name = "ask_name"
	case models.StepAskingDate:
		name = "ask_date"
	case models.StepAskingTime:
		name = "ask_time"
	case models.StepAskingPartySize:
		name = "ask_party_size"
	default:
		return ""
	}
	return m.reply(name, view{Name: st.Slots.Name, Date: st.Slots.Date, Time: st.Slots.Time}).Reply
}

func stepFor(slot string) models.Step {
	switch slot {
	case models.SlotName:
		return models.StepAskingName
	case models.SlotDate:
		return models.StepAskingDate
	case models.SlotTime:
		return models.StepAskingTime
	default:
		return models.StepAskingPartySize
	}
}

func (m *Machine) availability(ctx context.Context, st *models.ConversationState, in Input) Result {
	q := st.Pending
	q.Take(models.SlotDate, pick(in.Extracted, q, models.SlotDate))
	q.Take(models.SlotTime, pick(in.Extracted, q, models.SlotTime))
	q.Take(models.SlotPartySize, pick(in.Extracted, q, models.SlotPartySize))
	if st.Step.InPipeline() {
		for _, name := range []string{models.SlotDate, models.SlotTime, models.SlotPartySize} {
			if !q.Has(name) {
				q.Take(name, st.Slots)
			}
		}
	}

	st.LastIntent = models.IntentCheckAvailability
	if q.Date == "" {
		st.Pending = q
		return m.reply("ask_availability_date", view{})
	}
	st.Pending = models.Slots{}

	out := m.dispatcher.Dispatch(ctx, dispatcher.Request{
		Intent:    models.IntentCheckAvailability,
		Slots:     q,
		SessionID: st.SessionID,
	})
	if !out.Success {
		if out.Reason == dispatcher.ReasonInvalid && out.Field == models.SlotDate {
			return m.reply("ask_availability_date", view{})
		}
		return m.failure(st, out)
	}

	// дата и размер компании переходят в черновик брони для «да, бронируем»
	for _, name := range []string{models.SlotDate, models.SlotPartySize} {
		if !st.Slots.Has(name) && q.Has(name) {
			st.Slots.Take(name, q)
			st.Confidence[name] = models.ConfidenceMedium
		}
	}
	if st.Step.InPipeline() {
		st.LastIntent = models.IntentCreateBooking
	}

	times := out.Availability.Times
	v := view{Date: out.Availability.Date, PartySize: q.PartySize}
	if len(times) == 0 {
		res := m.reply("availability_none", v)
		res.Outcome = &out
		return res
	}
	if len(times) > maxListedTimes {
		times = times[:maxListedTimes]
	}
	v.Times = times
	res := m.reply("availability", v)
	res.Outcome = &out
	return res
}

// pick prefers the value extracted this turn over the pending one.
func pick(extracted, pending models.Slots, name string) models.Slots {
	if extracted.Has(name) {
		return extracted
	}
	return pending
}

func (m *Machine) reference(st *models.ConversationState, in Input) string {
	if in.Extracted.BookingReference != "" {
		return in.Extracted.BookingReference
	}
	return st.Pending.BookingReference
}

func (m *Machine) get(ctx context.Context, st *models.ConversationState, in Input) Result {
	ref := m.reference(st, in)
	if ref == "" {
		ref = st.LastReference
	}
	if ref == "" {
		st.LastIntent = models.IntentGetBooking
		return m.reply("ask_reference_get", view{})
	}

	out := m.dispatcher.Dispatch(ctx, dispatcher.Request{
		Intent:    models.IntentGetBooking,
		Slots:     models.Slots{BookingReference: ref},
		SessionID: st.SessionID,
	})
	m.sideDone(st, models.IntentGetBooking, out)
	if !out.Success {
		return m.failure(st, out)
	}
	v := bookingView(out.Booking)
	v.Reference = ref
	res := m.reply("booking_details", v)
	res.Outcome = &out
	return res
}

func (m *Machine) cancel(ctx context.Context, st *models.ConversationState, in Input) Result {
	ref := m.reference(st, in)
	if ref == "" {
		st.LastIntent = models.IntentCancelBooking
		return m.reply("ask_reference_cancel", view{})
	}

	out := m.dispatcher.Dispatch(ctx, dispatcher.Request{
		Intent:    models.IntentCancelBooking,
		Slots:     models.Slots{BookingReference: ref},
		SessionID: st.SessionID,
	})
	m.sideDone(st, models.IntentCancelBooking, out)
	if !out.Success {
		return m.failure(st, out)
	}
	if st.LastReference == ref {
		st.LastReference = ""
	}
	res := m.reply("booking_cancelled", view{Reference: ref})
	res.Outcome = &out
	return res
}

func (m *Machine) update(ctx context.Context, st *models.ConversationState, in Input) Result {
	p := st.Pending
	for _, name := range []string{models.SlotBookingReference, models.SlotDate, models.SlotTime, models.SlotPartySize, models.SlotSpecialRequests} {
		if in.Extracted.Has(name) {
			p.Take(name, in.Extracted)
		}
	}
	st.Pending = p
	st.LastIntent = models.IntentUpdateBooking

	if p.BookingReference == "" {
		return m.reply("ask_reference_update", view{})
	}
	changes := p
	changes.Name = ""
	changes.BookingReference = ""
	if changes.Empty() {
		return m.reply("ask_changes", view{Reference: p.BookingReference})
	}

	out := m.dispatcher.Dispatch(ctx, dispatcher.Request{
		Intent:    models.IntentUpdateBooking,
		Slots:     p,
		SessionID: st.SessionID,
	})
	m.sideDone(st, models.IntentUpdateBooking, out)
	if !out.Success {
		return m.failure(st, out)
	}
	v := bookingView(out.Booking)
	v.Reference = p.BookingReference
	res := m.reply("booking_updated", v)
	res.Outcome = &out
	return res
}

// sideDone settles state after a side request reached the booking service.
// A finished side request hands the conversation back to an open draft.
func (m *Machine) sideDone(st *models.ConversationState, it models.Intent, out dispatcher.Outcome) {
	if out.Success || out.Terminal {
		st.Pending = models.Slots{}
	} else if out.Reason == dispatcher.ReasonNotFound {
		st.Pending.BookingReference = ""
	}
	switch {
	case st.Step.InPipeline():
		st.LastIntent = models.IntentCreateBooking
	case out.Success:
		st.LastIntent = models.IntentNone
	default:
		st.LastIntent = it
	}
}

func (m *Machine) failure(st *models.ConversationState, out dispatcher.Outcome) Result {
	res := Result{Reply: m.reason(out), Outcome: &out}
	if st.Step.InPipeline() {
		if reminder := m.ask(st); reminder != "" {
			res.Reply += " " + reminder
		}
	}
	return res
}

// reason renders the user-facing explanation for a failed outcome.
func (m *Machine) reason(out dispatcher.Outcome) string {
	name := string(out.Reason)
	if name == "" || !m.prompts.Has(prompts.GroupReason, name) {
		name = string(dispatcher.ReasonUnavailable)
	}
	text, err := m.prompts.Reason(name, view{Reference: out.Reference, Detail: out.Detail})
	if err != nil {
		m.logger.Error().Err(err).Str("reason", name).Msg("reason template failed")
		return "Something went wrong."
	}
	return text
}

func (m *Machine) reply(name string, v view) Result {
	text, err := m.prompts.Reply(name, v)
	if err != nil {
		m.logger.Error().Err(err).Str("reply", name).Msg("reply template failed")
		text = fallbackText(m.prompts)
	}
	return Result{Reply: text}
}

func fallbackText(set *prompts.Set) string {
	if text, err := set.Reply("apology", view{}); err == nil {
		return text
	}
	return "Sorry, something went wrong on my side. Please try again."
}

func bookingView(b *models.Booking) view {
	if b == nil {
		return view{}
	}
	return view{
		Name:            b.Name,
		Date:            b.Date,
		Time:            b.Time,
		PartySize:       b.PartySize,
		Reference:       b.Reference,
		SpecialRequests: b.SpecialRequests,
		Status:          strings.ToLower(b.Status),
	}
}
