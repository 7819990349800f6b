package dialogue

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"tablechat/internal/datetime"
	"tablechat/internal/domain"
	"tablechat/internal/events"
	"tablechat/internal/extractor"
	"tablechat/internal/intent"
	"tablechat/internal/logging"
	"tablechat/internal/metrics"
	"tablechat/internal/models"
	"tablechat/internal/prompts"
	"tablechat/internal/session"

	"github.com/rs/zerolog"
)

// Reply is what a transport gets back from one turn.
type Reply struct {
	Text      string        `json:"response"`
	SessionID string        `json:"session_id"`
	RequestID string        `json:"-"`
	Intent    models.Intent `json:"-"`
	Step      models.Step   `json:"-"`
}

// Engine runs chat turns against per-session conversation state.
type Engine struct {
	store      *session.Store
	extractor  *extractor.Extractor
	classifier *intent.Classifier
	machine    *Machine
	resolver   *datetime.Resolver
	prompts    *prompts.Set
	events     domain.EventPublisher
	logger     *zerolog.Logger

	limiter      domain.RateLimiter
	limit        int
	window       time.Duration
	historyLimit int
}

type EngineOption func(*Engine)

func WithLogger(logger *zerolog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithPrompts(set *prompts.Set) EngineOption {
	return func(e *Engine) {
		if set != nil {
			e.prompts = set
		}
	}
}

func WithEvents(p domain.EventPublisher) EngineOption {
	return func(e *Engine) { e.events = p }
}

// WithRateLimit caps turns per session to limit per window.
func WithRateLimit(l domain.RateLimiter, limit int, window time.Duration) EngineOption {
	return func(e *Engine) {
		if l != nil && limit > 0 && window > 0 {
			e.limiter, e.limit, e.window = l, limit, window
		}
	}
}

func WithHistoryLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

func NewEngine(store *session.Store, ext *extractor.Extractor, cls *intent.Classifier, machine *Machine, resolver *datetime.Resolver, opts ...EngineOption) *Engine {
	nop := zerolog.Nop()
	e := &Engine{
		store:        store,
		extractor:    ext,
		classifier:   cls,
		machine:      machine,
		resolver:     resolver,
		prompts:      prompts.Default(),
		logger:       &nop,
		historyLimit: models.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn processes one user message. An empty sessionID starts a new
// session whose id is returned in the reply. The only error returned is the
// context's, when the caller gives up while waiting for an earlier turn.
func (e *Engine) HandleTurn(ctx context.Context, message, sessionID string) (Reply, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = e.store.NewID()
	}
	logger, requestID := logging.ForTurn(e.logger, sessionID)
	reply := Reply{SessionID: sessionID, RequestID: requestID}

	if e.limiter != nil {
		allowed, err := e.limiter.CheckRateLimit(ctx, sessionID, e.limit, e.window)
		if err != nil {
			logger.Warn().Err(err).Msg("rate limit check failed")
		} else if !allowed {
			logger.Info().Msg("turn rate limited")
			reply.Text = e.render("rate_limited")
			return reply, nil
		}
	}

	created, err := e.store.WithSession(ctx, sessionID, func(st *models.ConversationState) error {
		reply.Text, reply.Intent = e.turn(ctx, &logger, st, message)
		reply.Step = st.Step
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("turn abandoned")
		return reply, err
	}

	metrics.IncTurn(string(reply.Intent))
	metrics.ObserveTurn(time.Since(start))
	logger.Info().
		Bool("new_session", created).
		Str("intent", string(reply.Intent)).
		Str("step", string(reply.Step)).
		Dur("took", time.Since(start)).
		Msg("turn handled")
	return reply, nil
}

// turn runs under the session lock. A panic anywhere below degrades the
// reply to an apology instead of reaching the transport.
func (e *Engine) turn(ctx context.Context, logger *zerolog.Logger, st *models.ConversationState, message string) (text string, it models.Intent) {
	now := e.resolver.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("step", string(st.Step)).
				Msg("panic in dialogue turn")
			text = e.render("apology")
			it = models.IntentUnclear
		}
		st.AddTurn(models.RoleAssistant, text, e.historyLimit, now)
	}()

	st.AddTurn(models.RoleUser, message, e.historyLimit, now)
	msg := strings.TrimSpace(message)
	if msg == "" {
		res := e.machine.Step(ctx, st, Input{Intent: models.IntentUnclear})
		return res.Reply, models.IntentUnclear
	}

	ex := e.extractor.Extract(ctx, extractor.Input{
		Message: msg,
		Known:   st.Slots,
		Expect:  Expect(st),
		Now:     now,
	})
	cls := e.classifier.Classify(ctx, intent.Input{
		Message:   msg,
		Last:      st.LastIntent,
		Extracted: ex.Slots,
	})
	it = cls.Intent

	logger.Debug().
		Str("intent", string(it)).
		Str("via", cls.Via).
		Str("source", ex.Source).
		Strs("slots", ex.Slots.Present()).
		Str("step", string(st.Step)).
		Msg("turn understood")

	res := e.machine.Step(ctx, st, Input{
		Intent:     it,
		Message:    msg,
		Extracted:  ex.Slots,
		Confidence: ex.Confidence,
		Replace:    it == models.IntentUpdateBooking || intent.ImpliesReplacement(msg),
	})
	return res.Reply, it
}

// Reset destroys the session and reports whether it existed. It waits for a
// turn in flight on the same session.
func (e *Engine) Reset(ctx context.Context, sessionID string) bool {
	existed, err := e.store.Reset(ctx, sessionID)
	if err != nil {
		e.logger.Warn().Err(err).Str("session_id", sessionID).Msg("reset failed")
		return false
	}
	if e.events != nil {
		if err := e.events.PublishJSON(events.EventSessionReset, events.SessionEventPayload{SessionID: sessionID, Existed: existed}); err != nil {
			e.logger.Error().Err(err).Msg("failed to publish reset event")
		}
	}
	return existed
}

// ResetReply is the text transports show after a reset.
func (e *Engine) ResetReply() string {
	return e.render("reset")
}

// Sessions returns the number of live conversations.
func (e *Engine) Sessions() int {
	return e.store.Len()
}

// State returns a copy of the session state.
func (e *Engine) State(sessionID string) (*models.ConversationState, bool) {
	return e.store.Snapshot(sessionID)
}

func (e *Engine) render(name string) string {
	text, err := e.prompts.Reply(name, view{})
	if err != nil {
		e.logger.Error().Err(err).Str("reply", name).Msg("reply template failed")
		return fallbackText(e.prompts)
	}
	return text
}
