// Package intent maps a user message onto one dialogue intent.
package intent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"tablechat/internal/domain"
	"tablechat/internal/models"
	"tablechat/internal/prompts"

	"github.com/rs/zerolog"
)

// How a decision was reached.
const (
	ViaKeyword      = "keyword"
	ViaAffirmation  = "affirmation"
	ViaContinuation = "continuation"
	ViaSlots        = "slots"
	ViaOracle       = "oracle"
	ViaFallback     = "fallback"
)

// ContinuationTokens is the length below which a message may continue the previous intent.
const ContinuationTokens = 10

const (
	weak   = 1
	strong = 2
)

type rule struct {
	intent models.Intent
	strong []*regexp.Regexp
	weak   []*regexp.Regexp
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// rules are kept in tie-break order.
var rules = []rule{
	{
		intent: models.IntentGreeting,
		weak: compile(
			`^(?:hi|hello|hey|hiya|howdy|greetings|good (?:morning|afternoon|evening))\b`,
			`\bwhat can you do\b`, `^help\b`,
		),
	},
	{
		intent: models.IntentCheckAvailability,
		strong: compile(
			`\b(?:available|availability)\b`,
			`\bany (?:tables?|space|room|slots?)\b`,
			`\b(?:do|does) (?:you|the restaurant) have (?:a |any )?(?:tables?|space|room)\b`,
			`\b(?:are|is) (?:you|there|it) (?:open|free)\b`,
		),
		weak: compile(`\bfree\b`, `\bopen\b`),
	},
	{
		intent: models.IntentCreateBooking,
		strong: compile(
			`\b(?:book|reserve)\b`,
			`\b(?:make|new) (?:a )?(?:booking|reservation)\b`,
		),
		weak: compile(`\b(?:reservation|table)\b`),
	},
	{
		intent: models.IntentGetBooking,
		strong: compile(
			`\b(?:check|show|find|look up|lookup) (?:my|the|a) (?:booking|reservation)\b`,
			`\b(?:booking|reservation) (?:details|status)\b`,
			`\bwhat(?:'s| is| was) (?:my|the) (?:booking|reservation|reference)\b`,
			`\bstatus of\b`,
		),
		weak: compile(`\bmy (?:booking|reservation)\b`, `\breference\b`),
	},
	{
		intent: models.IntentUpdateBooking,
		strong: compile(`\b(?:change|modify|update|reschedule|amend)\b`, `\bmove (?:my|the|it)\b`),
	},
	{
		intent: models.IntentCancelBooking,
		strong: compile(`\b(?:cancel|cancellation)\b`, `\bcall (?:it )?off\b`),
	},
}

var (
	affirmativeRe = regexp.MustCompile(`^(?:yes|yeah|yep|sure|ok|okay|please do|sounds good|go ahead|let's do it)\b`)
	replacementRe = regexp.MustCompile(`\b(?:change|update|modify|reschedule|amend|actually|instead|rather|make it|move it|switch)\b`)
	punctRe       = regexp.MustCompile(`[^\p{L}\p{N}'\s:/.-]+`)
)

// Input is what the classifier looks at.
type Input struct {
	Message string
	Last    models.Intent
	// Extracted holds the slots found in this very message.
	Extracted models.Slots
}

// Result is the chosen intent and how it was chosen.
type Result struct {
	Intent models.Intent
	Via    string
}

type Classifier struct {
	oracle  domain.Oracle
	prompts *prompts.Set
	timeout time.Duration
	logger  *zerolog.Logger
}

type Option func(*Classifier)

// WithOracle enables the model fallback for messages no keyword matches.
func WithOracle(o domain.Oracle, set *prompts.Set, timeout time.Duration) Option {
	return func(c *Classifier) {
		c.oracle = o
		c.prompts = set
		c.timeout = timeout
	}
}

func New(logger *zerolog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Classifier{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.prompts == nil {
		c.prompts = prompts.Default()
	}
	return c
}

// Classify never fails; the worst answer is unclear.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	text := Normalize(in.Message)

	cue, strength := matchKeywords(text)
	if strength == strong {
		return Result{Intent: cue, Via: ViaKeyword}
	}

	tokens := len(strings.Fields(text))
	if in.Last == models.IntentCheckAvailability && affirmativeRe.MatchString(text) {
		return Result{Intent: models.IntentCreateBooking, Via: ViaAffirmation}
	}
	// "the reference is ABC1234" answers a pending cancel, it does not start a lookup.
	if tokens > 0 && tokens < ContinuationTokens && in.Last.Continuable() {
		return Result{Intent: in.Last, Via: ViaContinuation}
	}
	if strength == weak {
		return Result{Intent: cue, Via: ViaKeyword}
	}
	if !in.Extracted.Empty() {
		return Result{Intent: models.IntentProvideInfo, Via: ViaSlots}
	}

	if c.oracle != nil && tokens > 0 {
		if it, ok := c.askOracle(ctx, in); ok {
			return Result{Intent: it, Via: ViaOracle}
		}
	}
	return Result{Intent: models.IntentUnclear, Via: ViaFallback}
}

// matchKeywords returns the best cue and its strength, zero when nothing matched.
func matchKeywords(text string) (models.Intent, int) {
	best := models.IntentNone
	bestStrength := 0
	for _, r := range rules {
		s := 0
		if anyMatch(r.strong, text) {
			s = strong
		} else if anyMatch(r.weak, text) {
			s = weak
		}
		// strictly greater keeps the earlier intent on ties
		if s > bestStrength {
			best, bestStrength = r.intent, s
		}
	}
	return best, bestStrength
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (c *Classifier) askOracle(ctx context.Context, in Input) (models.Intent, bool) {
	names := make([]string, 0, len(models.Intents))
	for _, it := range models.Intents {
		names = append(names, string(it))
	}
	prompt, err := c.prompts.Prompt(prompts.Intent, map[string]interface{}{
		"Message":    in.Message,
		"LastIntent": string(in.Last),
		"Intents":    names,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to render intent prompt")
		return models.IntentNone, false
	}

	raw, err := c.oracle.Generate(ctx, prompt, c.timeout)
	if err != nil {
		c.logger.Warn().Err(err).Str("oracle", c.oracle.Name()).Msg("intent oracle failed")
		return models.IntentNone, false
	}

	answer := strings.Trim(strings.ToLower(strings.TrimSpace(raw)), "\"'`.")
	it, ok := models.ParseIntent(answer)
	if !ok || it == models.IntentNone {
		c.logger.Debug().Str("answer", raw).Msg("oracle answered an unknown intent")
		return models.IntentNone, false
	}
	return it, true
}

// ImpliesReplacement reports whether the message asks to overwrite known values.
func ImpliesReplacement(message string) bool {
	return replacementRe.MatchString(Normalize(message))
}

// Normalize lower-cases the message, unifies apostrophes and drops punctuation
// that carries no meaning for keyword rules.
func Normalize(message string) string {
	text := strings.ToLower(strings.TrimSpace(message))
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)
	text = punctRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
