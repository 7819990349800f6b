// Package extractor pulls booking slots out of free-form chat messages.
//
// Strategies run in order (oracle first when configured, deterministic
// patterns last) and the first one producing a non-empty, validated result
// wins. The pattern strategy never does I/O, so extraction always completes.
package extractor

import (
	"context"
	"errors"
	"time"

	"tablechat/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrExtractionAmbiguous means a strategy produced output that could not be decoded.
	ErrExtractionAmbiguous = errors.New("extraction ambiguous")
	// ErrValidationRejected marks a candidate value that failed range or format checks.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrNoMatch means a strategy found nothing in the message.
	ErrNoMatch = errors.New("no match")
)

// Extraction sources.
const (
	SourceOracle  = "oracle"
	SourcePattern = "pattern"
	SourceNone    = "none"
)

// Input is everything a strategy may look at.
type Input struct {
	Message string
	Known   models.Slots
	// Expect is the slot the conversation is currently asking for, if any.
	Expect string
	Now    time.Time
}

// Result is a partial slot set with per-slot confidence.
type Result struct {
	Slots      models.Slots
	Confidence map[string]models.Confidence
	Source     string
}

// Empty reports whether nothing was extracted.
func (r Result) Empty() bool {
	return r.Slots.Empty()
}

func (r *Result) set(name string, conf models.Confidence) {
	if r.Confidence == nil {
		r.Confidence = make(map[string]models.Confidence)
	}
	r.Confidence[name] = conf
}

// Strategy is one way of extracting slots.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in Input) (Result, error)
}

// Observer is told which source served each extraction.
type Observer func(source string)

type Extractor struct {
	strategies []Strategy
	logger     *zerolog.Logger
	observe    Observer
}

type Option func(*Extractor)

// WithObserver registers a callback for the winning source, used for metrics.
func WithObserver(o Observer) Option {
	return func(e *Extractor) { e.observe = o }
}

// New builds an extractor trying strategies in the given order.
func New(logger *zerolog.Logger, strategies []Strategy, opts ...Option) *Extractor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	e := &Extractor{strategies: strategies, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract walks the strategies until one yields a validated, non-empty result.
// It never fails: an empty Result with SourceNone means nothing was found.
func (e *Extractor) Extract(ctx context.Context, in Input) Result {
	for _, s := range e.strategies {
		res, err := s.Attempt(ctx, in)
		if err != nil {
			ev := e.logger.Debug()
			if !errors.Is(err, ErrNoMatch) {
				ev = e.logger.Warn()
			}
			ev.Err(err).Str("strategy", s.Name()).Msg("extraction strategy fell through")
			continue
		}

		accepted, rejected := Validate(res.Slots, in.Now)
		for _, rerr := range rejected {
			e.logger.Debug().Err(rerr).Str("strategy", s.Name()).Msg("dropped extracted value")
		}
		if accepted.Empty() {
			continue
		}

		out := Result{Slots: accepted, Source: s.Name()}
		for _, name := range accepted.Present() {
			conf := res.Confidence[name]
			if conf == models.ConfidenceNone {
				conf = models.ConfidenceLow
			}
			out.set(name, conf)
		}
		e.notify(out.Source)
		return out
	}

	e.notify(SourceNone)
	return Result{Source: SourceNone}
}

func (e *Extractor) notify(source string) {
	if e.observe != nil {
		e.observe(source)
	}
}
