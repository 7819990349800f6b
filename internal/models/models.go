package models

import "time"

// Turn is one line of conversation history.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ConversationState is everything remembered about one session.
type ConversationState struct {
	SessionID     string                `json:"session_id"`
	Slots         Slots                 `json:"slots"`
	Confidence    map[string]Confidence `json:"confidence"`
	Step          Step                  `json:"step"`
	LastIntent    Intent                `json:"last_intent"`
	LastReference string                `json:"last_reference,omitempty"`
	// Pending holds details for a side request (availability, update) that
	// is still waiting for its required slot. It never feeds the pipeline.
	Pending       Slots                 `json:"pending"`
	Attempts      int                   `json:"attempts"`
	History       []Turn                `json:"history"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID:  sessionID,
		Confidence: make(map[string]Confidence),
		Step:       StepGreeting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Merge folds freshly extracted slots into the state.
// A known value is replaced only when the new candidate is at least as
// confident, or when replace is set by an amending intent.
func (s *ConversationState) Merge(extracted Slots, confidence map[string]Confidence, replace bool) []string {
	if s.Confidence == nil {
		s.Confidence = make(map[string]Confidence)
	}

	var changed []string
	for _, name := range extracted.Present() {
		newVal, _ := extracted.Get(name)
		oldVal, known := s.Slots.Get(name)
		conf := confidence[name]

		if known {
			if oldVal == newVal {
				if conf > s.Confidence[name] {
					s.Confidence[name] = conf
				}
				continue
			}
			if !replace && conf < s.Confidence[name] {
				continue
			}
		}

		s.Slots.Take(name, extracted)
		s.Confidence[name] = conf
		changed = append(changed, name)
	}
	return changed
}

// Forget drops a slot together with its confidence.
func (s *ConversationState) Forget(name string) {
	s.Slots.Clear(name)
	delete(s.Confidence, name)
}

// NextMissing returns the first required booking slot that is still unknown.
func (s *ConversationState) NextMissing() (string, bool) {
	missing := s.Slots.Missing(RequiredBookingSlots)
	if len(missing) == 0 {
		return "", false
	}
	return missing[0], true
}

// ResetPipeline returns the conversation to the greeting step with no slots,
// keeping only the last issued booking reference.
func (s *ConversationState) ResetPipeline() {
	s.Slots = Slots{}
	s.Confidence = make(map[string]Confidence)
	s.Step = StepGreeting
	s.LastIntent = IntentNone
	s.Attempts = 0
	s.Pending = Slots{}
}

// AddTurn appends a history line and drops the oldest ones beyond limit.
func (s *ConversationState) AddTurn(role, text string, limit int, now time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, At: now})
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(s.History) > limit {
		s.History = append([]Turn(nil), s.History[len(s.History)-limit:]...)
	}
	s.UpdatedAt = now
}

// Clone returns a deep copy safe to hand out of the session lock.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Confidence = make(map[string]Confidence, len(s.Confidence))
	for k, v := range s.Confidence {
		out.Confidence[k] = v
	}
	out.History = append([]Turn(nil), s.History...)
	return &out
}
