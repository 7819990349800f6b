package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"tablechat/internal/datetime"
	"tablechat/internal/domain"
	"tablechat/internal/models"
	"tablechat/internal/prompts"

	"github.com/mitchellh/mapstructure"
)

// OracleStrategy asks a language model for a JSON object of slots.
// Any failure falls through to the next strategy.
type OracleStrategy struct {
	oracle   domain.Oracle
	prompts  *prompts.Set
	resolver *datetime.Resolver
	timeout  time.Duration
}

func NewOracleStrategy(o domain.Oracle, set *prompts.Set, r *datetime.Resolver, timeout time.Duration) *OracleStrategy {
	if set == nil {
		set = prompts.Default()
	}
	if r == nil {
		r = datetime.NewResolver()
	}
	return &OracleStrategy{oracle: o, prompts: set, resolver: r, timeout: timeout}
}

func (s *OracleStrategy) Name() string { return SourceOracle }

type oraclePayload struct {
	Name             string      `mapstructure:"name"`
	Date             string      `mapstructure:"date"`
	Time             string      `mapstructure:"time"`
	PartySize        interface{} `mapstructure:"party_size"`
	BookingReference string      `mapstructure:"booking_reference"`
	SpecialRequests  string      `mapstructure:"special_requests"`
}

func (s *OracleStrategy) Attempt(ctx context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Message) == "" {
		return Result{}, ErrNoMatch
	}

	prompt, err := s.prompts.Prompt(prompts.Extraction, map[string]interface{}{
		"Today":   in.Now.Format(models.DateLayout),
		"Weekday": in.Now.Weekday().String(),
		"Known":   describe(in.Known),
		"Message": in.Message,
	})
	if err != nil {
		return Result{}, err
	}

	raw, err := s.oracle.Generate(ctx, prompt, s.timeout)
	if err != nil {
		return Result{}, err
	}

	obj, err := DecodeObject(raw)
	if err != nil {
		return Result{}, err
	}

	var payload oraclePayload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &payload,
	})
	if err != nil {
		return Result{}, err
	}
	if err := dec.Decode(obj); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionAmbiguous, err)
	}

	res, err := s.normalize(payload, in.Now)
	if err != nil {
		return Result{}, err
	}
	if res.Slots.Empty() {
		return Result{}, ErrNoMatch
	}
	res.Source = SourceOracle
	return res, nil
}

// normalize brings oracle values into canonical form. Models often answer
// "7pm" or "19:00:00" despite instructions, so values go through the resolver.
func (s *OracleStrategy) normalize(p oraclePayload, now time.Time) (Result, error) {
	var res Result
	conf := models.ConfidenceMedium

	if name := strings.TrimSpace(p.Name); name != "" && !nullish(name) {
		res.Slots.Name = name
		res.set(models.SlotName, conf)
	}

	if date := strings.TrimSpace(p.Date); date != "" && !nullish(date) {
		if !datetime.CanonicalDate(date) {
			resolved, err := s.resolver.ResolveDate(date, now)
			if err != nil {
				return Result{}, fmt.Errorf("%w: date %q", ErrExtractionAmbiguous, date)
			}
			date = resolved
		}
		res.Slots.Date = date
		res.set(models.SlotDate, conf)
	}

	if t := strings.TrimSpace(p.Time); t != "" && !nullish(t) {
		if !datetime.CanonicalTime(t) {
			resolved, err := s.resolver.ResolveTime(t)
			if err != nil {
				return Result{}, fmt.Errorf("%w: time %q", ErrExtractionAmbiguous, t)
			}
			t = resolved
		}
		res.Slots.Time = t
		res.set(models.SlotTime, conf)
	}

	if p.PartySize != nil {
		n, ok := partyFrom(p.PartySize)
		if !ok {
			return Result{}, fmt.Errorf("%w: party_size %v", ErrExtractionAmbiguous, p.PartySize)
		}
		// 0 means "not mentioned"; out-of-range values are dropped by Validate
		if n != 0 {
			res.Slots.PartySize = n
			res.set(models.SlotPartySize, conf)
		}
	}

	if ref := strings.TrimSpace(p.BookingReference); ref != "" && !nullish(ref) {
		res.Slots.BookingReference = ref
		res.set(models.SlotBookingReference, conf)
	}

	if req := strings.TrimSpace(p.SpecialRequests); req != "" && !nullish(req) {
		res.Slots.SpecialRequests = req
		res.set(models.SlotSpecialRequests, conf)
	}

	return res, nil
}

func partyFrom(v interface{}) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case int:
		return x, true
	case string:
		x = strings.ToLower(strings.TrimSpace(x))
		if x == "" || nullish(x) {
			return 0, true
		}
		n := parseCount(x)
		return n, n != 0
	default:
		return 0, false
	}
}

func nullish(s string) bool {
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown", "not mentioned":
		return true
	}
	return false
}

func describe(known models.Slots) string {
	var parts []string
	for _, name := range models.AllSlots {
		if v, ok := known.Get(name); ok {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, ", ")
}

// DecodeObject pulls the first balanced JSON object out of model output,
// tolerating markdown fences and chatter around it.
func DecodeObject(raw string) (map[string]interface{}, error) {
	text := stripFences(raw)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON object in oracle output", ErrExtractionAmbiguous)
	}

	end := balancedEnd(text[start:])
	if end < 0 {
		return nil, fmt.Errorf("%w: unbalanced JSON object in oracle output", ErrExtractionAmbiguous)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:start+end]), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionAmbiguous, err)
	}
	return obj, nil
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.Contains(text, "```") {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// balancedEnd returns the length of the object starting at s[0], or -1.
func balancedEnd(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
