// Package datetime turns natural date and time phrases into canonical
// YYYY-MM-DD and 24-hour HH:MM values.
package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tablechat/internal/models"
)

// ErrUnresolved is returned when a phrase carries no recognizable date or time.
var ErrUnresolved = errors.New("unresolved date or time phrase")

// HourPolicy decides what a bare hour without am/pm means.
type HourPolicy int

const (
	// PolicySplit treats bare 1-5 as afternoon/evening (+12) and bare 6-11 as
	// the literal morning hour. "4" becomes 16:00 but "8" stays 08:00, so
	// morning hours are only reachable without a meridiem above 5.
	PolicySplit HourPolicy = iota
	// PolicyEvening treats every bare 1-11 as pm: "8" becomes 20:00 and a
	// morning time can only be given with "am" or in 24-hour form.
	PolicyEvening
	// PolicyLiteral reads bare hours as 24-hour values.
	PolicyLiteral
)

// ParseHourPolicy maps a config value onto a policy. Empty means PolicySplit.
func ParseHourPolicy(raw string) (HourPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "split":
		return PolicySplit, nil
	case "evening", "dinner":
		return PolicyEvening, nil
	case "literal":
		return PolicyLiteral, nil
	default:
		return PolicySplit, fmt.Errorf("unknown bare hour policy %q", raw)
	}
}

func (p HourPolicy) String() string {
	switch p {
	case PolicyEvening:
		return "evening"
	case PolicyLiteral:
		return "literal"
	default:
		return "split"
	}
}

// Apply maps a bare hour (no am/pm) according to the policy.
func (p HourPolicy) Apply(hour int) int {
	if hour < 1 || hour > 11 {
		return hour
	}
	switch p {
	case PolicyEvening:
		return hour + 12
	case PolicyLiteral:
		return hour
	default:
		if hour <= 5 {
			return hour + 12
		}
		return hour
	}
}

// Resolver converts phrases relative to a clock.
type Resolver struct {
	policy HourPolicy
	loc    *time.Location
	now    func() time.Time
}

type Option func(*Resolver)

// WithHourPolicy sets the bare hour policy.
func WithHourPolicy(p HourPolicy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLocation pins the restaurant time zone.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		policy: PolicySplit,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the resolver's reference time in the restaurant zone.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.loc)
}

// Policy returns the configured bare hour policy.
func (r *Resolver) Policy() HourPolicy {
	return r.policy
}

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	inDaysRe     = regexp.MustCompile(`\bin\s+(\d{1,2})\s+days?\b`)
	dayMonthRe   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthPattern + `)\b(?:\s+(\d{4}))?`)
	monthDayRe   = regexp.MustCompile(`\b(` + monthPattern + `)\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`)
	nextRe       = regexp.MustCompile(`\bnext\b`)
	wordRe       = regexp.MustCompile(`[a-z]+`)
	meridiemDots = strings.NewReplacer("a.m.", "am", "p.m.", "pm", "a.m", "am", "p.m", "pm")
	dotTimeRe    = regexp.MustCompile(`\b(\d{1,2})\.(\d{2})\b`)
	clockRe      = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*(am|pm)?\b`)
)

const monthPattern = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec`

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// IsWeekday reports whether word names a day of the week.
func IsWeekday(word string) bool {
	_, ok := weekdays[strings.ToLower(word)]
	return ok
}

// ResolveDate finds a date in phrase and returns it as YYYY-MM-DD.
// Relative words are resolved against ref's calendar day.
func (r *Resolver) ResolveDate(phrase string, ref time.Time) (string, error) {
	text := strings.ToLower(strings.TrimSpace(phrase))
	if text == "" {
		return "", ErrUnresolved
	}
	ref = ref.In(r.loc)
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, r.loc)

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return r.exactDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := slashDateRe.FindStringSubmatch(text); m != nil {
		return r.exactDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		return r.monthDate(today, months[m[2]], atoi(m[1]), m[3])
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		return r.monthDate(today, months[m[1]], atoi(m[2]), m[3])
	}
	if m := inDaysRe.FindStringSubmatch(text); m != nil {
		return format(today.AddDate(0, 0, atoi(m[1]))), nil
	}

	words := wordRe.FindAllString(text, -1)
	has := func(w string) bool {
		for _, x := range words {
			if x == w {
				return true
			}
		}
		return false
	}

	if strings.Contains(text, "day after tomorrow") {
		return format(today.AddDate(0, 0, 2)), nil
	}
	if has("today") || has("tonight") {
		return format(today), nil
	}
	if has("tomorrow") {
		return format(today.AddDate(0, 0, 1)), nil
	}

	next := nextRe.MatchString(text)
	if has("weekend") {
		return format(upcoming(today, time.Saturday, next)), nil
	}
	for _, w := range words {
		if wd, ok := weekdays[w]; ok {
			return format(upcoming(today, wd, next)), nil
		}
	}

	return "", ErrUnresolved
}

// DateSpans returns the byte ranges of explicit date shapes (ISO, DD/MM/YYYY,
// month names, "in N days") in lower-case text, so callers can keep their
// digits away from time and party size rules.
func DateSpans(text string) [][]int {
	var out [][]int
	for _, re := range []*regexp.Regexp{isoDateRe, slashDateRe, dayMonthRe, monthDayRe, inDaysRe} {
		out = append(out, re.FindAllStringIndex(text, -1)...)
	}
	return out
}

// IsMonth reports whether word names a month, full or abbreviated.
func IsMonth(word string) bool {
	_, ok := months[strings.ToLower(word)]
	return ok
}

// upcoming returns the first wd strictly after today; next pushes it one more week.
func upcoming(today time.Time, wd time.Weekday, next bool) time.Time {
	ahead := (int(wd) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	if next {
		ahead += 7
	}
	return today.AddDate(0, 0, ahead)
}

func (r *Resolver) exactDate(year, month, day int) (string, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", ErrUnresolved
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc)
	// 31/02 нормализуется в март, такие даты отклоняем
	if d.Day() != day || int(d.Month()) != month {
		return "", ErrUnresolved
	}
	return format(d), nil
}

func (r *Resolver) monthDate(today time.Time, month time.Month, day int, rawYear string) (string, error) {
	if rawYear != "" {
		return r.exactDate(atoi(rawYear), int(month), day)
	}
	out, err := r.exactDate(today.Year(), int(month), day)
	if err != nil {
		return "", err
	}
	if out < format(today) {
		return r.exactDate(today.Year()+1, int(month), day)
	}
	return out, nil
}

// ResolveTime finds a clock time in phrase and returns it as HH:MM.
func (r *Resolver) ResolveTime(phrase string) (string, error) {
	text := strings.ToLower(strings.TrimSpace(phrase))
	if text == "" {
		return "", ErrUnresolved
	}
	switch text {
	case "noon", "midday":
		return "12:00", nil
	case "midnight":
		return "00:00", nil
	}

	text = meridiemDots.Replace(text)
	text = dotTimeRe.ReplaceAllString(text, "$1:$2")

	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return "", ErrUnresolved
	}
	hour := atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute = atoi(m[2])
	}
	if m[3] != "" && atoi(m[3]) > 59 {
		return "", ErrUnresolved
	}

	hour, ok := r.hour24(hour, m[4])
	if !ok || minute > 59 {
		return "", ErrUnresolved
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

func (r *Resolver) hour24(hour int, meridiem string) (int, bool) {
	switch meridiem {
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour < 12 {
			hour += 12
		}
		return hour, true
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
		return hour, true
	default:
		if hour > 23 {
			return 0, false
		}
		return r.policy.Apply(hour), true
	}
}

// CanonicalDate reports whether s is already a valid YYYY-MM-DD date.
func CanonicalDate(s string) bool {
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}

// CanonicalTime reports whether s is already a valid 24-hour HH:MM time.
func CanonicalTime(s string) bool {
	if len(s) != len(models.TimeLayout) {
		return false
	}
	_, err := time.Parse(models.TimeLayout, s)
	return err == nil
}

func format(t time.Time) string {
	return t.Format(models.DateLayout)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
