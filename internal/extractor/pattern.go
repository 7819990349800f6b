package extractor

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"tablechat/internal/datetime"
	"tablechat/internal/models"
)

const countPattern = `\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|` +
	`thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|a couple|couple`

const meridiemPattern = `(?:[ap]\.m\.?|[ap]m\b)`

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"a couple": 2, "couple": 2,
}

var (
	// размер компании, в порядке приоритета
	partyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(` + countPattern + `)\s+(?:people|persons|person|guests|guest|pax|adults|diners|of us)\b`),
		regexp.MustCompile(`\bparty\s+of\s+(` + countPattern + `)\b`),
		regexp.MustCompile(`\btable\s+for\s+(` + countPattern + `)\b`),
		regexp.MustCompile(`\b(?:we are|we're|there are|there will be|there'll be)\s+(` + countPattern + `)\b`),
		regexp.MustCompile(`\bfor\s+(` + countPattern + `)\b`),
	}

	timePatterns = []struct {
		re   *regexp.Regexp
		conf models.Confidence
		free bool // bare "at 7" needs a follow-up check against unit words
	}{
		{regexp.MustCompile(`\b\d{1,2}[:.]\d{2}\s*` + meridiemPattern), models.ConfidenceHigh, false},
		{regexp.MustCompile(`\b\d{1,2}\s*` + meridiemPattern), models.ConfidenceHigh, false},
		{regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d(?::[0-5]\d)?\b`), models.ConfidenceHigh, false},
		{regexp.MustCompile(`\b(?:noon|midday|midnight)\b`), models.ConfidenceHigh, false},
		{regexp.MustCompile(`\b\d{1,2}\s*o'?clock\b`), models.ConfidenceMedium, false},
		{regexp.MustCompile(`\b(?:at|around|about|by)\s+\d{1,2}\b`), models.ConfidenceMedium, true},
	}

	bareNumberRe = regexp.MustCompile(`\b\d{1,2}\b`)

	referenceTokenRe  = regexp.MustCompile(`\b[A-Z0-9]{6,8}\b`)
	referenceAnchorRe = regexp.MustCompile(`(?i)\b(?:reference|ref|booking|confirmation|code)\b[\s:#]*(?:(?:number|no\.?|is|was|id)[\s:#]*)*([A-Za-z0-9]{6,8})\b`)

	nameAnchorRe = regexp.MustCompile(`(?i:\b(my name is|my name's|name is|name's|call me|i am|i'm|this is|under the name of|under the name|under))\s+([A-Za-z][A-Za-z'\-]*(?:\s+[A-Za-z][A-Za-z'\-]*){0,3})`)

	// "... at 6pm for Alex Kim": only capitalized words count after a bare "for"
	forNameRe = regexp.MustCompile(`\b(?:[Ff]or|FOR)\s+([A-Za-z][A-Za-z'\-]*(?:\s+[A-Za-z][A-Za-z'\-]*){0,3})`)

	segmentSplitRe = regexp.MustCompile(`[,;\n]+`)

	specialRequestRe = regexp.MustCompile(`(?i)\bspecial requests?\b\s*(?:is|are|:|-)?\s*([^\n]+)`)
	occasionRe       = regexp.MustCompile(`(?i)\b(allergic to [a-z]+|[a-z]+ allerg(?:y|ies)|(?:gluten|dairy|nut)[- ]free|vegan|vegetarian|halal|kosher|wheelchair(?: access(?:ible)?)?|high ?chair|birthday|anniversary)\b`)
)

// lenient anchors accept a lower-case name
var lenientNameAnchors = map[string]bool{
	"my name is": true,
	"my name's":  true,
	"name is":    true,
	"name's":     true,
	"call me":    true,
}

// words that turn a neighboring number into something other than a time or head count
var unitWords = map[string]bool{
	"people": true, "persons": true, "person": true, "guests": true, "guest": true, "pax": true,
	"adults": true, "diners": true, "day": true, "days": true, "week": true, "weeks": true,
	"night": true, "nights": true, "hour": true, "hours": true, "minutes": true, "mins": true,
	"am": true, "pm": true, "o'clock": true, "oclock": true,
}

// PatternStrategy is the deterministic, I/O-free extractor.
type PatternStrategy struct {
	resolver *datetime.Resolver
}

func NewPatternStrategy(r *datetime.Resolver) *PatternStrategy {
	if r == nil {
		r = datetime.NewResolver()
	}
	return &PatternStrategy{resolver: r}
}

func (p *PatternStrategy) Name() string { return SourcePattern }

func (p *PatternStrategy) Attempt(_ context.Context, in Input) (Result, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return Result{}, ErrNoMatch
	}
	lower := asciiLower(msg)

	var res Result
	var used spans

	if ref, span, conf := findReference(msg); ref != "" {
		res.Slots.BookingReference = ref
		res.set(models.SlotBookingReference, conf)
		used.add(span)
	}

	dateShapes := spans(datetime.DateSpans(lower))
	guarded := append(append(spans(nil), used...), dateShapes...)

	if n, span, ok := findPartySize(lower, guarded); ok {
		res.Slots.PartySize = n
		res.set(models.SlotPartySize, models.ConfidenceHigh)
		used.add(span)
		guarded.add(span)
	} else if span != nil {
		// out-of-range head count: consume it so bare numbers cannot reuse it
		used.add(span)
		guarded.add(span)
	}

	if value, span, conf := p.findTime(lower, guarded); value != "" {
		res.Slots.Time = value
		res.set(models.SlotTime, conf)
		used.add(span)
		guarded.add(span)
	}

	p.bareNumbers(lower, guarded, in, &res)

	if date, err := p.resolver.ResolveDate(used.mask(lower), in.Now); err == nil {
		res.Slots.Date = date
		res.set(models.SlotDate, models.ConfidenceHigh)
	}

	if name, conf := findName(msg, guarded.mask(msg), in); name != "" {
		res.Slots.Name = name
		res.set(models.SlotName, conf)
	}

	if req := findSpecialRequests(msg); req != "" {
		res.Slots.SpecialRequests = req
		res.set(models.SlotSpecialRequests, models.ConfidenceMedium)
	}

	if res.Slots.Empty() {
		return Result{}, ErrNoMatch
	}
	res.Source = SourcePattern
	return res, nil
}

func findReference(msg string) (string, []int, models.Confidence) {
	for _, loc := range referenceTokenRe.FindAllStringIndex(msg, -1) {
		tok := msg[loc[0]:loc[1]]
		if hasLetter(tok) && hasDigit(tok) {
			return tok, loc, models.ConfidenceHigh
		}
	}
	if m := referenceAnchorRe.FindStringSubmatchIndex(msg); m != nil {
		tok := msg[m[2]:m[3]]
		if hasDigit(tok) {
			return strings.ToUpper(tok), []int{m[2], m[3]}, models.ConfidenceHigh
		}
	}
	return "", nil, models.ConfidenceNone
}

// findPartySize returns the first head count pattern. A span with ok=false
// means a head count was stated but is out of range.
func findPartySize(lower string, guarded spans) (int, []int, bool) {
	for i, re := range partyPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(lower, -1) {
			span := []int{m[2], m[3]}
			if guarded.overlaps(span) {
				continue
			}
			// "for 7pm", "for 05/11", "for 3 nights" are not head counts
			if i == len(partyPatterns)-1 && followedByUnit(lower[m[3]:]) {
				continue
			}
			n := parseCount(lower[m[2]:m[3]])
			if n >= models.MinPartySize && n <= models.MaxPartySize {
				return n, span, true
			}
			return 0, span, false
		}
	}
	return 0, nil, false
}

func (p *PatternStrategy) findTime(lower string, guarded spans) (string, []int, models.Confidence) {
	for _, tp := range timePatterns {
		for _, loc := range tp.re.FindAllStringIndex(lower, -1) {
			if guarded.overlaps(loc) {
				continue
			}
			if tp.free && followedByUnit(lower[loc[1]:]) {
				continue
			}
			value, err := p.resolver.ResolveTime(lower[loc[0]:loc[1]])
			if err != nil {
				continue
			}
			return value, loc, tp.conf
		}
	}
	return "", nil, models.ConfidenceNone
}

// bareNumbers reads lone integers as a time or a head count, last resort only.
func (p *PatternStrategy) bareNumbers(lower string, guarded spans, in Input, res *Result) {
	switch in.Expect {
	case "", models.SlotTime, models.SlotPartySize:
	default:
		return
	}

	for _, loc := range bareNumberRe.FindAllStringIndex(lower, -1) {
		if guarded.overlaps(loc) || !standalone(lower, loc) {
			continue
		}
		n, _ := strconv.Atoi(lower[loc[0]:loc[1]])

		wantTime := res.Slots.Time == "" && in.Expect != models.SlotPartySize &&
			(in.Expect == models.SlotTime || !in.Known.Has(models.SlotTime))
		if wantTime && n >= 1 && n <= 12 {
			if value, err := p.resolver.ResolveTime(strconv.Itoa(n)); err == nil {
				res.Slots.Time = value
				res.set(models.SlotTime, answerConfidence(in.Expect, models.SlotTime))
				continue
			}
		}

		if res.Slots.PartySize == 0 && n >= models.MinPartySize && n <= models.MaxPartySize {
			res.Slots.PartySize = n
			res.set(models.SlotPartySize, answerConfidence(in.Expect, models.SlotPartySize))
		}
	}
}

// a direct answer to the question just asked is worth more than a stray number
func answerConfidence(expect, slot string) models.Confidence {
	if expect == slot {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// findName tries anchored phrases, then "for <Name>" on masked (party size,
// time and date spans blanked), then bare capitalized segments.
func findName(msg, masked string, in Input) (string, models.Confidence) {
	for _, m := range nameAnchorRe.FindAllStringSubmatch(msg, -1) {
		lenient := lenientNameAnchors[strings.ToLower(strings.Join(strings.Fields(m[1]), " "))]
		var words []string
		for _, w := range strings.Fields(m[2]) {
			if isStopword(w) || (!lenient && !capitalized(w)) {
				break
			}
			words = append(words, w)
		}
		if len(words) > 0 {
			return titleCase(words), models.ConfidenceHigh
		}
	}

	if in.Known.Has(models.SlotName) && in.Expect != models.SlotName {
		return "", models.ConfidenceNone
	}

	for _, m := range forNameRe.FindAllStringSubmatch(masked, -1) {
		var words []string
		for _, w := range strings.Fields(m[1]) {
			lw := strings.ToLower(w)
			if !capitalized(w) || isStopword(w) || datetime.IsMonth(lw) || numberWords[lw] != 0 {
				break
			}
			words = append(words, w)
		}
		if len(words) > 0 {
			return strings.Join(words, " "), models.ConfidenceMedium
		}
	}

	for _, seg := range segmentSplitRe.Split(msg, -1) {
		words := strings.Fields(strings.Trim(seg, " \t.!?"))
		if len(words) == 0 || len(words) > maxNameWords {
			continue
		}
		if allWords(words, func(w string) bool { return capitalized(w) && !isStopword(w) && alpha(w) }) {
			return strings.Join(words, " "), models.ConfidenceMedium
		}
	}

	// "john smith" typed in reply to "what name should the booking be under?"
	if in.Expect == models.SlotName {
		words := strings.Fields(strings.Trim(msg, " \t.!?"))
		if len(words) > 0 && len(words) <= 3 && allWords(words, func(w string) bool { return !isStopword(w) && alpha(w) }) {
			return titleCase(words), models.ConfidenceLow
		}
	}
	return "", models.ConfidenceNone
}

func findSpecialRequests(msg string) string {
	if m := specialRequestRe.FindStringSubmatch(msg); m != nil {
		return strings.Trim(m[1], " \t.!?")
	}

	seen := make(map[string]bool)
	var parts []string
	for _, m := range occasionRe.FindAllString(msg, -1) {
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			parts = append(parts, key)
		}
	}
	return strings.Join(parts, ", ")
}

func parseCount(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return numberWords[s]
}

// followedByUnit reports whether rest starts with something that makes the
// preceding number a clock time, a date part, a duration or a head count.
func followedByUnit(rest string) bool {
	if rest == "" {
		return false
	}
	switch rest[0] {
	case ':', '/', '-':
		return true
	case '.':
		return len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9'
	}
	word := firstWord(rest)
	if word == "" {
		return false
	}
	return unitWords[word] || datetime.IsMonth(word)
}

// standalone rejects numbers glued to dates, prices, clock times or months.
func standalone(lower string, loc []int) bool {
	if loc[0] > 0 && strings.ContainsRune("/-:.#£$€@+", rune(lower[loc[0]-1])) {
		return false
	}
	if loc[1] < len(lower) {
		switch c := lower[loc[1]]; c {
		case '/', '-', ':', '%':
			return false
		case '.':
			if loc[1]+1 < len(lower) && lower[loc[1]+1] >= '0' && lower[loc[1]+1] <= '9' {
				return false
			}
		}
	}
	if followedByUnit(lower[loc[1]:]) {
		return false
	}
	if prev := lastWord(lower[:loc[0]]); prev != "" && datetime.IsMonth(prev) {
		return false
	}
	return true
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t")
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' })
	if end < 0 {
		end = len(s)
	}
	return s[:end]
}

func lastWord(s string) string {
	s = strings.TrimRight(s, " \t")
	start := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	return s[start+1:]
}

// asciiLower lower-cases A-Z only so byte offsets match the original message.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func hasLetter(s string) bool { return strings.IndexFunc(s, unicode.IsLetter) >= 0 }
func hasDigit(s string) bool  { return strings.IndexFunc(s, unicode.IsDigit) >= 0 }

func capitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func alpha(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return w != ""
}

func allWords(words []string, ok func(string) bool) bool {
	for _, w := range words {
		if !ok(w) {
			return false
		}
	}
	return true
}

func titleCase(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		out[i] = string(r)
	}
	return strings.Join(out, " ")
}

// spans is a set of byte ranges already claimed by an earlier rule.
type spans [][]int

func (s *spans) add(span []int) {
	if span != nil {
		*s = append(*s, span)
	}
}

func (s spans) overlaps(span []int) bool {
	for _, u := range s {
		if span[0] < u[1] && u[0] < span[1] {
			return true
		}
	}
	return false
}

// mask blanks the claimed ranges so later rules do not read them twice.
func (s spans) mask(text string) string {
	if len(s) == 0 {
		return text
	}
	sorted := append(spans(nil), s...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })
	b := []byte(text)
	for _, u := range sorted {
		for i := u[0]; i < u[1] && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}
