package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"tablechat/internal/datetime"
	"tablechat/internal/models"
)

const (
	maxNameWords       = 4
	maxNameLength      = 60
	maxSpecialRequests = 200
)

var referenceRe = regexp.MustCompile(`^[A-Z0-9]{6,8}$`)

// Validate drops every candidate that fails its range or format check.
// The second return lists what was dropped, each wrapping ErrValidationRejected.
func Validate(s models.Slots, now time.Time) (models.Slots, []error) {
	var out models.Slots
	var rejected []error
	reject := func(name, value, why string) {
		rejected = append(rejected, fmt.Errorf("%w: %s=%q: %s", ErrValidationRejected, name, value, why))
	}

	if s.Name != "" {
		if name, ok := cleanName(s.Name); ok {
			out.Name = name
		} else {
			reject(models.SlotName, s.Name, "not a plausible name")
		}
	}

	if s.Date != "" {
		if why := checkDate(s.Date, now); why == "" {
			out.Date = s.Date
		} else {
			reject(models.SlotDate, s.Date, why)
		}
	}

	if s.Time != "" {
		if datetime.CanonicalTime(s.Time) {
			out.Time = s.Time
		} else {
			reject(models.SlotTime, s.Time, "not HH:MM")
		}
	}

	if s.PartySize != 0 {
		if s.PartySize >= models.MinPartySize && s.PartySize <= models.MaxPartySize {
			out.PartySize = s.PartySize
		} else {
			reject(models.SlotPartySize, fmt.Sprint(s.PartySize), "out of range")
		}
	}

	if s.BookingReference != "" {
		ref := strings.ToUpper(strings.TrimSpace(s.BookingReference))
		if referenceRe.MatchString(ref) {
			out.BookingReference = ref
		} else {
			reject(models.SlotBookingReference, s.BookingReference, "bad format")
		}
	}

	if s.SpecialRequests != "" {
		req := strings.TrimSpace(s.SpecialRequests)
		if req != "" && len(req) <= maxSpecialRequests {
			out.SpecialRequests = req
		} else {
			reject(models.SlotSpecialRequests, s.SpecialRequests, "too long")
		}
	}

	return out, rejected
}

func checkDate(value string, now time.Time) string {
	d, err := time.ParseInLocation(models.DateLayout, value, now.Location())
	if err != nil {
		return "not YYYY-MM-DD"
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return "in the past"
	}
	if d.After(today.AddDate(0, 0, models.MaxBookingDays)) {
		return "too far ahead"
	}
	return ""
}

// cleanName normalizes whitespace and checks the value looks like a person's name.
func cleanName(raw string) (string, bool) {
	words := strings.Fields(raw)
	if len(words) == 0 || len(words) > maxNameWords {
		return "", false
	}
	// "June Smith" is a name, a lone "June" is a date
	if len(words) == 1 && datetime.IsMonth(words[0]) {
		return "", false
	}
	name := strings.Join(words, " ")
	if len(name) < 2 || len(name) > maxNameLength {
		return "", false
	}
	for _, w := range words {
		if isStopword(w) {
			return "", false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' && r != '.' {
				return "", false
			}
		}
	}
	return name, true
}
