package extractor

import (
	"strings"

	"tablechat/internal/datetime"
)

// words that are never part of a customer name
var stopwords = toSet(
	// greetings and small talk
	"hi", "hello", "hey", "hiya", "howdy", "morning", "afternoon", "evening", "good",
	"thanks", "thank", "thx", "cheers", "ok", "okay", "yes", "yeah", "yep", "no", "nope",
	"sure", "great", "perfect", "fine", "cool", "awesome", "lovely", "nice", "please", "sorry",
	"bye", "goodbye", "hmm", "um", "uh", "help", "again", "actually", "instead", "just", "only",
	"also", "maybe", "sounds",
	// booking vocabulary
	"book", "booking", "bookings", "reservation", "reserve", "table", "cancel", "change",
	"update", "modify", "reschedule", "move", "check", "availability", "available", "free",
	"open", "details", "status", "find", "look", "menu", "start", "reset", "stop", "try",
	"retry", "dinner", "lunch", "breakfast", "brunch", "restaurant", "people", "guests",
	"persons", "party", "time", "date", "name", "reference", "ref", "special", "request",
	"requests", "new", "want", "like", "need", "would", "could", "can", "make",
	// dates
	"today", "tomorrow", "tonight", "weekend", "next", "this", "day", "week",
	// function words
	"a", "an", "the", "my", "our", "your", "for", "at", "on", "in", "to", "and", "or", "with",
	"of", "is", "are", "am", "pm", "i", "me", "we", "us", "it", "that", "what", "when",
	"where", "how", "there", "here", "looking", "from", "by", "be", "was",
)

func toSet(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

func isStopword(word string) bool {
	w := strings.ToLower(strings.Trim(word, ".,!?;:'\""))
	if w == "" {
		return true
	}
	return stopwords[w] || datetime.IsWeekday(w)
}
