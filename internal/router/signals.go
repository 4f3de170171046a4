package router

import "strings"

// realtimeVocabulary marks an utterance as asking for live metrics.
// Plain "stats" is deliberately absent: without one of these words the
// default resolution is READ against the analytics store.
var realtimeVocabulary = []string{
	"iops",
	"throughput",
	"latency",
	"live",
	"real-time",
	"realtime",
	"right now",
	"currently",
	"time series",
	"time-series",
}

// writeVerbs mark an utterance as mutating.
var writeVerbs = []string{
	"create",
	"make",
	"upload",
	"put",
	"write",
	"delete",
	"remove",
	"drop",
	"modify",
	"configure",
}

// readVerbs mark an explicit read intent. Only consulted for the
// read-then-write tie-break; absence of any signal still defaults to READ.
var readVerbs = []string{
	"show",
	"list",
	"display",
	"describe",
	"count",
	"find",
	"what",
	"which",
	"how many",
}

func realtimeSignals(lower string) []string {
	return matchSignals(lower, realtimeVocabulary)
}

func writeSignals(lower string) []string {
	return matchSignals(lower, writeVerbs)
}

func readSignals(lower string) []string {
	return matchSignals(lower, readVerbs)
}

func matchSignals(lower string, vocabulary []string) []string {
	var hits []string
	for _, word := range vocabulary {
		if strings.Contains(word, " ") || strings.Contains(word, "-") {
			if strings.Contains(lower, word) {
				hits = append(hits, word)
			}
			continue
		}
		if containsWord(lower, word) {
			hits = append(hits, word)
		}
	}
	return hits
}

// metricNames filters realtime signals down to actual metric names for
// the $select parameter.
func metricNames(signals []string) []string {
	var out []string
	for _, s := range signals {
		switch s {
		case "iops", "throughput", "latency":
			out = append(out, s)
		}
	}
	return out
}

// containsWord reports whether lower contains word on word boundaries.
// Plural and verb inflections still match ("deleting" hits "delete",
// "buckets" hits "bucket") but embedded matches do not ("blive" never
// hits "live").
func containsWord(lower, word string) bool {
	for start := 0; ; {
		i := strings.Index(lower[start:], word)
		if i < 0 {
			return false
		}
		i += start
		boundedLeft := i == 0 || !isWordRune(rune(lower[i-1]))
		end := i + len(word)
		boundedRight := end >= len(lower) || !isWordRune(rune(lower[end])) || isInflection(lower[end:])
		if boundedLeft && boundedRight {
			return true
		}
		start = i + 1
	}
}

func isInflection(rest string) bool {
	for _, suffix := range []string{"s ", "d ", "ing ", "ed "} {
		if strings.HasPrefix(rest, suffix) || rest == strings.TrimSpace(suffix) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
}
