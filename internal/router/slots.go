package router

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/novaops/nova/internal/session"
)

// slotSet holds the argument slots extracted from one utterance.
type slotSet struct {
	bucket   string
	key      string
	prefix   string
	store    string
	table    string
	sql      string
	content  string
	start    string
	end      string
	severity string
	pod      string
	hours    int
	days     int
}

func (s slotSet) basis() []string {
	var out []string
	add := func(name, value string) {
		if value != "" {
			out = append(out, "slot:"+name+"="+value)
		}
	}
	add("bucket", s.bucket)
	add("key", s.key)
	add("prefix", s.prefix)
	add("store", s.store)
	add("table", s.table)
	add("start", s.start)
	add("end", s.end)
	add("severity", s.severity)
	add("pod", s.pod)
	if s.hours > 0 {
		out = append(out, fmt.Sprintf("slot:hours=%d", s.hours))
	}
	if s.days > 0 {
		out = append(out, fmt.Sprintf("slot:days=%d", s.days))
	}
	if s.sql != "" {
		out = append(out, "slot:sql")
	}
	return out
}

var (
	// "bucket logs-2023", "bucket named backups", "bucket called 'my data'"
	bucketPattern  = regexp.MustCompile(`buckets?(?:\s+(?:named|called))?\s+([a-z0-9][a-z0-9._-]*)`)
	storePattern   = regexp.MustCompile(`(?:object[\s-]stores?|store)\s+(?:named\s+|called\s+)?([a-z0-9][a-z0-9._-]*)`)
	tablePattern   = regexp.MustCompile(`table\s+([a-z_][a-z0-9_]*)`)
	keyPattern     = regexp.MustCompile(`(?:object|file|key)\s+([a-z0-9][a-z0-9._/-]*)`)
	prefixPattern  = regexp.MustCompile(`prefix\s+([a-z0-9][a-z0-9._/-]*)`)
	podPattern     = regexp.MustCompile(`(?:pod|component)\s+([a-z0-9][a-z0-9-]*)`)
	quotedPattern  = regexp.MustCompile(`['"]([^'"]+)['"]`)
	lastNPattern   = regexp.MustCompile(`last\s+(\d+)\s+(minute|hour|day)s?`)
	sqlPattern     = regexp.MustCompile(`(?:^|:\s*)((?:select|with)\s.+)$`)
	contentPattern = regexp.MustCompile(`(?:content|containing|saying)\s+['"]([^'"]+)['"]`)

	// pronoun follow-ups that point at a referent from history
	followUpPattern = regexp.MustCompile(`\b(it|them|that one|those)\b`)

	// "log"/"logs" as a standalone word; bucket names like logs-2023
	// must not read as log vocabulary
	logWordPattern = regexp.MustCompile(`(?:^|[^a-z0-9])logs?(?:$|[^a-z0-9._-])`)

	// words that follow "bucket"/"store" without naming one
	notNames = map[string]bool{
		"a": true, "an": true, "and": true, "called": true, "for": true,
		"from": true, "in": true, "is": true, "named": true, "of": true,
		"on": true, "that": true, "the": true, "then": true, "to": true,
		"with": true,
	}
)

// extractSlots pulls argument slots out of the utterance, falling back
// to the most recent turns when the utterance only references a prior
// result ("now delete it").
func extractSlots(lower string, history []session.Turn) slotSet {
	var s slotSet

	if m := sqlPattern.FindStringSubmatch(lower); m != nil {
		s.sql = strings.TrimSpace(m[1])
	}
	s.bucket = firstName(bucketPattern, lower)
	s.store = firstName(storePattern, lower)
	s.table = firstName(tablePattern, lower)
	s.key = firstName(keyPattern, lower)
	s.prefix = firstName(prefixPattern, lower)
	s.pod = firstName(podPattern, lower)
	s.severity = severityWord(lower)
	if m := lastNPattern.FindStringSubmatch(lower); m != nil {
		n := 0
		fmt.Sscanf(m[1], "%d", &n)
		switch m[2] {
		case "hour":
			s.hours = n
		case "day":
			s.days = n
		}
	}
	if m := contentPattern.FindStringSubmatch(lower); m != nil {
		s.content = m[1]
	}

	// a quoted token names whichever slot is still empty, bucket first
	if m := quotedPattern.FindStringSubmatch(lower); m != nil {
		quoted := strings.TrimSpace(m[1])
		switch {
		case s.bucket == "" && mentionsAny(lower, "bucket", "buckets"):
			s.bucket = quoted
		case s.key == "" && mentionsAny(lower, "object", "file", "key"):
			s.key = quoted
		case s.store == "" && mentionsAny(lower, "store", "stores"):
			s.store = quoted
		}
	}

	s.start, s.end = timeRange(lower)

	if followUpPattern.MatchString(lower) {
		fillFromHistory(&s, history)
	}
	return s
}

func firstName(pattern *regexp.Regexp, lower string) string {
	for _, m := range pattern.FindAllStringSubmatch(lower, -1) {
		if name := m[1]; !notNames[name] {
			return name
		}
	}
	return ""
}

// severityWord maps severity vocabulary to the log severity levels.
// FATAL outranks ERROR so "fatal errors" filters to the narrower level.
func severityWord(lower string) string {
	switch {
	case containsWord(lower, "fatal"):
		return "FATAL"
	case mentionsAny(lower, "error", "errors"):
		return "ERROR"
	case mentionsAny(lower, "warn", "warning", "warnings"):
		return "WARN"
	}
	return ""
}

// timeRange turns relative phrases into RFC 3339 bounds. Only start is
// set for open-ended ranges; the monitoring client defaults end to now.
func timeRange(lower string) (start, end string) {
	now := time.Now().UTC()
	if m := lastNPattern.FindStringSubmatch(lower); m != nil {
		n := 0
		fmt.Sscanf(m[1], "%d", &n)
		var d time.Duration
		switch m[2] {
		case "minute":
			d = time.Duration(n) * time.Minute
		case "hour":
			d = time.Duration(n) * time.Hour
		case "day":
			d = time.Duration(n) * 24 * time.Hour
		}
		return now.Add(-d).Format(time.RFC3339), ""
	}
	switch {
	case strings.Contains(lower, "last hour"), strings.Contains(lower, "past hour"):
		return now.Add(-time.Hour).Format(time.RFC3339), ""
	case strings.Contains(lower, "today"):
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return midnight.Format(time.RFC3339), ""
	}
	return "", ""
}

// fillFromHistory resolves pronoun references by scanning recent turns,
// newest first, for slots the utterance itself did not name.
func fillFromHistory(s *slotSet, history []session.Turn) {
	for i := len(history) - 1; i >= 0; i-- {
		turn := strings.ToLower(history[i].Content)
		if s.bucket == "" {
			s.bucket = firstName(bucketPattern, turn)
		}
		if s.key == "" {
			s.key = firstName(keyPattern, turn)
		}
		if s.store == "" {
			s.store = firstName(storePattern, turn)
		}
		if s.bucket != "" && s.key != "" && s.store != "" {
			return
		}
	}
}
