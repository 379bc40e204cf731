// Package analysis derives cadence, topic focus and summaries from a turn
// history. Every function here is pure.
package analysis

import (
	"convmem/pkg"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

const (
	RapidGap       = time.Minute
	SporadicGap    = time.Hour
	FocusShare     = 0.6
	DetailedLength = 100
	BriefLength    = 20
)

// Pattern tags reported in PatternReport.Patterns.
const (
	PatternRapid    = "rapid_conversation"
	PatternSporadic = "sporadic_conversation"
	PatternFocused  = "focused_topic"
	PatternDetailed = "detailed_messages"
	PatternBrief    = "brief_messages"
)

// Analyze classifies an ordered history (oldest first).
func Analyze(history []pkg.Turn) pkg.PatternReport {
	report := pkg.PatternReport{
		Cadence:   pkg.CadenceNormal,
		TurnCount: len(history),
		Patterns:  []string{},
		Insights:  []string{},
	}
	if len(history) == 0 {
		return report
	}

	report.MedianGap = medianGap(history)
	if len(history) > 1 {
		switch {
		case report.MedianGap < RapidGap:
			report.Cadence = pkg.CadenceRapid
			report.Patterns = append(report.Patterns, PatternRapid)
			report.Insights = append(report.Insights, "User is actively engaged in rapid conversation")
		case report.MedianGap > SporadicGap:
			report.Cadence = pkg.CadenceSporadic
			report.Patterns = append(report.Patterns, PatternSporadic)
			report.Insights = append(report.Insights, "Conversation happens sporadically over time")
		}
		report.SpanHours = history[len(history)-1].CreatedAt.Sub(history[0].CreatedAt).Hours()
	}

	counts := intentCounts(history)
	report.UniqueIntents = len(counts)
	if dominant, n := dominantIntent(counts); dominant != "" {
		report.DominantIntent = dominant
		// unlabelled turns count against focus
		if float64(n) > FocusShare*float64(len(history)) {
			report.TopicFocused = true
			report.Patterns = append(report.Patterns, PatternFocused)
			report.Insights = append(report.Insights, fmt.Sprintf("Conversation is focused on %s", dominant))
		}
	}

	var msgChars, respChars int
	for _, t := range history {
		msgChars += utf8.RuneCountInString(t.Message)
		respChars += utf8.RuneCountInString(t.Response)
	}
	report.AvgMessageLength = float64(msgChars) / float64(len(history))
	report.AvgResponseLength = float64(respChars) / float64(len(history))

	switch {
	case report.AvgMessageLength > DetailedLength:
		report.Patterns = append(report.Patterns, PatternDetailed)
		report.Insights = append(report.Insights, "User provides detailed, lengthy messages")
	case report.AvgMessageLength < BriefLength:
		report.Patterns = append(report.Patterns, PatternBrief)
		report.Insights = append(report.Insights, "User prefers brief, concise messages")
	}

	return report
}

// medianGap is the median time between consecutive turns. Out-of-order
// timestamps count as a zero gap.
func medianGap(history []pkg.Turn) time.Duration {
	if len(history) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		gap := history[i].CreatedAt.Sub(history[i-1].CreatedAt)
		if gap < 0 {
			gap = 0
		}
		gaps = append(gaps, gap)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })

	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid]
	}
	return (gaps[mid-1] + gaps[mid]) / 2
}

func intentCounts(history []pkg.Turn) map[string]int {
	counts := make(map[string]int)
	for _, t := range history {
		if t.Intent != "" {
			counts[t.Intent]++
		}
	}
	return counts
}

// dominantIntent returns the most frequent intent; ties go to the
// lexicographically smaller label.
func dominantIntent(counts map[string]int) (string, int) {
	var best string
	var bestN int
	for intent, n := range counts {
		if n > bestN || (n == bestN && intent < best) {
			best, bestN = intent, n
		}
	}
	return best, bestN
}
