package analysis

import (
	"convmem/pkg"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ChunkSize    = 10
	ChunkOverlap = 2
	MaxKeywords  = 10
)

var wordPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and or but in on at to for of with by from up about into
		through during before after above below between among this that these those i me my myself
		we our you your yourself he him his she her it its they them their what which who when where
		why how all any both each few more most other some such only own same than too very can will
		just should now have has had does did been being were was are is not`) {
		stopWords[w] = struct{}{}
	}
}

// Chunks splits turns into windows of ChunkSize that overlap by ChunkOverlap.
func Chunks(turns []pkg.Turn) []pkg.Chunk {
	chunks := []pkg.Chunk{}
	step := ChunkSize - ChunkOverlap
	for start := 0; start < len(turns); start += step {
		end := min(start+ChunkSize, len(turns))
		window := turns[start:end]
		chunks = append(chunks, pkg.Chunk{
			ID:        fmt.Sprintf("chunk_%d_%d", start, len(window)),
			Start:     window[0].CreatedAt,
			End:       window[len(window)-1].CreatedAt,
			TurnCount: len(window),
			Keywords:  Keywords(window, MaxKeywords),
			Summary:   summarizeChunk(window),
		})
		if end == len(turns) {
			break
		}
	}
	return chunks
}

// Keywords returns up to limit frequent non-stop words longer than three
// letters across messages and responses. Ties keep first-seen order.
func Keywords(turns []pkg.Turn, limit int) []string {
	counts := make(map[string]int)
	var order []string
	for _, t := range turns {
		text := strings.ToLower(t.Message + " " + t.Response)
		for _, w := range wordPattern.FindAllString(text, -1) {
			if len(w) <= 3 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}

func summarizeChunk(turns []pkg.Turn) string {
	var topics []string
	for _, t := range turns {
		if utf8.RuneCountInString(t.Message) > 20 {
			topics = append(topics, truncate(t.Message, 50)+"...")
		}
		if len(topics) == 3 {
			break
		}
	}
	if len(topics) == 0 {
		return fmt.Sprintf("Conversation chunk with %d turns", len(turns))
	}
	return "Discussion about: " + strings.Join(topics, ", ")
}

// Summarize describes the whole history. Turns newer than an hour before now
// count as recent.
func Summarize(userID string, turns []pkg.Turn, now time.Time) pkg.ConversationSummary {
	summary := pkg.ConversationSummary{
		UserID:   userID,
		Keywords: Keywords(turns, MaxKeywords),
		Chunks:   Chunks(turns),
	}
	if len(turns) == 0 {
		summary.Summary = "No conversation history"
		return summary
	}

	parts := []string{fmt.Sprintf("Conversation with %d turns", len(turns))}

	span := turns[len(turns)-1].CreatedAt.Sub(turns[0].CreatedAt)
	if span > time.Hour {
		hours := int(span / time.Hour)
		plural := "s"
		if hours == 1 {
			plural = ""
		}
		parts = append(parts, fmt.Sprintf("spanning %d hour%s", hours, plural))
	}

	if dominant, _ := dominantIntent(intentCounts(turns)); dominant != "" {
		parts = append(parts, "mainly about "+strings.ReplaceAll(dominant, "_", " "))
	}

	recent := 0
	for _, t := range turns {
		if now.Sub(t.CreatedAt) < time.Hour {
			recent++
		}
	}
	if recent > 0 {
		parts = append(parts, fmt.Sprintf("with %d recent turns", recent))
	}

	summary.Summary = strings.Join(parts, ". ") + "."
	return summary
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
