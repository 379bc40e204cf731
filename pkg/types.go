package pkg

import (
	"time"
	"unicode/utf8"
)

// Conversational memory core types

// Turn represents one user-message/system-response exchange.
// A Turn is immutable once written and identified by (UserID, Sequence).
type Turn struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Intent    string    `json:"intent,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
}

// Length is the character cost of a turn against an assembly budget.
func (t Turn) Length() int {
	return utf8.RuneCountInString(t.Message) + utf8.RuneCountInString(t.Response)
}

// Source tags where a context candidate came from.
type Source string

const (
	SourceRecent   Source = "recent"
	SourceSemantic Source = "semantic"
)

// Candidate is a scored projection of a turn considered for inclusion in
// the assembled context.
type Candidate struct {
	Source        Source  `json:"source"`
	Turn          Turn    `json:"turn"`
	Similarity    float64 `json:"similarity"`     // 1.0 for recency candidates
	RecencyWeight float64 `json:"recency_weight"` // 1.0 = newest turn
	Relevance     float64 `json:"relevance"`      // combined score used for ranking
}

// AssembledContext is the bounded, scored set of turns handed to a response generator.
type AssembledContext struct {
	UserID     string      `json:"user_id"`
	Turns      []Candidate `json:"turns"` // chronological, oldest first
	Confidence float64     `json:"confidence"`
	Topics     []string    `json:"topics"`
	Summary    string      `json:"summary"`
	BudgetUsed int         `json:"budget_used"`
	Budget     int         `json:"budget"`
	Considered int         `json:"considered"` // candidates after dedup, before filtering
	Degraded   []string    `json:"degraded,omitempty"`
}

// Empty reports whether the context carries no turns.
func (c *AssembledContext) Empty() bool {
	return c == nil || len(c.Turns) == 0
}

// Reasons recorded in AssembledContext.Degraded.
const (
	DegradedRecency   = "recency_unavailable"
	DegradedSemantic  = "semantic_unavailable"
	DegradedEmbedding = "embedding_unavailable"
	DegradedTimeout   = "timeout"
)

// ClearResult reports the outcome of clearing a user's history, store by store.
type ClearResult struct {
	UserID          string `json:"user_id"`
	RecentRemoved   int    `json:"recent_removed"`
	SemanticRemoved int    `json:"semantic_removed"`
	RecentErr       error  `json:"-"`
	SemanticErr     error  `json:"-"`
}

// Cadence classifies how quickly a user's turns follow each other.
type Cadence string

const (
	CadenceRapid    Cadence = "rapid"
	CadenceNormal   Cadence = "normal"
	CadenceSporadic Cadence = "sporadic"
)

// PatternReport holds lightweight analytics derived from a turn history.
type PatternReport struct {
	Cadence           Cadence       `json:"cadence"`
	MedianGap         time.Duration `json:"median_gap"`
	TopicFocused      bool          `json:"topic_focused"`
	DominantIntent    string        `json:"dominant_intent,omitempty"`
	TurnCount         int           `json:"turn_count"`
	AvgMessageLength  float64       `json:"avg_message_length"`
	AvgResponseLength float64       `json:"avg_response_length"`
	UniqueIntents     int           `json:"unique_intents"`
	SpanHours         float64       `json:"span_hours"`
	Patterns          []string      `json:"patterns"`
	Insights          []string      `json:"insights"`
}

// Chunk is a window of consecutive turns used for summarization.
type Chunk struct {
	ID        string    `json:"id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	TurnCount int       `json:"turn_count"`
	Keywords  []string  `json:"keywords"`
	Summary   string    `json:"summary"`
}

// ConversationSummary describes a user's history as chunks plus an overall line.
type ConversationSummary struct {
	UserID   string   `json:"user_id"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
	Chunks   []Chunk  `json:"chunks"`
}

// Status is the snapshot served to a user-facing status command.
type Status struct {
	UserID         string     `json:"user_id"`
	TurnCount      int        `json:"turn_count"`
	RecentCount    int        `json:"recent_count"`
	IndexedCount   int        `json:"indexed_count"`
	Oldest         *time.Time `json:"oldest,omitempty"`
	Newest         *time.Time `json:"newest,omitempty"`
	LastConfidence float64    `json:"last_confidence"`
	Cadence        Cadence    `json:"cadence"`
}
