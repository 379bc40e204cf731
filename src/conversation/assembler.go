package conversation

import (
	"context"
	"convmem/internal/embedding"
	"convmem/internal/observability"
	"convmem/internal/storage"
	"convmem/pkg"
	"convmem/src/logger"
	"fmt"
	"time"

	einoembed "github.com/cloudwego/eino/components/embedding"
)

// Assembler owns the read path: it gathers recency and semantic candidates
// for a message and reduces them to a bounded, scored context.
type Assembler struct {
	recency  storage.RecencyStore
	index    storage.SemanticIndex
	embedder einoembed.Embedder
	settings Settings
	metrics  *observability.Metrics
}

func NewAssembler(recency storage.RecencyStore, index storage.SemanticIndex, embedder einoembed.Embedder, settings Settings, metrics *observability.Metrics) *Assembler {
	if index == nil {
		index = storage.NoopIndex{}
	}
	return &Assembler{
		recency:  recency,
		index:    index,
		embedder: embedder,
		settings: settings,
		metrics:  metrics,
	}
}

type recencyResult struct {
	turns []pkg.Turn
	err   error
}

type semanticResult struct {
	vector []float32
	hits   []storage.ScoredRecord
	reason string
	err    error
}

// Assemble never fails. Unavailable sources and timeouts are recorded in
// Degraded and the context is built from whatever arrived in time.
func (a *Assembler) Assemble(ctx context.Context, userID, currentMessage string, maxBudget int) *pkg.AssembledContext {
	start := time.Now()
	if maxBudget <= 0 {
		maxBudget = a.settings.MaxBudget
	}
	out := &pkg.AssembledContext{
		UserID: userID,
		Turns:  []pkg.Candidate{},
		Topics: []string{},
		Budget: maxBudget,
	}

	if a.settings.AssembleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.settings.AssembleTimeout)
		defer cancel()
	}

	recencyCh := make(chan recencyResult, 1)
	semanticCh := make(chan semanticResult, 1)

	go func() {
		turns, err := a.recency.GetAll(ctx, storage.RecencyKey(userID))
		recencyCh <- recencyResult{turns: turns, err: err}
	}()
	go func() {
		semanticCh <- a.querySemantic(ctx, userID, currentMessage)
	}()

	var window []pkg.Turn
	var hits []storage.ScoredRecord
	var vector []float32
	recencyDone, semanticDone := false, false

	for !recencyDone || !semanticDone {
		select {
		case r := <-recencyCh:
			recencyDone = true
			if r.err != nil {
				a.degrade(out, pkg.DegradedRecency, r.err)
				continue
			}
			window = r.turns
		case s := <-semanticCh:
			semanticDone = true
			vector = s.vector
			if s.err != nil {
				a.degrade(out, s.reason, s.err)
				continue
			}
			hits = s.hits
		case <-ctx.Done():
			a.degrade(out, pkg.DegradedTimeout, ctx.Err())
			// keep anything that landed at the deadline
			if !recencyDone {
				select {
				case r := <-recencyCh:
					if r.err == nil {
						window = r.turns
					}
				default:
				}
			}
			if !semanticDone {
				select {
				case s := <-semanticCh:
					if s.err == nil {
						hits = s.hits
					}
				default:
				}
			}
			recencyDone, semanticDone = true, true
		}
	}

	horizon := a.settings.horizon()
	newest := newestSequence(window, hits)
	recent := RecentCandidates(window, horizon)
	if a.settings.RecencySimilarity && len(vector) > 0 && len(recent) > 0 && ctx.Err() == nil {
		a.weighRecent(ctx, userID, recent, vector)
	}
	candidates := Merge(recent, SemanticCandidates(hits, newest, horizon))
	out.Considered = len(candidates)

	if len(candidates) == 0 {
		a.metrics.ObserveEmpty("no_history")
		a.metrics.ObserveAssemble(time.Since(start), 0, 0)
		return out
	}

	candidates = FilterByThreshold(candidates, a.settings.RelevanceThreshold)
	SortCandidates(candidates)
	selected, used := SelectWithinBudget(candidates, maxBudget)

	confidence := Confidence(selected, a.settings.Weights)
	a.metrics.ObserveAssemble(time.Since(start), confidence, len(selected))

	if len(selected) == 0 || confidence < a.settings.MinConfidence {
		a.metrics.ObserveEmpty("low_confidence")
		logger.Debug().
			Str("user_id", userID).
			Int("considered", out.Considered).
			Int("selected", len(selected)).
			Float64("confidence", confidence).
			Msg("Context withheld below minimum confidence")
		return out
	}

	out.Turns = chronological(selected)
	out.Confidence = confidence
	out.Topics = Topics(selected)
	out.Summary = Summary(selected)
	out.BudgetUsed = used

	logger.Debug().
		Str("user_id", userID).
		Int("considered", out.Considered).
		Int("selected", len(selected)).
		Int("budget_used", used).
		Float64("confidence", confidence).
		Strs("degraded", out.Degraded).
		Msg("Context assembled")

	return out
}

func (a *Assembler) querySemantic(ctx context.Context, userID, message string) semanticResult {
	if a.embedder == nil {
		return semanticResult{reason: pkg.DegradedEmbedding, err: embedding.ErrUnavailable}
	}
	vector, err := embedding.EmbedOne(ctx, a.embedder, message)
	if err != nil {
		return semanticResult{reason: pkg.DegradedEmbedding, err: err}
	}

	hits, err := a.index.QueryTopK(ctx, a.settings.Collection, vector, a.settings.TopK, storage.Filter{UserID: userID})
	if err != nil {
		return semanticResult{vector: vector, reason: pkg.DegradedSemantic, err: err}
	}
	return semanticResult{vector: vector, hits: hits}
}

// weighRecent embeds the window messages in one batch and scales each recent
// candidate by its similarity to the query. On failure the recency weights stand.
func (a *Assembler) weighRecent(ctx context.Context, userID string, recent []pkg.Candidate, query []float32) {
	texts := make([]string, len(recent))
	for i, c := range recent {
		texts[i] = c.Turn.Message
	}

	vectors, err := a.embedder.EmbedStrings(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to embed recency window, keeping recency weights")
		return
	}

	sims := make([]float64, len(vectors))
	for i, v := range vectors {
		sims[i] = storage.CosineSimilarity(query, embedding.ToFloat32(v))
	}
	WeightBySimilarity(recent, sims)
}

func (a *Assembler) degrade(out *pkg.AssembledContext, reason string, err error) {
	out.Degraded = append(out.Degraded, reason)
	a.metrics.ObserveDegraded(reason)

	logger.Warn().Err(err).Str("user_id", out.UserID).Str("reason", reason).Msg("Context assembly degraded")
}
