package conversation

import (
	"context"
	"convmem/internal/analysis"
	"convmem/pkg"
	"convmem/src/logger"
	"sync"
	"time"
)

// Service is the entry point for message handlers. It serializes the
// operations of each user so a window always reflects appends in call
// order, while different users proceed concurrently.
type Service struct {
	repo      *Repository
	assembler *Assembler
	settings  Settings
	locks     *userLocks
	now       func() time.Time

	mu             sync.RWMutex
	lastConfidence map[string]float64
}

func NewService(repo *Repository, assembler *Assembler, settings Settings) *Service {
	return &Service{
		repo:           repo,
		assembler:      assembler,
		settings:       settings,
		locks:          newUserLocks(),
		now:            time.Now,
		lastConfidence: make(map[string]float64),
	}
}

func (s *Service) Append(ctx context.Context, userID string, in TurnInput) (*AppendResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.repo.Append(ctx, userID, in)
}

// Assemble builds the context for the user's current message and records
// its confidence for status queries.
func (s *Service) Assemble(ctx context.Context, userID, message string, maxBudget int) *pkg.AssembledContext {
	unlock := s.locks.lock(userID)
	defer unlock()

	out := s.assembler.Assemble(ctx, userID, message, maxBudget)
	s.setConfidence(userID, out.Confidence)
	return out
}

func (s *Service) Clear(ctx context.Context, userID string) (pkg.ClearResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	result, err := s.repo.Clear(ctx, userID)
	s.setConfidence(userID, 0)
	return result, err
}

// ClearIfRequested clears the history when the message reads as a request
// to forget or the upstream classifier labelled it with the clear intent.
func (s *Service) ClearIfRequested(ctx context.Context, userID, message, intent string) (bool, pkg.ClearResult, error) {
	requested := DetectClearIntent(message) || (intent != "" && intent == s.settings.ClearIntent)
	if !requested {
		return false, pkg.ClearResult{UserID: userID}, nil
	}

	logger.Info().Str("user_id", userID).Str("intent", intent).Msg("Clear requested")
	result, err := s.Clear(ctx, userID)
	return true, result, err
}

func (s *Service) History(ctx context.Context, userID string) ([]pkg.Turn, error) {
	return s.repo.History(ctx, userID)
}

// Status summarizes what is remembered for the user. An unreachable index
// only zeroes the indexed count.
func (s *Service) Status(ctx context.Context, userID string) (*pkg.Status, error) {
	history, err := s.repo.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &pkg.Status{
		UserID:         userID,
		RecentCount:    len(history),
		LastConfidence: s.confidence(userID),
		Cadence:        analysis.Analyze(history).Cadence,
	}

	indexed, err := s.repo.IndexedCount(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Indexed count unavailable")
	} else {
		status.IndexedCount = indexed
	}
	status.TurnCount = max(status.RecentCount, status.IndexedCount)

	if len(history) > 0 {
		oldest := history[0].CreatedAt
		newest := history[len(history)-1].CreatedAt
		status.Oldest = &oldest
		status.Newest = &newest
	}
	return status, nil
}

func (s *Service) Patterns(ctx context.Context, userID string) (pkg.PatternReport, error) {
	history, err := s.repo.History(ctx, userID)
	if err != nil {
		return pkg.PatternReport{}, err
	}
	return analysis.Analyze(history), nil
}

func (s *Service) Summarize(ctx context.Context, userID string) (pkg.ConversationSummary, error) {
	history, err := s.repo.History(ctx, userID)
	if err != nil {
		return pkg.ConversationSummary{}, err
	}
	return analysis.Summarize(userID, history, s.now()), nil
}

func (s *Service) setConfidence(userID string, c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == 0 {
		delete(s.lastConfidence, userID)
		return
	}
	s.lastConfidence[userID] = c
}

func (s *Service) confidence(userID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastConfidence[userID]
}
