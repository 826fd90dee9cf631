package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

// Cleanup triggers, recorded with each run
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// CleanupListener is told about every completed cleanup run
type CleanupListener interface {
	PublishCleanup(trigger string, result store.CleanupResult)
}

// CleanupService runs smart cleanup on demand and whenever the configured
// schedule says it is due
type CleanupService struct {
	chat      *store.ChatStore
	settings  *store.ConfigStore
	journal   ports.JournalPort
	messaging ports.MessagingPort
	listener  CleanupListener
	metrics   *metrics.Collector
	interval  time.Duration
	now       func() time.Time
	logger    *logutil.FieldLogger

	runMu sync.Mutex
}

// CleanupOption customizes a CleanupService
type CleanupOption func(*CleanupService)

// WithCleanupJournal records each run in the event journal
func WithCleanupJournal(journal ports.JournalPort) CleanupOption {
	return func(s *CleanupService) { s.journal = journal }
}

// WithCleanupMessaging publishes a completion event after each run
func WithCleanupMessaging(messaging ports.MessagingPort) CleanupOption {
	return func(s *CleanupService) { s.messaging = messaging }
}

// WithCleanupListener notifies listener after each run
func WithCleanupListener(listener CleanupListener) CleanupOption {
	return func(s *CleanupService) { s.listener = listener }
}

// WithCleanupClock overrides the clock used to stamp runs
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) { s.now = now }
}

// NewCleanupService creates a cleanup service checking every interval
func NewCleanupService(chat *store.ChatStore, settings *store.ConfigStore, collector *metrics.Collector, interval time.Duration, logger *logutil.Logger, opts ...CleanupOption) *CleanupService {
	if interval <= 0 {
		interval = constants.DefaultCleanupInterval
	}
	if logger == nil {
		logger = logutil.Global()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	s := &CleanupService{
		chat:     chat,
		settings: settings,
		metrics:  collector,
		interval: interval,
		now:      time.Now,
		logger:   logger.WithFields(logutil.Fields{"service": "cleanup"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCleanup runs one smart cleanup pass. When auto cleanup is disabled the
// pass is a no-op and the cleanup clock is left alone.
func (s *CleanupService) RunCleanup(ctx context.Context, trigger string) (store.CleanupResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	result, err := s.chat.SmartCleanup(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to run cleanup: %w", err)
	}
	if !s.settings.PrivacySettings().AutoCleanup {
		return result, nil
	}

	if err := s.settings.MarkCleanupRun(ctx, s.now()); err != nil {
		s.logger.Warn("Failed to persist cleanup time", logutil.Fields{"error": err})
	}
	s.metrics.RecordCleanup(trigger, result.DeletedConversations, result.FreedSpaceMB)

	payload := map[string]any{
		"trigger":               trigger,
		"deleted_conversations": result.DeletedConversations,
		"freed_space_mb":        result.FreedSpaceMB,
		"kept_recent":           result.KeptRecent,
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, ports.EventCleanupRun, payload); err != nil {
			s.logger.Warn("Failed to journal cleanup run", logutil.Fields{"error": err})
		}
	}
	if s.messaging != nil {
		if err := s.messaging.PublishJSON(ctx, ports.SubjectCleanupCompleted, payload); err != nil {
			s.logger.Warn("Failed to publish cleanup event", logutil.Fields{"error": err})
		}
	}
	if s.listener != nil {
		s.listener.PublishCleanup(trigger, result)
	}

	s.logger.Info("Cleanup completed", logutil.Fields{
		"trigger": trigger,
		"deleted": result.DeletedConversations,
		"freedMB": result.FreedSpaceMB,
	})
	return result, nil
}

// RunIfDue runs a scheduled pass when the schedule says cleanup is due
func (s *CleanupService) RunIfDue(ctx context.Context) (bool, store.CleanupResult, error) {
	if !s.chat.NeedsCleanup() {
		return false, store.CleanupResult{}, nil
	}
	result, err := s.RunCleanup(ctx, TriggerScheduled)
	return true, result, err
}

// Start checks the schedule immediately and then every interval until ctx is
// cancelled. It blocks; run it in its own goroutine.
func (s *CleanupService) Start(ctx context.Context) {
	s.check(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *CleanupService) check(ctx context.Context) {
	if _, _, err := s.RunIfDue(ctx); err != nil {
		s.logger.Error("Scheduled cleanup failed", logutil.Fields{"error": err})
	}
}
