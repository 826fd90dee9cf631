package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

// MockJournal implements ports.JournalPort for testing
type MockJournal struct {
	mu     sync.Mutex
	events []ports.Event
	err    error
}

var _ ports.JournalPort = (*MockJournal)(nil)

func (m *MockJournal) Record(ctx context.Context, eventType string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ports.Event{EventType: eventType, Payload: payload, CreatedAt: time.Now()})
	return nil
}

func (m *MockJournal) Events(ctx context.Context, eventType string, limit int) ([]ports.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ports.Event{}
	for i := len(m.events) - 1; i >= 0; i-- {
		if eventType == "" || m.events[i].EventType == eventType {
			out = append(out, m.events[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, m.err
}

func (m *MockJournal) Ping(ctx context.Context) error    { return m.err }
func (m *MockJournal) Migrate(ctx context.Context) error { return nil }
func (m *MockJournal) Close() error                      { return nil }

func (m *MockJournal) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// MockMessaging implements ports.MessagingPort for testing
type MockMessaging struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

var _ ports.MessagingPort = (*MockMessaging)(nil)

func (m *MockMessaging) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.published == nil {
		m.published = make(map[string][][]byte)
	}
	m.published[subject] = append(m.published[subject], data)
	return nil
}

func (m *MockMessaging) PublishJSON(ctx context.Context, subject string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return m.Publish(ctx, subject, data)
}

func (m *MockMessaging) Close() error { return nil }
func (m *MockMessaging) Ping() error  { return m.err }

func (m *MockMessaging) count(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published[subject])
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cleanupFixture struct {
	svc       *CleanupService
	settings  *store.ConfigStore
	chat      *store.ChatStore
	clock     *fakeClock
	journal   *MockJournal
	messaging *MockMessaging
	metrics   *metrics.Collector
}

func newCleanupFixture(t *testing.T, interval time.Duration) cleanupFixture {
	t.Helper()
	dir := t.TempDir()
	logger := logutil.NewNopLogger()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	settings := store.NewConfigStore(dir, logger,
		store.WithConfigClock(clock.Now),
		store.WithEnvLookup(func(string) string { return "" }),
	)
	chat := store.NewChatStore(dir, settings, logger, store.WithChatClock(clock.Now))
	journal := &MockJournal{}
	messaging := &MockMessaging{}
	collector := metrics.NewCollector()

	svc := NewCleanupService(chat, settings, collector, interval, logger,
		WithCleanupJournal(journal),
		WithCleanupMessaging(messaging),
		WithCleanupClock(clock.Now),
	)
	return cleanupFixture{
		svc: svc, settings: settings, chat: chat, clock: clock,
		journal: journal, messaging: messaging, metrics: collector,
	}
}

// seedOldAndNew leaves one 40-day-old conversation and one fresh one
func (f cleanupFixture) seedOldAndNew(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.chat.AddMessage(ctx, "old question", entities.RoleUser, "")
	require.NoError(t, err)
	f.chat.ClearCurrentConversation()

	f.clock.Advance(40 * 24 * time.Hour)
	_, err = f.chat.AddMessage(ctx, "new question", entities.RoleUser, "")
	require.NoError(t, err)
}

func TestCleanup_DisabledIsNoOp(t *testing.T) {
	f := newCleanupFixture(t, time.Hour)
	f.seedOldAndNew(t)

	result, err := f.svc.RunCleanup(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Zero(t, result.DeletedConversations)
	assert.Len(t, f.chat.GetState().Conversations, 2)
	assert.Zero(t, f.journal.count())
	assert.True(t, f.settings.GetState().LastCleanupAt.IsZero())
}

func TestCleanup_RunCleanupRecordsEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newCleanupFixture(t, time.Hour)
	require.NoError(t, f.settings.SetAutoCleanup(ctx, true, "daily"))
	f.seedOldAndNew(t)

	result, err := f.svc.RunCleanup(ctx, TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DeletedConversations)
	convs := f.chat.GetState().Conversations
	require.Len(t, convs, 1)
	assert.Equal(t, "new question", convs[0].Title)

	assert.Equal(t, f.clock.Now(), f.settings.GetState().LastCleanupAt)

	events, err := f.journal.Events(ctx, ports.EventCleanupRun, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerManual, events[0].Payload["trigger"])
	assert.Equal(t, 1, events[0].Payload["deleted_conversations"])

	assert.Equal(t, 1, f.messaging.count(ports.SubjectCleanupCompleted))

	m := f.metrics.GetSystemMetrics(ctx)
	assert.EqualValues(t, 1, m.Cleanup.Runs)
	assert.EqualValues(t, 1, m.Cleanup.DeletedConversations)
}

func TestCleanup_RunIfDueFollowsSchedule(t *testing.T) {
	ctx := context.Background()
	f := newCleanupFixture(t, time.Hour)

	ran, _, err := f.svc.RunIfDue(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "auto cleanup disabled")

	require.NoError(t, f.settings.SetAutoCleanup(ctx, true, "daily"))
	ran, _, err = f.svc.RunIfDue(ctx)
	require.NoError(t, err)
	assert.True(t, ran, "never-run cleanup is due")

	ran, _, _ = f.svc.RunIfDue(ctx)
	assert.False(t, ran, "just ran")

	f.clock.Advance(25 * time.Hour)
	ran, _, _ = f.svc.RunIfDue(ctx)
	assert.True(t, ran)

	events, _ := f.journal.Events(ctx, ports.EventCleanupRun, 0)
	require.Len(t, events, 2)
	assert.Equal(t, TriggerScheduled, events[0].Payload["trigger"])
}

type recordingListener struct {
	mu       sync.Mutex
	triggers []string
}

func (l *recordingListener) PublishCleanup(trigger string, result store.CleanupResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.triggers = append(l.triggers, trigger)
}

func TestCleanup_NotifiesListener(t *testing.T) {
	ctx := context.Background()
	f := newCleanupFixture(t, time.Hour)
	listener := &recordingListener{}
	WithCleanupListener(listener)(f.svc)

	_, err := f.svc.RunCleanup(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Empty(t, listener.triggers, "disabled cleanup is silent")

	require.NoError(t, f.settings.SetAutoCleanup(ctx, true, "daily"))
	_, err = f.svc.RunCleanup(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, []string{TriggerManual}, listener.triggers)
}

func TestCleanup_SideChannelFailuresDoNotFailRun(t *testing.T) {
	ctx := context.Background()
	f := newCleanupFixture(t, time.Hour)
	f.journal.err = assert.AnError
	f.messaging.err = assert.AnError
	require.NoError(t, f.settings.SetAutoCleanup(ctx, true, "weekly"))

	_, err := f.svc.RunCleanup(ctx, TriggerManual)

	assert.NoError(t, err)
}

func TestCleanup_StartRunsImmediatelyAndStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newCleanupFixture(t, 10*time.Millisecond)
	require.NoError(t, f.settings.SetAutoCleanup(ctx, true, "daily"))

	done := make(chan struct{})
	go func() {
		f.svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.journal.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.clock.Advance(25 * time.Hour)
	require.Eventually(t, func() bool { return f.journal.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
