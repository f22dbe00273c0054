package followup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
	"github.com/appforge-labs/appforge-backend/internal/projects/storetest"
)

type recordMailer struct {
	mu   sync.Mutex
	sent map[string]time.Duration
}

func (m *recordMailer) SendFollowUp(_ context.Context, p *domain.Project, age time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string]time.Duration)
	}
	m.sent[p.ID] = age
	return nil
}

func seedCompleted(store *storetest.MemStore, id string, completedAgo time.Duration, now time.Time) {
	store.Seed(&domain.Project{
		ID:        id,
		OwnerID:   "owner",
		Name:      "App " + id,
		Status:    domain.StatusCompleted,
		UpdatedAt: now.Add(-completedAgo),
	})
}

func TestSweep_SelectsCheckpointWindows(t *testing.T) {
	store := storetest.NewMemStore()
	mailer := &recordMailer{}
	now := time.Now().UTC()

	seedCompleted(store, "day1", 30*time.Hour, now)     // inside the 1-day window
	seedCompleted(store, "day30", 30*24*time.Hour+6*time.Hour, now)
	seedCompleted(store, "day90", 90*24*time.Hour+12*time.Hour, now)
	seedCompleted(store, "fresh", 2*time.Hour, now)     // too recent
	seedCompleted(store, "between", 10*24*time.Hour, now) // between checkpoints

	s := NewScheduler(store, mailer)
	s.Sweep(context.Background(), now)

	assert.Equal(t, 24*time.Hour, mailer.sent["day1"])
	assert.Equal(t, 30*24*time.Hour, mailer.sent["day30"])
	assert.Equal(t, 90*24*time.Hour, mailer.sent["day90"])
	assert.NotContains(t, mailer.sent, "fresh")
	assert.NotContains(t, mailer.sent, "between")
}

func TestSweep_IgnoresUnfinishedProjects(t *testing.T) {
	store := storetest.NewMemStore()
	mailer := &recordMailer{}
	now := time.Now().UTC()

	store.Seed(&domain.Project{
		ID:        "inflight",
		Status:    domain.StatusQAPending,
		UpdatedAt: now.Add(-30 * time.Hour),
	})
	store.Seed(&domain.Project{
		ID:        "failed",
		Status:    domain.StatusFailed,
		UpdatedAt: now.Add(-30 * time.Hour),
	})

	s := NewScheduler(store, mailer)
	s.Sweep(context.Background(), now)

	assert.Empty(t, mailer.sent)
}
