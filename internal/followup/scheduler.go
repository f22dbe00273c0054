// Package followup runs the nightly sweep that asks owners of finished
// projects how the app is doing, at fixed intervals after completion.
package followup

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/appforge-labs/appforge-backend/internal/projects"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// Mailer delivers one follow-up message. age is how long ago the project
// completed.
type Mailer interface {
	SendFollowUp(ctx context.Context, p *domain.Project, age time.Duration) error
}

// LogMailer writes follow-ups to the log. Stands in until a real mail
// provider is wired.
type LogMailer struct{}

func (LogMailer) SendFollowUp(_ context.Context, p *domain.Project, age time.Duration) error {
	log.Printf("[info] operation=followup_send project_id=%s owner=%s age_days=%d", p.ID, p.OwnerID, int(age.Hours()/24))
	return nil
}

// windows are the post-completion checkpoints, each swept once because the
// sweep window is exactly one day wide and the job runs nightly.
var windows = []time.Duration{
	24 * time.Hour,
	30 * 24 * time.Hour,
	90 * 24 * time.Hour,
}

type Scheduler struct {
	store  projects.Store
	mailer Mailer
	cron   *cron.Cron
}

func NewScheduler(store projects.Store, mailer Mailer) *Scheduler {
	return &Scheduler{store: store, mailer: mailer}
}

// Start schedules the nightly sweep at 12:00AM and returns immediately.
func (s *Scheduler) Start() error {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 0 0 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.Sweep(ctx, time.Now().UTC())
	})
	if err != nil {
		return err
	}

	s.cron = c
	c.Start()
	log.Println("[info] operation=followup_start msg=\"nightly follow-up sweep scheduled for 12:00AM\"")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep sends follow-ups for every completed project whose completion time
// falls inside one of the checkpoint windows relative to now.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) {
	for _, age := range windows {
		to := now.Add(-age)
		from := to.Add(-24 * time.Hour)

		items, err := s.store.ListCompletedBetween(ctx, from, to)
		if err != nil {
			log.Printf("[error] operation=followup_sweep age_days=%d error=%v", int(age.Hours()/24), err)
			continue
		}

		for i := range items {
			p := &items[i]
			if err := s.mailer.SendFollowUp(ctx, p, age); err != nil {
				log.Printf("[warn] operation=followup_send project_id=%s error=%v", p.ID, err)
			}
		}
	}
}
