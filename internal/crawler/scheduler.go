package crawler

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs the periodic sitemap refresh.
type Scheduler struct {
	scheduler *gocron.Scheduler
	log       *slog.Logger
}

func NewScheduler(log *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s, log: log}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// ScheduleRefresh re-runs the sitemap ingestion every interval. Errors are
// logged so a bad run doesn't kill the schedule.
func (s *Scheduler) ScheduleRefresh(interval time.Duration, job func() error) error {
	_, err := s.scheduler.Every(interval).Tag("sitemap-refresh").Do(func() {
		if err := job(); err != nil {
			s.log.Error("sitemap refresh failed", "error", err)
		}
	})
	return err
}
