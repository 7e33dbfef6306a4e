package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var timeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Scheduler triggers the daily run at a fixed local time.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	mu       sync.Mutex
	entryID  cron.EntryID
	started  bool
}

// New creates a scheduler for the given timezone.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
	}, nil
}

// ScheduleDaily sets up a daily job at the given HH:MM time, replacing any
// previously scheduled job.
func (s *Scheduler) ScheduleDaily(timeStr string, fn func()) error {
	hour, minute, err := parseTime(timeStr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.entryID = entryID

	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.cron.Stop()
		s.started = false
	}
}

func parseTime(timeStr string) (int, int, error) {
	matches := timeRegex.FindStringSubmatch(timeStr)
	if len(matches) != 3 {
		return 0, 0, fmt.Errorf("invalid time format: %q (expected HH:MM)", timeStr)
	}

	hour, _ := strconv.Atoi(matches[1])
	minute, _ := strconv.Atoi(matches[2])

	return hour, minute, nil
}
