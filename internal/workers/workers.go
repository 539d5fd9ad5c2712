// Package workers runs the periodic housekeeping jobs on a gocron scheduler.
package workers

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"meetupAPI/internal/logger"
)

// Task is one periodic job. Runs of the same task never overlap.
type Task struct {
	Name  string
	Every time.Duration
	Run   func()
}

type Scheduler struct {
	sched gocron.Scheduler
}

// Start registers every task and starts the scheduler.
func Start(tasks ...Task) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	for _, t := range tasks {
		if t.Every <= 0 || t.Run == nil {
			sched.Shutdown()
			return nil, fmt.Errorf("invalid task %q", t.Name)
		}
		_, err := sched.NewJob(
			gocron.DurationJob(t.Every),
			gocron.NewTask(t.Run),
			gocron.WithName(t.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s: %w", t.Name, err)
		}
		logger.Info("[Scheduler] %s every %s", t.Name, t.Every)
	}

	sched.Start()
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Shutdown() error {
	if s == nil {
		return errors.New("scheduler not started")
	}
	return s.sched.Shutdown()
}
