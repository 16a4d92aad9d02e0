package tasks

import (
	"context"
	"time"

	"chat-gateway/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Sweeper interface {
	SweepIdleRooms(ctx context.Context, ttl time.Duration) (int, error)
}

type Capturer interface {
	CaptureSnapshot(ctx context.Context, label *string) (*models.SystemSnapshot, error)
}

type Announcer interface {
	PostDue(ctx context.Context) (int, error)
}

// Pruner drops idle per-caller state, such as rate-limit buckets.
type Pruner interface {
	Prune() int
}

// Schedules is the cron spec of each periodic job. An empty spec disables
// that job.
type Schedules struct {
	Sweep    string
	Snapshot string
	Announce string
	Prune    string
}

const jobTimeout = 3 * time.Minute

// Scheduler runs the periodic jobs: idle custom-room sweep, scheduled
// snapshots, and recurring announcements.
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	capturer  Capturer
	announcer Announcer
	pruner    Pruner
	roomTTL   time.Duration
	log       *logrus.Entry
}

func NewScheduler(sweeper Sweeper, capturer Capturer, announcer Announcer, roomTTL time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper:   sweeper,
		capturer:  capturer,
		announcer: announcer,
		roomTTL:   roomTTL,
		log:       logrus.WithField("component", "scheduler"),
	}
}

// SetPruner installs the job body for Schedules.Prune. Call before Register.
func (s *Scheduler) SetPruner(p Pruner) {
	s.pruner = p
}

// Register adds every job with a non-empty schedule. It fails on the first
// malformed spec.
func (s *Scheduler) Register(sched Schedules) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
		ok   bool
	}{
		{"sweep", sched.Sweep, s.Sweep, s.sweeper != nil},
		{"snapshot", sched.Snapshot, s.Snapshot, s.capturer != nil},
		{"announce", sched.Announce, s.Announce, s.announcer != nil},
		{"prune", sched.Prune, s.Prune, s.pruner != nil},
	}
	for _, j := range jobs {
		if j.spec == "" || !j.ok {
			continue
		}
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			s.log.WithField("job", j.name).WithError(err).Error("[WORKER] Error scheduling cron")
			return err
		}
		s.log.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("[WORKER] Job scheduled")
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("[WORKER] Stopped before running jobs finished")
	}
}

func (s *Scheduler) Sweep(ctx context.Context) {
	n, err := s.sweeper.SweepIdleRooms(ctx, s.roomTTL)
	if err != nil {
		s.log.WithError(err).Error("[WORKER] Room sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("removed", n).Info("[WORKER] Idle rooms swept")
	}
}

func (s *Scheduler) Snapshot(ctx context.Context) {
	label := "scheduled"
	snap, err := s.capturer.CaptureSnapshot(ctx, &label)
	if err != nil {
		s.log.WithError(err).Error("[WORKER] Scheduled snapshot failed")
		return
	}
	s.log.WithField("snapshot_id", snap.ID).Debug("[WORKER] Scheduled snapshot captured")
}

func (s *Scheduler) Announce(ctx context.Context) {
	n, err := s.announcer.PostDue(ctx)
	if err != nil {
		s.log.WithError(err).Error("[WORKER] Announcement run failed")
		return
	}
	if n > 0 {
		s.log.WithField("posted", n).Info("[WORKER] Announcements posted")
	}
}

func (s *Scheduler) Prune(context.Context) {
	if n := s.pruner.Prune(); n > 0 {
		s.log.WithField("dropped", n).Debug("[WORKER] Idle rate-limit buckets pruned")
	}
}
