package tasks

import (
	"context"

	"github.com/sirupsen/logrus"
)

const triggerBuffer = 32

// LocalTrigger captures named snapshots on a background goroutine. It is
// used when no task queue is configured.
// The capturer is supplied to Run, since the snapshot service itself
// depends on the trigger.
type LocalTrigger struct {
	labels chan string
	log    *logrus.Entry
}

func NewLocalTrigger() *LocalTrigger {
	return &LocalTrigger{
		labels: make(chan string, triggerBuffer),
		log:    logrus.WithField("component", "snapshot_trigger"),
	}
}

// TriggerSnapshot never blocks; a request is dropped when the backlog is
// full.
func (t *LocalTrigger) TriggerSnapshot(_ context.Context, label string) {
	select {
	case t.labels <- label:
	default:
		t.log.WithField("label", label).Warn("[WORKER] Snapshot backlog full, trigger dropped")
	}
}

// Run captures queued snapshots until ctx is done.
func (t *LocalTrigger) Run(ctx context.Context, capturer Capturer) {
	for {
		select {
		case <-ctx.Done():
			return
		case label := <-t.labels:
			cctx, cancel := context.WithTimeout(ctx, jobTimeout)
			if _, err := capturer.CaptureSnapshot(cctx, &label); err != nil {
				t.log.WithField("label", label).WithError(err).Error("[WORKER] Triggered snapshot failed")
			}
			cancel()
		}
	}
}
