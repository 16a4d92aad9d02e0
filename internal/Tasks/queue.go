package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	TypeSnapshotCapture = "snapshot:capture"

	snapshotQueue = "default"
)

type SnapshotPayload struct {
	Label string `json:"label"`
}

func NewSnapshotTask(label string) (*asynq.Task, error) {
	payload, err := json.Marshal(SnapshotPayload{Label: label})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSnapshotCapture, payload), nil
}

// Enqueuer is the part of *asynq.Client the trigger needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueTrigger hands named snapshots to the task queue so any worker
// instance can capture them.
type QueueTrigger struct {
	client Enqueuer
	log    *logrus.Entry
}

func NewQueueTrigger(client Enqueuer) *QueueTrigger {
	if client == nil {
		panic("asynq client cannot be nil for QueueTrigger")
	}
	return &QueueTrigger{client: client, log: logrus.WithField("component", "snapshot_trigger")}
}

// TriggerSnapshot logs enqueue failures; the caller's operation has
// already succeeded.
func (t *QueueTrigger) TriggerSnapshot(ctx context.Context, label string) {
	task, err := NewSnapshotTask(label)
	if err != nil {
		t.log.WithError(err).Error("[WORKER] Failed to build snapshot task")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	info, err := t.client.EnqueueContext(ctx, task,
		asynq.Queue(snapshotQueue),
		asynq.MaxRetry(3),
		asynq.Timeout(jobTimeout),
	)
	if err != nil {
		t.log.WithField("label", label).WithError(err).Error("[WORKER] Failed to enqueue snapshot")
		return
	}
	t.log.WithFields(logrus.Fields{"label": label, "task_id": info.ID}).Debug("[WORKER] Snapshot enqueued")
}

type SnapshotHandler struct {
	capturer Capturer
}

func NewSnapshotHandler(capturer Capturer) *SnapshotHandler {
	if capturer == nil {
		panic("Capturer cannot be nil for SnapshotHandler")
	}
	return &SnapshotHandler{capturer: capturer}
}

// ProcessTask implements asynq.Handler. A malformed payload is not retried.
func (h *SnapshotHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{"task_type": t.Type(), "retry": retry})

	var payload SnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	var label *string
	if payload.Label != "" {
		label = &payload.Label
	}
	snap, err := h.capturer.CaptureSnapshot(ctx, label)
	if err != nil {
		logCtx.WithError(err).Error("Snapshot capture failed")
		return err
	}
	logCtx.WithFields(logrus.Fields{"label": payload.Label, "snapshot_id": snap.ID}).Info("Snapshot captured from queue")
	return nil
}

// WorkerServer runs the asynq server that processes queued snapshots.
type WorkerServer struct {
	server  *asynq.Server
	handler *SnapshotHandler
	log     *logrus.Entry
}

func NewWorkerServer(redisOpt asynq.RedisConnOpt, capturer Capturer, concurrency int) *WorkerServer {
	logEntry := logrus.WithField("component", "worker_server")
	if concurrency <= 0 {
		concurrency = 2
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{snapshotQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logEntry.WithFields(logrus.Fields{
				"task_type": task.Type(),
				"retries":   retry,
				"max_retry": maxRetry,
			}).Errorf("Task failed: %v", err)
		}),
	})
	return &WorkerServer{server: server, handler: NewSnapshotHandler(capturer), log: logEntry}
}

func (w *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSnapshotCapture, w.handler.ProcessTask)
	return mux
}

// Start blocks until the server stops; run it on its own goroutine.
func (w *WorkerServer) Start() {
	w.log.Info("Worker server starting...")
	if err := w.server.Run(w.Mux()); err != nil {
		if errors.Is(err, asynq.ErrServerClosed) {
			w.log.Info("Worker server stopped.")
			return
		}
		w.log.WithError(err).Error("Could not run worker server")
	}
}

func (w *WorkerServer) Shutdown() {
	w.log.Info("Shutting down worker server...")
	w.server.Shutdown()
	w.log.Info("Worker server shut down complete.")
}
