package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-gateway/internal/api"
	"chat-gateway/internal/chain"
	"chat-gateway/internal/chat"
	"chat-gateway/internal/config"
	"chat-gateway/internal/db"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/repository/memory"
	"chat-gateway/internal/service"
	tasks "chat-gateway/internal/Tasks"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// stores is the full repository surface, backed by Postgres or memory.
type stores struct {
	users         repository.UserRepository
	rooms         repository.RoomRepository
	messages      repository.MessageRepo
	music         repository.MusicRepository
	ledger        repository.LedgerRepository
	announcements repository.AnnouncementRepository
	close         func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		m := memory.New()
		return &stores{users: m, rooms: m, messages: m, music: m, ledger: m, announcements: m, close: func() {}}, nil
	}
	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		users:         repository.NewUserRepo(pool),
		rooms:         repository.NewRoomRepo(pool),
		messages:      repository.NewMessagesRepo(pool),
		music:         repository.NewMusicRepo(pool),
		ledger:        repository.NewLedgerRepo(pool),
		announcements: repository.NewAnnouncementRepo(pool),
		close:         pool.Close,
	}, nil
}

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := logrus.WithField("component", "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}
	defer st.close()

	var authority chain.Authority
	if cfg.ChainRPCURL != "" {
		authority = chain.NewClient(cfg.ChainRPCURL, cfg.AuthorityTimeout)
	}

	serverID := cfg.ServerID
	if serverID == "" {
		serverID = uuid.NewString()
	}
	hub := chat.NewHub(serverID, cfg.HubShards)
	go hub.Run()

	var (
		trigger  service.SnapshotTrigger
		local    *tasks.LocalTrigger
		worker   *tasks.WorkerServer
		queue    *asynq.Client
		redisOpt asynq.RedisConnOpt
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		go chat.NewRedisBridge(rdb, hub, "").Run(ctx)

		redisOpt, err = asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Invalid REDIS_URL for task queue")
		}
		queue = asynq.NewClient(redisOpt)
		defer queue.Close()
		trigger = tasks.NewQueueTrigger(queue)
	} else {
		local = tasks.NewLocalTrigger()
		trigger = local
	}

	ledger := service.NewLedgerService(st.ledger)
	reconciler := service.NewReconciler(st.users, authority, cfg.AuthorityTimeout, ledger)
	identity := service.NewIdentityService(st.users, authority, reconciler, cfg.AuthorityTimeout)
	rooms := service.NewRoomService(st.rooms, identity, ledger, trigger)
	messages := service.NewMessageService(st.messages, rooms, identity, ledger, trigger, hub)
	music := service.NewMusicService(st.music, rooms)
	snapshots := service.NewStandardSnapshotService(ledger, hub, rooms, music, messages, identity)
	announcements := service.NewAnnouncementService(st.announcements, rooms, messages)

	if _, err := rooms.WorldRoom(ctx); err != nil {
		log.WithError(err).Fatal("Failed to ensure world room")
	}

	if local != nil {
		go local.Run(ctx, snapshots)
	}
	if redisOpt != nil {
		worker = tasks.NewWorkerServer(redisOpt, snapshots, 2)
		go worker.Start()
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	scheduler := tasks.NewScheduler(rooms, snapshots, announcements, cfg.RoomIdleTTL)
	scheduler.SetPruner(limiter)
	if err := scheduler.Register(tasks.Schedules{
		Sweep:    cfg.SweepSchedule,
		Snapshot: cfg.SnapshotSchedule,
		Announce: cfg.AnnounceSchedule,
		Prune:    cfg.PruneSchedule,
	}); err != nil {
		log.WithError(err).Fatal("Failed to schedule jobs")
	}
	scheduler.Start()

	router := api.NewRouter(api.Deps{
		Identity:      identity,
		Rooms:         rooms,
		Messages:      messages,
		Music:         music,
		Ledger:        ledger,
		Snapshots:     snapshots,
		Announcements: announcements,
		Hub:           hub,
		Limiter:       limiter,
		PollInterval:  cfg.PollInterval,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Infof("Chat gateway starting on :%s (server %s)", cfg.Port, serverID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("ListenAndServe failed")
		}
	}()

	<-stop
	log.Info("Shutdown signal received. Cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	scheduler.Stop(shutdownCtx)
	if worker != nil {
		worker.Shutdown()
	}
	cancel()
	hub.Stop()
	log.Info("Graceful shutdown complete.")
}
