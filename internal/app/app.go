// Package app assembles the battle server from configuration: repositories,
// services, the websocket hub and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/quizbattle/internal/auth"
	"github.com/freeeve/quizbattle/internal/config"
	"github.com/freeeve/quizbattle/internal/handler"
	"github.com/freeeve/quizbattle/internal/middleware"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/internal/repository/memory"
	"github.com/freeeve/quizbattle/internal/repository/postgres"
	redisrepo "github.com/freeeve/quizbattle/internal/repository/redis"
	"github.com/freeeve/quizbattle/internal/service"
)

// App is a fully wired battle server.
type App struct {
	cfg *config.Config

	Hub     *handler.Hub
	JWT     *auth.JWTManager
	Clock   *service.GameClock
	Lobby   *service.LobbyService
	Answers *service.AnswerService
	Sweeper *service.TimeoutSweeper

	async      *service.AsyncBroadcaster
	db         *sql.DB
	redis      *redisrepo.Client
	subscriber *redisrepo.EventSubscriber
}

type stores struct {
	games     repository.GameRepository
	timers    repository.TimerStore
	questions repository.QuestionRepository
	monsters  repository.MonsterRepository
	xp        repository.ExperienceRepository
}

// New builds the application for cfg.Store. The postgres store connects to
// Postgres and Redis and applies pending migrations.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	balance, err := config.LoadBalance(cfg.BalanceFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg: cfg,
		Hub: handler.NewHub(),
		JWT: auth.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry),
	}

	var st stores
	var sink service.Broadcaster
	switch cfg.Store {
	case config.StoreMemory:
		st, err = memoryStores(cfg)
		sink = a.Hub
	default:
		st, err = a.postgresStores(ctx, cfg)
		sink = redisrepo.NewEventPublisher(a.redis)
		a.subscriber = redisrepo.NewEventSubscriber(a.redis, a.Hub)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.async = service.NewAsyncBroadcaster(sink, cfg.BroadcastQueue)
	a.Clock = service.NewGameClock(st.timers, balance.Timing)
	a.Answers = service.NewAnswerService(st.games, st.questions, st.xp, a.Clock, balance.Rules, a.async)
	a.Lobby = service.NewLobbyService(st.games, st.questions, st.monsters, a.Clock, a.Answers, balance.Rules, a.async)
	a.Sweeper = service.NewTimeoutSweeper(st.games, a.Clock, a.Answers, a.async)

	log.Info().Str("store", cfg.Store).Dur("turn", balance.Timing.BaseDuration).Msg("Application assembled")
	return a, nil
}

func memoryStores(cfg *config.Config) (stores, error) {
	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return stores{}, err
	}
	log.Info().Int("questions", len(catalog.Questions)).Int("monsters", len(catalog.Monsters)).Msg("Catalog loaded")
	return stores{
		games:     memory.NewGameRepo(),
		timers:    memory.NewTimerStore(),
		questions: memory.NewQuestionRepo(catalog.Questions),
		monsters:  memory.NewMonsterRepo(catalog.Monsters...),
		xp:        memory.NewExperienceLedger(),
	}, nil
}

func (a *App) postgresStores(ctx context.Context, cfg *config.Config) (stores, error) {
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	a.db = db
	if err := postgres.Migrate(ctx, db); err != nil {
		return stores{}, err
	}

	rc, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		return stores{}, err
	}
	a.redis = rc
	if err := rc.EnableExpiryEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to enable Redis expiry events (sweeper still runs)")
	}

	return stores{
		games:     postgres.NewGameRepo(db),
		timers:    rc,
		questions: redisrepo.NewQuestionCache(rc, postgres.NewQuestionRepo(db), cfg.QuestionTTL),
		monsters:  postgres.NewMonsterRepo(db),
		xp:        postgres.NewExperienceRepo(db),
	}, nil
}

// Handler returns the HTTP handler with every route and the global middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	authMw := auth.Middleware(a.JWT)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	api := http.NewServeMux()
	handler.NewBattleHandler(a.Lobby, a.Answers).Register(api)
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket authenticates with a query token instead of the middleware.
	mux.HandleFunc("GET /api/v1/ws", handler.NewWSHandler(a.Hub, a.JWT, a.Answers).ServeWS)

	return middleware.Chain(mux,
		middleware.Logger,
		middleware.Recover,
		middleware.CORS(a.cfg.CORSOrigins),
		middleware.JSON,
	)
}

// Run serves HTTP and runs the background workers until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.async.Run(ctx)
		return nil
	})
	if a.cfg.SweeperEnabled {
		g.Go(func() error {
			a.Sweeper.Run(ctx, a.cfg.SweepInterval)
			return nil
		})
		if a.redis != nil {
			g.Go(func() error {
				a.Sweeper.ListenExpiry(ctx, a.redis.Underlying())
				return nil
			})
		}
	}
	if a.subscriber != nil {
		g.Go(func() error {
			if err := a.subscriber.Run(ctx); err != nil {
				return fmt.Errorf("event subscriber: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Str("port", a.cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	log.Info().Msg("Server stopped")
	return err
}

// StartEvents delivers queued events outside Run, for one-shot commands.
// stop ends delivery once the queue is drained; done closes after that.
func (a *App) StartEvents(ctx context.Context) (stop func(), done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		a.async.Run(ctx)
	}()
	return cancel, ch
}

// Close releases database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
