package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	redisstore "github.com/freeeve/quizbattle/internal/repository/redis"
)

// SweepStats counts what one sweep did.
type SweepStats struct {
	Warnings  int `json:"warnings"`
	Timeouts  int `json:"timeouts"`
	Forfeits  int `json:"forfeits"`
	Recovered int `json:"recovered"`
	Errors    int `json:"errors"`
}

// TimeoutSweeper drives turn deadlines: it sends countdown warnings, resolves
// expired turns as timeouts, forfeits stalled games and recovers games whose
// timer state was lost.
type TimeoutSweeper struct {
	gameRepo    repository.GameRepository
	clock       *GameClock
	answers     *AnswerService
	broadcaster Broadcaster
}

// NewTimeoutSweeper creates a TimeoutSweeper.
func NewTimeoutSweeper(gameRepo repository.GameRepository, clock *GameClock, answers *AnswerService, broadcaster Broadcaster) *TimeoutSweeper {
	return &TimeoutSweeper{gameRepo: gameRepo, clock: clock, answers: answers, broadcaster: broadcaster}
}

// Run sweeps every interval until ctx is cancelled.
func (s *TimeoutSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Timeout sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Timeout sweeper stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep. A failure on one game is logged and the sweep moves on.
func (s *TimeoutSweeper) Tick(ctx context.Context) SweepStats {
	var stats SweepStats

	ids, err := s.clock.store.ActiveTimers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active timers")
		stats.Errors++
	}
	for _, id := range ids {
		if err := s.sweepTimer(ctx, id, &stats); err != nil {
			log.Error().Err(err).Str("gameId", id).Msg("Timer sweep failed")
			stats.Errors++
		}
	}

	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active games")
		stats.Errors++
		return stats
	}
	for i := range games {
		if err := s.recover(ctx, &games[i], &stats); err != nil {
			log.Error().Err(err).Str("gameId", games[i].ID).Msg("Game recovery failed")
			stats.Errors++
		}
	}

	if stats != (SweepStats{}) {
		log.Debug().Int("warnings", stats.Warnings).Int("timeouts", stats.Timeouts).
			Int("forfeits", stats.Forfeits).Int("recovered", stats.Recovered).
			Int("errors", stats.Errors).Msg("Sweep finished")
	}
	return stats
}

// sweepTimer warns about or expires the running timer of one game.
func (s *TimeoutSweeper) sweepTimer(ctx context.Context, gameID string, stats *SweepStats) error {
	t, err := s.clock.Timer(ctx, gameID)
	if err != nil || t == nil {
		return err
	}

	if s.clock.pastGrace(t) {
		res, err := s.answers.SubmitTimeout(ctx, gameID, t.Turn, t.QuestionIndex)
		if err != nil {
			return err
		}
		if res != nil {
			stats.Timeouts++
			log.Info().Str("gameId", gameID).Int("turn", t.Turn).Int("questionIndex", t.QuestionIndex).Msg("Turn timed out")
		}
		return nil
	}

	checkpoint, due, err := s.clock.DueWarning(ctx, t)
	if err != nil || !due {
		return err
	}
	data := map[string]any{
		"remaining":      checkpoint,
		"turn":           t.Turn,
		"question_index": t.QuestionIndex,
		"timer":          s.clock.viewOf(t),
	}
	g, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if g != nil {
		data["game"] = g.Snapshot()
	}
	s.broadcaster.BroadcastGameEvent(gameID, model.EventTimerWarning, data)
	stats.Warnings++
	return nil
}

// recover applies the inactivity forfeit and forces a timeout on games whose
// turn has outlived any timer that should be running for it.
func (s *TimeoutSweeper) recover(ctx context.Context, g *model.Game, stats *SweepStats) error {
	if g.PlayerTwoID == "" || g.TurnStartedAt == nil {
		return nil
	}
	now := s.clock.Now()
	timing := s.clock.Timing()

	last, ok, err := s.clock.store.LastActivity(ctx, g.ID)
	if err != nil {
		return err
	}
	if !ok {
		last = *g.TurnStartedAt
		if g.LastActivityAt != nil && g.LastActivityAt.After(last) {
			last = *g.LastActivityAt
		}
	}
	if timing.InactivityTimeout > 0 && now.Sub(last) > timing.InactivityTimeout {
		forfeited, err := s.answers.ForfeitIfStalled(ctx, g.ID, g.CurrentTurn, g.CurrentQuestionIndex)
		if err != nil {
			return err
		}
		if forfeited != nil {
			stats.Forfeits++
			log.Warn().Str("gameId", g.ID).Time("lastActivity", last).Msg("Forfeited inactive game")
		}
		return nil
	}

	t, err := s.clock.Timer(ctx, g.ID)
	if err != nil {
		return err
	}
	var stuck bool
	if t != nil && t.Turn == g.CurrentTurn && t.QuestionIndex == g.CurrentQuestionIndex {
		stuck = t.Elapsed(now) > t.Duration+timing.GracePeriod+timing.StuckMargin
	} else {
		duration := timing.BaseDuration
		if q := s.answers.question(ctx, g.CurrentQuestionID()); q != nil {
			duration = timing.Duration(q.Type, q.AnswerCount)
		}
		stuck = now.Sub(*g.TurnStartedAt) > duration+timing.GracePeriod+timing.StuckMargin
	}
	if !stuck {
		return nil
	}

	res, err := s.answers.SubmitTimeout(ctx, g.ID, g.CurrentTurn, g.CurrentQuestionIndex)
	if err != nil {
		return err
	}
	if res != nil {
		stats.Recovered++
		log.Warn().Str("gameId", g.ID).Int("turn", g.CurrentTurn).Msg("Recovered stuck turn")
	}
	return nil
}

// ListenExpiry reacts to Redis keyspace expiry notifications for turn
// deadlines so timeouts fire without waiting for the next sweep.
func (s *TimeoutSweeper) ListenExpiry(ctx context.Context, rdb *redis.Client) {
	pubsub := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired deadlines")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			gameID, ok := redisstore.ParseDeadlineKey(msg.Payload)
			if !ok {
				continue
			}
			var stats SweepStats
			if err := s.sweepTimer(ctx, gameID, &stats); err != nil {
				log.Error().Err(err).Str("gameId", gameID).Msg("Timeout failed after deadline expiry")
			}
		}
	}
}
