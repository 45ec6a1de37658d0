package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/errors"
	"github.com/victornm/chatquiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

// Sessions reads committed session state.
type Sessions interface {
	Get(ctx context.Context, chatID int64) (*domain.Session, error)
}

type Config struct {
	EventBus *event.Bus
	Sessions Sessions
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb       *event.Bus
	sessions Sessions
	redis    redis.UniversalClient
	prefix   string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		sessions: c.Sessions,
		redis:    c.Redis,
		prefix:   c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameAnswerAccepted, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventAnswerAccepted))
	})

	return s
}

// GetLeaderboard returns the standings of the chat's running quiz: points descending, then
// earliest first point, then participant id.
func (s *Service) GetLeaderboard(ctx context.Context, chatID int64) (*domain.Leaderboard, error) {
	ss, err := s.sessions.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}

	return &domain.Leaderboard{
		ChatID:  chatID,
		Entries: ss.Standings(),
	}, nil
}

// UpdateLeaderboard schedules a leaderboard.updated event after a point was won.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventAnswerAccepted) error {
	o := e.Outcome
	if o.Outcome != domain.OutcomeCorrectWinner {
		return nil
	}

	// The final standings go out with quiz.finished.
	if o.Completed {
		return nil
	}

	return s.schedulePublishLeaderboard(ctx, o.ChatID)
}

// schedulePublishLeaderboard publishes at most once per chat and interval. Points can be won
// in quick succession, and every event makes the chat redraw its standings.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, chatID int64) error {
	// SETNX also keeps several instances from publishing the same window.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(chatID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, chatID)
}

func (s *Service) publishLeaderboard(ctx context.Context, chatID int64) error {
	l, err := s.GetLeaderboard(ctx, chatID)
	if errors.HasCode(err, errors.CodeNotFound) {
		slog.DebugContext(ctx, "leaderboard: quiz already finished", "chat_id", chatID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get leaderboard failed: chat=%d: %w", chatID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardTimeKey(chatID int64) string {
	return fmt.Sprintf("%s:%d:leaderboard:time", s.prefix, chatID)
}
