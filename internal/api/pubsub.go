package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/event"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (a *API) subscribe() {
	if a.redis == nil {
		return
	}

	a.eb.Subscribe(domain.EventNameQuestionPosted, func(ctx context.Context, e event.Event) error {
		return a.PublishQuestionPosted(ctx, e.(domain.EventQuestionPosted))
	})
	a.eb.Subscribe(domain.EventNameAnswerAccepted, func(ctx context.Context, e event.Event) error {
		return a.PublishAnswerAccepted(ctx, e.(domain.EventAnswerAccepted))
	})
	a.eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	a.eb.Subscribe(domain.EventNameQuizFinished, func(ctx context.Context, e event.Event) error {
		return a.PublishQuizFinished(ctx, e.(domain.EventQuizFinished))
	})
}

func (a *API) PublishQuestionPosted(ctx context.Context, e domain.EventQuestionPosted) error {
	return a.publishNotification(ctx, a.chatChannel(e.Question.ChatID), e.Name(), toQuestion(e.Question))
}

func (a *API) PublishAnswerAccepted(ctx context.Context, e domain.EventAnswerAccepted) error {
	return a.publishNotification(ctx, a.chatChannel(e.Outcome.ChatID), e.Name(), toOutcome(e.Outcome))
}

func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	return a.publishNotification(ctx, a.chatChannel(e.Leaderboard.ChatID), e.Name(), toLeaderboard(e.Leaderboard))
}

// PublishQuizFinished notifies the chat, then every participant on their own channel.
func (a *API) PublishQuizFinished(ctx context.Context, e domain.EventQuizFinished) error {
	data := toSummary(e.Summary)

	if err := a.publishNotification(ctx, a.chatChannel(data.ChatID), e.Name(), data); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Standings {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.userChannel(entry.ParticipantID), e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) chatChannel(chatID int64) string {
	return fmt.Sprintf("%s:chat:%d", a.prefix, chatID)
}

func (a *API) userChannel(participantID int64) string {
	return fmt.Sprintf("%s:user:%d", a.prefix, participantID)
}
