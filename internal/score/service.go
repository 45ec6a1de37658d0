// Package score resolves answer submissions. The first correct answer to the live question
// wins its point.
package score

import (
	"context"
	"log/slog"
	"time"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/session"
	"github.com/victornm/chatquiz/internal/telemetry"
)

type Config struct {
	Sessions *session.Service
	Now      func() time.Time
}

type Service struct {
	sessions *session.Service
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		sessions: c.Sessions,
		now:      c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type SubmitAnswerRequest struct {
	ChatID        int64
	ParticipantID int64
	// DisplayName is recorded with the participant's first point.
	DisplayName   string
	QuestionIndex int
	OptionIndex   int
}

// SubmitAnswer evaluates one answer inside the chat's mutation, so all submissions of a chat
// are totally ordered by lock acquisition. Races and misuse come back as outcomes; the error
// is reserved for storage failures.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*domain.AnswerOutcome, error) {
	out := &domain.AnswerOutcome{
		ChatID:        req.ChatID,
		ParticipantID: req.ParticipantID,
		QuestionIndex: req.QuestionIndex,
		OptionIndex:   req.OptionIndex,
	}

	_, err := s.sessions.Mutate(ctx, req.ChatID, func(tx *session.Tx) error {
		out.Outcome = s.resolve(tx, req, out)
		switch out.Outcome {
		case domain.OutcomeCorrectWinner:
			out.Completed = tx.Session.CurrentQuestionIndex+1 >= len(tx.Session.Questions)
			tx.Emit(domain.EventAnswerAccepted{Outcome: *out})
			s.sessions.Advance(tx)
			return nil
		case domain.OutcomeIncorrect:
			// Wrong answers leave the question open.
			tx.Emit(domain.EventAnswerAccepted{Outcome: *out})
		}

		return session.Discard
	})
	if err != nil {
		slog.ErrorContext(ctx, "score: submit answer failed",
			"chat_id", req.ChatID,
			"participant_id", req.ParticipantID,
			"error", err,
		)
		return nil, err
	}

	telemetry.Answers.WithLabelValues(string(out.Outcome)).Inc()
	if out.Completed {
		telemetry.SessionsFinished.WithLabelValues(string(domain.FinishReasonCompleted)).Inc()
	}

	slog.DebugContext(ctx, "score: answer resolved",
		"chat_id", req.ChatID,
		"participant_id", req.ParticipantID,
		"question_index", req.QuestionIndex,
		"option_index", req.OptionIndex,
		"outcome", out.Outcome,
	)

	return out, nil
}

func (s *Service) resolve(tx *session.Tx, req SubmitAnswerRequest, out *domain.AnswerOutcome) domain.Outcome {
	ss := tx.Session
	if !ss.IsActive() {
		return domain.OutcomeNoActiveSession
	}
	if req.QuestionIndex != ss.CurrentQuestionIndex {
		return domain.OutcomeStaleQuestion
	}

	q, ok := ss.Current()
	if !ok {
		return domain.OutcomeNoActiveSession
	}
	if req.OptionIndex < 0 || req.OptionIndex >= len(q.Options) {
		return domain.OutcomeInvalidOption
	}
	if q.Answered {
		return domain.OutcomeTooLate
	}
	if req.OptionIndex != q.CorrectOption {
		return domain.OutcomeIncorrect
	}

	sc, err := ss.Answer(req.ParticipantID, req.DisplayName, s.now())
	if err != nil {
		// Unreachable: the question was checked open above.
		return domain.OutcomeTooLate
	}

	out.Score = &sc
	return domain.OutcomeCorrectWinner
}
