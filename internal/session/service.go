package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/errors"
	"github.com/victornm/chatquiz/internal/question"
	"github.com/victornm/chatquiz/internal/telemetry"
)

const (
	defaultCount            = 5
	defaultMaxSubjectLength = 100
)

type Config struct {
	Store  *Store
	Source question.Source

	// DefaultCount is used when a create request asks for no particular count.
	DefaultCount int
	// MaxCount caps the number of questions; it never exceeds question.MaxCount.
	MaxCount         int
	MaxSubjectLength int

	NewID func() (string, error)
	Now   func() time.Time
}

type Service struct {
	store  *Store
	source question.Source

	defaultCount     int
	maxCount         int
	maxSubjectLength int

	newID func() (string, error)
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:            c.Store,
		source:           c.Source,
		defaultCount:     c.DefaultCount,
		maxCount:         c.MaxCount,
		maxSubjectLength: c.MaxSubjectLength,
		newID:            c.NewID,
		now:              c.Now,
	}

	if s.maxCount <= 0 || s.maxCount > question.MaxCount {
		s.maxCount = question.MaxCount
	}
	if s.defaultCount <= 0 {
		s.defaultCount = defaultCount
	}
	s.defaultCount = min(s.defaultCount, s.maxCount)
	if s.maxSubjectLength <= 0 {
		s.maxSubjectLength = defaultMaxSubjectLength
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}

	return id.String(), nil
}

// CreateSessionRequest represents a request to start a quiz in a chat.
type CreateSessionRequest struct {
	ChatID  int64
	Subject string
	// Count is the number of questions. Zero means the default; other values are clamped.
	Count int
	// Difficulty is parsed case-insensitively. Empty means medium.
	Difficulty string
}

// CreateSession generates the questions and starts a quiz in the chat.
// Generation runs without holding the chat lock; the chat is checked again before the commit.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	gen, err := s.parseCreateRequest(req)
	if err != nil {
		slog.InfoContext(ctx, "session: invalid create request", "chat_id", req.ChatID, "error", err)
		return nil, err
	}

	if s.IsActive(ctx, req.ChatID) {
		slog.InfoContext(ctx, "session: quiz already active", "chat_id", req.ChatID)
		return nil, errors.AlreadyActive(req.ChatID)
	}

	qs, err := s.source.Generate(ctx, gen)
	if err == nil {
		err = question.Validate(qs, gen.Count)
	}
	if err != nil {
		slog.WarnContext(ctx, "session: question generation failed",
			"chat_id", req.ChatID,
			"subject", gen.Subject,
			"count", gen.Count,
			"error", err,
		)
		return nil, errors.Generation(err)
	}

	id, err := s.newID()
	if err != nil {
		return nil, errors.Internal(err)
	}

	ss, err := s.store.Mutate(ctx, req.ChatID, func(tx *Tx) error {
		if tx.Session.IsActive() {
			return errors.AlreadyActive(req.ChatID)
		}

		tx.Session = domain.NewSession(id, req.ChatID, gen.Subject, gen.Difficulty, qs, s.now())
		tx.Emit(postedEvent(tx.Session))
		return nil
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeAlreadyExists) {
			slog.InfoContext(ctx, "session: quiz started concurrently", "chat_id", req.ChatID)
		}
		return nil, err
	}

	telemetry.SessionsCreated.Inc()
	slog.InfoContext(ctx, "session: quiz started",
		"chat_id", req.ChatID,
		"session_id", ss.ID,
		"subject", ss.Subject,
		"difficulty", ss.Difficulty,
		"questions", len(ss.Questions),
	)

	return ss, nil
}

func (s *Service) parseCreateRequest(req CreateSessionRequest) (question.Request, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return question.Request{}, errors.Parameter("subject must not be empty")
	}
	if n := utf8.RuneCountInString(subject); n > s.maxSubjectLength {
		return question.Request{}, errors.Parameter("subject is %d characters long, at most %d allowed", n, s.maxSubjectLength)
	}

	d, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		return question.Request{}, err
	}

	count := req.Count
	if count == 0 {
		count = s.defaultCount
	}
	count = max(question.MinCount, min(count, s.maxCount))

	return question.Request{
		Subject:    subject,
		Count:      count,
		Difficulty: d,
	}, nil
}

// StopSession ends the chat's quiz early and returns its final standings.
func (s *Service) StopSession(ctx context.Context, chatID int64) (*domain.Summary, error) {
	var sum domain.Summary

	_, err := s.store.Mutate(ctx, chatID, func(tx *Tx) error {
		if !tx.Session.IsActive() {
			return errors.NoActiveSession(chatID)
		}

		if err := tx.Session.Complete(s.now()); err != nil {
			return errors.Internal(err)
		}

		sum = tx.Session.Summary(domain.FinishReasonStopped)
		tx.Emit(domain.EventQuizFinished{Summary: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.SessionsFinished.WithLabelValues(string(domain.FinishReasonStopped)).Inc()
	slog.InfoContext(ctx, "session: quiz stopped",
		"chat_id", chatID,
		"session_id", sum.SessionID,
		"answered", sum.AnsweredQuestions,
		"total", sum.TotalQuestions,
	)

	return &sum, nil
}

// Advance moves the session in tx past its current question. After the last question the
// session is completed, so the mutation removes it. It must only be called from inside a
// Mutate transform and reports whether the session completed.
func (s *Service) Advance(tx *Tx) bool {
	ss := tx.Session
	if !ss.Advance(s.now()) {
		tx.Emit(postedEvent(ss))
		return false
	}

	tx.Emit(domain.EventQuizFinished{Summary: ss.Summary(domain.FinishReasonCompleted)})
	return true
}

// Mutate runs fn under the chat lock. See Store.Mutate.
func (s *Service) Mutate(ctx context.Context, chatID int64, fn func(tx *Tx) error) (*domain.Session, error) {
	return s.store.Mutate(ctx, chatID, fn)
}

// Get returns the chat's running session.
func (s *Service) Get(ctx context.Context, chatID int64) (*domain.Session, error) {
	return s.store.Get(ctx, chatID)
}

// IsActive reports whether the chat runs a quiz. A failed read counts as inactive.
func (s *Service) IsActive(ctx context.Context, chatID int64) bool {
	ss, err := s.store.Get(ctx, chatID)
	if err != nil {
		if !errors.HasCode(err, errors.CodeNotFound) {
			slog.WarnContext(ctx, "session: read failed", "chat_id", chatID, "error", err)
		}
		return false
	}

	return ss.IsActive()
}

func (s *Service) GetStatus(ctx context.Context, chatID int64) (*domain.QuizStatus, error) {
	ss, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}

	st := ss.QuizStatus()
	return &st, nil
}

// CurrentQuestion returns the live question of the chat's quiz.
func (s *Service) CurrentQuestion(ctx context.Context, chatID int64) (*domain.PostedQuestion, error) {
	ss, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if _, ok := ss.Current(); !ok {
		return nil, errors.NoActiveSession(chatID)
	}

	pq := postedEvent(ss).Question
	return &pq, nil
}

func postedEvent(ss *domain.Session) domain.EventQuestionPosted {
	q, _ := ss.Current()
	return domain.EventQuestionPosted{
		Question: domain.PostedQuestion{
			ChatID:   ss.ChatID,
			Index:    ss.CurrentQuestionIndex,
			Total:    len(ss.Questions),
			Question: q,
		},
	}
}
