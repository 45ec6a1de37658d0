package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/victornm/chatquiz/internal/errors"
)

// OptionCount is the number of options every question carries.
const OptionCount = 4

// Status is the lifecycle state of a quiz session.
// Legal transitions: Inactive -> Active -> Completed, after which the record is removed.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

var difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert}

// ParseDifficulty parses a case-insensitive difficulty name. An empty value means medium.
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DifficultyMedium, nil
	}

	d := Difficulty(s)
	if !d.Valid() {
		return "", errors.Parameter("unknown difficulty %q, expected one of easy, medium, hard, expert", s)
	}

	return d, nil
}

func (d Difficulty) Valid() bool {
	return slices.Contains(difficulties, d)
}

// Question is one multiple-choice prompt. Answered and AnsweredBy are written together, once.
type Question struct {
	Text          string
	Options       []string
	CorrectOption int
	Answered      bool
	AnsweredBy    *int64
}

// Score represents a participant's points within a quiz session.
type Score struct {
	ParticipantID int64
	DisplayName   string
	Points        int
	FirstPointAt  time.Time
}

// Session represents one quiz run bound to a chat.
type Session struct {
	ID                   string
	ChatID               int64
	Status               Status
	Subject              string
	Difficulty           Difficulty
	Questions            []Question
	CurrentQuestionIndex int
	Scores               map[int64]Score
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewSession builds an active session positioned at the first question.
func NewSession(id string, chatID int64, subject string, difficulty Difficulty, questions []Question, now time.Time) *Session {
	qs := make([]Question, len(questions))
	for i, q := range questions {
		qs[i] = Question{
			Text:          q.Text,
			Options:       slices.Clone(q.Options),
			CorrectOption: q.CorrectOption,
		}
	}

	return &Session{
		ID:         id,
		ChatID:     chatID,
		Status:     StatusActive,
		Subject:    subject,
		Difficulty: difficulty,
		Questions:  qs,
		Scores:     make(map[int64]Score),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Inactive returns the implicit default for a chat without a stored session.
func Inactive(chatID int64) *Session {
	return &Session{
		ChatID: chatID,
		Status: StatusInactive,
		Scores: make(map[int64]Score),
	}
}

func (s *Session) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// Current returns the live question.
func (s *Session) Current() (Question, bool) {
	if !s.IsActive() || s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}

	return s.Questions[s.CurrentQuestionIndex], true
}

// Answer marks the current question as won by the participant and awards the point.
func (s *Session) Answer(participantID int64, displayName string, now time.Time) (Score, error) {
	if !s.IsActive() {
		return Score{}, fmt.Errorf("answer: session is %s", s.Status)
	}

	q := &s.Questions[s.CurrentQuestionIndex]
	if q.Answered {
		return Score{}, fmt.Errorf("answer: question %d is already answered", s.CurrentQuestionIndex)
	}

	q.Answered = true
	q.AnsweredBy = &participantID

	sc, ok := s.Scores[participantID]
	if !ok {
		sc = Score{
			ParticipantID: participantID,
			DisplayName:   displayName,
		}
	}
	if sc.Points == 0 {
		sc.FirstPointAt = now
	}
	sc.Points++
	s.Scores[participantID] = sc
	s.UpdatedAt = now

	return sc, nil
}

// Advance moves to the next question and completes the session after the last one.
// It reports whether the session completed.
func (s *Session) Advance(now time.Time) bool {
	s.CurrentQuestionIndex++
	s.UpdatedAt = now
	if s.CurrentQuestionIndex >= len(s.Questions) {
		s.Status = StatusCompleted
		return true
	}

	return false
}

// Complete finishes an active session.
func (s *Session) Complete(now time.Time) error {
	if s.Status != StatusActive {
		return fmt.Errorf("complete: illegal transition %s -> %s", s.Status, StatusCompleted)
	}

	s.Status = StatusCompleted
	s.UpdatedAt = now
	return nil
}

func (s *Session) AnsweredCount() int {
	n := 0
	for _, q := range s.Questions {
		if q.Answered {
			n++
		}
	}
	return n
}

// Standings returns the scores sorted by points descending, then by the time of the first
// point ascending, then by participant id.
func (s *Session) Standings() []Score {
	out := make([]Score, 0, len(s.Scores))
	for _, sc := range s.Scores {
		out = append(out, sc)
	}

	slices.SortFunc(out, compareScores)
	return out
}

func compareScores(a, b Score) int {
	if a.Points != b.Points {
		return b.Points - a.Points
	}
	if c := a.FirstPointAt.Compare(b.FirstPointAt); c != 0 {
		return c
	}
	switch {
	case a.ParticipantID < b.ParticipantID:
		return -1
	case a.ParticipantID > b.ParticipantID:
		return 1
	}
	return 0
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = slices.Clone(q.Options)
		if q.AnsweredBy != nil {
			by := *q.AnsweredBy
			q.AnsweredBy = &by
		}
		c.Questions[i] = q
	}

	c.Scores = make(map[int64]Score, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}

	return &c
}

// Validate checks the structural invariants of a stored session.
func (s *Session) Validate() error {
	if s.Status != StatusActive {
		return fmt.Errorf("status %q is not storable", s.Status)
	}
	if strings.TrimSpace(s.Subject) == "" {
		return fmt.Errorf("empty subject")
	}
	if !s.Difficulty.Valid() {
		return fmt.Errorf("invalid difficulty %q", s.Difficulty)
	}
	if len(s.Questions) == 0 {
		return fmt.Errorf("no questions")
	}
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return fmt.Errorf("current question index %d out of range [0,%d)", s.CurrentQuestionIndex, len(s.Questions))
	}

	won := make(map[int64]int)
	for i, q := range s.Questions {
		if err := ValidateQuestion(q); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
		if q.Answered != (q.AnsweredBy != nil) {
			return fmt.Errorf("question %d: answered and answered_by disagree", i)
		}
		if q.Answered {
			if i >= s.CurrentQuestionIndex {
				return fmt.Errorf("question %d: answered ahead of current question %d", i, s.CurrentQuestionIndex)
			}
			won[*q.AnsweredBy]++
		}
	}

	for id, sc := range s.Scores {
		if sc.ParticipantID != id {
			return fmt.Errorf("score key %d holds participant %d", id, sc.ParticipantID)
		}
		if sc.Points != won[id] {
			return fmt.Errorf("participant %d has %d points but won %d questions", id, sc.Points, won[id])
		}
		delete(won, id)
	}
	for id := range won {
		return fmt.Errorf("participant %d won a question but has no score", id)
	}

	return nil
}

// ValidateQuestion checks the shape of a single question: text, exactly four distinct
// options and a correct option within range.
func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("empty text")
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("want %d options, got %d", OptionCount, len(q.Options))
	}

	seen := make(map[string]struct{}, len(q.Options))
	for i, o := range q.Options {
		k := strings.ToLower(strings.TrimSpace(o))
		if k == "" {
			return fmt.Errorf("option %d is empty", i)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("duplicate option %q", o)
		}
		seen[k] = struct{}{}
	}

	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return fmt.Errorf("correct option %d out of range", q.CorrectOption)
	}

	return nil
}

// FinishReason tells why a session ended.
type FinishReason string

const (
	FinishReasonCompleted FinishReason = "completed"
	FinishReasonStopped   FinishReason = "stopped"
)

// Summary is the final result of a session.
type Summary struct {
	SessionID         string
	ChatID            int64
	Subject           string
	Difficulty        Difficulty
	Reason            FinishReason
	TotalQuestions    int
	AnsweredQuestions int
	Standings         []Score
	CreatedAt         time.Time
	FinishedAt        time.Time
}

func (s *Session) Summary(reason FinishReason) Summary {
	return Summary{
		SessionID:         s.ID,
		ChatID:            s.ChatID,
		Subject:           s.Subject,
		Difficulty:        s.Difficulty,
		Reason:            reason,
		TotalQuestions:    len(s.Questions),
		AnsweredQuestions: s.AnsweredCount(),
		Standings:         s.Standings(),
		CreatedAt:         s.CreatedAt,
		FinishedAt:        s.UpdatedAt,
	}
}

// QuizStatus is a snapshot of a running session.
type QuizStatus struct {
	SessionID            string
	ChatID               int64
	Subject              string
	Difficulty           Difficulty
	TotalQuestions       int
	AnsweredQuestions    int
	CurrentQuestionIndex int
	Participants         int
	CreatedAt            time.Time
}

func (s *Session) QuizStatus() QuizStatus {
	return QuizStatus{
		SessionID:            s.ID,
		ChatID:               s.ChatID,
		Subject:              s.Subject,
		Difficulty:           s.Difficulty,
		TotalQuestions:       len(s.Questions),
		AnsweredQuestions:    s.AnsweredCount(),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		Participants:         len(s.Scores),
		CreatedAt:            s.CreatedAt,
	}
}

// PostedQuestion is a question as shown to the chat.
type PostedQuestion struct {
	ChatID   int64
	Index    int
	Total    int
	Question Question
}

// Leaderboard represents the participants of a session and their scores.
// Entries are sorted the same way as Session.Standings.
type Leaderboard struct {
	ChatID  int64
	Entries []Score
}
