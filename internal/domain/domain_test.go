package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/errors"
)

func TestParseDifficulty(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    domain.Difficulty
		wantErr bool
	}{
		"empty defaults to medium": {in: "", want: domain.DifficultyMedium},
		"case insensitive":         {in: " HARD ", want: domain.DifficultyHard},
		"expert":                   {in: "expert", want: domain.DifficultyExpert},
		"unknown is a parameter error": {
			in:      "impossible",
			wantErr: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := domain.ParseDifficulty(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_AnswerAndAdvance(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := domain.NewSession("s1", 1, "History", domain.DifficultyMedium, questions(2), now)

	sc, err := s.Answer(10, "alice", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, sc.Points)
	assert.Equal(t, now.Add(time.Second), sc.FirstPointAt)

	_, err = s.Answer(11, "bob", now)
	require.Error(t, err, "a question can be won only once")

	assert.False(t, s.Advance(now))
	require.NoError(t, s.Validate())

	sc, err = s.Answer(10, "alice renamed", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, sc.Points)
	assert.Equal(t, "alice", sc.DisplayName, "display name is captured on the first point")
	assert.Equal(t, now.Add(time.Second), sc.FirstPointAt)

	assert.True(t, s.Advance(now))
	assert.Equal(t, domain.StatusCompleted, s.Status)
	require.Error(t, s.Complete(now), "completed sessions cannot complete again")
}

func TestSession_Standings(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	s := domain.NewSession("s1", 1, "History", domain.DifficultyMedium, questions(1), t0)
	s.Scores = map[int64]domain.Score{
		3: {ParticipantID: 3, Points: 1, FirstPointAt: t0.Add(2 * time.Second)},
		1: {ParticipantID: 1, Points: 2, FirstPointAt: t0.Add(5 * time.Second)},
		2: {ParticipantID: 2, Points: 1, FirstPointAt: t0.Add(time.Second)},
		4: {ParticipantID: 4, Points: 1, FirstPointAt: t0.Add(time.Second)},
	}

	var ids []int64
	for _, sc := range s.Standings() {
		ids = append(ids, sc.ParticipantID)
	}
	assert.Equal(t, []int64{1, 2, 4, 3}, ids)

	for i := 0; i < 10; i++ {
		assert.Equal(t, s.Standings(), s.Standings())
	}
}

func TestSession_Validate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	winner := int64(7)

	tests := map[string]struct {
		mutate  func(s *domain.Session)
		wantErr bool
	}{
		"fresh session is valid": {
			mutate: func(*domain.Session) {},
		},
		"points must match won questions": {
			mutate: func(s *domain.Session) {
				s.Scores[7] = domain.Score{ParticipantID: 7, Points: 1}
			},
			wantErr: true,
		},
		"answered question needs a winner": {
			mutate: func(s *domain.Session) {
				s.Questions[0].Answered = true
				s.CurrentQuestionIndex = 1
			},
			wantErr: true,
		},
		"consistent answered question": {
			mutate: func(s *domain.Session) {
				s.Questions[0].Answered = true
				s.Questions[0].AnsweredBy = &winner
				s.CurrentQuestionIndex = 1
				s.Scores[7] = domain.Score{ParticipantID: 7, Points: 1}
			},
		},
		"index out of range": {
			mutate: func(s *domain.Session) {
				s.CurrentQuestionIndex = 3
			},
			wantErr: true,
		},
		"duplicate options": {
			mutate: func(s *domain.Session) {
				s.Questions[1].Options[2] = s.Questions[1].Options[0]
			},
			wantErr: true,
		},
		"completed sessions are not stored": {
			mutate: func(s *domain.Session) {
				s.Status = domain.StatusCompleted
			},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := domain.NewSession("s1", 1, "History", domain.DifficultyMedium, questions(3), now)
			tt.mutate(s)
			if tt.wantErr {
				assert.Error(t, s.Validate())
			} else {
				assert.NoError(t, s.Validate())
			}
		})
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := domain.NewSession("s1", 1, "History", domain.DifficultyMedium, questions(1), now)
	_, err := s.Answer(1, "a", now)
	require.NoError(t, err)

	c := s.Clone()
	*c.Questions[0].AnsweredBy = 2
	c.Questions[0].Options[0] = "changed"
	c.Scores[1] = domain.Score{}

	assert.Equal(t, int64(1), *s.Questions[0].AnsweredBy)
	assert.NotEqual(t, "changed", s.Questions[0].Options[0])
	assert.Equal(t, 1, s.Scores[1].Points)
}

func questions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			Text:          "Question?",
			Options:       []string{"A", "B", "C", "D"},
			CorrectOption: i % domain.OptionCount,
		}
	}
	return qs
}
