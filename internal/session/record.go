package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/victornm/chatquiz/internal/domain"
)

// schemaVersion is bumped whenever the persisted layout changes.
const schemaVersion = 1

type (
	record struct {
		SchemaVersion        int                    `json:"schema_version"`
		ID                   string                 `json:"id"`
		ChatID               int64                  `json:"chat_id"`
		Status               domain.Status          `json:"status"`
		Subject              string                 `json:"subject"`
		Difficulty           domain.Difficulty      `json:"difficulty"`
		Questions            []questionRecord       `json:"questions"`
		CurrentQuestionIndex int                    `json:"current_question_index"`
		Scores               map[string]scoreRecord `json:"scores"`
		CreatedAt            time.Time              `json:"created_at"`
		UpdatedAt            time.Time              `json:"updated_at"`
	}

	questionRecord struct {
		Text          string   `json:"text"`
		Options       []string `json:"options"`
		CorrectOption int      `json:"correct_option"`
		Answered      bool     `json:"answered"`
		AnsweredBy    *int64   `json:"answered_by"`
	}

	scoreRecord struct {
		ParticipantID int64     `json:"participant_id"`
		DisplayName   string    `json:"display_name"`
		Points        int       `json:"points"`
		FirstPointAt  time.Time `json:"first_point_at"`
	}
)

func encode(s *domain.Session) ([]byte, error) {
	r := record{
		SchemaVersion:        schemaVersion,
		ID:                   s.ID,
		ChatID:               s.ChatID,
		Status:               s.Status,
		Subject:              s.Subject,
		Difficulty:           s.Difficulty,
		Questions:            make([]questionRecord, 0, len(s.Questions)),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		Scores:               make(map[string]scoreRecord, len(s.Scores)),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}

	for _, q := range s.Questions {
		r.Questions = append(r.Questions, questionRecord{
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Answered:      q.Answered,
			AnsweredBy:    q.AnsweredBy,
		})
	}

	for id, sc := range s.Scores {
		r.Scores[strconv.FormatInt(id, 10)] = scoreRecord{
			ParticipantID: sc.ParticipantID,
			DisplayName:   sc.DisplayName,
			Points:        sc.Points,
			FirstPointAt:  sc.FirstPointAt,
		}
	}

	return json.Marshal(r)
}

// decode parses and validates a stored record. Any error means the record is unusable.
func decode(chatID int64, b []byte) (*domain.Session, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if r.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", r.SchemaVersion)
	}
	if r.ChatID != chatID {
		return nil, fmt.Errorf("record belongs to chat %d", r.ChatID)
	}

	s := &domain.Session{
		ID:                   r.ID,
		ChatID:               r.ChatID,
		Status:               r.Status,
		Subject:              r.Subject,
		Difficulty:           r.Difficulty,
		Questions:            make([]domain.Question, 0, len(r.Questions)),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		Scores:               make(map[int64]domain.Score, len(r.Scores)),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}

	for _, q := range r.Questions {
		s.Questions = append(s.Questions, domain.Question{
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Answered:      q.Answered,
			AnsweredBy:    q.AnsweredBy,
		})
	}

	for k, sc := range r.Scores {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("score key %q: %w", k, err)
		}
		s.Scores[id] = domain.Score{
			ParticipantID: sc.ParticipantID,
			DisplayName:   sc.DisplayName,
			Points:        sc.Points,
			FirstPointAt:  sc.FirstPointAt,
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	return s, nil
}
