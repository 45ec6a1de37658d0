// Package question defines how quiz questions are obtained and what a usable batch looks like.
package question

import (
	"context"
	"fmt"
	"strings"

	"github.com/victornm/chatquiz/internal/domain"
)

const (
	MinCount = 1
	MaxCount = 20
)

// Request asks for Count questions about Subject.
type Request struct {
	Subject    string
	Count      int
	Difficulty domain.Difficulty
}

// Source produces question batches. Implementations return exactly Count valid questions or an
// error; a partial batch is an error.
type Source interface {
	Generate(ctx context.Context, req Request) ([]domain.Question, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) ([]domain.Question, error)

func (f SourceFunc) Generate(ctx context.Context, req Request) ([]domain.Question, error) {
	return f(ctx, req)
}

// Validate checks a batch against the request: exact count, valid questions, no repeats.
func Validate(qs []domain.Question, count int) error {
	if len(qs) != count {
		return fmt.Errorf("want %d questions, got %d", count, len(qs))
	}

	seen := make(map[string]int, len(qs))
	for i, q := range qs {
		if err := domain.ValidateQuestion(q); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}

		k := strings.ToLower(strings.Join(strings.Fields(q.Text), " "))
		if j, ok := seen[k]; ok {
			return fmt.Errorf("question %d repeats question %d", i, j)
		}
		seen[k] = i
	}

	return nil
}
