package question

import (
	"context"
	"fmt"
	"os"

	"github.com/victornm/chatquiz/internal/domain"
)

// Static serves questions from a fixed bank, in order. It is used for local runs and tests.
type Static struct {
	Questions []domain.Question
}

// LoadStatic reads a bank written in the same JSON shape the language models are asked for.
func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	qs, err := Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", path, err)
	}

	return &Static{Questions: qs}, nil
}

func (s *Static) Generate(_ context.Context, req Request) ([]domain.Question, error) {
	if req.Count > len(s.Questions) {
		return nil, fmt.Errorf("question bank has %d questions, %d requested", len(s.Questions), req.Count)
	}

	return s.Questions[:req.Count:req.Count], nil
}
