package domain

// Outcome classifies an answer submission.
type Outcome string

const (
	OutcomeCorrectWinner   Outcome = "correct_winner"
	OutcomeIncorrect       Outcome = "incorrect"
	OutcomeTooLate         Outcome = "too_late"
	OutcomeStaleQuestion   Outcome = "stale_question"
	OutcomeInvalidOption   Outcome = "invalid_option"
	OutcomeNoActiveSession Outcome = "no_active_session"
)

// Accepted reports whether the submission was evaluated against the live question.
func (o Outcome) Accepted() bool {
	return o == OutcomeCorrectWinner || o == OutcomeIncorrect
}

// AnswerOutcome is the result of one answer submission.
type AnswerOutcome struct {
	ChatID        int64
	ParticipantID int64
	QuestionIndex int
	OptionIndex   int
	Outcome       Outcome
	// Score is set for CorrectWinner only.
	Score *Score
	// Completed is true when the winning answer finished the session.
	Completed bool
}
