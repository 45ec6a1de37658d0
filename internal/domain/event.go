package domain

import "strconv"

const (
	EventNameQuestionPosted     = "question.posted"
	EventNameAnswerAccepted     = "answer.accepted"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameQuizFinished       = "quiz.finished"
)

// chatKey orders events of one chat.
func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

type EventQuestionPosted struct {
	Question PostedQuestion
}

func (EventQuestionPosted) Name() string  { return EventNameQuestionPosted }
func (e EventQuestionPosted) Key() string { return chatKey(e.Question.ChatID) }

type EventAnswerAccepted struct {
	Outcome AnswerOutcome
}

func (EventAnswerAccepted) Name() string  { return EventNameAnswerAccepted }
func (e EventAnswerAccepted) Key() string { return chatKey(e.Outcome.ChatID) }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string  { return EventNameLeaderboardUpdated }
func (e EventLeaderboardUpdated) Key() string { return chatKey(e.Leaderboard.ChatID) }

type EventQuizFinished struct {
	Summary Summary
}

func (EventQuizFinished) Name() string  { return EventNameQuizFinished }
func (e EventQuizFinished) Key() string { return chatKey(e.Summary.ChatID) }
