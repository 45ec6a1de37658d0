// Package api exposes the quiz engine over HTTP and forwards its events to Redis pub/sub.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/errors"
	"github.com/victornm/chatquiz/internal/event"
	"github.com/victornm/chatquiz/internal/leaderboard"
	"github.com/victornm/chatquiz/internal/score"
	"github.com/victornm/chatquiz/internal/session"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Score        *score.Service
	Leaderboard  *leaderboard.Service
	Redis        redis.UniversalClient
	PubsubPrefix string
}

type API struct {
	eb          *event.Bus
	session     *session.Service
	score       *score.Service
	leaderboard *leaderboard.Service
	redis       redis.UniversalClient
	prefix      string
}

func New(c Config) *API {
	a := &API{
		eb:          c.EventBus,
		session:     c.Session,
		score:       c.Score,
		leaderboard: c.Leaderboard,
		redis:       c.Redis,
		prefix:      c.PubsubPrefix,
	}

	a.register(c.Router)
	a.subscribe()

	return a
}

func (a *API) register(r gin.IRouter) {
	g := r.Group("/v1/chats/:chat_id/quiz")
	g.POST("", a.CreateSession)
	g.GET("", a.GetStatus)
	g.DELETE("", a.StopSession)
	g.GET("/question", a.CurrentQuestion)
	g.POST("/answers", a.SubmitAnswer)
	g.GET("/leaderboard", a.GetLeaderboard)
}

type (
	CreateSessionRequest struct {
		Subject    string `json:"subject"`
		Count      int    `json:"count"`
		Difficulty string `json:"difficulty"`
	}

	SubmitAnswerRequest struct {
		ParticipantID int64  `json:"participant_id"`
		DisplayName   string `json:"display_name"`
		QuestionIndex *int   `json:"question_index"`
		OptionIndex   *int   `json:"option_index"`
	}

	Session struct {
		SessionID      string    `json:"session_id"`
		ChatID         int64     `json:"chat_id"`
		Subject        string    `json:"subject"`
		Difficulty     string    `json:"difficulty"`
		TotalQuestions int       `json:"total_questions"`
		Question       Question  `json:"question"`
		CreatedAt      time.Time `json:"created_at"`
	}

	// Question never carries the correct option.
	Question struct {
		ChatID  int64    `json:"chat_id"`
		Index   int      `json:"index"`
		Total   int      `json:"total"`
		Text    string   `json:"text"`
		Options []string `json:"options"`
	}

	Status struct {
		SessionID            string    `json:"session_id"`
		ChatID               int64     `json:"chat_id"`
		Subject              string    `json:"subject"`
		Difficulty           string    `json:"difficulty"`
		TotalQuestions       int       `json:"total_questions"`
		AnsweredQuestions    int       `json:"answered_questions"`
		CurrentQuestionIndex int       `json:"current_question_index"`
		Participants         int       `json:"participants"`
		CreatedAt            time.Time `json:"created_at"`
	}

	Outcome struct {
		ChatID        int64  `json:"chat_id"`
		ParticipantID int64  `json:"participant_id"`
		QuestionIndex int    `json:"question_index"`
		OptionIndex   int    `json:"option_index"`
		Outcome       string `json:"outcome"`
		Score         *Entry `json:"score,omitempty"`
		Completed     bool   `json:"completed"`
	}

	Entry struct {
		ParticipantID int64     `json:"participant_id"`
		DisplayName   string    `json:"display_name"`
		Points        int       `json:"points"`
		FirstPointAt  time.Time `json:"first_point_at"`
	}

	Leaderboard struct {
		ChatID  int64   `json:"chat_id"`
		Entries []Entry `json:"entries"`
	}

	Summary struct {
		SessionID         string    `json:"session_id"`
		ChatID            int64     `json:"chat_id"`
		Subject           string    `json:"subject"`
		Difficulty        string    `json:"difficulty"`
		Reason            string    `json:"reason"`
		TotalQuestions    int       `json:"total_questions"`
		AnsweredQuestions int       `json:"answered_questions"`
		Standings         []Entry   `json:"standings"`
		CreatedAt         time.Time `json:"created_at"`
		FinishedAt        time.Time `json:"finished_at"`
	}
)

func (a *API) CreateSession(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Parameter("invalid request body: %v", err))
		return
	}

	ss, err := a.session.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		ChatID:     chatID,
		Subject:    req.Subject,
		Count:      req.Count,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	q, _ := ss.Current()
	c.JSON(http.StatusCreated, Session{
		SessionID:      ss.ID,
		ChatID:         ss.ChatID,
		Subject:        ss.Subject,
		Difficulty:     string(ss.Difficulty),
		TotalQuestions: len(ss.Questions),
		Question: toQuestion(domain.PostedQuestion{
			ChatID:   ss.ChatID,
			Index:    ss.CurrentQuestionIndex,
			Total:    len(ss.Questions),
			Question: q,
		}),
		CreatedAt: ss.CreatedAt,
	})
}

func (a *API) GetStatus(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	st, err := a.session.GetStatus(c.Request.Context(), chatID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Status{
		SessionID:            st.SessionID,
		ChatID:               st.ChatID,
		Subject:              st.Subject,
		Difficulty:           string(st.Difficulty),
		TotalQuestions:       st.TotalQuestions,
		AnsweredQuestions:    st.AnsweredQuestions,
		CurrentQuestionIndex: st.CurrentQuestionIndex,
		Participants:         st.Participants,
		CreatedAt:            st.CreatedAt,
	})
}

func (a *API) StopSession(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	sum, err := a.session.StopSession(c.Request.Context(), chatID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSummary(*sum))
}

func (a *API) CurrentQuestion(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	q, err := a.session.CurrentQuestion(c.Request.Context(), chatID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuestion(*q))
}

func (a *API) SubmitAnswer(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Parameter("invalid request body: %v", err))
		return
	}
	if req.QuestionIndex == nil || req.OptionIndex == nil {
		writeError(c, errors.Parameter("question_index and option_index are required"))
		return
	}

	o, err := a.score.SubmitAnswer(c.Request.Context(), score.SubmitAnswerRequest{
		ChatID:        chatID,
		ParticipantID: req.ParticipantID,
		DisplayName:   req.DisplayName,
		QuestionIndex: *req.QuestionIndex,
		OptionIndex:   *req.OptionIndex,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOutcome(*o))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), chatID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		writeError(c, errors.Parameter("invalid chat id %q", c.Param("chat_id")))
		return 0, false
	}

	return id, true
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		logError(c.Request.Context(), c.FullPath(), err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func logError(ctx context.Context, path string, err error) {
	slog.ErrorContext(ctx, "api: request failed", "path", path, "error", err)
}

func toQuestion(q domain.PostedQuestion) Question {
	return Question{
		ChatID:  q.ChatID,
		Index:   q.Index,
		Total:   q.Total,
		Text:    q.Question.Text,
		Options: q.Question.Options,
	}
}

func toEntries(scores []domain.Score) []Entry {
	out := make([]Entry, 0, len(scores))
	for _, sc := range scores {
		out = append(out, toEntry(sc))
	}
	return out
}

func toEntry(sc domain.Score) Entry {
	return Entry{
		ParticipantID: sc.ParticipantID,
		DisplayName:   sc.DisplayName,
		Points:        sc.Points,
		FirstPointAt:  sc.FirstPointAt,
	}
}

func toOutcome(o domain.AnswerOutcome) Outcome {
	out := Outcome{
		ChatID:        o.ChatID,
		ParticipantID: o.ParticipantID,
		QuestionIndex: o.QuestionIndex,
		OptionIndex:   o.OptionIndex,
		Outcome:       string(o.Outcome),
		Completed:     o.Completed,
	}
	if o.Score != nil {
		e := toEntry(*o.Score)
		out.Score = &e
	}

	return out
}

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	return Leaderboard{
		ChatID:  l.ChatID,
		Entries: toEntries(l.Entries),
	}
}

func toSummary(s domain.Summary) Summary {
	return Summary{
		SessionID:         s.SessionID,
		ChatID:            s.ChatID,
		Subject:           s.Subject,
		Difficulty:        string(s.Difficulty),
		Reason:            string(s.Reason),
		TotalQuestions:    s.TotalQuestions,
		AnsweredQuestions: s.AnsweredQuestions,
		Standings:         toEntries(s.Standings),
		CreatedAt:         s.CreatedAt,
		FinishedAt:        s.FinishedAt,
	}
}
