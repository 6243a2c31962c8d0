package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/logger"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Question    string        `json:"question"`
	ChatHistory []chatMessage `json:"chat_history"`
}

type sourceResponse struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Snippet    string   `json:"snippet"`
	Tags       []string `json:"tags"`
	Quotes     []string `json:"quotes"`
	Referenced bool     `json:"referenced"`
}

type chatResponse struct {
	Answer      string           `json:"answer"`
	Outcome     string           `json:"outcome"`
	Sources     []sourceResponse `json:"sources"`
	DroppedTags []string         `json:"dropped_tags"`
	Stages      []string         `json:"stages"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Chunks         int    `json:"chunks"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	history := make([]domain.ChatMessage, 0, len(req.ChatHistory))
	for _, m := range req.ChatHistory {
		history = append(history, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}

	ctx := c.Request.Context()
	answer, err := s.ports.Answer.AnswerWithHistory(ctx, req.Question, history)
	if err != nil {
		s.cfg.Metrics.RecordAnswer(ctx, "failed")

		var failure *domain.OrchestratorFailure
		switch {
		case errors.As(err, &failure):
			logger.Error("chat failed at %s: %v", failure.Stage, failure.Err)
			c.JSON(http.StatusServiceUnavailable, errorResponse{
				Error: "the question could not be answered right now",
				Stage: string(failure.Stage),
			})
		case errors.Is(err, domain.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			logger.Error("chat: %v", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	s.cfg.Metrics.RecordAnswer(ctx, string(answer.Outcome))
	c.JSON(http.StatusOK, toChatResponse(answer))
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.ports.Health.Health(c.Request.Context())

	resp := healthResponse{
		Status:         "healthy",
		Chunks:         h.Chunks,
		Model:          s.cfg.Model,
		EmbeddingModel: h.Model,
	}
	if !h.Reachable {
		resp.Status = "degraded"
		resp.Error = h.Err
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func toChatResponse(answer *domain.Answer) chatResponse {
	resp := chatResponse{
		Answer:      answer.Text,
		Outcome:     string(answer.Outcome),
		Sources:     make([]sourceResponse, len(answer.Citations)),
		DroppedTags: append([]string{}, answer.DroppedTags...),
		Stages:      make([]string, len(answer.Stages)),
	}
	for i, c := range answer.Citations {
		resp.Sources[i] = sourceResponse{
			URL:        c.SourceURL,
			Title:      c.Title,
			Category:   c.Category,
			Snippet:    c.Snippet,
			Tags:       append([]string{}, c.Tags...),
			Quotes:     append([]string{}, c.Quotes...),
			Referenced: c.Referenced,
		}
	}
	for i, st := range answer.Stages {
		resp.Stages[i] = string(st)
	}
	return resp
}
