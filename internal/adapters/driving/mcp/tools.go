package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question    string         `json:"question" jsonschema:"the question to answer from the indexed site"`
	ChatHistory []MessageInput `json:"chat_history,omitempty" jsonschema:"earlier turns of the conversation, oldest first"`
}

// MessageInput is one earlier conversation turn.
type MessageInput struct {
	Role    string `json:"role" jsonschema:"user or assistant"`
	Content string `json:"content"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer      string         `json:"answer"`
	Outcome     string         `json:"outcome"`
	Sources     []SourceOutput `json:"sources"`
	DroppedTags []string       `json:"dropped_tags,omitempty"`
}

// SourceOutput is one cited page.
type SourceOutput struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Category   string   `json:"category,omitempty"`
	Snippet    string   `json:"snippet"`
	Tags       []string `json:"tags"`
	Quotes     []string `json:"quotes"`
	Referenced bool     `json:"referenced"`
}

// HealthInput is the (empty) input schema for the health tool.
type HealthInput struct{}

// HealthOutput is the output schema for the health tool.
type HealthOutput struct {
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Error      string `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the indexed website, with [Sn] citations",
	}, s.handleAsk)

	if s.ports.Health != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "health",
			Description: "Report whether the vector store is reachable and how many chunks it holds",
		}, s.handleHealth)
	}
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	history := make([]domain.ChatMessage, len(input.ChatHistory))
	for i, m := range input.ChatHistory {
		history[i] = domain.ChatMessage{Role: m.Role, Content: m.Content}
	}

	answer, err := s.ports.Answer.AnswerWithHistory(ctx, input.Question, history)
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, toAskOutput(answer), nil
}

// handleHealth handles the health tool invocation.
func (s *Server) handleHealth(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ HealthInput,
) (*mcp.CallToolResult, HealthOutput, error) {
	return nil, toHealthOutput(s.ports.Health.Health(ctx)), nil
}

func toAskOutput(answer *domain.Answer) AskOutput {
	out := AskOutput{
		Answer:      answer.Text,
		Outcome:     string(answer.Outcome),
		Sources:     make([]SourceOutput, len(answer.Citations)),
		DroppedTags: answer.DroppedTags,
	}
	for i, c := range answer.Citations {
		out.Sources[i] = SourceOutput{
			URL:        c.SourceURL,
			Title:      c.Title,
			Category:   c.Category,
			Snippet:    c.Snippet,
			Tags:       c.Tags,
			Quotes:     c.Quotes,
			Referenced: c.Referenced,
		}
	}
	return out
}

func toHealthOutput(h domain.HealthStatus) HealthOutput {
	status := "healthy"
	if !h.Reachable {
		status = "degraded"
	}
	return HealthOutput{
		Status:     status,
		Chunks:     h.Chunks,
		Model:      h.Model,
		Dimensions: h.Dimensions,
		Error:      h.Err,
	}
}
