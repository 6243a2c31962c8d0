package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quire/internal/core/domain"
)

func groundedAnswer() *domain.Answer {
	return &domain.Answer{
		Question: "What is ozone?",
		Text:     "Ozone is a molecule made of three oxygen atoms [S1].",
		Outcome:  domain.OutcomeGrounded,
		Citations: []domain.Citation{
			{
				SourceURL:  "https://example.org/science/ozone/",
				Title:      "Ozone",
				Category:   "science",
				Tags:       []string{"S1"},
				Snippet:    "Ozone is...",
				Quotes:     []string{"Ozone is a molecule made of three oxygen atoms."},
				Referenced: true,
			},
			{
				SourceURL: "https://example.org/science/air/",
				Tags:      []string{"S2"},
			},
		},
		DroppedTags: []string{"S9"},
		Stages: []domain.Stage{
			domain.StageReceived, domain.StageEmbedded, domain.StageRetrieved,
			domain.StageContextBuilt, domain.StageGenerated, domain.StageCited,
		},
	}
}

func TestAskCmd_RequiresExactlyOneArg(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "ask")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestAskCmd_PrintsAnswerAndSources(t *testing.T) {
	fake := setupTestServices(t)
	fake.answer.answer = groundedAnswer()

	out, err := execute(t, "ask", "  What is ozone?  ")

	require.NoError(t, err)
	assert.Equal(t, "What is ozone?", fake.answer.question)
	assert.Contains(t, out, "three oxygen atoms [S1]")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "[S1] Ozone")
	assert.Contains(t, out, "[S2] https://example.org/science/air/")
	assert.Contains(t, out, "Removed 1 unsupported citation(s): S9")
}

func TestAskCmd_NoGrounding(t *testing.T) {
	fake := setupTestServices(t)
	fake.answer.answer = &domain.Answer{
		Text:    "I couldn't find anything about that.",
		Outcome: domain.OutcomeNoGrounding,
	}

	out, err := execute(t, "ask", "Unrelated?")

	require.NoError(t, err)
	assert.Contains(t, out, "No indexed page matched the question.")
	assert.NotContains(t, out, "Sources")
}

func TestAskCmd_JSON(t *testing.T) {
	fake := setupTestServices(t)
	fake.answer.answer = groundedAnswer()

	out, err := execute(t, "ask", "--json", "What is ozone?")
	require.NoError(t, err)

	var view answerView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, domain.OutcomeGrounded, view.Outcome)
	require.Len(t, view.Sources, 2)
	assert.Equal(t, "https://example.org/science/ozone/", view.Sources[0].URL)
	assert.Equal(t, []string{"Ozone is a molecule made of three oxygen atoms."}, view.Sources[0].Quotes)
	assert.True(t, view.Sources[0].Referenced)
	assert.Equal(t, []string{"S9"}, view.DroppedTags)
	assert.Len(t, view.Stages, 6)
}

func TestAskCmd_JSONNoGroundingHasEmptyArrays(t *testing.T) {
	fake := setupTestServices(t)
	fake.answer.answer = &domain.Answer{Outcome: domain.OutcomeNoGrounding}

	out, err := execute(t, "ask", "--json", "Unrelated?")

	require.NoError(t, err)
	assert.Contains(t, out, `"sources": []`)
	assert.Contains(t, out, `"dropped_tags": []`)
}

func TestAskCmd_OrchestratorFailure(t *testing.T) {
	fake := setupTestServices(t)
	fake.answer.err = &domain.OrchestratorFailure{
		Stage: domain.StageGenerated,
		Err:   errors.New("timeout"),
	}

	out, err := execute(t, "ask", "--json", "What is ozone?")

	assert.ErrorIs(t, err, domain.ErrOrchestratorFailure)
	assert.Contains(t, out, `"stage": "GENERATED"`)
}

func TestAskCmd_BlankQuestion(t *testing.T) {
	fake := setupTestServices(t)

	_, err := execute(t, "ask", "   ")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, fake.answer.question)
}

func TestAskCmd_ProviderUnavailable(t *testing.T) {
	fake := setupTestServices(t)
	fake.answerErr = domain.ErrLLMUnavailable

	_, err := execute(t, "ask", "What is ozone?")

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	assert.True(t, fake.closed)
}
