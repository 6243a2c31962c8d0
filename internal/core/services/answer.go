package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
	"github.com/custodia-labs/quire/internal/logger"
	"github.com/custodia-labs/quire/internal/retry"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// Retrieval over-fetches so the per-source cap still leaves top_k hits.
const (
	overFetchFactor = 3
	overFetchLimit  = 20
	snippetChars    = 200
)

// Fallback prompts, used when no prompt store is configured.
const (
	fallbackSystemPrompt = `Answer the user's question using ONLY the provided context passages.
Cite every claim with the tag of the passage it comes from, e.g. [S1] or [S1, S3].
If the context does not contain the answer, say so.`
	fallbackUserPrompt = "Context:\n\n%s\n\nQuestion: %s"
)

// citationPattern matches [S1] and [S1, S2] with any leading blanks.
var citationPattern = regexp.MustCompile(`([ \t]*)\[(\s*S\d+(?:\s*,\s*S\d+)*\s*)\]`)

// AnswerService answers questions from retrieved context.
type AnswerService struct {
	embedder  driven.Embedder
	store     driven.VectorStore
	generator driven.Generator
	prompts   driven.PromptStore
	policy    retry.Policy

	settings    domain.AnswerSettings
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// AnswerOption configures an AnswerService.
type AnswerOption func(*AnswerService)

// WithAnswerSettings sets retrieval and context settings.
func WithAnswerSettings(s domain.AnswerSettings) AnswerOption {
	return func(a *AnswerService) { a.settings = s }
}

// WithGenerationSettings sets temperature, output cap and per-attempt timeout.
func WithGenerationSettings(s domain.LLMSettings) AnswerOption {
	return func(a *AnswerService) {
		a.temperature = s.Temperature
		a.maxTokens = s.MaxTokens
		a.timeout = s.Timeout
	}
}

// WithPromptStore loads prompts from store.
func WithPromptStore(store driven.PromptStore) AnswerOption {
	return func(a *AnswerService) { a.prompts = store }
}

// WithAnswerRetry sets the retry policy for embedding and generation calls.
func WithAnswerRetry(p retry.Policy) AnswerOption {
	return func(a *AnswerService) { a.policy = p }
}

// NewAnswerService creates an answer service.
func NewAnswerService(
	embedder driven.Embedder,
	store driven.VectorStore,
	generator driven.Generator,
	opts ...AnswerOption,
) *AnswerService {
	defaults := domain.DefaultSettings()
	a := &AnswerService{
		embedder:  embedder,
		store:     store,
		generator: generator,
		policy:    retry.New(retry.DefaultMaxAttempts),
		settings:  defaults.Answer,
	}
	WithGenerationSettings(defaults.LLM)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer answers a single question.
func (a *AnswerService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	return a.AnswerWithHistory(ctx, question, nil)
}

// answerRun tracks one question through the state machine.
type answerRun struct {
	span   trace.Span
	stages []domain.Stage
}

func (r *answerRun) advance(stage domain.Stage) {
	r.stages = append(r.stages, stage)
	r.span.AddEvent(stage.String())
	logger.Debug("Answer stage %s", stage)
}

func (r *answerRun) fail(stage domain.Stage, err error) error {
	completed := append([]domain.Stage(nil), r.stages...)
	r.span.AddEvent(domain.StageFailed.String(), trace.WithAttributes(attribute.String("answer.failed_stage", stage.String())))
	logger.Warn("Answer failed at %s: %v", stage, err)
	return &domain.OrchestratorFailure{Stage: stage, Completed: completed, Err: err}
}

// AnswerWithHistory runs RECEIVED -> EMBEDDED -> RETRIEVED -> CONTEXT_BUILT
// -> GENERATED -> CITED. It returns a grounded Answer, an Answer with
// OutcomeNoGrounding when retrieval leaves nothing to ground on (the
// generator is not called), or a *domain.OrchestratorFailure.
func (a *AnswerService) AnswerWithHistory(
	ctx context.Context,
	question string,
	history []domain.ChatMessage,
) (answer *domain.Answer, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "answer")
	defer func() {
		if answer != nil {
			span.SetAttributes(attribute.String("answer.outcome", string(answer.Outcome)))
		}
		endSpan(span, err)
	}()
	run := &answerRun{span: span}
	run.advance(domain.StageReceived)

	// 1. EMBED the question with the profile the store was built with.
	want := domain.StoreProfile{Model: a.embedder.ModelName(), Dimensions: a.embedder.Dimensions()}
	if bound := a.store.Profile(); !bound.IsZero() && bound != want {
		return nil, run.fail(domain.StageEmbedded, fmt.Errorf("%w: store built with %s (%d dims), configured %s (%d dims)",
			domain.ErrProfileMismatch, bound.Model, bound.Dimensions, want.Model, want.Dimensions))
	}
	vector, err := retry.Do(ctx, a.notifying("embedding"), func(ctx context.Context) ([]float32, error) {
		return a.embedder.Embed(ctx, question)
	})
	if err != nil {
		return nil, run.fail(domain.StageEmbedded, err)
	}
	run.advance(domain.StageEmbedded)

	// 2. RETRIEVE, capping hits per source and flagging those under the floor.
	res, err := a.store.Query(ctx, vector, a.fetchK())
	if err != nil {
		return nil, run.fail(domain.StageRetrieved, err)
	}
	hits := a.selectHits(res.Hits)
	run.advance(domain.StageRetrieved)
	span.SetAttributes(attribute.Int("answer.hits", len(hits)))

	if len(hits) == 0 {
		logger.Info("No chunks retrieved for question; answering without generation")
		return a.noGrounding(question, run), nil
	}

	// 3. BUILD the tagged context within the budget.
	passages, contextBlock := a.buildContext(hits)
	if len(passages) == 0 {
		logger.Info("No retrieved chunk fits the context budget of %d characters", a.settings.MaxContextChars)
		return a.noGrounding(question, run), nil
	}
	run.advance(domain.StageContextBuilt)

	// 4. GENERATE with a timeout per attempt.
	raw, err := a.generate(ctx, question, contextBlock, history)
	if err != nil {
		return nil, run.fail(domain.StageGenerated, err)
	}
	run.advance(domain.StageGenerated)

	// 5. CITE: keep tags that name real passages and map them to sources.
	text, used, dropped := resolveCitations(raw, passages)
	for _, tag := range dropped {
		logger.Warn("Dropped fabricated citation [%s]", tag)
	}
	run.advance(domain.StageCited)

	return &domain.Answer{
		Question:    question,
		Text:        text,
		Outcome:     domain.OutcomeGrounded,
		Citations:   buildCitations(passages, used),
		Passages:    passages,
		DroppedTags: dropped,
		Stages:      run.stages,
	}, nil
}

func (a *AnswerService) noGrounding(question string, run *answerRun) *domain.Answer {
	msg := a.settings.NoGroundingMessage
	if msg == "" {
		msg = domain.DefaultNoGroundingMessage
	}
	return &domain.Answer{
		Question: question,
		Text:     msg,
		Outcome:  domain.OutcomeNoGrounding,
		Stages:   run.stages,
	}
}

// fetchK is how many hits are requested before the per-source cap.
func (a *AnswerService) fetchK() int {
	k := min(a.settings.TopK*overFetchFactor, overFetchLimit)
	return max(k, a.settings.TopK)
}

// selectHits keeps at most MaxChunksPerSource hits per URL and TopK in
// total, in rank order. Hits under the relevance floor are flagged only.
func (a *AnswerService) selectHits(hits []domain.QueryHit) []domain.QueryHit {
	perSource := make(map[string]int)
	out := make([]domain.QueryHit, 0, a.settings.TopK)
	below := 0
	for _, h := range hits {
		if len(out) == a.settings.TopK {
			break
		}
		url := h.Metadata.SourceURL
		if a.settings.MaxChunksPerSource > 0 && perSource[url] >= a.settings.MaxChunksPerSource {
			logger.Debug("Skipping chunk %s: source %s already has %d chunks", h.ChunkID, url, perSource[url])
			continue
		}
		perSource[url]++
		h.BelowFloor = h.Similarity < a.settings.MinSimilarity
		if h.BelowFloor {
			below++
		}
		h.Rank = len(out) + 1
		out = append(out, h)
	}
	if below > 0 {
		logger.Debug("%d of %d retrieved chunks are below the relevance floor %.2f", below, len(out), a.settings.MinSimilarity)
	}
	return out
}

// buildContext tags hits S1..Sn and joins their blocks. When the result
// exceeds MaxContextChars, whole passages are dropped from the lowest
// similarity up until it fits.
func (a *AnswerService) buildContext(hits []domain.QueryHit) ([]domain.Passage, string) {
	budget := a.settings.MaxContextChars
	for n := len(hits); n > 0; n-- {
		passages := make([]domain.Passage, n)
		blocks := make([]string, n)
		for i := 0; i < n; i++ {
			passages[i] = domain.Passage{Tag: fmt.Sprintf("S%d", i+1), Hit: hits[i]}
			blocks[i] = passageBlock(passages[i])
		}
		contextBlock := strings.Join(blocks, "\n---\n")
		if budget <= 0 || utf8.RuneCountInString(contextBlock) <= budget {
			return passages, contextBlock
		}
		dropped := hits[n-1]
		logger.Debug("Dropping chunk %s (similarity %.3f) to fit the context budget", dropped.ChunkID, dropped.Similarity)
	}
	return nil, ""
}

func passageBlock(p domain.Passage) string {
	m := p.Hit.Metadata
	return fmt.Sprintf("[%s] %s\nURL: %s\nCategory: %s\n%s", p.Tag, m.Title, m.SourceURL, m.Category, p.Hit.Text)
}

// generate calls the model with retry. Each attempt gets its own timeout.
func (a *AnswerService) generate(
	ctx context.Context,
	question, contextBlock string,
	history []domain.ChatMessage,
) (string, error) {
	system := a.loadPrompt(driven.PromptAnswerSystem, fallbackSystemPrompt)
	user := a.loadPrompt(driven.PromptAnswerUser, fallbackUserPrompt)

	messages := []domain.ChatMessage{{Role: "system", Content: system}}
	messages = append(messages, recentHistory(history, a.settings.HistoryTurns)...)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: fmt.Sprintf(user, contextBlock, question)})

	opts := driven.ChatOptions{MaxTokens: a.maxTokens, Temperature: a.temperature}
	text, err := retry.Do(ctx, a.notifying("generation"), func(ctx context.Context) (string, error) {
		attemptCtx := ctx
		if a.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}
		text, err := a.generator.Chat(attemptCtx, messages, opts)
		if err != nil {
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return "", &domain.GenerationServiceError{
					Provider:  a.generator.ModelName(),
					Err:       fmt.Errorf("attempt timed out after %s: %w", a.timeout, err),
					Temporary: true,
				}
			}
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", &domain.GenerationServiceError{
				Provider:  a.generator.ModelName(),
				Err:       errors.New("empty response"),
				Temporary: true,
			}
		}
		return text, nil
	})
	if err != nil {
		var gen *domain.GenerationServiceError
		if !errors.As(err, &gen) {
			err = &domain.GenerationServiceError{Provider: a.generator.ModelName(), Err: err}
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (a *AnswerService) notifying(what string) retry.Policy {
	return a.policy.WithNotify(func(attempt int, err error, wait time.Duration) {
		logger.Warn("%s attempt %d failed, retrying in %s: %v", what, attempt, wait.Round(time.Millisecond), err)
	})
}

func (a *AnswerService) loadPrompt(name, fallback string) string {
	if a.prompts == nil {
		return fallback
	}
	p, err := a.prompts.Load(name)
	if err != nil || p == "" {
		logger.Debug("Using built-in prompt %s: %v", name, err)
		return fallback
	}
	return p
}

// recentHistory keeps the last n user and assistant turns.
func recentHistory(history []domain.ChatMessage, n int) []domain.ChatMessage {
	var turns []domain.ChatMessage
	for _, m := range history {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, domain.ChatMessage{Role: role, Content: m.Content})
	}
	if n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

// resolveCitations removes tags that name no passage. It returns the cleaned
// text, the set of valid tags used and the fabricated tags in first-seen order.
func resolveCitations(text string, passages []domain.Passage) (string, map[string]bool, []string) {
	known := make(map[string]bool, len(passages))
	for _, p := range passages {
		known[p.Tag] = true
	}

	used := make(map[string]bool)
	var dropped []string
	seenDropped := make(map[string]bool)

	cleaned := citationPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := citationPattern.FindStringSubmatch(match)
		lead, inner := sub[1], sub[2]

		var keep []string
		for _, part := range strings.Split(inner, ",") {
			tag := strings.TrimSpace(part)
			if known[tag] {
				used[tag] = true
				keep = append(keep, tag)
				continue
			}
			if !seenDropped[tag] {
				seenDropped[tag] = true
				dropped = append(dropped, tag)
			}
		}
		if len(keep) == 0 {
			return ""
		}
		return lead + "[" + strings.Join(keep, ", ") + "]"
	})
	return cleaned, used, dropped
}

// buildCitations groups passages by source, in rank order.
func buildCitations(passages []domain.Passage, used map[string]bool) []domain.Citation {
	var out []domain.Citation
	index := make(map[string]int)
	for _, p := range passages {
		m := p.Hit.Metadata
		i, ok := index[m.SourceURL]
		if !ok {
			i = len(out)
			index[m.SourceURL] = i
			out = append(out, domain.Citation{
				SourceURL:  m.SourceURL,
				Title:      m.Title,
				Category:   m.Category,
				Snippet:    snippet(p.Hit.Text),
				Similarity: p.Hit.Similarity,
			})
		}
		c := &out[i]
		c.Tags = append(c.Tags, p.Tag)
		c.Quotes = append(c.Quotes, strings.TrimSpace(p.Hit.Text))
		if used[p.Tag] {
			c.Referenced = true
		}
	}
	return out
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= snippetChars {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:snippetChars])) + "..."
}
