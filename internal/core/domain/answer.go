package domain

// Stage is a step of the per-question state machine.
type Stage string

// Question lifecycle, in order. StageFailed is terminal.
const (
	StageReceived     Stage = "RECEIVED"
	StageEmbedded     Stage = "EMBEDDED"
	StageRetrieved    Stage = "RETRIEVED"
	StageContextBuilt Stage = "CONTEXT_BUILT"
	StageGenerated    Stage = "GENERATED"
	StageCited        Stage = "CITED"
	StageFailed       Stage = "FAILED"
)

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

// Outcome distinguishes a grounded answer from an explicit no-grounding reply.
// Failures are not an Outcome: they are returned as *OrchestratorFailure.
type Outcome string

const (
	// OutcomeGrounded means the answer was generated from retrieved context.
	OutcomeGrounded Outcome = "grounded"

	// OutcomeNoGrounding means retrieval produced nothing usable and the
	// generation model was not called.
	OutcomeNoGrounding Outcome = "no_grounding"
)

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Passage is a retrieved chunk placed in the generation context under a tag.
type Passage struct {
	// Tag is the label shown to the model, e.g. "S1".
	Tag string

	// Hit is the retrieval match the passage came from.
	Hit QueryHit
}

// Citation is a distinct source whose passages were in the generation context.
type Citation struct {
	// SourceURL identifies the document.
	SourceURL string

	// Title is the document title.
	Title string

	// Category is the document category.
	Category string

	// Tags lists the passage tags drawn from this source.
	Tags []string

	// Snippet is a short excerpt of the best-ranked passage.
	Snippet string

	// Quotes holds the full text of each passage from this source.
	Quotes []string

	// Similarity is the best similarity among the source's passages.
	Similarity float64

	// Referenced is true when the answer text cites one of Tags.
	Referenced bool
}

// Answer is the result of a question that did not fail.
type Answer struct {
	// Question is the question as received.
	Question string

	// Text is the answer text with fabricated tags removed.
	Text string

	// Outcome says whether the answer is grounded.
	Outcome Outcome

	// Citations lists sources in rank order.
	Citations []Citation

	// Passages are the tagged passages sent to the model.
	Passages []Passage

	// DroppedTags are citation tags the model produced that matched no passage.
	DroppedTags []string

	// Stages records each state the question passed through.
	Stages []Stage
}

// Grounded reports whether the answer was generated from retrieved context.
func (a *Answer) Grounded() bool {
	return a != nil && a.Outcome == OutcomeGrounded
}
