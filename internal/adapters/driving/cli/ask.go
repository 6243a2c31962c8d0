package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quire/internal/core/domain"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed pages",
	Long: `Retrieves the passages most similar to the question, asks the language
model to answer from them and lists the pages it drew on. Citation tags in
the answer ([S1], [S2], ...) refer to the listed sources.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

// answerView is the JSON shape of an answer, matching POST /api/chat.
type answerView struct {
	Answer      string         `json:"answer"`
	Outcome     domain.Outcome `json:"outcome"`
	Sources     []sourceView   `json:"sources"`
	DroppedTags []string       `json:"dropped_tags"`
	Stages      []domain.Stage `json:"stages"`
}

type sourceView struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Snippet    string   `json:"snippet"`
	Tags       []string `json:"tags"`
	Quotes     []string `json:"quotes"`
	Referenced bool     `json:"referenced"`
}

type failureView struct {
	Error string       `json:"error"`
	Stage domain.Stage `json:"stage"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	answers, err := c.Answer(cmd.Context())
	if err != nil {
		return err
	}

	answer, err := answers.Answer(cmd.Context(), question)
	if err != nil {
		var failure *domain.OrchestratorFailure
		if askJSON && errors.As(err, &failure) {
			if jerr := writeJSON(cmd, failureView{Error: failure.Error(), Stage: failure.Stage}); jerr != nil {
				return jerr
			}
		}
		return err
	}

	if askJSON {
		return writeJSON(cmd, toAnswerView(answer))
	}
	printAnswer(cmd, answer)
	return nil
}

func toAnswerView(a *domain.Answer) answerView {
	view := answerView{
		Answer:      a.Text,
		Outcome:     a.Outcome,
		Sources:     make([]sourceView, 0, len(a.Citations)),
		DroppedTags: a.DroppedTags,
		Stages:      a.Stages,
	}
	if view.DroppedTags == nil {
		view.DroppedTags = []string{}
	}
	for i := range a.Citations {
		c := &a.Citations[i]
		view.Sources = append(view.Sources, sourceView{
			URL:        c.SourceURL,
			Title:      c.Title,
			Category:   c.Category,
			Snippet:    c.Snippet,
			Tags:       c.Tags,
			Quotes:     c.Quotes,
			Referenced: c.Referenced,
		})
	}
	return view
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printAnswer(cmd *cobra.Command, a *domain.Answer) {
	st := newStyles(cmd.OutOrStdout())

	cmd.Println(a.Text)
	if !a.Grounded() {
		cmd.Println()
		cmd.Println(st.Muted("No indexed page matched the question."))
		return
	}

	if len(a.DroppedTags) > 0 {
		cmd.Println()
		cmd.Println(st.Warning(fmt.Sprintf("Removed %d unsupported citation(s): %s",
			len(a.DroppedTags), strings.Join(a.DroppedTags, ", "))))
	}

	cmd.Println()
	cmd.Println(st.Title("Sources"))
	for i := range a.Citations {
		c := &a.Citations[i]
		title := c.Title
		if title == "" {
			title = c.SourceURL
		}
		marker := " "
		if c.Referenced {
			marker = st.Success("*")
		}
		cmd.Printf(" %s [%s] %s\n", marker, strings.Join(c.Tags, ", "), title)
		cmd.Printf("     %s\n", st.Muted(c.SourceURL))
	}
}
