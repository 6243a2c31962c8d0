package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errUnreachable makes status exit non-zero when the store cannot be queried.
var errUnreachable = errors.New("store unreachable")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the store is reachable and what it holds",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	st := newStyles(cmd.OutOrStdout())
	h := c.Health().Health(cmd.Context())

	cmd.Println(st.Title("Quire status"))
	cmd.Printf("  %-12s %s\n", "Data dir:", settings.DataDir)
	if !h.Reachable {
		cmd.Printf("  %-12s %s\n", "Store:", st.Failure("unreachable: "+h.Err))
		return errUnreachable
	}
	cmd.Printf("  %-12s %s\n", "Store:", st.Success("healthy"))
	cmd.Printf("  %-12s %d\n", "Chunks:", h.Chunks)
	if h.Model != "" {
		cmd.Printf("  %-12s %s\n", "Embedding:", fmt.Sprintf("%s (%d dimensions)", h.Model, h.Dimensions))
	} else {
		cmd.Printf("  %-12s %s\n", "Embedding:", st.Muted("not bound, run quire index"))
	}
	cmd.Printf("  %-12s %s/%s\n", "LLM:", settings.LLM.Provider, settings.LLM.Model)
	return nil
}
