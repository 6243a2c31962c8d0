package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change settings",
	Long: `Settings resolve from QUIRE_* environment variables first, then the config
file, then built-in defaults. "config set" writes to the config file.`,
	Annotations: map[string]string{skipSettings: "true"},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every setting and where its value comes from",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Write a setting to the config file",
	Long: `Write a setting to the config file. Keys use dotted names such as
chunk.size or llm.model. Lists are comma separated and durations accept
Go syntax (30s, 5m) or plain seconds.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	st := newStyles(cmd.OutOrStdout())
	for _, key := range settingsService.Keys() {
		value, source, err := settingsService.Lookup(key)
		if err != nil {
			return err
		}
		if value == "" {
			value = "(not set)"
		}
		cmd.Printf("%-26s %s %s\n", key, value, st.Muted("["+source+"]"))
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Println()
		cmd.Println(st.Warning("Warning: " + err.Error()))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return err
	}
	cmd.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}
