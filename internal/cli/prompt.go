package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"ragqa/internal/adapter/prompt"
)

var (
	promptVars     map[string]string
	promptFromFile string
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage answer prompt templates",
	Long: `Templates are Go text/template strings stored as JSON files in the prompt
directory (.ragqa/prompts by default). Answer templates receive {{.context}},
{{.question}} and {{.sentinel}}; set prompt.template to use one.

Examples:
  ragqa prompt list
  ragqa prompt show answer
  ragqa prompt add short --text "{{.context}}\n\nSoru: {{.question}}"
  ragqa prompt render answer --var question="Who?" --var context="..."`,
}

var promptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := promptManager()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (built-in)\n", prompt.DefaultAnswerName)
		for _, name := range m.Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

var promptShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := lookupTemplate(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Text)
		return nil
	},
}

var promptAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create or replace a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		if promptFromFile != "" {
			data, err := os.ReadFile(promptFromFile)
			if err != nil {
				return fmt.Errorf("failed to read template file: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("template text is required (--text or --file)")
		}

		m, err := promptManager()
		if err != nil {
			return err
		}
		if _, err := m.Add(args[0], text, promptVars); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved template %q\n", args[0])
		return nil
	},
}

var promptRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := promptManager()
		if err != nil {
			return err
		}
		return m.Remove(args[0])
	},
}

var promptRenderCmd = &cobra.Command{
	Use:   "render <name>",
	Short: "Render a template with --var values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := lookupTemplate(args[0])
		if err != nil {
			return err
		}
		values := map[string]string{prompt.KeySentinel: GetConfig().Prompt.Sentinel}
		for k, v := range promptVars {
			values[k] = v
		}
		rendered, err := t.Render(values)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.AddCommand(promptListCmd, promptShowCmd, promptAddCmd, promptRemoveCmd, promptRenderCmd)

	promptAddCmd.Flags().String("text", "", "template text")
	promptAddCmd.Flags().StringVarP(&promptFromFile, "file", "f", "", "read the template text from a file")
	promptAddCmd.Flags().StringToStringVar(&promptVars, "var", nil, "default variable as key=value (repeatable)")
	promptRenderCmd.Flags().StringToStringVar(&promptVars, "var", nil, "variable as key=value (repeatable)")
}

func promptManager() (*prompt.Manager, error) {
	m, err := prompt.NewManager(GetConfig().PromptDir(GetRootDir()))
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	return m, nil
}

// lookupTemplate resolves a stored template, falling back to the built-in
// answer template by name.
func lookupTemplate(name string) (*prompt.Template, error) {
	m, err := promptManager()
	if err != nil {
		return nil, err
	}
	if t, ok := m.Get(name); ok {
		return t, nil
	}
	if name == prompt.DefaultAnswerName {
		return prompt.DefaultAnswer(), nil
	}
	return nil, fmt.Errorf("template %q not found", name)
}
