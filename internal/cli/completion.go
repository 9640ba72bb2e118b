package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for trv",
	Long: `Set up shell tab-completions for trv commands, flags, and arguments,
including live thread and summary ids from the backend.

Supported shells: bash, zsh, fish, powershell

Quick install (adds completions to your shell profile):

  trv completion bash --install
  trv completion zsh --install
  trv completion fish --install

Or print the completion script to stdout (for manual setup):

  trv completion bash
  trv completion zsh
  trv completion fish
  trv completion powershell`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

// shellCompletion describes how one shell's completion script is produced
// and where --install puts it.
type shellCompletion struct {
	generate func(io.Writer) error
	// target returns the install path under home; nil means no automatic install.
	target    func(home string) string
	loadHint  string
	afterHint []string
}

func shellCompletions() map[string]shellCompletion {
	return map[string]shellCompletion{
		"bash": {
			generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
			target:   bashCompletionTarget,
			loadHint: `eval "$(trv completion bash)"`,
			afterHint: []string{
				"Restart your shell or run: source {target}",
			},
		},
		"zsh": {
			generate: rootCmd.GenZshCompletion,
			target: func(home string) string {
				return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_trv")
			},
			loadHint: `eval "$(trv completion zsh)"`,
			afterHint: []string{
				"Ensure {dir} is in your fpath. Add to ~/.zshrc if needed:",
				"  fpath=({dir} $fpath)",
				"  autoload -Uz compinit && compinit",
			},
		},
		"fish": {
			generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
			target: func(home string) string {
				return filepath.Join(home, ".config", "fish", "completions", "trv.fish")
			},
			loadHint: "trv completion fish | source",
			afterHint: []string{
				"Completions will be available in new fish sessions automatically.",
			},
		},
		"powershell": {
			generate: rootCmd.GenPowerShellCompletionWithDesc,
			loadHint: "trv completion powershell | Out-String | Invoke-Expression",
		},
	}
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your shell profile")

	// Remove Cobra's default completion command and add ours.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell := args[0]
	sc, ok := shellCompletions()[shell]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", shell)
	}

	if completionInstall {
		return installCompletion(shell, sc)
	}

	// Hints go to stderr so that eval "$(trv completion bash)" keeps working.
	hints := []string{
		"# To load completions in your current session:",
		"#   " + sc.loadHint,
		"#",
	}
	if sc.target != nil {
		hints = append(hints, "# To install permanently:", "#   trv completion "+shell+" --install", "#")
	} else {
		hints = append(hints, "# Add the above command to your "+shell+" profile to make it permanent.", "#")
	}
	printHints(cmd, hints...)
	return sc.generate(cmd.OutOrStdout())
}

// printHints writes usage hints to stderr so they don't interfere with
// piping the completion script from stdout.
func printHints(cmd *cobra.Command, lines ...string) {
	w := cmd.ErrOrStderr()
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
}

func installCompletion(shell string, sc shellCompletion) error {
	if sc.target == nil {
		return fmt.Errorf("automatic install is not supported for %s; run 'trv completion %s' and add the output to your profile", shell, shell)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}

	target := sc.target(home)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	if err := writeCompletionFile(target, sc.generate); err != nil {
		return err
	}

	fmt.Printf("%s completions installed to %s\n", shell, target)
	r := strings.NewReplacer("{target}", target, "{dir}", dir)
	for _, hint := range sc.afterHint {
		fmt.Println(r.Replace(hint))
	}
	return nil
}

// writeCompletionFile creates target and writes the completion script into
// it, propagating close errors.
func writeCompletionFile(target string, generate func(io.Writer) error) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}

	writeErr := generate(f)
	closeErr := f.Close()

	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}

func bashCompletionTarget(home string) string {
	// User-local path; works with bash-completion >= 2.0 without root.
	return filepath.Join(home, ".local", "share", "bash-completion", "completions", "trv")
}
