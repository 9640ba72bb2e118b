package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/internal/core"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate and import a thread file",
	Long: `Validate a thread import file and submit it to the backend.

The file must be a JSON (or .yaml/.yml) object with a "threads" array.
Nothing is sent when validation fails. Use --dry-run to validate only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}
		format := core.ImportFormatForPath(path)

		if importDryRun {
			payload, err := core.ValidateImportAs(raw, format)
			if err != nil {
				return fmt.Errorf("validating %s: %w", path, err)
			}
			fmt.Printf("%s is valid: %d threads ready to import\n", path, len(payload.Threads))
			return nil
		}

		if err := requireReview(); err != nil {
			return err
		}
		res, err := Review.ImportFile(commandContext(cmd), raw, format)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d of %d threads\n", res.Imported, res.Total)
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate the file without importing it")
	rootCmd.AddCommand(importCmd)
}
