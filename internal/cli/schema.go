package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/thread-review/pkg/models"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the import file",
	Long: `Print the JSON Schema describing the thread import file accepted by
'trv import'. YAML import files follow the same layout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := importSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func importSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(&models.ImportFile{})
	schema.Title = "Thread import file"
	schema.Description = "Customer-service email threads submitted to the summarization backend"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling import schema: %w", err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
