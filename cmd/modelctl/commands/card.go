package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docker/model-converter/cmd/modelctl/commands/completion"
	"github.com/docker/model-converter/pkg/modelcard"
)

func newCardCmd() *cobra.Command {
	var flags namingFlags
	var upstream string
	c := &cobra.Command{
		Use:   "card REPO_ID",
		Short: "Preview the model card published with a conversion",
		Long: "Preview the model card published with a conversion. The metadata block is taken\n" +
			"from the README given with --upstream; without it the placeholder block is used.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NoComplete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, scheme, err := flags.parse(args[0])
			if err != nil {
				return err
			}
			block := modelcard.Placeholder
			if upstream != "" {
				data, err := os.ReadFile(upstream)
				if err != nil {
					return fmt.Errorf("failed to read upstream README: %w", err)
				}
				block = modelcard.MetadataOrPlaceholder(string(data))
			}
			b := &modelcard.Builder{Scheme: scheme, Namespace: flags.namespace}
			cmd.Print(b.Build(id, block).String())
			return nil
		},
	}
	flags.register(c)
	c.Flags().StringVar(&upstream, "upstream", "", "Upstream README.md to take the metadata block from")
	return c
}
