package commands

import (
	"github.com/spf13/cobra"

	"github.com/docker/model-converter/cmd/modelctl/commands/completion"
)

var Version = "dev"

func newVersionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "version",
		Short: "Show the model converter version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Model converter version %s\n", Version)
		},
		ValidArgsFunction: completion.NoComplete,
	}
	return c
}
