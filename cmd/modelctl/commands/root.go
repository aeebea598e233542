package commands

import "github.com/spf13/cobra"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "modelctl",
		Short:         "Operate the GGUF model converter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newVersionCmd(),
		newSkipListCmd(),
		newNameCmd(),
		newCardCmd(),
		newInspectCmd(),
	)
	return rootCmd
}
