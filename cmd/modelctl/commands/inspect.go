package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/docker/model-converter/cmd/modelctl/commands/completion"
	"github.com/docker/model-converter/cmd/modelctl/commands/formatter"
	"github.com/docker/model-converter/pkg/llamacpp"
)

func newInspectCmd() *cobra.Command {
	var asJSON, all bool
	c := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Display the header of a GGUF file",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf(
					"'modelctl inspect' requires 1 argument.\n\n" +
						"Usage:  modelctl inspect FILE\n\n" +
						"See 'modelctl inspect --help' for more information",
				)
			}
			return nil
		},
		ValidArgsFunction: completion.GGUFFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := llamacpp.Inspect(args[0])
			if err != nil {
				return err
			}
			if !all {
				md.KV = nil
			}
			if asJSON {
				out, err := formatter.ToStandardJSON(md)
				if err != nil {
					return err
				}
				cmd.Print(out)
				return nil
			}
			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Architecture: %s\n", md.Architecture)
			cmd.Printf("Parameters:   %s\n", md.Parameters)
			cmd.Printf("File type:    %s\n", md.FileType)
			cmd.Printf("Size:         %s (%s on disk)\n", md.Size, units.HumanSize(float64(fi.Size())))
			keys := make([]string, 0, len(md.KV))
			for k := range md.KV {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				cmd.Printf("  %s: %s\n", k, md.KV[k])
			}
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	c.Flags().BoolVar(&all, "all", false, "Include every metadata key")
	return c
}
