package commands

import (
	"github.com/spf13/cobra"

	"github.com/docker/model-converter/cmd/modelctl/commands/completion"
	"github.com/docker/model-converter/pkg/config"
	"github.com/docker/model-converter/pkg/llamacpp"
	"github.com/docker/model-converter/pkg/model"
)

// namingFlags are shared by commands that derive destination names.
type namingFlags struct {
	namespace string
	scheme    string
}

func (f *namingFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.namespace, "namespace", "", "Destination namespace")
	c.Flags().StringVar(&f.scheme, "scheme", config.DefaultScheme, "Quantization scheme")
	_ = c.MarkFlagRequired("namespace")
	_ = c.RegisterFlagCompletionFunc("scheme", completion.Schemes)
}

func (f *namingFlags) parse(arg string) (model.ID, string, error) {
	id, err := model.Parse(arg)
	if err != nil {
		return model.ID{}, "", err
	}
	scheme, err := llamacpp.ValidateScheme(f.scheme)
	if err != nil {
		return model.ID{}, "", err
	}
	return id, scheme, nil
}

func newNameCmd() *cobra.Command {
	var flags namingFlags
	c := &cobra.Command{
		Use:               "name REPO_ID",
		Short:             "Print the destination id and artifact file name of a model",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NoComplete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, scheme, err := flags.parse(args[0])
			if err != nil {
				return err
			}
			cmd.Println(model.DestinationID(flags.namespace, id, scheme))
			cmd.Println(model.ArtifactFileName(id, scheme))
			return nil
		},
	}
	flags.register(c)
	return c
}
