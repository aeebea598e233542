package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docker/model-converter/cmd/modelctl/commands/completion"
	"github.com/docker/model-converter/pkg/config"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/skiplist"
)

func defaultSkipListPath() string {
	if p := os.Getenv("SKIPLIST_PATH"); p != "" {
		return p
	}
	return config.DefaultSkipListPath
}

func newSkipListCmd() *cobra.Command {
	var path string
	c := &cobra.Command{
		Use:   "skiplist",
		Short: "Inspect and edit the list of models known not to convert",
	}
	c.PersistentFlags().StringVar(&path, "file", defaultSkipListPath(), "Skip-list file")
	c.AddCommand(
		newSkipListListCmd(&path),
		newSkipListAddCmd(&path),
		newSkipListCheckCmd(&path),
	)
	return c
}

func newSkipListListCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:               "list",
		Short:             "List skipped models",
		Args:              cobra.NoArgs,
		ValidArgsFunction: completion.NoComplete,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := skiplist.Open(*path).List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				cmd.Println(e)
			}
			return nil
		},
	}
}

func newSkipListAddCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add REPO_ID [REPO_ID...]",
		Short: "Add models to the skip-list",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf(
					"'modelctl skiplist add' requires at least 1 argument.\n\n" +
						"Usage:  modelctl skiplist add REPO_ID [REPO_ID...]\n\n" +
						"See 'modelctl skiplist add --help' for more information",
				)
			}
			return nil
		},
		ValidArgsFunction: completion.NoComplete,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := skiplist.Open(*path)
			for _, arg := range args {
				id, err := model.Parse(arg)
				if err != nil {
					return err
				}
				if err := store.Record(id.String()); err != nil {
					return fmt.Errorf("failed to add %s: %w", id, err)
				}
				cmd.Printf("Added %s to %s\n", id, store.Path())
			}
			return nil
		},
	}
}

func newSkipListCheckCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:               "check REPO_ID",
		Short:             "Report whether a model is on the skip-list",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NoComplete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.Parse(args[0])
			if err != nil {
				return err
			}
			listed, err := skiplist.Open(*path).Contains(id.String())
			if err != nil {
				return err
			}
			if listed {
				cmd.Printf("%s is on the skip-list\n", id)
			} else {
				cmd.Printf("%s is not on the skip-list\n", id)
			}
			return nil
		},
	}
}
