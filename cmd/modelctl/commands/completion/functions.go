package completion

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/docker/model-converter/pkg/llamacpp"
)

func NoComplete(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// Schemes offers completion for the quantization schemes llama-quantize
// understands.
func Schemes(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, s := range llamacpp.QuantizationTypes() {
		if strings.HasPrefix(s, strings.ToUpper(toComplete)) {
			out = append(out, s)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// GGUFFiles restricts file completion to .gguf files.
func GGUFFiles(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{"gguf"}, cobra.ShellCompDirectiveFilterFileExt
}
