package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// ExtractorInfo describes a registered extractor.
type ExtractorInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Optimal     string `json:"optimal"`
	Bench       bool   `json:"bench"`
}

// NewExtractorsCommand creates the extractors command.
func NewExtractorsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extractors",
		Short: "List available extractors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := buildRegistry(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "building extractors", err)
			}
			infos := make([]ExtractorInfo, 0, len(reg.Names()))
			for _, e := range reg.Entries() {
				infos = append(infos, ExtractorInfo{
					Name:        e.Name,
					Description: e.Description,
					Optimal:     string(e.Optimal),
					Bench:       e.Bench,
				})
			}
			return rootOpts.formatter(cmd).Render(infos, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tOPTIMAL\tBENCH\tDESCRIPTION")
				for _, info := range infos {
					bench := ""
					if info.Bench {
						bench = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Optimal, bench, info.Description)
				}
				return tw.Flush()
			})
		},
	}
}
