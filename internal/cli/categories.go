package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/roach88/blocksync/internal/category"
	"github.com/spf13/cobra"
)

// CategoryInfo describes one category.
type CategoryInfo struct {
	Name    string `json:"name"`
	File    string `json:"file"`
	Default bool   `json:"default"`
	Present bool   `json:"present"`
}

// CategoriesResult is the output of the categories command.
type CategoriesResult struct {
	Categories []CategoryInfo `json:"categories"`
}

// RenderText implements the [TextRenderer] interface for CategoriesResult.
func (r CategoriesResult) RenderText(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDEFAULT\tASSET\tFILE")
	for _, c := range r.Categories {
		asset := "present"
		if !c.Present {
			asset = "missing"
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", c.Name, c.Default, asset, c.File)
	}
	_ = tw.Flush()
}

// NewCategoriesCommand creates the categories command.
func NewCategoriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List tracker categories and their rule files",
		Long: `List every tracker category, whether it belongs to the default set, and
whether its rule file is present under the configured asset root.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategories(rootOpts, cmd)
		},
	}

	return cmd
}

func runCategories(opts *RootOptions, cmd *cobra.Command) error {
	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}

	defaults, err := conf.DefaultCategoryIDs()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid default categories", err)
	}

	layout := conf.Layout()
	res := CategoriesResult{Categories: make([]CategoryInfo, 0, len(category.All()))}
	for _, id := range category.All() {
		p := layout.FilePath(layout.CategoryFolder(), category.FileName(id))
		_, statErr := os.Stat(p)
		res.Categories = append(res.Categories, CategoryInfo{
			Name:    id.String(),
			File:    p,
			Default: slices.Contains(defaults, id),
			Present: statErr == nil,
		})
	}

	return opts.formatter(cmd).Success(res)
}
