package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// TrustedResult is the output of the trusted command.
type TrustedResult struct {
	Domains []string `json:"domains"`
}

// RenderText implements the [TextRenderer] interface for TrustedResult.
func (r TrustedResult) RenderText(w io.Writer) {
	if len(r.Domains) == 0 {
		fmt.Fprintln(w, "No trusted domains.")
		return
	}
	for _, d := range r.Domains {
		fmt.Fprintln(w, d)
	}
}

// NewTrustedCommand creates the trusted command.
func NewTrustedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trusted",
		Short: "List trusted domains",
		Long: `List the trusted domains in byte order.

Use "blocksync send trustDomain <domain>" to change the set through the engine.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrusted(rootOpts, cmd)
		},
	}

	return cmd
}

func runTrusted(opts *RootOptions, cmd *cobra.Command) error {
	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}

	st, err := openExistingStore(conf.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	domains, err := st.TrustedDomains(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list trusted domains", err)
	}

	return opts.formatter(cmd).Success(TrustedResult{Domains: domains})
}
