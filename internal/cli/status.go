package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/rules"
	"github.com/roach88/blocksync/internal/state"
	"github.com/roach88/blocksync/internal/store"
	"github.com/spf13/cobra"
)

// StatusResult is the output of the status command.
type StatusResult struct {
	// Initialized is false if the engine has never created the
	// configuration record.
	Initialized bool `json:"initialized"`

	Mode       string   `json:"mode"`
	Categories []string `json:"categories"`
	Revision   int64    `json:"revision"`

	// IsDefault is derived from the configuration record.
	IsDefault bool `json:"is_default"`

	// MirroredIsDefault is the flag mirrored in the shared scratch space,
	// if set.
	MirroredIsDefault *bool `json:"mirrored_is_default,omitempty"`

	Trusted int `json:"trusted"`

	Artifact        string `json:"artifact"`
	ArtifactPresent bool   `json:"artifact_present"`
	ArtifactRules   int    `json:"artifact_rules"`
}

// RenderText implements the [TextRenderer] interface for StatusResult.
func (r StatusResult) RenderText(w io.Writer) {
	if !r.Initialized {
		fmt.Fprintln(w, "Configuration: not initialized (engine has not run)")
	}

	fmt.Fprintf(w, "Mode:        %s (revision %d)\n", r.Mode, r.Revision)
	fmt.Fprintf(w, "Categories:  %s\n", strings.Join(r.Categories, ", "))
	fmt.Fprintf(w, "Default:     %t\n", r.IsDefault)
	if r.MirroredIsDefault != nil && *r.MirroredIsDefault != r.IsDefault {
		fmt.Fprintf(w, "Mirror:      %t (stale)\n", *r.MirroredIsDefault)
	}
	fmt.Fprintf(w, "Trusted:     %d domain(s)\n", r.Trusted)

	if r.ArtifactPresent {
		fmt.Fprintf(w, "Artifact:    %s (%d rules)\n", r.Artifact, r.ArtifactRules)
	} else {
		fmt.Fprintf(w, "Artifact:    %s (absent)\n", r.Artifact)
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted configuration and the artifact",
		Long: `Show the persisted filtering configuration, the trusted domain count and the
materialized artifact.

The categories shown are the ones the persisted mode selects; pause and trust
overlays live in the running engine only.

Examples:
  blocksync status
  blocksync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	defaults, err := conf.DefaultCategoryIDs()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid default categories", err)
	}

	res, err := collectStatus(ctx, st, defaults, conf.Artifact.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}

	return opts.formatter(cmd).Success(res)
}

// collectStatus gathers the status from st and the artifact at path.
func collectStatus(
	ctx context.Context,
	st *store.Store,
	defaults []category.ID,
	artifact string,
) (res StatusResult, err error) {
	res.Artifact = artifact
	res.Initialized = true

	c, err := st.CurrentConfig(ctx)
	if errors.Is(err, store.ErrNoConfiguration) {
		res.Initialized = false
		c = state.DefaultConfiguration()
	} else if err != nil {
		return res, err
	}

	res.Mode = string(c.Mode)
	res.Revision = c.Revision
	res.IsDefault = notify.IsDefaultConfigEnabled(ctx, st)

	res.Categories = category.Strings(c.BlockedCategories(defaults))

	mirrored, ok, err := notify.MirroredIsDefault(ctx, st)
	if err != nil {
		return res, err
	} else if ok {
		res.MirroredIsDefault = &mirrored
	}

	trusted, err := st.TrustedDomains(ctx)
	if err != nil {
		return res, err
	}
	res.Trusted = len(trusted)

	rs, err := rules.ReadArtifact(artifact)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Not materialized yet.
	case err != nil:
		return res, err
	default:
		res.ArtifactPresent = true
		res.ArtifactRules = len(rs)
	}

	return res, nil
}
