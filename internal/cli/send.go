package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/roach88/blocksync/internal/config"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/spf13/cobra"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions

	// Poster allows injecting the notification poster (for testing).  If
	// nil, the configured transport is used.
	Poster notify.Poster
}

// SendResult is the output of the send command.
type SendResult struct {
	Event string   `json:"event"`
	Args  []string `json:"args,omitempty"`
	Peer  string   `json:"peer"`
}

// RenderText implements the [TextRenderer] interface for SendResult.
func (r SendResult) RenderText(w io.Writer) {
	if len(r.Args) == 0 {
		fmt.Fprintf(w, "sent %s\n", r.Event)
		return
	}
	fmt.Fprintf(w, "sent %s %s\n", r.Event, strings.Join(r.Args, " "))
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	names := make([]string, 0, len(notify.Names()))
	for _, n := range notify.Names() {
		names = append(names, string(n))
	}

	cmd := &cobra.Command{
		Use:   "send <event> [domain | categories...]",
		Short: "Post a notification as the host application",
		Long: `Post a notification to a running engine, the way the host application does.

The payload is written to the shared database first, then the payload-less
notification is posted on the configured transport.

Events: ` + strings.Join(names, ", ") + `

Exit codes:
  0 - Notification posted
  1 - Posting failed
  2 - Command error (bad arguments, database not found, etc.)

Examples:
  blocksync send pause
  blocksync send trustDomain news.example
  blocksync send activeDomainChanged https://shop.example/cart
  blocksync send setCategories advertising social`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		ValidArgs:     names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runSend(opts *SendOptions, event string, args []string, cmd *cobra.Command) (err error) {
	name, err := notify.ParseName(event)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}

	st, err := openExistingStore(conf.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	poster := opts.Poster
	if poster == nil {
		if conf.Notify.Transport == config.TransportMemory {
			return NewExitError(ExitCommandError, "the memory transport cannot reach another process")
		}

		logger := opts.newLogger(cmd.ErrOrStderr())
		bus, berr := newBus(logger, conf)
		if berr != nil {
			return WrapExitError(ExitCommandError, "failed to create notification bus", berr)
		}
		defer func() {
			if closeErr := bus.Close(); closeErr != nil && !errors.Is(closeErr, notify.ErrClosed) {
				logger.Warn("closing notification bus", slogutil.KeyError, closeErr)
			}
		}()
		poster = bus
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sender := notify.NewSender(poster, st, conf.Notify.PeerID)
	if err = sender.Send(ctx, name, args...); err != nil {
		return WrapExitError(ExitFailure, "failed to send notification", err)
	}

	return opts.formatter(cmd).Success(SendResult{
		Event: string(name),
		Args:  args,
		Peer:  conf.Notify.PeerID,
	})
}
