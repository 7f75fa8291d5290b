package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Session string // "" means every session
	Limit   int
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded requests and how they were reconciled",
		Long: `Show the requests recorded in the journal database, in issue order,
with their outcome and the scopes that discarded them as stale.

Examples:
  cartctl journal
  cartctl journal --session 0190b0c4-... --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "only show this session")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most the most recent N entries")

	return cmd
}

func runJournal(cmd *cobra.Command, opts *JournalOptions) error {
	ctx := cmd.Context()

	s, err := OpenSession(ctx, opts.RootOptions, mutation.CartSnapshot{})
	if err != nil {
		return err
	}
	defer s.Close()

	if s.Store() == nil {
		return NewExitError(ExitCommandError, "journal needs a database: set database in the config")
	}

	entries, err := s.Store().Journal(ctx, opts.Session, opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	return opts.printer(cmd, opts.Session).Emit(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "Journal is empty.")
			return
		}
		for _, e := range entries {
			fmt.Fprintln(w, formatEntry(e))
		}
	})
}

func formatEntry(e store.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d %-12s", e.IssuedAt, e.Kind)
	if e.TargetID != "" {
		fmt.Fprintf(&b, " target=%s", e.TargetID)
	}
	b.WriteString(" " + e.Result)
	if e.Status != 0 {
		b.WriteString(" " + strconv.Itoa(e.Status))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if len(e.Stale) > 0 {
		fmt.Fprintf(&b, " stale=%s", strings.Join(e.Stale, ","))
	}
	return b.String()
}

// NewDarkModeCommand creates the darkmode command.
func NewDarkModeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "darkmode [on|off]",
		Short: "Show or set the stored theme preference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := OpenSession(ctx, opts, mutation.CartSnapshot{})
			if err != nil {
				return err
			}
			defer s.Close()

			if s.Prefs() == nil {
				return NewExitError(ExitCommandError, "darkmode needs a database: set database in the config")
			}

			if len(args) == 1 {
				var on bool
				switch args[0] {
				case "on":
					on = true
				case "off":
				default:
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid argument %q: must be on or off", args[0]))
				}
				if err := s.Bindings.SetDarkMode(ctx, on, s.Prefs()); err != nil {
					return err
				}
			}

			st, err := s.Bindings.State(ctx)
			if err != nil {
				return err
			}
			return opts.printer(cmd, "").Emit(map[string]bool{"darkMode": st.Page.DarkMode}, func(w io.Writer) {
				state := "off"
				if st.Page.DarkMode {
					state = "on"
				}
				fmt.Fprintf(w, "Dark mode: %s\n", state)
			})
		},
	}
	return cmd
}
