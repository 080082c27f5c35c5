package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dalemusser/collabhub/internal/app/client"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/spf13/cobra"
)

var transitionKinds = map[string]string{
	"project":     client.Projects,
	"event":       client.Events,
	"completion":  client.Completions,
	"application": client.Applications,
}

var deleteRoots = map[string]cascade.Root{
	"project": cascade.RootProject,
	"event":   cascade.RootEvent,
	"group":   cascade.RootGroup,
	"company": cascade.RootCompany,
	"post":    cascade.RootPost,
}

func transitionKind(arg string) (string, error) {
	k, ok := transitionKinds[arg]
	if !ok {
		return "", fmt.Errorf("unknown kind %q (want project, event, completion, or application)", arg)
	}
	return k, nil
}

func newApproveCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <project|event|completion|application> <id>",
		Short: "Approve a pending submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := transitionKind(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			out, err := c.Approve(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newRejectCommand(newClient clientFactory) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <project|event|completion|application> <id>",
		Short: "Reject a pending submission with a reason",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := transitionKind(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			out, err := c.Reject(cmd.Context(), kind, args[1], reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the submitter (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newDeleteCommand(newClient clientFactory) *cobra.Command {
	var phrase string
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <project|event|group|company|post> <id>",
		Short: "Delete an entity and everything that depends on it",
		Long: "Delete an entity and everything that depends on it.\n\n" +
			"The server requires a confirmation phrase, for example \"DELETE GROUP\".\n" +
			"Pass it with --phrase, or use --yes to send the expected phrase.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, ok := deleteRoots[args[0]]
			if !ok {
				return fmt.Errorf("unknown kind %q (want project, event, group, company, or post)", args[0])
			}
			if yes {
				phrase = cascade.Phrase(root)
			}
			if phrase == "" {
				return fmt.Errorf("confirmation required: pass --phrase %q or --yes", cascade.Phrase(root))
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			rec, err := c.Delete(cmd.Context(), root, args[1], phrase)
			var partial *client.PartialError
			if errors.As(err, &partial) {
				_ = printJSON(cmd.OutOrStdout(), rec)
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&phrase, "phrase", "", "confirmation phrase")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm without typing the phrase")
	return cmd
}

func newEndCompanyCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "end-company <id>",
		Short: "End an active company and notify its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			out, err := c.EndCompany(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newReconcileCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recount denormalized counters and repair drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			rep, err := c.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func newStreamCommand(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Print lifecycle events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			return c.Stream(ctx, func(m broker.Message) {
				fmt.Fprintf(w, "%s  %-20s %s", m.At.Format("15:04:05"), m.Kind, m.EntityID)
				if m.ActorID != "" {
					fmt.Fprintf(w, "  by %s", m.ActorID)
				}
				fmt.Fprintln(w)
			})
		},
	}
}

func newAuditCommand(newClient clientFactory) *cobra.Command {
	var q client.AuditQuery
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit events, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			page, err := c.Audit(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Category, "category", "", "admin or system")
	f.StringVar(&q.EventType, "event-type", "", "event type, e.g. cascade_deleted")
	f.StringVar(&q.ActorID, "actor", "", "actor user id")
	f.StringVar(&q.TargetID, "target", "", "target entity id")
	f.StringVar(&q.StartDate, "since", "", "first day (YYYY-MM-DD)")
	f.StringVar(&q.EndDate, "until", "", "last day (YYYY-MM-DD)")
	f.IntVar(&q.Start, "start", 1, "1-based index of the first event")
	return cmd
}
