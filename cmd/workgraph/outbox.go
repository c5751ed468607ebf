package main

import (
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List queued notifications",
	Long: `Outbox lists the notifications queued by issue changes that have not
been delivered. With --flush they are marked sent after being listed, so a
delivery script can pipe "workgraph outbox --json --flush" to its mailer.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		pending, err := a.store.PendingNotifications(ctx)
		if err != nil {
			return cmdErr(fmt.Errorf("reading outbox: %w", err), output.ErrGeneral)
		}
		if pending == nil {
			pending = []db.QueuedNotification{}
		}

		var message string
		if !w.JSONMode {
			if len(pending) == 0 {
				message = render.EmptyState("Outbox is empty.", "", w.QuietMode)
			} else {
				var b strings.Builder
				for i, n := range pending {
					if i > 0 {
						b.WriteByte('\n')
					}
					fmt.Fprintf(&b, "%4d  %-16s %-8s %s", n.ID, n.Event, model.FormatID(n.IssueID), humanize.Time(n.CreatedAt))
				}
				message = b.String()
			}
		}
		w.Success(pending, message)

		if flush, _ := cmd.Flags().GetBool("flush"); flush && len(pending) > 0 {
			ids := make([]int, len(pending))
			for i, n := range pending {
				ids[i] = n.ID
			}
			if err := a.store.MarkSent(ctx, ids...); err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
			w.Info("Marked %d notification(s) sent", len(ids))
		}
		return nil
	},
}

func init() {
	outboxCmd.Flags().Bool("flush", false, "Mark the listed notifications as sent")
	rootCmd.AddCommand(outboxCmd)
}
