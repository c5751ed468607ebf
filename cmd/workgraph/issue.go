package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

// mutationResult is the JSON shape of every command that runs a lifecycle
// operation.
type mutationResult struct {
	Issue       *model.Issue    `json:"issue"`
	Relation    *model.Relation `json:"relation,omitempty"`
	Rescheduled []*model.Issue  `json:"rescheduled"`
	Cascaded    []*model.Issue  `json:"cascaded"`
	Recipients  []string        `json:"recipients"`
	Watchers    []string        `json:"watchers"`
}

func newMutationResult(res *lifecycle.Result) mutationResult {
	r := mutationResult{
		Issue:       res.Issue,
		Relation:    res.Relation,
		Rescheduled: res.Rescheduled,
		Cascaded:    res.Cascaded,
		Recipients:  res.Recipients,
		Watchers:    res.Watchers,
	}
	if r.Rescheduled == nil {
		r.Rescheduled = []*model.Issue{}
	}
	if r.Cascaded == nil {
		r.Cascaded = []*model.Issue{}
	}
	if r.Recipients == nil {
		r.Recipients = []string{}
	}
	if r.Watchers == nil {
		r.Watchers = []string{}
	}
	return r
}

// reportMutation writes the result of a lifecycle operation, then lists the
// issues the operation changed besides the one it was run on.
func reportMutation(w *output.Writer, res *lifecycle.Result, message string) {
	w.Success(newMutationResult(res), message)
	for _, issue := range res.Rescheduled {
		w.Info("Rescheduled %s: %s", model.FormatID(issue.ID), dateRange(issue))
	}
	for _, issue := range res.Cascaded {
		w.Info("Closed duplicate %s: %s", model.FormatID(issue.ID), issue.Subject)
	}
	if len(res.Recipients)+len(res.Watchers) > 0 {
		w.Info("Notified %s", strings.Join(append(append([]string{}, res.Recipients...), res.Watchers...), ", "))
	}
}

func dateRange(issue *model.Issue) string {
	start, due := "?", "?"
	if issue.StartDate != nil {
		start = model.FormatDate(*issue.StartDate)
	}
	if issue.DueDate != nil {
		due = model.FormatDate(*issue.DueDate)
	}
	return start + " .. " + due
}

// loadIssue parses an issue ID argument and loads the issue.
func loadIssue(cmd *cobra.Command, a *app, arg string) (*model.Issue, error) {
	id, err := model.ParseID(arg)
	if err != nil {
		return nil, cmdErr(fmt.Errorf("invalid issue ID: %w", err), output.ErrValidation)
	}
	issue, err := a.store.LoadIssue(cmd.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, cmdErr(fmt.Errorf("issue %s not found", model.FormatID(id)), output.ErrNotFound)
	}
	if err != nil {
		return nil, cmdErr(fmt.Errorf("fetching issue: %w", err), output.ErrGeneral)
	}
	return issue, nil
}
