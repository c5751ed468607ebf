package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

// createFlags maps create's flags to attribute keys, in the order they are
// applied.
var createFlags = []struct{ flag, key string }{
	{"project", "project"},
	{"type", "type"},
	{"subject", "subject"},
	{"description", "description"},
	{"status", "status"},
	{"assignee", "assignee"},
	{"category", "category"},
	{"version", "version"},
	{"start", "start"},
	{"due", "due"},
	{"estimate", "estimate"},
	{"done", "done"},
}

var createCmd = &cobra.Command{
	Use:   "create [key=value...]",
	Short: "Create a new issue",
	Long: `Create a new issue. Attributes come from flags and from key=value
arguments, e.g. "workgraph create -p core -s 'Crash on save' cf.Severity=high".
Without a subject an interactive form is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		user, err := actor(cmd, a)
		if err != nil {
			return err
		}

		values := make(map[string]string)
		for _, f := range createFlags {
			if cmd.Flags().Changed(f.flag) {
				values[f.key], _ = cmd.Flags().GetString(f.flag)
			}
		}

		r := newResolver(ctx, a.store)
		if values["subject"] == "" && !w.JSONMode && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := createForm(r, values); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					w.Info("Cancelled.")
					return nil
				}
				return err
			}
		}

		if values["description"] == "-" {
			const maxStdinSize = 1 << 20 // 1 MiB
			lr := &io.LimitedReader{R: os.Stdin, N: maxStdinSize + 1}
			data, err := io.ReadAll(lr)
			if err != nil {
				return cmdErr(fmt.Errorf("reading description from stdin: %w", err), output.ErrGeneral)
			}
			if int64(len(data)) > maxStdinSize {
				return cmdErr(fmt.Errorf("description exceeds %d bytes", maxStdinSize), output.ErrValidation)
			}
			values["description"] = strings.TrimRight(string(data), "\n")
		}

		if _, ok := values["project"]; !ok {
			if id, ok := onlyProject(r); ok {
				values["project"] = strconv.Itoa(id)
			}
		}

		pairs := make([]string, 0, len(values)+len(args))
		for _, f := range createFlags {
			if v, ok := values[f.key]; ok {
				pairs = append(pairs, f.key+"="+v)
			}
		}
		watchers, _ := cmd.Flags().GetStringSlice("watcher")
		if len(watchers) > 0 {
			pairs = append(pairs, "watchers="+strings.Join(watchers, ","))
		}
		pairs = append(pairs, args...)

		attrs, err := r.attributes(pairs)
		if err != nil {
			return err
		}

		res, err := a.engine.Create(ctx, user, attrs)
		if err != nil {
			return engineErr(err)
		}
		reportMutation(w, res, fmt.Sprintf("Created %s: %s", model.FormatID(res.Issue.ID), res.Issue.Subject))
		return nil
	},
}

// onlyProject returns the single project of the catalog, if there is only
// one.
func onlyProject(r *resolver) (int, bool) {
	projects, err := r.cat.Projects(r.ctx)
	if err != nil || len(projects) != 1 {
		return 0, false
	}
	for id := range projects {
		return id, true
	}
	return 0, false
}

// createForm asks for the subject, description, project and type, keeping
// any value already given as a default.
func createForm(r *resolver, values map[string]string) error {
	projects, err := r.cat.Projects(r.ctx)
	if err != nil {
		return cmdErr(fmt.Errorf("loading projects: %w", err), output.ErrGeneral)
	}
	types, err := r.cat.Types(r.ctx)
	if err != nil {
		return cmdErr(fmt.Errorf("loading types: %w", err), output.ErrGeneral)
	}
	if len(projects) == 0 || len(types) == 0 {
		return cmdErr(fmt.Errorf("no projects or types defined, run 'workgraph import <catalog.toml>' first"), output.ErrValidation)
	}

	projectIDs := make([]int, 0, len(projects))
	for id := range projects {
		projectIDs = append(projectIDs, id)
	}
	sort.Ints(projectIDs)
	projectOptions := make([]huh.Option[string], 0, len(projectIDs))
	for _, id := range projectIDs {
		p := projects[id]
		projectOptions = append(projectOptions, huh.NewOption(fmt.Sprintf("%s (%s)", p.Name, p.Identifier), p.Identifier))
	}
	typeOptions := make([]huh.Option[string], 0, len(types))
	for _, t := range types {
		typeOptions = append(typeOptions, huh.NewOption(t.Name, t.Name))
	}

	subject := values["subject"]
	description := values["description"]
	project := values["project"]
	if project == "" {
		project = projects[projectIDs[0]].Identifier
	}
	typ := values["type"]
	if typ == "" {
		typ = types[0].Name
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Subject").
				Value(&subject).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("subject is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&description),
			huh.NewSelect[string]().
				Title("Project").
				Options(projectOptions...).
				Value(&project),
			huh.NewSelect[string]().
				Title("Type").
				Options(typeOptions...).
				Value(&typ),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return err
		}
		return cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
	}

	values["subject"] = subject
	values["description"] = description
	values["project"] = project
	values["type"] = typ
	return nil
}

func init() {
	createCmd.Flags().StringP("project", "p", "", "Project identifier or ID (default: the only project)")
	createCmd.Flags().StringP("type", "T", "", "Issue type name or ID")
	createCmd.Flags().StringP("subject", "s", "", "Issue subject")
	createCmd.Flags().StringP("description", "d", "", "Issue description (use \"-\" for stdin)")
	createCmd.Flags().String("status", "", "Initial status (default: the default status)")
	createCmd.Flags().StringP("assignee", "a", "", "Assignee login")
	createCmd.Flags().String("category", "", "Category name or ID")
	createCmd.Flags().String("version", "", "Fix version name or ID")
	createCmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	createCmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	createCmd.Flags().String("estimate", "", "Estimated hours, e.g. 1.5, 1:30 or 1h30")
	createCmd.Flags().String("done", "", "Done ratio in percent")
	createCmd.Flags().StringSlice("watcher", nil, "Watcher login (repeatable)")
	rootCmd.AddCommand(createCmd)
}
