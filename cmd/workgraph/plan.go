package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

// planResult lists issue IDs per execution level.
type planResult struct {
	Kind   model.RelationKind `json:"kind"`
	Levels [][]int            `json:"levels"`
	Cyclic []int              `json:"cyclic"`
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Order open issues into execution levels",
	Long: `Plan sorts open issues by their precedes (or blocks) relations. Every
issue of a level can start once the levels before it are done. Issues
without such relations are in the first level. Issues caught in a cycle are
listed apart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		kindFlag, _ := cmd.Flags().GetString("kind")
		kind, err := model.ParseRelationKind(kindFlag)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if kind.Stored() != model.RelationPrecedes && kind.Stored() != model.RelationBlocks {
			return cmdErr(fmt.Errorf("plan orders by precedes or blocks, not %s", kind), output.ErrValidation)
		}

		r := newResolver(ctx, a.store)
		opts, err := listOptions(cmd, r)
		if err != nil {
			return err
		}
		issues, err := a.store.ListIssues(ctx, opts)
		if err != nil {
			return cmdErr(fmt.Errorf("listing issues: %w", err), output.ErrGeneral)
		}
		rels, err := a.store.AllRelations(ctx)
		if err != nil {
			return cmdErr(fmt.Errorf("loading relations: %w", err), output.ErrGeneral)
		}

		byID := make(map[int]*model.Issue, len(issues))
		for _, issue := range issues {
			byID[issue.ID] = issue
		}
		var among []model.Relation
		for _, rel := range rels {
			if byID[rel.FromID] != nil && byID[rel.ToID] != nil {
				among = append(among, rel)
			}
		}

		result := planResult{Kind: kind.Stored(), Levels: [][]int{}, Cyclic: []int{}}
		levels, err := graph.New(among).Levels(kind)
		var cycle *graph.CycleError
		if errors.As(err, &cycle) {
			result.Cyclic = cycle.Path
			w.Warn("%v", cycle)
		} else if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		placed := make(map[int]bool)
		for _, level := range levels {
			for _, id := range level {
				placed[id] = true
			}
		}
		for _, id := range result.Cyclic {
			placed[id] = true
		}
		var free []int
		for _, issue := range issues {
			if !placed[issue.ID] {
				free = append(free, issue.ID)
			}
		}
		if len(free) > 0 {
			if len(levels) == 0 {
				levels = [][]int{free}
			} else {
				levels[0] = mergeSorted(levels[0], free)
			}
		}
		result.Levels = append(result.Levels, levels...)

		var message string
		if !w.JSONMode {
			names, err := r.names()
			if err != nil {
				return cmdErr(fmt.Errorf("loading catalog: %w", err), output.ErrGeneral)
			}
			issueLevels := make([][]*model.Issue, len(levels))
			for i, level := range levels {
				for _, id := range level {
					issueLevels[i] = append(issueLevels[i], byID[id])
				}
			}
			var cyclic []*model.Issue
			for _, id := range result.Cyclic {
				cyclic = append(cyclic, byID[id])
			}
			message = render.RenderPlan(issueLevels, cyclic, names)
		}
		w.Success(result, message)
		return nil
	},
}

// mergeSorted merges two ascending ID lists.
func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func init() {
	planCmd.Flags().String("kind", "precedes", "Relation to order by: precedes or blocks")
	planCmd.Flags().StringP("project", "p", "", "Only issues of this project")
	planCmd.Flags().Bool("all", false, "Include closed issues")
	rootCmd.AddCommand(planCmd)
}
