package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rahul/autogoal/internal/agent"
	"github.com/rahul/autogoal/internal/gateway"
	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/observability"
	"github.com/rahul/autogoal/internal/store"
)

var (
	submitType     string
	submitPriority int
	submitTitle    string
	submitParent   int64
	submitCriteria []string
	submitMeta     map[string]string

	goalsStatus string
	jsonOutput  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [description]",
	Short: "Queue a new goal",
	Long: `Queues a PENDING goal. Type and priority are inferred from the description
unless given. The request passes the policy gate and is rejected when an equal
open goal already exists.

Examples:
  autogoal submit "Add documentation to ` + "`parse` in `lib/parser.py`" + `"
  autogoal submit --type RESEARCH "Research topic: WAL checkpoints"
  autogoal submit "Bump retries" --type IMPROVEMENT \
      --meta target_file=client.py --meta old_fragment="retries = 1" --meta new_fragment="retries = 3"`,
	Args: cobra.MinimumNArgs(1),
	RunE: submitGoal,
}

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "List goals",
	RunE:  listGoals,
}

var goalCmd = &cobra.Command{
	Use:   "goal [id]",
	Short: "Show one goal",
	Args:  cobra.ExactArgs(1),
	RunE:  showGoal,
}

var stepsCmd = &cobra.Command{
	Use:   "steps [id]",
	Short: "Show every plan attempt of a goal",
	Args:  cobra.ExactArgs(1),
	RunE:  showSteps,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Request cancellation of a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, args[0], (*agent.Engine).CancelGoal, "cancellation of goal #%d requested")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Request a blocked goal be re-planned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, args[0], (*agent.Engine).ResumeGoal, "goal #%d will be re-planned on the next cycle")
	},
}

var rememberCmd = &cobra.Command{
	Use:   "remember [text]",
	Short: "Add an operator note to memory",
	Long: `Stores a note in the memory store. Questions and "need to learn about X"
phrases in recent notes become RESEARCH goals on the next scan.`,
	Args: cobra.MinimumNArgs(1),
	RunE: remember,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show goal counts by status",
	RunE:  showStatus,
}

func init() {
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "", "goal type: DEVELOPMENT, RESEARCH, OPTIMIZATION, MAINTENANCE or IMPROVEMENT")
	submitCmd.Flags().IntVarP(&submitPriority, "priority", "p", 0, "priority, lower runs first (default by type)")
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "short title (default from description)")
	submitCmd.Flags().Int64Var(&submitParent, "parent", 0, "parent goal id")
	submitCmd.Flags().StringSliceVar(&submitCriteria, "criteria", nil, "success criteria")
	submitCmd.Flags().StringToStringVar(&submitMeta, "meta", nil, "planner metadata key=value")

	goalsCmd.Flags().StringVarP(&goalsStatus, "status", "s", "", "only goals with this status")
	for _, c := range []*cobra.Command{goalsCmd, goalCmd, stepsCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	}
}

func submitGoal(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sub := agent.Submission{
		Description:     strings.Join(args, " "),
		Title:           submitTitle,
		Type:            goal.Type(strings.ToUpper(submitType)),
		Priority:        submitPriority,
		SuccessCriteria: submitCriteria,
		Metadata:        submitMeta,
	}
	if submitParent > 0 {
		sub.ParentID = &submitParent
	}

	g, err := a.engine.SubmitGoal(cmd.Context(), sub)
	var duplicate *goal.DuplicateGoalError
	if errors.As(err, &duplicate) {
		return fmt.Errorf("%w; see `autogoal goal %d`", err, duplicate.ExistingID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "goal #%d queued as %s (priority %d)\n", g.ID, g.Type, g.Priority)
	return nil
}

func listGoals(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var status *goal.Status
	if goalsStatus != "" {
		s := goal.Status(strings.ToUpper(goalsStatus))
		if !s.Valid() {
			return fmt.Errorf("unknown status %q", goalsStatus)
		}
		status = &s
	}
	goals, err := a.engine.ListGoals(cmd.Context(), status)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), goals)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tPRIO\tPROGRESS\tTITLE")
	for _, g := range goals {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.0f%%\t%s\n", g.ID, g.Status, g.Type, g.Priority, g.Progress*100, g.Title)
	}
	return w.Flush()
}

func showGoal(cmd *cobra.Command, args []string) error {
	id, err := parseGoalID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := a.engine.GetGoal(cmd.Context(), id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), g)
	}
	fmt.Fprintln(cmd.OutOrStdout(), gateway.FormatGoal(g))
	return nil
}

func showSteps(cmd *cobra.Command, args []string) error {
	id, err := parseGoalID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.engine.GetGoal(cmd.Context(), id); err != nil {
		return err
	}
	steps, err := a.engine.GetPlanSteps(cmd.Context(), id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), steps)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tSTEP\tACTION\tSTATUS\tERROR")
	for _, s := range steps {
		errMsg := ""
		if s.Result != nil {
			errMsg = s.Result.Error
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", s.Attempt, s.StepNumber, s.ActionType, s.Status, errMsg)
	}
	return w.Flush()
}

type goalRequest func(e *agent.Engine, ctx context.Context, id int64) (goal.Goal, error)

func request(cmd *cobra.Command, arg string, fn goalRequest, format string) error {
	id, err := parseGoalID(arg)
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := fn(a.engine, cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", id)
	return nil
}

func remember(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	text := strings.Join(args, " ")
	if err := a.memory.AddMessage("operator", "human", text); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "noted")
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	goals, err := a.goals.List(cmd.Context(), store.Filter{})
	if err != nil {
		return err
	}
	counts := map[goal.Status]int{}
	for _, g := range goals {
		counts[g.Status]++
	}

	out := cmd.OutOrStdout()
	observability.PrintBanner(out)
	for _, s := range []goal.Status{goal.StatusPending, goal.StatusInProgress, goal.StatusBlocked, goal.StatusCompleted, goal.StatusFailed} {
		fmt.Fprintf(out, "%-12s %d\n", s, counts[s])
	}
	return nil
}

func parseGoalID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid goal id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
