package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/autogoal/internal/agent"
	"github.com/rahul/autogoal/internal/goal"
	"github.com/rahul/autogoal/internal/observability"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start listens for operator commands until ctx is cancelled
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Operator is the goal surface exposed to chat commands. *agent.Engine implements it.
type Operator interface {
	ListGoals(ctx context.Context, status *goal.Status) ([]goal.Goal, error)
	GetGoal(ctx context.Context, id int64) (goal.Goal, error)
	SubmitGoal(ctx context.Context, sub agent.Submission) (goal.Goal, error)
	GetPlanSteps(ctx context.Context, id int64) ([]goal.PlanStep, error)
	CancelGoal(ctx context.Context, id int64) (goal.Goal, error)
	ResumeGoal(ctx context.Context, id int64) (goal.Goal, error)
	Status() observability.StatusSnapshot
}

const helpText = `Commands:
/goals [STATUS] - list goals
/goal ID - show one goal
/steps ID - show plan steps
/submit DESCRIPTION - queue a new goal
/cancel ID - cancel a goal
/resume ID - re-plan a blocked goal
/status - coordinator status`

const refusedText = "⛔ this chat is not allowed to control goals"

// Commands turns chat messages into operator requests. Replies are plain text.
// Only chats listed in Allowed may issue commands; an empty list refuses all.
type Commands struct {
	Operator Operator
	Allowed  map[string]bool
	now      func() time.Time
}

func NewCommands(op Operator, allowedChats ...string) *Commands {
	c := &Commands{Operator: op, Allowed: make(map[string]bool), now: time.Now}
	for _, id := range allowedChats {
		if id = strings.TrimSpace(id); id != "" {
			c.Allowed[id] = true
		}
	}
	return c
}

// Authorized reports whether chatID may issue commands.
func (c *Commands) Authorized(chatID string) bool {
	return chatID != "" && c.Allowed[chatID]
}

// Handle executes one chat command sent from chatID and returns the reply.
func (c *Commands) Handle(ctx context.Context, chatID, text string) string {
	if !c.Authorized(chatID) {
		return refusedText
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return helpText
	}
	name, arg, _ := strings.Cut(text, " ")
	// Telegram appends the bot name in groups: /goals@autogoal_bot
	name, _, _ = strings.Cut(strings.ToLower(name), "@")
	arg = strings.TrimSpace(arg)

	reply, err := c.dispatch(ctx, name, arg)
	if err != nil {
		if agent.IsUserError(err) || errors.Is(err, errBadArgument) {
			return "⚠️ " + err.Error()
		}
		return "❌ internal error: " + err.Error()
	}
	return reply
}

var errBadArgument = errors.New("bad argument")

func (c *Commands) dispatch(ctx context.Context, name, arg string) (string, error) {
	switch name {
	case "/goals":
		var status *goal.Status
		if arg != "" {
			s := goal.Status(strings.ToUpper(arg))
			if !s.Valid() {
				return "", fmt.Errorf("%w: unknown status %q", errBadArgument, arg)
			}
			status = &s
		}
		goals, err := c.Operator.ListGoals(ctx, status)
		if err != nil {
			return "", err
		}
		if len(goals) == 0 {
			return "No goals.", nil
		}
		var b strings.Builder
		for _, g := range goals {
			fmt.Fprintf(&b, "#%d [%s] p%d %s (%.0f%%)\n", g.ID, g.Status, g.Priority, g.Title, g.Progress*100)
		}
		return strings.TrimSuffix(b.String(), "\n"), nil

	case "/goal":
		id, err := parseID(arg)
		if err != nil {
			return "", err
		}
		g, err := c.Operator.GetGoal(ctx, id)
		if err != nil {
			return "", err
		}
		return FormatGoal(g), nil

	case "/steps":
		id, err := parseID(arg)
		if err != nil {
			return "", err
		}
		steps, err := c.Operator.GetPlanSteps(ctx, id)
		if err != nil {
			return "", err
		}
		if len(steps) == 0 {
			return fmt.Sprintf("Goal #%d has no plan yet.", id), nil
		}
		var b strings.Builder
		for _, s := range steps {
			fmt.Fprintf(&b, "attempt %d step %d %s [%s]", s.Attempt, s.StepNumber, s.ActionType, s.Status)
			if s.Result != nil && s.Result.Error != "" {
				fmt.Fprintf(&b, ": %s", s.Result.Error)
			}
			b.WriteString("\n")
		}
		return strings.TrimSuffix(b.String(), "\n"), nil

	case "/submit":
		if arg == "" {
			return "", fmt.Errorf("%w: usage /submit DESCRIPTION", errBadArgument)
		}
		g, err := c.Operator.SubmitGoal(ctx, agent.Submission{Description: arg})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🎯 Goal #%d queued as %s (priority %d).", g.ID, g.Type, g.Priority), nil

	case "/cancel":
		id, err := parseID(arg)
		if err != nil {
			return "", err
		}
		if _, err := c.Operator.CancelGoal(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Cancellation of goal #%d requested.", id), nil

	case "/resume":
		id, err := parseID(arg)
		if err != nil {
			return "", err
		}
		if _, err := c.Operator.ResumeGoal(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Goal #%d will be re-planned on the next cycle.", id), nil

	case "/status":
		return observability.FormatStatus(c.Operator.Status(), c.now()), nil
	}
	return helpText, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: expected a goal id, got %q", errBadArgument, arg)
	}
	return id, nil
}

// FormatGoal renders a goal for chat and terminal output.
func FormatGoal(g goal.Goal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", g.ID, g.Title)
	fmt.Fprintf(&b, "type: %s  status: %s  priority: %d  progress: %.0f%%\n", g.Type, g.Status, g.Priority, g.Progress*100)
	if g.Description != g.Title {
		fmt.Fprintf(&b, "description: %s\n", g.Description)
	}
	if g.ParentID != nil {
		fmt.Fprintf(&b, "parent: #%d\n", *g.ParentID)
	}
	for _, c := range g.SuccessCriteria {
		fmt.Fprintf(&b, "criterion: %s\n", c)
	}
	for _, blocker := range g.Blockers {
		fmt.Fprintf(&b, "blocker: %s\n", blocker)
	}
	if g.CancelRequested {
		b.WriteString("cancel requested\n")
	}
	if g.ResumeRequested {
		b.WriteString("resume requested\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Target pairs a gateway with the chat that receives notifications.
type Target struct {
	Messenger agent.Messenger
	ChatID    string
}

// Broadcast fans notifications out to every target. It satisfies agent.Messenger.
type Broadcast struct {
	Targets []Target
}

// Send delivers text to every target. A target without its own chat id uses chatID.
func (b *Broadcast) Send(chatID string, text string) error {
	var errs []error
	for _, t := range b.Targets {
		id := t.ChatID
		if id == "" {
			id = chatID
		}
		if err := t.Messenger.Send(id, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-1]) + "…"
}
