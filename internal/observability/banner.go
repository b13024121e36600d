package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// isTerminal reports whether w is a terminal; colors are only used there.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return width
}

func PrintBanner(w io.Writer) {
	banner := `
   ___  __  ____________  _________  ___   __
  / _ |/ / / /_  __/ __ \/ ___/ __ \/ _ | / /
 / __ / /_/ / / / / /_/ / (_ / /_/ / __ |/ /__
/_/ |_\____/ /_/  \____/\___/\____/_/ |_/____/

        >> AUTONOMOUS GOAL ENGINE <<
`
	color, reset := "", ""
	if isTerminal(w) {
		color, reset = colorNeonCyan, colorReset
	}

	width := termWidth(w)
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), color, l, reset)
	}
}

// FormatStatus renders a one-line summary of snap.
func FormatStatus(snap StatusSnapshot, now time.Time) string {
	pulse := "OFFLINE"
	delta := now.Sub(snap.LastHeartbeat)
	if delta < 40*time.Second {
		pulse = "HEALTHY"
	} else if delta < 90*time.Second {
		pulse = "LAGGING"
	}

	task := "Waiting..."
	if snap.ActiveGoalID != 0 {
		task = fmt.Sprintf("#%d %s", snap.ActiveGoalID, snap.ActiveGoal)
	}
	if len(task) > 40 {
		task = task[:37] + "..."
	}

	return fmt.Sprintf("[%s] %-7s | %-12s | %s | cycles=%d uptime=%s",
		snap.LastHeartbeat.Format("15:04:05"),
		pulse,
		snap.Phase,
		task,
		snap.Cycles,
		now.Sub(snap.StartedAt).Round(time.Second),
	)
}

// PrintStatus writes FormatStatus to w, colored on terminals.
func PrintStatus(w io.Writer, snap StatusSnapshot) {
	line := FormatStatus(snap, time.Now())
	if isTerminal(w) {
		color := colorNeonCyan
		if snap.Phase != PhaseIdle {
			color = colorNeonMag
		}
		if strings.Contains(line, "LAGGING") {
			color = colorPurple
		}
		line = color + line + colorReset
	}
	fmt.Fprintln(w, line)
}
