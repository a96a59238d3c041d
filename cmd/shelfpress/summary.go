package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/blampe/shelfpress/internal/progress"
)

var (
	summaryLabel  = lipgloss.NewStyle().Bold(true).Width(10)
	summaryOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	summaryWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	summaryBad    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	summaryDim    = lipgloss.NewStyle().Faint(true)
	summaryBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// printSummary writes the final run report to stdout: styled when stdout
// is a terminal, the same plain text the summary file gets otherwise.
func printSummary(st *progress.State) {
	if st == nil {
		return
	}
	now := time.Now()
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print(st.Summary(now))
		return
	}
	fmt.Println(summaryBorder.Render(renderSummary(st, now)))
}

func renderSummary(st *progress.State, now time.Time) string {
	status := string(st.Status)
	switch st.Status {
	case progress.StatusCompleted:
		status = summaryOK.Render(status)
	case progress.StatusPaused:
		status = summaryWarn.Render(status)
	case progress.StatusFailed:
		status = summaryBad.Render(status)
	}

	failed := summaryOK.Render("0")
	if n := len(st.FailedItems); n > 0 {
		failed = summaryBad.Render(fmt.Sprintf("%d", n))
	}

	out := summaryLabel.Render("session") + summaryDim.Render(st.SessionID) + "\n" +
		summaryLabel.Render("status") + status + "\n" +
		summaryLabel.Render("elapsed") + now.Sub(st.StartTime).Round(time.Second).String() + "\n" +
		summaryLabel.Render("skills") + fmt.Sprintf("%d/%d", st.CompletedSkills, st.TotalSkills) + "\n" +
		summaryLabel.Render("books") + fmt.Sprintf("%d/%d", st.CompletedBooks, st.TotalBooks) + "\n" +
		summaryLabel.Render("failed") + failed

	if len(st.FailedItems) > 0 {
		ids := make([]string, 0, len(st.FailedItems))
		for id := range st.FailedItems {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			item := st.FailedItems[id]
			out += "\n" + summaryBad.Render(id) + summaryDim.Render(fmt.Sprintf("  [%s]  %s", item.Kind, item.Message))
		}
	}
	return out
}
