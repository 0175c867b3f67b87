package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Terasay/viau-sub000/internal/catalog"
	"github.com/Terasay/viau-sub000/internal/research"
	"github.com/Terasay/viau-sub000/internal/visibility"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	lineStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1D9DA0"))
	researchedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	openStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5F5F5"))
	hiddenStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#2C4A54"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2C4A54"))
	boxStyle        = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#16858E")).
			Padding(0, 1)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderCategories(rows []catalog.Summary) {
	accent.Println("\n== CATEGORIES ==")
	if len(rows) == 0 {
		printInfo("Catalog is empty.")
		return
	}
	fmt.Printf("%-16s %-24s %6s %6s\n", "ID", "NAME", "LINES", "TECHS")
	for _, c := range rows {
		fmt.Printf("%-16s %-24s %6d %6d\n", truncate(c.ID, 16), truncate(c.Name, 24), c.LineCount, c.NodeCount)
	}
	fmt.Println()
}

// formatTree draws a category as a box per line, researched technologies
// first in color, hidden ones dimmed.
func formatTree(tree visibility.Tree) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", tree.Name, tree.Category)))
	b.WriteString("\n")
	for _, line := range tree.Lines {
		var rows []string
		rows = append(rows, lineStyle.Render(line.Name))
		if len(line.Nodes) == 0 {
			rows = append(rows, mutedStyle.Render("nothing visible yet"))
		}
		for _, n := range line.Nodes {
			rows = append(rows, formatNode(n))
		}
		b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

func formatNode(n visibility.NodeView) string {
	marker, style := "[ ]", openStyle
	switch {
	case n.Researched:
		marker, style = "[x]", researchedStyle
	case n.Hidden:
		marker, style = "[?]", hiddenStyle
	}
	text := fmt.Sprintf("%s %-26s %4d  %s pts", marker, n.Name, n.Year, comma(n.Cost))
	if len(n.Requires) > 0 {
		text += mutedStyle.Render("  <- " + strings.Join(n.Requires, ", "))
	}
	return style.Render(text)
}

func renderCommit(techID string, res research.CommitResult) {
	printSuccess(fmt.Sprintf("Researched %s for %s points.", techID, comma(res.CostSpent)))
	fmt.Printf("Remaining balance: %s\n", comma(res.RemainingBalance))
}

func renderProgress(records []research.Record) {
	accent.Println("\n== RESEARCH PROGRESS ==")
	if len(records) == 0 {
		printInfo("Nothing researched yet.")
		return
	}
	fmt.Printf("%-4s %-28s %s\n", "#", "TECHNOLOGY", "RESEARCHED AT")
	for i, r := range records {
		fmt.Printf("%-4d %-28s %s\n", i+1, truncate(r.TechID, 28), r.ResearchedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
}

func renderNation(n research.Nation) {
	accent.Printf("\n== %s ==\n", n.Name)
	fmt.Printf("ID:               %s\n", n.ID)
	fmt.Printf("Research points:  %s\n", comma(n.ResearchPoints))
	fmt.Printf("Founded:          %s\n\n", n.CreatedAt.Format("2006-01-02"))
}

func renderTechnology(t research.TechnologyView) {
	accent.Printf("\n== %s ==\n", t.Name)
	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Category:  %s / %s\n", t.Category, t.Line)
	fmt.Printf("Year:      %d\n", t.Year)
	fmt.Printf("Cost:      %s\n", comma(t.Cost))
	if len(t.Requires) == 0 {
		fmt.Println("Requires:  -")
	} else {
		fmt.Printf("Requires:  %s\n", strings.Join(t.Requires, ", "))
	}
	fmt.Println()
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
