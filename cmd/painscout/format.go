package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/painscout/painscout/internal/types"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func header(title string) {
	fmt.Printf("\n%s\n\n", cyan("=== "+title+" ==="))
}

// verdictColor paints BUILD green, INVEST cyan, MONITOR yellow and PASS gray
func verdictColor(v types.Verdict) string {
	switch v {
	case types.VerdictBuild:
		return color.New(color.FgGreen, color.Bold).Sprint(v)
	case types.VerdictInvest:
		return color.New(color.FgCyan).Sprint(v)
	case types.VerdictMonitor:
		return yellow(string(v))
	case types.VerdictPass:
		return gray(string(v))
	}
	return gray("-")
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return gray("-")
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatAgo(t *time.Time) string {
	if t == nil || t.IsZero() {
		return gray("never")
	}
	return humanize.Time(*t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printErrors(errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("\n%s\n", yellow(fmt.Sprintf("Errors (%d):", len(errs))))
	for _, e := range errs {
		fmt.Printf("  %s %s\n", red("✗"), e)
	}
}
