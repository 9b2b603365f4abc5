// Package report renders the audit hierarchy as a fixed-width table
// with columns TAG, PLATFORM, STATUS, DOWNLOADS and DIGEST. Rendering
// is a thin formatting layer: everything it prints comes straight from
// the audit structures.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/cloudsmith-io/support-engineering/pkg/audit"
)

var (
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed)
	boldRed = color.New(color.FgRed, color.Bold)
	cyan    = color.New(color.FgCyan)
	dim     = color.New(color.Faint)
)

// Status renders a sync status with its icon. Labels outside the known
// vocabulary pass through unstyled.
func Status(s string) string {
	switch s {
	case "Completed":
		return green.Sprint(s) + " ✅"
	case "In Progress":
		return yellow.Sprint(s) + " ⏳"
	case "Quarantined":
		return red.Sprint(s) + " ☠️"
	case "Failed":
		return boldRed.Sprint(s) + " ❌"
	}
	return s
}

// Statuses renders multiple status labels space-joined, each with its
// own icon.
func Statuses(list []string) string {
	parts := make([]string, 0, len(list))
	for _, s := range list {
		parts = append(parts, Status(s))
	}
	return strings.Join(parts, " ")
}

// Table streams report rows to a writer and aligns them on Flush.
type Table struct {
	w *tabwriter.Writer
}

// NewTable writes the title and column header and returns the table.
func NewTable(out io.Writer, title string) *Table {
	t := &Table{w: tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)}

	fmt.Fprintln(t.w, title)
	fmt.Fprintln(t.w, "TAG\tPLATFORM\tSTATUS\tDOWNLOADS\tDIGEST")

	return t
}

// WriteTag renders one resolved tag: the index row, the child rows when
// detailed is set, and the rollup line.
func (t *Table) WriteTag(r *audit.TagReport, detailed bool) {
	t.row(cyan.Sprint(r.Tag), "multi", Status(r.Status), strconv.FormatInt(r.TotalDownloads, 10), string(r.IndexDigest))

	if detailed {
		for _, row := range r.Rows {
			t.child(r.Tag, row)
		}
	}

	t.row(r.Tag+" total downloads", "", "", strconv.FormatInt(r.TotalDownloads, 10), "")
	t.section()
}

// WriteUntagged renders one untagged manifest list and, when detailed
// is set, its children.
func (t *Table) WriteUntagged(l audit.UntaggedList, detailed bool) {
	t.row(cyan.Sprint("(untagged) [List]"),
		strings.Join(l.Platforms, " "),
		Status(l.Status),
		strconv.FormatInt(l.Downloads, 10),
		dim.Sprint(string(l.Digest)))

	if detailed {
		for _, row := range l.Rows {
			t.child("(untagged)", row)
		}
	}

	t.section()
}

// Flush aligns and emits everything written so far.
func (t *Table) Flush() error {
	return t.w.Flush()
}

func (t *Table) child(parent string, row audit.DigestRow) {
	t.row("  └─ "+parent,
		strings.Join(row.Platforms, " "),
		Statuses(row.Statuses),
		strconv.FormatInt(row.Downloads, 10),
		dim.Sprint(string(row.Digest)))
}

func (t *Table) row(cells ...string) {
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *Table) section() {
	fmt.Fprintln(t.w)
}
