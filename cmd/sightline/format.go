package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// validateFormat checks that the format flag is json or text.
func validateFormat(format string) error {
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format %q (must be json or text)", format)
	}
	return nil
}

// outputResultText dispatches on the result payload type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case CLIImport:
		formatImportText(w, r)
	case []CLIMap:
		formatMapsText(w, r)
	case CLIInspect:
		formatInspectText(w, r)
	case CLIReport:
		formatReportText(w, r)
	case []string:
		for _, s := range r {
			fmt.Fprintln(w, s)
		}
	case string:
		fmt.Fprintln(w, r)
	default:
		fmt.Fprintf(w, "%v\n", r)
	}
	return nil
}

func formatImportText(w io.Writer, imp CLIImport) {
	status := "saved"
	if imp.Unchanged {
		status = "unchanged"
	}
	fmt.Fprintf(w, "%s/%s: %d shapes (%s)\n", imp.Group, imp.Name, imp.Shapes, status)
	if len(imp.MultiPart) > 0 {
		fmt.Fprintf(w, "multi-part rows reduced to their first part: %v\n", imp.MultiPart)
	}
	if len(imp.Skipped) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SKIPPED ROW\tREASON")
		for _, s := range imp.Skipped {
			fmt.Fprintf(tw, "%d\t%s\n", s.Row, s.Reason)
		}
		tw.Flush()
	}
}

// formatMapsText formats CLIMap results as aligned columns.
func formatMapsText(w io.Writer, maps []CLIMap) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tNAME\tKEY\tSHAPES\tCOLUMNS\tSAVED")
	for _, m := range maps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			m.Group, m.Name, m.KeyColumn, m.Shapes, m.Columns, m.SavedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func formatInspectText(w io.Writer, in CLIInspect) {
	fmt.Fprintf(w, "%s/%s: %d shapes\n", in.Group, in.Name, in.Shapes)
	if in.Region != nil {
		fmt.Fprintf(w, "region: (%g, %g) - (%g, %g)\n", in.Region[0], in.Region[1], in.Region[2], in.Region[3])
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tSET\tROWS\tMIN\tMAX\tMEAN")
	for _, c := range in.Columns {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			c.Name, c.Set, c.Rows, fmtOpt(c.Min), fmtOpt(c.Max), fmtOpt(c.Mean))
	}
	tw.Flush()

	if in.Shape == nil {
		return
	}
	s := in.Shape
	fmt.Fprintln(w)
	fmt.Fprintf(w, "shape %d (%s)\n", s.Key, s.Kind)
	pts := make([]string, len(s.Points))
	for i, p := range s.Points {
		pts[i] = fmt.Sprintf("(%g, %g)", p[0], p[1])
	}
	fmt.Fprintf(w, "  points: %s\n", strings.Join(pts, " "))
	names := make([]string, 0, len(s.Attributes))
	for k := range s.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(w, "  %s: %s\n", k, fmtOpt(s.Attributes[k]))
	}
}

func formatReportText(w io.Writer, r CLIReport) {
	fmt.Fprintf(w, "run %s: %s (%s access)\n", r.RunID, r.State, r.Access)
	fmt.Fprintf(w, "script: %s\n", r.Script)
	fmt.Fprintf(w, "completed: %t\n", r.Completed)
	if len(r.Columns) > 0 {
		fmt.Fprintf(w, "columns: %s\n", strings.Join(r.Columns, ", "))
	}
	if r.SavedAs != "" {
		fmt.Fprintf(w, "saved as: %s\n", r.SavedAs)
	}
}

func fmtOpt(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
