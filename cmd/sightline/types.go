package main

import (
	"math"
	"time"

	"github.com/jward/sightline"
	"github.com/jward/sightline/internal/importer"
	"github.com/jward/sightline/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISkip is a row the importer dropped.
type CLISkip struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// CLIImport describes one imported and saved map.
type CLIImport struct {
	Group     string    `json:"group"`
	Name      string    `json:"name"`
	Shapes    int       `json:"shapes"`
	Skipped   []CLISkip `json:"skipped,omitempty"`
	MultiPart []int     `json:"multi_part,omitempty"`
	Unchanged bool      `json:"unchanged"`
}

// CLIMap is a persisted map listing entry.
type CLIMap struct {
	Group     string    `json:"group"`
	Name      string    `json:"name"`
	KeyColumn string    `json:"key_column"`
	Shapes    int       `json:"shapes"`
	Columns   int       `json:"columns"`
	Hash      string    `json:"hash"`
	SavedAt   time.Time `json:"saved_at"`
}

// CLIColumn summarizes one attribute column. NaN statistics are omitted.
type CLIColumn struct {
	Name string   `json:"name"`
	Set  int      `json:"set"`
	Rows int      `json:"rows"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Mean *float64 `json:"mean,omitempty"`
}

// CLIShape is one shape with its coordinates and attribute values.
type CLIShape struct {
	Key        int                 `json:"key"`
	Kind       string              `json:"kind"`
	Points     [][2]float64        `json:"points"`
	Attributes map[string]*float64 `json:"attributes"`
}

// CLIInspect describes one map.
type CLIInspect struct {
	Group   string      `json:"group"`
	Name    string      `json:"name"`
	Region  *[4]float64 `json:"region,omitempty"`
	Shapes  int         `json:"shapes"`
	Columns []CLIColumn `json:"columns"`
	Shape   *CLIShape   `json:"shape,omitempty"`
}

// CLIReport is the outcome of a script run.
type CLIReport struct {
	RunID     string   `json:"run_id"`
	Script    string   `json:"script"`
	Access    string   `json:"access"`
	State     string   `json:"state"`
	Completed bool     `json:"completed"`
	Cancelled bool     `json:"cancelled"`
	Columns   []string `json:"columns"`
	SavedAs   string   `json:"saved_as,omitempty"`
}

func optFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func toCLIImport(group string, res *importer.Result, saved store.SaveResult) CLIImport {
	out := CLIImport{
		Group:     group,
		Name:      res.Map.Name,
		Shapes:    res.Imported(),
		MultiPart: res.MultiPart,
		Unchanged: saved.Unchanged,
	}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, CLISkip{Row: s.Row, Reason: s.Reason})
	}
	return out
}

func toCLIMaps(infos []*store.MapInfo) []CLIMap {
	out := make([]CLIMap, len(infos))
	for i, info := range infos {
		out[i] = CLIMap{
			Group:     info.Group,
			Name:      info.Name,
			KeyColumn: info.KeyColumn,
			Shapes:    info.Shapes,
			Columns:   info.Columns,
			Hash:      info.Hash,
			SavedAt:   info.SavedAt,
		}
	}
	return out
}

func toCLIColumns(sums []sightline.ColumnSummary) []CLIColumn {
	out := make([]CLIColumn, len(sums))
	for i, s := range sums {
		out[i] = CLIColumn{
			Name: s.Name,
			Set:  s.Set,
			Rows: s.Rows,
			Min:  optFloat(s.Min),
			Max:  optFloat(s.Max),
			Mean: optFloat(s.Mean),
		}
	}
	return out
}

func toCLIReport(script string, rep sightline.Report) CLIReport {
	cols := rep.Columns
	if cols == nil {
		cols = []string{}
	}
	return CLIReport{
		RunID:     rep.RunID,
		Script:    script,
		Access:    rep.Access.String(),
		State:     rep.State.String(),
		Completed: rep.Completed,
		Cancelled: rep.Cancelled,
		Columns:   cols,
	}
}
