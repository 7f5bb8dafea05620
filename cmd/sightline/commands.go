package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/sightline"
	"github.com/jward/sightline/internal/importer"
	"github.com/jward/sightline/internal/store"
)

// parseMapRef splits "group/name". A bare name refers to the data group.
func parseMapRef(ref string) (group, name string, err error) {
	group, name, ok := strings.Cut(ref, "/")
	if !ok {
		group, name = store.GroupData, ref
	}
	if group == "" || name == "" {
		return "", "", fmt.Errorf("invalid map reference %q (want group/name)", ref)
	}
	return group, name, nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePositions(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid column position %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// --- import ---

var (
	flagImportName      string
	flagImportGroup     string
	flagImportColumns   string
	flagImportPositions string
)

var importCmd = &cobra.Command{
	Use:   "import <file.arrow>",
	Short: "Import an Arrow data frame and save it as a map",
	Long:  "Reads an Arrow IPC file holding an sf data frame, converts each row into a keyed shape and saves the map to the database.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&flagImportName, "name", "", "map name (default: file name without extension)")
	importCmd.Flags().StringVar(&flagImportGroup, "group", store.GroupData, "group to save the map under")
	importCmd.Flags().StringVar(&flagImportColumns, "columns", "", "comma-separated attribute columns to import by name")
	importCmd.Flags().StringVar(&flagImportPositions, "positions", "", "comma-separated attribute columns to import by position")
}

func runImport(cmd *cobra.Command, args []string) error {
	var opts []importer.Option
	if flagImportName != "" {
		opts = append(opts, importer.WithName(flagImportName))
	}
	if cols := splitList(flagImportColumns); len(cols) > 0 {
		opts = append(opts, importer.WithColumns(cols...))
	}
	if flagImportPositions != "" {
		pos, err := parsePositions(flagImportPositions)
		if err != nil {
			return outputError(cmd, "import", err)
		}
		opts = append(opts, importer.WithColumnPositions(pos...))
	}

	s, err := openSession()
	if err != nil {
		return outputError(cmd, "import", err)
	}
	defer s.Close()

	h, res, err := s.engine.ImportArrowFile(args[0], opts...)
	if err != nil {
		return outputError(cmd, "import", err)
	}
	saved, err := s.engine.Save(flagImportGroup, h)
	if err != nil {
		return outputError(cmd, "import", err)
	}
	return outputResult(cmd, CLIResult{
		Command: "import",
		Results: toCLIImport(flagImportGroup, res, saved),
	})
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <group/name> <file.arrow>",
	Short: "Write a saved map as an Arrow file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, name, err := parseMapRef(args[0])
		if err != nil {
			return outputError(cmd, "export", err)
		}
		s, err := openSession()
		if err != nil {
			return outputError(cmd, "export", err)
		}
		defer s.Close()

		h, err := s.engine.Load(group, name)
		if err != nil {
			return outputError(cmd, "export", err)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return outputError(cmd, "export", err)
		}
		if err := s.engine.Export(f, h); err != nil {
			f.Close()
			return outputError(cmd, "export", err)
		}
		if err := f.Close(); err != nil {
			return outputError(cmd, "export", err)
		}
		return outputResult(cmd, CLIResult{Command: "export", Results: args[1]})
	},
}

// --- maps / rm ---

var flagMapsGroup string

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "List saved maps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return outputError(cmd, "maps", err)
		}
		defer s.Close()

		infos, err := s.engine.PersistedMaps()
		if err != nil {
			return outputError(cmd, "maps", err)
		}
		var filtered []*store.MapInfo
		for _, info := range infos {
			if flagMapsGroup == "" || info.Group == flagMapsGroup {
				filtered = append(filtered, info)
			}
		}
		total := len(filtered)
		return outputResult(cmd, CLIResult{
			Command:    "maps",
			Results:    toCLIMaps(filtered),
			TotalCount: &total,
		})
	},
}

func init() {
	mapsCmd.Flags().StringVar(&flagMapsGroup, "group", "", "only list maps in this group")
}

var rmCmd = &cobra.Command{
	Use:   "rm <group/name>",
	Short: "Delete a saved map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, name, err := parseMapRef(args[0])
		if err != nil {
			return outputError(cmd, "rm", err)
		}
		s, err := openSession()
		if err != nil {
			return outputError(cmd, "rm", err)
		}
		defer s.Close()

		if err := s.engine.DeletePersisted(group, name); err != nil {
			return outputError(cmd, "rm", err)
		}
		return outputResult(cmd, CLIResult{Command: "rm", Results: group + "/" + name})
	},
}

// --- inspect ---

var flagInspectKey int

var inspectCmd = &cobra.Command{
	Use:   "inspect <group/name>",
	Short: "Summarize a saved map's columns, or show one shape",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&flagInspectKey, "key", -1, "also show the shape under this key")
}

func runInspect(cmd *cobra.Command, args []string) error {
	group, name, err := parseMapRef(args[0])
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	s, err := openSession()
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	defer s.Close()

	h, err := s.engine.Load(group, name)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}
	q, err := s.engine.Query(h)
	if err != nil {
		return outputError(cmd, "inspect", err)
	}

	out := CLIInspect{
		Group:   group,
		Name:    name,
		Shapes:  q.Map().Len(),
		Columns: toCLIColumns(q.Summaries()),
	}
	if r := q.Map().Region(); !r.Empty() {
		out.Region = &[4]float64{r.MinX, r.MinY, r.MaxX, r.MaxY}
	}
	if cmd.Flags().Changed("key") {
		shape, err := inspectShape(q, flagInspectKey)
		if err != nil {
			return outputError(cmd, "inspect", err)
		}
		out.Shape = shape
	}
	return outputResult(cmd, CLIResult{Command: "inspect", Results: out})
}

func inspectShape(q *sightline.QueryBuilder, key int) (*CLIShape, error) {
	shape, err := q.Map().Shapes.Get(key)
	if err != nil {
		return nil, err
	}
	pts, err := q.Coordinates(key)
	if err != nil {
		return nil, err
	}
	attrs, err := q.Attributes(key)
	if err != nil {
		return nil, err
	}
	out := &CLIShape{
		Key:        key,
		Kind:       shape.Kind().String(),
		Points:     make([][2]float64, len(pts)),
		Attributes: make(map[string]*float64, len(attrs)),
	}
	for i, p := range pts {
		out.Points[i] = [2]float64{p.X, p.Y}
	}
	for k, v := range attrs {
		out.Attributes[k] = optFloat(v)
	}
	return out, nil
}

// --- scripts ---

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "List the available analysis scripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return outputError(cmd, "scripts", err)
		}
		defer s.Close()

		names, err := s.engine.Scripts()
		if err != nil {
			return outputError(cmd, "scripts", err)
		}
		total := len(names)
		return outputResult(cmd, CLIResult{Command: "scripts", Results: names, TotalCount: &total})
	},
}

// --- run ---

var (
	flagRunAccess    string
	flagRunSaveGroup string
	flagRunSaveName  string
	flagRunNoSave    bool
)

var runCmd = &cobra.Command{
	Use:   "run <group/name> <script>",
	Short: "Run an analysis script over a saved map",
	Long:  "Loads the map, runs the script on it under the chosen access mode and saves the resulting map. Interrupting the command cancels the analysis at its next progress tick.",
	Args:  cobra.ExactArgs(2),
	RunE:  runScript,
}

func init() {
	runCmd.Flags().StringVar(&flagRunAccess, "access", "", "map access: borrowed|owned|cloned (default: from copy_before_run)")
	runCmd.Flags().StringVar(&flagRunSaveGroup, "save-group", store.GroupResult, "group to save the resulting map under")
	runCmd.Flags().StringVar(&flagRunSaveName, "save-name", "", "name to save the resulting map under (default: source name)")
	runCmd.Flags().BoolVar(&flagRunNoSave, "no-save", false, "do not save the resulting map")
}

func runScript(cmd *cobra.Command, args []string) error {
	group, name, err := parseMapRef(args[0])
	if err != nil {
		return outputError(cmd, "run", err)
	}
	s, err := openSession()
	if err != nil {
		return outputError(cmd, "run", err)
	}
	defer s.Close()

	access := s.engine.DefaultAccess()
	if flagRunAccess != "" {
		if access, err = sightline.ParseMapAccess(flagRunAccess); err != nil {
			return outputError(cmd, "run", err)
		}
	}
	h, err := s.engine.Load(group, name)
	if err != nil {
		return outputError(cmd, "run", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := s.engine.RunScript(ctx, h, access, args[1])
	if err != nil {
		return outputError(cmd, "run", err)
	}
	out := toCLIReport(args[1], rep)

	if rep.State == sightline.Completed && rep.Handle != 0 && !flagRunNoSave {
		saveAs, err := saveResult(s.engine, rep.Handle, name)
		if err != nil {
			return outputError(cmd, "run", err)
		}
		out.SavedAs = saveAs
	}
	s.log.Info("script run", zap.String("script", args[1]), zap.String("state", out.State), zap.String("saved_as", out.SavedAs))
	return outputResult(cmd, CLIResult{Command: "run", Results: out})
}

func saveResult(e *sightline.Engine, h sightline.Handle, sourceName string) (string, error) {
	m, err := e.Map(h)
	if err != nil {
		return "", err
	}
	m.Name = sourceName
	if flagRunSaveName != "" {
		m.Name = flagRunSaveName
	}
	if _, err := e.Save(flagRunSaveGroup, h); err != nil {
		return "", err
	}
	return flagRunSaveGroup + "/" + m.Name, nil
}
