package sightline

import (
	"fmt"
	"io"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/importer"
	"github.com/jward/sightline/internal/logging"
	"github.com/jward/sightline/internal/metrics"
	"github.com/jward/sightline/internal/runtime"
	"github.com/jward/sightline/internal/spatial"
	"github.com/jward/sightline/internal/store"
)

// Handle identifies a map owned by an Engine. The zero Handle names no map.
type Handle int

// Registry is the part of the Engine a map is held in.
type Registry int

const (
	// Imported holds maps created by import or loaded from the database.
	Imported Registry = iota
	// Results holds maps produced or taken over by analyses.
	Results
)

func (r Registry) String() string {
	if r == Results {
		return "results"
	}
	return "imported"
}

// HandleInfo describes one registered map.
type HandleInfo struct {
	Handle   Handle
	Registry Registry
	Name     string
	Shapes   int
	Columns  int
}

// Engine owns maps by handle and runs analyses over them. Imported maps and
// analysis results live in separate registries; handing a map to an analysis
// with Owned access moves its entry from one to the other.
type Engine struct {
	mu       sync.Mutex
	imported map[Handle]*spatial.Map
	results  map[Handle]*spatial.Map
	next     Handle

	store      store.MapStore
	ownsStore  bool
	runtime    *runtime.Runtime
	scriptsDir string
	scriptsFS  fs.FS
	log        *zap.Logger
	metrics    *metrics.Recorder

	tolerance     float64
	keyColumn     string
	copyByDefault bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine, the importer and scripts.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = logging.OrNop(l)
	}
}

// WithMetrics records import and analysis outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithStore persists maps through s instead of a SQLite database opened
// from the path given to New. The Engine does not close s.
func WithStore(s store.MapStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithScriptsFS configures the Engine to load Risor scripts from the given
// filesystem instead of from the scriptsDir path on disk. This enables
// embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithTolerance sets the distance within which a seed point counts as
// landing on a shape.
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol > 0 {
			e.tolerance = tol
		}
	}
}

// WithKeyColumn sets the key column name of imported maps.
func WithKeyColumn(name string) Option {
	return func(e *Engine) {
		e.keyColumn = name
	}
}

// WithCopyBeforeRun sets the access DefaultAccess returns: Cloned when
// enabled, Borrowed otherwise. The default is true.
func WithCopyBeforeRun(enabled bool) Option {
	return func(e *Engine) {
		e.copyByDefault = enabled
	}
}

// New creates an Engine. When dbPath is non-empty and no store was given
// with WithStore, maps are persisted to a SQLite database at dbPath.
// Script loading priority:
//  1. If WithScriptsFS is set, use the provided fs.FS
//  2. Otherwise, use scriptsDir on disk
func New(dbPath, scriptsDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		imported:      make(map[Handle]*spatial.Map),
		results:       make(map[Handle]*spatial.Map),
		scriptsDir:    scriptsDir,
		log:           zap.NewNop(),
		tolerance:     geom.Tolerance,
		copyByDefault: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil && dbPath != "" {
		s, err := store.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("sightline: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("sightline: migrate: %w", err)
		}
		e.store = s
		e.ownsStore = true
	}

	rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.log)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = runtime.NewRuntime(scriptsDir, rtOpts...)

	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Store returns the persistence backend, or nil when none is configured.
func (e *Engine) Store() store.MapStore {
	return e.store
}

// Tolerance returns the seed-point tolerance.
func (e *Engine) Tolerance() float64 { return e.tolerance }

// DefaultAccess returns the access analyses use when the caller has no
// preference.
func (e *Engine) DefaultAccess() MapAccess {
	if e.copyByDefault {
		return Cloned
	}
	return Borrowed
}

// Scripts lists the analysis scripts RunScript can find.
func (e *Engine) Scripts() ([]string, error) {
	return e.runtime.Scripts()
}

// --- Registry ---

// Register adds m to the imported registry and returns its handle.
func (e *Engine) Register(m *spatial.Map) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerLocked(Imported, m)
}

func (e *Engine) registerLocked(r Registry, m *spatial.Map) Handle {
	e.next++
	e.registry(r)[e.next] = m
	return e.next
}

func (e *Engine) registry(r Registry) map[Handle]*spatial.Map {
	if r == Results {
		return e.results
	}
	return e.imported
}

// Map returns the map registered under h.
func (e *Engine) Map(h Handle) (*spatial.Map, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, _, ok := e.lookupLocked(h)
	if !ok {
		return nil, handleNotFound("map", h)
	}
	return m, nil
}

func (e *Engine) lookupLocked(h Handle) (*spatial.Map, Registry, bool) {
	if m, ok := e.imported[h]; ok {
		return m, Imported, true
	}
	if m, ok := e.results[h]; ok {
		return m, Results, true
	}
	return nil, Imported, false
}

// Drop releases the map registered under h.
func (e *Engine) Drop(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, r, ok := e.lookupLocked(h)
	if !ok {
		return handleNotFound("drop", h)
	}
	delete(e.registry(r), h)
	return nil
}

// Handles describes every registered map in handle order.
func (e *Engine) Handles() []HandleInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []HandleInfo
	for _, r := range []Registry{Imported, Results} {
		for h, m := range e.registry(r) {
			out = append(out, HandleInfo{
				Handle:   h,
				Registry: r,
				Name:     m.Name,
				Shapes:   m.Len(),
				Columns:  m.Attributes.NumColumns(),
			})
		}
	}
	slices.SortFunc(out, func(a, b HandleInfo) int { return int(a.Handle - b.Handle) })
	return out
}

// Find returns the handle of the first registered map named name.
func (e *Engine) Find(name string) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range []Registry{Imported, Results} {
		reg := e.registry(r)
		for _, h := range slices.Sorted(maps.Keys(reg)) {
			if reg[h].Name == name {
				return h, nil
			}
		}
	}
	return 0, errs.Named(errs.KindNotFound, "find map", name)
}

func handleNotFound(op string, h Handle) error {
	return errs.At(errs.KindNotFound, op, int(h), "handle")
}

// --- Import ---

// Import decodes f into a new map in the imported registry.
func (e *Engine) Import(f *importer.Frame, opts ...importer.Option) (Handle, *importer.Result, error) {
	base := []importer.Option{importer.WithLogger(e.log)}
	if e.keyColumn != "" {
		base = append(base, importer.WithKeyColumn(e.keyColumn))
	}
	res, err := importer.Import(f, append(base, opts...)...)
	if err != nil {
		e.metrics.ObserveImport(0, 0, err)
		return 0, nil, fmt.Errorf("sightline: import: %w", err)
	}
	e.metrics.ObserveImport(res.Imported(), len(res.Skipped), nil)

	h := e.Register(res.Map)
	e.log.Info("imported map",
		zap.Int("handle", int(h)),
		zap.String("name", res.Map.Name),
		zap.Int("shapes", res.Imported()),
		zap.Int("skipped", len(res.Skipped)),
	)
	return h, res, nil
}

// ImportArrowFile reads an Arrow IPC file and imports it. Unless a name is
// given in opts the map is named after the file.
func (e *Engine) ImportArrowFile(path string, opts ...importer.Option) (Handle, *importer.Result, error) {
	f, err := importer.ReadArrowFile(path)
	if err != nil {
		e.metrics.ObserveImport(0, 0, err)
		return 0, nil, fmt.Errorf("sightline: import %s: %w", path, err)
	}
	return e.Import(f, append([]importer.Option{importer.WithName(baseName(path))}, opts...)...)
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Export writes the map under h as an Arrow IPC file.
func (e *Engine) Export(w io.Writer, h Handle) error {
	m, err := e.Map(h)
	if err != nil {
		return err
	}
	if err := importer.WriteArrow(w, m); err != nil {
		return fmt.Errorf("sightline: export: %w", err)
	}
	return nil
}

// --- Persistence ---

// Save persists the map under h into group.
func (e *Engine) Save(group string, h Handle) (store.SaveResult, error) {
	if e.store == nil {
		return store.SaveResult{}, errNoStore("save")
	}
	m, err := e.Map(h)
	if err != nil {
		return store.SaveResult{}, err
	}
	res, err := e.store.SaveMap(group, m)
	if err != nil {
		return store.SaveResult{}, fmt.Errorf("sightline: save: %w", err)
	}
	e.log.Debug("saved map",
		zap.String("group", group),
		zap.String("name", m.Name),
		zap.Bool("unchanged", res.Unchanged),
	)
	return res, nil
}

// Load reads a persisted map into the imported registry.
func (e *Engine) Load(group, name string) (Handle, error) {
	if e.store == nil {
		return 0, errNoStore("load")
	}
	m, err := e.store.LoadMap(group, name)
	if err != nil {
		return 0, fmt.Errorf("sightline: load: %w", err)
	}
	return e.Register(m), nil
}

// LoadedHandle pairs a handle with the group the map was persisted under.
type LoadedHandle struct {
	Handle Handle
	Group  string
	Name   string
}

// LoadAll reads every persisted map into the imported registry, ordered
// by group then name.
func (e *Engine) LoadAll() ([]LoadedHandle, error) {
	if e.store == nil {
		return nil, errNoStore("load")
	}
	loaded, err := e.store.Load()
	if err != nil {
		return nil, fmt.Errorf("sightline: load: %w", err)
	}
	out := make([]LoadedHandle, len(loaded))
	for i, l := range loaded {
		out[i] = LoadedHandle{Handle: e.Register(l.Map), Group: l.Group, Name: l.Name}
	}
	return out, nil
}

// PersistedMaps lists the maps in the database without loading them.
func (e *Engine) PersistedMaps() ([]*store.MapInfo, error) {
	if e.store == nil {
		return nil, errNoStore("list")
	}
	return e.store.ListMaps()
}

// DeletePersisted removes a map from the database.
func (e *Engine) DeletePersisted(group, name string) error {
	if e.store == nil {
		return errNoStore("delete")
	}
	return e.store.DeleteMap(group, name)
}

func errNoStore(op string) error {
	return errs.New(errs.KindInvalidArgument, op, "no map store configured")
}
