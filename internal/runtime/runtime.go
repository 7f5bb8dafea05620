// Package runtime embeds a Risor VM so analyses can be written as scripts.
// A script runs against one working map through host functions and reports
// its progress through a tick hook that honours cooperative cancellation.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"go.uber.org/zap"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/spatial"
)

// ScriptExt is the file extension of analysis scripts.
const ScriptExt = ".risor"

// Result is what a script run reports back: whether it ran to completion
// and which attribute columns it created or wrote, in first-touch order.
type Result struct {
	Completed bool
	Columns   []string
}

// Runtime loads and evaluates analysis scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	log        *zap.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Risor import statements resolve against the
// same FS.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger behind the scripts' log global.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRuntime creates a Runtime that resolves relative script paths
// against scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads the script at scriptPath and runs it against m.
func (r *Runtime) RunScript(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map, scriptPath string) (Result, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return Result{}, err
	}
	return r.eval(ctx, sink, m, src, scriptPath, nil)
}

// RunSource runs Risor source code directly against m, with any extra
// globals layered over the host functions. Useful for testing without
// script files.
func (r *Runtime) RunSource(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map, source string, extraGlobals map[string]any) (Result, error) {
	return r.eval(ctx, sink, m, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map, source, label string, extraGlobals map[string]any) (Result, error) {
	if m == nil {
		return Result{}, errs.New(errs.KindInvalidArgument, "run script", "no working map")
	}
	sess := newSession(m, sink, r.log.With(zap.String("script", label)))
	globals := sess.globals()
	for k, v := range extraGlobals {
		globals[k] = v
	}

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	res := Result{Completed: sess.completed, Columns: sess.written()}
	switch {
	case sess.cancelled || (err != nil && ctx.Err() != nil):
		res.Completed = false
		cause := err
		if cause == nil {
			cause = ctx.Err()
		}
		return res, &errs.Error{Kind: errs.KindCancelled, Op: "run script", Index: errs.NoIndex, Name: label, Cause: cause}
	case err != nil:
		return res, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return res, nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{ScriptExt},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{ScriptExt},
		})
	}
	return nil
}

// LoadScript reads a script and returns its source code. A path without an
// extension gets ScriptExt appended.
func (r *Runtime) LoadScript(path string) (string, error) {
	if filepath.Ext(path) == "" {
		path += ScriptExt
	}
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", wrapLoadErr(fsPath, "from fs", err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", wrapLoadErr(fullPath, "", err)
	}
	return string(data), nil
}

func wrapLoadErr(path, where string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &errs.Error{Kind: errs.KindNotFound, Op: "load script", Index: errs.NoIndex, Name: path, Detail: where, Cause: err}
	}
	if where != "" {
		return fmt.Errorf("runtime: loading script %s %s: %w", path, where, err)
	}
	return fmt.Errorf("runtime: loading script %s: %w", path, err)
}

// Scripts lists the scripts available to RunScript, relative to the
// scripts directory or FS root, without their extension.
func (r *Runtime) Scripts() ([]string, error) {
	fsys := r.fsys
	if fsys == nil {
		if r.scriptsDir == "" {
			return nil, nil
		}
		fsys = os.DirFS(r.scriptsDir)
	}
	var out []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ScriptExt {
			out = append(out, strings.TrimSuffix(path, ScriptExt))
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runtime: listing scripts: %w", err)
	}
	return out, nil
}
