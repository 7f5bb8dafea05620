// Package sightline turns spatial feature tables into keyed shape maps and
// runs analyses over them with copy-on-write isolation and cooperative
// cancellation.
//
// # Maps
//
// A map pairs a shape store with an attribute table. Every shape has a
// stable integer key that is also the key of its attribute row, and every
// row carries one float per column, NaN when unset. The map's region is the
// running bounding box of its shapes.
//
// # Import
//
// [Engine.Import] decodes a feature table (an Arrow IPC file through
// [Engine.ImportArrowFile]) into a new map. Each geometry cell becomes a
// point, line or polygon by its number of coordinate pairs. Degenerate rows
// are skipped and logged; unsupported column types abort the import.
//
//	e, err := sightline.New("maps.db", "scripts")
//	if err != nil { ... }
//	defer e.Close()
//
//	h, res, err := e.ImportArrowFile("streets.arrow", importer.WithColumns("depth"))
//
// # Analyses
//
// An analysis is an [AnalysisFunc]. [Engine.Analyse] hands it the map under
// a handle according to a [MapAccess]:
//
//   - [Borrowed] mutates the registered map in place.
//   - [Owned] mutates it in place and moves it to the results registry.
//   - [Cloned] works on a deep copy made before the analysis starts; the
//     original is never touched.
//
// The analysis polls a [ProgressSink]. Once the caller interrupts the
// working map or cancels the context, the sink answers Cancel and the
// analysis returns errs.ErrCancelled, which comes back as a [Report] with
// Cancelled set rather than as an error. Multi-phase analyses combine with
// [Phases] and [Report.Merge].
//
// # Scripts
//
// [Engine.RunScript] runs a Risor script as an analysis. Scripts reach the
// working map through host functions; see the internal/runtime package for
// the full set of globals.
//
// # Persistence
//
// With a database path, maps are saved to and loaded from SQLite by group
// and name ([Engine.Save], [Engine.Load], [Engine.LoadAll]).
package sightline
