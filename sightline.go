// Package sightline ingests spatial feature tables into keyed shape maps and
// runs cancellable analyses over them.
package sightline
