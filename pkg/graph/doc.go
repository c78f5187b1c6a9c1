// Package graph implements an in-memory, normalized object graph.
//
// Records are typed entities identified by (type, id) and held by a Registry.
// Reference fields store ids and resolve to live records on read, so shared
// relationships survive a round trip through Serialize and NewRegistry. Every
// committed mutation after construction is described by a Patch delivered to
// record listeners and then to the owning registry.
//
// The package is single-threaded: a Registry and its records must not be used
// from several goroutines without external synchronization.
package graph
