// Package backup streams an opened disc into an ISO image.
//
// The Orchestrator walks a fixed state machine: it reads the volume
// descriptor, cracks title keys when the disc is scrambled, copies every
// sector through the session's stream reader, and renames the finished
// temporary file into place. Failures leave the temporary file on disk.
//
// Start runs the same work on its own goroutine and exposes progress through
// a single-slot channel that always holds the most recent value.
package backup
