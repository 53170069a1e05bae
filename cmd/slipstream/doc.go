// Package main hosts the slipstream CLI entrypoint and command graph.
//
// The Cobra command tree opens discs, prints their volume descriptor and
// title layout, streams decrypted ISO backups, and watches a drive for new
// media. It centralizes configuration resolution and structured logging setup
// so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: new behavior belongs in the internal packages
// first, surfaced here through dedicated commands or flags.
package main
