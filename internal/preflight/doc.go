// Package preflight checks that a backup can start before any sector is
// read: the device is readable, the output directory is writable, and the
// filesystem has room for the image.
//
// The CLI runs RunAll ahead of every backup and prints the results; a failed
// check stops the backup with the check's detail.
package preflight
