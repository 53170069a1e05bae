// Package notifications sends ntfy push messages about backups.
//
// NewService returns a no-op Service when no topic is configured, so callers
// publish unconditionally. Delivery failures are returned to the caller, which
// logs them; a failed notification never fails a backup.
package notifications
