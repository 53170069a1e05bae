// Package watch listens for udev netlink events and reports disc insertions
// on one drive.
//
// A Monitor matches block change/add events carrying ID_CDROM_MEDIA=1 and
// hands the device path to a Handler on its own goroutine. Events that
// arrive while a handler is still running are dropped, so a drive is never
// backed up twice at once.
package watch
