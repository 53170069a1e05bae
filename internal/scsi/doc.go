// Package scsi speaks the USB Mass Storage Bulk-Only transport to external
// DVD drives and builds the handful of MMC commands needed to read 2048-byte
// data sectors and query copy protection.
package scsi
