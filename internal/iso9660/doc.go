// Package iso9660 reads ISO-9660 volume metadata straight from a block
// device or image without mounting it.
//
// It parses the primary volume descriptor for geometry and identifying
// strings, and walks directory records to report each file's starting
// sector and length. Everything goes through an io.ReaderAt so the same code
// serves raw drives, image files, and in-memory test images.
package iso9660
