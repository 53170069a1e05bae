// Package discid computes stable identifiers for DVD-Video volumes.
//
// The default Identifier implements the Windows Media Center DVD id: a
// CRC-64 over the VIDEO_TS file listing and the leading bytes of the video
// manager and first title set IFO files.
package discid
