// Package disc reads DVD-Video discs sector by sector from a raw device.
//
// A Drive owns at most one Session. The Session holds the opened Device, the
// primary volume descriptor parsed at open time, and a StreamReader that
// switches between plain, MPEG, and key-establishing seeks as reads cross
// title boundaries. Backends cover libdvdcss (build tag dvdcss), plain block
// devices or image files, and USB mass-storage drives driven over SCSI.
//
// The package also enumerates optical drives, reports tray status, and
// ejects media.
package disc
