package backup

import (
	"path/filepath"
	"strings"
)

const (
	// ImageExt is appended to the volume id to name the output.
	ImageExt = ".ISO"
	// TempExt marks an output that has not been finalized.
	TempExt = ".tmp"
	// UntitledName replaces a blank volume id.
	UntitledName = "UNTITLED"
)

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// OutputName derives the image file name from a volume id.
func OutputName(volumeID string) string {
	name := nameReplacer.Replace(strings.TrimSpace(volumeID))
	if strings.TrimSpace(name) == "" {
		name = UntitledName
	}
	return name + ImageExt
}

// OutputPaths returns the final and temporary paths for a volume id in dir.
func OutputPaths(dir, volumeID string) (final, temp string) {
	final = filepath.Join(dir, OutputName(volumeID))
	return final, final + TempExt
}
