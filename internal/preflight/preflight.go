package preflight

import (
	"errors"
	"fmt"
	"strings"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Request names what a backup is about to touch.
type Request struct {
	Target    string
	OutputDir string
	// ImageBytes is the expected image size; zero skips the space check.
	ImageBytes int64
}

// RunAll executes the checks that apply to req.
func RunAll(req Request) []Result {
	results := []Result{
		CheckDeviceAccess("Device", req.Target),
		CheckDirectoryAccess("Output directory", req.OutputDir),
	}
	if req.ImageBytes > 0 {
		results = append(results, CheckFreeSpace("Free space", req.OutputDir, req.ImageBytes))
	}
	return results
}

// Err joins the failed results into one error, or returns nil when every
// check passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New("preflight failed: " + strings.Join(failed, "; "))
}
