package disc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"slipstream/internal/iso9660"
)

// DriveInfo describes one optical drive found on the system.
type DriveInfo struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Vendor   string      `json:"vendor,omitempty"`
	Model    string      `json:"model,omitempty"`
	Status   DriveStatus `json:"-"`
	StatusID string      `json:"status"`
	VolumeID string      `json:"volume_id,omitempty"`
	Title    string      `json:"title,omitempty"`
	Generic  bool        `json:"generic_label,omitempty"`
}

// ListDrives enumerates optical drives with lsblk, then probes each for tray
// status and the loaded disc's volume identifier.
func ListDrives(ctx context.Context) ([]DriveInfo, error) {
	output, err := exec.CommandContext(ctx, "lsblk", "-P", "-d", "-o", "NAME,PATH,TYPE,VENDOR,MODEL").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run lsblk: %w", err)
	}
	drives := ParseLSBLKDrives(string(output))
	for i := range drives {
		probeDrive(&drives[i])
	}
	return drives, nil
}

// ParseLSBLKDrives parses lsblk -P output and keeps rom devices.
func ParseLSBLKDrives(output string) []DriveInfo {
	var drives []DriveInfo
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data := parseLSBLKKeyValueLine(line)
		if data["TYPE"] != "rom" {
			continue
		}
		path := data["PATH"]
		if path == "" && data["NAME"] != "" {
			path = "/dev/" + data["NAME"]
		}
		drives = append(drives, DriveInfo{
			Name:   data["NAME"],
			Path:   path,
			Vendor: data["VENDOR"],
			Model:  data["MODEL"],
		})
	}
	return drives
}

// parseLSBLKKeyValueLine splits KEY="value" pairs. Values may contain spaces.
func parseLSBLKKeyValueLine(line string) map[string]string {
	result := make(map[string]string)
	for len(line) > 0 {
		line = strings.TrimLeft(line, " \t")
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		key := strings.TrimSpace(line[:eq])
		rest := line[eq+1:]
		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				value, line = rest[1:], ""
			} else {
				value, line = rest[1:end+1], rest[end+2:]
			}
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				value, line = rest, ""
			} else {
				value, line = rest[:end], rest[end:]
			}
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}

func probeDrive(info *DriveInfo) {
	status, err := CheckDriveStatus(info.Path)
	info.Status = status
	info.StatusID = status.String()
	if err != nil || status != DriveStatusDiscOK {
		return
	}
	f, err := os.Open(info.Path)
	if err != nil {
		return
	}
	defer f.Close()
	pvd, err := iso9660.ReadVolumeDescriptor(f)
	if err != nil {
		return
	}
	info.VolumeID = pvd.VolumeID
	info.Title = DisplayTitle(pvd.VolumeID)
	info.Generic = IsUnusableLabel(pvd.VolumeID)
}
