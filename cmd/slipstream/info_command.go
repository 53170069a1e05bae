package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slipstream/internal/disc"
	"slipstream/internal/history"
	"slipstream/internal/iso9660"
	"slipstream/internal/logging"
)

type infoFile struct {
	Path     string `json:"path"`
	LBA      int    `json:"lba"`
	Sectors  int    `json:"sectors"`
	Size     int64  `json:"size"`
	Dir      bool   `json:"dir,omitempty"`
	Recorded string `json:"recorded,omitempty"`
}

type infoOutput struct {
	Target     string               `json:"target"`
	Title      string               `json:"title"`
	Scrambled  bool                 `json:"scrambled"`
	DiscID     string               `json:"disc_id,omitempty"`
	Descriptor []iso9660.FieldValue `json:"descriptor"`
	Titles     []disc.TitleRange    `json:"titles"`
	Files      []infoFile           `json:"files,omitempty"`
	LastBackup *history.Entry       `json:"last_backup,omitempty"`
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var showFiles bool

	cmd := &cobra.Command{
		Use:   "info [target]",
		Short: "Show the volume descriptor, title layout, and disc id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.resolveTarget(args)
			if err != nil {
				return err
			}
			return ctx.withSession(target, func(s *disc.Session) error {
				info, err := collectInfo(s, showFiles)
				if err != nil {
					return describeFailure(err)
				}
				info.LastBackup = ctx.lastBackup(cmd.Context(), info.DiscID)
				if ctx.JSONMode() {
					return writeJSON(cmd, info)
				}
				renderInfo(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showFiles, "files", false, "List every file on the disc")
	return cmd
}

func collectInfo(s *disc.Session, withFiles bool) (infoOutput, error) {
	pvd := s.VolumeDescriptor()
	info := infoOutput{
		Target:     s.Target(),
		Title:      disc.DisplayTitle(pvd.VolumeID),
		Scrambled:  s.IsScrambled(),
		Descriptor: pvd.Fields(),
	}
	titles, err := s.TitleRanges()
	if err != nil {
		return info, err
	}
	info.Titles = titles
	if info.Titles == nil {
		info.Titles = []disc.TitleRange{}
	}
	if id, err := s.ComputeCRCID(); err == nil {
		info.DiscID = id.String()
	}
	if withFiles {
		for entry, err := range s.FileSystem().Walk("/", true) {
			if err != nil {
				return info, err
			}
			file := infoFile{
				Path:    entry.Path,
				LBA:     entry.LBA,
				Sectors: entry.Sectors,
				Size:    entry.Size,
				Dir:     entry.Dir,
			}
			if !entry.Recorded.IsZero() {
				file.Recorded = entry.Recorded.Format("2006-01-02 15:04:05")
			}
			info.Files = append(info.Files, file)
		}
	}
	return info, nil
}

// lastBackup returns the newest successful backup of discID, or nil. A
// missing history database is not created.
func (c *commandContext) lastBackup(ctx context.Context, discID string) *history.Entry {
	cfg, err := c.ensureConfig()
	if err != nil || discID == "" {
		return nil
	}
	if _, err := os.Stat(cfg.HistoryPath()); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	store, err := c.openHistory()
	if err != nil {
		return nil
	}
	defer store.Close()
	entries, err := store.FindByDiscID(ctx, discID)
	if err != nil {
		if logger, lerr := c.ensureLogger(); lerr == nil {
			logger.Debug("history lookup failed", logging.Error(err))
		}
		return nil
	}
	for i := range entries {
		if entries[i].Status == history.StatusDone {
			return &entries[i]
		}
	}
	return nil
}

func renderInfo(out io.Writer, info infoOutput) {
	fmt.Fprintf(out, "%s (%s)\n", info.Title, info.Target)
	fmt.Fprintf(out, "Scrambled: %s\n", yesNo(info.Scrambled))
	if info.DiscID != "" {
		fmt.Fprintf(out, "Disc ID: %s\n", info.DiscID)
	}
	if b := info.LastBackup; b != nil {
		fmt.Fprintf(out, "Last backup: %s (%s)\n", b.OutputPath, humanize.Time(b.FinishedAt))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, renderFields(info.Descriptor))

	if len(info.Titles) == 0 {
		fmt.Fprintln(out, "No title files found under VIDEO_TS")
	} else {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(info.Titles))
		for _, t := range info.Titles {
			rows = append(rows, []string{
				t.File,
				strconv.Itoa(t.Start),
				strconv.Itoa(t.End),
				strconv.Itoa(t.Sectors()),
				humanize.IBytes(uint64(t.Sectors()) * disc.SectorSize),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]column{textCol("Title File"), numCol("Start"), numCol("End"), numCol("Sectors"), numCol("Size")},
			rows,
		))
	}

	if len(info.Files) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(info.Files))
		for _, f := range info.Files {
			size := humanize.IBytes(uint64(f.Size))
			if f.Dir {
				size = "<dir>"
			}
			rows = append(rows, []string{f.Path, strconv.Itoa(f.LBA), size, f.Recorded})
		}
		fmt.Fprintln(out, renderTable(
			[]column{textCol("Path"), numCol("LBA"), numCol("Size"), textCol("Recorded")},
			rows,
		))
	}
}
