package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"slipstream/internal/config"
	"slipstream/internal/disc"
	"slipstream/internal/history"
	"slipstream/internal/logging"
)

type globalFlags struct {
	config   string
	logLevel string
	verbose  bool
	json     bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the configured logger with the command-line level
// override applied.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		effective := *cfg
		switch {
		case c.flags.verbose:
			effective.Logging.Level = "debug"
		case strings.TrimSpace(c.flags.logLevel) != "":
			effective.Logging.Level = strings.ToLower(strings.TrimSpace(c.flags.logLevel))
		}
		c.logger, c.loggerErr = logging.NewFromConfig(&effective)
	})
	return c.logger, c.loggerErr
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.flags.json
}

// resolveTarget picks the positional target or the configured default.
func (c *commandContext) resolveTarget(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if target := strings.TrimSpace(cfg.Device.DefaultTarget); target != "" {
		return target, nil
	}
	return "", fmt.Errorf("no target given and device.default_target is empty")
}

func (c *commandContext) newDrive() (*disc.Drive, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	backend, err := disc.ParseBackend(cfg.Device.Backend)
	if err != nil {
		return nil, err
	}
	return disc.NewDrive(disc.DriveOptions{
		Backend: backend,
		LockDir: cfg.LockDir(),
		Logger:  logger,
	}), nil
}

// withSession opens target for the duration of fn.
func (c *commandContext) withSession(target string, fn func(*disc.Session) error) error {
	drive, err := c.newDrive()
	if err != nil {
		return err
	}
	defer drive.Close()
	session, _, err := drive.Open(target)
	if err != nil {
		return describeFailure(err)
	}
	return fn(session)
}

func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.HistoryPath())
}

// describeFailure prefixes err with its user-facing category.
func describeFailure(err error) error {
	if err == nil {
		return nil
	}
	category := disc.Classify(err)
	if category == "" || category == disc.CategoryUnknown {
		return err
	}
	return fmt.Errorf("%s: %w", category, err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
