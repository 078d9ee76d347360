// cmd/bugzoo/daemon.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/squareslab/bugzood/internal/client"
	"github.com/squareslab/bugzood/internal/daemon/config"
	"github.com/squareslab/bugzood/internal/output"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect the bugzood daemon",
	}

	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonLogsCmd())

	return cmd
}

func newDaemonStatusCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := client.ResolveAddress()
			if err != nil {
				return err
			}
			if !client.IsDaemonRunningAt(addr) {
				output.Error("Daemon is not running at %s", addr)
				output.Info("Start it with: bugzood")
				os.Exit(1)
			}

			c, err := client.NewWithAddress(addr)
			if err != nil {
				return err
			}
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("daemon at %s is not healthy: %w", addr, err)
			}

			output.Success("Daemon is running at %s", addr)

			if dataDir == "" {
				dataDir = config.DefaultDataDir()
			}
			if pid, err := os.ReadFile(filepath.Join(dataDir, "bugzood.pid")); err == nil {
				output.Info("  pid: %s", strings.TrimSpace(string(pid)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.bugzood)")
	return cmd
}

func newDaemonLogsCmd() *cobra.Command {
	var (
		follow  bool
		tail    int
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View daemon logs",
		Long: `View logs from the bugzood daemon.

The daemon writes structured logs to ~/.bugzood/bugzood.log while
running. Use -f to stream new entries as runs execute.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				dataDir = config.DefaultDataDir()
			}
			logPath := filepath.Join(dataDir, "bugzood.log")

			if follow {
				return followLogs(cmd.Context(), logPath)
			}

			lines, err := output.ReadLastLines(logPath, tail)
			if err != nil {
				return err
			}
			for _, line := range lines {
				printLogLine(os.Stdout, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&tail, "tail", "n", 100, "Number of lines to show from the end")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.bugzood)")

	return cmd
}

// followLogs streams the daemon log like tail -f, surviving rotation.
func followLogs(ctx context.Context, logPath string) error {
	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no log file at %s (is the daemon running?)", logPath)
		}
		return fmt.Errorf("failed to open log file: %w", err)
	}

	// Start a little before the end for context, skipping the partial
	// line the seek may land in.
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	var startPos int64
	if stat.Size() > 8192 {
		startPos = stat.Size() - 8192
	}
	if _, err := file.Seek(startPos, io.SeekStart); err != nil {
		file.Close()
		return fmt.Errorf("failed to seek in log file: %w", err)
	}
	reader := bufio.NewReader(file)
	if startPos > 0 {
		_, _, _ = reader.ReadLine()
	}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		printLogLine(os.Stdout, scanner.Text())
	}
	currentPos, _ := file.Seek(0, io.SeekCurrent)
	file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(logPath); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	fmt.Fprintln(os.Stderr, color.CyanString("Following daemon logs (Ctrl+C to stop)..."))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if event.Op&fsnotify.Write == fsnotify.Write {
				currentPos = dumpFrom(logPath, currentPos)
			}
		case err := <-watcher.Errors:
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		case <-time.After(100 * time.Millisecond):
			// Reset on rotation or truncation.
			newStat, statErr := os.Stat(logPath)
			if statErr != nil || newStat.Size() < currentPos {
				currentPos = 0
				_ = watcher.Remove(logPath)
				_ = watcher.Add(logPath)
			}
		}
	}
}

// dumpFrom prints log content from pos to EOF and returns the new position.
func dumpFrom(logPath string, pos int64) int64 {
	file, err := os.Open(logPath)
	if err != nil {
		return pos
	}
	defer file.Close()

	if _, err := file.Seek(pos, io.SeekStart); err != nil {
		return pos
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		printLogLine(os.Stdout, scanner.Text())
	}
	newPos, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return pos
	}
	return newPos
}

// printLogLine colorizes a slog text line by its level marker.
func printLogLine(w io.Writer, line string) {
	switch {
	case strings.Contains(line, "level=ERROR"):
		color.New(color.FgRed).Fprintln(w, line)
	case strings.Contains(line, "level=WARN"):
		color.New(color.FgYellow).Fprintln(w, line)
	case strings.Contains(line, "level=DEBUG"):
		color.New(color.FgHiBlack).Fprintln(w, line)
	default:
		fmt.Fprintln(w, line)
	}
}
