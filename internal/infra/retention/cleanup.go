package retention

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

const logTimestampLayout = "2006-01-02 15:04:05"

// Matches a leading timestamp, logrus text output (time="...") or logrus JSON output ("time":"...").
var logTimestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2})`),
	regexp.MustCompile(`^time="(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2})`),
	regexp.MustCompile(`"time":"(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2})`),
}

// LogFile is a log file and how many days of it to keep.
type LogFile struct {
	Path          string
	RetentionDays int
}

// Policy lists what to clean after a run.
type Policy struct {
	OutputDir           string
	OutputRetentionDays int
	LogFiles            []LogFile
}

// Cleaner applies a Policy. Failures are logged, never returned.
type Cleaner struct {
	policy Policy
	loc    *time.Location
	logger *logrus.Entry
	// OnRotated is called after a log file was replaced, so open writers can reopen it.
	OnRotated func(path string)
}

func NewCleaner(policy Policy, loc *time.Location, logger *logrus.Entry) *Cleaner {
	if loc == nil {
		loc = time.Local
	}
	return &Cleaner{policy: policy, loc: loc, logger: logger}
}

// Cleanup implements app.Cleaner.
func (c *Cleaner) Cleanup(now time.Time) {
	c.logger.Infof("Cleaning up files older than: output=%d days", c.policy.OutputRetentionDays)
	if _, err := CleanupOutputDir(c.policy.OutputDir, c.policy.OutputRetentionDays, now, c.logger); err != nil {
		c.logger.WithError(err).Error("Output directory cleanup failed")
	}
	for _, lf := range c.policy.LogFiles {
		removed, _, err := CleanupLogFile(lf.Path, lf.RetentionDays, now, c.loc, c.logger)
		if err != nil {
			c.logger.WithError(err).WithField("log_file", lf.Path).Error("Log file cleanup failed")
			continue
		}
		if removed > 0 && c.OnRotated != nil {
			c.OnRotated(lf.Path)
		}
	}
}

// CleanupOutputDir removes direct children of dir whose modification time is older
// than days. A missing directory is not an error. Returns the number removed.
func CleanupOutputDir(dir string, days int, now time.Time, logger *logrus.Entry) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("Output directory %s does not exist", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	cutoff := now.AddDate(0, 0, -days)
	removed := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			logger.WithError(err).Errorf("Failed to stat %s", e.Name())
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logger.WithError(err).Errorf("Failed to remove %s", e.Name())
			continue
		}
		logger.Infof("Removed old output item: %s", e.Name())
		removed++
	}
	logger.Infof("Removed %d old items from output directory", removed)
	return removed, nil
}

// CleanupLogFile drops lines whose timestamp is older than days. Lines without a
// parsable timestamp are kept. The file is replaced atomically, and only when
// something was removed.
func CleanupLogFile(path string, days int, now time.Time, loc *time.Location, logger *logrus.Entry) (removed, kept int, err error) {
	in, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("Log file %s does not exist", path)
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat log file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create temp log file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	cutoff := now.AddDate(0, 0, -days)
	w := bufio.NewWriter(tmp)
	r := bufio.NewReader(in)
	for {
		line, readErr := r.ReadString('\n')
		if line != "" {
			if ts, ok := parseLogTimestamp(line, loc); ok && ts.Before(cutoff) {
				removed++
			} else {
				if _, err := w.WriteString(line); err != nil {
					tmp.Close()
					return 0, 0, fmt.Errorf("failed to write temp log file: %w", err)
				}
				kept++
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return 0, 0, fmt.Errorf("failed to read log file: %w", readErr)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, 0, fmt.Errorf("failed to flush temp log file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close temp log file: %w", err)
	}

	if removed == 0 {
		logger.Infof("No old entries in log file %s, kept %d entries", filepath.Base(path), kept)
		return 0, kept, nil
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return 0, 0, fmt.Errorf("failed to chmod temp log file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, 0, fmt.Errorf("failed to replace log file: %w", err)
	}

	logger.Infof("Removed %d old entries from log file %s, kept %d entries", removed, filepath.Base(path), kept)
	return removed, kept, nil
}

func parseLogTimestamp(line string, loc *time.Location) (time.Time, bool) {
	for _, re := range logTimestampPatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := m[1]
		if raw[10] == 'T' {
			raw = raw[:10] + " " + raw[11:]
		}
		ts, err := time.ParseInLocation(logTimestampLayout, raw, loc)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	return time.Time{}, false
}
