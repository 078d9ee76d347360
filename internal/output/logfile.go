// internal/output/logfile.go
package output

import (
	"bufio"
	"os"
)

// DefaultLogLines is the default number of lines to read from log files.
const DefaultLogLines = 20

// ReadLastLines reads the last n lines from a file. Used by
// 'bugzoo daemon logs' against the daemon log.
func ReadLastLines(filePath string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultLogLines
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FileNotFoundError{Path: filePath}
		}
		if os.IsPermission(err) {
			return nil, &PermissionDeniedError{Path: filePath}
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		return nil, &EmptyFileError{Path: filePath}
	}

	if len(lines) <= n {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

// FileNotFoundError indicates the log file does not exist.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return "no log file found at " + e.Path
}

// PermissionDeniedError indicates the log file cannot be read due to permissions.
type PermissionDeniedError struct {
	Path string
}

func (e *PermissionDeniedError) Error() string {
	return "cannot read log file: permission denied at " + e.Path
}

// EmptyFileError indicates the log file is empty.
type EmptyFileError struct {
	Path string
}

func (e *EmptyFileError) Error() string {
	return "log file is empty at " + e.Path
}
