package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StdoutPath selects standard output as the destination.
const StdoutPath = "-"

// WriteOutput writes content to path, or to stdout when path is "-". File
// writes go through a temporary file and a rename so readers never observe a
// partial document.
func WriteOutput(path, content string, stdout io.Writer) error {
	if path == StdoutPath {
		_, err := io.WriteString(stdout, content)
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.WriteString(content)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0o644)
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write output: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
