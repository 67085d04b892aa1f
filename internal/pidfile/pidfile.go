// Package pidfile manages the watchdog's view of the trading process: its
// PID file and the sticky permanent-shutdown marker that survives a watchdog
// restart.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Write records pid at path, creating or truncating the file.
func Write(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

// Read returns the PID recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("pidfile: read %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: parse %s: %w", path, err)
	}
	return pid, nil
}

// Remove deletes the PID file, ignoring a not-exist error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove %s: %w", path, err)
	}
	return nil
}

// MarkerExists reports whether the permanent-shutdown marker file is present.
func MarkerExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteMarker creates the sticky permanent-shutdown marker, recording reason.
// Once set, the watchdog refuses to re-arm trading until a human removes it.
func WriteMarker(path, reason string) error {
	return os.WriteFile(path, []byte(reason), 0644)
}

// RemoveMarker clears the permanent-shutdown marker. Intended for manual
// operator intervention only — never called by the watchdog itself.
func RemoveMarker(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove marker %s: %w", path, err)
	}
	return nil
}
