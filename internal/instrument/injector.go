package instrument

import "fmt"

// FormatSignalID generates a signal ID for a coverage point.
// Format: {file}:{line} or {file}:{line}:{branch}
func FormatSignalID(file string, line int, branch string) string {
	if branch == "" {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return fmt.Sprintf("%s:%d:%s", file, line, branch)
}
