package instrument

import "fmt"

// ParseSignalID parses a signal ID into file, line, and optional branch.
// Signal format: file:line or file:line:branch. The split walks from the
// end of the string rather than splitting on every colon, since a file
// path may itself contain colons (e.g. a Windows drive letter).
func ParseSignalID(signalID string) (file string, line int, branch string, err error) {
	lastColon := -1
	secondLastColon := -1

	for i := len(signalID) - 1; i >= 0; i-- {
		if signalID[i] == ':' {
			if lastColon == -1 {
				lastColon = i
			} else if secondLastColon == -1 {
				secondLastColon = i
				break
			}
		}
	}

	if lastColon == -1 {
		return "", 0, "", fmt.Errorf("invalid signal ID format: %s", signalID)
	}

	if secondLastColon != -1 {
		file = signalID[:secondLastColon]
		lineStr := signalID[secondLastColon+1 : lastColon]
		branch = signalID[lastColon+1:]

		line, err = parseLineNumber(lineStr)
		if err != nil {
			return "", 0, "", fmt.Errorf("invalid line number in signal ID %s: %w", signalID, err)
		}
	} else {
		file = signalID[:lastColon]
		lineStr := signalID[lastColon+1:]

		line, err = parseLineNumber(lineStr)
		if err != nil {
			return "", 0, "", fmt.Errorf("invalid line number in signal ID %s: %w", signalID, err)
		}
	}

	return file, line, branch, nil
}

func parseLineNumber(s string) (int, error) {
	var line int
	_, err := fmt.Sscanf(s, "%d", &line)
	if err != nil {
		return 0, fmt.Errorf("failed to parse line number: %w", err)
	}
	if line < 1 {
		return 0, fmt.Errorf("line number must be positive, got %d", line)
	}
	return line, nil
}
