// Package cli validates the host tools the hotkey manager shells out
// to.
package cli

import (
	"fmt"
	"os/exec"
	"strings"
)

// Prerequisite is an external command the application depends on.
type Prerequisite struct {
	Name        string // Command name (e.g., "sh", "pgrep")
	Required    bool   // Whether the tool is required to run at all
	Description string // Human-readable description
}

// DefaultPrerequisites returns the host tools hotki uses.
func DefaultPrerequisites() []Prerequisite {
	return []Prerequisite{
		{
			Name:        "sh",
			Required:    true,
			Description: "POSIX shell, runs key binding commands",
		},
		{
			Name:        "pgrep",
			Required:    false,
			Description: "process lookup, finds orphaned servers",
		},
		{
			Name:        "ps",
			Required:    false,
			Description: "process listing, describes orphaned servers",
		},
	}
}

// CheckResult contains the result of checking a prerequisite.
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Error        error
}

// Check verifies that a command is available in PATH.
func Check(prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := exec.LookPath(prereq.Name)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path
	return result
}

// CheckAll verifies all prerequisites and returns the results.
func CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = Check(prereq)
	}
	return results
}

// ValidateRequired checks that every required tool is present. It
// returns nil when they all are, otherwise an error naming what is
// missing.
func ValidateRequired(prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		result := Check(prereq)
		if !result.Found {
			missing = append(missing, fmt.Sprintf("  - %s (%s)", prereq.Name, prereq.Description))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// FormatCheckResults formats check results for display.
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("Host tools:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		sb.WriteString(fmt.Sprintf("  %s %s", status, r.Prerequisite.Name))
		if r.Found {
			sb.WriteString(fmt.Sprintf(" (%s)", r.Path))
		} else if r.Prerequisite.Required {
			sb.WriteString(" [REQUIRED]")
		} else {
			sb.WriteString(" [optional]")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
