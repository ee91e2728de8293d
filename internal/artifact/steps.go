package artifact

import (
	"regexp"
	"strconv"
	"strings"
)

// Step is one numbered entry of the plan.
type Step struct {
	Number int
	Title  string
	Body   string
}

// Content renders the step the way it is handed to the executing agent.
func (s Step) Content() string {
	if s.Body == "" {
		return s.Title
	}
	if s.Title == "" {
		return s.Body
	}
	return s.Title + "\n" + s.Body
}

var (
	stepHeading     = regexp.MustCompile(`(?i)^(#{1,6})\s*step\s*(\d+)\s*[.:)\-]?\s*(.*)$`)
	numberedHeading = regexp.MustCompile(`^(#{1,6})\s*(\d+)\s*[.:)\-]\s*(.*)$`)
	stepItem        = regexp.MustCompile(`^(\d+)[.)]\s+(.*)$`)
)

// ParseSteps extracts the numbered steps of a plan. Headings such as
// "## Step 2: Wire the store" win; once a plan has one, other numbered
// headings like "## 1. Overview" are ordinary sections. Plans without step
// headings fall back to numbered headings ("## 2. Wire the store") and then
// to top-level numbered list items.
func ParseSteps(plan string) []Step {
	lines := strings.Split(strings.ReplaceAll(plan, "\r\n", "\n"), "\n")
	if steps := parseHeadingSteps(lines, stepHeading); len(steps) > 0 {
		return steps
	}
	if steps := parseHeadingSteps(lines, numberedHeading); len(steps) > 0 {
		return steps
	}
	return parseListSteps(lines)
}

// StepAt returns the step numbered n.
func StepAt(plan string, n int) (Step, bool) {
	for _, step := range ParseSteps(plan) {
		if step.Number == n {
			return step, true
		}
	}
	return Step{}, false
}

// stepNumber accepts positive numbers that fit an int.
func stepNumber(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseHeadingSteps(lines []string, pattern *regexp.Regexp) []Step {
	var (
		steps   []Step
		current *Step
		level   int
		body    []string
		fenced  bool
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		steps = append(steps, *current)
		current = nil
		body = nil
	}
	for _, line := range lines {
		if isFence(line) {
			fenced = !fenced
		}
		if !fenced {
			if m := pattern.FindStringSubmatch(line); m != nil {
				if number, ok := stepNumber(m[2]); ok {
					flush()
					level = len(m[1])
					current = &Step{Number: number, Title: strings.TrimSpace(m[3])}
					continue
				}
			}
			if current != nil && headingLevel(line) > 0 && headingLevel(line) <= level {
				flush()
				continue
			}
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return steps
}

func parseListSteps(lines []string) []Step {
	var (
		steps   []Step
		current *Step
		body    []string
		fenced  bool
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		steps = append(steps, *current)
		current = nil
		body = nil
	}
	for _, line := range lines {
		if isFence(line) {
			fenced = !fenced
		}
		if !fenced {
			if m := stepItem.FindStringSubmatch(line); m != nil {
				if number, ok := stepNumber(m[1]); ok {
					flush()
					current = &Step{Number: number, Title: strings.TrimSpace(m[2])}
					continue
				}
			}
			indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
			if current != nil && strings.TrimSpace(line) != "" && !indented {
				flush()
				continue
			}
		}
		if current != nil {
			body = append(body, strings.TrimSpace(line))
		}
	}
	flush()
	return steps
}

func headingLevel(line string) int {
	trimmed := strings.TrimLeft(line, "#")
	level := len(line) - len(trimmed)
	if level == 0 || level > 6 || !strings.HasPrefix(trimmed, " ") {
		return 0
	}
	return level
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}
