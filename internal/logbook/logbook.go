package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Kind groups journey entries by what happened in the collaboration.
type Kind string

const (
	KindSession  Kind = "session"
	KindPhase    Kind = "phase"
	KindExchange Kind = "exchange"
	KindReview   Kind = "review"
	KindStep     Kind = "step"
)

// Entry is one line of the journey.
type Entry struct {
	Time    time.Time
	Level   Level
	Kind    Kind
	Message string
}

// String renders the entry as a markdown list item.
func (e Entry) String() string {
	return fmt.Sprintf("- %s %-5s %-8s %s",
		e.Time.UTC().Format(time.RFC3339),
		string(e.Level),
		string(e.Kind),
		strings.Join(strings.Fields(e.Message), " "),
	)
}

// Short renders the entry for narrow panels.
func (e Entry) Short() string {
	return fmt.Sprintf("%s %-8s %s", e.Time.Local().Format("15:04:05"), string(e.Kind), e.Message)
}

// ParseEntry reads a line written by the logbook back into an Entry.
func ParseEntry(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[0] != "-" {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		Time:    ts,
		Level:   Level(fields[2]),
		Kind:    Kind(fields[3]),
		Message: strings.Join(fields[4:], " "),
	}, true
}

// Logbook keeps the human-readable journey of a collaboration in log.md:
// sessions, phase changes, agent exchanges, review rounds and executed steps.
type Logbook struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.now = clock
		}
	}
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	l := &Logbook{path: path, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. A zero Time is stamped with the clock.
func (l *Logbook) Append(entry Entry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.Time.IsZero() {
		entry.Time = l.now()
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(entry.String() + "\n")
}

// SessionOpened notes the start of an interactive session.
func (l *Logbook) SessionOpened(phase string) {
	l.Append(Entry{Kind: KindSession, Message: fmt.Sprintf("opened in phase %s", phase)})
}

// SessionLost notes an agent session that could not be resumed.
func (l *Logbook) SessionLost(role, handle string) {
	l.Append(Entry{Level: LevelWarn, Kind: KindSession, Message: fmt.Sprintf("%s session %s could not be resumed", role, handle)})
}

// Transition records a committed phase change.
func (l *Logbook) Transition(from, to string) {
	l.Append(Entry{Kind: KindPhase, Message: fmt.Sprintf("%s -> %s", from, to)})
}

// Exchange records one agent round trip. A non-nil err marks it failed.
func (l *Logbook) Exchange(role, template string, chars int, err error) {
	if err != nil {
		l.Append(Entry{Level: LevelError, Kind: KindExchange, Message: fmt.Sprintf("%s %s failed: %v", role, template, err)})
		return
	}
	l.Append(Entry{Kind: KindExchange, Message: fmt.Sprintf("%s %s replied (%d chars)", role, template, chars)})
}

// ReviewRound records the verdict of review round n.
func (l *Logbook) ReviewRound(n int, approved bool) {
	verdict := "changes requested"
	if approved {
		verdict = "approved"
	}
	l.Append(Entry{Kind: KindReview, Message: fmt.Sprintf("round %d: %s", n, verdict)})
}

// BudgetReached records that the review loop stopped without approval.
func (l *Logbook) BudgetReached(limit int) {
	l.Append(Entry{Level: LevelWarn, Kind: KindReview, Message: fmt.Sprintf("iteration budget of %d reached without approval", limit)})
}

// StepExecuted records a plan step handed to the planner.
func (l *Logbook) StepExecuted(n int) {
	l.Append(Entry{Kind: KindStep, Message: fmt.Sprintf("step %d executed", n)})
}

// Tail returns up to maxLines of the most recent entries along with the total
// number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Recent returns up to n of the most recent entries. Lines that were not
// written by the logbook are skipped.
func (l *Logbook) Recent(n int) []Entry {
	lines, _ := l.Tail(n)
	if len(lines) == 0 {
		return nil
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := ParseEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}
