// Package prompt resolves the templated prompts sent to the agents. Templates
// ship embedded in the binary and can be overridden per project by dropping a
// file with the same name into the workdir's prompts directory.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

//go:embed templates/*.md
var embedded embed.FS

const (
	embeddedDir = "templates"
	extension   = ".md"
)

// Template identifiers, one per phase action.
const (
	RefineGoal      = "01_refine_goal"
	WritePlan       = "02_write_plan"
	ReviewPlan      = "03_review_plan"
	RespondComments = "04_respond_comments"
	ExecuteStep     = "05_execute_step"
	RecoverContext  = "06_recover_context"
)

// IDs lists the built-in template identifiers in workflow order.
func IDs() []string {
	return []string{RefineGoal, WritePlan, ReviewPlan, RespondComments, ExecuteStep, RecoverContext}
}

// ErrTemplateNotFound is returned when neither an override nor an embedded
// template exists for an id.
var ErrTemplateNotFound = errors.New("prompt: template not found")

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Substitute replaces {{name}} placeholders with values from vars. Names
// without a value are left untouched.
func Substitute(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Source tells where a template was loaded from.
type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceProject  Source = "project"
)

// Entry describes one available template.
type Entry struct {
	ID     string
	Source Source
	Path   string
}

// Library loads templates, preferring project overrides.
type Library struct {
	dir string
}

// NewLibrary creates a library reading overrides from dir. An empty dir
// disables overrides.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Dir returns the override directory.
func (l *Library) Dir() string {
	return l.dir
}

// Load returns the raw template text for id.
func (l *Library) Load(id string) (string, Source, error) {
	if err := validateID(id); err != nil {
		return "", "", err
	}
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, id+extension))
		if err == nil {
			return string(data), SourceProject, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("prompt: read override %s: %w", id, err)
		}
	}
	data, err := embedded.ReadFile(path.Join(embeddedDir, id+extension))
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return string(data), SourceEmbedded, nil
}

// Resolve loads id and substitutes vars into it.
func (l *Library) Resolve(id string, vars map[string]string) (string, error) {
	text, _, err := l.Load(id)
	if err != nil {
		return "", err
	}
	return Substitute(text, vars), nil
}

// List returns every available template sorted by id. Overrides replace the
// embedded entry with the same id; extra override files are listed too.
func (l *Library) List() ([]Entry, error) {
	entries := map[string]Entry{}
	names, err := doublestar.Glob(embedded, embeddedDir+"/*"+extension)
	if err != nil {
		return nil, fmt.Errorf("prompt: list embedded templates: %w", err)
	}
	for _, name := range names {
		id := strings.TrimSuffix(path.Base(name), extension)
		entries[id] = Entry{ID: id, Source: SourceEmbedded, Path: name}
	}
	overrides, err := l.overrides()
	if err != nil {
		return nil, err
	}
	for _, name := range overrides {
		id := strings.TrimSuffix(name, extension)
		entries[id] = Entry{ID: id, Source: SourceProject, Path: filepath.Join(l.dir, name)}
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Library) overrides() ([]string, error) {
	if l.dir == "" {
		return nil, nil
	}
	info, err := os.Stat(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("prompt: stat override dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompt: override path %s is not a directory", l.dir)
	}
	names, err := doublestar.Glob(os.DirFS(l.dir), "*"+extension)
	if err != nil {
		return nil, fmt.Errorf("prompt: list overrides: %w", err)
	}
	return names, nil
}

// Eject copies the embedded templates into the override directory so they
// can be edited. Existing files are left alone. It returns the written paths.
func (l *Library) Eject() ([]string, error) {
	if l.dir == "" {
		return nil, fmt.Errorf("prompt: no override directory configured")
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("prompt: ensure override dir: %w", err)
	}
	var written []string
	for _, id := range IDs() {
		target := filepath.Join(l.dir, id+extension)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := embedded.ReadFile(path.Join(embeddedDir, id+extension))
		if err != nil {
			return written, fmt.Errorf("prompt: read embedded %s: %w", id, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("prompt: write %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("prompt: invalid template id %q", id)
	}
	return nil
}
