package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	out := Substitute("plan {{plan_path}} vs {{comments_path}} and {{ spaced }}", map[string]string{
		"plan_path": "/tmp/plan.md",
	})
	assert.Equal(t, "plan /tmp/plan.md vs {{comments_path}} and {{ spaced }}", out)
	assert.Equal(t, "{{x}}", Substitute("{{x}}", nil))
}

func TestSubstituteDoesNotRecurse(t *testing.T) {
	out := Substitute("{{a}}", map[string]string{"a": "{{b}}", "b": "nope"})
	assert.Equal(t, "{{b}}", out)
}

func TestEmbeddedTemplatesResolve(t *testing.T) {
	lib := NewLibrary("")
	for _, id := range IDs() {
		text, source, err := lib.Load(id)
		require.NoError(t, err, id)
		assert.Equal(t, SourceEmbedded, source)
		assert.NotEmpty(t, text)
	}
	out, err := lib.Resolve(ReviewPlan, map[string]string{
		"plan_path":     "/w/plan.md",
		"comments_path": "/w/comments.md",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "/w/plan.md")
	assert.Contains(t, out, "/w/comments.md")
	assert.Contains(t, out, "[APPROVED]")
	assert.NotContains(t, out, "{{")
}

func TestRecoverTemplateUsesAllVariables(t *testing.T) {
	out, err := NewLibrary("").Resolve(RecoverContext, map[string]string{
		"plan_path":        "p",
		"plan_content":     "PLAN",
		"comments_path":    "c",
		"comments_content": "(empty)",
		"phase":            "review",
		"iteration":        "2",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "{{")
	assert.Contains(t, out, "PLAN")
}

func TestOverrideTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_write_plan.md"), []byte("custom {{plan_path}}"), 0o644))
	lib := NewLibrary(dir)
	out, err := lib.Resolve(WritePlan, map[string]string{"plan_path": "x"})
	require.NoError(t, err)
	assert.Equal(t, "custom x", out)

	_, source, err := lib.Load(RefineGoal)
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, source)
}

func TestMissingTemplate(t *testing.T) {
	_, err := NewLibrary(t.TempDir()).Resolve("99_missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))

	_, err = NewLibrary("").Resolve("../secret", nil)
	require.Error(t, err)
}

func TestListMergesOverridesAndSkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "03_review_plan.md"), []byte("mine"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "07_extra.md"), []byte("extra"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	entries, err := NewLibrary(dir).List()
	require.NoError(t, err)
	require.Len(t, entries, 7)
	ids := make([]string, 0, len(entries))
	sources := map[string]Source{}
	for _, entry := range entries {
		ids = append(ids, entry.ID)
		sources[entry.ID] = entry.Source
	}
	assert.Equal(t, append(IDs(), "07_extra"), ids)
	assert.Equal(t, SourceProject, sources[ReviewPlan])
	assert.Equal(t, SourceEmbedded, sources[RefineGoal])
}

func TestListWithMissingOverrideDir(t *testing.T) {
	entries, err := NewLibrary(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Len(t, entries, len(IDs()))
}

func TestEjectDoesNotClobber(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_refine_goal.md"), []byte("keep me"), 0o644))

	written, err := NewLibrary(dir).Eject()
	require.NoError(t, err)
	assert.Len(t, written, len(IDs())-1)

	data, err := os.ReadFile(filepath.Join(dir, "01_refine_goal.md"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	again, err := NewLibrary(dir).Eject()
	require.NoError(t, err)
	assert.Empty(t, again)
}
