package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

const echoScript = `echo "ARGS:$*"
cat`

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New("gemini", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Contains(t, err.Error(), "claude, codex")
}

func TestNewNormalizesKind(t *testing.T) {
	session, err := New(" Claude ", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "claude", session.Name())
	assert.Equal(t, "claude", session.Binary())
}

func TestClaudeEstablishesThenResumesSession(t *testing.T) {
	script := writeScript(t, echoScript)
	dir := t.TempDir()
	session, err := New("claude", dir, WithBinary(script), WithSessionIDs(func() string { return "sess-1" }))
	require.NoError(t, err)
	assert.Empty(t, session.SessionID())

	stream, err := session.Send(context.Background(), "hello")
	require.NoError(t, err)
	out, err := Collect(context.Background(), stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "ARGS:--print --session-id sess-1\nhello", out)
	assert.Equal(t, "sess-1", session.SessionID())

	stream, err = session.Send(context.Background(), "again")
	require.NoError(t, err)
	out, err = Collect(context.Background(), stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "ARGS:--print --resume sess-1\nagain", out)
}

func TestCodexPassesWorkingDirAndResumedSession(t *testing.T) {
	script := writeScript(t, echoScript)
	dir := t.TempDir()
	session, err := New("codex", dir, WithBinary(script))
	require.NoError(t, err)

	args, _ := session.Args()
	assert.Equal(t, []string{"--cwd", session.Dir()}, args)

	assert.False(t, session.Resume("  "))
	require.True(t, session.Resume("abc"))
	assert.Equal(t, "abc", session.SessionID())

	stream, err := session.Send(context.Background(), "plan")
	require.NoError(t, err)
	out, err := Collect(context.Background(), stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "ARGS:--cwd "+session.Dir()+" --session abc\nplan", out)
}

func TestFailedExchangeReportsStderrAndKeepsSession(t *testing.T) {
	script := writeScript(t, `echo partial
echo "model overloaded" >&2
exit 3`)
	session, err := New("claude", t.TempDir(), WithBinary(script))
	require.NoError(t, err)

	stream, err := session.Send(context.Background(), "x")
	require.NoError(t, err)
	var fragments []string
	out, err := Collect(context.Background(), stream, func(f string) { fragments = append(fragments, f) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Equal(t, "partial\n", out)
	assert.Equal(t, "partial\n", strings.Join(fragments, ""))
	assert.Empty(t, session.SessionID())
}

func TestStreamingKeepsMultiByteCharactersWhole(t *testing.T) {
	script := writeScript(t, `printf 'héllo ✓ wörld'`)
	session, err := New("codex", t.TempDir(), WithBinary(script), WithReadSize(1))
	require.NoError(t, err)

	stream, err := session.Send(context.Background(), "")
	require.NoError(t, err)
	var fragments []string
	out, err := Collect(context.Background(), stream, func(f string) { fragments = append(fragments, f) })
	require.NoError(t, err)
	assert.Equal(t, "héllo ✓ wörld", out)
	for _, fragment := range fragments {
		assert.True(t, utf8.ValidString(fragment), "fragment %q", fragment)
	}
	assert.Greater(t, len(fragments), 1)
}

func TestSplitUTF8(t *testing.T) {
	check := []byte("a✓")
	text, rest := splitUTF8(check[:2])
	assert.Equal(t, "a", text)
	assert.Equal(t, check[1:2], rest)

	text, rest = splitUTF8(check)
	assert.Equal(t, "a✓", text)
	assert.Empty(t, rest)
}

func TestSendCancelledByContext(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	session, err := New("codex", t.TempDir(), WithBinary(script))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stream, err := session.Send(ctx, "slow")
	require.NoError(t, err)
	start := time.Now()
	_, err = Collect(ctx, stream, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCancelledSendClosesStreamWhenChildHoldsOutput(t *testing.T) {
	script := writeScript(t, `sleep 5 &
echo started
wait`)
	session, err := New("codex", t.TempDir(), WithBinary(script), WithWaitDelay(100*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := session.Send(ctx, "")
	require.NoError(t, err)
	first := <-stream
	require.Equal(t, "started\n", first.Text)
	cancel()

	closed := make(chan struct{})
	go func() {
		for range stream {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("stream still open after cancel")
	}
}

func TestSendFailsWhenBinaryMissing(t *testing.T) {
	session, err := New("claude", t.TempDir(), WithBinary(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.False(t, session.CheckAvailable())
	_, err = session.Send(context.Background(), "x")
	require.Error(t, err)
}

func TestCheckAvailableFindsScript(t *testing.T) {
	session, err := New("claude", t.TempDir(), WithBinary(writeScript(t, "true")))
	require.NoError(t, err)
	assert.True(t, session.CheckAvailable())
}
