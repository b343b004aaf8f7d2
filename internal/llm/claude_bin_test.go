package llm

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeClaude writes a shell script standing in for the claude binary. The
// script records its argv, stdin, cwd and ANTHROPIC_API_KEY into dir and
// then runs body.
func fakeClaude(t *testing.T, body string) (bin, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake claude binary is a shell script")
	}
	dir = t.TempDir()
	bin = filepath.Join(dir, "claude")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > \"" + dir + "/args\"\n" +
		"cat > \"" + dir + "/stdin\"\n" +
		"pwd > \"" + dir + "/pwd\"\n" +
		"printf '%s' \"$ANTHROPIC_API_KEY\" > \"" + dir + "/apikey\"\n" +
		body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake claude: %v", err)
	}
	return bin, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func drain(t *testing.T, s Stream) ([]Event, error) {
	t.Helper()
	defer s.Close()
	var events []Event
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const successOutput = `echo "warming up" >&2
cat <<'JSON'
{"type":"system","subtype":"init","session_id":"sess-1","model":"claude-sonnet-4-20250514","tools":["Read"]}
this line is not json
{"type":"assistant","message":{"content":[{"type":"text","text":"Hello"}]}}
{"type":"result","subtype":"success","is_error":false,"result":"Hello","usage":{"input_tokens":5,"output_tokens":2}}
JSON`

func TestClaudeBinProvider_Stream(t *testing.T) {
	bin, dir := fakeClaude(t, successOutput)
	workDir := t.TempDir()

	p := NewClaudeBinProvider(bin, quietLogger())
	stream, err := p.Stream(context.Background(), Request{
		Prompt:           "Previous conversation:\nUser: hi",
		SystemPrompt:     "be brief",
		Model:            TierOpus,
		MaxTurns:         4,
		AllowedTools:     []string{"Read", "Grep"},
		AutoDenyTools:    true,
		WorkingDirectory: workDir,
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events, err := drain(t, stream)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if !IsSystemInit(events[0]) || events[0].SessionID != "sess-1" {
		t.Fatalf("events[0] = %+v, want system init", events[0])
	}
	if !IsAssistantContent(events[1]) {
		t.Fatalf("events[1] = %+v, want assistant", events[1])
	}
	if u := ExtractUsage(events[2]); u.TotalTokens != 7 {
		t.Fatalf("usage = %+v, want total 7", u)
	}

	wantArgs := []string{
		"--print", "--output-format", "stream-json", "--verbose",
		"--max-turns", "4",
		"--model", "opus",
		"--system-prompt", "be brief",
		"--allowedTools", "Read,Grep",
	}
	gotArgs := strings.Split(strings.TrimRight(readFile(t, filepath.Join(dir, "args")), "\n"), "\n")
	if strings.Join(gotArgs, "|") != strings.Join(wantArgs, "|") {
		t.Fatalf("args = %q, want %q", gotArgs, wantArgs)
	}
	if got := readFile(t, filepath.Join(dir, "stdin")); got != "Previous conversation:\nUser: hi" {
		t.Fatalf("stdin = %q", got)
	}
	gotWD, _ := filepath.EvalSymlinks(strings.TrimSpace(readFile(t, filepath.Join(dir, "pwd"))))
	wantWD, _ := filepath.EvalSymlinks(workDir)
	if gotWD != wantWD {
		t.Fatalf("cwd = %q, want %q", gotWD, wantWD)
	}
}

func TestClaudeBinProvider_ResultError(t *testing.T) {
	bin, _ := fakeClaude(t, `cat <<'JSON'
{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}
{"type":"result","subtype":"error_during_execution","is_error":true,"result":"API Error: rate limited"}
JSON`)

	stream, err := NewClaudeBinProvider(bin, quietLogger()).Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events, err := drain(t, stream)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %v, want rate limited", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events before the error, want 1", len(events))
	}
}

func TestClaudeBinProvider_NonZeroExit(t *testing.T) {
	bin, _ := fakeClaude(t, `echo "boom" >&2
exit 3`)

	stream, err := NewClaudeBinProvider(bin, quietLogger()).Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	_, err = drain(t, stream)
	if err == nil || !strings.Contains(err.Error(), "status 3") {
		t.Fatalf("error = %v, want exit status 3", err)
	}
}

func TestClaudeBinProvider_MissingBinary(t *testing.T) {
	p := NewClaudeBinProvider(filepath.Join(t.TempDir(), "nope"), quietLogger())
	if _, err := p.Stream(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestClaudeBinProvider_PreferOAuthClearsAPIKey(t *testing.T) {
	bin, dir := fakeClaude(t, successOutput)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	p := NewClaudeBinProvider(bin, quietLogger())
	p.SetPreferOAuth(true)
	stream, err := p.Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if _, err := drain(t, stream); err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "apikey")); got != "" {
		t.Fatalf("ANTHROPIC_API_KEY = %q, want cleared", got)
	}
}

func TestClaudeBinProvider_BuildArgs(t *testing.T) {
	p := NewClaudeBinProvider("", nil)
	if p.path != "claude" {
		t.Fatalf("default path = %q, want claude", p.path)
	}

	args := strings.Join(p.buildArgs(Request{AutoDenyTools: false}), " ")
	if !strings.Contains(args, "--dangerously-skip-permissions") {
		t.Fatalf("args = %q, want skip-permissions when tools are not auto-denied", args)
	}
	if !strings.Contains(args, "--model sonnet") {
		t.Fatalf("args = %q, want default sonnet tier", args)
	}
	if strings.Contains(args, "--max-turns") || strings.Contains(args, "--system-prompt") {
		t.Fatalf("args = %q, unexpected optional flags", args)
	}

	args = strings.Join(p.buildArgs(Request{AutoDenyTools: true, Model: TierHaiku}), " ")
	if strings.Contains(args, "--dangerously-skip-permissions") {
		t.Fatalf("args = %q, skip-permissions must be absent when auto-denying", args)
	}
}
