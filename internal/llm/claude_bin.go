package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ClaudeBinProvider implements Provider using the claude CLI binary.
// Each Stream call runs one `claude --print` process with the prompt on
// stdin and reads stream-json events from stdout. The provider holds no
// per-session state and is safe for concurrent use.
type ClaudeBinProvider struct {
	path        string
	preferOAuth bool
	log         logrus.FieldLogger
}

// NewClaudeBinProvider creates a provider that runs the binary at path
// ("claude" when empty, resolved via PATH).
func NewClaudeBinProvider(path string, log logrus.FieldLogger) *ClaudeBinProvider {
	if path == "" {
		path = "claude"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ClaudeBinProvider{path: path, log: log}
}

// SetPreferOAuth controls whether ANTHROPIC_API_KEY is cleared for the
// subprocess so the CLI falls back to its OAuth subscription login.
func (p *ClaudeBinProvider) SetPreferOAuth(prefer bool) {
	p.preferOAuth = prefer
}

func (p *ClaudeBinProvider) Name() string {
	return "claude-cli"
}

func (p *ClaudeBinProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if _, err := exec.LookPath(p.path); err != nil {
		return nil, fmt.Errorf("claude binary not found: %w", err)
	}
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		return p.run(ctx, req, events)
	}), nil
}

func (p *ClaudeBinProvider) run(ctx context.Context, req Request, events chan<- Event) error {
	args := p.buildArgs(req)
	log := p.log.WithFields(logrus.Fields{
		"backend": p.Name(),
		"model":   string(req.Model),
	})
	log.WithField("args", strings.Join(args, " ")).
		WithField("prompt_bytes", len(req.Prompt)).
		Debug("starting claude")

	cmd := exec.CommandContext(ctx, p.path, args...)
	if req.WorkingDirectory != "" {
		cmd.Dir = req.WorkingDirectory
	}
	if p.preferOAuth {
		env := os.Environ()
		filtered := env[:0]
		for _, e := range env {
			if strings.HasPrefix(e, "ANTHROPIC_API_KEY=") {
				continue
			}
			filtered = append(filtered, e)
		}
		cmd.Env = filtered
	}

	// The prompt goes over stdin to avoid "argument list too long" on
	// large conversations.
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start claude: %w", err)
	}

	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.WithField("stream", "stderr").Debug(scanner.Text())
		}
	}()

	go func() {
		defer stdin.Close()
		if _, err := io.WriteString(stdin, req.Prompt); err != nil {
			log.WithError(err).Debug("failed to write prompt to claude stdin")
		}
	}()

	waited := false
	defer func() {
		if !waited {
			_ = cmd.Process.Kill()
			stderrDone.Wait()
			_ = cmd.Wait()
		}
	}()

	scanner := bufio.NewScanner(stdout)
	// Increase buffer size for large JSON messages
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			log.WithField("line", truncate(string(line), 100)).Debug("skipping non-JSON claude output")
			continue
		}
		if ev.Type == EventResult && ev.IsError && ev.Result != "" {
			return fmt.Errorf("claude reported an error: %s", ev.Result)
		}
		if IsSystemInit(ev) {
			log.WithField("session_id", ev.SessionID).Debug("claude session started")
		}
		if err := send(ctx, events, ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading claude output: %w", err)
	}

	stderrDone.Wait()
	waited = true
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("claude exited with status %d", exitErr.ExitCode())
		}
		return fmt.Errorf("claude command failed: %w", err)
	}
	return nil
}

// buildArgs constructs the command line for one --print session.
func (p *ClaudeBinProvider) buildArgs(req Request) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	tier := req.Model
	if tier == "" {
		tier = DefaultTier
	}
	args = append(args, "--model", string(tier))
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	// Without the skip flag, print mode denies any tool that would need an
	// interactive permission prompt.
	if !req.AutoDenyTools {
		args = append(args, "--dangerously-skip-permissions")
	}
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
