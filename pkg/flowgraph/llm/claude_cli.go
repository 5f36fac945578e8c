package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	flowerrors "github.com/randalmurphal/mindflow/pkg/flowgraph/errors"
)

const claudeProvider = "claude"

// jsonInstruction is appended to the system prompt when a JSON object is
// requested, since the CLI has no structured output switch for plain text.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// ClaudeCLI implements Client using the Claude CLI binary.
type ClaudeCLI struct {
	path         string
	model        string
	workdir      string
	timeout      time.Duration
	allowedTools []string
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a new Claude CLI client.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:    "claude",
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithModel sets the default model.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithWorkdir sets the working directory for claude commands.
func WithWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// WithAllowedTools sets the allowed tools for claude.
func WithAllowedTools(tools []string) ClaudeOption {
	return func(c *ClaudeCLI) { c.allowedTools = tools }
}

// Complete implements Client.
func (c *ClaudeCLI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.path, c.buildArgs(req)...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				ctxErr = &flowerrors.TimeoutError{Operation: "claude completion", Duration: c.timeout.String()}
			}
			return nil, NewError(claudeProvider, "complete", ctxErr)
		}

		errMsg := strings.TrimSpace(stderr.String())
		cause := fmt.Errorf("%w: %s", err, errMsg)
		if isTransientOutput(errMsg) {
			return nil, NewError(claudeProvider, "complete", flowerrors.Transient(cause, "claude cli"))
		}
		return nil, NewError(claudeProvider, "complete", cause)
	}

	resp := c.parseResponse(stdout.Bytes(), req)
	resp.Duration = time.Since(start)
	return resp, nil
}

// buildArgs constructs CLI arguments from a request.
func (c *ClaudeCLI) buildArgs(req CompletionRequest) []string {
	args := []string{"--print"}

	system := req.SystemPrompt
	if req.Format == FormatJSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}

	if model := c.resolveModel(req); model != "" {
		args = append(args, "--model", model)
	}

	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(req.MaxTokens))
	}

	for _, tool := range c.allowedTools {
		args = append(args, "--allowedTools", tool)
	}

	// The CLI takes a single prompt, so prior turns are inlined as a transcript.
	var prompt strings.Builder
	for i, msg := range req.Messages {
		last := i == len(req.Messages)-1
		switch {
		case last && msg.Role == RoleUser:
			if prompt.Len() > 0 {
				prompt.WriteString("\n")
			}
			prompt.WriteString(msg.Content)
		case msg.Role == RoleAssistant:
			prompt.WriteString("Assistant: ")
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		default:
			prompt.WriteString("User: ")
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		}
	}

	if p := strings.TrimSpace(prompt.String()); p != "" {
		args = append(args, "-p", p)
	}

	return args
}

func (c *ClaudeCLI) resolveModel(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// parseResponse extracts response data from CLI output.
// Token counts are not reported by plain --print output.
func (c *ClaudeCLI) parseResponse(data []byte, req CompletionRequest) *CompletionResponse {
	return &CompletionResponse{
		Content:      strings.TrimSpace(string(data)),
		FinishReason: "stop",
		Model:        c.resolveModel(req),
	}
}

// isTransientOutput checks if CLI stderr indicates a temporary condition.
func isTransientOutput(errMsg string) bool {
	errLower := strings.ToLower(errMsg)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "overloaded") ||
		strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "529")
}
