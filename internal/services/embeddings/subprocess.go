package embeddings

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// subprocessClient manages a long-lived embedding helper subprocess, speaking
// newline-delimited JSON over its standard input/output. Exactly one request
// is ever outstanding at a time: callMu serializes the write-then-read
// round trip so the helper never has to interleave responses. Shutdown is by
// closing stdin (EOF), not by signal, matching how the helper is meant to
// detect its caller going away.
type subprocessClient struct {
	path        string
	initTimeout time.Duration
	callTimeout time.Duration
	logger      arbor.ILogger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin *bufio.Writer
	raw   io.WriteCloser
	lines chan string
	ready bool

	callMu sync.Mutex
}

func newSubprocessClient(path string, initTimeout, callTimeout time.Duration, logger arbor.ILogger) *subprocessClient {
	return &subprocessClient{
		path:        path,
		initTimeout: initTimeout,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

type subprocessRequest struct {
	Texts []string `json:"texts"`
}

type subprocessResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Start launches the helper binary and blocks until it answers a readiness
// ping or initTimeout elapses.
func (c *subprocessClient) Start() error {
	c.mu.Lock()
	cmd := exec.Command(c.path, "--embedding", "--stdio")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to open embedding subprocess stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to open embedding subprocess stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to open embedding subprocess stderr: %w", err)
	}

	c.logger.Info().Str("path", c.path).Msg("starting embedding subprocess")
	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start embedding subprocess: %w", err)
	}
	c.cmd = cmd
	c.stdin = bufio.NewWriter(stdin)
	c.raw = stdin
	c.lines = make(chan string, 1)
	c.logger.Info().Int("pid", cmd.Process.Pid).Msg("embedding subprocess started, waiting for ready")
	c.mu.Unlock()

	go c.readLines(stdout)
	go c.drainStderr(stderr)

	ctx, cancel := context.WithTimeout(context.Background(), c.initTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.stopLocked()
			c.mu.Unlock()
			return fmt.Errorf("embedding subprocess did not become ready within %s", c.initTimeout)
		case <-ticker.C:
			if c.checkHealth(ctx) {
				c.mu.Lock()
				c.ready = true
				c.mu.Unlock()
				c.logger.Info().Msg("embedding subprocess is ready")
				return nil
			}
		}
	}
}

// readLines feeds every newline-delimited response from the subprocess into
// c.lines, one at a time. It exits (closing c.lines) when the subprocess
// closes its stdout.
func (c *subprocessClient) readLines(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	close(c.lines)
}

func (c *subprocessClient) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Debug().Str("pid_stderr", scanner.Text()).Msg("embedding subprocess stderr")
	}
}

func (c *subprocessClient) checkHealth(ctx context.Context) bool {
	_, err := c.doRequest(ctx, subprocessRequest{Texts: []string{}})
	return err == nil
}

// doRequest writes one request line to stdin and waits for the matching
// response line, honoring ctx and callTimeout.
func (c *subprocessClient) doRequest(ctx context.Context, req subprocessRequest) (subprocessResponse, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	stdin := c.stdin
	lines := c.lines
	c.mu.Unlock()
	if stdin == nil || lines == nil {
		return subprocessResponse{}, errors.New("embedding subprocess is not running")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return subprocessResponse{}, fmt.Errorf("failed to marshal embedding request: %w", err)
	}
	if _, err := stdin.Write(append(body, '\n')); err != nil {
		return subprocessResponse{}, fmt.Errorf("failed to write embedding request: %w", err)
	}
	if err := stdin.Flush(); err != nil {
		return subprocessResponse{}, fmt.Errorf("failed to flush embedding request: %w", err)
	}

	select {
	case line, ok := <-lines:
		if !ok {
			return subprocessResponse{}, errors.New("embedding subprocess closed its output")
		}
		var resp subprocessResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return subprocessResponse{}, fmt.Errorf("failed to decode embedding response: %w", err)
		}
		if resp.Error != "" {
			return subprocessResponse{}, fmt.Errorf("embedding subprocess error: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return subprocessResponse{}, ctx.Err()
	case <-time.After(c.callTimeout):
		return subprocessResponse{}, fmt.Errorf("embedding subprocess call timed out after %s", c.callTimeout)
	}
}

// Embed sends a single text as a one-element batch, matching the helper's
// batched texts/embeddings wire shape.
func (c *subprocessClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.doRequest(ctx, subprocessRequest{Texts: []string{text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding subprocess returned empty embedding")
	}
	return resp.Embeddings[0], nil
}

// Stop closes stdin so the subprocess observes EOF and exits on its own,
// then force-kills it if it hasn't exited within 5 seconds.
func (c *subprocessClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *subprocessClient) stopLocked() error {
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	pid := c.cmd.Process.Pid
	c.logger.Info().Int("pid", pid).Msg("stopping embedding subprocess")

	if c.raw != nil {
		if err := c.raw.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("closing embedding subprocess stdin failed")
		}
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case <-done:
		c.ready = false
		return nil
	case <-time.After(5 * time.Second):
		c.logger.Warn().Int("pid", pid).Msg("embedding subprocess did not exit after stdin EOF, killing")
		if err := c.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill embedding subprocess: %w", err)
		}
		<-done
		c.ready = false
		return nil
	}
}

func (c *subprocessClient) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}
