package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"jordanella.com/autogui/internal/logging"
)

// Runner executes the adb binary and returns its stdout
type Runner func(ctx context.Context, adbPath string, args ...string) ([]byte, error)

// execRunner runs adb as a child process
func execRunner(ctx context.Context, adbPath string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, adbPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Controller drives one Android device over adb
type Controller struct {
	path    string
	device  string
	timeout time.Duration
	run     Runner
	logger  *logging.Logger

	mu        sync.Mutex
	connected bool

	// wm size rarely changes during a session
	width, height int
}

// DefaultTimeout bounds every adb invocation
const DefaultTimeout = 10 * time.Second

// NewController creates a controller for device, which is either a serial
// or a host:port network address
func NewController(adbPath, device string) *Controller {
	return &Controller{
		path:    adbPath,
		device:  device,
		timeout: DefaultTimeout,
		run:     execRunner,
		logger:  logging.NewLogger("ADB"),
	}
}

// WithRunner replaces the process runner
func (c *Controller) WithRunner(run Runner) *Controller {
	c.run = run
	return c
}

// WithTimeout sets the per-command timeout
func (c *Controller) WithTimeout(timeout time.Duration) *Controller {
	c.timeout = timeout
	return c
}

// Connect attaches to a network device. Serial devices need no connect step.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.Contains(c.device, ":") {
		c.connected = true
		return nil
	}

	output, err := c.exec("connect", c.device)
	if err != nil {
		return fmt.Errorf("failed to connect to device %s: %w", c.device, err)
	}

	if !strings.Contains(string(output), "connected") {
		return fmt.Errorf("unexpected connect output: %s", strings.TrimSpace(string(output)))
	}

	c.connected = true
	c.logger.InfoWithContext("Connected", map[string]interface{}{"device": c.device})
	return nil
}

// Disconnect detaches from a network device
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && strings.Contains(c.device, ":") {
		if _, err := c.exec("disconnect", c.device); err != nil {
			return fmt.Errorf("failed to disconnect %s: %w", c.device, err)
		}
	}

	c.connected = false
	return nil
}

// Shell executes a shell command and returns its trimmed output
func (c *Controller) Shell(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	output, err := c.exec("-s", c.device, "shell", command)
	if err != nil {
		return "", fmt.Errorf("shell command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ExecOut runs command with a binary-safe stdout
func (c *Controller) ExecOut(command string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	output, err := c.exec("-s", c.device, "exec-out", command)
	if err != nil {
		return nil, fmt.Errorf("exec-out failed: %w", err)
	}
	return output, nil
}

// exec runs adb with the controller's timeout. Callers hold c.mu.
func (c *Controller) exec(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	output, err := c.run(ctx, c.path, args...)
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("adb %s timed out after %v", args[len(args)-1], c.timeout)
	}
	return output, err
}
