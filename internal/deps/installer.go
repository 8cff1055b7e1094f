// Package deps installs the third-party packages a module declares in its
// manifest's install_requires list.
package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/flemzord/storemods/internal/security"
)

// ErrInstall is returned when at least one requirement failed to install.
var ErrInstall = errors.New("dependency installation failed")

const (
	defaultTimeout = 5 * time.Minute
	maxOutput      = 4096
)

// DefaultCommand is the package-manager invocation used when none is
// configured. Each requirement is appended as the last argument.
var DefaultCommand = []string{"go", "get"}

// Installer installs a module's requirements.
type Installer interface {
	Install(ctx context.Context, dir string, requirements []string) (Result, error)
}

// PackageResult is the outcome for one requirement.
type PackageResult struct {
	Name   string        `json:"name"`
	OK     bool          `json:"ok"`
	Output string        `json:"output,omitempty"`
	Took   time.Duration `json:"took"`
	Err    string        `json:"error,omitempty"`
}

// Result aggregates per-package outcomes.
type Result struct {
	Packages []PackageResult `json:"packages"`
}

// Failed returns the requirements that did not install.
func (r Result) Failed() []string {
	var out []string
	for _, p := range r.Packages {
		if !p.OK {
			out = append(out, p.Name)
		}
	}
	return out
}

// CommandInstaller shells out to a package manager once per requirement.
type CommandInstaller struct {
	// Command is the program and leading arguments. Defaults to DefaultCommand.
	Command []string

	// Timeout bounds each invocation. Defaults to 5 minutes.
	Timeout time.Duration

	Logger *slog.Logger
}

// Compile-time interface guard.
var _ Installer = (*CommandInstaller)(nil)

// Install runs the package manager for every requirement in dir. It keeps
// going after a failure so that the result reports every package.
func (c *CommandInstaller) Install(ctx context.Context, dir string, requirements []string) (Result, error) {
	var res Result
	if len(requirements) == 0 {
		return res, nil
	}

	command := c.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, req := range requirements {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		pr := c.installOne(ctx, command, dir, req, timeout)
		res.Packages = append(res.Packages, pr)
		if pr.OK {
			logger.Info("dependency installed", "package", req, "took", pr.Took)
			continue
		}
		logger.Warn("dependency install failed", "package", req, "error", pr.Err)
		errs = append(errs, fmt.Errorf("%s: %s", req, pr.Err))
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("%w: %w", ErrInstall, errors.Join(errs...))
	}
	return res, nil
}

func (c *CommandInstaller) installOne(ctx context.Context, command []string, dir, req string, timeout time.Duration) PackageResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, command[1:]...), req)
	//nolint:gosec // command comes from host configuration, req from a validated manifest.
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = dir
	cmd.Env = security.SanitizedEnv()
	cmd.WaitDelay = time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	pr := PackageResult{
		Name:   req,
		OK:     err == nil,
		Output: truncate(out.String(), maxOutput),
		Took:   time.Since(start),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		pr.Err = err.Error()
	}
	return pr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// Nop is an Installer that installs nothing. Useful when modules are
// compiled into the binary and their dependencies are already resolved.
type Nop struct{}

// Install implements Installer.
func (Nop) Install(context.Context, string, []string) (Result, error) {
	return Result{}, nil
}
