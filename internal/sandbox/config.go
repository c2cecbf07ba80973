package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tunacode-sh/tunacode/internal/tunalog"
)

var sandboxLog = tunalog.New(os.Stderr, "sandbox")

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto automatically selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // Custom Docker image override
	CPU         string        // CPU limit (e.g., "2")
	Memory      string        // Memory limit (e.g., "1g")
	CmdTimeout  time.Duration // Default command timeout (0 = use default)
}

// DefaultConfig returns the default configuration based on environment variables.
func DefaultConfig() Config {
	modeStr := strings.ToLower(os.Getenv("TUNACODE_SANDBOX_MODE"))
	if modeStr == "" {
		modeStr = "auto"
	}

	var mode Mode
	switch modeStr {
	case "docker":
		mode = ModeDocker
	case "host":
		mode = ModeHost
	case "auto":
		mode = ModeAuto
	default:
		sandboxLog.Warn("unknown TUNACODE_SANDBOX_MODE value, defaulting to auto", tunalog.Fields{"value": modeStr})
		mode = ModeAuto
	}

	// Parse command timeout from environment (a Go duration string, e.g. "90s")
	cmdTimeout := 2 * time.Minute // Default: 2 minutes
	if timeoutStr := os.Getenv("TUNACODE_CMD_TIMEOUT"); timeoutStr != "" {
		if seconds, err := time.ParseDuration(timeoutStr); err == nil && seconds > 0 {
			cmdTimeout = seconds
		} else {
			sandboxLog.Warn("invalid TUNACODE_CMD_TIMEOUT value, using default 2m", tunalog.Fields{"value": timeoutStr})
		}
	}

	return Config{
		Mode:        mode,
		DockerImage: os.Getenv("TUNACODE_DOCKER_IMAGE"),
		CPU:         getEnvOrDefault("TUNACODE_DOCKER_CPU", "2"),
		Memory:      getEnvOrDefault("TUNACODE_DOCKER_MEMORY", "1g"),
		CmdTimeout:  cmdTimeout,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// IsDockerAvailable checks if Docker is available and accessible.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	cmd.Stdout = nil
	cmd.Stderr = nil
	err := cmd.Run()
	return err == nil
}

// NewDefaultRunner creates a runner based on the configuration and Docker availability.
// It respects the TUNACODE_SANDBOX_MODE environment variable:
// - "docker": Use Docker (falls back to host with a warning if unavailable)
// - "host": Use host executor (no isolation)
// - "auto": Use Docker if available, fallback to host
func NewDefaultRunner() Runner {
	config := DefaultConfig()
	ctx := context.Background()

	switch config.Mode {
	case ModeDocker:
		if !IsDockerAvailable(ctx) {
			sandboxLog.Warn("docker mode requested but docker is not available, falling back to host executor", nil)
			return &HostRunner{config: config}
		}
		dockerRunner, err := NewDockerRunner(config)
		if err != nil {
			sandboxLog.Warn("failed to create docker runner, falling back to host executor", tunalog.Fields{"error": err})
			return &HostRunner{config: config}
		}
		return dockerRunner

	case ModeHost:
		sandboxLog.Warn("using host executor (no sandboxing); insecure, development only", nil)
		return &HostRunner{config: config}

	case ModeAuto:
		if IsDockerAvailable(ctx) {
			dockerRunner, err := NewDockerRunner(config)
			if err != nil {
				sandboxLog.Warn("docker available but failed to create runner, falling back to host executor", tunalog.Fields{"error": err})
				return &HostRunner{config: config}
			}
			return dockerRunner
		}
		sandboxLog.Warn("docker not available, using host executor (no sandboxing); insecure", nil)
		return &HostRunner{config: config}

	default:
		sandboxLog.Warn("unknown sandbox mode, defaulting to host executor", nil)
		return &HostRunner{config: config}
	}
}

// NewRunner creates a specific runner implementation.
func NewRunner(mode Mode, config Config) (Runner, error) {
	switch mode {
	case ModeDocker:
		return NewDockerRunner(config)
	case ModeHost:
		return &HostRunner{config: config}, nil
	default:
		return nil, fmt.Errorf("unknown runner mode: %s", mode)
	}
}
