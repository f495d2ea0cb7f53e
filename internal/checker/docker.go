package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/docker"
)

const (
	solutionFile = "solution.txt"
	requestFile  = "request.json"
)

// DockerGateway runs the checker image against a workspace holding the solution.
// The image must print a verdict JSON object as the last line of stdout.
type DockerGateway struct {
	executor docker.Executor
	image    string
	command  []string
	logger   zerolog.Logger
}

// NewDockerGateway constructs the docker driver.
func NewDockerGateway(executor docker.Executor, image string, command []string, logger zerolog.Logger) *DockerGateway {
	return &DockerGateway{
		executor: executor,
		image:    image,
		command:  command,
		logger:   logger.With().Str("component", "docker_checker").Logger(),
	}
}

func (g *DockerGateway) Check(ctx context.Context, req Request) (Verdict, error) {
	workspace, err := os.MkdirTemp("", "grader-check-*")
	if err != nil {
		return Verdict{}, gatewayError("docker", fmt.Errorf("create workspace: %w", err))
	}
	defer os.RemoveAll(workspace)

	if err := writeWorkspace(workspace, req); err != nil {
		return Verdict{}, gatewayError("docker", err)
	}

	result, err := g.executor.Run(ctx, docker.ExecutionRequest{
		Image:     g.image,
		Cmd:       g.command,
		Workspace: workspace,
		Env: []string{
			"GRADER_GROUP=" + req.GroupTitle,
			"GRADER_TASK=" + strconv.Itoa(req.TaskID),
			"GRADER_VARIANT=" + strconv.Itoa(req.VariantID),
			"GRADER_SOLUTION=" + solutionFile,
		},
	})
	if err != nil {
		return Verdict{}, gatewayError("docker", err)
	}

	line := lastLine(result.Stdout)
	if line == "" {
		g.logger.Warn().
			Int("exit_code", result.ExitCode).
			Str("stderr", truncate(result.Stderr, 512)).
			Msg("checker container produced no verdict")
		return Verdict{}, gatewayError("docker", fmt.Errorf("no verdict on stdout (exit code %d)", result.ExitCode))
	}
	return DecodeVerdict("docker", []byte(line))
}

func writeWorkspace(dir string, req Request) error {
	if err := os.WriteFile(filepath.Join(dir, solutionFile), []byte(req.Code), 0o644); err != nil {
		return fmt.Errorf("write solution: %w", err)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, requestFile), payload, 0o644); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
