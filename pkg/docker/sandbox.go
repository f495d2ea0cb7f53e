package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of checker container runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Number of checker container runs killed on timeout",
	}, []string{"image"})
)

// ErrTimeout is returned when a container outlives its deadline.
var ErrTimeout = errors.New("sandbox run timed out")

// Executor runs a command inside a throwaway container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one container run. Workspace is bind mounted read-only.
type ExecutionRequest struct {
	Image     string
	Cmd       []string
	Env       []string
	Workspace string
	Timeout   time.Duration
}

// ExecutionResult is what the container left behind.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Config groups sandbox limits shared by every run.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkingDir    string
	Logger        zerolog.Logger
}

// DockerExecutor runs checker containers with networking disabled.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor connects to the docker daemon named by cfg.Host (or the environment).
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_sandbox").Logger(),
	}, nil
}

// Run creates, starts and awaits a container, then collects its output.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if req.Image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "docker.sandbox.run", trace.WithAttributes(
		attribute.String("docker.image", req.Image),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	containerID, err := e.create(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, err
	}
	defer e.remove(containerID)

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, fmt.Errorf("container start: %w", err)
	}

	exitCode, err := e.wait(ctx, containerID)
	result := ExecutionResult{ExitCode: exitCode, Duration: time.Since(start)}
	runDuration.WithLabelValues(req.Image).Observe(result.Duration.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			runTimeouts.WithLabelValues(req.Image).Inc()
			e.kill(containerID)
			err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	result.Stdout, result.Stderr = e.logs(parent, containerID)
	span.SetAttributes(attribute.Int("docker.exit_code", result.ExitCode))
	return result, nil
}

func (e *DockerExecutor) create(ctx context.Context, req ExecutionRequest) (string, error) {
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Resources: container.Resources{
			Memory:    e.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: e.cfg.CPUShares,
		},
	}
	if req.Workspace != "" {
		hostCfg.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   req.Workspace,
			Target:   e.cfg.WorkingDir,
			ReadOnly: true,
		}}
	}

	config := &container.Config{
		Image:        req.Image,
		Cmd:          req.Cmd,
		Env:          req.Env,
		WorkingDir:   e.cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := e.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	return resp.ID, nil
}

func (e *DockerExecutor) wait(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("container wait: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *DockerExecutor) logs(ctx context.Context, containerID string) (string, string) {
	reader, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return "", ""
	}
	defer reader.Close()

	stdout, stderr, err := splitDockerLogs(reader)
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
	}
	return stdout, stderr
}

func (e *DockerExecutor) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.client.ContainerKill(ctx, containerID, "KILL"); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
	}
}

func (e *DockerExecutor) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
	}
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

// Close releases the docker client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
