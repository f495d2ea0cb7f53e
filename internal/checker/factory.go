package checker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/ai"
	"github.com/noah-isme/gema-grader/pkg/docker"
)

// Supported drivers.
const (
	DriverDocker = "docker"
	DriverHTTP   = "http"
	DriverOpenAI = "openai"
)

// ErrUnknownDriver is returned for a driver name outside of the supported set.
var ErrUnknownDriver = errors.New("unknown checker driver")

// Options selects and configures the driver at startup.
type Options struct {
	Driver       string
	Image        string
	Command      []string
	URL          string
	Retries      int
	MemoryMB     int64
	CPUShares    int64
	DockerHost   string
	OpenAIAPIKey string
	OpenAIModel  string
	Timeout      time.Duration
}

// New builds the configured gateway. Callers bound each check with WithTimeout.
// The returned close function releases driver resources and is never nil.
func New(opts Options, logger zerolog.Logger) (Gateway, func() error, error) {
	noop := func() error { return nil }

	var gateway Gateway
	closer := noop
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverDocker:
		if opts.Image == "" {
			return nil, noop, fmt.Errorf("docker checker: image is required")
		}
		executor, err := docker.NewDockerExecutor(docker.Config{
			Host:          opts.DockerHost,
			Timeout:       opts.Timeout,
			MemoryLimitMB: opts.MemoryMB,
			CPUShares:     opts.CPUShares,
			Logger:        logger,
		})
		if err != nil {
			return nil, noop, err
		}
		gateway = NewDockerGateway(executor, opts.Image, opts.Command, logger)
		closer = executor.Close
	case DriverHTTP:
		if opts.URL == "" {
			return nil, noop, fmt.Errorf("http checker: url is required")
		}
		gateway = NewHTTPGateway(opts.URL, opts.Retries, logger)
	case DriverOpenAI:
		evaluator, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{
			APIKey: opts.OpenAIAPIKey,
			Model:  opts.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			return nil, noop, err
		}
		gateway = NewOpenAIGateway(evaluator)
	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}

	return gateway, closer, nil
}
