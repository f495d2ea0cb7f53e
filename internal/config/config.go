package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/gema-grader/internal/checker"
)

// Config holds runtime configuration values for the grader service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	ReadOnly    bool
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	EventsChannel string

	WorkerDisabled       bool
	WorkerInterval       time.Duration
	WorkerCheckerTimeout time.Duration
	WorkerLeaseTTL       time.Duration

	CheckerDriver    string
	CheckerImage     string
	CheckerCommand   []string
	CheckerURL       string
	CheckerRetries   int
	CheckerMemoryMB  int
	CheckerCPUShares int
	DockerHost       string
	OpenAIAPIKey     string
	OpenAIModel      string

	FinalTasks    map[string][]int
	FinalVariants int

	MaxCodeBytes        int
	SubmissionRateLimit int
	BoardCacheTTL       time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CheckerOptions maps the checker keys onto the gateway factory options.
func (c Config) CheckerOptions() checker.Options {
	return checker.Options{
		Driver:       c.CheckerDriver,
		Image:        c.CheckerImage,
		Command:      c.CheckerCommand,
		URL:          c.CheckerURL,
		Retries:      c.CheckerRetries,
		MemoryMB:     int64(c.CheckerMemoryMB),
		CPUShares:    int64(c.CheckerCPUShares),
		DockerHost:   c.DockerHost,
		OpenAIAPIKey: c.OpenAIAPIKey,
		OpenAIModel:  c.OpenAIModel,
		Timeout:      c.WorkerCheckerTimeout,
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "GEMA Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.readonly", false)
	v.SetDefault("events.channel", "grader")
	v.SetDefault("worker.disabled", false)
	v.SetDefault("worker.interval", "10s")
	v.SetDefault("worker.checker_timeout", "60s")
	v.SetDefault("worker.lease_ttl", "90s")
	v.SetDefault("checker.driver", checker.DriverDocker)
	v.SetDefault("checker.retries", 2)
	v.SetDefault("checker.memory_mb", 256)
	v.SetDefault("checker.cpu_shares", 512)
	v.SetDefault("exam.final_variants", 1)
	v.SetDefault("submission.max_code_bytes", 64*1024)
	v.SetDefault("submission.rate_limit", 30)
	v.SetDefault("board.cache_ttl", "30s")

	interval, err := duration(v, "worker.interval")
	if err != nil {
		return Config{}, err
	}
	checkerTimeout, err := duration(v, "worker.checker_timeout")
	if err != nil {
		return Config{}, err
	}
	leaseTTL, err := duration(v, "worker.lease_ttl")
	if err != nil {
		return Config{}, err
	}
	if leaseTTL <= checkerTimeout {
		return Config{}, fmt.Errorf("invalid worker.lease_ttl: %s must exceed worker.checker_timeout %s", leaseTTL, checkerTimeout)
	}
	boardTTL, err := duration(v, "board.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	finalTasks, err := parseFinalTasks(v.GetString("exam.final_tasks"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		ReadOnly:             v.GetBool("app.readonly"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		EventsChannel:        v.GetString("events.channel"),
		WorkerDisabled:       v.GetBool("worker.disabled"),
		WorkerInterval:       interval,
		WorkerCheckerTimeout: checkerTimeout,
		WorkerLeaseTTL:       leaseTTL,
		CheckerDriver:        strings.ToLower(v.GetString("checker.driver")),
		CheckerImage:         v.GetString("checker.image"),
		CheckerCommand:       strings.Fields(v.GetString("checker.command")),
		CheckerURL:           v.GetString("checker.url"),
		CheckerRetries:       v.GetInt("checker.retries"),
		CheckerMemoryMB:      v.GetInt("checker.memory_mb"),
		CheckerCPUShares:     v.GetInt("checker.cpu_shares"),
		DockerHost:           v.GetString("docker_host"),
		OpenAIAPIKey:         v.GetString("openai_api_key"),
		OpenAIModel:          v.GetString("openai.model"),
		FinalTasks:           finalTasks,
		FinalVariants:        v.GetInt("exam.final_variants"),
		MaxCodeBytes:         v.GetInt("submission.max_code_bytes"),
		SubmissionRateLimit:  v.GetInt("submission.rate_limit"),
		BoardCacheTTL:        boardTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.FinalVariants <= 0 {
		cfg.FinalVariants = 1
	}

	if cfg.CheckerRetries < 0 {
		cfg.CheckerRetries = 0
	}

	if cfg.CheckerMemoryMB <= 0 {
		cfg.CheckerMemoryMB = 256
	}

	if cfg.CheckerCPUShares <= 0 {
		cfg.CheckerCPUShares = 512
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	value, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

// parseFinalTasks decodes the exam task sets, a JSON object of group title to task ids.
func parseFinalTasks(raw string) (map[string][]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string][]int{}, nil
	}

	var tasks map[string][]int
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, fmt.Errorf("invalid exam.final_tasks: %w", err)
	}
	for title, ids := range tasks {
		if len(ids) == 0 {
			delete(tasks, title)
		}
	}
	return tasks, nil
}
