package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mailtriage/pkg/config"
)

// 任务队列后端
const (
	BrokerMemory   = "memory"
	BrokerRabbitMQ = "rabbitmq"
)

// 进程角色
const (
	RoleServe  = "serve"
	RoleAPI    = "api"
	RoleWorker = "worker"
)

type OAuthConfig struct {
	Google       config.OAuthProviderConfig `yaml:"google"`
	Outlook      config.OAuthProviderConfig `yaml:"outlook"`
	StateSecret  string                     `yaml:"state_secret"`
	StateTTL     time.Duration              `yaml:"state_ttl"`
	RequireState bool                       `yaml:"require_state"`
	Timeout      time.Duration              `yaml:"timeout"`
}

type QueueConfig struct {
	Broker   string        `yaml:"broker"`
	Capacity int           `yaml:"capacity"`
	Workers  int           `yaml:"workers"`
	JobTTL   time.Duration `yaml:"job_ttl"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

type Config struct {
	Server config.ServerConfig `yaml:"server"`
	Log    config.LogConfig    `yaml:"log"`
	OAuth  OAuthConfig         `yaml:"oauth"`
	OpenAI config.OpenAIConfig `yaml:"openai"`
	Queue  QueueConfig         `yaml:"queue"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	OTel   config.OTelConfig   `yaml:"otel"`
}

// Load 依次加载 .env、config/base.yaml、config/<env>.yaml、config/secrets.env，最后用环境变量覆盖
func Load(env, dir string) (*Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfgMap, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLogFromEnv(&cfg.Log)
	config.OverrideOAuthFromEnv("GOOGLE", &cfg.OAuth.Google)
	config.OverrideOAuthFromEnv("OUTLOOK", &cfg.OAuth.Outlook)
	config.OverrideOpenAIFromEnv(&cfg.OpenAI)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideOTelFromEnv(&cfg.OTel)
	if secret := os.Getenv("OAUTH_STATE_SECRET"); secret != "" {
		cfg.OAuth.StateSecret = secret
	}
	if broker := os.Getenv("QUEUE_BROKER"); broker != "" {
		cfg.Queue.Broker = broker
	}

	cfg.clearPlaceholders()
	return cfg, nil
}

// Default 未在 yaml 中出现的字段使用这些值
func Default() *Config {
	return &Config{
		Server: config.ServerConfig{Port: ":3000", ShutdownTimeout: 30 * time.Second},
		Log:    config.LogConfig{Level: "info"},
		OAuth: OAuthConfig{
			StateTTL: 10 * time.Minute,
			Timeout:  10 * time.Second,
		},
		OpenAI: config.OpenAIConfig{
			Model:     "gpt-3.5-turbo-instruct",
			MaxTokens: 50,
			Timeout:   20 * time.Second,
		},
		Queue: QueueConfig{
			Broker:   BrokerMemory,
			Capacity: 1024,
			Workers:  1,
			JobTTL:   24 * time.Hour,
			DedupTTL: time.Hour,
		},
		MQ:   config.MQConfig{Queue: "email.classify.q", Prefetch: 1},
		OTel: config.OTelConfig{ServiceName: "mailtriage"},
	}
}

// clearPlaceholders 没有被替换的 ${VAR} 视为未配置
func (c *Config) clearPlaceholders() {
	for _, s := range []*string{
		&c.OAuth.Google.ClientID, &c.OAuth.Google.ClientSecret, &c.OAuth.Google.RedirectURI,
		&c.OAuth.Outlook.ClientID, &c.OAuth.Outlook.ClientSecret, &c.OAuth.Outlook.RedirectURI,
		&c.OAuth.StateSecret, &c.OpenAI.APIKey, &c.MQ.URL, &c.Redis.Addr, &c.Redis.Password,
	} {
		if strings.HasPrefix(*s, "${") && strings.HasSuffix(*s, "}") {
			*s = ""
		}
	}
}

// Validate 按进程角色检查必填项
func (c *Config) Validate(role string) error {
	var errs []error

	switch c.Queue.Broker {
	case BrokerMemory:
		if role != RoleServe {
			errs = append(errs, fmt.Errorf("queue broker %q only works with the serve command", BrokerMemory))
		}
	case BrokerRabbitMQ:
		if c.MQ.URL == "" {
			errs = append(errs, errors.New("mq.url is required for the rabbitmq broker"))
		}
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the rabbitmq broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue broker %q", c.Queue.Broker))
	}

	if c.Queue.Workers <= 0 {
		errs = append(errs, errors.New("queue.workers must be positive"))
	}
	if c.OpenAI.Timeout <= 0 || c.OAuth.Timeout <= 0 {
		errs = append(errs, errors.New("network timeouts must be positive"))
	}

	if role != RoleWorker {
		if c.OAuth.StateSecret == "" {
			errs = append(errs, errors.New("oauth.state_secret is required"))
		}
	}
	if role != RoleAPI {
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required"))
		}
	}

	return errors.Join(errs...)
}

// GoogleEnabled 是否配置了 Google 客户端
func (c *Config) GoogleEnabled() bool {
	return c.OAuth.Google.ClientID != "" && c.OAuth.Google.ClientSecret != ""
}

// OutlookEnabled 是否配置了 Outlook 客户端
func (c *Config) OutlookEnabled() bool {
	return c.OAuth.Outlook.ClientID != "" && c.OAuth.Outlook.ClientSecret != ""
}
