package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/config"
	"mailtriage/pkg/metrics"
)

const (
	// DefaultModel text-davinci-003 已下线，使用兼容的 instruct 模型
	DefaultModel = "gpt-3.5-turbo-instruct"

	// DefaultMaxTokens completion token 上限
	DefaultMaxTokens = 50

	// DefaultTimeout 单次调用超时，避免 worker 卡死
	DefaultTimeout = 20 * time.Second
)

// ErrAPIKeyNotSet 没有配置 API key
var ErrAPIKeyNotSet = errors.New("completion API key not set: please set OPENAI_API_KEY")

// Client 调用 text completion endpoint，只尝试一次
type Client struct {
	client    openai.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	breaker   *circuitbreaker.CircuitBreaker
}

// NewClient 根据配置创建 Client，extra 用于测试时覆盖 HTTP 客户端等
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger, extra ...option.RequestOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	c := &Client{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}

	cbCfg := circuitbreaker.DefaultConfig("completion")
	cbCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	c.breaker = circuitbreaker.New(cbCfg)

	return c, nil
}

// ModelName 返回模型名
func (c *Client) ModelName() string {
	return c.model
}

// Analyze 把邮件正文作为 prompt 发送，返回第一个 choice 去掉首尾空白后的文本
func (c *Client) Analyze(ctx context.Context, emailContent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var resp *openai.Completion
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.client.Completions.New(ctx, openai.CompletionNewParams{
			Model:     openai.CompletionNewParamsModel(c.model),
			Prompt:    openai.CompletionNewParamsPromptUnion{OfString: openai.String(emailContent)},
			MaxTokens: openai.Int(c.maxTokens),
		})
		return err
	})
	if err != nil {
		metrics.RecordCompletionCallLatency(c.model, "error", time.Since(start))
		cerr := &CompletionError{Op: "request", Err: fmt.Errorf("failed to call completion endpoint: %w", err)}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			cerr.StatusCode = apiErr.StatusCode
		}
		return "", cerr
	}
	metrics.RecordCompletionCallLatency(c.model, "ok", time.Since(start))

	if resp == nil || len(resp.Choices) == 0 {
		return "", &CompletionError{Op: "decode", Err: ErrEmptyCompletion}
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}
