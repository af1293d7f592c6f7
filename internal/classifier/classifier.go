package classifier

import (
	"context"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// Analyzer 把邮件正文交给 completion 服务并返回文本
type Analyzer interface {
	Analyze(ctx context.Context, emailContent string) (string, error)
}

// Decision 一次分类的标签和模型原始文本
type Decision struct {
	Label        model.Label
	RawModelText string
}

// Classifier 在 completion 文本上执行规则列表
type Classifier struct {
	analyzer Analyzer
	rules    []Rule
	fallback model.Label
	logger   *zap.Logger
}

func NewClassifier(analyzer Analyzer, logger *zap.Logger) *Classifier {
	return &Classifier{
		analyzer: analyzer,
		rules:    DefaultRules(),
		fallback: model.LabelMoreInformation,
		logger:   logger,
	}
}

// Analyze 透传给底层 Analyzer
func (c *Classifier) Analyze(ctx context.Context, emailContent string) (string, error) {
	return c.analyzer.Analyze(ctx, emailContent)
}

// Categorize 调用 Analyze 后按规则决定标签；Analyze 失败时不返回任何标签
func (c *Classifier) Categorize(ctx context.Context, emailContent string) (Decision, error) {
	text, err := c.analyzer.Analyze(ctx, emailContent)
	if err != nil {
		logger.WithTrace(ctx, c.logger).Error("Failed to analyze email content",
			zap.Int("content_length", len(emailContent)),
			zap.Error(err),
		)
		return Decision{}, err
	}

	label, rule := Decide(c.rules, c.fallback, text)
	logger.WithTrace(ctx, c.logger).Debug("Email categorized",
		zap.String("label", string(label)),
		zap.String("rule", rule),
	)
	return Decision{Label: label, RawModelText: text}, nil
}
