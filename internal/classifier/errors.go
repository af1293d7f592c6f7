package classifier

import (
	"errors"
	"fmt"
)

// ErrEmptyCompletion completion 响应没有第一个 choice
var ErrEmptyCompletion = errors.New("completion response has no choices")

// CompletionError completion 调用失败或响应结构不合法
type CompletionError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion %s: %v", e.Op, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ErrorType 用于日志和指标
func (e *CompletionError) ErrorType() string {
	if errors.Is(e.Err, ErrEmptyCompletion) {
		return "empty_completion"
	}
	return "completion_error"
}
