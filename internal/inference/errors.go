package inference

import (
	"context"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"

	"github.com/betbot/signalbot/internal/domain"
)

// CallError 带分类的调用错误
type CallError struct {
	Kind domain.ErrorKind
	Err  error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *CallError) Unwrap() error { return e.Err }

func apiError(format string, args ...interface{}) error {
	return &CallError{Kind: domain.ErrorKindAPI, Err: errors.Errorf(format, args...)}
}

func parseError(err error, msg string) error {
	return &CallError{Kind: domain.ErrorKindUnknown, Err: errors.Wrap(err, msg)}
}

// Classify 把任意调用错误归入四类之一
//
// 顺序有意义：截止时间/取消优先于传输层错误（resty 会把 ctx 超时包在 *url.Error 里）。
func Classify(ctx context.Context, err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrorKindTimeout
	}
	if ctx != nil && ctx.Err() != nil {
		return domain.ErrorKindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return domain.ErrorKindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrorKindNetwork
	}
	return domain.ErrorKindUnknown
}
