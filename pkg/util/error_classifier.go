package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"jobmail/pkg/lock"
)

// IsRetryableError determines if an error is retryable
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	errStr := err.Error()

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || strings.Contains(errStr, "json:") {
		return false, "json_decode_error"
	}

	// 抽取失败是确定性的，重试没有意义
	if strings.Contains(errStr, "extractor:") {
		return false, "extraction_error"
	}

	// Context - 先于网络错误判断
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}

	if errors.Is(err, lock.ErrNotAcquired) {
		return true, "lock_not_acquired"
	}
	if strings.Contains(errStr, "concurrent update") || strings.Contains(errStr, "duplicate application key") {
		return true, "merge_conflict"
	}

	// Database errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true, "db_serialization"
		case "23505": // unique_violation
			return true, "duplicate_key"
		}
		if strings.HasPrefix(pgErr.Code, "08") { // connection exception
			return true, "db_connection_error"
		}
		return false, "db_error"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		// 连接问题 - 可重试
		return true, "db_connection_error"
	}

	// Network errors - 可重试
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// ShouldRetry checks if an error should be retried based on retry count
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
