package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "jobmail/contracts/mq"
	"jobmail/internal/extractor"
	"jobmail/internal/merge"
	"jobmail/internal/model"
	"jobmail/pkg/config"
	"jobmail/pkg/logger"
	"jobmail/pkg/metrics"
	"jobmail/pkg/mq"
	"jobmail/pkg/otel"
	"jobmail/pkg/trace"
	"jobmail/pkg/util"
)

const handlerName = "classify"

// unknownRetryCount marks a delivery whose retry counter could not be read.
const unknownRetryCount int64 = -1

type Extractor interface {
	Extract(email *model.RawEmail) (*model.ExtractedApplication, error)
}

type Merger interface {
	Merge(ctx context.Context, userID string, parsed *model.ExtractedApplication) (merge.Outcome, error)
}

// ProcessedStore remembers which emails the worker has finished with.
type ProcessedStore interface {
	MarkProcessed(ctx context.Context, userID, emailID string) error
	IsProcessed(ctx context.Context, userID, emailID string) (bool, error)
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, userID, emailID string) bool
	Release(ctx context.Context, handler, userID, emailID string) error
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, errorType, originalError string) error
}

// EmailFetchedHandler runs the extraction and merge pipeline for one
// job.email.fetched delivery.
type EmailFetchedHandler struct {
	extractor    Extractor
	merger       Merger
	processed    ProcessedStore
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DLQPublisher
	pipeline     config.PipelineConfig
	logger       *zap.Logger
}

func NewEmailFetchedHandler(
	extractor Extractor,
	merger Merger,
	processed ProcessedStore,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DLQPublisher,
	pipeline config.PipelineConfig,
	logger *zap.Logger,
) *EmailFetchedHandler {
	return &EmailFetchedHandler{
		extractor:    extractor,
		merger:       merger,
		processed:    processed,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		pipeline:     pipeline,
		logger:       logger,
	}
}

// Handle returns an error only when the delivery should be redelivered.
func (h *EmailFetchedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	// --------------------------
	// Step 1: decode payload
	// --------------------------
	var payload mqcontracts.EmailFetchedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error("Invalid EmailFetchedPayload, sending to DLQ",
			zap.Int("size", len(raw)),
			zap.Error(err),
		)
		h.deadLetter(ctx, raw, "bad_payload", err)
		return nil
	}
	if payload.UserID == "" || payload.Email.ID == "" {
		err := errors.New("payload missing user_id or email id")
		h.logger.Error("Incomplete EmailFetchedPayload, sending to DLQ", zap.Error(err))
		h.deadLetter(ctx, raw, "bad_payload", err)
		return nil
	}

	ctx, _ = trace.Ensure(ctx, payload.TraceID)
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("user_id", payload.UserID),
		zap.String("email_id", payload.Email.ID),
	)
	userID, emailID := payload.UserID, payload.Email.ID

	// --------------------------
	// Step 2: idempotency
	// --------------------------
	done, err := h.processed.IsProcessed(ctx, userID, emailID)
	if err != nil {
		return h.handleError(ctx, log, raw, err, userID, emailID, 0)
	}
	if done {
		log.Debug("Email already processed, skip")
		metrics.IncrementEmailProcessed("duplicate")
		return nil
	}

	// Redis 去重（避免并发重复消费）
	if !h.deduper.AcquireOnce(ctx, handlerName, userID, emailID) {
		metrics.IncrementEmailProcessed("duplicate")
		return nil
	}

	retryKey := util.FormatRetryKey(handlerName, userID, emailID)
	retryCount, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Retry counter unavailable", zap.Error(err))
		retryCount = unknownRetryCount
	}

	// --------------------------
	// Step 3: extract
	// --------------------------
	_, span := otel.StartSpan(ctx, "extractor.extract")
	parsed, err := h.extractor.Extract(&payload.Email)
	otel.EndSpan(span, err)
	if err != nil {
		return h.handleError(ctx, log, raw, err, userID, emailID, retryCount)
	}
	metrics.RecordExtraction(string(parsed.Status), parsed.Confidence)

	if reason := h.discardReason(parsed); reason != "" {
		log.Info("Discarding email",
			zap.String("reason", reason),
			zap.Float64("confidence", parsed.Confidence),
			zap.String("subject", parsed.Subject),
		)
		if err := h.processed.MarkProcessed(ctx, userID, emailID); err != nil {
			return h.handleError(ctx, log, raw, err, userID, emailID, retryCount)
		}
		metrics.IncrementEmailProcessed("discarded")
		h.finish(ctx, log, retryKey)
		return nil
	}

	// --------------------------
	// Step 4: merge
	// --------------------------
	mctx := ctx
	if h.pipeline.LockWait > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, h.pipeline.LockWait)
		defer cancel()
	}
	mctx, span = otel.StartSpan(mctx, "merge.merge")
	start := time.Now()
	out, err := h.merger.Merge(mctx, userID, parsed)
	otel.EndSpan(span, err)
	if err != nil {
		return h.handleError(ctx, log, raw, err, userID, emailID, retryCount)
	}
	metrics.RecordMerge(string(out.Decision), out.Changed, time.Since(start))

	if err := h.processed.MarkProcessed(ctx, userID, emailID); err != nil {
		// merge 已完成且幂等，重投递只会得到 changed=false
		return h.handleError(ctx, log, raw, err, userID, emailID, retryCount)
	}

	metrics.IncrementEmailProcessed("merged")
	h.finish(ctx, log, retryKey)

	log.Info("Email merged",
		zap.String("decision", string(out.Decision)),
		zap.Bool("changed", out.Changed),
		zap.String("company", out.Application.Company),
		zap.String("role", out.Application.Role),
		zap.String("status", string(out.Application.Status)),
	)
	return nil
}

// discardReason returns why parsed should not reach the merge engine, or "".
func (h *EmailFetchedHandler) discardReason(parsed *model.ExtractedApplication) string {
	if h.pipeline.DiscardNonApplications && parsed.IsLikelyNonApplication {
		return "non_application"
	}
	if parsed.Confidence < h.pipeline.MinConfidence {
		return "low_confidence"
	}
	return ""
}

func (h *EmailFetchedHandler) finish(ctx context.Context, log *zap.Logger, retryKey string) {
	if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
		log.Debug("Failed to reset retry counter", zap.Error(err))
	}
}

// handleError decides between redelivery (non-nil return) and dead-lettering.
func (h *EmailFetchedHandler) handleError(ctx context.Context, log *zap.Logger, raw []byte, err error, userID, emailID string, retryCount int64) error {
	retryable, errType := util.IsRetryableError(err)
	log.Warn("Email processing failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry", retryCount),
		zap.Error(err),
	)

	// 释放去重键，否则重投递会被当作重复消息跳过
	if rerr := h.deduper.Release(ctx, handlerName, userID, emailID); rerr != nil {
		log.Debug("Failed to release dedup key", zap.Error(rerr))
	}

	if util.ShouldRetry(retryCount, h.pipeline.MaxRetries, retryable) {
		if retryCount == unknownRetryCount {
			// 计数器不可用时无法限制重试次数
			log.Warn("Requeueing without retry bound, retry counter unavailable",
				zap.String("error_type", errType),
				zap.Int64("max_retries", h.pipeline.MaxRetries),
			)
		}
		return fmt.Errorf("%s: %w", errType, err)
	}

	metrics.IncrementEmailProcessed("failed")
	h.deadLetter(ctx, raw, errType, err)

	// 抽取失败是确定性的：标记已处理，避免下次扫描重新拉取
	if errors.Is(err, extractor.ErrExtraction) {
		if merr := h.processed.MarkProcessed(ctx, userID, emailID); merr != nil {
			log.Error("Failed to mark unextractable email processed", zap.Error(merr))
		}
	}
	h.finish(ctx, log, util.FormatRetryKey(handlerName, userID, emailID))
	return nil
}

func (h *EmailFetchedHandler) deadLetter(ctx context.Context, raw []byte, errType string, cause error) {
	if err := h.dlq.PublishToDLQ(ctx, mq.RoutingEmailFetched, raw, errType, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ",
			zap.String("error_type", errType),
			zap.Error(err),
		)
	}
}
