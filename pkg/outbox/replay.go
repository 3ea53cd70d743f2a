package outbox

import (
	"context"
	"fmt"
)

// ReplayService 提供重放 Outbox 事件的服务
type ReplayService struct {
	repo       *Repository
	publisher  Publisher
	maxRetries int
}

// NewReplayService 创建新的 ReplayService
func NewReplayService(repo *Repository, publisher Publisher) *ReplayService {
	return &ReplayService{
		repo:       repo,
		publisher:  publisher,
		maxRetries: 5,
	}
}

// ReplayEvent 重放指定的事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	if err := publish(ctx, s.publisher, event); err != nil {
		if markErr := s.repo.MarkAsFailed(ctx, eventID, s.maxRetries); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return err
	}

	if err := s.repo.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}

	return nil
}

// ReplayFailedEvents 重放所有失败的事件，返回成功数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		// 记录错误但继续处理其他事件
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			continue
		}
		successCount++
	}

	return successCount, nil
}
