package ingest

import (
	"context"
	"fmt"

	"coursesync/internal/model"
)

// GetHistory returns the most recent crawl operations, ordered newest first.
func (s *Service) GetHistory(ctx context.Context, limit int) ([]*model.CrawlOperation, error) {
	ops, err := s.database.ListCrawlOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing crawl operations: %w", err)
	}
	return ops, nil
}
