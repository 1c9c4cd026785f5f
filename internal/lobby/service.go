package lobby

import (
	"context"
	"time"

	"CardRoom/internal/utils"
)

// Source 提供所有桌子的最新摘要，实现方不得阻塞在任何单张桌子上
type Source interface {
	Summaries() []TableSummary
}

type Service struct {
	repo Repo
	src  Source
	ttl  int // seconds，摘要过期时间
}

func NewService(repo Repo, src Source, ttlSeconds int) *Service {
	return &Service{repo: repo, src: src, ttl: ttlSeconds}
}

// Sync 把当前所有桌子的摘要写入目录
func (s *Service) Sync(ctx context.Context) error {
	if s.src == nil {
		return nil
	}
	for _, t := range s.src.Summaries() {
		if err := s.repo.SaveTable(ctx, t, s.ttl); err != nil {
			return err
		}
	}
	return nil
}

// Run 定时同步，ctx 取消后退出
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.Sync(ctx); err != nil {
			utils.Log.Warn("lobby sync failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) Tables(ctx context.Context) ([]TableSummary, error) {
	return s.repo.ListTables(ctx)
}

func (s *Service) Table(ctx context.Context, id string) (TableSummary, bool, error) {
	return s.repo.GetTable(ctx, id)
}

func (s *Service) Seat(ctx context.Context, address, tableID string) error {
	return s.repo.SetPlayerTable(ctx, address, tableID)
}

func (s *Service) Unseat(ctx context.Context, address string) error {
	return s.repo.ClearPlayerTable(ctx, address)
}

func (s *Service) TableOf(ctx context.Context, address string) (string, error) {
	return s.repo.GetPlayerTable(ctx, address)
}
