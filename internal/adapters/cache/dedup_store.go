package cache

import (
	"context"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

const dedupPrefix = "notif:"

// DedupStore keeps notification marks in Redis without expiry.
type DedupStore struct {
	client Client
}

var _ ports.DedupStore = (*DedupStore)(nil)

func NewDedupStore(client Client) *DedupStore {
	return &DedupStore{client: client}
}

// MarkIfAbsent relies on SETNX, so concurrent observers for the same key
// agree on a single winner.
func (s *DedupStore) MarkIfAbsent(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, dedupPrefix+key, "1", 0).Result()
	if err != nil {
		return false, domain.NewRemoteError("mark notification", err)
	}
	return ok, nil
}
