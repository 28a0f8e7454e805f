// Package redis stores orphaned deployments: launches the platform accepted
// whose execution row could not be written. They survive restarts here until
// reconciliation adopts or abandons them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/ports"
)

const (
	orphanSetKey     = "botfleet:orphans"
	orphanMetaPrefix = "botfleet:orphans:meta:"
)

type OrphanStore struct {
	client *redis.Client
}

var _ ports.OrphanStore = (*OrphanStore)(nil)

// Open parses the URL and connects. The client is shared with the health
// probe, so it is returned alongside the store.
func Open(url string) (*OrphanStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return &OrphanStore{client: client}, client, nil
}

func NewOrphanStore(client *redis.Client) *OrphanStore {
	return &OrphanStore{client: client}
}

// Add records an orphan keyed by deployment id, scored by acceptance time so
// listing returns oldest first.
func (s *OrphanStore) Add(ctx context.Context, orphan domain.OrphanDeployment) error {
	data, err := json.Marshal(orphan)
	if err != nil {
		return fmt.Errorf("marshal orphan: %w", err)
	}

	err = s.client.ZAdd(ctx, orphanSetKey, redis.Z{
		Score:  float64(orphan.AcceptedAt.Unix()),
		Member: orphan.DeploymentID,
	}).Err()
	if err != nil {
		return fmt.Errorf("index orphan: %w", err)
	}

	if err := s.client.Set(ctx, orphanMetaPrefix+orphan.DeploymentID, data, 0).Err(); err != nil {
		return fmt.Errorf("store orphan: %w", err)
	}
	return nil
}

// List returns all tracked orphans, oldest first. An index entry whose
// metadata vanished is dropped from the index on the way through.
func (s *OrphanStore) List(ctx context.Context) ([]domain.OrphanDeployment, error) {
	ids, err := s.client.ZRange(ctx, orphanSetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}

	orphans := make([]domain.OrphanDeployment, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, orphanMetaPrefix+id).Bytes()
		if err == redis.Nil {
			s.client.ZRem(ctx, orphanSetKey, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read orphan %s: %w", id, err)
		}
		var orphan domain.OrphanDeployment
		if err := json.Unmarshal(data, &orphan); err != nil {
			return nil, fmt.Errorf("decode orphan %s: %w", id, err)
		}
		orphans = append(orphans, orphan)
	}
	return orphans, nil
}

func (s *OrphanStore) Remove(ctx context.Context, deploymentID string) error {
	if err := s.client.ZRem(ctx, orphanSetKey, deploymentID).Err(); err != nil {
		return fmt.Errorf("deindex orphan: %w", err)
	}
	if err := s.client.Del(ctx, orphanMetaPrefix+deploymentID).Err(); err != nil {
		return fmt.Errorf("delete orphan: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the orphan's resolution attempt counter and returns
// the new value.
func (s *OrphanStore) IncrementAttempts(ctx context.Context, deploymentID string) (int, error) {
	data, err := s.client.Get(ctx, orphanMetaPrefix+deploymentID).Bytes()
	if err == redis.Nil {
		return 0, fmt.Errorf("orphan %s not found", deploymentID)
	}
	if err != nil {
		return 0, fmt.Errorf("read orphan %s: %w", deploymentID, err)
	}

	var orphan domain.OrphanDeployment
	if err := json.Unmarshal(data, &orphan); err != nil {
		return 0, fmt.Errorf("decode orphan %s: %w", deploymentID, err)
	}
	orphan.Attempts++

	updated, err := json.Marshal(orphan)
	if err != nil {
		return 0, fmt.Errorf("marshal orphan: %w", err)
	}
	if err := s.client.Set(ctx, orphanMetaPrefix+deploymentID, updated, 0).Err(); err != nil {
		return 0, fmt.Errorf("store orphan: %w", err)
	}
	return orphan.Attempts, nil
}
