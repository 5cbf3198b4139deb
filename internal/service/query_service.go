package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/dto"
	"github.com/mironalin/BeamerParts-sub003/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const defaultSnapshotCacheTTL = 30 * time.Second

// QueryService is the read-only facade over ledger state. It never mutates;
// single lookups go through a short-lived Redis cache that the mutation path
// invalidates, so reads after a write always see the write.
type QueryService interface {
	Snapshot(ctx context.Context, key dto.ProductKey) (*dto.LedgerSnapshot, error)
	BulkSnapshot(ctx context.Context, keys []dto.ProductKey) ([]dto.LedgerSnapshot, error)
}

type queryService struct {
	ledger   repository.LedgerRepository
	rdb      *redis.Client
	cacheTTL time.Duration
}

func NewQueryService(ledger repository.LedgerRepository, rdb *redis.Client, cacheTTL time.Duration) QueryService {
	if cacheTTL <= 0 {
		cacheTTL = defaultSnapshotCacheTTL
	}
	return &queryService{ledger: ledger, rdb: rdb, cacheTTL: cacheTTL}
}

func (s *queryService) Snapshot(ctx context.Context, key dto.ProductKey) (*dto.LedgerSnapshot, error) {
	cacheKey := snapshotCacheKey(key.SKU, key.VariantSKU)

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var snap dto.LedgerSnapshot
			if jsonErr := json.Unmarshal(cached, &snap); jsonErr == nil {
				return &snap, nil
			}
		}
	}

	entry, err := s.ledger.FindByKey(ctx, key.SKU, key.VariantSKU)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	snap := snapshotFrom(entry)

	// Populate cache — best effort, ignore errors.
	if s.rdb != nil {
		if b, jsonErr := json.Marshal(snap); jsonErr == nil {
			_ = s.rdb.Set(ctx, cacheKey, b, s.cacheTTL).Err()
		}
	}
	return &snap, nil
}

// BulkSnapshot resolves many keys in one DB round trip. Results keep request
// order; unknown keys yield a zeroed snapshot (in_stock=false), mirroring how
// isAvailable treats absent entries.
func (s *queryService) BulkSnapshot(ctx context.Context, keys []dto.ProductKey) ([]dto.LedgerSnapshot, error) {
	entries, err := s.ledger.ListByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	byKey := make(map[string]dto.LedgerSnapshot, len(entries))
	for i := range entries {
		e := &entries[i]
		byKey[snapshotCacheKey(e.SKU, e.VariantSKU)] = snapshotFrom(e)
	}

	out := make([]dto.LedgerSnapshot, 0, len(keys))
	for _, k := range keys {
		if snap, ok := byKey[snapshotCacheKey(k.SKU, k.VariantSKU)]; ok {
			out = append(out, snap)
			continue
		}
		out = append(out, dto.LedgerSnapshot{SKU: k.SKU, VariantSKU: k.VariantSKU})
	}
	return out, nil
}
