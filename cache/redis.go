package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"songforge/model"

	"github.com/go-redis/redis/v8"
)

const (
	songListKey   = "songs:list:%s"  // String: JSON []model.SongResponse
	creditsKey    = "credits:%s"     // String: "<generation>:<balance>"
	creditsGenKey = "credits:gen:%s" // Integer: bumped on every invalidation
	songListTTL   = 5 * time.Minute
	// the worker debits credits without invalidating, so balances expire quickly
	creditsTTL = 30 * time.Second
)

// SongListKey 根据用户ID生成歌曲列表的Redis键
func SongListKey(userID string) string {
	return fmt.Sprintf(songListKey, userID)
}

// CreditsKey 根据用户ID生成余额的Redis键
func CreditsKey(userID string) string {
	return fmt.Sprintf(creditsKey, userID)
}

// SongListCache caches each user's rendered song listing.
type SongListCache struct {
	client redis.Cmdable
}

// CreditsGenerationKey 根据用户ID生成余额版本号的Redis键
func CreditsGenerationKey(userID string) string {
	return fmt.Sprintf(creditsGenKey, userID)
}

// NewSongListCache 创建歌曲列表缓存
func NewSongListCache(client redis.Cmdable) *SongListCache {
	return &SongListCache{client: client}
}

// Get returns the cached listing; ok is false on a miss.
func (c *SongListCache) Get(ctx context.Context, userID string) ([]model.SongResponse, bool, error) {
	data, err := c.client.Get(ctx, SongListKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get song list: %w", err)
	}

	var songs []model.SongResponse
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal song list: %w", err)
	}
	return songs, true, nil
}

// Set stores the listing. The TTL stays well under the signed URL lifetime embedded in it.
func (c *SongListCache) Set(ctx context.Context, userID string, songs []model.SongResponse) error {
	data, err := json.Marshal(songs)
	if err != nil {
		return fmt.Errorf("failed to marshal song list: %w", err)
	}
	return c.client.Set(ctx, SongListKey(userID), data, songListTTL).Err()
}

// InvalidateSongList marks the user's listing stale.
func (c *SongListCache) InvalidateSongList(ctx context.Context, userID string) error {
	return c.client.Del(ctx, SongListKey(userID)).Err()
}

// BalanceCache caches credit balances.
//
// A reader takes a Stamp before loading the balance from the database and
// stores the balance under that stamp. InvalidateBalance bumps the generation,
// so a balance loaded before a concurrent grant is never served afterwards.
type BalanceCache struct {
	client redis.Cmdable
}

// NewBalanceCache 创建余额缓存
func NewBalanceCache(client redis.Cmdable) *BalanceCache {
	return &BalanceCache{client: client}
}

// Stamp returns the current balance generation for userID.
func (c *BalanceCache) Stamp(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, CreditsGenerationKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached balance; ok is false on a miss or when the entry predates
// the latest invalidation.
func (c *BalanceCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, CreditsKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get balance: %w", err)
	}

	genPart, balancePart, found := strings.Cut(val, ":")
	if !found {
		return 0, false, fmt.Errorf("corrupt balance for %s: %q", userID, val)
	}
	stamp, err := strconv.ParseInt(genPart, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}
	credits, err := strconv.ParseInt(balancePart, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}

	current, err := c.Stamp(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if stamp != current {
		return 0, false, nil
	}
	return credits, true, nil
}

// Set stores a balance read after stamp was taken.
func (c *BalanceCache) Set(ctx context.Context, userID string, stamp, credits int64) error {
	val := strconv.FormatInt(stamp, 10) + ":" + strconv.FormatInt(credits, 10)
	return c.client.Set(ctx, CreditsKey(userID), val, creditsTTL).Err()
}

// InvalidateBalance bumps the generation, then drops the cached balance so the next read hits the database.
func (c *BalanceCache) InvalidateBalance(ctx context.Context, userID string) error {
	if err := c.client.Incr(ctx, CreditsGenerationKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to bump balance generation: %w", err)
	}
	return c.client.Del(ctx, CreditsKey(userID)).Err()
}
