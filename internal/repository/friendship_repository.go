package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const friendCacheTTL = 24 * time.Hour

type FriendshipRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewFriendshipRepository(db *gorm.DB, rdb *redis.Client) *FriendshipRepository {
	return &FriendshipRepository{
		DB:    db,
		Redis: rdb,
	}
}

func friendCacheKey(userID uint) string {
	return fmt.Sprintf("chat:relation:friends:%d", userID)
}

// friendCacheVersionKey 每次失效都会递增，回填缓存时 WATCH 该 key
func friendCacheVersionKey(userID uint) string {
	return fmt.Sprintf("chat:relation:friends:ver:%d", userID)
}

// Create 写入新的待处理关系，同一无序用户对已存在记录时返回 ErrAlreadyExists
func (r *FriendshipRepository) Create(ctx context.Context, f *model.Friendship) error {
	f.PairLow, f.PairHigh = model.OrderedPair(f.RequesterID, f.RecipientID)
	if f.Status == "" {
		f.Status = model.FriendshipPending
	}
	err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(f).Error
	if isDuplicateKey(err) {
		return util.ErrAlreadyExists
	}
	return util.StoreError("create friendship", err)
}

// FindBetween 查找两个用户之间的关系（不区分方向）
func (r *FriendshipRepository) FindBetween(ctx context.Context, a, b uint) (*model.Friendship, error) {
	low, high := model.OrderedPair(a, b)
	var f model.Friendship
	err := r.DB.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ?", low, high).
		First(&f).Error
	if err != nil {
		return nil, notFoundOr("find friendship", err)
	}
	return &f, nil
}

// MarkAccepted 条件更新 pending -> accepted，返回是否由本次调用完成状态迁移
func (r *FriendshipRepository) MarkAccepted(ctx context.Context, f *model.Friendship, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("id = ? AND status = ?", f.ID, model.FriendshipPending).
		Updates(map[string]interface{}{
			"status":      model.FriendshipAccepted,
			"accepted_at": at,
		})
	if res.Error != nil {
		return false, util.StoreError("accept friendship", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	f.Status = model.FriendshipAccepted
	f.AcceptedAt = &at
	r.invalidate(ctx, f.RequesterID, f.RecipientID)
	return true, nil
}

func (r *FriendshipRepository) invalidate(ctx context.Context, userIDs ...uint) {
	if r.Redis == nil {
		return
	}
	// 递增版本号，让正在进行的回填在 EXEC 时失败；单独 DEL 一个不存在的 key 不会触发 WATCH
	pipe := r.Redis.TxPipeline()
	for _, id := range userIDs {
		pipe.Del(ctx, friendCacheKey(id))
		pipe.Incr(ctx, friendCacheVersionKey(id))
		pipe.Expire(ctx, friendCacheVersionKey(id), 2*friendCacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("Failed to invalidate friend cache", zap.Uints("userIds", userIDs), zap.Error(err))
	}
}

// FriendIDs 只获取已接受好友的 ID 列表
func (r *FriendshipRepository) FriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	var rows []model.Friendship
	err := r.DB.WithContext(ctx).
		Select("requester_id", "recipient_id").
		Where("status = ? AND (requester_id = ? OR recipient_id = ?)", model.FriendshipAccepted, userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, util.StoreError("list friend ids", err)
	}

	ids := make([]uint, 0, len(rows))
	for _, f := range rows {
		if f.RequesterID == userID {
			ids = append(ids, f.RecipientID)
		} else {
			ids = append(ids, f.RequesterID)
		}
	}
	return ids, nil
}

// FriendIDsCached 获取好友 ID 列表 (带缓存)
func (r *FriendshipRepository) FriendIDsCached(ctx context.Context, userID uint) ([]uint, error) {
	if r.Redis == nil {
		return r.FriendIDs(ctx, userID)
	}

	key := friendCacheKey(userID)
	cached, err := r.Redis.SMembers(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		ids := make([]uint, 0, len(cached))
		for _, s := range cached {
			id, _ := strconv.ParseUint(s, 10, 64)
			if id > 0 {
				ids = append(ids, uint(id))
			}
		}
		return ids, nil
	}

	// 缓存失效，回源数据库
	return r.fillFriendCache(ctx, userID)
}

// fillFriendCache 在 WATCH 版本号之后读库并写入缓存，期间若有失效则放弃写入并重新读库
func (r *FriendshipRepository) fillFriendCache(ctx context.Context, userID uint) ([]uint, error) {
	key := friendCacheKey(userID)

	var (
		ids   []uint
		dbErr error
		read  bool
	)
	err := r.Redis.Watch(ctx, func(tx *redis.Tx) error {
		read = true
		ids, dbErr = r.FriendIDs(ctx, userID)
		if dbErr != nil {
			return dbErr
		}
		members := make([]interface{}, 0, len(ids)+1)
		// 0 作为空集合占位，防止缓存穿透
		members = append(members, 0)
		for _, id := range ids {
			members = append(members, id)
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SAdd(ctx, key, members...)
			pipe.Expire(ctx, key, friendCacheTTL)
			return nil
		})
		return err
	}, friendCacheVersionKey(userID))

	switch {
	case dbErr != nil:
		return nil, dbErr
	case errors.Is(err, redis.TxFailedErr):
		// 读库期间关系发生变化，本次读到的结果可能已过期
		logger.Log.Debug("Friend cache fill raced with invalidation", zap.Uint("userId", userID))
		return r.FriendIDs(ctx, userID)
	case err != nil:
		logger.Log.Warn("Failed to populate friend cache", zap.Uint("userId", userID), zap.Error(err))
		if !read {
			return r.FriendIDs(ctx, userID)
		}
	}
	return ids, nil
}

// AreFriends 判断两个用户之间是否存在已接受的关系
func (r *FriendshipRepository) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	if r.Redis != nil {
		ids, err := r.FriendIDsCached(ctx, a)
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if id == b {
				return true, nil
			}
		}
		// 关系只会从 pending 变为 accepted，缓存中的肯定结果总是可信的，否定结果需要回源确认
	}

	low, high := model.OrderedPair(a, b)
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("pair_low = ? AND pair_high = ? AND status = ?", low, high, model.FriendshipAccepted).
		Count(&count).Error
	return count > 0, util.StoreError("check friendship", err)
}

// PendingIncoming 发给该用户且尚未处理的好友申请
func (r *FriendshipRepository) PendingIncoming(ctx context.Context, userID uint) ([]model.Friendship, error) {
	reqs := []model.Friendship{}
	err := r.DB.WithContext(ctx).
		Preload("Requester").
		Where("recipient_id = ? AND status = ?", userID, model.FriendshipPending).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, util.StoreError("list pending requests", err)
}

// EdgesWith 返回 userID 与 others 中任意用户之间的关系记录
func (r *FriendshipRepository) EdgesWith(ctx context.Context, userID uint, others []uint) ([]model.Friendship, error) {
	edges := []model.Friendship{}
	if len(others) == 0 {
		return edges, nil
	}
	err := r.DB.WithContext(ctx).
		Where("(requester_id = ? AND recipient_id IN ?) OR (recipient_id = ? AND requester_id IN ?)",
			userID, others, userID, others).
		Find(&edges).Error
	return edges, util.StoreError("list edges", err)
}
