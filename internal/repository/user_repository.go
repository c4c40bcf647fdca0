package repository

import (
	"context"
	"strings"
	"time"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// EnsureExists 首次出现的身份写入用户表，已存在时不做修改
func (r *UserRepository) EnsureExists(ctx context.Context, user *model.User) error {
	now := time.Now()
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(user).Error
	if isDuplicateKey(err) {
		return util.ErrAlreadyExists
	}
	return util.StoreError("ensure user", err)
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr("find user", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.User, error) {
	users := []model.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.DB.WithContext(ctx).
		Where("id IN ?", ids).
		Order("username ASC").
		Find(&users).Error
	return users, util.StoreError("find users", err)
}

func (r *UserRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, util.StoreError("check user", err)
}

// UpdateProfile 只更新传入的字段
func (r *UserRepository) UpdateProfile(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if isDuplicateKey(res.Error) {
		return util.ErrAlreadyExists
	}
	if res.Error != nil {
		return util.StoreError("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL 对未变化的行返回 0，需要再确认一次是否存在
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return util.ErrNotFound
		}
	}
	return nil
}

func (r *UserRepository) TouchLastSeen(ctx context.Context, id uint, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("last_seen", at).Error
	return util.StoreError("touch last seen", err)
}

// Search 按用户名或昵称做大小写不敏感的子串匹配
func (r *UserRepository) Search(ctx context.Context, query string, excludeID uint, limit int) ([]model.User, error) {
	users := []model.User{}
	term := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	err := r.DB.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where("(LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?)", term, term).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	return users, util.StoreError("search users", err)
}
