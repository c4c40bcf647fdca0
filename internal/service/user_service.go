package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/util"
)

// ProfileUpdate 为空指针的字段保持不变
type ProfileUpdate struct {
	Username           *string `json:"username"`
	DisplayName        *string `json:"displayName"`
	Bio                *string `json:"bio"`
	Age                *int    `json:"age"`
	Pronouns           *string `json:"pronouns"`
	RelationshipStatus *string `json:"relationshipStatus"`
	Avatar             *string `json:"avatar"`
}

type UserService struct {
	UserRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{UserRepo: userRepo}
}

// EnsureUser 身份首次出现时建立用户记录；用户名已被他人占用时退回 user<ID>
func (s *UserService) EnsureUser(ctx context.Context, id uint, username string) error {
	fallback := fmt.Sprintf("user%d", id)
	if username == "" {
		username = fallback
	}
	err := s.UserRepo.EnsureExists(ctx, &model.User{ID: id, Username: username})
	if errors.Is(err, util.ErrAlreadyExists) && username != fallback {
		err = s.UserRepo.EnsureExists(ctx, &model.User{ID: id, Username: fallback})
	}
	return err
}

func (s *UserService) GetProfile(ctx context.Context, id uint) (*model.User, error) {
	return s.UserRepo.FindByID(ctx, id)
}

// UpdateProfile 只允许用户修改自己的资料
func (s *UserService) UpdateProfile(ctx context.Context, id uint, in ProfileUpdate) (*model.User, error) {
	fields := map[string]interface{}{}

	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" || len(name) > 100 {
			return nil, util.Invalid("username must be 1-100 characters")
		}
		fields["username"] = name
	}
	if in.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.Bio != nil {
		if len(*in.Bio) > 500 {
			return nil, util.Invalid("bio is too long")
		}
		fields["bio"] = *in.Bio
	}
	if in.Age != nil {
		if *in.Age < 0 || *in.Age > 150 {
			return nil, util.Invalid("age out of range")
		}
		fields["age"] = *in.Age
	}
	if in.Pronouns != nil {
		fields["pronouns"] = strings.TrimSpace(*in.Pronouns)
	}
	if in.RelationshipStatus != nil {
		fields["relationship_status"] = strings.TrimSpace(*in.RelationshipStatus)
	}
	if in.Avatar != nil {
		fields["avatar"] = *in.Avatar
	}

	if err := s.UserRepo.UpdateProfile(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.UserRepo.FindByID(ctx, id)
}

func (s *UserService) TouchLastSeen(ctx context.Context, id uint) error {
	return s.UserRepo.TouchLastSeen(ctx, id, time.Now())
}
