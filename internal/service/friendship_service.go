package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"peoplegrid_backend/internal/model"
	"peoplegrid_backend/internal/repository"
	"peoplegrid_backend/internal/util"
	"peoplegrid_backend/pkg/logger"

	"go.uber.org/zap"
)

const searchLimit = 20

type FriendView struct {
	model.UserSummary
	IsOnline bool `json:"isOnline"`
}

type SearchResult struct {
	model.UserSummary
	Relation model.Relation `json:"relation"`
}

type PendingRequest struct {
	ID        string            `json:"id"`
	Requester model.UserSummary `json:"requester"`
	CreatedAt time.Time         `json:"createdAt"`
}

type FriendshipService struct {
	FriendRepo *repository.FriendshipRepository
	UserRepo   *repository.UserRepository
	Directory  *SessionDirectory
}

func NewFriendshipService(friendRepo *repository.FriendshipRepository, userRepo *repository.UserRepository, directory *SessionDirectory) *FriendshipService {
	return &FriendshipService{
		FriendRepo: friendRepo,
		UserRepo:   userRepo,
		Directory:  directory,
	}
}

// Request 发起好友申请。两人之间已有任何方向、任何状态的关系时返回 ErrAlreadyExists
func (s *FriendshipService) Request(ctx context.Context, requesterID, recipientID uint) (*model.Friendship, error) {
	if requesterID == recipientID {
		return nil, util.ErrInvalidState
	}

	exists, err := s.UserRepo.Exists(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, util.ErrNotFound
	}

	if _, err := s.FriendRepo.FindBetween(ctx, requesterID, recipientID); err == nil {
		return nil, util.ErrAlreadyExists
	} else if !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	f := &model.Friendship{
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      model.FriendshipPending,
	}
	if err := s.FriendRepo.Create(ctx, f); err != nil {
		return nil, err
	}

	logger.Log.Info("Friend request created", zap.Uint("requesterId", requesterID), zap.Uint("recipientId", recipientID))
	return f, nil
}

// Accept 由接收者同意 requesterID 发来的申请
func (s *FriendshipService) Accept(ctx context.Context, requesterID, recipientID uint) (*model.Friendship, error) {
	f, err := s.FriendRepo.FindBetween(ctx, requesterID, recipientID)
	if err != nil {
		return nil, err
	}
	// 只有反方向的申请时，对当前调用者来说不存在可同意的申请
	if f.RequesterID != requesterID || f.RecipientID != recipientID {
		return nil, util.ErrNotFound
	}
	if f.Status == model.FriendshipAccepted {
		return nil, util.ErrInvalidState
	}

	ok, err := s.FriendRepo.MarkAccepted(ctx, f, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrInvalidState
	}

	logger.Log.Info("Friend request accepted", zap.Uint("requesterId", requesterID), zap.Uint("recipientId", recipientID))
	return f, nil
}

func (s *FriendshipService) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	if a == b {
		return false, nil
	}
	return s.FriendRepo.AreFriends(ctx, a, b)
}

// ListFriends 返回已接受的好友及其在线状态
func (s *FriendshipService) ListFriends(ctx context.Context, userID uint) ([]FriendView, error) {
	ids, err := s.FriendRepo.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.UserRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	friends := make([]FriendView, 0, len(users))
	for _, u := range users {
		friends = append(friends, FriendView{
			UserSummary: u.Summary(),
			IsOnline:    s.Directory != nil && s.Directory.IsOnline(u.ID),
		})
	}
	return friends, nil
}

// ListPending 返回发给该用户、尚未处理的申请
func (s *FriendshipService) ListPending(ctx context.Context, userID uint) ([]PendingRequest, error) {
	reqs, err := s.FriendRepo.PendingIncoming(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending := make([]PendingRequest, 0, len(reqs))
	for _, r := range reqs {
		requester := r.Requester.Summary()
		requester.ID = r.RequesterID
		pending = append(pending, PendingRequest{
			ID:        r.ID,
			Requester: requester,
			CreatedAt: r.CreatedAt,
		})
	}
	return pending, nil
}

// Search 按用户名或昵称搜索用户，结果标注与调用者的关系，不包含调用者本人
func (s *FriendshipService) Search(ctx context.Context, callerID uint, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	users, err := s.UserRepo.Search(ctx, query, callerID, searchLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	edges, err := s.FriendRepo.EdgesWith(ctx, callerID, ids)
	if err != nil {
		return nil, err
	}
	relations := make(map[uint]model.Relation, len(edges))
	for _, e := range edges {
		switch {
		case e.Status == model.FriendshipAccepted && e.RequesterID == callerID:
			relations[e.RecipientID] = model.RelationFriends
		case e.Status == model.FriendshipAccepted:
			relations[e.RequesterID] = model.RelationFriends
		case e.RequesterID == callerID:
			relations[e.RecipientID] = model.RelationPendingOutgoing
		default:
			relations[e.RequesterID] = model.RelationPendingIncoming
		}
	}

	results := make([]SearchResult, 0, len(users))
	for _, u := range users {
		rel, ok := relations[u.ID]
		if !ok {
			rel = model.RelationNone
		}
		results = append(results, SearchResult{UserSummary: u.Summary(), Relation: rel})
	}
	return results, nil
}
