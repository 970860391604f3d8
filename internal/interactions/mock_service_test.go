package interactions

import (
	"context"

	"feedsync/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockService is a mock of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) LikePost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) UnlikePost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) DislikePost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) RemoveDislike(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) BookmarkPost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) UnbookmarkPost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) CommentPost(ctx context.Context, postID, content string) error {
	return m.Called(ctx, postID, content).Error(0)
}

func (m *MockService) AmplifyPost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) QuotePost(ctx context.Context, postID, content string) (*models.Post, error) {
	args := m.Called(ctx, postID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockService) ReportPost(ctx context.Context, postID, reason string) error {
	return m.Called(ctx, postID, reason).Error(0)
}

func (m *MockService) DeletePost(ctx context.Context, postID string) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockService) FollowStatus(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockService) Follow(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockService) Unfollow(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockService) BlockUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
