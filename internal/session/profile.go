package session

import (
	"context"
	"log/slog"
	"strings"

	"feedsync/internal/models"
	"feedsync/internal/observability"
)

// Profile fetches the profile of username. A fetch of the same profile still
// in flight is cancelled, so only the newest response is returned.
func (s *Session) Profile(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.NewValidationError("username is required")
	}
	if _, ok := s.User(); !ok {
		return nil, ErrNotInitialized
	}

	ctx, done := s.profiles.Begin(ctx, "profile:"+username)
	defer done()

	profile, err := s.client.GetProfile(ctx, username)
	if err != nil {
		if ctx.Err() == nil {
			observability.GlobalLogger.WarnContext(ctx, "profile fetch failed",
				slog.String("username", username), slog.String("error", err.Error()))
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return profile, nil
}

// UpdateProfile saves changes to the signed-in user's profile. Fetches of the
// old profile still in flight are cancelled and the session user is refreshed.
func (s *Session) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	user, ok := s.User()
	if !ok {
		return nil, ErrNotInitialized
	}
	s.profiles.Cancel("profile:" + user.Username)

	updated, err := s.client.UpdateProfile(ctx, update)
	if err != nil {
		s.emit(models.NoticeFor(err, "Failed to update profile"))
		return nil, err
	}

	s.mu.Lock()
	if s.user != nil && s.user.ID == user.ID {
		next := *s.user
		next.DisplayName = updated.DisplayName
		next.Avatar = updated.Avatar
		next.Bio = updated.Bio
		s.user = &next
	}
	s.mu.Unlock()
	return updated, nil
}
