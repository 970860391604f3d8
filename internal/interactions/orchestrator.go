// Package interactions applies post reactions optimistically and computes and
// dispatches the contextual post menu.
package interactions

import (
	"context"
	"strings"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"
)

// Service is the REST surface used by the orchestrator.
type Service interface {
	LikePost(ctx context.Context, postID string) error
	UnlikePost(ctx context.Context, postID string) error
	DislikePost(ctx context.Context, postID string) error
	RemoveDislike(ctx context.Context, postID string) error
	BookmarkPost(ctx context.Context, postID string) error
	UnbookmarkPost(ctx context.Context, postID string) error
	CommentPost(ctx context.Context, postID, content string) error
	AmplifyPost(ctx context.Context, postID string) error
	QuotePost(ctx context.Context, postID, content string) (*models.Post, error)
	ReportPost(ctx context.Context, postID, reason string) error
	DeletePost(ctx context.Context, postID string) error

	FollowStatus(ctx context.Context, userID string) (bool, error)
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	BlockUser(ctx context.Context, userID string) error
}

// FollowCache remembers follow relationships between lookups.
type FollowCache interface {
	Get(ctx context.Context, viewer, author string) (following, ok bool)
	Set(ctx context.Context, viewer, author string, following bool)
	Invalidate(ctx context.Context, viewer, author string)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Options configure an Orchestrator.
type Options struct {
	// Viewer is the signed-in user. A nil Viewer means an anonymous session.
	Viewer    *models.User
	Cache     FollowCache
	Confirmer Confirmer
	Notify    func(models.Notice)
}

// Orchestrator owns the reaction state of the posts on screen and the
// viewer's follow state per author.
type Orchestrator struct {
	svc       Service
	viewer    *models.User
	cache     FollowCache
	confirmer Confirmer
	notify    func(models.Notice)
	logger    *observability.SyncLogger

	mu        sync.Mutex
	posts     map[string]*models.Post
	following map[string]bool
}

// NewOrchestrator creates an Orchestrator with no tracked posts.
func NewOrchestrator(svc Service, opts Options) *Orchestrator {
	return &Orchestrator{
		svc:       svc,
		viewer:    opts.Viewer,
		cache:     opts.Cache,
		confirmer: opts.Confirmer,
		notify:    opts.Notify,
		logger:    observability.NewSyncLogger("interactions"),
		posts:     make(map[string]*models.Post),
		following: make(map[string]bool),
	}
}

// Track starts managing the reaction state of post, replacing any copy held.
func (o *Orchestrator) Track(post models.Post) {
	p := post
	p.Reactions = post.Reactions.Clone()

	o.mu.Lock()
	o.posts[p.ID] = &p
	if author := p.AuthorIdentity(); author != "" && p.Author != nil && p.Author.IsFollowing != nil {
		o.following[author] = *p.Author.IsFollowing
	}
	o.mu.Unlock()
}

// Forget stops managing postID.
func (o *Orchestrator) Forget(postID string) {
	o.mu.Lock()
	delete(o.posts, postID)
	o.mu.Unlock()
}

// Post returns a copy of the tracked post.
func (o *Orchestrator) Post(postID string) (models.Post, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.posts[postID]
	if !ok {
		return models.Post{}, false
	}
	out := *p
	out.Reactions = p.Reactions.Clone()
	return out, true
}

// IsFollowing returns the known follow state of author.
func (o *Orchestrator) IsFollowing(author string) (following, known bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	following, known = o.following[author]
	return following, known
}

func (o *Orchestrator) viewerID() string {
	if o.viewer == nil {
		return ""
	}
	return o.viewer.ID
}

// ToggleLike likes postID, or unlikes it when the viewer already likes it.
// Liking removes the viewer's dislike.
func (o *Orchestrator) ToggleLike(ctx context.Context, postID string) error {
	me := o.viewerID()
	liked, err := o.member(postID, me, func(r *models.Reactions) []string { return r.Likes })
	if err != nil {
		return err
	}

	if liked {
		return o.react(ctx, "unlike", postID, func(r *models.Reactions) {
			r.Likes = models.Remove(r.Likes, me)
			r.LikeCount = max(r.LikeCount-1, 0)
		}, o.svc.UnlikePost, nil)
	}

	return o.react(ctx, "like", postID, func(r *models.Reactions) {
		r.Likes = append(r.Likes, me)
		r.LikeCount++
		if models.Contains(r.Dislikes, me) {
			r.Dislikes = models.Remove(r.Dislikes, me)
			r.DislikeCount = max(r.DislikeCount-1, 0)
		}
	}, o.svc.LikePost, func(ctx context.Context, snap models.Reactions, err error) error {
		if !models.HasCode(err, models.CodeAlreadyLiked) {
			return err
		}
		// The server already counted this like; keep it without counting twice.
		o.update(postID, func(r *models.Reactions) {
			if !models.Contains(r.Likes, me) {
				r.Likes = append(r.Likes, me)
			}
			r.LikeCount = snap.LikeCount
		})
		return nil
	})
}

// ToggleDislike dislikes postID, or removes the dislike when present.
// Disliking removes the viewer's like. When the server reports the post as
// already disliked, the dislike is removed instead.
func (o *Orchestrator) ToggleDislike(ctx context.Context, postID string) error {
	me := o.viewerID()
	disliked, err := o.member(postID, me, func(r *models.Reactions) []string { return r.Dislikes })
	if err != nil {
		return err
	}

	if disliked {
		return o.react(ctx, "remove_dislike", postID, func(r *models.Reactions) {
			r.Dislikes = models.Remove(r.Dislikes, me)
			r.DislikeCount = max(r.DislikeCount-1, 0)
		}, o.svc.RemoveDislike, nil)
	}

	return o.react(ctx, "dislike", postID, func(r *models.Reactions) {
		r.Dislikes = append(r.Dislikes, me)
		r.DislikeCount++
		if models.Contains(r.Likes, me) {
			r.Likes = models.Remove(r.Likes, me)
			r.LikeCount = max(r.LikeCount-1, 0)
		}
	}, o.svc.DislikePost, func(ctx context.Context, snap models.Reactions, err error) error {
		if !models.HasCode(err, models.CodeAlreadyDisliked) {
			return err
		}
		if rerr := o.svc.RemoveDislike(ctx, postID); rerr != nil {
			return rerr
		}
		o.update(postID, func(r *models.Reactions) {
			*r = snap.Clone()
			r.Dislikes = models.Remove(r.Dislikes, me)
			r.DislikeCount = max(snap.DislikeCount-1, 0)
		})
		return nil
	})
}

// ToggleBookmark bookmarks postID, or removes the bookmark when present.
func (o *Orchestrator) ToggleBookmark(ctx context.Context, postID string) error {
	me := o.viewerID()
	saved, err := o.member(postID, me, func(r *models.Reactions) []string { return r.Bookmarks })
	if err != nil {
		return err
	}

	if saved {
		return o.react(ctx, "unbookmark", postID, func(r *models.Reactions) {
			r.Bookmarks = models.Remove(r.Bookmarks, me)
		}, o.svc.UnbookmarkPost, nil)
	}
	return o.react(ctx, "bookmark", postID, func(r *models.Reactions) {
		r.Bookmarks = append(r.Bookmarks, me)
	}, o.svc.BookmarkPost, nil)
}

func (o *Orchestrator) member(postID, me string, set func(*models.Reactions) []string) (bool, error) {
	if me == "" {
		return false, models.NewUnauthorizedError("Please log in to continue")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.posts[postID]
	if !ok {
		return false, models.NewNotFoundError("Post", postID)
	}
	return models.Contains(set(&p.Reactions), me), nil
}

func (o *Orchestrator) update(postID string, fn func(*models.Reactions)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.posts[postID]; ok {
		fn(&p.Reactions)
	}
}

func (o *Orchestrator) react(
	ctx context.Context,
	name, postID string,
	mutate func(*models.Reactions),
	confirm func(context.Context, string) error,
	recoverFn func(context.Context, models.Reactions, error) error,
) error {
	err := optimistic.Run(ctx, optimistic.Op[models.Reactions]{
		Name: name,
		Snapshot: func() models.Reactions {
			o.mu.Lock()
			defer o.mu.Unlock()
			if p, ok := o.posts[postID]; ok {
				return p.Reactions.Clone()
			}
			return models.Reactions{}
		},
		Mutate:  func() { o.update(postID, mutate) },
		Confirm: func(ctx context.Context) error { return confirm(ctx, postID) },
		Restore: func(snap models.Reactions) {
			o.update(postID, func(r *models.Reactions) { *r = snap })
		},
		Recover: recoverFn,
	})
	if err != nil {
		o.logger.LogRollback(ctx, name, err)
		o.emit(models.NoticeFor(err, "Could not update post"))
	}
	return err
}

// Comment adds a comment to postID.
func (o *Orchestrator) Comment(ctx context.Context, postID, content string) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return models.NewValidationError("Comment cannot be empty")
	}
	if err := o.svc.CommentPost(ctx, postID, text); err != nil {
		o.emit(models.NoticeFor(err, "Could not post comment"))
		return err
	}
	return nil
}

// Amplify reshares postID.
func (o *Orchestrator) Amplify(ctx context.Context, postID string) error {
	if err := o.svc.AmplifyPost(ctx, postID); err != nil {
		o.emit(models.NoticeFor(err, "Could not amplify post"))
		return err
	}
	o.emit(models.Notice{Kind: models.NoticeSuccess, Text: "Post amplified"})
	return nil
}

// Quote reshares postID with commentary and returns the new post.
func (o *Orchestrator) Quote(ctx context.Context, postID, content string) (*models.Post, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, models.NewValidationError("Quote cannot be empty")
	}
	post, err := o.svc.QuotePost(ctx, postID, text)
	if err != nil {
		o.emit(models.NoticeFor(err, "Could not quote post"))
		return nil, err
	}
	return post, nil
}

func (o *Orchestrator) emit(n models.Notice) {
	if o.notify != nil {
		o.notify(n)
	}
}
