package interactions

import (
	"context"
	"net/url"

	"feedsync/internal/models"
)

// MenuOption is one entry of the post menu.
type MenuOption string

const (
	OptionFollow   MenuOption = "Follow"
	OptionUnfollow MenuOption = "Unfollow"
	OptionAbout    MenuOption = "About this account"
	OptionReport   MenuOption = "Report"
	OptionBlock    MenuOption = "Block"
	OptionDelete   MenuOption = "Delete Post"
)

// DefaultReportReason is sent when the menu reports a post.
const DefaultReportReason = "inappropriate"

var masterMenu = []MenuOption{
	OptionFollow,
	OptionUnfollow,
	OptionAbout,
	OptionReport,
	OptionBlock,
	OptionDelete,
}

type menuContext struct {
	authenticated bool
	own           bool
	following     bool
}

func (m menuContext) shows(opt MenuOption) bool {
	switch opt {
	case OptionFollow:
		return m.authenticated && !m.own && !m.following
	case OptionUnfollow:
		return m.authenticated && !m.own && m.following
	case OptionBlock, OptionReport:
		return m.authenticated && !m.own
	case OptionAbout:
		return !m.own
	case OptionDelete:
		return m.authenticated && m.own
	}
	return false
}

// UpdateKind says how the caller's post list must change after a menu action.
type UpdateKind int

const (
	// UpdateRemoveAuthorPosts drops every post by AuthorID.
	UpdateRemoveAuthorPosts UpdateKind = iota
	// UpdateRemovePost drops PostID.
	UpdateRemovePost
	// UpdateFollowing sets the follow state of AuthorID.
	UpdateFollowing
)

// Update is passed to the caller's UpdateFunc.
type Update struct {
	Kind      UpdateKind
	PostID    string
	AuthorID  string
	Following bool
}

// UpdateFunc applies an Update to the caller's state.
type UpdateFunc func(Update)

// Result tells the caller what to do with the menu after Dispatch.
type Result struct {
	Closed   bool
	Navigate string
}

// ApplyUpdate applies u to a post list and returns the new list.
func ApplyUpdate(posts []models.Post, u Update) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		switch u.Kind {
		case UpdateRemoveAuthorPosts:
			if p.AuthorIdentity() == u.AuthorID {
				continue
			}
		case UpdateRemovePost:
			if p.ID == u.PostID {
				continue
			}
		case UpdateFollowing:
			if p.AuthorIdentity() == u.AuthorID && p.Author != nil {
				author := *p.Author
				following := u.Following
				author.IsFollowing = &following
				p.Author = &author
			}
		}
		out = append(out, p)
	}
	return out
}

// LoadMenuOptions returns the menu entries for post as seen by the viewer,
// in menu order. The follow state is looked up when not already known.
func (o *Orchestrator) LoadMenuOptions(ctx context.Context, post models.Post) []MenuOption {
	mc := menuContext{authenticated: o.viewerID() != ""}
	author := post.AuthorIdentity()
	mc.own = mc.authenticated && o.isOwn(post)

	if mc.authenticated && !mc.own && author != "" {
		mc.following = o.followState(ctx, author, post)
	}

	out := make([]MenuOption, 0, len(masterMenu))
	for _, opt := range masterMenu {
		if mc.shows(opt) {
			out = append(out, opt)
		}
	}
	return out
}

func (o *Orchestrator) isOwn(post models.Post) bool {
	if author := post.AuthorIdentity(); author != "" {
		return author == o.viewer.ID
	}
	name := post.AuthorUsername()
	return name != "" && name == o.viewer.Username
}

// followState resolves whether the viewer follows author: tracked state
// first, then the post payload, the cache and finally the user service.
// A failed lookup counts as not following.
func (o *Orchestrator) followState(ctx context.Context, author string, post models.Post) bool {
	if following, ok := o.IsFollowing(author); ok {
		return following
	}
	if post.Author != nil && post.Author.IsFollowing != nil {
		o.setFollowing(ctx, author, *post.Author.IsFollowing, false)
		return *post.Author.IsFollowing
	}
	if o.cache != nil {
		if following, ok := o.cache.Get(ctx, o.viewer.ID, author); ok {
			o.setFollowing(ctx, author, following, false)
			return following
		}
	}

	following, err := o.svc.FollowStatus(ctx, author)
	if err != nil {
		o.logger.LogError(ctx, "follow_status", err)
		return false
	}
	o.setFollowing(ctx, author, following, true)
	return following
}

func (o *Orchestrator) setFollowing(ctx context.Context, author string, following, writeCache bool) {
	o.mu.Lock()
	o.following[author] = following
	o.mu.Unlock()
	if writeCache && o.cache != nil {
		o.cache.Set(ctx, o.viewer.ID, author, following)
	}
}

// forgetFollowing drops what is known about author after the server disagreed
// with it, so the next menu asks the user service again.
func (o *Orchestrator) forgetFollowing(ctx context.Context, author string) {
	o.mu.Lock()
	delete(o.following, author)
	o.mu.Unlock()
	if o.cache != nil {
		o.cache.Invalidate(ctx, o.viewer.ID, author)
	}
}

// Dispatch performs opt for post. Block and delete ask the Confirmer first
// and leave the menu open when declined. On success update is told how the
// caller's list changes.
func (o *Orchestrator) Dispatch(ctx context.Context, opt MenuOption, post models.Post, update UpdateFunc) (Result, error) {
	if update == nil {
		update = func(Update) {}
	}
	author := post.AuthorIdentity()

	switch opt {
	case OptionAbout:
		return Result{Closed: true, Navigate: profilePath(post)}, nil

	case OptionReport:
		if err := o.svc.ReportPost(ctx, post.ID, DefaultReportReason); err != nil {
			o.logger.LogError(ctx, "report", err)
		} else {
			o.emit(models.Notice{Kind: models.NoticeSuccess, Text: "Thanks for reporting"})
		}
		return Result{Closed: true}, nil
	}

	if o.viewerID() == "" {
		return Result{}, models.NewUnauthorizedError("Please log in to continue")
	}

	switch opt {
	case OptionFollow, OptionUnfollow:
		want := opt == OptionFollow
		call := o.svc.Unfollow
		if want {
			call = o.svc.Follow
		}
		if err := call(ctx, author); err != nil {
			if models.HasCode(err, models.CodeConflict) {
				o.forgetFollowing(ctx, author)
			}
			o.emit(models.NoticeFor(err, "Could not update follow status"))
			return Result{}, err
		}
		o.setFollowing(ctx, author, want, true)
		update(Update{Kind: UpdateFollowing, AuthorID: author, PostID: post.ID, Following: want})
		return Result{Closed: true}, nil

	case OptionBlock:
		if !o.confirm(ctx, "Block this account? You will no longer see their posts.") {
			return Result{}, nil
		}
		if err := o.svc.BlockUser(ctx, author); err != nil {
			o.emit(models.NoticeFor(err, "Could not block account"))
			return Result{}, err
		}
		o.setFollowing(ctx, author, false, true)
		update(Update{Kind: UpdateRemoveAuthorPosts, AuthorID: author, PostID: post.ID})
		o.emit(models.Notice{Kind: models.NoticeSuccess, Text: "Account blocked"})
		return Result{Closed: true}, nil

	case OptionDelete:
		if !o.confirm(ctx, "Delete this post? This cannot be undone.") {
			return Result{}, nil
		}
		if err := o.svc.DeletePost(ctx, post.ID); err != nil {
			o.emit(models.NoticeFor(err, "Could not delete post"))
			return Result{}, err
		}
		o.Forget(post.ID)
		update(Update{Kind: UpdateRemovePost, AuthorID: author, PostID: post.ID})
		return Result{Closed: true}, nil
	}

	return Result{}, models.NewValidationError("unknown menu option " + string(opt))
}

func (o *Orchestrator) confirm(ctx context.Context, prompt string) bool {
	return o.confirmer != nil && o.confirmer.Confirm(ctx, prompt)
}

func profilePath(post models.Post) string {
	if name := post.AuthorUsername(); name != "" {
		return "/profile/" + url.PathEscape(name)
	}
	return "/users/" + url.PathEscape(post.AuthorIdentity())
}
