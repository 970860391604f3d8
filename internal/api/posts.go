package api

import (
	"context"
	"net/http"

	"feedsync/internal/models"
)

func (c *Client) postAction(ctx context.Context, postID, action string, body any) error {
	return c.Do(ctx, ServiceSocial, http.MethodPost, "/posts/"+pathEscape(postID)+"/"+action, nil, body, nil)
}

// LikePost likes a post.
func (c *Client) LikePost(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "like", nil)
}

// UnlikePost removes a like.
func (c *Client) UnlikePost(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "unlike", nil)
}

// DislikePost dislikes a post.
func (c *Client) DislikePost(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "dislike", nil)
}

// RemoveDislike removes a dislike.
func (c *Client) RemoveDislike(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "removeDislike", nil)
}

// BookmarkPost bookmarks a post.
func (c *Client) BookmarkPost(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "bookmark", nil)
}

// UnbookmarkPost removes a bookmark.
func (c *Client) UnbookmarkPost(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "unbookmark", nil)
}

type contentRequest struct {
	Content string `json:"content"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type postResponse struct {
	Post models.Post `json:"post"`
}

// CommentPost adds a comment.
func (c *Client) CommentPost(ctx context.Context, postID, content string) error {
	return c.postAction(ctx, postID, "comment", contentRequest{Content: content})
}

// AmplifyPost reshares a post without commentary.
func (c *Client) AmplifyPost(ctx context.Context, postID string) error {
	return c.postAction(ctx, postID, "amplify", nil)
}

// QuotePost reshares a post with commentary and returns the new post.
func (c *Client) QuotePost(ctx context.Context, postID, content string) (*models.Post, error) {
	var out postResponse
	path := "/posts/" + pathEscape(postID) + "/quote"
	if err := c.Do(ctx, ServiceSocial, http.MethodPost, path, nil, contentRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

// ReportPost reports a post for moderation.
func (c *Client) ReportPost(ctx context.Context, postID, reason string) error {
	return c.postAction(ctx, postID, "report", reportRequest{Reason: reason})
}

// DeletePost deletes one of the caller's posts.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.Do(ctx, ServiceSocial, http.MethodDelete, "/posts/"+pathEscape(postID), nil, nil, nil)
}
