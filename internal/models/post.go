package models

import (
	"slices"
	"time"
)

// Reactions is the per-post interaction state mutated optimistically.
type Reactions struct {
	Likes        []string `json:"likes"`
	Dislikes     []string `json:"dislikes"`
	Bookmarks    []string `json:"bookmarks"`
	LikeCount    int      `json:"likeCount"`
	DislikeCount int      `json:"dislikeCount"`
}

// Clone returns a deep copy so a snapshot never aliases live slices.
func (r Reactions) Clone() Reactions {
	return Reactions{
		Likes:        slices.Clone(r.Likes),
		Dislikes:     slices.Clone(r.Dislikes),
		Bookmarks:    slices.Clone(r.Bookmarks),
		LikeCount:    r.LikeCount,
		DislikeCount: r.DislikeCount,
	}
}

// Post is a feed entry. The author reference arrives under different field
// names depending on the endpoint that produced the post.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Author    *User     `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Reactions
}

// AuthorIdentity returns the author id from whichever field is populated.
func (p Post) AuthorIdentity() string {
	switch {
	case p.AuthorID != "":
		return p.AuthorID
	case p.UserID != "":
		return p.UserID
	case p.Author != nil:
		return p.Author.ID
	}
	return ""
}

// AuthorUsername returns the author's username when the post embeds it.
func (p Post) AuthorUsername() string {
	if p.Author != nil {
		return p.Author.Username
	}
	return ""
}

// Contains reports whether id is a member of set.
func Contains(set []string, id string) bool {
	return slices.Contains(set, id)
}

// Remove returns set without id.
func Remove(set []string, id string) []string {
	return slices.DeleteFunc(set, func(v string) bool { return v == id })
}
