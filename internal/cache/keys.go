package cache

import (
	"fmt"
	"time"
)

const (
	FollowKeyPrefix         = "feedsync:follow:%s:%s"
	RecentSearchesKeyPrefix = "feedsync:recent_searches:%s"
)

const (
	FollowTTL         = time.Minute
	RecentSearchesTTL = 30 * 24 * time.Hour
)

// FollowKey is the key holding whether viewer follows author.
func FollowKey(viewer, author string) string {
	return fmt.Sprintf(FollowKeyPrefix, viewer, author)
}

// RecentSearchesKey is the list holding a user's recent searches.
func RecentSearchesKey(userID string) string {
	return fmt.Sprintf(RecentSearchesKeyPrefix, userID)
}
