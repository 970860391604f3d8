package models

import "time"

// RecentSearchType classifies a remembered search.
type RecentSearchType string

const (
	SearchUser    RecentSearchType = "user"
	SearchPost    RecentSearchType = "post"
	SearchHashtag RecentSearchType = "hashtag"
	SearchQuery   RecentSearchType = "query"
)

// RecentSearch is one remembered search.
type RecentSearch struct {
	Type       RecentSearchType `json:"type" yaml:"type"`
	Key        string           `json:"key" yaml:"key"`
	Label      string           `json:"label,omitempty" yaml:"label,omitempty"`
	SearchedAt time.Time        `json:"searchedAt" yaml:"searched_at"`
}

// Identity is the dedup key of a recent search.
func (s RecentSearch) Identity() string {
	return string(s.Type) + ":" + s.Key
}
