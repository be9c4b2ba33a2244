// internal/model/models.go
package model

import (
	"time"
)

// Repository represents the metadata of a tracked GitHub repository.
// NameWithOwner ("owner/name", case-preserving) is the unique key; a pool
// never holds two records with the same NameWithOwner.
type Repository struct {
	NameWithOwner string    `json:"name_with_owner"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	URL           string    `json:"url"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Watchers      int       `json:"watchers"`
	OpenIssues    int       `json:"open_issues"`
	Language      *string   `json:"language,omitempty"`
	License       *string   `json:"license,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
	Owner         Owner     `json:"owner"`
	IsFork        bool      `json:"is_fork"`
	IsArchived    bool      `json:"is_archived"`

	// LastStatsUpdate is the time of the last refresh from the data source.
	// nil means the record was never refreshed since creation.
	LastStatsUpdate *time.Time `json:"last_stats_update,omitempty"`

	// FlaggedMissing is set when a refresh got a 404 for this repository.
	// The record stays in the pool; removal is an operator decision.
	FlaggedMissing bool `json:"flagged_missing,omitempty"`

	// PyPIDownloadsMonth and ReleaseDownloads feed the language-specific
	// score blends. Zero means unknown or not applicable.
	PyPIDownloadsMonth int `json:"pypi_downloads_month,omitempty"`
	ReleaseDownloads   int `json:"release_downloads,omitempty"`
}

// Owner identifies the account that owns a repository.
type Owner struct {
	Login    string  `json:"login"`
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
	Company  *string `json:"company,omitempty"`
}

// Activity is the stars+forks+watchers sum used by the lowest_activity
// replace strategy.
func (r *Repository) Activity() int {
	return r.Stars + r.Forks + r.Watchers
}

// SearchPage is one page of search results from the data source.
type SearchPage struct {
	Records    []*Repository
	NextCursor string
	HasMore    bool
	TotalCount int
}
