// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperr "seattle-source-ranker/internal/errors"
	"seattle-source-ranker/internal/model"
)

const (
	// Search pages are capped by the API.
	maxPageSize = 100

	// Safety margin added on top of the reported rate limit reset time.
	rateLimitMargin = 2 * time.Second
)

// Client is a wrapper around the go-github client. It validates and coerces
// upstream data into model.Repository at this boundary so nothing downstream
// deals with missing fields.
type Client struct {
	gh     *github.Client
	logger *slog.Logger

	// sleep is swappable in tests so rate limit waits don't slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = timeout

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// SearchPage fetches one page of repository search results. The cursor is
// opaque to callers; an empty cursor means the first page. On a rate limit
// the call blocks until the reported reset time plus a safety margin, then
// fails with ErrRateLimited so the caller can retry the same cursor.
func (c *Client) SearchPage(ctx context.Context, query, cursor string, pageSize int) (*model.SearchPage, error) {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	page := 1
	if cursor != "" {
		p, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("malformed cursor %q: %w", cursor, err)
		}
		page = p
	}

	opts := &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{Page: page, PerPage: pageSize},
	}

	c.logger.Debug("Fetching search page", "query", query, "page", page, "per_page", pageSize)

	result, resp, err := c.gh.Search.Repositories(ctx, query, opts)
	if err != nil {
		return nil, c.classify(ctx, query, resp, err)
	}

	records := make([]*model.Repository, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		rec := toRepository(r)
		if rec.NameWithOwner == "" {
			c.logger.Warn("Dropping search result without full_name")
			continue
		}
		records = append(records, rec)
	}

	out := &model.SearchPage{
		Records:    records,
		HasMore:    resp.NextPage != 0,
		TotalCount: result.GetTotal(),
	}
	if out.HasMore {
		out.NextCursor = strconv.Itoa(resp.NextPage)
	}
	return out, nil
}

// GetRepository fetches a single repository's live metrics by owner and name.
// A rate limit is surfaced immediately as ErrRateLimited without blocking, so
// batch callers can abort gracefully.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		if d, ok := rateLimitDelay(err); ok {
			return nil, &apperr.ErrRateLimited{ResumeAfter: d}
		}
		if IsNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", owner, name, apperr.ErrNotFound)
		}
		return nil, classifyStatus(ctx, owner+"/"+name, resp, err)
	}
	return toRepository(repo), nil
}

// classify maps a search failure onto the error taxonomy, blocking through
// rate limit resets first.
func (c *Client) classify(ctx context.Context, query string, resp *github.Response, err error) error {
	if d, ok := rateLimitDelay(err); ok {
		c.logger.Warn("Rate limited, waiting for reset", "resume_after", d)
		if serr := c.sleep(ctx, d); serr != nil {
			return serr
		}
		return &apperr.ErrRateLimited{ResumeAfter: d}
	}
	return classifyStatus(ctx, query, resp, err)
}

func classifyStatus(ctx context.Context, subject string, resp *github.Response, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if resp == nil {
		// Transport-level failure, no response at all.
		return &apperr.ErrTransient{Err: err}
	}
	status := resp.StatusCode
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", subject, apperr.ErrNotFound)
	case status >= 400 && status < 500:
		// e.g. 422 when the search result window is exceeded. Permanent
		// for this query, the caller must switch partitions.
		return &apperr.ErrQueryRejected{Query: subject, Status: status, Err: err}
	default:
		return &apperr.ErrTransient{Err: err}
	}
}

// rateLimitDelay extracts a resume-after duration from go-github's rate
// limit error types.
func rateLimitDelay(err error) (time.Duration, bool) {
	if rle, ok := err.(*github.RateLimitError); ok {
		d := time.Until(rle.Rate.Reset.Time) + rateLimitMargin
		if d < rateLimitMargin {
			d = rateLimitMargin
		}
		return d, true
	}
	if are, ok := err.(*github.AbuseRateLimitError); ok {
		d := rateLimitMargin
		if are.RetryAfter != nil {
			d = *are.RetryAfter + rateLimitMargin
		}
		return d, true
	}
	return 0, false
}

// IsNotFound reports whether err is a 404 from the data source.
func IsNotFound(err error) bool {
	if er, ok := err.(*github.ErrorResponse); ok {
		return er.Response != nil && er.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// toRepository translates a github.Repository object to our internal model.
func toRepository(r *github.Repository) *model.Repository {
	now := time.Now().UTC()
	rec := &model.Repository{
		NameWithOwner:   r.GetFullName(),
		Name:            r.GetName(),
		Description:     r.Description,
		URL:             r.GetHTMLURL(),
		Stars:           r.GetStargazersCount(),
		Forks:           r.GetForksCount(),
		Watchers:        r.GetWatchersCount(),
		OpenIssues:      r.GetOpenIssuesCount(),
		Language:        r.Language,
		CreatedAt:       r.GetCreatedAt().Time,
		UpdatedAt:       r.GetUpdatedAt().Time,
		PushedAt:        r.GetPushedAt().Time,
		IsFork:          r.GetFork(),
		IsArchived:      r.GetArchived(),
		LastStatsUpdate: &now,
	}
	// The search endpoint reports stargazers under watchers_count; the
	// subscriber count is the real watcher figure when present.
	if r.GetSubscribersCount() > 0 {
		rec.Watchers = r.GetSubscribersCount()
	}
	if lic := r.GetLicense(); lic != nil {
		rec.License = lic.SPDXID
	}
	if o := r.GetOwner(); o != nil {
		rec.Owner = model.Owner{
			Login:    o.GetLogin(),
			Name:     o.Name,
			Location: o.Location,
			Company:  o.Company,
		}
	}
	return rec
}
