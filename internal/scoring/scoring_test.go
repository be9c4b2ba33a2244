// internal/scoring/scoring_test.go
package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seattle-source-ranker/internal/model"
)

func strp(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.5, Normalize(5, 10))
	assert.Equal(t, 1.0, Normalize(10, 10))
	assert.Equal(t, 0.0, Normalize(5, 0), "zero maximum normalizes to zero, not NaN")
}

func TestLogNormalize(t *testing.T) {
	assert.Equal(t, 0.0, LogNormalize(0, 1000))
	assert.Equal(t, 0.0, LogNormalize(100, 0))
	assert.Equal(t, 1.0, LogNormalize(1000, 1000))
	// Log scaling compresses the gap: 1% of the max still scores well
	// above 1% of the normalized range.
	mid := LogNormalize(10, 1000)
	assert.Greater(t, mid, 0.3)
	assert.Less(t, mid, 1.0)
}

func TestAgeWeight(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.3, AgeWeight(time.Time{}, now), "unknown creation time gets the floor")
	assert.Equal(t, 0.3, AgeWeight(now.Add(time.Hour), now), "future creation time gets the floor")

	twoYears := AgeWeight(now.AddDate(-2, 0, 0), now)
	assert.InDelta(t, 0.5, twoYears, 0.01, "years/(years+2) at 2 years is 0.5")

	tenYears := AgeWeight(now.AddDate(-10, 0, 0), now)
	assert.Greater(t, tenYears, twoYears, "older projects score higher")
	assert.Less(t, tenYears, 1.0)
}

func TestHealthScore(t *testing.T) {
	assert.Equal(t, 1.0, HealthScore(0))
	assert.InDelta(t, 0.5, HealthScore(10), 0.001)
	assert.Less(t, HealthScore(1000), 0.01)
}

func TestGithubScore_Weights(t *testing.T) {
	now := time.Now().UTC()
	stats := PopulationStats{MaxStars: 100, MaxForks: 100, MaxWatchers: 100}

	// A repo at every population maximum with zero issues and effectively
	// infinite age approaches 0.4+0.25+0.15+0.10+0.10 = 1.
	best := &model.Repository{
		Stars:     100,
		Forks:     100,
		Watchers:  100,
		CreatedAt: now.AddDate(-50, 0, 0),
	}
	score := GithubScore(best, stats, now)
	assert.InDelta(t, 1.0, score, 0.01)

	// Stars dominate: all-stars beats all-forks.
	onlyStars := &model.Repository{Stars: 100, CreatedAt: now.AddDate(-2, 0, 0)}
	onlyForks := &model.Repository{Forks: 100, CreatedAt: now.AddDate(-2, 0, 0)}
	assert.Greater(t, GithubScore(onlyStars, stats, now), GithubScore(onlyForks, stats, now))
}

func TestFinalScore_LanguageBlends(t *testing.T) {
	now := time.Now().UTC()
	stats := PopulationStats{
		MaxStars: 100, MaxForks: 100, MaxWatchers: 100,
		MaxDownloads: 1_000_000, MaxReleaseDownloads: 10_000,
	}
	base := &model.Repository{Stars: 50, CreatedAt: now.AddDate(-4, 0, 0)}

	t.Run("python with downloads blends 40/60", func(t *testing.T) {
		r := *base
		r.Language = strp("Python")
		r.PyPIDownloadsMonth = 1_000_000

		sc := FinalScore(&r, stats, now)
		assert.Equal(t, GithubPyPI, sc.Type)
		want := 0.4*sc.Github + 0.6*1.0
		assert.InDelta(t, want, sc.Final, 0.001)
	})

	t.Run("python without downloads falls back to base", func(t *testing.T) {
		r := *base
		r.Language = strp("Python")

		sc := FinalScore(&r, stats, now)
		assert.Equal(t, GithubOnly, sc.Type)
		assert.Equal(t, sc.Github, sc.Final)
	})

	t.Run("c++ with release downloads blends 70/30", func(t *testing.T) {
		r := *base
		r.Language = strp("C++")
		r.ReleaseDownloads = 10_000

		sc := FinalScore(&r, stats, now)
		assert.Equal(t, GithubReleases, sc.Type)
		want := 0.7*sc.Github + 0.3*1.0
		assert.InDelta(t, want, sc.Final, 0.001)
	})

	t.Run("other languages are github only", func(t *testing.T) {
		r := *base
		r.Language = strp("Go")
		r.PyPIDownloadsMonth = 999 // ignored for non-Python

		sc := FinalScore(&r, stats, now)
		assert.Equal(t, GithubOnly, sc.Type)
	})
}

func TestRank(t *testing.T) {
	now := time.Now().UTC()
	records := []*model.Repository{
		{NameWithOwner: "a/small", Stars: 10, CreatedAt: now.AddDate(-1, 0, 0)},
		{NameWithOwner: "b/big", Stars: 1000, Forks: 200, Watchers: 100, CreatedAt: now.AddDate(-8, 0, 0)},
		{NameWithOwner: "c/mid", Stars: 300, CreatedAt: now.AddDate(-3, 0, 0)},
	}

	ranked := Rank(records)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b/big", ranked[0].Repository.NameWithOwner)

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score.Final, ranked[i].Score.Final, "sorted by final score desc")
	}
	for _, r := range ranked {
		assert.GreaterOrEqual(t, r.Score.Final, 0.0)
		assert.LessOrEqual(t, r.Score.Final, 1.0)
	}
}
