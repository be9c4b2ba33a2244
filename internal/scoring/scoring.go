// internal/scoring/scoring.go
package scoring

import (
	"math"
	"sort"
	"time"

	"seattle-source-ranker/internal/model"
)

// Influence formula:
//
//	score = 0.4*S + 0.25*F + 0.15*W + 0.10*T + 0.10*H
//
// where S, F, W are stars/forks/watchers normalized against the population
// maxima, T is the age weight years/(years+2), and H is the issue health
// 1 - issues/(issues+10). Python and C++ repositories blend in log-normalized
// download counts on top of the base score.

// PopulationStats are the maxima a pool is normalized against.
type PopulationStats struct {
	MaxStars            int
	MaxForks            int
	MaxWatchers         int
	MaxDownloads        int
	MaxReleaseDownloads int
}

// ComputeStats scans a record set for its normalization maxima.
func ComputeStats(records []*model.Repository) PopulationStats {
	var s PopulationStats
	for _, r := range records {
		s.MaxStars = max(s.MaxStars, r.Stars)
		s.MaxForks = max(s.MaxForks, r.Forks)
		s.MaxWatchers = max(s.MaxWatchers, r.Watchers)
		s.MaxDownloads = max(s.MaxDownloads, r.PyPIDownloadsMonth)
		s.MaxReleaseDownloads = max(s.MaxReleaseDownloads, r.ReleaseDownloads)
	}
	return s
}

// ScoreType labels which blend produced a final score.
type ScoreType string

const (
	GithubOnly     ScoreType = "github_only"
	GithubPyPI     ScoreType = "github+pypi"
	GithubReleases ScoreType = "github+releases"
)

// Score is the influence score of one repository, in the 0-1 range.
type Score struct {
	Final  float64   `json:"final_score"`
	Github float64   `json:"github_score"`
	Type   ScoreType `json:"score_type"`
}

// Normalize maps value onto 0-1 against a population maximum.
func Normalize(value, maxValue float64) float64 {
	if maxValue <= 0 {
		return 0
	}
	return value / maxValue
}

// LogNormalize is for values with huge ranges, like download counts.
func LogNormalize(value, maxValue float64) float64 {
	if value <= 0 || maxValue <= 0 {
		return 0
	}
	return math.Log10(value+1) / math.Log10(maxValue+1)
}

// AgeWeight grows toward 1 as a project ages: years/(years+2). Unknown or
// non-positive ages get the 0.3 floor.
func AgeWeight(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0.3
	}
	years := now.Sub(createdAt).Hours() / 24 / 365
	if years <= 0 {
		return 0.3
	}
	return years / (years + 2)
}

// HealthScore falls as open issues pile up: 1 - issues/(issues+10).
func HealthScore(openIssues int) float64 {
	return 1 - float64(openIssues)/float64(openIssues+10)
}

// GithubScore is the base score from stars, forks, watchers, age and health.
func GithubScore(r *model.Repository, stats PopulationStats, now time.Time) float64 {
	s := Normalize(float64(r.Stars), float64(stats.MaxStars))
	f := Normalize(float64(r.Forks), float64(stats.MaxForks))
	w := Normalize(float64(r.Watchers), float64(stats.MaxWatchers))
	t := AgeWeight(r.CreatedAt, now)
	h := HealthScore(r.OpenIssues)
	return 0.4*s + 0.25*f + 0.15*w + 0.10*t + 0.10*h
}

// FinalScore blends the base score with download metrics by language:
// Python 40% base + 60% PyPI downloads, C++ 70% base + 30% release
// downloads, everything else base only. Repositories without download data
// fall back to the base score.
func FinalScore(r *model.Repository, stats PopulationStats, now time.Time) Score {
	base := GithubScore(r, stats, now)
	sc := Score{Final: base, Github: base, Type: GithubOnly}

	lang := ""
	if r.Language != nil {
		lang = *r.Language
	}

	switch lang {
	case "Python":
		if r.PyPIDownloadsMonth > 0 {
			pypi := LogNormalize(float64(r.PyPIDownloadsMonth), float64(stats.MaxDownloads))
			sc.Final = 0.4*base + 0.6*pypi
			sc.Type = GithubPyPI
		}
	case "C++":
		if r.ReleaseDownloads > 0 {
			rel := LogNormalize(float64(r.ReleaseDownloads), float64(stats.MaxReleaseDownloads))
			sc.Final = 0.7*base + 0.3*rel
			sc.Type = GithubReleases
		}
	}

	sc.Final = round4(sc.Final)
	sc.Github = round4(sc.Github)
	return sc
}

// Ranked pairs a repository with its computed score.
type Ranked struct {
	Repository *model.Repository `json:"repository"`
	Score      Score             `json:"score"`
}

// Rank scores every record against the population and returns them sorted by
// final score descending.
func Rank(records []*model.Repository) []Ranked {
	stats := ComputeStats(records)
	now := time.Now().UTC()

	out := make([]Ranked, 0, len(records))
	for _, r := range records {
		out = append(out, Ranked{Repository: r, Score: FinalScore(r, stats, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score.Final > out[j].Score.Final
	})
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
