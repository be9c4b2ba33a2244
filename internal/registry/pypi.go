// internal/registry/pypi.go
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// notAPackage marks repositories known not to be published on PyPI; lookups
// for them answer "does not exist" without querying the registry.
const notAPackage = ""

// nameMappings covers repositories whose PyPI package name differs from the
// repository name, keyed by lowercase "owner/name" or bare repository name.
var nameMappings = map[string]string{
	"pytorch":                     "torch",
	"pytorch/pytorch":             "torch",
	"scikit-learn":                "scikit-learn",
	"opencv":                      "opencv-python",
	"opencv/opencv-python":        "opencv-python",
	"pillow":                      "Pillow",
	"python-pillow/pillow":        "Pillow",
	"beautifulsoup":               "beautifulsoup4",
	"pyyaml":                      "PyYAML",
	"yaml/pyyaml":                 "PyYAML",
	"psf/requests":                "requests",
	"pallets/flask":               "flask",
	"django/django":               "django",
	"numpy/numpy":                 "numpy",
	"pandas-dev/pandas":           "pandas",
	"tensorflow/tensorflow":       "tensorflow",
	"keras-team/keras":            "keras",
	"scipy/scipy":                 "scipy",
	"matplotlib/matplotlib":       "matplotlib",
	"ipython/ipython":             "ipython",
	"jupyter/notebook":            "notebook",
	"python/cpython":              notAPackage, // CPython itself, not a package
	"system-design-primer":        notAPackage, // learning resources
	"generative-ai-for-beginners": notAPackage,
	"ml-for-beginners":            notAPackage,
	"ai-for-beginners":            notAPackage,
}

// PackageInfo is the outcome of a registry lookup for one repository.
type PackageInfo struct {
	PackageName    string `json:"package_name,omitempty"`
	Exists         bool   `json:"exists"`
	DownloadsMonth int    `json:"downloads_month"`
	Reason         string `json:"reason"` // success | not_found | not_a_package
}

// Client looks up PyPI package existence and recent download counts.
type Client struct {
	http      *http.Client
	logger    *slog.Logger
	pypiBase  string
	statsBase string
}

// NewClient builds a registry client with sane timeouts.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		pypiBase:  "https://pypi.org/pypi",
		statsBase: "https://pypistats.org/api/packages",
	}
}

// PackageName resolves the PyPI package name for a repository. The mapping
// table is consulted first, for both the full "owner/name" key and the bare
// repository name; ok is false for known non-packages.
func PackageName(nameWithOwner string) (name string, ok bool) {
	bare := nameWithOwner
	if _, after, found := strings.Cut(nameWithOwner, "/"); found {
		bare = after
	}

	if mapped, hit := nameMappings[strings.ToLower(nameWithOwner)]; hit {
		return mapped, mapped != notAPackage
	}
	if mapped, hit := nameMappings[strings.ToLower(bare)]; hit {
		return mapped, mapped != notAPackage
	}
	// Default guess: the bare repository name.
	return bare, true
}

// Lookup resolves a repository to its PyPI package and fetches the recent
// monthly download count. Known non-packages short-circuit without a network
// call.
func (c *Client) Lookup(ctx context.Context, nameWithOwner string) (*PackageInfo, error) {
	pkg, ok := PackageName(nameWithOwner)
	if !ok {
		return &PackageInfo{Reason: "not_a_package"}, nil
	}

	exists, err := c.packageExists(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &PackageInfo{PackageName: pkg, Reason: "not_found"}, nil
	}

	downloads, err := c.recentDownloads(ctx, pkg)
	if err != nil {
		c.logger.Warn("Failed to fetch download stats", "package", pkg, "error", err)
		downloads = 0
	}

	return &PackageInfo{
		PackageName:    pkg,
		Exists:         true,
		DownloadsMonth: downloads,
		Reason:         "success",
	}, nil
}

func (c *Client) packageExists(ctx context.Context, pkg string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json", c.pypiBase, pkg), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) recentDownloads(ctx context.Context, pkg string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/recent", c.statsBase, pkg), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pypistats returned status %d for %s", resp.StatusCode, pkg)
	}

	var body struct {
		Data struct {
			LastMonth int `json:"last_month"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Data.LastMonth, nil
}
