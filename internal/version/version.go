// Package version reports the build version and checks GitHub for newer
// releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Set with -ldflags "-X github.com/mrz1836/tether/internal/version.Version=..."
//
//nolint:gochecknoglobals // Populated by the linker at build time
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Release coordinates and client defaults.
const (
	Owner          = "mrz1836"
	Repo           = "tether"
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 15 * time.Second

	maxBodySize = 64 * 1024
)

var (
	// ErrReleaseLookup is returned when the releases API answers with an error.
	ErrReleaseLookup = errors.New("release lookup failed")
	// ErrInvalidRepo is returned for owner or repo names GitHub would reject.
	ErrInvalidRepo = errors.New("invalid owner or repo name")
)

var repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Build describes the running binary.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// Current returns the running binary's build.
func Current() Build {
	return Build{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}

// String renders the build on one line. Empty fields read as dev or unknown.
func (b Build) String() string {
	v, c, d := b.Version, b.Commit, b.Date
	if v == "" {
		v = "dev"
	}
	if c == "" {
		c = "unknown"
	}
	if d == "" {
		d = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// Release is the part of a GitHub release the check needs.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Check is the outcome of comparing the build with the latest release.
type Check struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	Newer   bool   `json:"newer"`
	URL     string `json:"url,omitempty"`
}

// Client queries the GitHub releases API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestRelease fetches the newest published release of owner/repo.
func (c *Client) LatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	if !repoNamePattern.MatchString(owner) || !repoNamePattern.MatchString(repo) {
		return nil, fmt.Errorf("%w: %q/%q", ErrInvalidRepo, owner, repo)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", fmt.Sprintf("tether/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH))

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL is built from the configured releases API root
	if err != nil {
		return nil, fmt.Errorf("fetching release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxBodySize)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrReleaseLookup, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rel Release
	if err := json.NewDecoder(body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	return &rel, nil
}

// CheckLatest compares current with the latest tether release.
func (c *Client) CheckLatest(ctx context.Context, current string) (*Check, error) {
	rel, err := c.LatestRelease(ctx, Owner, Repo)
	if err != nil {
		return nil, err
	}
	return &Check{
		Current: current,
		Latest:  rel.TagName,
		Newer:   Compare(rel.TagName, current) > 0,
		URL:     rel.HTMLURL,
	}, nil
}

// Compare orders two versions: 1 when a is newer, -1 when b is newer.
// Development builds and commit hashes sort before every release.
func Compare(a, b string) int {
	aDev, bDev := isDev(a), isDev(b)
	switch {
	case aDev && bDev:
		return 0
	case aDev:
		return -1
	case bDev:
		return 1
	}

	pa, pb := parts(a), parts(b)
	for i := range 3 {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Normalize strips a leading v, surrounding space and any pre-release or
// build suffix.
func Normalize(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i != -1 {
		v = v[:i]
	}
	return v
}

func parts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(Normalize(v), ".", 3) {
		n, err := strconv.Atoi(p)
		if err == nil {
			out[i] = n
		}
	}
	return out
}

var commitPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

func isDev(v string) bool {
	v = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(v), "v"), "-dirty")
	if v == "" || v == "dev" {
		return true
	}
	// A hex string with a letter is a commit, not a numeric version.
	return commitPattern.MatchString(v) && strings.ContainsAny(strings.ToLower(v), "abcdef")
}
