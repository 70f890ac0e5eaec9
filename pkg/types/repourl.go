package types

import (
	"fmt"
	"regexp"
	"strings"
)

// githubPattern matches HTTPS GitHub repository URLs, with or without a
// trailing .git suffix or slash.
var githubPattern = regexp.MustCompile(`^https?://github\.com/[\w\-\.]+/[\w\-\.]+(?:\.git)?/?$`)

// RepoURL is a validated GitHub repository URL.
type RepoURL struct {
	raw string
}

// ParseRepoURL validates raw and returns a RepoURL.
func ParseRepoURL(raw string) (RepoURL, error) {
	if !githubPattern.MatchString(raw) {
		return RepoURL{}, fmt.Errorf("%w: %s", ErrInvalidRepoURL, raw)
	}
	return RepoURL{raw: raw}, nil
}

// String returns the URL as given.
func (u RepoURL) String() string { return u.raw }

// Owner returns the repository owner segment.
func (u RepoURL) Owner() string {
	parts := strings.Split(u.trimmed(), "/")
	return parts[len(parts)-2]
}

// Name returns the repository name segment.
func (u RepoURL) Name() string {
	parts := strings.Split(u.trimmed(), "/")
	return parts[len(parts)-1]
}

// CloneURL returns the URL in a form suitable for git clone.
func (u RepoURL) CloneURL() string {
	url := strings.TrimRight(u.raw, "/")
	if !strings.HasSuffix(url, ".git") {
		url += ".git"
	}
	return url
}

func (u RepoURL) trimmed() string {
	return strings.TrimSuffix(strings.TrimRight(u.raw, "/"), ".git")
}
