// Package fetcher shallow-clones remote repositories and discovers the files
// worth indexing. History is never needed, so clones are depth 1.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/repochat/repochat/pkg/types"
)

// SupportedExtensions is the allowlist of file extensions the pipeline
// chunks and indexes. Everything else is skipped, never an error.
var SupportedExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".md": true, ".json": true, ".yaml": true, ".yml": true,
	".html": true, ".css": true, ".scss": true,
	".java": true, ".go": true, ".rs": true, ".rb": true,
	".sh": true, ".bash": true, ".zsh": true,
	".sql": true, ".graphql": true, ".toml": true, ".ini": true, ".cfg": true,
}

// ignoredDirs are directory names never descended into during discovery.
var ignoredDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, "vendor": true,
	"dist": true, "build": true, ".next": true, ".nuxt": true,
	"coverage": true, ".pytest_cache": true, ".mypy_cache": true, ".tox": true,
}

// IgnoredDir reports whether a directory name is excluded from discovery.
func IgnoredDir(name string) bool {
	return ignoredDirs[name]
}

const (
	cloneRetries     = 3
	cloneBaseBackoff = 500 * time.Millisecond
)

// Fetcher clones repositories under a base directory.
type Fetcher struct {
	baseDir string
	token   string // optional GitHub access token for private repositories
	timeout time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithToken sets a GitHub access token injected into clone URLs.
func WithToken(token string) Option {
	return func(f *Fetcher) { f.token = token }
}

// WithTimeout bounds each clone attempt. Defaults to 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// New creates a Fetcher storing clones under baseDir.
func New(baseDir string, opts ...Option) *Fetcher {
	f := &Fetcher{baseDir: baseDir, timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Clone shallow-clones the repository into baseDir/<id> and returns the local
// path. Transient failures are retried with exponential backoff; the final
// error wraps types.ErrFetch.
func (f *Fetcher) Clone(ctx context.Context, repoURL types.RepoURL, id string) (string, error) {
	target := filepath.Join(f.baseDir, id)
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create clone dir: %v", types.ErrFetch, err)
	}

	cloneURL := f.authURL(repoURL)

	var lastErr error
	backoff := cloneBaseBackoff
	for attempt := 0; attempt < cloneRetries; attempt++ {
		lastErr = f.cloneOnce(ctx, cloneURL, target)
		if lastErr == nil {
			return target, nil
		}
		if ctx.Err() != nil {
			break
		}
		// A half-written clone must not poison the next attempt.
		_ = os.RemoveAll(target)

		if attempt < cloneRetries-1 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", types.ErrFetch, ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return "", fmt.Errorf("%w: %v", types.ErrFetch, lastErr)
}

func (f *Fetcher) cloneOnce(ctx context.Context, cloneURL, target string) error {
	cloneCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(cloneCtx, "git", "clone", "--depth", "1", "--single-branch", cloneURL, target)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if cloneCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("clone timed out after %s", f.timeout)
		}
		if msg == "" {
			return err
		}
		return fmt.Errorf("git clone: %s", firstLine(msg))
	}
	return nil
}

// authURL injects the access token into the clone URL when configured.
func (f *Fetcher) authURL(repoURL types.RepoURL) string {
	url := repoURL.CloneURL()
	if f.token == "" {
		return url
	}
	return strings.Replace(url, "https://", "https://x-access-token:"+f.token+"@", 1)
}

// ListFiles walks localPath and returns supported files as slash-separated
// paths relative to the root, in deterministic walk order.
func ListFiles(localPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(localPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %v", types.ErrFetch, err)
	}
	return files, nil
}

// ReadFile reads a file relative to localPath, rejecting paths that escape
// the repository root.
func ReadFile(localPath, relPath string) (string, error) {
	full, err := securePath(localPath, relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", relPath)
		}
		return "", err
	}
	return string(data), nil
}

// securePath resolves relPath under root, failing on traversal.
func securePath(root, relPath string) (string, error) {
	full := filepath.Join(root, filepath.FromSlash(relPath))
	cleanRoot := filepath.Clean(root)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes repository root: %s", relPath)
	}
	return full, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
