package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/repochat/repochat/internal/fetcher"
	"github.com/repochat/repochat/pkg/types"
)

const (
	// grepMaxMatches bounds grep output.
	grepMaxMatches = 50
	// grepMaxLineLen truncates long matched lines.
	grepMaxLineLen = 200
)

// DirEntry is one list_directory result.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// GrepMatch is one grep result.
type GrepMatch struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Text     string `json:"text"`
}

// FileServer exposes read-only filesystem tools confined to a repository
// working copy.
type FileServer struct {
	root     string
	registry *Registry
}

// NewFileServer builds a file server rooted at root and registers its tools.
func NewFileServer(root string) (*FileServer, error) {
	s := &FileServer{root: root, registry: NewRegistry()}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry returns the server's tool registry.
func (s *FileServer) Registry() *Registry { return s.registry }

func (s *FileServer) registerTools() error {
	if err := s.registry.Register(Descriptor{
		Name:        "read_file",
		Description: "Read a file by path relative to the repository root",
		Params: []Param{
			{Name: "path", Type: ParamString, Required: true, Description: "Relative file path"},
		},
	}, s.handleReadFile); err != nil {
		return err
	}

	if err := s.registry.Register(Descriptor{
		Name:        "list_directory",
		Description: "List the entries of a directory",
		Params: []Param{
			{Name: "path", Type: ParamString, Description: "Relative directory path (default \".\")"},
		},
	}, s.handleListDirectory); err != nil {
		return err
	}

	if err := s.registry.Register(Descriptor{
		Name:        "search_files",
		Description: "Find files whose name matches a glob pattern",
		Params: []Param{
			{Name: "pattern", Type: ParamString, Required: true, Description: "Glob pattern, e.g. *.go"},
		},
	}, s.handleSearchFiles); err != nil {
		return err
	}

	return s.registry.Register(Descriptor{
		Name:        "grep",
		Description: "Search file contents for a substring, case-insensitive",
		Params: []Param{
			{Name: "pattern", Type: ParamString, Required: true, Description: "Substring to search for"},
			{Name: "file_pattern", Type: ParamString, Description: "Glob restricting searched files (default *)"},
		},
	}, s.handleGrep)
}

// resolve confines a relative path to the server root.
func (s *FileServer) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes repository root", types.ErrToolArgument)
	}
	return abs, nil
}

func (s *FileServer) handleReadFile(_ context.Context, args map[string]any) (any, error) {
	content, err := fetcher.ReadFile(s.root, args["path"].(string))
	if err != nil {
		return nil, fmt.Errorf("%w: read_file: %v", types.ErrToolArgument, err)
	}
	return content, nil
}

func (s *FileServer) handleListDirectory(_ context.Context, args map[string]any) (any, error) {
	rel := stringArg(args, "path", ".")
	dir, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list_directory: %v", types.ErrToolArgument, err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		item := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if !e.IsDir() {
			if info, err := e.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileServer) handleSearchFiles(_ context.Context, args map[string]any) (any, error) {
	pattern := args["pattern"].(string)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: search_files: invalid pattern %q", types.ErrToolArgument, pattern)
	}

	var matches []string
	err := s.walkFiles(func(rel string) error {
		if ok, _ := path.Match(pattern, path.Base(rel)); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *FileServer) handleGrep(_ context.Context, args map[string]any) (any, error) {
	needle := strings.ToLower(args["pattern"].(string))
	if needle == "" {
		return nil, fmt.Errorf("%w: grep: pattern cannot be empty", types.ErrToolArgument)
	}
	filePattern := stringArg(args, "file_pattern", "*")
	if _, err := path.Match(filePattern, ""); err != nil {
		return nil, fmt.Errorf("%w: grep: invalid file pattern %q", types.ErrToolArgument, filePattern)
	}

	matches := []GrepMatch{}
	err := s.walkFiles(func(rel string) error {
		if len(matches) >= grepMaxMatches {
			return fs.SkipAll
		}
		if ok, _ := path.Match(filePattern, path.Base(rel)); !ok {
			return nil
		}
		content, err := fetcher.ReadFile(s.root, rel)
		if err != nil {
			return nil // unreadable files are skipped
		}
		for i, line := range strings.Split(content, "\n") {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			if len(line) > grepMaxLineLen {
				line = line[:grepMaxLineLen]
			}
			matches = append(matches, GrepMatch{FilePath: rel, Line: i + 1, Text: line})
			if len(matches) >= grepMaxMatches {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// walkFiles visits every regular file under the root with slash-separated
// relative paths, skipping ignored directories.
func (s *FileServer) walkFiles(visit func(rel string) error) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if fetcher.IgnoredDir(d.Name()) && p != s.root {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return visit(filepath.ToSlash(rel))
	})
}
