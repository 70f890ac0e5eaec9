package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/repochat/repochat/internal/embedder"
	"github.com/repochat/repochat/internal/fetcher"
	"github.com/repochat/repochat/internal/storage"
	"github.com/repochat/repochat/internal/vectorindex"
	"github.com/repochat/repochat/pkg/types"
)

// DefaultTopK is the search result count when top_k is not given.
const DefaultTopK = 5

// CodeMatch is one search_code result.
type CodeMatch struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
}

// RepoSummary is the get_repo_summary result shape.
type RepoSummary struct {
	TotalFiles       int            `json:"total_files"`
	FilesByExtension map[string]int `json:"files_by_extension"`
	FilesByDirectory map[string]int `json:"files_by_directory"`
}

// CodeServer exposes semantic search and file access for one ingested
// codebase.
type CodeServer struct {
	codebase *types.Codebase
	store    storage.Storage
	indexes  *vectorindex.Manager
	embedder embedder.Embedder
	topK     int
	registry *Registry
}

// NewCodeServer builds a code server and registers its tools. topK values
// below 1 fall back to DefaultTopK.
func NewCodeServer(cb *types.Codebase, store storage.Storage, indexes *vectorindex.Manager,
	emb embedder.Embedder, topK int) (*CodeServer, error) {
	if topK < 1 {
		topK = DefaultTopK
	}
	s := &CodeServer{
		codebase: cb,
		store:    store,
		indexes:  indexes,
		embedder: emb,
		topK:     topK,
		registry: NewRegistry(),
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry returns the server's tool registry.
func (s *CodeServer) Registry() *Registry { return s.registry }

func (s *CodeServer) registerTools() error {
	repoName := s.codebase.RepoURL.Name()

	if err := s.registry.Register(Descriptor{
		Name:        "search_code",
		Description: fmt.Sprintf("Search the %s codebase for code relevant to a natural language query", repoName),
		Params: []Param{
			{Name: "query", Type: ParamString, Required: true, Description: "Natural language or keyword query"},
			{Name: "top_k", Type: ParamInteger, Description: "Maximum number of results (default 5)"},
		},
	}, s.handleSearchCode); err != nil {
		return err
	}

	if err := s.registry.Register(Descriptor{
		Name:        "read_file",
		Description: fmt.Sprintf("Read a file from the %s codebase by relative path", repoName),
		Params: []Param{
			{Name: "path", Type: ParamString, Required: true, Description: "Path relative to the repository root"},
		},
	}, s.handleReadFile); err != nil {
		return err
	}

	if err := s.registry.Register(Descriptor{
		Name:        "list_files",
		Description: fmt.Sprintf("List indexed files in the %s codebase", repoName),
		Params: []Param{
			{Name: "directory", Type: ParamString, Description: "Restrict to files under this directory"},
			{Name: "extensions", Type: ParamArray, Description: "Restrict to these file extensions, e.g. [\".go\"]"},
		},
	}, s.handleListFiles); err != nil {
		return err
	}

	return s.registry.Register(Descriptor{
		Name:        "get_repo_summary",
		Description: fmt.Sprintf("Summarize the %s codebase: file counts by extension and directory", repoName),
	}, s.handleRepoSummary)
}

// SearchChunks runs the semantic search directly, bypassing argument
// decoding. The orchestrator retrieval step uses this path.
func (s *CodeServer) SearchChunks(ctx context.Context, query string, topK int) ([]types.SearchResult, error) {
	if topK <= 0 {
		return []types.SearchResult{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	index, err := s.indexes.Get(ctx, s.codebase.ID)
	if err != nil {
		return nil, err
	}
	matches, err := index.Query(vector, topK)
	if err != nil {
		return nil, err
	}

	seqs := make([]int, len(matches))
	for i, m := range matches {
		seqs[i] = m.Seq
	}
	chunks, err := s.store.GetChunksBySeqs(ctx, s.codebase.ID, seqs)
	if err != nil {
		return nil, err
	}

	// Pair scores with chunks by seq. The store may return fewer rows than
	// requested when an index briefly outlives a re-ingested chunk set.
	bySeq := make(map[int]types.Chunk, len(chunks))
	for _, c := range chunks {
		bySeq[c.Seq] = c
	}
	results := make([]types.SearchResult, 0, len(chunks))
	for _, m := range matches {
		c, ok := bySeq[m.Seq]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{
			Chunk: c,
			Score: m.Score,
			Rank:  len(results) + 1,
		})
	}
	return results, nil
}

func (s *CodeServer) handleSearchCode(ctx context.Context, args map[string]any) (any, error) {
	query := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search_code: query cannot be empty", types.ErrToolArgument)
	}
	topK := intArg(args, "top_k", s.topK)
	if topK < 0 {
		topK = 0
	}

	results, err := s.SearchChunks(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	matches := make([]CodeMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, CodeMatch{
			FilePath:  r.Chunk.FilePath,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Score:     r.Score,
			Content:   r.Chunk.Content,
		})
	}
	return matches, nil
}

func (s *CodeServer) handleReadFile(_ context.Context, args map[string]any) (any, error) {
	path := args["path"].(string)
	content, err := fetcher.ReadFile(s.codebase.LocalPath, path)
	if err != nil {
		return nil, fmt.Errorf("%w: read_file: %v", types.ErrToolArgument, err)
	}
	return content, nil
}

func (s *CodeServer) handleListFiles(_ context.Context, args map[string]any) (any, error) {
	files, err := fetcher.ListFiles(s.codebase.LocalPath)
	if err != nil {
		return nil, err
	}

	directory := strings.Trim(stringArg(args, "directory", ""), "/")
	extensions := stringSliceArg(args, "extensions")

	filtered := make([]string, 0, len(files))
	for _, f := range files {
		if directory != "" && !strings.HasPrefix(f, directory+"/") {
			continue
		}
		if len(extensions) > 0 && !hasExtension(f, extensions) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered, nil
}

func hasExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func (s *CodeServer) handleRepoSummary(_ context.Context, _ map[string]any) (any, error) {
	files, err := fetcher.ListFiles(s.codebase.LocalPath)
	if err != nil {
		return nil, err
	}

	summary := RepoSummary{
		TotalFiles:       len(files),
		FilesByExtension: make(map[string]int),
		FilesByDirectory: make(map[string]int),
	}
	for _, f := range files {
		ext := filepath.Ext(f)
		if ext == "" {
			ext = "(none)"
		}
		summary.FilesByExtension[ext]++

		dir := "."
		if i := strings.Index(f, "/"); i >= 0 {
			dir = f[:i]
		}
		summary.FilesByDirectory[dir]++
	}
	return summary, nil
}
