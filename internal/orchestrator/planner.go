package orchestrator

import (
	"path"
	"regexp"
	"strings"

	"github.com/repochat/repochat/internal/fetcher"
	"github.com/repochat/repochat/pkg/types"
)

// Route selects how a turn gathers its context.
type Route string

const (
	// RouteRetrieve answers from vector search over chunks.
	RouteRetrieve Route = "retrieve"
	// RouteTool answers from a tool call on the code server.
	RouteTool Route = "tool"
)

// Plan is the planner's decision for one turn.
type Plan struct {
	Route Route
	Tool  string
	Args  map[string]any
}

// Planner decides how to gather context for a question.
type Planner interface {
	Decide(question string, history []types.Message) (Plan, error)
}

// RulePlanner routes with plain heuristics: structure questions go to the
// repo summary, questions naming a concrete file read that file, everything
// else hits vector retrieval.
type RulePlanner struct{}

var _ Planner = RulePlanner{}

var pathPattern = regexp.MustCompile(`[A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,6}`)

var structurePhrases = []string{
	"list files", "list the files", "what files", "file structure",
	"directory structure", "repo summary", "repository structure",
	"project structure", "project layout",
}

var readPhrases = []string{"read", "show", "open", "content of", "contents of", "what is in", "what's in"}

func (RulePlanner) Decide(question string, _ []types.Message) (Plan, error) {
	q := strings.ToLower(question)

	for _, phrase := range structurePhrases {
		if strings.Contains(q, phrase) {
			return Plan{Route: RouteTool, Tool: "get_repo_summary"}, nil
		}
	}

	if file := findFilePath(question); file != "" {
		for _, phrase := range readPhrases {
			if strings.Contains(q, phrase) {
				return Plan{
					Route: RouteTool,
					Tool:  "read_file",
					Args:  map[string]any{"path": file},
				}, nil
			}
		}
	}

	return Plan{Route: RouteRetrieve}, nil
}

// findFilePath returns the first token that looks like a source file path.
func findFilePath(question string) string {
	for _, m := range pathPattern.FindAllString(question, -1) {
		if fetcher.SupportedExtensions[strings.ToLower(path.Ext(m))] {
			return strings.TrimPrefix(m, "/")
		}
	}
	return ""
}
