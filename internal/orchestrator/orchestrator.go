package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/repochat/repochat/internal/embedder"
	"github.com/repochat/repochat/internal/llm"
	"github.com/repochat/repochat/internal/logger"
	"github.com/repochat/repochat/internal/storage"
	"github.com/repochat/repochat/internal/stream"
	"github.com/repochat/repochat/internal/tools"
	"github.com/repochat/repochat/internal/vectorindex"
	"github.com/repochat/repochat/pkg/types"
)

const (
	// DefaultTopK is the retrieval depth per turn.
	DefaultTopK = 5
	// DefaultContextBudget caps the retrieved context in bytes.
	DefaultContextBudget = 24 * 1024
	// DefaultGenerateTimeout bounds one generation.
	DefaultGenerateTimeout = 2 * time.Minute

	noContextFallback = "No relevant code found in the repository."
)

const systemPromptTemplate = `You are a helpful code assistant that answers questions about a specific codebase.

You have access to the following retrieved code context:

%s

Instructions:
- Answer the user's question based on the provided code context
- Be specific and reference actual code when relevant
- If the context doesn't contain enough information, say so
- Format code snippets using markdown code blocks
- Keep responses concise but complete
`

// Options tunes an Orchestrator. Zero values fall back to defaults.
type Options struct {
	TopK            int
	ContextBudget   int
	GenerateTimeout time.Duration
	CacheSize       int
	CacheTTL        time.Duration
	Planner         Planner
}

// ChatResult is one finished assistant turn.
type ChatResult struct {
	SessionID string            `json:"session_id"`
	Message   types.Message     `json:"message"`
	Sources   []types.SourceRef `json:"sources"`
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	store     storage.Storage
	indexes   *vectorindex.Manager
	embedder  embedder.Embedder
	generator llm.Generator
	planner   Planner
	log       *logger.Logger

	topK          int
	contextBudget int
	genTimeout    time.Duration
	cache         *responseCache

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an orchestrator.
func New(store storage.Storage, indexes *vectorindex.Manager, emb embedder.Embedder,
	gen llm.Generator, log *logger.Logger, opts Options) *Orchestrator {
	if opts.TopK < 1 {
		opts.TopK = DefaultTopK
	}
	if opts.ContextBudget < 1 {
		opts.ContextBudget = DefaultContextBudget
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = DefaultGenerateTimeout
	}
	if opts.Planner == nil {
		opts.Planner = RulePlanner{}
	}
	return &Orchestrator{
		store:         store,
		indexes:       indexes,
		embedder:      emb,
		generator:     gen,
		planner:       opts.Planner,
		log:           log,
		topK:          opts.TopK,
		contextBudget: opts.ContextBudget,
		genTimeout:    opts.GenerateTimeout,
		cache:         newResponseCache(opts.CacheSize, opts.CacheTTL),
	}
}

// Chat runs one non-streamed turn. Answers may come from the response cache.
func (o *Orchestrator) Chat(ctx context.Context, codebaseID, sessionID, question string) (*ChatResult, error) {
	return o.runTurn(ctx, codebaseID, sessionID, question, nil, true)
}

// ChatStream runs one turn, pushing chunk frames to ch and always closing it
// with exactly one terminal frame.
func (o *Orchestrator) ChatStream(ctx context.Context, codebaseID, sessionID, question string, ch *stream.Channel) error {
	emit := func(delta string) error {
		if delta == "" {
			return nil
		}
		return ch.Send(ctx, stream.Chunk(delta))
	}

	result, err := o.runTurn(ctx, codebaseID, sessionID, question, emit, false)
	if err != nil {
		// The turn context bounds the send: once the consumer's request is
		// gone the frame is dropped but the channel still closes.
		if serr := ch.Send(ctx, stream.Error(err.Error())); serr != nil {
			o.log.Warn("failed to send error frame", "error", serr.Error())
		}
		return err
	}
	return ch.Send(ctx, stream.Done(result.Sources))
}

// runTurn is the receive -> plan -> retrieve -> generate -> finalize chain.
// emit, when set, observes each answer fragment as it arrives.
func (o *Orchestrator) runTurn(ctx context.Context, codebaseID, sessionID, question string,
	emit func(string) error, useCache bool) (*ChatResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", types.ErrGeneration)
	}

	// Receive
	cb, session, sessionIsNew, err := o.receive(ctx, codebaseID, sessionID)
	if err != nil {
		return nil, err
	}

	if !o.acquire(sessionID) {
		return nil, fmt.Errorf("%w: session %s has a generation in flight", types.ErrStreamBusy, sessionID)
	}
	defer o.release(sessionID)

	if useCache {
		if hit, ok := o.cache.get(codebaseID, question); ok {
			return o.finalize(ctx, session, sessionIsNew, question, hit.Answer, hit.Sources)
		}
	}

	// Plan
	plan, err := o.planner.Decide(question, session.Messages)
	if err != nil {
		o.log.Warn("planner failed, falling back to retrieval", "error", err.Error())
		plan = Plan{Route: RouteRetrieve}
	}

	// Retrieve
	contextText, sources := o.retrieve(ctx, cb, plan, question)

	// Generate
	answer, err := o.generate(ctx, session.Messages, contextText, question, emit)
	if err != nil {
		// Nothing is persisted for a failed or interrupted turn.
		return nil, err
	}

	// Finalize
	result, err := o.finalize(ctx, session, sessionIsNew, question, answer, sources)
	if err != nil {
		return nil, err
	}
	if useCache {
		o.cache.put(codebaseID, question, cachedAnswer{Answer: answer, Sources: result.Sources})
	}
	return result, nil
}

// receive loads the codebase and session, creating the session lazily on its
// first message.
func (o *Orchestrator) receive(ctx context.Context, codebaseID, sessionID string) (*types.Codebase, *types.ChatSession, bool, error) {
	cb, err := o.store.GetCodebase(ctx, codebaseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, false, fmt.Errorf("%w: %s", types.ErrCodebaseNotFound, codebaseID)
	}
	if err != nil {
		return nil, nil, false, err
	}
	if !cb.Ready() {
		return nil, nil, false, fmt.Errorf("%w: %s is %s", types.ErrCodebaseNotReady, codebaseID, cb.Status)
	}

	session, err := o.store.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		now := time.Now().UTC()
		session = &types.ChatSession{
			ID:         sessionID,
			CodebaseID: codebaseID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return cb, session, true, nil
	case err != nil:
		return nil, nil, false, err
	}
	if session.CodebaseID != codebaseID {
		return nil, nil, false, fmt.Errorf("%w: %s belongs to another codebase", types.ErrSessionNotFound, sessionID)
	}
	return cb, session, false, nil
}

// retrieve gathers context per the plan. Failures degrade to an empty
// context; they never abort the turn.
func (o *Orchestrator) retrieve(ctx context.Context, cb *types.Codebase, plan Plan, question string) (string, []types.SourceRef) {
	server, err := tools.NewCodeServer(cb, o.store, o.indexes, o.embedder, o.topK)
	if err != nil {
		o.log.Warn("code server unavailable", "codebase_id", cb.ID, "error", err.Error())
		return noContextFallback, nil
	}

	if plan.Route == RouteTool {
		client := tools.NewClient()
		client.AddServer("code", server.Registry())
		text, err := client.Call(ctx, "code", plan.Tool, plan.Args)
		if err == nil {
			var sources []types.SourceRef
			if path, ok := plan.Args["path"].(string); ok {
				sources = []types.SourceRef{{Path: path}}
			}
			return text, sources
		}
		o.log.Warn("tool route failed, falling back to retrieval", "tool", plan.Tool, "error", err.Error())
	}

	results, err := server.SearchChunks(ctx, question, o.topK)
	if err != nil {
		o.log.Warn("retrieval degraded", "codebase_id", cb.ID, "error", err.Error())
		return noContextFallback, nil
	}
	if len(results) == 0 {
		return noContextFallback, nil
	}

	var parts []string
	var sources []types.SourceRef
	seen := make(map[string]bool)
	used := 0
	for _, r := range results {
		part := fmt.Sprintf("### File: %s (lines %d-%d)\n```\n%s\n```",
			r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Chunk.Content)
		if used+len(part) > o.contextBudget && used > 0 {
			break
		}
		parts = append(parts, part)
		used += len(part)
		if !seen[r.Chunk.FilePath] {
			seen[r.Chunk.FilePath] = true
			sources = append(sources, types.SourceRef{Path: r.Chunk.FilePath, Score: r.Score})
		}
	}
	return strings.Join(parts, "\n\n"), sources
}

// generate streams the answer and returns the concatenation of all
// fragments.
func (o *Orchestrator) generate(ctx context.Context, history []types.Message,
	contextText, question string, emit func(string) error) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, contextText),
	})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == types.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	gctx, cancel := context.WithTimeout(ctx, o.genTimeout)
	defer cancel()

	s, err := o.generator.Generate(gctx, messages)
	if err != nil {
		return "", err
	}
	defer func() { _ = s.Close() }()

	var b strings.Builder
	for {
		delta, done, err := s.Recv()
		if err != nil {
			return "", err
		}
		if delta != "" {
			b.WriteString(delta)
			if emit != nil {
				if err := emit(delta); err != nil {
					return "", err
				}
			}
		}
		if done {
			return b.String(), nil
		}
	}
}

// finalize persists the finished turn as one user and one assistant message.
func (o *Orchestrator) finalize(ctx context.Context, session *types.ChatSession, sessionIsNew bool,
	question, answer string, sources []types.SourceRef) (*ChatResult, error) {
	if sources == nil {
		sources = []types.SourceRef{}
	}

	if sessionIsNew {
		if err := o.store.CreateSession(ctx, session); err != nil {
			return nil, err
		}
	}

	userMsg := types.NewUserMessage(question)
	if err := o.store.AppendMessage(ctx, session.ID, userMsg); err != nil {
		return nil, err
	}
	assistantMsg := types.NewAssistantMessage(answer, sources)
	if err := o.store.AppendMessage(ctx, session.ID, assistantMsg); err != nil {
		return nil, err
	}

	if session.Title == "" {
		title := types.TitleFromContent(question)
		if err := o.store.SetSessionTitle(ctx, session.ID, title); err != nil {
			o.log.Warn("failed to set session title", "session_id", session.ID, "error", err.Error())
		} else {
			session.Title = title
		}
	}
	session.AddMessage(userMsg)
	session.AddMessage(assistantMsg)

	return &ChatResult{
		SessionID: session.ID,
		Message:   assistantMsg,
		Sources:   sources,
	}, nil
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil {
		o.inflight = make(map[string]struct{})
	}
	if _, busy := o.inflight[sessionID]; busy {
		return false
	}
	o.inflight[sessionID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, sessionID)
}
