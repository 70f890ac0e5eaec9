package types

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://github.com/acme/widgets", false},
		{"http", "http://github.com/acme/widgets", false},
		{"git suffix", "https://github.com/acme/widgets.git", false},
		{"trailing slash", "https://github.com/acme/widgets/", false},
		{"dots and dashes", "https://github.com/acme-inc/my.widgets-v2", false},
		{"gitlab", "https://gitlab.com/acme/widgets", true},
		{"missing repo", "https://github.com/acme", true},
		{"not a url", "acme/widgets", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseRepoURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRepoURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.url, u.String())
		})
	}
}

func TestRepoURL_Parts(t *testing.T) {
	u, err := ParseRepoURL("https://github.com/acme/widgets.git")
	require.NoError(t, err)

	assert.Equal(t, "acme", u.Owner())
	assert.Equal(t, "widgets", u.Name())
	assert.Equal(t, "https://github.com/acme/widgets.git", u.CloneURL())

	plain, err := ParseRepoURL("https://github.com/acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets.git", plain.CloneURL())
}

func TestIngestStatus_Transitions(t *testing.T) {
	order := []IngestStatus{StatusPending, StatusCloning, StatusParsing, StatusEmbedding, StatusIndexing, StatusCompleted}

	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanAdvanceTo(order[i+1]), "%s -> %s", order[i], order[i+1])
	}

	// No stage may be skipped.
	assert.False(t, StatusPending.CanAdvanceTo(StatusParsing))
	assert.False(t, StatusCloning.CanAdvanceTo(StatusIndexing))
	assert.False(t, StatusPending.CanAdvanceTo(StatusCompleted))

	// Failed is reachable from any non-terminal state.
	for _, s := range order[:len(order)-1] {
		assert.True(t, s.CanAdvanceTo(StatusFailed), "%s -> failed", s)
	}

	// Terminal states do not advance.
	assert.False(t, StatusCompleted.CanAdvanceTo(StatusFailed))
	assert.False(t, StatusFailed.CanAdvanceTo(StatusCloning))
}

func TestCodebase_Lifecycle(t *testing.T) {
	u, err := ParseRepoURL("https://github.com/acme/widgets")
	require.NoError(t, err)

	cb := &Codebase{ID: "cb-1", RepoURL: u, Status: StatusPending}
	assert.False(t, cb.Ready())

	cb.MarkCompleted(12, 48)
	assert.True(t, cb.Ready())
	assert.Equal(t, 12, cb.FileCount)
	assert.Equal(t, 48, cb.ChunkCount)
	require.NotNil(t, cb.IndexedAt)

	cb2 := &Codebase{ID: "cb-2", RepoURL: u, Status: StatusCloning}
	cb2.MarkFailed("clone timed out")
	assert.Equal(t, StatusFailed, cb2.Status)
	assert.Equal(t, "clone timed out", cb2.ErrorMessage)
	assert.False(t, cb2.Ready())
}

func TestChatSession_AddMessage(t *testing.T) {
	s := &ChatSession{ID: "s-1", CodebaseID: "cb-1"}

	s.AddMessage(NewUserMessage("how is logging configured in this repo?"))
	assert.Equal(t, "how is logging configured in this repo?", s.Title)
	assert.Equal(t, 1, s.MessageCount())

	s.AddMessage(NewAssistantMessage("via internal/logger", []SourceRef{{Path: "internal/logger/logger.go", Score: 0.91}}))
	assert.Equal(t, 2, s.MessageCount())
	// Title is seeded once, never overwritten.
	assert.Equal(t, "how is logging configured in this repo?", s.Title)
}

func TestTitleFromContent_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}
	title := TitleFromContent(long)
	assert.Len(t, title, maxTitleLen+3)
	assert.Equal(t, long[:maxTitleLen]+"...", title)
}

func TestTitleFromContent_MultiByteRunes(t *testing.T) {
	long := strings.Repeat("コードベース", 20)
	title := TitleFromContent(long)
	assert.True(t, utf8.ValidString(title))
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.LessOrEqual(t, len(title), maxTitleLen+3)
	// The kept prefix is an exact rune-aligned slice of the content.
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(title, "...")))

	short := "何をしますか"
	assert.Equal(t, short, TitleFromContent(short))
}

func TestChunk_Validate(t *testing.T) {
	valid := Chunk{CodebaseID: "cb", Seq: 0, FilePath: "main.go", StartLine: 1, EndLine: 10, Content: "package main"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Chunk)
	}{
		{"empty content", func(c *Chunk) { c.Content = "" }},
		{"missing codebase", func(c *Chunk) { c.CodebaseID = "" }},
		{"missing path", func(c *Chunk) { c.FilePath = "" }},
		{"zero start line", func(c *Chunk) { c.StartLine = 0 }},
		{"inverted span", func(c *Chunk) { c.StartLine = 9; c.EndLine = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
