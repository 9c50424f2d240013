package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkline/internal/config"
	"checkline/internal/domain"
	"checkline/internal/engine"
)

func openWorkspace(t *testing.T, dir string) *Workspace {
	t.Helper()
	ws, err := Open(context.Background(), dir, nil)
	require.NoError(t, err)
	ws.Now = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }
	return ws
}

func TestSessionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ws := openWorkspace(t, dir)
	s, err := ws.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StateNone, s.State)

	e := ws.Engine(s)
	doc := e.NewDocument()
	sec, item := doc.Sections[0].ID, doc.Sections[0].Items[0].ID
	_, err = e.SetItemStatus(sec, item, domain.StatusFail)
	require.NoError(t, err)
	require.NoError(t, ws.Persist(ctx, s, "alice"))
	require.NoError(t, ws.Close())

	ws = openWorkspace(t, dir)
	defer ws.Close()
	restored, err := ws.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StateActive, restored.State)
	require.NotNil(t, restored.Doc)
	assert.Equal(t, domain.StatusFail, restored.Doc.FindItem(sec, item).Status)
	assert.Equal(t, doc, restored.Doc)

	evts, err := ws.Repo.LatestEvents(ctx, 10, "", "", "")
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "item.status", evts[0].Type)
	assert.Equal(t, "document.created", evts[1].Type)
	assert.Equal(t, "alice", evts[0].ActorID)
}

func TestPersistWithoutChangesIsNoop(t *testing.T) {
	ctx := context.Background()
	ws := openWorkspace(t, t.TempDir())
	defer ws.Close()
	s, err := ws.LoadSession(ctx)
	require.NoError(t, err)
	require.NoError(t, ws.Persist(ctx, s, ""))
	evts, err := ws.Repo.LatestEvents(ctx, 10, "", "", "")
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestResolveConfigPrefersImported(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ws := openWorkspace(t, dir)
	assert.Equal(t, config.Default(), ws.Config)

	cfg, err := config.FromYAML([]byte("template:\n  sections:\n    - title: Solo\n      items: [Uno, Due]\n"))
	require.NoError(t, err)
	require.NoError(t, ws.Repo.UpsertConfig(ctx, cfg))
	require.NoError(t, ws.Close())

	ws = openWorkspace(t, dir)
	defer ws.Close()
	s, err := ws.LoadSession(ctx)
	require.NoError(t, err)
	doc := ws.Engine(s).NewDocument()
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Solo", doc.Sections[0].Title)
	assert.Len(t, doc.Sections[0].Items, 2)
}
