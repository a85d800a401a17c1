package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"autobuilder/internal/merge"
	"autobuilder/internal/xmlcore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T) (Config, *merge.Service) {
	t.Helper()
	dir := t.TempDir()
	target := filepath.Join(dir, "app.orm.xml")
	require.NoError(t, os.WriteFile(target, []byte(`<orm><entities/></orm>`), 0o644))
	cfg := Config{
		Inbox:    filepath.Join(dir, "inbox"),
		Target:   target,
		Options:  xmlcore.DefaultMergeOptions(),
		Debounce: 20 * time.Millisecond,
	}
	return cfg, merge.NewService(xmlcore.ForORM(), nil, nil)
}

func entityNames(t *testing.T, path string) []string {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	var names []string
	for _, e := range doc.FindElements("//entity") {
		names = append(names, e.SelectAttrValue("name", ""))
	}
	return names
}

func TestNew_RequiresPaths(t *testing.T) {
	_, err := New(Config{Inbox: "x"}, nil, nil)
	assert.Error(t, err)
}

func TestWatcher_MergesNewFragment(t *testing.T) {
	cfg, svc := setup(t)
	w, err := New(cfg, svc, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	frag := filepath.Join(cfg.Inbox, "user.xml")
	require.NoError(t, os.WriteFile(frag, []byte("```xml\n<entity name=\"User\"/>\n```"), 0o644))

	require.Eventually(t, func() bool { return w.Stats().Merged == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"User"}, entityNames(t, cfg.Target))
	assert.FileExists(t, filepath.Join(cfg.Inbox, "done", "user.xml"))
	assert.NoFileExists(t, frag)
}

func TestWatcher_ProcessesExistingOnStart(t *testing.T) {
	cfg, svc := setup(t)
	require.NoError(t, os.MkdirAll(cfg.Inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Inbox, "a.xml"), []byte(`<entity name="A"/>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Inbox, "notes.txt"), []byte(`ignored`), 0o644))

	w, err := New(cfg, svc, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { return w.Stats().Merged == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.FileExists(t, filepath.Join(cfg.Inbox, "notes.txt"))
}

func TestWatcher_FailedFragment(t *testing.T) {
	cfg, svc := setup(t)
	w, err := New(cfg, svc, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Inbox, "bad.xml"), []byte(`<entity tableName="t"/>`), 0o644))

	require.Eventually(t, func() bool { return w.Stats().Failed == 1 }, 5*time.Second, 10*time.Millisecond)
	errFile := filepath.Join(cfg.Inbox, "failed", "bad.xml.err")
	require.Eventually(t, func() bool {
		_, err := os.Stat(errFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	data, err := os.ReadFile(errFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "missing identifier")
	assert.Contains(t, w.Stats().LastError, "missing identifier")
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	cfg, svc := setup(t)
	w, err := New(cfg, svc, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatcher_ContextCancelEndsLoop(t *testing.T) {
	cfg, svc := setup(t)
	w, err := New(cfg, svc, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}
