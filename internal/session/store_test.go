package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-labs/aether/internal/core"
)

func textDoc(text string) core.Document {
	return core.Document{Type: core.DocumentText, Text: text}
}

// completeSession drives a session through one factor to COMPLETE.
func completeSession(t *testing.T, s *core.Session) {
	t.Helper()
	factor := core.Factor{ID: "f1", Name: "Revenue", Description: "d", Context: "c"}
	require.NoError(t, s.Transition(core.StateExtractingFactors))
	require.NoError(t, s.SetFactors([]core.Factor{factor}))
	require.NoError(t, s.Transition(core.StateArguing))
	require.NoError(t, s.Transition(core.StateCountering))
	require.NoError(t, s.Transition(core.StateSynthesizing))
	require.NoError(t, s.AppendDebate(core.DebateRecord{Factor: factor}))
	require.NoError(t, s.Transition(core.StateGeneratingReport))
	require.NoError(t, s.SetReport(core.FinalReport{ExecutiveSummary: "ok", FactorsAnalyzed: 1, TotalFactors: 1}))
	require.NoError(t, s.Transition(core.StateComplete))
}

func backends(t *testing.T) map[string]func() core.SessionStore {
	return map[string]func() core.SessionStore{
		"memory": func() core.SessionStore { return NewMemoryStore() },
		"sqlite": func() core.SessionStore {
			st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			return st
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			s := core.NewSession("a1", textDoc("quarterly report"))
			require.NoError(t, st.Create(ctx, s))

			err := st.Create(ctx, core.NewSession("a1", textDoc("dup")))
			assert.Error(t, err, "duplicate IDs are rejected")

			got, err := st.Get(ctx, "a1")
			require.NoError(t, err)
			assert.Same(t, s, got, "live session is shared")

			_, err = st.Get(ctx, "missing")
			assert.True(t, core.IsSessionNotFound(err))

			completeSession(t, s)
			require.NoError(t, st.Save(ctx, s))

			snaps, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, snaps, 1)
			assert.Equal(t, core.StateComplete, snaps[0].State)
			require.NotNil(t, snaps[0].FinalReport)
			assert.Equal(t, "ok", snaps[0].FinalReport.ExecutiveSummary)

			require.NoError(t, st.Delete(ctx, "a1"))
			_, err = st.Get(ctx, "a1")
			assert.True(t, core.IsSessionNotFound(err))
			assert.True(t, core.IsSessionNotFound(st.Delete(ctx, "a1")))
		})
	}
}

func TestStore_SaveUnknown(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			err := st.Save(context.Background(), core.NewSession("ghost", textDoc("x")))
			assert.True(t, core.IsSessionNotFound(err))
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			for _, id := range []string{"first", "second", "third"} {
				require.NoError(t, st.Create(ctx, core.NewSession(id, textDoc(id))))
				time.Sleep(2 * time.Millisecond)
			}

			snaps, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, snaps, 3)
			assert.Equal(t, "third", snaps[0].ID)
			assert.Equal(t, "first", snaps[2].ID)
		})
	}
}

func TestStore_SweepRemovesOnlyTerminal(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			done := core.NewSession("done", textDoc("x"))
			failed := core.NewSession("failed", textDoc("x"))
			running := core.NewSession("running", textDoc("x"))
			for _, s := range []*core.Session{done, failed, running} {
				require.NoError(t, st.Create(ctx, s))
			}
			completeSession(t, done)
			require.NoError(t, failed.Transition(core.StateExtractingFactors))
			require.NoError(t, failed.Fail(errors.New("boom")))
			require.NoError(t, running.Transition(core.StateExtractingFactors))
			for _, s := range []*core.Session{done, failed, running} {
				require.NoError(t, st.Save(ctx, s))
			}

			n, err := st.Sweep(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Zero(t, n, "nothing is older than the cutoff")

			n, err = st.Sweep(ctx, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, err = st.Get(ctx, "running")
			assert.NoError(t, err)
			_, err = st.Get(ctx, "done")
			assert.True(t, core.IsSessionNotFound(err))
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, st.Path())

	done := core.NewSession("done", core.Document{Type: core.DocumentImage, MimeType: "image/png", Data: []byte{0x89, 'P'}})
	require.NoError(t, st.Create(ctx, done))
	completeSession(t, done)
	require.NoError(t, st.Save(ctx, done))

	mid := core.NewSession("mid", textDoc("x"))
	require.NoError(t, st.Create(ctx, mid))
	require.NoError(t, mid.Transition(core.StateExtractingFactors))
	require.NoError(t, st.Save(ctx, mid))
	require.NoError(t, st.Close())

	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()

	restored, err := st.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, core.StateComplete, restored.State())
	assert.Equal(t, []byte{0x89, 'P'}, restored.Document().Data)
	require.NotNil(t, restored.Report())
	assert.Len(t, restored.Debates(), 1)

	interrupted, err := st.Get(ctx, "mid")
	require.NoError(t, err)
	assert.Equal(t, core.StateError, interrupted.State())
	assert.Equal(t, interruptedMessage, interrupted.Snapshot().Error)
}

func TestNew(t *testing.T) {
	st, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	st, err = New(Options{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = New(Options{Backend: "redis"})
	assert.Error(t, err)
}
