package hooks

// Store tests - CRUD, validation, persistence and concurrency for the
// scope-partitioned hook store.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	userPath := filepath.Join(dir, "hooks.json")
	resolve := func(name string) (string, error) {
		if name == "" {
			return "", fmt.Errorf("empty project name")
		}
		return filepath.Join(dir, name, "hooks.json"), nil
	}
	return NewStore(userPath, resolve), userPath
}

func draft(name string) Draft {
	return Draft{
		Name:      name,
		EventType: EventPostToolUse,
		Code:      "return 'ok';",
	}
}

// TestStore_AddDefaults verifies id/timestamp assignment and the
// pattern/enabled defaults.
func TestStore_AddDefaults(t *testing.T) {
	store, _ := newTestStore(t)

	h, err := store.Add(ScopeUser, "", draft("format-notify"))
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, ScopeUser, h.Scope)
	assert.Empty(t, h.ProjectName)
	assert.Equal(t, Wildcard, h.Pattern)
	assert.True(t, h.Enabled)
	assert.False(t, h.CreatedAt.IsZero())
	assert.Equal(t, h.CreatedAt, h.UpdatedAt)
}

// TestStore_AddExplicitDisabled verifies Enabled=false survives the
// default.
func TestStore_AddExplicitDisabled(t *testing.T) {
	store, _ := newTestStore(t)

	disabled := false
	d := draft("quiet")
	d.Enabled = &disabled

	h, err := store.Add(ScopeUser, "", d)
	require.NoError(t, err)
	assert.False(t, h.Enabled)
}

// TestStore_AddValidation verifies every missing required field is
// reported at once.
func TestStore_AddValidation(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Add(ScopeUser, "", Draft{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"name", "eventType", "code"}, verr.Missing)
}

// TestStore_AddScopeErrors verifies unknown scopes and project scope
// without a project name are rejected.
func TestStore_AddScopeErrors(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Add(Scope("global"), "", draft("x"))
	var serr *ScopeError
	require.ErrorAs(t, err, &serr)

	_, err = store.Add(ScopeProject, "", draft("x"))
	require.ErrorAs(t, err, &serr)
}

// TestStore_PersistenceRoundTrip verifies a second store loads what the
// first one wrote.
func TestStore_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "hooks.json")
	resolve := func(string) (string, error) { return "", fmt.Errorf("no projects") }

	first := NewStore(userPath, resolve)
	created, err := first.Add(ScopeUser, "", draft("survivor"))
	require.NoError(t, err)

	second := NewStore(userPath, resolve)
	got, ok := second.Get(ScopeUser, "", created.ID)
	require.True(t, ok)
	assert.Equal(t, "survivor", got.Name)
	assert.Equal(t, created.ID, got.ID)
}

// TestStore_DocumentShape verifies the on-disk envelope carries version
// and lastUpdated alongside the hooks.
func TestStore_DocumentShape(t *testing.T) {
	store, userPath := newTestStore(t)
	_, err := store.Add(ScopeUser, "", draft("shape"))
	require.NoError(t, err)

	data, err := os.ReadFile(userPath)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "version")
	assert.Contains(t, doc, "lastUpdated")
	assert.Contains(t, doc, "hooks")
}

// TestStore_CorruptDocumentDegrades verifies a corrupt document yields
// an empty partition rather than a startup failure.
func TestStore_CorruptDocumentDegrades(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "hooks.json")
	require.NoError(t, os.WriteFile(userPath, []byte("{not json"), 0o644))

	store := NewStore(userPath, func(string) (string, error) { return "", nil })
	assert.Empty(t, store.List(ScopeUser, ""))

	// A write after degraded load starts a fresh valid document.
	_, err := store.Add(ScopeUser, "", draft("recovered"))
	require.NoError(t, err)
	assert.Len(t, store.List(ScopeUser, ""), 1)
}

// TestStore_UpdatePatch verifies a partial patch changes only named
// fields and refreshes updatedAt.
func TestStore_UpdatePatch(t *testing.T) {
	store, _ := newTestStore(t)
	store.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	created, err := store.Add(ScopeUser, "", draft("patchable"))
	require.NoError(t, err)

	store.now = func() time.Time { return time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC) }
	updated, err := store.Update(ScopeUser, "", created.ID, []byte(`{"enabled": false, "pattern": "*.go"}`))
	require.NoError(t, err)

	assert.False(t, updated.Enabled)
	assert.Equal(t, "*.go", updated.Pattern)
	assert.Equal(t, "patchable", updated.Name, "unnamed fields keep their value")
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

// TestStore_UpdateImmutableFields verifies identity fields cannot be
// patched.
func TestStore_UpdateImmutableFields(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.Add(ScopeUser, "", draft("fixed-identity"))
	require.NoError(t, err)

	updated, err := store.Update(ScopeUser, "", created.ID,
		[]byte(`{"id": "forged", "scope": "project", "createdAt": "1999-01-01T00:00:00Z", "name": "renamed"}`))
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, ScopeUser, updated.Scope)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "renamed", updated.Name)
}

// TestStore_UpdateRejectsEmptyRequired verifies a patch cannot blank a
// required field.
func TestStore_UpdateRejectsEmptyRequired(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.Add(ScopeUser, "", draft("guarded"))
	require.NoError(t, err)

	_, err = store.Update(ScopeUser, "", created.ID, []byte(`{"code": ""}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "code")

	// Record unchanged after the rejected patch.
	got, ok := store.Get(ScopeUser, "", created.ID)
	require.True(t, ok)
	assert.Equal(t, created.Code, got.Code)
}

// TestStore_UpdateNotFound verifies the sentinel for unknown ids.
func TestStore_UpdateNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Update(ScopeUser, "", "nope", []byte(`{"name": "x"}`))
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStore_Delete verifies removal returns the record and persists.
func TestStore_Delete(t *testing.T) {
	store, userPath := newTestStore(t)
	created, err := store.Add(ScopeUser, "", draft("doomed"))
	require.NoError(t, err)

	removed, err := store.Delete(ScopeUser, "", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed.ID)

	_, ok := store.Get(ScopeUser, "", created.ID)
	assert.False(t, ok)

	_, err = store.Delete(ScopeUser, "", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	data, err := os.ReadFile(userPath)
	require.NoError(t, err)
	var doc scopeDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Empty(t, doc.Hooks)
}

// TestStore_ProjectPartitions verifies project hooks land in their own
// document and never leak into the user partition.
func TestStore_ProjectPartitions(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Add(ScopeUser, "", draft("user-side"))
	require.NoError(t, err)
	ph, err := store.Add(ScopeProject, "webapp", draft("project-side"))
	require.NoError(t, err)

	assert.Equal(t, ScopeProject, ph.Scope)
	assert.Equal(t, "webapp", ph.ProjectName)

	assert.Len(t, store.List(ScopeUser, ""), 1)
	assert.Len(t, store.List(ScopeProject, "webapp"), 1)
	assert.Len(t, store.List(ScopeAll, ""), 2)
}

// TestStore_LoadProject verifies loading a project document tags each
// hook with its partition.
func TestStore_LoadProject(t *testing.T) {
	dir := t.TempDir()
	projectDoc := filepath.Join(dir, "webapp", "hooks.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(projectDoc), 0o755))

	seed := scopeDocument{Version: DocVersion, Hooks: []Hook{{
		ID: "h1", Name: "seeded", EventType: EventStop, Pattern: Wildcard, Code: "return;", Enabled: true,
	}}}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(projectDoc, data, 0o644))

	store := NewStore(filepath.Join(dir, "hooks.json"), func(name string) (string, error) {
		return filepath.Join(dir, name, "hooks.json"), nil
	})
	require.NoError(t, store.LoadProject("webapp"))

	got, ok := store.Get(ScopeProject, "webapp", "h1")
	require.True(t, ok)
	assert.Equal(t, ScopeProject, got.Scope)
	assert.Equal(t, "webapp", got.ProjectName)
}

// TestStore_AddLazyLoadsProject verifies the first write to a project
// partition that was never explicitly loaded pulls the on-disk document
// in first, so existing hooks survive the rewrite.
func TestStore_AddLazyLoadsProject(t *testing.T) {
	dir := t.TempDir()
	projectDoc := filepath.Join(dir, "webapp", "hooks.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(projectDoc), 0o755))

	seed := scopeDocument{Version: DocVersion, Hooks: []Hook{{
		ID: "h1", Name: "seeded", EventType: EventStop, Pattern: Wildcard, Code: "return;", Enabled: true,
	}}}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(projectDoc, data, 0o644))

	store := NewStore(filepath.Join(dir, "hooks.json"), func(name string) (string, error) {
		return filepath.Join(dir, name, "hooks.json"), nil
	})

	added, err := store.Add(ScopeProject, "webapp", draft("fresh"))
	require.NoError(t, err)

	part := store.List(ScopeProject, "webapp")
	require.Len(t, part, 2)
	assert.Equal(t, "h1", part[0].ID)
	assert.Equal(t, added.ID, part[1].ID)

	persisted, err := os.ReadFile(projectDoc)
	require.NoError(t, err)
	var doc scopeDocument
	require.NoError(t, json.Unmarshal(persisted, &doc))
	require.Len(t, doc.Hooks, 2, "the rewrite must carry the seeded hook")
	assert.Equal(t, "h1", doc.Hooks[0].ID)
}

// TestStore_PersistFailureRollsBack verifies the in-memory partition is
// unchanged when the document cannot be written.
func TestStore_PersistFailureRollsBack(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.LoadProject("webapp"))

	resolveErr := errors.New("registry offline")
	store.resolve = func(string) (string, error) { return "", resolveErr }

	_, err := store.Add(ScopeProject, "webapp", draft("ghost"))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, resolveErr)
	assert.Empty(t, store.List(ScopeProject, "webapp"))
}

// TestStore_Stats verifies aggregation across partitions.
func TestStore_Stats(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Add(ScopeUser, "", draft("a"))
	require.NoError(t, err)
	disabled := false
	d := draft("b")
	d.EventType = EventStop
	d.Enabled = &disabled
	_, err = store.Add(ScopeUser, "", d)
	require.NoError(t, err)
	_, err = store.Add(ScopeProject, "webapp", draft("c"))
	require.NoError(t, err)

	st := store.Stats()
	assert.Equal(t, 3, st.TotalHooks)
	assert.Equal(t, 2, st.EnabledHooks)
	assert.Equal(t, 2, st.ByEventType[EventPostToolUse])
	assert.Equal(t, 1, st.ByEventType[EventStop])
}

// TestStore_SnapshotIsolation verifies a snapshot is unaffected by later
// mutations.
func TestStore_SnapshotIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.Add(ScopeUser, "", draft("captured"))
	require.NoError(t, err)

	snap := store.Snapshot()
	_, err = store.Delete(ScopeUser, "", created.ID)
	require.NoError(t, err)

	require.Len(t, snap.User, 1)
	assert.Equal(t, created.ID, snap.User[0].ID)
}

// TestStore_ConcurrentCRUD exercises parallel writers across partitions;
// the final document must be valid JSON containing every surviving hook.
func TestStore_ConcurrentCRUD(t *testing.T) {
	store, userPath := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := store.Add(ScopeUser, "", draft(fmt.Sprintf("worker-%d", n)))
			if err != nil {
				t.Error(err)
				return
			}
			if _, err := store.Update(ScopeUser, "", h.ID, []byte(`{"enabled": false}`)); err != nil {
				t.Error(err)
			}
			if n%2 == 0 {
				if _, err := store.Delete(ScopeUser, "", h.ID); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.List(ScopeUser, ""), 4)

	data, err := os.ReadFile(userPath)
	require.NoError(t, err)
	var doc scopeDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Hooks, 4)
}
