// Store - CRUD and persistence for scope-partitioned hook collections.
//
// DESIGN: One JSON document per scope (one for user hooks, one per
// project). The unit of persistence is the whole document; every write
// rewrites it atomically (temp + rename). Loading never fails the
// process: a missing or corrupt document yields an empty partition and
// a warning. All writers are serialized behind the store mutex so
// concurrent CRUD cannot corrupt a document via interleaved
// read-modify-write.
package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DocVersion is written into every persisted scope document.
const DocVersion = "1.0"

// scopeDocument is the on-disk representation of one partition.
type scopeDocument struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
	Hooks       []Hook    `json:"hooks"`
}

// PathResolver maps a project name to the path of its hook document.
// Typically backed by the project registry.
type PathResolver func(projectName string) (string, error)

// Store holds every hook partition in memory and mirrors each mutation
// to its per-scope document.
type Store struct {
	mu       sync.RWMutex
	user     []Hook
	projects map[string][]Hook

	userPath string
	resolve  PathResolver

	now func() time.Time
}

// NewStore creates a store persisting user hooks at userPath and project
// hooks at paths produced by resolve. The user partition is loaded
// immediately; project partitions are loaded via LoadProject.
func NewStore(userPath string, resolve PathResolver) *Store {
	s := &Store{
		userPath: userPath,
		resolve:  resolve,
		projects: make(map[string][]Hook),
		now:      time.Now,
	}
	s.user = loadDocument(userPath)
	for i := range s.user {
		s.user[i].Scope = ScopeUser
		s.user[i].ProjectName = ""
	}
	return s
}

// LoadProject loads (or reloads) the partition for one registered project.
func (s *Store) LoadProject(projectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadProjectLocked(projectName)
}

func (s *Store) loadProjectLocked(projectName string) error {
	path, err := s.resolve(projectName)
	if err != nil {
		return &PersistenceError{Path: projectName, Err: fmt.Errorf("cannot resolve hook document: %w", err)}
	}
	loaded := loadDocument(path)
	for i := range loaded {
		loaded[i].Scope = ScopeProject
		loaded[i].ProjectName = projectName
	}
	s.projects[projectName] = loaded
	return nil
}

// ensureLoadedLocked lazily loads a project partition the first time a
// write addresses it. Writing into a never-loaded partition would
// otherwise persist a document containing only the new mutation,
// clobbering hooks already on disk.
func (s *Store) ensureLoadedLocked(scope Scope, projectName string) error {
	if scope != ScopeProject {
		return nil
	}
	if _, ok := s.projects[projectName]; ok {
		return nil
	}
	return s.loadProjectLocked(projectName)
}

// loadDocument reads a scope document. Missing or corrupt files degrade
// to an empty partition with a warning rather than failing the process.
func loadDocument(path string) []Hook {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("hook document unreadable, starting empty")
		}
		return nil
	}
	var doc scopeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("hook document corrupt, starting empty")
		return nil
	}
	return doc.Hooks
}

// Add validates the draft, assigns id and timestamps, appends it to the
// addressed partition and persists the whole scope document.
func (s *Store) Add(scope Scope, projectName string, draft Draft) (Hook, error) {
	if err := validateDraft(draft); err != nil {
		return Hook{}, err
	}
	if scope != ScopeUser && scope != ScopeProject {
		return Hook{}, &ScopeError{Scope: scope}
	}
	if scope == ScopeProject && projectName == "" {
		return Hook{}, &ScopeError{Scope: scope}
	}
	if scope == ScopeUser {
		projectName = ""
	}

	now := s.now().UTC()
	h := Hook{
		ID:          uuid.New().String(),
		Name:        draft.Name,
		Scope:       scope,
		ProjectName: projectName,
		EventType:   draft.EventType,
		Pattern:     draft.Pattern,
		Code:        draft.Code,
		Enabled:     draft.Enabled == nil || *draft.Enabled,
		Description: draft.Description,
		GeneratedBy: draft.GeneratedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if h.Pattern == "" {
		h.Pattern = Wildcard
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(scope, projectName); err != nil {
		return Hook{}, err
	}
	prev := s.partition(scope, projectName)
	next := append(append([]Hook(nil), prev...), h)
	s.setPartition(scope, projectName, next)
	if err := s.persistLocked(scope, projectName); err != nil {
		s.setPartition(scope, projectName, prev)
		return Hook{}, err
	}
	return h, nil
}

// Update merges a raw JSON patch onto the addressed record field by
// field, refreshes updatedAt and persists. Identity fields (id, scope,
// projectName, createdAt) cannot be patched.
func (s *Store) Update(scope Scope, projectName, id string, patch []byte) (Hook, error) {
	if len(patch) > 0 && !gjson.ValidBytes(patch) {
		return Hook{}, &ValidationError{Missing: []string{"patch (not valid JSON)"}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(scope, projectName); err != nil {
		return Hook{}, err
	}
	prev := s.partition(scope, projectName)
	idx := indexOf(prev, id)
	if idx < 0 {
		return Hook{}, ErrNotFound
	}

	merged, err := applyPatch(prev[idx], patch)
	if err != nil {
		return Hook{}, err
	}
	merged.UpdatedAt = s.now().UTC()

	next := append([]Hook(nil), prev...)
	next[idx] = merged
	s.setPartition(scope, projectName, next)
	if err := s.persistLocked(scope, projectName); err != nil {
		s.setPartition(scope, projectName, prev)
		return Hook{}, err
	}
	return merged, nil
}

// Delete removes and returns the addressed record, then persists.
func (s *Store) Delete(scope Scope, projectName, id string) (Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(scope, projectName); err != nil {
		return Hook{}, err
	}
	prev := s.partition(scope, projectName)
	idx := indexOf(prev, id)
	if idx < 0 {
		return Hook{}, ErrNotFound
	}
	removed := prev[idx]

	next := append([]Hook(nil), prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	s.setPartition(scope, projectName, next)
	if err := s.persistLocked(scope, projectName); err != nil {
		s.setPartition(scope, projectName, prev)
		return Hook{}, err
	}
	return removed, nil
}

// Get returns the addressed record, or false if it does not exist.
func (s *Store) Get(scope Scope, projectName, id string) (Hook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.partition(scope, projectName)
	if idx := indexOf(part, id); idx >= 0 {
		return part[idx], true
	}
	return Hook{}, false
}

// List returns a shallow copy of one partition. ScopeAll returns every
// hook across every partition; each record carries its own scope and
// project name.
func (s *Store) List(scope Scope, projectName string) []Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if scope == ScopeAll {
		return s.allLocked()
	}
	return append([]Hook(nil), s.partition(scope, projectName)...)
}

// Snapshot returns a copy of every partition for one dispatch.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		User:     append([]Hook(nil), s.user...),
		Projects: make(map[string][]Hook, len(s.projects)),
	}
	for name, part := range s.projects {
		snap.Projects[name] = append([]Hook(nil), part...)
	}
	return snap
}

// Stats aggregates counts across every partition.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{ByEventType: make(map[string]int)}
	for _, h := range s.allLocked() {
		st.TotalHooks++
		if h.Enabled {
			st.EnabledHooks++
		}
		st.ByEventType[h.EventType]++
	}
	return st
}

// ProjectNames returns the names of every loaded project partition.
func (s *Store) ProjectNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	return names
}

func (s *Store) allLocked() []Hook {
	all := append([]Hook(nil), s.user...)
	for _, part := range s.projects {
		all = append(all, part...)
	}
	return all
}

func (s *Store) partition(scope Scope, projectName string) []Hook {
	if scope == ScopeProject {
		return s.projects[projectName]
	}
	return s.user
}

func (s *Store) setPartition(scope Scope, projectName string, hooks []Hook) {
	if scope == ScopeProject {
		s.projects[projectName] = hooks
	} else {
		s.user = hooks
	}
}

// persistLocked writes the addressed scope document. Caller holds s.mu.
func (s *Store) persistLocked(scope Scope, projectName string) error {
	path := s.userPath
	if scope == ScopeProject {
		p, err := s.resolve(projectName)
		if err != nil {
			return &PersistenceError{Path: projectName, Err: err}
		}
		path = p
	}

	doc := scopeDocument{
		Version:     DocVersion,
		LastUpdated: s.now().UTC(),
		Hooks:       s.partition(scope, projectName),
	}
	if doc.Hooks == nil {
		doc.Hooks = []Hook{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// writeFileAtomic writes via a temp file in the same directory and
// renames it into place so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".hooks-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func validateDraft(d Draft) error {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.EventType == "" {
		missing = append(missing, "eventType")
	}
	if d.Code == "" {
		missing = append(missing, "code")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func indexOf(hooks []Hook, id string) int {
	for i := range hooks {
		if hooks[i].ID == id {
			return i
		}
	}
	return -1
}

// immutable fields a patch may not touch.
var immutableFields = map[string]bool{
	"id":          true,
	"scope":       true,
	"projectName": true,
	"createdAt":   true,
	"updatedAt":   true,
}

// applyPatch merges a raw JSON object onto the existing record. Unknown
// keys are ignored by the final unmarshal; immutable keys are skipped.
func applyPatch(existing Hook, patch []byte) (Hook, error) {
	if len(patch) == 0 {
		return existing, nil
	}
	base, err := json.Marshal(existing)
	if err != nil {
		return Hook{}, err
	}
	var patchErr error
	gjson.ParseBytes(patch).ForEach(func(key, value gjson.Result) bool {
		if immutableFields[key.String()] {
			return true
		}
		base, patchErr = sjson.SetRawBytes(base, key.String(), []byte(value.Raw))
		return patchErr == nil
	})
	if patchErr != nil {
		return Hook{}, patchErr
	}
	var merged Hook
	if err := json.Unmarshal(base, &merged); err != nil {
		return Hook{}, &ValidationError{Missing: []string{"patch (field type mismatch)"}}
	}
	if err := validateDraft(Draft{Name: merged.Name, EventType: merged.EventType, Code: merged.Code}); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Hook{}, verr
		}
		return Hook{}, err
	}
	return merged, nil
}
