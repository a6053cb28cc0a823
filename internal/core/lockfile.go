package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tailscale/hujson"
)

const (
	lockDirName    = ".agents"
	lockFileName   = ".skill-lock.json"
	currentVersion = 3 // folder-hash fingerprints; older stores are discarded
)

// PromptKey names a prompt the user can dismiss permanently.
type PromptKey string

const PromptFindSkills PromptKey = "findSkillsPrompt"

// LockFilePath returns the lock file location for a scope.
func LockFilePath(scope Scope, loc Location) string {
	return filepath.Join(loc.Base(scope), lockDirName, lockFileName)
}

// LockStore reads and writes one scope's lock file. Every mutation is a
// whole-document read-modify-write; concurrent writers are not coordinated.
type LockStore struct {
	path string
	now  func() time.Time
}

// NewLockStore returns the store for a scope.
func NewLockStore(scope Scope, loc Location) *LockStore {
	return &LockStore{path: LockFilePath(scope, loc), now: time.Now}
}

// Path returns the lock file path.
func (s *LockStore) Path() string { return s.path }

func newSkillLock() *SkillLock {
	return &SkillLock{
		Version: currentVersion,
		Skills:  make(map[string]LockEntry),
	}
}

// Read loads the lock document. It never fails: a missing, unreadable,
// corrupt or outdated file yields an empty store.
func (s *LockStore) Read() *SkillLock {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return newSkillLock()
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return newSkillLock()
	}

	var lock SkillLock
	if err := json.Unmarshal(std, &lock); err != nil {
		return newSkillLock()
	}
	if lock.Skills == nil || lock.Version < currentVersion {
		return newSkillLock()
	}
	return &lock
}

// Write persists the lock document atomically.
func (s *LockStore) Write(lock *SkillLock) error {
	if lock.Version == 0 {
		lock.Version = currentVersion
	}
	if lock.Skills == nil {
		lock.Skills = make(map[string]LockEntry)
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving lock file: %w", err)
	}
	return nil
}

// AddEntry upserts an entry. An existing installedAt is kept; updatedAt is
// always refreshed.
func (s *LockStore) AddEntry(name string, entry LockEntry) error {
	lock := s.Read()
	now := s.now().UTC()

	entry.InstalledAt = now
	if existing, ok := lock.Skills[name]; ok && !existing.InstalledAt.IsZero() {
		entry.InstalledAt = existing.InstalledAt
	}
	entry.UpdatedAt = now

	lock.Skills[name] = entry
	return s.Write(lock)
}

// RemoveEntry deletes an entry. It reports whether the entry existed.
func (s *LockStore) RemoveEntry(name string) (bool, error) {
	lock := s.Read()
	if _, ok := lock.Skills[name]; !ok {
		return false, nil
	}
	delete(lock.Skills, name)
	return true, s.Write(lock)
}

// Get returns the entry for a skill name.
func (s *LockStore) Get(name string) (LockEntry, bool) {
	entry, ok := s.Read().Skills[name]
	return entry, ok
}

// All returns every entry keyed by skill name.
func (s *LockStore) All() map[string]LockEntry {
	return s.Read().Skills
}

// BySource groups skill names by their source identifier. Names are sorted.
func (s *LockStore) BySource() map[string][]string {
	groups := make(map[string][]string)
	for name, entry := range s.Read().Skills {
		groups[entry.Source] = append(groups[entry.Source], name)
	}
	for _, names := range groups {
		sort.Strings(names)
	}
	return groups
}

// DismissPrompt records that a prompt should not be shown again.
func (s *LockStore) DismissPrompt(key PromptKey) error {
	lock := s.Read()
	if lock.Dismissed == nil {
		lock.Dismissed = &DismissedPrompts{}
	}
	switch key {
	case PromptFindSkills:
		lock.Dismissed.FindSkillsPrompt = true
	default:
		return fmt.Errorf("unknown prompt %q", key)
	}
	return s.Write(lock)
}

// IsPromptDismissed reports whether a prompt was dismissed.
func (s *LockStore) IsPromptDismissed(key PromptKey) bool {
	lock := s.Read()
	if lock.Dismissed == nil {
		return false
	}
	switch key {
	case PromptFindSkills:
		return lock.Dismissed.FindSkillsPrompt
	default:
		return false
	}
}

// LastSelectedAgents returns the agents chosen on the previous install.
func (s *LockStore) LastSelectedAgents() []string {
	return s.Read().LastSelectedAgents
}

// SaveSelectedAgents remembers the agents chosen for this install.
func (s *LockStore) SaveSelectedAgents(agents []string) error {
	lock := s.Read()
	lock.LastSelectedAgents = append([]string(nil), agents...)
	return s.Write(lock)
}
