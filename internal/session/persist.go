package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

// IndexEntry summarizes a persisted session in the global index.
type IndexEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	StartTime      time.Time `json:"startTime"`
	LastAccessTime time.Time `json:"lastAccessTime"`
	ProjectPath    string    `json:"projectPath"`
	Model          string    `json:"model"`
	MessageCount   int       `json:"messageCount"`
	Preview        string    `json:"preview,omitempty"`
}

// Index is the global named-session index
// (~/.bluehawks/sessions/index.json).
type Index struct {
	LastSessionID string                `json:"lastSessionId"`
	Sessions      map[string]IndexEntry `json:"sessions"`
}

// Storage persists sessions to the workspace history file and the
// global per-id store. Both are single-writer; no cross-process locking
// is attempted.
type Storage struct {
	// WorkspaceDir holds .bluehawks/history.json for the project.
	WorkspaceDir string
	// GlobalDir holds sessions/{<id>.json, index.json}.
	GlobalDir string
}

// NewStorage builds a storage with the conventional layout.
func NewStorage(workspaceDir, globalDir string) *Storage {
	return &Storage{WorkspaceDir: workspaceDir, GlobalDir: globalDir}
}

func (st *Storage) historyPath() string {
	return filepath.Join(st.WorkspaceDir, ".bluehawks", "history.json")
}

func (st *Storage) sessionsDir() string {
	return filepath.Join(st.GlobalDir, "sessions")
}

func (st *Storage) indexPath() string {
	return filepath.Join(st.sessionsDir(), "index.json")
}

// persisted is the on-disk session shape; times serialize as ISO
// strings through encoding/json.
type persisted struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	StartTime time.Time         `json:"start_time"`
	Messages  []llm.ChatMessage `json:"messages"`
	Metadata  Metadata          `json:"metadata"`
}

// Save writes the session to the workspace history file and the global
// store, updating the index. An empty name keeps any prior one.
func (st *Storage) Save(s *Session, name string) error {
	s.mu.Lock()
	record := persisted{
		ID:        s.ID,
		Name:      name,
		StartTime: s.StartTime,
		Messages:  append([]llm.ChatMessage(nil), s.Messages...),
		Metadata:  s.Metadata,
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := writeFileAtomic(st.historyPath(), data); err != nil {
		return fmt.Errorf("save workspace history: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(st.sessionsDir(), record.ID+".json"), data); err != nil {
		return fmt.Errorf("save session %s: %w", record.ID, err)
	}

	index, err := st.loadIndex()
	if err != nil {
		return err
	}
	entry := IndexEntry{
		ID:             record.ID,
		Name:           name,
		StartTime:      record.StartTime,
		LastAccessTime: time.Now(),
		ProjectPath:    record.Metadata.ProjectPath,
		Model:          record.Metadata.Model,
		MessageCount:   len(record.Messages),
		Preview:        firstUserPreview(record.Messages),
	}
	if name == "" {
		if prior, ok := index.Sessions[record.ID]; ok {
			entry.Name = prior.Name
		}
	}
	index.Sessions[record.ID] = entry
	index.LastSessionID = record.ID
	return st.saveIndex(index)
}

// Load reads a session by exact id.
func (st *Storage) Load(id string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(st.sessionsDir(), id+".json"))
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var record persisted
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	s := &Session{
		ID:          record.ID,
		StartTime:   record.StartTime,
		Messages:    record.Messages,
		Metadata:    record.Metadata,
		maxMessages: DefaultMaxMessages,
	}
	return s, nil
}

// Resume loads a session by name or id.
func (st *Storage) Resume(nameOrID string) (*Session, error) {
	index, err := st.loadIndex()
	if err != nil {
		return nil, err
	}
	if _, ok := index.Sessions[nameOrID]; ok {
		return st.Load(nameOrID)
	}
	for id, entry := range index.Sessions {
		if entry.Name == nameOrID {
			return st.Load(id)
		}
	}
	return nil, fmt.Errorf("no session named %q", nameOrID)
}

// Continue loads the most recently saved session.
func (st *Storage) Continue() (*Session, error) {
	index, err := st.loadIndex()
	if err != nil {
		return nil, err
	}
	if index.LastSessionID == "" {
		return nil, fmt.Errorf("no previous session")
	}
	return st.Load(index.LastSessionID)
}

// Entries lists index entries, most recent first.
func (st *Storage) Entries() ([]IndexEntry, error) {
	index, err := st.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, 0, len(index.Sessions))
	for _, e := range index.Sessions {
		out = append(out, e)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastAccessTime.After(out[i].LastAccessTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (st *Storage) loadIndex() (*Index, error) {
	index := &Index{Sessions: make(map[string]IndexEntry)}
	data, err := os.ReadFile(st.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, fmt.Errorf("load session index: %w", err)
	}
	if err := json.Unmarshal(data, index); err != nil {
		return nil, fmt.Errorf("decode session index: %w", err)
	}
	if index.Sessions == nil {
		index.Sessions = make(map[string]IndexEntry)
	}
	return index, nil
}

func (st *Storage) saveIndex(index *Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	if err := writeFileAtomic(st.indexPath(), data); err != nil {
		return fmt.Errorf("save session index: %w", err)
	}
	return nil
}

func firstUserPreview(messages []llm.ChatMessage) string {
	for _, m := range messages {
		if m.Role != llm.RoleUser {
			continue
		}
		preview := strings.TrimSpace(m.Content)
		if len(preview) > 80 {
			preview = preview[:80]
		}
		return preview
	}
	return ""
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
