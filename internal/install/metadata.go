package install

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AstroAir/mcp-hub-next/internal/storage"
)

// MetadataDocument is the fixed name of the single JSON array holding every
// install metadata record in the durable store.
const MetadataDocument = "installation_metadata"

// Metadata is the durable record of what an install produced and where,
// used to drive uninstall. ClientType/OriginalConfig/ConfigSourcePath are
// filled when a server was imported from an IDE client config.
type Metadata struct {
	ServerID         string     `json:"server_id"`
	InstallID        string     `json:"install_id"`
	SourceType       SourceType `json:"source_type"`
	InstallPath      string     `json:"install_path"`
	PackageName      *string    `json:"package_name,omitempty"`
	Repository       *string    `json:"repository,omitempty"`
	Version          *string    `json:"version,omitempty"`
	InstalledAt      time.Time  `json:"installed_at"`
	ClientType       *string    `json:"client_type,omitempty"`
	OriginalConfig   *string    `json:"original_config,omitempty"`
	ConfigSourcePath *string    `json:"config_source_path,omitempty"`
}

// MetadataStore keeps the in-memory map of install id to metadata in sync
// with the durable JSON document: every insert or remove re-serializes the
// whole set and writes it back.
type MetadataStore struct {
	mu    sync.Mutex
	m     map[string]Metadata
	store *storage.Store
}

// NewMetadataStore returns an empty store backed by st.
func NewMetadataStore(st *storage.Store) *MetadataStore {
	return &MetadataStore{m: make(map[string]Metadata), store: st}
}

// Load replaces the in-memory set with the persisted document. Called once
// at process start; a missing document loads as the empty set.
func (s *MetadataStore) Load() error {
	data, err := s.store.Load(MetadataDocument)
	if err != nil {
		return err
	}
	var list []Metadata
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("install metadata document malformed: %w", err)
	}
	s.mu.Lock()
	s.m = make(map[string]Metadata, len(list))
	for _, md := range list {
		s.m[md.InstallID] = md
	}
	s.mu.Unlock()
	return nil
}

// Put inserts or replaces a record and persists the full set.
func (s *MetadataStore) Put(md Metadata) error {
	s.mu.Lock()
	s.m[md.InstallID] = md
	s.mu.Unlock()
	return s.persist()
}

// Get returns the record for installID.
func (s *MetadataStore) Get(installID string) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.m[installID]
	return md, ok
}

// Remove deletes the record and persists the full set. Removing an unknown
// id still rewrites the document.
func (s *MetadataStore) Remove(installID string) error {
	s.mu.Lock()
	delete(s.m, installID)
	s.mu.Unlock()
	return s.persist()
}

// List returns all records sorted by install time, newest first.
func (s *MetadataStore) List() []Metadata {
	s.mu.Lock()
	out := make([]Metadata, 0, len(s.m))
	for _, md := range s.m {
		out = append(out, md)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].InstalledAt.After(out[j].InstalledAt) })
	return out
}

func (s *MetadataStore) persist() error {
	s.mu.Lock()
	list := make([]Metadata, 0, len(s.m))
	for _, md := range s.m {
		list = append(list, md)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].InstallID < list[j].InstallID })
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.store.Save(MetadataDocument, data)
}
