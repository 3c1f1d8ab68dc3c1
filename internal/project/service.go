// Package project manages the lifecycle of project directories under the
// projects root: the collaborator-facing create/duplicate/archive/restore/
// delete/export/import surface.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/internal/storage"
	"github.com/codesquad-ai/codesquad/internal/workspace"
)

// Info is one project record. The directory lives under projects/ in the
// workspace root; archived projects keep their files but are hidden from
// default listings.
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"` // relative to the workspace root
	Archived bool   `json:"archived,omitempty"`
	Created  int64  `json:"created"`
	Updated  int64  `json:"updated"`
}

// Service implements project lifecycle operations over the workspace and
// the metadata store.
type Service struct {
	ws    *workspace.Workspace
	store *storage.Storage
	bus   *event.Bus
}

// NewService creates a project service. bus may be nil.
func NewService(ws *workspace.Workspace, store *storage.Storage, bus *event.Bus) *Service {
	return &Service{ws: ws, store: store, bus: bus}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// slugify turns a display name into a directory-safe segment.
func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = strings.ToLower(ulid.Make().String())
	}
	return slug
}

// Create makes a new empty project directory and record.
func (s *Service) Create(ctx context.Context, name string) (*Info, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("project name is required")
	}

	rel := filepath.Join("projects", slugify(name))
	resolved, err := s.ws.Resolve(rel)
	if err != nil {
		return nil, err
	}
	if s.dirExists(resolved) {
		return nil, fmt.Errorf("project directory %s already exists", rel)
	}
	if _, err := s.ws.MkdirAll(rel); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	info := &Info{
		ID:      ulid.Make().String(),
		Name:    name,
		Path:    rel,
		Created: now,
		Updated: now,
	}
	if err := s.persist(ctx, info); err != nil {
		return nil, err
	}

	logging.Info().Str("projectID", info.ID).Str("path", rel).Msg("project created")
	return info, nil
}

// List returns all project records, newest first. Archived projects are
// included only when includeArchived is set.
func (s *Service) List(ctx context.Context, includeArchived bool) ([]*Info, error) {
	var result []*Info
	err := s.store.Scan(ctx, []string{"projects"}, func(key string, data json.RawMessage) error {
		var info Info
		if err := json.Unmarshal(data, &info); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("skipping corrupt project record")
			return nil
		}
		if info.Archived && !includeArchived {
			return nil
		}
		result = append(result, &info)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Created > result[j].Created })
	return result, nil
}

// Get returns one project record.
func (s *Service) Get(ctx context.Context, id string) (*Info, error) {
	var info Info
	if err := s.store.Get(ctx, []string{"projects", id}, &info); err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	return &info, nil
}

// Duplicate copies a project's directory tree into a new project.
func (s *Service) Duplicate(ctx context.Context, id, newName string) (*Info, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = src.Name + " copy"
	}

	rel := filepath.Join("projects", slugify(newName))
	resolved, err := s.ws.Resolve(rel)
	if err != nil {
		return nil, err
	}
	if s.dirExists(resolved) {
		return nil, fmt.Errorf("project directory %s already exists", rel)
	}
	if err := s.ws.Duplicate(src.Path, rel); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	info := &Info{
		ID:      ulid.Make().String(),
		Name:    newName,
		Path:    rel,
		Created: now,
		Updated: now,
	}
	if err := s.persist(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Archive hides a project from default listings. Files are kept.
func (s *Service) Archive(ctx context.Context, id string) (*Info, error) {
	return s.setArchived(ctx, id, true)
}

// Restore brings an archived project back.
func (s *Service) Restore(ctx context.Context, id string) (*Info, error) {
	return s.setArchived(ctx, id, false)
}

func (s *Service) setArchived(ctx context.Context, id string, archived bool) (*Info, error) {
	info, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	info.Archived = archived
	info.Updated = time.Now().UnixMilli()
	if err := s.persist(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Delete removes a project's directory tree and record.
func (s *Service) Delete(ctx context.Context, id string) error {
	info, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ws.Delete(info.Path); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, []string{"projects", id}); err != nil {
		return err
	}
	logging.Info().Str("projectID", id).Msg("project deleted")
	return nil
}

// Export writes the project directory as a zip archive to w.
func (s *Service) Export(ctx context.Context, id string, w io.Writer) error {
	info, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.ws.Export(info.Path, w)
}

// Import creates a new project from a zip archive.
func (s *Service) Import(ctx context.Context, name string, r io.ReaderAt, size int64) (*Info, error) {
	info, err := s.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.ws.Import(info.Path, r, size); err != nil {
		// Roll back the half-made project so a bad archive leaves nothing.
		s.Delete(ctx, info.ID)
		return nil, err
	}
	return info, nil
}

func (s *Service) persist(ctx context.Context, info *Info) error {
	if err := s.store.Put(ctx, []string{"projects", info.ID}, info); err != nil {
		return fmt.Errorf("persist project %s: %w", info.ID, err)
	}
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: event.ProjectUpdated, Data: info})
	}
	return nil
}

func (s *Service) dirExists(resolved string) bool {
	_, err := os.Stat(resolved)
	return err == nil
}
