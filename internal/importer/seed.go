// Package importer loads seed data into a Repository at startup.
//
// A seed file is YAML:
//
//	sessions:
//	  - name: project_ideas
//	    memories:
//	      - content: Build a drawing tutorial app
//	        tags: [app, tutorial]
//
// Every record goes through the Repository so names and content are trimmed
// and validated exactly as they are for tool calls.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// Seed is the decoded form of a seed file.
type Seed struct {
	Sessions []SeedSession `yaml:"sessions"`
}

// SeedSession is one session and the memories to add to it, oldest first.
type SeedSession struct {
	Name     string       `yaml:"name"`
	Memories []SeedMemory `yaml:"memories"`
}

// SeedMemory is one memory record.
type SeedMemory struct {
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
}

// ImportedSession reports what was created for one seed session.
type ImportedSession struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Memories int    `json:"memories"`
}

// ImportResult is the summary produced by Apply.
type ImportResult struct {
	Sessions        []ImportedSession `json:"sessions"`
	MemoriesCreated int               `json:"memories_created"`
	Skipped         int               `json:"skipped"`
	Errors          []string          `json:"errors,omitempty"`
	Duration        time.Duration     `json:"-"`
	// DurationMS is Duration in whole milliseconds for JSON consumers.
	DurationMS int64 `json:"duration_ms"`
}

// Parse decodes a seed document. Unknown fields are rejected so typos in a
// hand-written file surface instead of being silently ignored.
func Parse(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("importer: decode seed: %w", err)
	}
	return &seed, nil
}

// LoadFile reads and parses the seed file at path.
func LoadFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: open seed: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Importer applies seeds to a repository.
type Importer struct {
	repo   storage.Repository
	logger *log.Logger
}

// New creates an importer writing to repo. A nil logger disables logging.
func New(repo storage.Repository, logger *log.Logger) *Importer {
	return &Importer{repo: repo, logger: logger}
}

// Apply creates every seed session and its memories in file order.
//
// Records rejected by validation (a blank name or blank content) are skipped
// and reported in the result; a session that cannot be created skips all of
// its memories. Any other repository error aborts the import.
func (im *Importer) Apply(ctx context.Context, seed *Seed) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	for i, ss := range seed.Sessions {
		session, err := im.repo.CreateSession(ctx, ss.Name)
		if err != nil {
			if !types.IsDomainError(err) {
				return nil, fmt.Errorf("importer: create session %d: %w", i+1, err)
			}
			result.Skipped += 1 + len(ss.Memories)
			result.Errors = append(result.Errors, fmt.Sprintf("session %d: %v", i+1, err))
			continue
		}

		imported := ImportedSession{ID: session.ID, Name: session.Name}
		for j, sm := range ss.Memories {
			if _, err := im.repo.AddMemory(ctx, session.ID, sm.Content, sm.Tags); err != nil {
				if !types.IsDomainError(err) {
					return nil, fmt.Errorf("importer: add memory %d to %q: %w", j+1, session.Name, err)
				}
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("session %q memory %d: %v", session.Name, j+1, err))
				continue
			}
			imported.Memories++
		}
		result.Sessions = append(result.Sessions, imported)
		result.MemoriesCreated += imported.Memories
	}

	result.Duration = time.Since(start)
	result.DurationMS = result.Duration.Milliseconds()
	if im.logger != nil {
		im.logger.Printf("seed import: %d sessions, %d memories, %d skipped in %s",
			len(result.Sessions), result.MemoriesCreated, result.Skipped, result.Duration)
	}
	return result, nil
}

// ApplyFile loads the seed at path and applies it.
func (im *Importer) ApplyFile(ctx context.Context, path string) (*ImportResult, error) {
	seed, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return im.Apply(ctx, seed)
}
