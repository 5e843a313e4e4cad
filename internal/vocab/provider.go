package vocab

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/storylinehq/storyline/internal/model"
)

// Provider loads vocabulary and entity reference data.
type Provider interface {
	// LoadGoVocabularies returns the GO groups in matching order.
	LoadGoVocabularies() ([]model.VocabularyGroup, error)

	// LoadStopVocabulary returns the single STOP group.
	LoadStopVocabulary() (model.VocabularyGroup, error)

	// LoadEntityMetadata returns read-only entity reference data.
	LoadEntityMetadata() ([]model.EntityMeta, error)
}

// FileProvider loads vocabularies from a directory of YAML files:
// go.yaml (ordered list of groups), stop.yaml (one group),
// entities.yaml (entity metadata with optional ISO codes).
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// LoadGoVocabularies reads go.yaml. Group order in the file is the
// matching precedence order.
func (p *FileProvider) LoadGoVocabularies() ([]model.VocabularyGroup, error) {
	data, err := os.ReadFile(filepath.Join(p.dir, "go.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read go vocabulary: %w", err)
	}

	var groups []model.VocabularyGroup
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse go vocabulary: %w", err)
	}

	for _, g := range groups {
		if g.Name == "" {
			return nil, fmt.Errorf("go vocabulary: group without a name")
		}
	}

	return groups, nil
}

// LoadStopVocabulary reads stop.yaml.
func (p *FileProvider) LoadStopVocabulary() (model.VocabularyGroup, error) {
	data, err := os.ReadFile(filepath.Join(p.dir, "stop.yaml"))
	if err != nil {
		return model.VocabularyGroup{}, fmt.Errorf("read stop vocabulary: %w", err)
	}

	var group model.VocabularyGroup
	if err := yaml.Unmarshal(data, &group); err != nil {
		return model.VocabularyGroup{}, fmt.Errorf("parse stop vocabulary: %w", err)
	}

	return group, nil
}

// LoadEntityMetadata reads entities.yaml.
func (p *FileProvider) LoadEntityMetadata() ([]model.EntityMeta, error) {
	data, err := os.ReadFile(filepath.Join(p.dir, "entities.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read entity metadata: %w", err)
	}

	var meta []model.EntityMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse entity metadata: %w", err)
	}

	return meta, nil
}
