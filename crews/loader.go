package crews

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader reads crew definitions from YAML, starting with the embedded
// catalog and optionally merging an on-disk directory over it. Disk
// definitions with the same key replace embedded ones.
type Loader struct {
	dir    string
	logger *zap.Logger
}

func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, logger: logger.With(zap.String("component", "crew_loader"))}
}

// Load returns the merged catalog, embedded definitions first.
func (l *Loader) Load() (map[string]*Definition, error) {
	defs, err := l.loadEmbedded()
	if err != nil {
		return nil, err
	}

	if l.dir != "" {
		overrides, err := l.loadDir(l.dir)
		if err != nil {
			return nil, err
		}
		for key, def := range overrides {
			if _, ok := defs[key]; ok {
				l.logger.Info("crew definition overridden", zap.String("crew", key))
			}
			defs[key] = def
		}
	}
	return defs, nil
}

func (l *Loader) loadEmbedded() (map[string]*Definition, error) {
	defs := make(map[string]*Definition)
	err := fs.WalkDir(catalogFS, "catalog", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		data, err := catalogFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read embedded crew %s: %w", path, err)
		}
		def, err := Parse(data)
		if err != nil {
			return fmt.Errorf("embedded crew %s: %w", path, err)
		}
		defs[def.Key] = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (l *Loader) loadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug("crew directory missing, using embedded catalog only", zap.String("dir", dir))
			return nil, nil
		}
		return nil, fmt.Errorf("read crew directory %s: %w", dir, err)
	}

	defs := make(map[string]*Definition)
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read crew file %s: %w", path, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("crew file %s: %w", path, err)
		}
		defs[def.Key] = def
	}
	return defs, nil
}

// Parse deserializes and validates a single crew definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse crew definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
