package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// manifest mirrors the on-disk component inventory format.
type manifest struct {
	Components []manifestComponent `toml:"components"`
}

type manifestComponent struct {
	ID        string `toml:"id"`
	Kind      string `toml:"kind"`
	ImageRef  string `toml:"image_ref"`
	MotionRef string `toml:"motion_ref"`
	Script    string `toml:"script"`
}

// FileLoader reads the component inventory from a TOML manifest. A missing
// manifest is not an error; it loads as an empty inventory so a fresh
// install can run dry-run and queue commands before any components exist.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(_ context.Context) ([]Component, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read component manifest: %w", err)
	}

	var doc manifest
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse component manifest %s: %w", l.Path, err)
	}

	components := make([]Component, 0, len(doc.Components))
	for _, entry := range doc.Components {
		components = append(components, Component{
			ID:        entry.ID,
			Kind:      entry.Kind,
			ImageRef:  entry.ImageRef,
			MotionRef: entry.MotionRef,
			Script:    entry.Script,
		})
	}
	return components, nil
}
