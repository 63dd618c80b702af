// Package catalog loads dataset descriptors for the CLI from a YAML
// manifest. The web collaborator substitutes its own descriptor source; the
// engine only ever consumes []model.Dataset.
package catalog

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vnnovate/relations-cli/internal/model"
)

type manifest struct {
	Datasets []entry `yaml:"datasets"`
}

type entry struct {
	ID      int64  `yaml:"id"`
	OwnerID int64  `yaml:"owner_id"`
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
}

// Load parses a manifest and stats each file for its current modification
// time. Relative paths resolve against the manifest's directory. Datasets
// whose files cannot be statted are skipped with a warning: a descriptor
// without a modification time cannot participate in freshness tracking.
func Load(path string) ([]model.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read manifest")
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrap(err, "catalog: parse manifest")
	}

	base := filepath.Dir(path)
	seen := make(map[int64]struct{}, len(m.Datasets))
	datasets := make([]model.Dataset, 0, len(m.Datasets))
	for _, e := range m.Datasets {
		if e.ID == 0 {
			return nil, eris.Errorf("catalog: dataset %q has no id", e.Path)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, eris.Errorf("catalog: duplicate dataset id %d", e.ID)
		}
		seen[e.ID] = struct{}{}

		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		fi, err := os.Stat(p)
		if err != nil {
			zap.L().Warn("catalog skipping unstattable dataset",
				zap.Int64("dataset_id", e.ID),
				zap.String("file", p),
				zap.Error(err),
			)
			continue
		}

		name := e.Name
		if name == "" {
			name = filepath.Base(p)
		}
		datasets = append(datasets, model.Dataset{
			ID:           e.ID,
			OwnerID:      e.OwnerID,
			FileName:     name,
			FilePath:     p,
			LastModified: float64(fi.ModTime().UnixNano()) / 1e9,
		})
	}
	return datasets, nil
}

// Filter returns the datasets matching the given ids, in manifest order.
// An empty id list selects everything.
func Filter(datasets []model.Dataset, ids []int64) []model.Dataset {
	if len(ids) == 0 {
		return datasets
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]model.Dataset, 0, len(ids))
	for _, ds := range datasets {
		if _, ok := want[ds.ID]; ok {
			out = append(out, ds)
		}
	}
	return out
}
