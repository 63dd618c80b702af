package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnnovate/relations-cli/internal/model"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "datasets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("phone\n9876543210\n"), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.csv")
	touch(t, dir, "b.csv")

	path := writeManifest(t, dir, `
datasets:
  - id: 1
    owner_id: 10
    name: Leads A
    path: a.csv
  - id: 2
    owner_id: 20
    path: b.csv
`)

	datasets, err := Load(path)
	require.NoError(t, err)
	require.Len(t, datasets, 2)

	assert.Equal(t, int64(1), datasets[0].ID)
	assert.Equal(t, "Leads A", datasets[0].FileName)
	assert.Equal(t, filepath.Join(dir, "a.csv"), datasets[0].FilePath, "relative paths resolve against the manifest dir")
	assert.Greater(t, datasets[0].LastModified, 0.0)

	assert.Equal(t, "b.csv", datasets[1].FileName, "name defaults to the file base name")
}

func TestLoadRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.csv")
	path := writeManifest(t, dir, `
datasets:
  - owner_id: 10
    path: a.csv
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.csv")
	touch(t, dir, "b.csv")
	path := writeManifest(t, dir, `
datasets:
  - id: 1
    path: a.csv
  - id: 1
    path: b.csv
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.csv")
	path := writeManifest(t, dir, `
datasets:
  - id: 1
    path: a.csv
  - id: 2
    path: gone.csv
`)
	datasets, err := Load(path)
	require.NoError(t, err)
	require.Len(t, datasets, 1, "a dataset without a stat-able file cannot be freshness-tracked")
	assert.Equal(t, int64(1), datasets[0].ID)
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	datasets := []model.Dataset{{ID: 1}, {ID: 2}, {ID: 3}}

	assert.Equal(t, datasets, Filter(datasets, nil), "empty selection keeps everything")

	got := Filter(datasets, []int64{3, 1})
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID, "manifest order wins over selection order")
	assert.Equal(t, int64(3), got[1].ID)

	assert.Empty(t, Filter(datasets, []int64{99}))
}
