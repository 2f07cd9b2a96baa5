package images

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog(codes ...string) []domain.Product {
	products := make([]domain.Product, 0, len(codes))
	for _, c := range codes {
		products = append(products, domain.Product{InternalCode: c, Name: "Product " + c})
	}
	return products
}

// sampleTree has folders A (2 images), B (no images) and D (not in the catalog).
func sampleTree() fstest.MapFS {
	return fstest.MapFS{
		"A/front.jpg":    {Data: []byte("jpg")},
		"A/back.PNG":     {Data: []byte("png")},
		"A/notes.txt":    {Data: []byte("txt")},
		"B/readme.md":    {Data: []byte("md")},
		"D/photo.webp":   {Data: []byte("webp")},
		"catalog.csv":    {Data: []byte("csv")},
		"A/nested/x.jpg": {Data: []byte("jpg")},
	}
}

// =============================================================================
// Reconcile Tests
// =============================================================================

func TestReconcile_MatchedMissingOrphan(t *testing.T) {
	report, err := Reconcile(sampleTree(), catalog("A", "B", "C"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.MatchedWithImages)
	assert.Equal(t, 1, report.MatchedWithoutImages)
	assert.Equal(t, 2, report.TotalImageFiles)
	assert.Equal(t, []string{"C"}, report.MissingFolders)
	assert.Equal(t, []string{"D"}, report.OrphanFolders)
	assert.Equal(t, []domain.ProductImages{
		{InternalCode: "A", ProductName: "Product A", ImageCount: 2},
		{InternalCode: "B", ProductName: "Product B", ImageCount: 0},
		{InternalCode: "C", ProductName: "Product C", ImageCount: 0},
	}, report.Details)
	assert.Equal(t, []string{"A"}, report.Matched())
}

func TestReconcile_Idempotent(t *testing.T) {
	fsys := sampleTree()
	products := catalog("C", "B", "A")

	first, err := Reconcile(fsys, products)
	require.NoError(t, err)
	second, err := Reconcile(fsys, products)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestReconcile_EmptyCatalog(t *testing.T) {
	report, err := Reconcile(sampleTree(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, report.OrphanFolders)
	assert.Empty(t, report.MissingFolders)
	assert.Empty(t, report.Details)
	assert.Zero(t, report.TotalImageFiles)
}

func TestReconcile_NoWrites(t *testing.T) {
	fsys := sampleTree()
	before := len(fsys)
	_, err := Reconcile(fsys, catalog("A"))
	require.NoError(t, err)
	assert.Len(t, fsys, before)
}

// =============================================================================
// Filesystem Error Tests
// =============================================================================

func TestReconcileDir_Missing(t *testing.T) {
	_, err := ReconcileDir(filepath.Join(t.TempDir(), "nope"), catalog("A"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFilesystem))
	assert.True(t, errors.Is(err, ErrDirectoryMissing))
}

func TestReconcileDir_NotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := ReconcileDir(file, catalog("A"))
	assert.True(t, errors.Is(err, domain.ErrFilesystem))
	assert.True(t, errors.Is(err, ErrNotDirectory))
}

func TestReconcileDir_OnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "A"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "A", "1.jpeg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "A", "2.GIF"), []byte("x"), 0o644))

	report, err := ReconcileDir(dir, catalog("A"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.MatchedWithImages)
	assert.Equal(t, 2, report.TotalImageFiles)
}

// =============================================================================
// Image File Tests
// =============================================================================

func TestIsImage(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPG", "a.jpeg", "a.png", "a.webp", "a.GiF"} {
		assert.True(t, IsImage(name), name)
	}
	for _, name := range []string{"a.txt", "a", "jpg", "a.jpg.bak", "a.svg"} {
		assert.False(t, IsImage(name), name)
	}
}

func TestImageFiles(t *testing.T) {
	files, err := ImageFiles(sampleTree(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"back.PNG", "front.jpg"}, files)

	_, err = ImageFiles(sampleTree(), "missing")
	assert.True(t, errors.Is(err, domain.ErrFilesystem))
}

func TestImageCounts(t *testing.T) {
	report, err := Reconcile(sampleTree(), catalog("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 0, "C": 0}, ImageCounts(report))
}
