// Package images reconciles a product catalog against an on-disk image tree.
// The tree holds one folder per product, named by the product's internal code.
// Reconciliation only reads; it never writes or renames.
package images

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/artpar/storedeploy/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrDirectoryMissing = errors.New("image directory does not exist")
	ErrNotDirectory     = errors.New("image path is not a directory")
)

// FilesystemError wraps a failure to read the image tree.
// It matches domain.ErrFilesystem with errors.Is.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("image directory %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// Is matches domain.ErrFilesystem.
func (e *FilesystemError) Is(target error) bool {
	return target == domain.ErrFilesystem
}

// =============================================================================
// Image Files
// =============================================================================

// imageExtensions is the allow-list of image file extensions, lower case.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// IsImage reports whether a file name has an allowed image extension.
// The comparison is case-insensitive.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// ImageFiles lists the image files directly inside the folder of one product,
// sorted by name. Nested folders and other files are skipped.
func ImageFiles(fsys fs.FS, code string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, code)
	if err != nil {
		return nil, &FilesystemError{Path: code, Err: err}
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// =============================================================================
// Reconcile
// =============================================================================

// ReconcileDir reconciles the catalog against a directory on disk.
func ReconcileDir(dir string, catalog []domain.Product) (domain.ReconciliationReport, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ReconciliationReport{}, &FilesystemError{Path: dir, Err: ErrDirectoryMissing}
		}
		return domain.ReconciliationReport{}, &FilesystemError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return domain.ReconciliationReport{}, &FilesystemError{Path: dir, Err: ErrNotDirectory}
	}
	return Reconcile(os.DirFS(dir), catalog)
}

// Reconcile compares the immediate subdirectories of fsys with the catalog.
//
// Rules:
//   - a folder named after a catalog code is matched; with one or more images it
//     counts as MatchedWithImages, otherwise as MatchedWithoutImages
//   - a folder matching no code is an orphan
//   - a code with no folder is missing and gets a zero-image detail line
//   - entries that are not directories are ignored
//
// Folder lists and details are sorted by code, so the report depends only on
// the tree and the catalog.
func Reconcile(fsys fs.FS, catalog []domain.Product) (domain.ReconciliationReport, error) {
	info, err := fs.Stat(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ReconciliationReport{}, &FilesystemError{Path: ".", Err: ErrDirectoryMissing}
		}
		return domain.ReconciliationReport{}, &FilesystemError{Path: ".", Err: err}
	}
	if !info.IsDir() {
		return domain.ReconciliationReport{}, &FilesystemError{Path: ".", Err: ErrNotDirectory}
	}

	names := make(map[string]string, len(catalog))
	for _, p := range catalog {
		if _, seen := names[p.InternalCode]; !seen {
			names[p.InternalCode] = p.Name
		}
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return domain.ReconciliationReport{}, &FilesystemError{Path: ".", Err: err}
	}

	report := domain.ReconciliationReport{
		MissingFolders: []string{},
		OrphanFolders:  []string{},
		Details:        []domain.ProductImages{},
	}
	found := make(map[string]bool)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		code := e.Name()
		name, ok := names[code]
		if !ok {
			report.OrphanFolders = append(report.OrphanFolders, code)
			continue
		}
		found[code] = true

		files, err := ImageFiles(fsys, code)
		if err != nil {
			return domain.ReconciliationReport{}, err
		}
		count := len(files)
		if count > 0 {
			report.MatchedWithImages++
			report.TotalImageFiles += count
		} else {
			report.MatchedWithoutImages++
		}
		report.Details = append(report.Details, domain.ProductImages{
			InternalCode: code,
			ProductName:  name,
			ImageCount:   count,
		})
	}

	for code, name := range names {
		if found[code] {
			continue
		}
		report.MissingFolders = append(report.MissingFolders, code)
		report.Details = append(report.Details, domain.ProductImages{
			InternalCode: code,
			ProductName:  name,
		})
	}

	sort.Strings(report.MissingFolders)
	sort.Strings(report.OrphanFolders)
	sort.Slice(report.Details, func(i, j int) bool {
		return report.Details[i].InternalCode < report.Details[j].InternalCode
	})

	return report, nil
}

// ImageCounts maps each product code in the report to its image count.
func ImageCounts(report domain.ReconciliationReport) map[string]int {
	counts := make(map[string]int, len(report.Details))
	for _, d := range report.Details {
		counts[d.InternalCode] = d.ImageCount
	}
	return counts
}
