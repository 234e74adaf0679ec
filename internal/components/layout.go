package components

import (
	"path/filepath"

	"wrtools/internal/platform"
)

// ArchiveFormat identifies how a component archive is packed.
type ArchiveFormat string

const (
	FormatZip   ArchiveFormat = "zip"
	FormatTarGz ArchiveFormat = "tar.gz"
)

// Extension returns the file suffix, including the leading dot.
func (f ArchiveFormat) Extension() string {
	return "." + string(f)
}

// FormatFor returns the archive format published for host.
func FormatFor(host platform.Host) ArchiveFormat {
	if host.IsWindows() {
		return FormatZip
	}
	return FormatTarGz
}

// Layout is the on-disk placement of one component for one host.
type Layout struct {
	Component ID
	// Name is the archive base name, shared by the install directory.
	Name          string
	ComponentsDir string
	InstallDir    string
	ArchiveName   string
	// ArchivePath is where the downloaded archive is kept until commit.
	ArchivePath string
	MarkerPath  string
	Format      ArchiveFormat
}

// Resolve computes the layout for d under componentsDir. Archives are
// expected to contain a single top-level directory named after the layout, so
// they are extracted into ComponentsDir rather than InstallDir.
func Resolve(componentsDir string, d Descriptor, host platform.Host) (Layout, error) {
	name, err := d.DirName(host)
	if err != nil {
		return Layout{}, err
	}
	format := FormatFor(host)
	archive := name + format.Extension()
	return Layout{
		Component:     d.ID,
		Name:          name,
		ComponentsDir: componentsDir,
		InstallDir:    filepath.Join(componentsDir, name),
		ArchiveName:   archive,
		ArchivePath:   filepath.Join(componentsDir, archive),
		MarkerPath:    filepath.Join(componentsDir, d.VersionFile),
		Format:        format,
	}, nil
}
