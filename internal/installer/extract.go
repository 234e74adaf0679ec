package installer

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"wrtools/internal/components"
)

// EntryFunc is invoked once per zip entry, before the entry is written.
// processed counts the current entry.
type EntryFunc func(processed, total int, name string)

// shuffleEntries randomizes zip processing order so per-entry progress
// advances evenly instead of stalling on runs of large files.
var shuffleEntries = func(files []*zip.File) {
	rand.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
}

// Extract unpacks archivePath into destRoot. Zip archives report each entry
// through onEntry; tar.gz archives are streamed without per-entry progress.
func Extract(ctx context.Context, format components.ArchiveFormat, archivePath, destRoot string, onEntry EntryFunc) error {
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return fmt.Errorf("%w: prepare %s: %w", ErrExtractionFailed, destRoot, err)
	}
	dest, err := newDestination(destRoot)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	switch format {
	case components.FormatZip:
		err = extractZip(ctx, archivePath, dest, onEntry)
	case components.FormatTarGz:
		err = extractTarGz(ctx, archivePath, dest)
	default:
		err = fmt.Errorf("unsupported archive format %q", format)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return nil
}

func extractZip(ctx context.Context, archivePath string, dest destination, onEntry EntryFunc) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	files := append([]*zip.File(nil), reader.File...)
	shuffleEntries(files)

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onEntry != nil {
			onEntry(i+1, len(files), file.Name)
		}
		if file.FileInfo().IsDir() {
			continue
		}
		target, err := safeJoin(dest.root, file.Name)
		if err != nil {
			return err
		}
		if err := writeZipEntry(file, dest, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(file *zip.File, dest destination, target string) error {
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", file.Name, err)
	}
	defer rc.Close()

	if file.Mode()&os.ModeSymlink != 0 {
		link, err := io.ReadAll(io.LimitReader(rc, 4096))
		if err != nil {
			return fmt.Errorf("read link %s: %w", file.Name, err)
		}
		return writeSymlink(dest, target, string(link))
	}
	return writeFile(dest, target, rc, fileMode(file.Mode()))
}

func extractTarGz(ctx context.Context, archivePath string, dest destination) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(ctx, gz, dest)
}

func untarStream(ctx context.Context, r io.Reader, dest destination) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		target, err := safeJoin(dest.root, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := dest.confine(target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, target, tr, fileMode(os.FileMode(header.Mode))); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(dest, target, header.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := safeJoin(dest.root, header.Linkname)
			if err != nil {
				return err
			}
			if err := dest.confine(source); err != nil {
				return err
			}
			if err := dest.prepare(target); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("link %s: %w", target, err)
			}
		default:
			// Ignore other entry types.
		}
	}
	return nil
}

// destination is an extraction root. real is root with symlinks resolved;
// every path written during extraction must resolve under it.
type destination struct {
	root string
	real string
}

func newDestination(root string) (destination, error) {
	root = filepath.Clean(root)
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return destination{}, fmt.Errorf("resolve %s: %w", root, err)
	}
	return destination{root: root, real: resolved}, nil
}

// confine rejects path when its nearest existing ancestor (path itself
// included) resolves outside the destination through links written by
// earlier entries.
func (d destination) confine(path string) error {
	existing := path
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if !within(d.real, resolved) {
		return fmt.Errorf("%s resolves outside destination", path)
	}
	return nil
}

// prepare creates target's parent directories and removes whatever
// non-directory already sits at target, so the caller never writes through
// an earlier link.
func (d destination) prepare(target string) error {
	dir := filepath.Dir(target)
	if err := d.confine(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", target, err)
	}
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s: %w", target, err)
		}
	}
	return nil
}

func writeFile(dest destination, target string, r io.Reader, mode os.FileMode) error {
	if err := dest.prepare(target); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

// safeJoin resolves an archive entry name under dest and rejects names that
// would land outside it.
func safeJoin(dest, name string) (string, error) {
	root := filepath.Clean(dest)
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// writeSymlink creates target pointing at link. Absolute links and links
// that resolve outside the destination are rejected.
func writeSymlink(dest destination, target, link string) error {
	rel, err := filepath.Rel(dest.root, filepath.Join(filepath.Dir(target), link))
	if filepath.IsAbs(link) || err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("symlink %s -> %s escapes destination", target, link)
	}
	if err := dest.prepare(target); err != nil {
		return err
	}
	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("symlink %s: %w", target, err)
	}
	return nil
}

func fileMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm | 0o600
}
