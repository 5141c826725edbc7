package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

const partialSuffix = ".part"

var (
	ErrStreamTooLarge = errors.New("stream exceeds the declared limit")
	ErrOutsideRoot    = errors.New("path escapes the storage root")
	ErrQuarantined    = errors.New("file is quarantined")
)

// LocalStorage keeps attachment bytes in two sibling roots. Paths handed out
// are relative; quarantined ones carry models.QuarantinePathPrefix.
type LocalStorage struct {
	Uploads    models.LocalDestination
	Quarantine models.LocalDestination
}

func NewLocalStorage(uploads, quarantine string) (*LocalStorage, error) {
	for _, dir := range []string{uploads, quarantine} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("unable to prepare storage directory %s: %v", dir, err)
		}
	}
	return &LocalStorage{
		Uploads:    models.LocalDestination{BaseDestination: models.BaseDestination{Type: models.DestinationTypeLocal, Label: "uploads"}, Path: uploads},
		Quarantine: models.LocalDestination{BaseDestination: models.BaseDestination{Type: models.DestinationTypeLocal, Label: "quarantine"}, Path: quarantine},
	}, nil
}

// Save streams r into the uploads root under name. At most limit bytes are
// accepted, a longer stream yields ErrStreamTooLarge and leaves nothing behind.
func (v *LocalStorage) Save(r io.Reader, name string, limit int64) (int64, error) {
	dst, err := v.resolve(v.Uploads.Path, name)
	if err != nil {
		return 0, err
	}

	partial := dst + partialSuffix
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("unable to create upload file: %v", err)
	}

	written, err := io.Copy(out, io.LimitReader(r, limit+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written > limit {
		err = ErrStreamTooLarge
	}
	if err != nil {
		removeQuietly(partial)
		if errors.Is(err, ErrStreamTooLarge) {
			return written, err
		}
		return written, fmt.Errorf("unable to write upload file: %v", err)
	}

	if err := os.Rename(partial, dst); err != nil {
		removeQuietly(partial)
		return written, fmt.Errorf("unable to finalize upload file: %v", err)
	}
	return written, nil
}

// Path returns the absolute location of a stored file, quarantined or not.
func (v *LocalStorage) Path(rel string) (string, error) {
	if after, ok := strings.CutPrefix(rel, models.QuarantinePathPrefix); ok {
		return v.resolve(v.Quarantine.Path, after)
	}
	return v.resolve(v.Uploads.Path, rel)
}

// ServePath resolves a file for the serving boundary. Quarantined files are
// never resolved.
func (v *LocalStorage) ServePath(rel string) (string, error) {
	if strings.HasPrefix(rel, models.QuarantinePathPrefix) {
		return "", ErrQuarantined
	}
	return v.resolve(v.Uploads.Path, rel)
}

// MoveToQuarantine relocates a file out of the uploads root and returns its
// new relative path.
func (v *LocalStorage) MoveToQuarantine(rel string) (string, error) {
	src, err := v.resolve(v.Uploads.Path, rel)
	if err != nil {
		return "", err
	}
	dst, err := v.resolve(v.Quarantine.Path, rel)
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, dst); err != nil {
		// Rename fails across devices, fall back to copying.
		if err := copyFile(src, dst); err != nil {
			removeQuietly(dst)
			return "", fmt.Errorf("unable to move file into quarantine: %v", err)
		}
		if err := os.Remove(src); err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("Unable to remove the original copy of a quarantined file...")
		}
	}
	return models.QuarantinePathPrefix + rel, nil
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (v *LocalStorage) Remove(rel string) error {
	path, err := v.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SweepPartial removes unfinished uploads older than maxAge.
func (v *LocalStorage) SweepPartial(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(v.Uploads.Path)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(-maxAge)
	var count int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(deadline) {
			continue
		}
		if err := os.Remove(filepath.Join(v.Uploads.Path, entry.Name())); err == nil {
			count++
		}
	}
	return count, nil
}

func (v *LocalStorage) resolve(root, rel string) (string, error) {
	if len(rel) == 0 {
		return "", ErrOutsideRoot
	}
	full := filepath.Join(root, rel)
	within, err := filepath.Rel(root, full)
	if err != nil || within == "." || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open source file: %v", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("unable to open dest file: %v", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("unable to copy data to dest file: %v", err)
	}
	return out.Close()
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Unable to clean up a partially written file...")
	}
}
