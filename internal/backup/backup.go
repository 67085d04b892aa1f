package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// coldStore is the subset of R2Client's surface Service depends on, split
// out so tests can substitute a fake instead of hitting real R2.
type coldStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Delete(ctx context.Context, key string) error
}

const (
	archivePrefix     = "paperloop-backup-"
	archiveTimeLayout = "2006-01-02-150405"
	minBackupsToKeep  = 3
)

// Metadata describes the contents of one archive.
type Metadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one file staged into an archive.
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Info describes an archive already present in cold storage.
type Info struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// Config names the files a backup archive must contain. AppendLogSegments
// lists the Append Log files to archive (cmd/trader passes only the rotated
// `.N.gz` files, not the active segment);
// ColumnarDBPath and CacheDBPath point at the sqlite files backing C2/C3.
type Config struct {
	StagingDir        string
	AppendLogSegments []string
	ColumnarDBPath    string
	CacheDBPath       string
	RetentionDays     int
}

// Service snapshots local state into a tar.gz archive and ships it to R2.
type Service struct {
	cfg Config
	r2  coldStore
	log zerolog.Logger
}

func NewService(cfg Config, r2 *R2Client, log zerolog.Logger) *Service {
	return newService(cfg, r2, log)
}

func newService(cfg Config, r2 coldStore, log zerolog.Logger) *Service {
	return &Service{cfg: cfg, r2: r2, log: log.With().Str("component", "backup").Logger()}
}

// sourceFiles returns the absolute paths of every file that must be staged
// into the archive, skipping any that don't currently exist (a fresh
// deployment may not have rotated any Append Log segments yet).
func (s *Service) sourceFiles() []string {
	var files []string
	files = append(files, s.cfg.AppendLogSegments...)
	if s.cfg.ColumnarDBPath != "" {
		files = append(files, s.cfg.ColumnarDBPath)
	}
	if s.cfg.CacheDBPath != "" {
		files = append(files, s.cfg.CacheDBPath)
	}

	existing := files[:0]
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	return existing
}

// CreateAndUpload stages every configured source file, computes checksums,
// writes a metadata manifest, tars and gzips the whole staging directory,
// and uploads the resulting archive to R2.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("starting backup")

	if err := os.MkdirAll(s.cfg.StagingDir, 0755); err != nil {
		return fmt.Errorf("backup: create staging dir: %w", err)
	}
	defer os.RemoveAll(s.cfg.StagingDir)

	sources := s.sourceFiles()
	meta := Metadata{Timestamp: time.Now().UTC(), Files: make([]FileMetadata, 0, len(sources))}

	for _, src := range sources {
		checksum, err := checksumFile(src)
		if err != nil {
			return fmt.Errorf("backup: checksum %s: %w", src, err)
		}
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("backup: stat %s: %w", src, err)
		}
		meta.Files = append(meta.Files, FileMetadata{
			Name:      filepath.Base(src),
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metaPath := filepath.Join(s.cfg.StagingDir, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("backup: write metadata: %w", err)
	}

	archiveName := fmt.Sprintf("%s%s.tar.gz", archivePrefix, time.Now().Format(archiveTimeLayout))
	archivePath := filepath.Join(s.cfg.StagingDir, archiveName)

	if err := createArchive(archivePath, append(sources, metaPath)); err != nil {
		return fmt.Errorf("backup: create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("backup: stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("backup: open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.r2.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("backup: upload: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_kb", archiveInfo.Size()/1024).
		Msg("backup completed")

	return nil
}

// ListBackups lists every archive currently in cold storage, newest first.
func (s *Service) ListBackups(ctx context.Context) ([]Info, error) {
	objects, err := s.r2.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}

	backups := make([]Info, 0, len(objects))
	now := time.Now()
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		key := *obj.Key
		if !strings.HasPrefix(key, archivePrefix) || !strings.HasSuffix(key, ".tar.gz") {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(key, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveTimeLayout, ts)
		if err != nil {
			s.log.Warn().Str("key", key).Msg("could not parse timestamp from backup key, skipping")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, Info{
			Key:       key,
			Timestamp: timestamp,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays, always
// keeping the newest minBackupsToKeep regardless of age. retentionDays <= 0
// keeps everything beyond the minimum.
func (s *Service) RotateOldBackups(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("backup: rotate: %w", err)
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}
	if s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			if err := s.r2.Delete(ctx, b.Key); err != nil {
				s.log.Error().Err(err).Str("key", b.Key).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation completed")
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath string, sourcePaths []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gzw := gzip.NewWriter(archiveFile)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	for _, src := range sourcePaths {
		if err := addFileToArchive(tw, src); err != nil {
			return fmt.Errorf("add %s: %w", src, err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
