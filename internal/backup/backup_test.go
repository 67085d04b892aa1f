package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeColdStore struct {
	uploaded map[string][]byte
	deleted  []string
}

func newFakeColdStore() *fakeColdStore {
	return &fakeColdStore{uploaded: map[string][]byte{}}
}

func (f *fakeColdStore) Upload(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploaded[key] = data
	return nil
}

func (f *fakeColdStore) List(_ context.Context, prefix string) ([]types.Object, error) {
	var out []types.Object
	for key, data := range f.uploaded {
		size := int64(len(data))
		out = append(out, types.Object{Key: aws.String(key), Size: aws.Int64(size)})
	}
	_ = prefix // the fake ignores prefix filtering; callers already scope keys
	return out, nil
}

func (f *fakeColdStore) Delete(_ context.Context, key string) error {
	delete(f.uploaded, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCreateAndUploadArchivesConfiguredFiles(t *testing.T) {
	dir := t.TempDir()
	segment := writeTempFile(t, dir, "events.jsonl.1.gz", "segment-data")
	columnarDB := writeTempFile(t, dir, "columnar.db", "columnar-bytes")

	store := newFakeColdStore()
	svc := newService(Config{
		StagingDir:        filepath.Join(dir, "staging"),
		AppendLogSegments: []string{segment},
		ColumnarDBPath:    columnarDB,
	}, store, zerolog.Nop())

	require.NoError(t, svc.CreateAndUpload(context.Background()))
	require.Len(t, store.uploaded, 1)

	var archiveBytes []byte
	for _, data := range store.uploaded {
		archiveBytes = data
	}

	gz, err := gzip.NewReader(bytes.NewReader(archiveBytes))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names[hdr.Name] = true
	}
	require.True(t, names["events.jsonl.1.gz"])
	require.True(t, names["columnar.db"])
	require.True(t, names["backup-metadata.json"])

	_, err = os.Stat(filepath.Join(dir, "staging"))
	require.True(t, os.IsNotExist(err), "staging dir should be cleaned up after upload")
}

func TestSourceFilesSkipsMissingPaths(t *testing.T) {
	dir := t.TempDir()
	present := writeTempFile(t, dir, "columnar.db", "data")

	svc := newService(Config{
		StagingDir:        filepath.Join(dir, "staging"),
		ColumnarDBPath:    present,
		CacheDBPath:       filepath.Join(dir, "does-not-exist.db"),
		AppendLogSegments: []string{filepath.Join(dir, "missing.jsonl.1.gz")},
	}, newFakeColdStore(), zerolog.Nop())

	files := svc.sourceFiles()
	require.Equal(t, []string{present}, files)
}

func TestRotateOldBackupsKeepsMinimumThree(t *testing.T) {
	store := newFakeColdStore()
	svc := newService(Config{RetentionDays: 1}, store, zerolog.Nop())

	now := time.Now()
	for i := 0; i < 4; i++ {
		ts := now.AddDate(0, 0, -i*10)
		key := archivePrefix + ts.Format(archiveTimeLayout) + ".tar.gz"
		store.uploaded[key] = []byte("x")
	}

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	require.Len(t, store.uploaded, minBackupsToKeep)
}

func TestRotateOldBackupsNoopBelowMinimum(t *testing.T) {
	store := newFakeColdStore()
	svc := newService(Config{RetentionDays: 1}, store, zerolog.Nop())
	store.uploaded[archivePrefix+time.Now().Format(archiveTimeLayout)+".tar.gz"] = []byte("x")

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	require.Len(t, store.uploaded, 1)
}

func TestListBackupsSkipsUnparseableKeys(t *testing.T) {
	store := newFakeColdStore()
	store.uploaded["not-a-backup-key.tar.gz"] = []byte("x")
	store.uploaded[archivePrefix+"garbage.tar.gz"] = []byte("x")
	valid := archivePrefix + time.Now().Format(archiveTimeLayout) + ".tar.gz"
	store.uploaded[valid] = []byte("x")

	svc := newService(Config{}, store, zerolog.Nop())
	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Equal(t, valid, backups[0].Key)
}
