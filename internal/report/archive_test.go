package report

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknotifier/internal/types"
)

// noisyBody returns n bytes that deflate poorly, so the container is
// roughly as large as the input.
func noisyBody(n int) []byte {
	r := rand.New(rand.NewChaCha8([32]byte{7}))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func joinParts(t *testing.T, parts []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Join(parts, &buf))
	return buf.Bytes()
}

func TestArchiveSplitRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ar := NewArchiver(ArchiverConfig{TempDir: dir, MaxSegmentBytes: 1000})
	ar.newID = func() string { return "fixed" }
	body := noisyBody(4500)

	arc, err := ar.Archive(context.Background(), &Report{Body: body, Extension: "html"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = arc.Cleanup() })

	require.Greater(t, len(arc.Parts), 1)
	assert.Empty(t, arc.Container, "the container is replaced by its parts")
	assert.Equal(t, types.MIMEZip, arc.MIME)

	var total int64
	for i, p := range arc.Parts {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(1000))
		if i < len(arc.Parts)-1 {
			assert.Equal(t, int64(1000), info.Size())
		}
		total += info.Size()
	}
	assert.Equal(t, arc.Size, total)

	assert.Equal(t, filepath.Join(dir, "part_fixed.zip.001"), arc.Parts[0])
	pattern := regexp.MustCompile(`^part_fixed\.zip\.\d{3}$`)
	for _, name := range dirEntries(t, dir) {
		assert.Regexp(t, pattern, name, "only parts remain on disk")
	}

	got, err := Extract(joinParts(t, arc.Parts))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestArchiveSinglePartWhenUnderLimit(t *testing.T) {
	dir := t.TempDir()
	ar := NewArchiver(ArchiverConfig{TempDir: dir, MaxSegmentBytes: 1 << 20})
	body := []byte(strings.Repeat(`"note": "ok"`+"\n", 200))

	arc, err := ar.Archive(context.Background(), &Report{Body: body, Extension: "html"})
	require.NoError(t, err)

	require.Len(t, arc.Parts, 1)
	assert.Equal(t, arc.Container, arc.Parts[0])
	assert.True(t, strings.HasSuffix(arc.Container, ".zip"))
	assert.Len(t, dirEntries(t, dir), 1, "the source file is removed")

	got, err := Extract(joinParts(t, arc.Parts))
	require.NoError(t, err)
	assert.Equal(t, body, got)

	require.NoError(t, arc.Cleanup())
	require.NoError(t, arc.Cleanup())
	assert.Empty(t, dirEntries(t, dir))
}

func TestArchiveKeepSource(t *testing.T) {
	dir := t.TempDir()
	ar := NewArchiver(ArchiverConfig{TempDir: dir, KeepSource: true})
	ar.newID = func() string { return "kept" }

	arc, err := ar.Archive(context.Background(), &Report{Body: []byte("report"), Extension: "txt"})
	require.NoError(t, err)
	require.NoError(t, arc.Cleanup())

	assert.Equal(t, []string{"kept.txt"}, dirEntries(t, dir))
}

func TestArchiveZstd(t *testing.T) {
	dir := t.TempDir()
	ar := NewArchiver(ArchiverConfig{TempDir: dir, MaxSegmentBytes: 512, Format: types.ArchiveZstd})
	body := noisyBody(2000)

	arc, err := ar.Archive(context.Background(), &Report{Body: body, Extension: "html"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = arc.Cleanup() })

	assert.Equal(t, types.MIMEZstd, arc.MIME)
	assert.Contains(t, arc.Parts[0], ".html.zst.001")

	got, err := Extract(joinParts(t, arc.Parts))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestArchiveEmptyReport(t *testing.T) {
	dir := t.TempDir()
	arc, err := NewArchiver(ArchiverConfig{TempDir: dir}).Archive(context.Background(), &Report{Extension: "html"})
	require.NoError(t, err)
	assert.True(t, arc.Empty())
	assert.Empty(t, dirEntries(t, dir))
}

func TestArchiveFailureReturnsNothing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	arc, err := NewArchiver(ArchiverConfig{TempDir: missing}).Archive(context.Background(), &Report{Body: []byte("x"), Extension: "html"})

	require.Error(t, err)
	assert.Nil(t, arc)
	assert.Equal(t, types.ErrCodeArchiveWrite, types.CodeOf(err))
	assert.True(t, arc.Empty())
}

func TestArchiveCancelledLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	arc, err := NewArchiver(ArchiverConfig{TempDir: dir}).Archive(ctx, &Report{Body: []byte("x"), Extension: "html"})
	require.Error(t, err)
	assert.Nil(t, arc)
	assert.Empty(t, dirEntries(t, dir))
}

func TestArchiveSplitFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	ar := NewArchiver(ArchiverConfig{TempDir: dir, MaxSegmentBytes: 100})
	ar.newID = func() string { return "clash" }

	// A pre-existing part blocks the exclusive create of the third part.
	blocker := filepath.Join(dir, "part_clash.zip.003")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	arc, err := ar.Archive(context.Background(), &Report{Body: noisyBody(1000), Extension: "html"})
	require.Error(t, err)
	assert.Nil(t, arc)
	assert.Equal(t, types.ErrCodeArchiveSplit, types.CodeOf(err))
	assert.Equal(t, []string{"part_clash.zip.003"}, dirEntries(t, dir))
}

func TestSplitPadWidthGrows(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "c.zip")
	require.NoError(t, os.WriteFile(src, noisyBody(1001), 0o600))

	parts, err := splitFile(src, dir, "part_c.zip", 1)
	require.NoError(t, err)
	require.Len(t, parts, 1001)
	assert.Equal(t, filepath.Join(dir, "part_c.zip.0001"), parts[0])
	assert.Equal(t, filepath.Join(dir, "part_c.zip.1001"), parts[1000])
}

func TestArchiveRemoveThenCleanup(t *testing.T) {
	dir := t.TempDir()
	arc, err := NewArchiver(ArchiverConfig{TempDir: dir, MaxSegmentBytes: 300}).
		Archive(context.Background(), &Report{Body: noisyBody(1000), Extension: "html"})
	require.NoError(t, err)

	require.NoError(t, arc.Remove(arc.Parts[0]))
	require.NoError(t, arc.Cleanup())
	assert.Empty(t, dirEntries(t, dir))
}
