package support

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/value"
)

func pathParams(p string) *value.Value {
	v := value.Map()
	v.Insert("path", value.String(p))
	v.Freeze()
	return v
}

func TestScoreDirectoryWithMetadataAndIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "index"), 0o755))
	require.Equal(t, 1.0, Score(dir))
}

func TestScoreStreamFileWithMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chan0_0")
	require.NoError(t, os.WriteFile(path, []byte{0xc1, 0x1f, 0xfc, 0xc1, 0, 0, 0, 0}, 0o644))
	require.Equal(t, 0.7, Score(path))
}

func TestScoreUnrelatedFileIsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	require.Equal(t, 0.0, Score(path))
}

func TestQuerySupportInfoUsesScore(t *testing.T) {
	dir := t.TempDir()
	c := New(nil)
	v, err := c.Query("babeltrace.support-info", pathParams(dir))
	require.NoError(t, err)
	require.Equal(t, 0.0, v.AsF64())
}

func TestQueryTraceInfosUnwiredIsUnsupported(t *testing.T) {
	c := New(nil)
	_, err := c.Query("babeltrace.trace-infos", pathParams("/tmp"))
	require.Error(t, err)
}

func TestQueryTraceInfosReportsRanges(t *testing.T) {
	c := New(func(path string) ([]TraceInfo, error) {
		return []TraceInfo{{StreamClassID: 1, BeginNs: 10, EndNs: 20}}, nil
	})
	v, err := c.Query("babeltrace.trace-infos", pathParams("/tmp"))
	require.NoError(t, err)
	require.Len(t, v.AsArray(), 1)
}
