package fsutil

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWriteAndRead(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.WriteFile("out/report.csv", []byte("a,b\n1,2\n"), 0644))

	data, err := m.ReadFile("out/report.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = m.ReadFile("out/missing.csv")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMemoryCreatePublishesOnClose(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	w, err := m.Create("plots/curve.png")
	require.NoError(t, err)

	_, err = w.Write([]byte("png"))
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := m.ReadFile("plots/curve.png")
	require.NoError(t, err)
	assert.Equal(t, "pngdata", string(data))
}

func TestMemoryMkdirAll(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.MkdirAll("a/b/c", 0755))
	assert.True(t, m.Exists("a/b/c"))
	assert.True(t, m.Exists("a/b"))
	assert.True(t, m.Exists("a"))
	assert.False(t, m.Exists("a/b/c/d"))
}

func TestOSRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var osfs OS
	require.NoError(t, osfs.MkdirAll(dir+"/nested", 0755))
	require.NoError(t, osfs.WriteFile(dir+"/nested/x.txt", []byte("hi"), 0644))

	assert.True(t, osfs.Exists(dir+"/nested/x.txt"))
	data, err := osfs.ReadFile(dir + "/nested/x.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}
