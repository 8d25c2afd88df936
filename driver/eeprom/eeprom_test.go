// Test suite for the EEPROM driver
package eeprom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

var testMinor int

func newChip(t *testing.T) (*Driver, driver.Handle) {
	t.Helper()
	Configure(t.TempDir(), 0, 0)
	testMinor++
	d := &Driver{}
	h, err := d.Init(0, testMinor)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = d.Release(h)
	})
	require.NoError(t, d.Open(h, fs.O_RDWR))
	return d, h
}

func TestEraseState(t *testing.T) {
	d, h := newChip(t)
	buf := make([]byte, 8)
	n, err := d.Read(h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	// An unwritten EEPROM reads as 0xff.
	for _, b := range buf {
		assert.Equal(t, byte(0xff), b)
	}
}

func TestReadWriteAcrossPages(t *testing.T) {
	d, h := newChip(t)

	payload := make([]byte, 3*defaultPageSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	// An unaligned offset makes the write span four pages.
	off := int64(defaultPageSize/2 + 1)
	n, err := d.Write(h, payload, off)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	_, err = d.Read(h, got, off)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Neighbouring bytes keep the erase state.
	var b [1]byte
	_, err = d.Read(h, b[:], off-1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), b[0])
}

func TestBounds(t *testing.T) {
	d, h := newChip(t)
	c := h.(*chip)

	_, err := d.Write(h, []byte{1, 2}, c.size()-1)
	assert.Equal(t, errno.ENOSPC, err)

	buf := make([]byte, 4)
	n, err := d.Read(h, buf, c.size()-2)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "reads clamp at the end of the chip")
}

func TestWriteProtect(t *testing.T) {
	d, h := newChip(t)
	require.NoError(t, d.Ioctl(h, IoctlSetWriteProtect, true))
	_, err := d.Write(h, []byte{1}, 0)
	assert.Equal(t, errno.EROFS, err)

	require.NoError(t, d.Ioctl(h, IoctlSetWriteProtect, false))
	_, err = d.Write(h, []byte{1}, 0)
	require.NoError(t, err)
}

func TestGeometryIoctl(t *testing.T) {
	d, h := newChip(t)
	var size int64
	require.NoError(t, d.Ioctl(h, IoctlGetSize, &size))
	assert.Equal(t, int64(defaultPageSize*defaultPages), size)

	var st fs.FileInfo
	require.NoError(t, d.Stat(h, &st))
	assert.Equal(t, fs.TypeDevice, st.Type)
	assert.Equal(t, size, st.Size)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	Configure(dir, 0, 0)
	testMinor++
	minor := testMinor
	d := &Driver{}

	h, err := d.Init(0, minor)
	require.NoError(t, err)
	_, err = d.Write(h, []byte("persist"), 16)
	require.NoError(t, err)
	require.NoError(t, d.Release(h))

	// The same backing file serves a fresh instance.
	h, err = d.Init(0, minor)
	require.NoError(t, err)
	defer func() { _ = d.Release(h) }()
	buf := make([]byte, 7)
	_, err = d.Read(h, buf, 16)
	require.NoError(t, err)
	assert.Equal(t, "persist", string(buf))
}
