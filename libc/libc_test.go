// Test suite for the libc shims
package libc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/vfs"

	_ "github.com/jerryzhang126/dnx-rtos/fs/ramfs"
)

func mountRoot(t *testing.T) {
	t.Helper()
	require.NoError(t, vfs.MountFs("ramfs", "", "/", ""))
	t.Cleanup(vfs.Reset)
}

func TestFopenModes(t *testing.T) {
	mountRoot(t)

	_, err := Fopen("/f", "r")
	assert.Error(t, err, "reading a missing file fails")

	f, err := Fopen("/f", "w")
	require.NoError(t, err)
	_, err = Fprintf(f, "pi=%d.%d\n", 3, 14)
	require.NoError(t, err)
	require.NoError(t, Fclose(f))

	f, err = Fopen("/f", "r")
	require.NoError(t, err)
	var whole, frac int
	_, err = Fscanf(f, "pi=%d.%d\n", &whole, &frac)
	require.NoError(t, err)
	assert.Equal(t, 3, whole)
	assert.Equal(t, 14, frac)
	require.NoError(t, Fclose(f))

	// Append positions at the end.
	f, err = Fopen("/f", "a+")
	require.NoError(t, err)
	_, err = Fputs(f, "more\n")
	require.NoError(t, err)
	require.NoError(t, Fclose(f))

	f, err = Fopen("/f", "r")
	require.NoError(t, err)
	line, err := Fgets(f)
	require.NoError(t, err)
	assert.Equal(t, "pi=3.14\n", line)
	require.NoError(t, Fclose(f))

	_, err = Fopen("/f", "q")
	assert.Error(t, err)
}

func TestAtoi(t *testing.T) {
	for _, test := range []struct {
		in   string
		base int
		want int64
		ok   bool
	}{
		{"123", 10, 123, true},
		{"  -42", 10, -42, true},
		{"ff", 16, 255, true},
		{"0x1A", 0, 26, true},
		{"101", 2, 5, true},
		{"123junk", 10, 123, true},
		{"junk", 10, 0, false},
		{"", 10, 0, false},
	} {
		got, err := Atoi(test.in, test.base)
		if test.ok {
			require.NoError(t, err, "input %q", test.in)
			assert.Equal(t, test.want, got, "input %q", test.in)
		} else {
			assert.Error(t, err, "input %q", test.in)
		}
	}
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "123", Itoa(123, 10))
	assert.Equal(t, "-7b", Itoa(-123, 16))
	assert.Equal(t, "1111011", Itoa(123, 2))
	assert.Equal(t, "", Itoa(1, 99))
}

func TestAbsPath(t *testing.T) {
	assert.Equal(t, "/a/b", AbsPath("/a", "b"))
	assert.Equal(t, "/b", AbsPath("/", "b"))
	assert.Equal(t, "/b", AbsPath("", "b"))
	assert.Equal(t, "/x/y", AbsPath("/a", "/x/y"))
	assert.Equal(t, "/a/b", AbsPath("/a/", "b/"))
}

func TestStdioWithoutProcess(t *testing.T) {
	assert.Nil(t, Stdin())
	assert.Nil(t, Stdout())
	assert.Nil(t, Stderr())
	_, err := Printf("dropped")
	assert.Error(t, err)
}
