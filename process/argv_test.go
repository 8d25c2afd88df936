package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	for _, test := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a b", []string{"a", "b"}},
		{`"a b"`, []string{"a b"}},
		{`'a b' c`, []string{"a b", "c"}},
		{"a b   ", []string{"a", "b"}},
		{"   a", []string{"a"}},
		{"a\tb", []string{"a", "b"}},
		{`echo 'hello world' foo`, []string{"echo", "hello world", "foo"}},
		{`""`, []string{""}},
		{`cat ''`, []string{"cat", ""}},
		{`a"b c"d`, []string{"ab cd"}},
		// A mismatched quote consumes the remainder into one argument.
		{`echo "unterminated rest`, []string{"echo", "unterminated rest"}},
		{`'`, []string{""}},
	} {
		got := ParseArgs(test.in)
		assert.Equal(t, test.want, got, "command line %q", test.in)
	}
}
