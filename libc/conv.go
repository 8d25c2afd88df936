package libc

import (
	"strconv"
	"strings"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Atoi converts the leading integer of s in the given base. Base 0
// auto-detects 0x and 0 prefixes.
func Atoi(s string, base int) (int64, error) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := "0123456789abcdefghijklmnopqrstuvwxyz"
	max := base
	if base == 0 {
		max = 10
		if rest := s[end:]; len(rest) > 1 && rest[0] == '0' && rest[1]|0x20 == 'x' {
			max = 16
		} else if len(rest) > 0 && rest[0] == '0' {
			max = 8
		}
	} else if base > len(digits) {
		max = len(digits)
	}
	for end < len(s) {
		c := s[end] | 0x20
		if !strings.ContainsRune(digits[:max], rune(c)) && !(base == 0 && c == 'x') {
			break
		}
		end++
	}
	v, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		return 0, errno.EINVAL
	}
	return v, nil
}

// Itoa renders v in the given base.
func Itoa(v int64, base int) string {
	if base < 2 || base > 36 {
		return ""
	}
	return strconv.FormatInt(v, base)
}
