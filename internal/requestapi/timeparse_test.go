package requestapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeStringValid(t *testing.T) {
	cases := []struct {
		in   string
		base int64
		want time.Duration
	}{
		{"10s", 0, 10 * time.Second},
		{"50%", 60, 30 * time.Second},
		{"3600", 0, 3600 * time.Second},
		{"0", 0, 0},
		{"100%", 45, 45 * time.Second},
	}
	for _, tc := range cases {
		got, err := ParseTimeString(tc.in, tc.base)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseTimeStringInvalid(t *testing.T) {
	cases := []struct {
		in   string
		base int64
	}{
		{"", 0},
		{"abc", 0},
		{"-10s", 0},
		{"10x", 0},
		{"%50", 0},
		{"25%", 0}, // percentage with no positive base
	}
	for _, tc := range cases {
		_, err := ParseTimeString(tc.in, tc.base)
		assert.Error(t, err, "input %q", tc.in)
	}
}
