package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortID(t *testing.T) {
	for _, n := range []int{6, 10, 12} {
		id := ShortID(n)
		assert.Len(t, id, n)
		assert.Empty(t, strings.Trim(id, "0123456789abcdef"), "hex only: %q", id)
	}
	assert.NotEqual(t, ShortID(12), ShortID(12))

	assert.Len(t, ShortID(0), 32, "non-positive lengths return the full id")
	assert.Len(t, ShortID(64), 32)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Site Overviewer", "site-overviewer"},
		{"pricing_helper", "pricing-helper"},
		{"SEO Audit (v2)!", "seo-audit-v2"},
		{"already-slugged", "already-slugged"},
		{"Café Finder", "caf-finder"},
		{"  ", "--"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 80))
	assert.Equal(t, "hé", Truncate("héllo", 2))
	assert.Equal(t, "", Truncate("héllo", 0))
}

func TestPtr(t *testing.T) {
	p := Ptr("alice")
	assert.Equal(t, "alice", *p)
}
