package attachment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveVariantsFromAnyVariant(t *testing.T) {
	want := DeriveVariants("reports/r1/before/abc.jpg")
	assert.Equal(t, "reports/r1/before/abc.jpg", want.Original)
	assert.Equal(t, "reports/r1/before/abc_display.jpg", want.Display)
	assert.Equal(t, "reports/r1/before/abc_thumb.jpg", want.Thumbnail)

	assert.Equal(t, want, DeriveVariants(want.Display))
	assert.Equal(t, want, DeriveVariants(want.Thumbnail))
}

func TestDeriveVariantsRoundTrip(t *testing.T) {
	paths := []string{
		"reports/r1/after/abc.png",
		"reports/r1/after/abc_thumb.png",
		"legacy/photo",
		"a_display",
		"dir.with.dots/file.tar.jpg",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			v := DeriveVariants(p)
			assert.Equal(t, v, DeriveVariants(v.Original))
			assert.Equal(t, v, DeriveVariants(v.Display))
			assert.Equal(t, v, DeriveVariants(v.Thumbnail))
		})
	}
}

func TestSubstituteCategory(t *testing.T) {
	assert.Equal(t, "reports/r1/after/abc.jpg", SubstituteCategory("reports/r1/before/abc.jpg", "r1", "before", "after"))
	assert.Equal(t, "uploads/2023/after/x.jpg", SubstituteCategory("uploads/2023/before/x.jpg", "r1", "before", "after"))

	fresh := SubstituteCategory("old-bucket/x_thumb.jpg", "r1", "before", "after")
	assert.Equal(t, "reports/r1/after/x.jpg", fresh)
}

func TestNewPathKeepsExtensionOnly(t *testing.T) {
	p := NewPath("r1", "before", "IMG 0001.JPG")
	assert.True(t, strings.HasPrefix(p, "reports/r1/before/"))
	assert.True(t, strings.HasSuffix(p, ".jpg"))
	assert.NotContains(t, p, "IMG")
}
