package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspectRejectsNonPDF(t *testing.T) {
	_, err := Inspect([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
