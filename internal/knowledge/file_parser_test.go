package knowledge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileParserManager_ExtractText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Revenue grew 12%.\nCosts fell 3%."), 0o644))

	text, err := NewFileParserManager(0).ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12%.\nCosts fell 3%.", text)
}

func TestFileParserManager_UnsupportedFormat(t *testing.T) {
	m := NewFileParserManager(0)

	_, err := m.ExtractFile("/nowhere/sheet.xlsx")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat))

	var unsupported *UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, ".xlsx", unsupported.Ext)

	_, err = m.ParseFile(strings.NewReader("x"), "legacy.doc")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat))
}

func TestFileParserManager_MissingFile(t *testing.T) {
	_, err := NewFileParserManager(0).ExtractFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestFileParserManager_InvalidUTF8Text(t *testing.T) {
	_, err := NewFileParserManager(0).ParseFile(strings.NewReader("\xff\xfe"), "bad.txt")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestFileParserManager_SupportedFormats(t *testing.T) {
	m := NewFileParserManager(0)
	assert.ElementsMatch(t, []string{".pdf", ".docx", ".txt"}, m.GetSupportedFormats())
	assert.True(t, m.Supports("REPORT.PDF"))
	assert.False(t, m.Supports("image.png"))
}

func TestCheckPageLimit(t *testing.T) {
	assert.NoError(t, checkPageLimit(19, DefaultMaxPDFPages))
	assert.True(t, apperrors.HasCode(checkPageLimit(20, DefaultMaxPDFPages), apperrors.ErrCodeFileTooLarge))
	assert.NoError(t, checkPageLimit(500, 0))
}
