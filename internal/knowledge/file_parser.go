package knowledge

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// DefaultMaxPDFPages PDF 页数上限，达到即拒绝
const DefaultMaxPDFPages = 20

// UnsupportedFormatError 不支持的文件类型
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %q", e.Ext)
}

// FileParser 文件解析器接口
type FileParser interface {
	Parse(reader io.Reader, filename string) (string, error)
	Supports(filename string) bool
}

// TextParser 文本文件解析器
type TextParser struct{}

func (p *TextParser) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".txt"
}

func (p *TextParser) Parse(reader io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("文件 %s 不是有效的UTF-8文本", filename)
	}
	return string(content), nil
}

// PDFParser PDF文件解析器
type PDFParser struct {
	MaxPages int
}

func (p *PDFParser) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (p *PDFParser) Parse(reader io.Reader, filename string) (string, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取PDF文件失败: %w", err)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取PDF页数失败: %w", err)
	}
	if err := checkPageLimit(numPages, p.MaxPages); err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// checkPageLimit 页数达到上限时返回 FILE_TOO_LARGE
func checkPageLimit(pages, limit int) error {
	if limit > 0 && pages >= limit {
		return apperrors.Wrap(apperrors.ErrCodeFileTooLarge,
			fmt.Sprintf("PDF has %d pages, documents must have fewer than %d", pages, limit), nil)
	}
	return nil
}

// WordParser Word文档解析器，仅支持.docx
type WordParser struct{}

func (p *WordParser) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".docx"
}

func (p *WordParser) Parse(reader io.Reader, filename string) (string, error) {
	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取Word文件失败: %w", err)
	}

	doc, err := document.Read(bytes.NewReader(docBytes), int64(len(docBytes)))
	if err != nil {
		return "", fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// FileParserManager 文件解析器管理器
type FileParserManager struct {
	parsers []FileParser
}

// NewFileParserManager 创建文件解析器管理器，maxPDFPages <= 0 时使用默认值
func NewFileParserManager(maxPDFPages int) *FileParserManager {
	if maxPDFPages <= 0 {
		maxPDFPages = DefaultMaxPDFPages
	}
	return &FileParserManager{
		parsers: []FileParser{
			&PDFParser{MaxPages: maxPDFPages},
			&WordParser{},
			&TextParser{},
		},
	}
}

// ParseFile 解析文件
func (m *FileParserManager) ParseFile(reader io.Reader, filename string) (string, error) {
	for _, parser := range m.parsers {
		if parser.Supports(filename) {
			text, err := parser.Parse(reader, filename)
			if err != nil {
				if apperrors.IsAppError(err) {
					return "", err
				}
				return "", apperrors.Wrap(apperrors.ErrCodeInvalidInput, "failed to extract text from "+filepath.Base(filename), err)
			}
			return text, nil
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return "", apperrors.Wrap(apperrors.ErrCodeUnsupportedFormat, "unsupported file format", &UnsupportedFormatError{Ext: ext})
}

// ExtractFile 按扩展名提取文件文本
func (m *FileParserManager) ExtractFile(path string) (string, error) {
	if !m.Supports(path) {
		return m.ParseFile(nil, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeNotFound, "failed to open "+path, err)
	}
	defer f.Close()

	return m.ParseFile(f, path)
}

// Supports 是否支持该文件
func (m *FileParserManager) Supports(filename string) bool {
	for _, parser := range m.parsers {
		if parser.Supports(filename) {
			return true
		}
	}
	return false
}

// GetSupportedFormats 获取支持的文件格式
func (m *FileParserManager) GetSupportedFormats() []string {
	formats := make([]string, 0, len(m.parsers))
	for _, parser := range m.parsers {
		switch parser.(type) {
		case *PDFParser:
			formats = append(formats, ".pdf")
		case *WordParser:
			formats = append(formats, ".docx")
		case *TextParser:
			formats = append(formats, ".txt")
		}
	}
	return formats
}
