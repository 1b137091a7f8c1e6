package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/aihub/ragbot/internal/errors"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators 按优先级排列的分隔符：句号、换行、逗号
var DefaultSeparators = []string{".", "\n", ", "}

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index   int
	DocName string
	Text    string
	ChunkID string
	// Overlap 为 Text 开头与上一个分块重叠的字符数
	Overlap int
}

// Body 返回去掉重叠前缀后的文本
func (c Chunk) Body() string {
	runes := []rune(c.Text)
	if c.Overlap >= len(runes) {
		return ""
	}
	return string(runes[c.Overlap:])
}

// ChunkID 由文档名和文本计算稳定的分块ID，相同内容重复入库时ID不变
func ChunkID(docName, text string) string {
	h := sha256.New()
	h.Write([]byte(docName))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkerOption 分块器选项
type ChunkerOption func(*Chunker)

// WithSeparators 替换默认分隔符列表
func WithSeparators(separators ...string) ChunkerOption {
	return func(c *Chunker) {
		if len(separators) > 0 {
			c.separators = separators
		}
	}
}

// Chunker 递归分隔符文本分块器
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int, opts ...ChunkerOption) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	c := &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize 返回分块大小（字符数）
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap 返回重叠字符数
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// ChunkReader 读取全部内容后分块，读取失败时不返回部分结果
func (c *Chunker) ChunkReader(docName string, r io.Reader) ([]Chunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeChunking, "failed to read source "+docName, err)
	}
	return c.Split(docName, string(data))
}

// Split 将文本切分为多个chunk
// 分隔符保留在所在片段末尾；每个chunk以上一个chunk的最后 overlap 个字符开头，且总长度不超过 chunkSize。
// 只含空白的窗口不单独成块，并入下一个chunk的正文（此时长度可超过 chunkSize），末尾的空白并入最后一个chunk
func (c *Chunker) Split(docName, text string) ([]Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, apperrors.Wrap(apperrors.ErrCodeChunking, "source "+docName+" is not valid UTF-8", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	budget := c.chunkSize - c.chunkOverlap
	pieces := c.splitRecursive(text, c.separators, budget)

	runes := []rune(text)
	var chunks []Chunk

	// start 为上一个chunk的结束位置，window 为当前窗口起点
	start, window, end := 0, 0, 0
	flush := func() {
		if end <= window {
			return
		}
		if isBlank(runes[start:end]) {
			window = end
			return
		}
		chunks = append(chunks, c.newChunk(docName, runes, start, end, len(chunks)))
		start, window = end, end
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if end-window+n > budget {
			flush()
		}
		end += n
	}
	flush()

	if start < end && len(chunks) > 0 {
		last := len(chunks) - 1
		bodyStart := start - len([]rune(chunks[last].Text)) + chunks[last].Overlap
		chunks[last] = c.newChunk(docName, runes, bodyStart, end, last)
	}

	return chunks, nil
}

// newChunk 以 runes[start:end] 为正文，前面补上 overlap 个字符
func (c *Chunker) newChunk(docName string, runes []rune, start, end, index int) Chunk {
	from := start - c.chunkOverlap
	if from < 0 {
		from = 0
	}
	text := string(runes[from:end])
	return Chunk{
		Index:   index,
		DocName: docName,
		Text:    text,
		ChunkID: ChunkID(docName, text),
		Overlap: start - from,
	}
}

// splitRecursive 用优先级最高的可用分隔符切分，过长片段交给下一个分隔符，最后按字符切
func (c *Chunker) splitRecursive(text string, separators []string, budget int) []string {
	if utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}

	for i, sep := range separators {
		if sep == "" || !strings.Contains(text, sep) {
			continue
		}
		var out []string
		for _, piece := range splitKeepEnd(text, sep) {
			if utf8.RuneCountInString(piece) <= budget {
				out = append(out, piece)
				continue
			}
			out = append(out, c.splitRecursive(piece, separators[i+1:], budget)...)
		}
		return out
	}

	return splitRunes(text, budget)
}

// splitKeepEnd 按分隔符切分并把分隔符留在片段末尾
func splitKeepEnd(text, sep string) []string {
	var out []string
	rest := text
	for {
		idx := strings.Index(rest, sep)
		if idx < 0 {
			break
		}
		cut := idx + len(sep)
		out = append(out, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
