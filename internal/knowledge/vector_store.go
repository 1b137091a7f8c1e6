package knowledge

import (
	"context"
	"fmt"
)

// SchemaField 表字段
type SchemaField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema 向量表结构，Dimension 为 vector 字段长度
type Schema struct {
	Fields    []SchemaField `json:"fields"`
	Dimension int           `json:"dimension"`
}

// DefaultSchema 固定表结构 {text, vector[1536], doc_name, chunk_id}
func DefaultSchema() Schema {
	return NewSchema(EmbeddingDimensions)
}

// NewSchema 返回指定向量维度的表结构
func NewSchema(dim int) Schema {
	return Schema{
		Fields: []SchemaField{
			{Name: "text", Type: "string"},
			{Name: "vector", Type: fmt.Sprintf("float32[%d]", dim)},
			{Name: "doc_name", Type: "string"},
			{Name: "chunk_id", Type: "string"},
		},
		Dimension: dim,
	}
}

// VectorRecord 存储向量信息
type VectorRecord struct {
	Text    string    `json:"text"`
	Vector  []float32 `json:"vector"`
	DocName string    `json:"doc_name"`
	ChunkID string    `json:"chunk_id"`
}

// SearchResult 检索结果，Distance 越小越相似
type SearchResult struct {
	Record   VectorRecord
	Distance float32
}

// MetadataFilter 元数据过滤条件
type MetadataFilter struct {
	DocName string `json:"doc_name" validate:"required"`
}

// Matches 判断记录是否满足过滤条件，nil 过滤器匹配所有记录
func (f *MetadataFilter) Matches(r VectorRecord) bool {
	if f == nil {
		return true
	}
	return f.DocName == "" || r.DocName == f.DocName
}

func (f *MetadataFilter) String() string {
	if f == nil {
		return "{}"
	}
	return fmt.Sprintf("{'doc_name': '%s'}", f.DocName)
}

// StoreState 向量库连接状态
type StoreState int

const (
	StateDisconnected StoreState = iota
	StateConnected
	StateTableSelected
)

func (s StoreState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateTableSelected:
		return "table_selected"
	default:
		return "disconnected"
	}
}

// VectorStore 向量存储抽象
// 未连接或未选表时的读写会立即返回 NOT_CONNECTED / NO_TABLE_SELECTED 错误
type VectorStore interface {
	Connect(path string) error
	TableExists(name string) (bool, error)
	CreateTable(name string, schema Schema) error
	SelectTable(name string) error
	ListTables() ([]string, error)
	CountRows() (int, error)
	Insert(ctx context.Context, record VectorRecord) error
	Search(ctx context.Context, vector []float32, limit int, filter *MetadataFilter) ([]SearchResult, error)
	State() StoreState
	TableName() string
	Close() error
}
