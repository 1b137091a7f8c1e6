package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

const (
	ToolSearchDocuments  = "search_documents"
	ToolSearchWithFilter = "search_with_filter"
)

// 可过滤的元数据字段
var filterableFields = map[string]bool{"doc_name": true}

var validate = validator.New()

// SearchAction 模型选择的检索动作：PlainSearch 或 FilteredSearch
type SearchAction interface {
	SearchQuery() string
	SearchFilter() *knowledge.MetadataFilter
}

// PlainSearch 普通相似度检索
type PlainSearch struct {
	Query string `validate:"required"`
}

func (p PlainSearch) SearchQuery() string                     { return p.Query }
func (p PlainSearch) SearchFilter() *knowledge.MetadataFilter { return nil }

// FilteredSearch 带元数据过滤的检索
type FilteredSearch struct {
	Query  string `validate:"required"`
	Filter knowledge.MetadataFilter
}

func (f FilteredSearch) SearchQuery() string { return f.Query }
func (f FilteredSearch) SearchFilter() *knowledge.MetadataFilter {
	filter := f.Filter
	return &filter
}

type searchArgs struct {
	Query          string                     `json:"query"`
	MetadataFilter map[string]json.RawMessage `json:"metadata_filter"`
}

// searchTools 提供给模型的两个检索工具
func searchTools() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolSearchDocuments,
				Description: "Поиск документов по текстовому запросу",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"query": {Type: jsonschema.String, Description: "Текстовый запрос для поиска"},
					},
					Required: []string{"query"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolSearchWithFilter,
				Description: "Поиск документов с фильтрацией по метаданным",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"query": {Type: jsonschema.String, Description: "Текстовый запрос для поиска"},
						"metadata_filter": {
							Type:        jsonschema.Object,
							Description: "Фильтр по метаданным",
							Properties: map[string]jsonschema.Definition{
								"doc_name": {Type: jsonschema.String, Description: "Имя документа"},
							},
							Required: []string{"doc_name"},
						},
					},
					Required: []string{"query", "metadata_filter"},
				},
			},
		},
	}
}

// DecodeToolCall 将工具调用解析为检索动作
// 未知工具返回错误；参数缺失时回退到用户原始问题；过滤条件不合法时降级为普通检索
func DecodeToolCall(call openai.ToolCall, fallbackQuery string) (SearchAction, error) {
	name := call.Function.Name
	if name != ToolSearchDocuments && name != ToolSearchWithFilter {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	var args searchArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		logger.Warn("malformed tool arguments, using raw query",
			zap.String("tool", name),
			zap.Error(err))
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		query = fallbackQuery
	}

	plain := PlainSearch{Query: query}
	if name == ToolSearchDocuments {
		return plain, validate.Struct(plain)
	}

	filter, err := decodeFilter(args.MetadataFilter)
	if err != nil {
		logger.Warn("invalid metadata filter, falling back to plain search",
			zap.String("query", query),
			zap.Error(err))
		return plain, validate.Struct(plain)
	}

	action := FilteredSearch{Query: query, Filter: filter}
	if err := validate.Struct(action); err != nil {
		logger.Warn("filtered search rejected, falling back to plain search",
			zap.String("query", query),
			zap.Error(err))
		return plain, validate.Struct(plain)
	}
	return action, nil
}

func decodeFilter(raw map[string]json.RawMessage) (knowledge.MetadataFilter, error) {
	var filter knowledge.MetadataFilter
	if len(raw) == 0 {
		return filter, fmt.Errorf("empty metadata filter")
	}
	for field, value := range raw {
		if !filterableFields[field] {
			return filter, fmt.Errorf("field %q is not filterable", field)
		}
		if err := json.Unmarshal(value, &filter.DocName); err != nil {
			return filter, fmt.Errorf("field %q must be a string: %w", field, err)
		}
	}
	return filter, validate.Struct(filter)
}
