package knowledge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/logger"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const storeFileName = "vectors.db"

var (
	bucketRecords = []byte("records")
	bucketIDs     = []byte("ids")
	keySchema     = []byte("schema")
)

// BoltVectorStore 基于 bbolt 的目录型向量库，每张表对应一个 bucket
type BoltVectorStore struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	path   string
	table  string
	schema Schema
	// borrowed 为 true 时连接属于另一个实例，Close 不关闭底层文件
	borrowed bool
}

// NewBoltVectorStore 创建未连接的向量库
func NewBoltVectorStore() *BoltVectorStore {
	return &BoltVectorStore{}
}

// Fork 返回共享当前连接、独立选表的视图
func (s *BoltVectorStore) Fork() *BoltVectorStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &BoltVectorStore{db: s.db, path: s.path, borrowed: s.db != nil}
}

// Connect 打开目录下的数据库文件，重复连接会替换当前连接并清空选表
func (s *BoltVectorStore) Connect(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.release()

	if err := os.MkdirAll(path, 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConnection, "vector store path inaccessible: "+path, err)
	}

	db, err := bbolt.Open(filepath.Join(path, storeFileName), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConnection, "failed to open vector store at "+path, err)
	}

	s.db = db
	s.path = path
	s.borrowed = false
	logger.Info("vector store connected", zap.String("path", path))
	return nil
}

// TableExists 检查表是否存在
func (s *BoltVectorStore) TableExists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return false, errNotConnected()
	}

	exists := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return exists, err
}

// CreateTable 创建表并写入表结构
func (s *BoltVectorStore) CreateTable(name string, schema Schema) error {
	if name == "" {
		return apperrors.NewInvalidInputError("table", "name is empty")
	}
	if schema.Dimension <= 0 {
		return apperrors.NewInvalidInputError("schema", "vector dimension must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return errNotConnected()
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		tb, err := tx.CreateBucket([]byte(name))
		if err != nil {
			return err
		}
		if _, err := tb.CreateBucket(bucketRecords); err != nil {
			return err
		}
		if _, err := tb.CreateBucket(bucketIDs); err != nil {
			return err
		}
		return tb.Put(keySchema, data)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStorage, fmt.Sprintf("failed to create table %s", name), err)
	}

	logger.Info("vector table created", zap.String("table", name), zap.Int("dimension", schema.Dimension))
	return nil
}

// SelectTable 选择当前表，不存在时返回 RESOURCE_NOT_FOUND
func (s *BoltVectorStore) SelectTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errNotConnected()
	}

	var schema Schema
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb := tx.Bucket([]byte(name))
		if tb == nil {
			return apperrors.NewNotFoundError("table " + name)
		}
		return json.Unmarshal(tb.Get(keySchema), &schema)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.Wrap(apperrors.ErrCodeStorage, "failed to read schema of table "+name, err)
	}

	s.table = name
	s.schema = schema
	return nil
}

// ListTables 列出所有表
func (s *BoltVectorStore) ListTables() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotConnected()
	}

	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// CountRows 返回当前表记录数
func (s *BoltVectorStore) CountRows() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireTable(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(s.table)).Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return count, err
}

// Insert 追加记录；相同 chunk_id 已存在时视为成功
func (s *BoltVectorStore) Insert(ctx context.Context, record VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireTable(); err != nil {
		return err
	}
	if len(record.Vector) != s.schema.Dimension {
		return apperrors.Wrap(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("record vector has %d dimensions, table %s expects %d", len(record.Vector), s.table, s.schema.Dimension), nil)
	}
	if record.ChunkID == "" {
		record.ChunkID = ChunkID(record.DocName, record.Text)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		tb := tx.Bucket([]byte(s.table))
		ids := tb.Bucket(bucketIDs)
		if ids.Get([]byte(record.ChunkID)) != nil {
			return nil
		}

		records := tb.Bucket(bucketRecords)
		seq, err := records.NextSequence()
		if err != nil {
			return err
		}
		key := itob(seq)
		if err := records.Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(record.ChunkID), key)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStorage, "failed to insert record", err)
	}
	return nil
}

// Search 暴力计算平方欧氏距离，按距离升序返回；距离相同时保持插入顺序
func (s *BoltVectorStore) Search(ctx context.Context, vector []float32, limit int, filter *MetadataFilter) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireTable(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, apperrors.NewInvalidInputError("limit", "must be positive")
	}
	if len(vector) != s.schema.Dimension {
		return nil, apperrors.Wrap(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, table %s expects %d", len(vector), s.table, s.schema.Dimension), nil)
	}

	var results []SearchResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(s.table)).Bucket(bucketRecords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record VectorRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupted record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if !filter.Matches(record) {
				continue
			}
			results = append(results, SearchResult{
				Record:   record,
				Distance: squaredL2(vector, record.Vector),
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeStorage, "vector search failed", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// State 返回当前连接状态
func (s *BoltVectorStore) State() StoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.db == nil:
		return StateDisconnected
	case s.table == "":
		return StateConnected
	default:
		return StateTableSelected
	}
}

// TableName 返回当前表名
func (s *BoltVectorStore) TableName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Close 关闭连接
func (s *BoltVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.release()
}

func (s *BoltVectorStore) release() error {
	var err error
	if s.db != nil && !s.borrowed {
		if err = s.db.Close(); err != nil {
			logger.Warn("failed to close vector store connection", zap.Error(err))
		}
	}
	s.db = nil
	s.table = ""
	s.borrowed = false
	return err
}

func (s *BoltVectorStore) requireTable() error {
	if s.db == nil {
		return errNotConnected()
	}
	if s.table == "" {
		return apperrors.NewSystemError(apperrors.ErrCodeNoTableSelected, "no table selected")
	}
	return nil
}

func errNotConnected() error {
	return apperrors.NewSystemError(apperrors.ErrCodeNotConnected, "vector store is not connected")
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
