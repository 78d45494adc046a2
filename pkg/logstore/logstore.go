// Package logstore 将请求结果（含能耗遥测）持久化到 SQLite
//
// CLI 每次完成请求后写入一条记录，logs 子命令据此展示历史与能耗累计：
//
//	store, err := logstore.Open("~/.local/share/neuralwatt/logs.db")
//	id, err := store.Save(ctx, logstore.FromResponse("hi", "", resp))
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("log record not found")

// Record 一次请求的日志记录
type Record struct {
	ID           string         `json:"id"`
	Time         time.Time      `json:"time"`
	Model        string         `json:"model"`
	System       string         `json:"system,omitempty"`
	Prompt       string         `json:"prompt"`
	Content      string         `json:"content"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Terminated   bool           `json:"terminated"`
	Usage        map[string]any `json:"usage,omitempty"`
	Energy       map[string]any `json:"energy,omitempty"`
}

// FromResponse 由聚合响应构建记录
func FromResponse(prompt, system string, resp *llm.Response) *Record {
	return &Record{
		Model:        resp.Model,
		System:       system,
		Prompt:       prompt,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Terminated:   resp.Terminated,
		Usage:        resp.Usage,
		Energy:       resp.Energy,
	}
}

// Joules 记录中的 energy_joules，缺失时 ok 为 false
func (r *Record) Joules() (float64, bool) {
	v, ok := r.Energy["energy_joules"].(float64)
	return v, ok
}

// ═══════════════════════════════════════════════════════════════════════════
// Store
// ═══════════════════════════════════════════════════════════════════════════

// Store SQLite 日志存储
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件
//
// path 为 ":memory:" 时使用内存数据库。
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接：内存数据库按连接隔离，写入也无需并发
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// DefaultPath 默认数据库路径：$XDG_DATA_HOME/neuralwatt/logs.db
func DefaultPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "neuralwatt-logs.db"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "neuralwatt", "logs.db")
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		model TEXT NOT NULL,
		system TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		content TEXT NOT NULL,
		finish_reason TEXT NOT NULL DEFAULT '',
		terminated INTEGER NOT NULL,
		usage TEXT,
		energy TEXT,
		energy_joules REAL
	);

	CREATE INDEX IF NOT EXISTS idx_responses_created_at ON responses(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Save 写入记录，返回记录 ID
//
// ID 为空时生成 UUID，Time 为零值时使用当前时间。
func (s *Store) Save(ctx context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", errors.New("cannot store nil record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	usage, err := encodeMap(rec.Usage)
	if err != nil {
		return "", fmt.Errorf("failed to marshal usage: %w", err)
	}
	energy, err := encodeMap(rec.Energy)
	if err != nil {
		return "", fmt.Errorf("failed to marshal energy: %w", err)
	}

	var joules sql.NullFloat64
	if v, ok := rec.Joules(); ok {
		joules = sql.NullFloat64{Float64: v, Valid: true}
	}

	query := `INSERT INTO responses
		(id, created_at, model, system, prompt, content, finish_reason, terminated, usage, energy, energy_joules)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Time.UnixNano(), rec.Model, rec.System, rec.Prompt, rec.Content,
		rec.FinishReason, rec.Terminated, usage, energy, joules)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return rec.ID, nil
}

const selectColumns = `SELECT id, created_at, model, system, prompt, content, finish_reason, terminated, usage, energy FROM responses`

// Get 按 ID 读取记录
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List 按时间倒序返回最近的记录，limit <= 0 时返回全部
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	query := selectColumns + ` ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// EnergyTotal 能耗累计
type EnergyTotal struct {
	Requests int     `json:"requests"` // 记录总数
	Measured int     `json:"measured"` // 带能耗数据的记录数
	Joules   float64 `json:"joules"`   // energy_joules 之和
}

// TotalEnergy 统计所有记录的能耗
func (s *Store) TotalEnergy(ctx context.Context) (EnergyTotal, error) {
	var total EnergyTotal
	var joules sql.NullFloat64
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(energy_joules), SUM(energy_joules) FROM responses`)
	if err := row.Scan(&total.Requests, &total.Measured, &joules); err != nil {
		return EnergyTotal{}, fmt.Errorf("failed to sum energy: %w", err)
	}
	total.Joules = joules.Float64
	return total, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 编解码
// ═══════════════════════════════════════════════════════════════════════════

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		createdAt  int64
		terminated bool
		usage      sql.NullString
		energy     sql.NullString
	)
	err := row.Scan(&rec.ID, &createdAt, &rec.Model, &rec.System, &rec.Prompt, &rec.Content,
		&rec.FinishReason, &terminated, &usage, &energy)
	if err != nil {
		return nil, err
	}

	rec.Time = time.Unix(0, createdAt)
	rec.Terminated = terminated
	if rec.Usage, err = decodeMap(usage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal usage: %w", err)
	}
	if rec.Energy, err = decodeMap(energy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal energy: %w", err)
	}
	return &rec, nil
}

func encodeMap(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
