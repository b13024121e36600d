package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// HistoryStore is the memory store: free-text interaction history plus the
// structured records the coordinator writes for later analysis.
type HistoryStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			goal_id INTEGER,
			summary TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_goal ON memory_records(goal_id);`,
	}
	if err := migrate(db, queries); err != nil {
		return nil, err
	}
	return &HistoryStore{DB: db, now: time.Now}, nil
}

func (h *HistoryStore) AddMessage(chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := h.DB.Exec(query, chatID, role, content)
	return wrap("add message", err)
}

func (h *HistoryStore) ClearHistory(chatID string) error {
	query := `DELETE FROM messages WHERE chat_id = ?`
	_, err := h.DB.Exec(query, chatID)
	return wrap("clear history", err)
}

func (h *HistoryStore) GetHistory(chatID string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, wrap("get history", err)
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, wrap("get history", err)
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "human":
			msgRole = llms.ChatMessageTypeHuman
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.MessageContent{
			Role: msgRole,
			Parts: []llms.ContentPart{
				llms.TextPart(content),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("get history", err)
	}

	// Reverse to get chronological order
	reverse(history)
	return history, nil
}

// ReadRecent returns the text of the latest messages across all chats, oldest first.
func (h *HistoryStore) ReadRecent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := h.DB.QueryContext(ctx, `SELECT content FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("read recent", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, wrap("read recent", err)
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("read recent", err)
	}
	reverse(out)
	return out, nil
}

// Write appends a structured record.
func (h *HistoryStore) Write(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = h.now()
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}
	var goalID any
	if rec.GoalID != 0 {
		goalID = rec.GoalID
	}
	_, err = h.DB.ExecContext(ctx,
		`INSERT INTO memory_records (id, kind, goal_id, summary, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, goalID, rec.Summary, string(data), formatTime(rec.CreatedAt))
	return wrap("write record", err)
}

// Records returns the records written for a goal, oldest first.
func (h *HistoryStore) Records(ctx context.Context, goalID int64) ([]Record, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT id, kind, goal_id, summary, data, created_at FROM memory_records WHERE goal_id = ? ORDER BY created_at, id`, goalID)
	if err != nil {
		return nil, wrap("list records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			gid       sql.NullInt64
			data      string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &gid, &rec.Summary, &data, &createdAt); err != nil {
			return nil, wrap("list records", err)
		}
		rec.GoalID = gid.Int64
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, fmt.Errorf("decode record data: %w", err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list records", err)
	}
	return out, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
