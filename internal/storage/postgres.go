package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/xaenox/modmail/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresStorage stores every record as a JSONB document keyed by its
// identity columns, with side columns only where queries need them.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetThread(ctx context.Context, guildID, threadID string) (*models.Thread, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM threads WHERE guild_id = $1 AND id = $2`, guildID, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %v", err)
	}

	var thread models.Thread
	if err := json.Unmarshal(raw, &thread); err != nil {
		return nil, fmt.Errorf("error decoding thread: %v", err)
	}
	return &thread, nil
}

func (s *PostgresStorage) PutThread(ctx context.Context, thread *models.Thread) error {
	raw, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("error encoding thread: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threads (guild_id, id, status, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, id) DO UPDATE SET status = $3, data = $4`,
		thread.GuildID, thread.ID, string(thread.Status), raw)
	if err != nil {
		return fmt.Errorf("error storing thread: %v", err)
	}
	return nil
}

// UpdateThread applies fn to the thread inside a transaction holding a row
// lock, so concurrent updates of the same thread serialize.
func (s *PostgresStorage) UpdateThread(ctx context.Context, guildID, threadID string, fn func(*models.Thread) error) (*models.Thread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM threads WHERE guild_id = $1 AND id = $2 FOR UPDATE`, guildID, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s not found in guild %s", threadID, guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("error locking thread: %v", err)
	}

	var thread models.Thread
	if err := json.Unmarshal(raw, &thread); err != nil {
		return nil, fmt.Errorf("error decoding thread: %v", err)
	}

	if err := fn(&thread); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(&thread)
	if err != nil {
		return nil, fmt.Errorf("error encoding thread: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET status = $3, data = $4 WHERE guild_id = $1 AND id = $2`,
		guildID, threadID, string(thread.Status), updated); err != nil {
		return nil, fmt.Errorf("error updating thread: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing thread update: %v", err)
	}
	return &thread, nil
}

func (s *PostgresStorage) ListThreads(ctx context.Context, guildID string, status models.ThreadStatus) ([]*models.Thread, error) {
	query := `SELECT data FROM threads WHERE guild_id = $1`
	args := []any{guildID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying threads: %v", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("error scanning thread: %v", err)
		}
		var thread models.Thread
		if err := json.Unmarshal(raw, &thread); err != nil {
			return nil, fmt.Errorf("error decoding thread: %v", err)
		}
		threads = append(threads, &thread)
	}
	return threads, rows.Err()
}

func (s *PostgresStorage) GetConversation(ctx context.Context, guildID, userID string) (*models.ConversationPointer, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM conversations WHERE guild_id = $1 AND user_id = $2`, guildID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %v", err)
	}

	var ptr models.ConversationPointer
	if err := json.Unmarshal(raw, &ptr); err != nil {
		return nil, fmt.Errorf("error decoding conversation: %v", err)
	}
	return &ptr, nil
}

func (s *PostgresStorage) PutConversation(ctx context.Context, ptr *models.ConversationPointer) error {
	raw, err := json.Marshal(ptr)
	if err != nil {
		return fmt.Errorf("error encoding conversation: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (guild_id, user_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET data = $3`,
		ptr.GuildID, ptr.UserID, raw)
	if err != nil {
		return fmt.Errorf("error storing conversation: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetUserRecord(ctx context.Context, userID string) (*models.UserRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM user_records WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserRecord{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user record: %v", err)
	}

	var rec models.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("error decoding user record: %v", err)
	}
	return &rec, nil
}

func (s *PostgresStorage) UpdateUserRecord(ctx context.Context, userID string, fn func(*models.UserRecord) error) (*models.UserRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	// Ensure the row exists before locking it
	empty, err := json.Marshal(&models.UserRecord{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("error encoding user record: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_records (user_id, data) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, empty); err != nil {
		return nil, fmt.Errorf("error creating user record: %v", err)
	}

	var raw []byte
	if err := tx.QueryRowContext(ctx,
		`SELECT data FROM user_records WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw); err != nil {
		return nil, fmt.Errorf("error locking user record: %v", err)
	}

	var rec models.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("error decoding user record: %v", err)
	}

	if err := fn(&rec); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("error encoding user record: %v", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_records SET data = $2 WHERE user_id = $1`, userID, updated); err != nil {
		return nil, fmt.Errorf("error updating user record: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing user record update: %v", err)
	}
	return &rec, nil
}

func (s *PostgresStorage) GetGuildPolicy(ctx context.Context, guildID string) (*models.GuildPolicy, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM guild_policies WHERE guild_id = $1`, guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying guild policy: %v", err)
	}

	var policy models.GuildPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return nil, fmt.Errorf("error decoding guild policy: %v", err)
	}
	return &policy, nil
}

func (s *PostgresStorage) PutGuildPolicy(ctx context.Context, policy *models.GuildPolicy) error {
	raw, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("error encoding guild policy: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guild_policies (guild_id, enabled, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET enabled = $2, data = $3`,
		policy.GuildID, policy.Enabled, raw)
	if err != nil {
		return fmt.Errorf("error storing guild policy: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ListEnabledGuilds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM guild_policies WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("error querying enabled guilds: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning guild id: %v", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GloballyBlocked(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM global_blocks WHERE user_id = $1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying global block: %v", err)
	}
	return true, nil
}

func (s *PostgresStorage) SetGlobalBlock(ctx context.Context, userID string, blocked bool) error {
	var err error
	if blocked {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO global_blocks (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING`, userID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM global_blocks WHERE user_id = $1`, userID)
	}
	if err != nil {
		return fmt.Errorf("error updating global block: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetSnippet(ctx context.Context, guildID, name string) (*models.Snippet, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snippets WHERE guild_id = $1 AND name = $2`, guildID, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying snippet: %v", err)
	}

	var snippet models.Snippet
	if err := json.Unmarshal(raw, &snippet); err != nil {
		return nil, fmt.Errorf("error decoding snippet: %v", err)
	}
	return &snippet, nil
}

func (s *PostgresStorage) PutSnippet(ctx context.Context, snippet *models.Snippet) error {
	raw, err := json.Marshal(snippet)
	if err != nil {
		return fmt.Errorf("error encoding snippet: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snippets (guild_id, name, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, name) DO UPDATE SET data = $3`,
		snippet.GuildID, snippet.Name, raw)
	if err != nil {
		return fmt.Errorf("error storing snippet: %v", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteSnippet(ctx context.Context, guildID, name string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM snippets WHERE guild_id = $1 AND name = $2`, guildID, name); err != nil {
		return fmt.Errorf("error deleting snippet: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ListSnippets(ctx context.Context, guildID string) ([]*models.Snippet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM snippets WHERE guild_id = $1 ORDER BY name`, guildID)
	if err != nil {
		return nil, fmt.Errorf("error querying snippets: %v", err)
	}
	defer rows.Close()

	var out []*models.Snippet
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("error scanning snippet: %v", err)
		}
		var snippet models.Snippet
		if err := json.Unmarshal(raw, &snippet); err != nil {
			return nil, fmt.Errorf("error decoding snippet: %v", err)
		}
		out = append(out, &snippet)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) IncrementSnippetUsage(ctx context.Context, guildID, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE snippets
		SET data = jsonb_set(data, '{usage_count}', (COALESCE((data->>'usage_count')::int, 0) + 1)::text::jsonb)
		WHERE guild_id = $1 AND name = $2`, guildID, name)
	if err != nil {
		return fmt.Errorf("error incrementing snippet usage: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if affected == 0 {
		return fmt.Errorf("snippet %s not found in guild %s", name, guildID)
	}
	return nil
}

func (s *PostgresStorage) IncrementThreadsCreated(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE global_stats SET threads_created = threads_created + 1
		WHERE id = 1
		RETURNING threads_created`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("error incrementing thread counter: %v", err)
	}
	return total, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
