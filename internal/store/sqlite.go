package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/cipherdial/cipherdial/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development and
// test backend; production runs PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/cipherdial.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/cipherdial.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. The dialog constraints
// (distinct users, canonical order, unique pair) mirror the application-level
// checks so neither can drift alone.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS dialogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user1_id INTEGER NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		user2_id INTEGER NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user1_id, user2_id),
		CHECK (user1_id < user2_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dialog_id INTEGER NOT NULL REFERENCES dialogs(id) ON DELETE CASCADE,
		sender_id INTEGER NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		ciphertext TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'text' CHECK (content_type IN ('text', 'image')),
		media_mime TEXT NOT NULL DEFAULT '',
		media_name TEXT NOT NULL DEFAULT '',
		media_size INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dialogs_user1 ON dialogs(user1_id);
	CREATE INDEX IF NOT EXISTS idx_dialogs_user2 ON dialogs(user2_id);
	CREATE INDEX IF NOT EXISTS idx_messages_dialog_created ON messages(dialog_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateIdentity creates a new identity record.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, phone, passwordHash, firstName, lastName string) (*models.Identity, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (phone, password_hash, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, phone, passwordHash, firstName, lastName, now, now)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetIdentityByID(ctx, id)
}

// GetIdentityByID retrieves an identity by id.
func (s *SQLiteStore) GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	return s.getIdentity(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM identities WHERE id = ?
	`, id)
}

// GetIdentityByPhone retrieves an identity by exact phone number.
func (s *SQLiteStore) GetIdentityByPhone(ctx context.Context, phone string) (*models.Identity, error) {
	return s.getIdentity(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM identities WHERE phone = ?
	`, phone)
}

func (s *SQLiteStore) getIdentity(ctx context.Context, query string, arg interface{}) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&ident.ID,
		&ident.Phone,
		&ident.PasswordHash,
		&ident.FirstName,
		&ident.LastName,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ident, nil
}

// UpdateIdentityName applies a partial name update.
func (s *SQLiteStore) UpdateIdentityName(ctx context.Context, id int64, upd NameUpdate) (*models.Identity, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET first_name = COALESCE(?, first_name),
		    last_name = COALESCE(?, last_name),
		    updated_at = ?
		WHERE id = ?
	`, upd.FirstName, upd.LastName, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	return s.GetIdentityByID(ctx, id)
}

// SearchIdentities finds identities whose phone contains the fragment,
// excluding the viewer.
func (s *SQLiteStore) SearchIdentities(ctx context.Context, phoneFragment string, excludeID int64, limit int) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM identities
		WHERE phone LIKE '%' || ? || '%' AND id != ?
		ORDER BY id
		LIMIT ?
	`, phoneFragment, excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idents []models.Identity
	for rows.Next() {
		var ident models.Identity
		err := rows.Scan(
			&ident.ID,
			&ident.Phone,
			&ident.PasswordHash,
			&ident.FirstName,
			&ident.LastName,
			&ident.CreatedAt,
			&ident.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

// CountIdentities returns the total number of registered identities.
func (s *SQLiteStore) CountIdentities(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}

// GetOrCreateDialog returns the dialog for the unordered pair, creating it on
// first contact. INSERT OR IGNORE plus a follow-up read makes the operation
// idempotent under concurrent duplicate requests.
func (s *SQLiteStore) GetOrCreateDialog(ctx context.Context, userA, userB int64) (*models.Dialog, bool, error) {
	u1, u2 := canonicalPair(userA, userB)

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO dialogs (user1_id, user2_id, created_at)
		VALUES (?, ?, ?)
	`, u1, u2, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	created := affected > 0

	dialog := &models.Dialog{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user1_id, user2_id, created_at
		FROM dialogs WHERE user1_id = ? AND user2_id = ?
	`, u1, u2).Scan(
		&dialog.ID,
		&dialog.User1ID,
		&dialog.User2ID,
		&dialog.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	return dialog, created, nil
}

// GetDialog retrieves a dialog by id.
func (s *SQLiteStore) GetDialog(ctx context.Context, id int64) (*models.Dialog, error) {
	dialog := &models.Dialog{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user1_id, user2_id, created_at
		FROM dialogs WHERE id = ?
	`, id).Scan(
		&dialog.ID,
		&dialog.User1ID,
		&dialog.User2ID,
		&dialog.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return dialog, nil
}

// ListDialogsForIdentity returns every dialog the identity participates in,
// newest-first.
func (s *SQLiteStore) ListDialogsForIdentity(ctx context.Context, identityID int64) ([]models.Dialog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user1_id, user2_id, created_at
		FROM dialogs
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY created_at DESC, id DESC
	`, identityID, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dialogs []models.Dialog
	for rows.Next() {
		var d models.Dialog
		if err := rows.Scan(&d.ID, &d.User1ID, &d.User2ID, &d.CreatedAt); err != nil {
			return nil, err
		}
		dialogs = append(dialogs, d)
	}
	return dialogs, rows.Err()
}

// CountDialogs returns the total number of dialogs.
func (s *SQLiteStore) CountDialogs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dialogs`).Scan(&count)
	return count, err
}

// CreateMessage appends a message to the dialog's log.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.DialogID, msg.SenderID, msg.Ciphertext, msg.ContentType, msg.MediaMime, msg.MediaName, msg.MediaSize, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.getMessage(ctx, id)
}

func (s *SQLiteStore) getMessage(ctx context.Context, id int64) (*models.Message, error) {
	m := &models.Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at
		FROM messages WHERE id = ?
	`, id).Scan(
		&m.ID,
		&m.DialogID,
		&m.SenderID,
		&m.Ciphertext,
		&m.ContentType,
		&m.MediaMime,
		&m.MediaName,
		&m.MediaSize,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListMessages returns messages in the dialog matching the filter,
// oldest-first, plus the total matching count before limit/offset.
func (s *SQLiteStore) ListMessages(ctx context.Context, dialogID int64, f MessageFilter) ([]models.Message, int, error) {
	where := `dialog_id = ?`
	args := []interface{}{dialogID}
	if f.After != nil {
		where += ` AND created_at > ?`
		args = append(args, f.After.UTC())
	}

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at
		FROM messages WHERE ` + where + `
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.DialogID,
			&m.SenderID,
			&m.Ciphertext,
			&m.ContentType,
			&m.MediaMime,
			&m.MediaName,
			&m.MediaSize,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, m)
	}
	return msgs, total, rows.Err()
}

// LatestMessage returns the most recent message in the dialog, or (nil, nil)
// when the dialog is empty.
func (s *SQLiteStore) LatestMessage(ctx context.Context, dialogID int64) (*models.Message, error) {
	m := &models.Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at
		FROM messages WHERE dialog_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, dialogID).Scan(
		&m.ID,
		&m.DialogID,
		&m.SenderID,
		&m.Ciphertext,
		&m.ContentType,
		&m.MediaMime,
		&m.MediaName,
		&m.MediaSize,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// CountMessages returns the total number of messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// LastMessageTime returns the timestamp of the most recent message, or nil
// when none exist.
func (s *SQLiteStore) LastMessageTime(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
