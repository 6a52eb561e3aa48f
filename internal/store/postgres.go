package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherdial/cipherdial/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS identities (
	id BIGSERIAL PRIMARY KEY,
	phone TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS dialogs (
	id BIGSERIAL PRIMARY KEY,
	user1_id BIGINT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	user2_id BIGINT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT dialog_pair_unique UNIQUE (user1_id, user2_id),
	CONSTRAINT dialog_user1_lt_user2 CHECK (user1_id < user2_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	dialog_id BIGINT NOT NULL REFERENCES dialogs(id) ON DELETE CASCADE,
	sender_id BIGINT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	ciphertext TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'text' CHECK (content_type IN ('text', 'image')),
	media_mime TEXT NOT NULL DEFAULT '',
	media_name TEXT NOT NULL DEFAULT '',
	media_size BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dialogs_user1 ON dialogs(user1_id);
CREATE INDEX IF NOT EXISTS idx_dialogs_user2 ON dialogs(user2_id);
CREATE INDEX IF NOT EXISTS idx_messages_dialog_created ON messages(dialog_id, created_at);
`

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// bootstraps the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isPgUniqueViolation reports whether the error is a unique constraint
// violation (SQLSTATE 23505).
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateIdentity creates a new identity record. The insert is a single row,
// so account creation is atomic; a duplicate phone maps to ErrPhoneTaken.
func (s *PostgresStore) CreateIdentity(ctx context.Context, phone, passwordHash, firstName, lastName string) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO identities (phone, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, phone, password_hash, first_name, last_name, created_at, updated_at
	`, phone, passwordHash, firstName, lastName).Scan(
		&ident.ID,
		&ident.Phone,
		&ident.PasswordHash,
		&ident.FirstName,
		&ident.LastName,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	return ident, nil
}

// GetIdentityByID retrieves an identity by id.
func (s *PostgresStore) GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	return s.getIdentity(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM identities WHERE id = $1
	`, id)
}

// GetIdentityByPhone retrieves an identity by exact phone number.
func (s *PostgresStore) GetIdentityByPhone(ctx context.Context, phone string) (*models.Identity, error) {
	return s.getIdentity(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM identities WHERE phone = $1
	`, phone)
}

func (s *PostgresStore) getIdentity(ctx context.Context, query string, arg interface{}) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&ident.ID,
		&ident.Phone,
		&ident.PasswordHash,
		&ident.FirstName,
		&ident.LastName,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ident, nil
}

// UpdateIdentityName applies a partial name update and returns the updated
// identity, or (nil, nil) if the identity no longer exists.
func (s *PostgresStore) UpdateIdentityName(ctx context.Context, id int64, upd NameUpdate) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx, `
		UPDATE identities
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, phone, password_hash, first_name, last_name, created_at, updated_at
	`, id, upd.FirstName, upd.LastName).Scan(
		&ident.ID,
		&ident.Phone,
		&ident.PasswordHash,
		&ident.FirstName,
		&ident.LastName,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ident, nil
}

// SearchIdentities finds identities whose phone contains the fragment,
// excluding the viewer.
func (s *PostgresStore) SearchIdentities(ctx context.Context, phoneFragment string, excludeID int64, limit int) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, phone, password_hash, first_name, last_name, created_at, updated_at
		FROM identities
		WHERE phone LIKE '%' || $1 || '%' AND id != $2
		ORDER BY id
		LIMIT $3
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
func (s *PostgresStore) CountIdentities(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}

// GetOrCreateDialog returns the dialog for the unordered pair, creating it on
// first contact. The pair is canonicalized and the insert races through
// ON CONFLICT DO NOTHING; a lost race falls back to reading the winning row.
func (s *PostgresStore) GetOrCreateDialog(ctx context.Context, userA, userB int64) (*models.Dialog, bool, error) {
	u1, u2 := canonicalPair(userA, userB)

	dialog := &models.Dialog{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dialogs (user1_id, user2_id)
		VALUES ($1, $2)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
		RETURNING id, user1_id, user2_id, created_at
	`, u1, u2).Scan(
		&dialog.ID,
		&dialog.User1ID,
		&dialog.User2ID,
		&dialog.CreatedAt,
	)
	if err == nil {
		return dialog, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Conflict: another request won the insert; read its row.
	err = s.pool.QueryRow(ctx, `
		SELECT id, user1_id, user2_id, created_at
		FROM dialogs WHERE user1_id = $1 AND user2_id = $2
	`, u1, u2).Scan(
		&dialog.ID,
		&dialog.User1ID,
		&dialog.User2ID,
		&dialog.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	return dialog, false, nil
}

// GetDialog retrieves a dialog by id.
func (s *PostgresStore) GetDialog(ctx context.Context, id int64) (*models.Dialog, error) {
	dialog := &models.Dialog{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user1_id, user2_id, created_at
		FROM dialogs WHERE id = $1
	`, id).Scan(
		&dialog.ID,
		&dialog.User1ID,
		&dialog.User2ID,
		&dialog.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return dialog, nil
}

// ListDialogsForIdentity returns every dialog the identity participates in,
// newest-first.
func (s *PostgresStore) ListDialogsForIdentity(ctx context.Context, identityID int64) ([]models.Dialog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user1_id, user2_id, created_at
		FROM dialogs
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY created_at DESC, id DESC
	`, identityID)
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
func (s *PostgresStore) CountDialogs(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dialogs`).Scan(&count)
	return count, err
}

// CreateMessage appends a message to the dialog's log. Id and created_at are
// assigned by the database.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	out := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at
	`, msg.DialogID, msg.SenderID, msg.Ciphertext, msg.ContentType, msg.MediaMime, msg.MediaName, msg.MediaSize).Scan(
		&out.ID,
		&out.DialogID,
		&out.SenderID,
		&out.Ciphertext,
		&out.ContentType,
		&out.MediaMime,
		&out.MediaName,
		&out.MediaSize,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns messages in the dialog matching the filter,
// oldest-first, plus the total matching count before limit/offset.
func (s *PostgresStore) ListMessages(ctx context.Context, dialogID int64, f MessageFilter) ([]models.Message, int, error) {
	where := `dialog_id = $1`
	args := []interface{}{dialogID}
	if f.After != nil {
		where += ` AND created_at > $2`
		args = append(args, *f.After)
	}

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `
		SELECT id, dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at
		FROM messages WHERE ` + where + `
		ORDER BY created_at ASC, id ASC
		LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *PostgresStore) LatestMessage(ctx context.Context, dialogID int64) (*models.Message, error) {
	m := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, dialog_id, sender_id, ciphertext, content_type, media_mime, media_name, media_size, created_at
		FROM messages WHERE dialog_id = $1
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// CountMessages returns the total number of messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// LastMessageTime returns the timestamp of the most recent message, or nil
// when none exist.
func (s *PostgresStore) LastMessageTime(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
