package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// UpsertUser inserts or updates a member. An empty ID gets a fresh UUID.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "r1"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = nowUTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, game_user_id, nickname, role,
			discord_webhook, telegram_chat_id, notify_email, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			game_user_id     = excluded.game_user_id,
			nickname         = excluded.nickname,
			role             = excluded.role,
			discord_webhook  = excluded.discord_webhook,
			telegram_chat_id = excluded.telegram_chat_id,
			notify_email     = excluded.notify_email`,
		u.ID, u.GameUserID, u.Nickname, u.Role,
		emptyAsNull(u.DiscordWebhook), emptyAsNull(u.TelegramChatID), emptyAsNull(u.NotifyEmail),
		u.CreatedAt.UTC().Unix(),
	)
	return err
}

const userColumns = `id, game_user_id, nickname, role,
	discord_webhook, telegram_chat_id, notify_email, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		discord   sql.NullString
		telegram  sql.NullString
		email     sql.NullString
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.GameUserID, &u.Nickname, &u.Role,
		&discord, &telegram, &email, &createdAt); err != nil {
		return nil, err
	}
	u.DiscordWebhook = discord.String
	u.TelegramChatID = telegram.String
	u.NotifyEmail = email.String
	u.CreatedAt = unixUTC(createdAt)
	return &u, nil
}

// GetUser returns a member by id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// FindUserByTelegramChat returns the member who linked chatID, or ErrNotFound.
func (r *SQLiteRepo) FindUserByTelegramChat(ctx context.Context, chatID string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_chat_id = ? LIMIT 1`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// ListUserIDs returns every member id.
func (r *SQLiteRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUsers returns every member, oldest first.
func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// GetUserContact returns the member's address for an external channel.
// A missing user or an unset address both report ok=false without error.
func (r *SQLiteRepo) GetUserContact(ctx context.Context, userID string, ch domain.Channel) (string, bool, error) {
	u, err := r.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	addr, ok := u.Contact(ch)
	return addr, ok, nil
}

// --- Events ---

// UpsertEvent validates and stores an event. An empty ID gets a fresh UUID.
func (r *SQLiteRepo) UpsertEvent(ctx context.Context, e *domain.Event) error {
	if e == nil {
		return errors.New("nil event")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := nowUTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (
			id, name, description, day_of_week, start_time,
			duration_minutes, is_active, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name             = excluded.name,
			description      = excluded.description,
			day_of_week      = excluded.day_of_week,
			start_time       = excluded.start_time,
			duration_minutes = excluded.duration_minutes,
			is_active        = excluded.is_active,
			updated_at       = excluded.updated_at`,
		e.ID, e.Name, e.Description, e.DayOfWeek, e.StartTime,
		e.DurationMinutes, boolToInt(e.IsActive), e.CreatedBy,
		e.CreatedAt.UTC().Unix(), e.UpdatedAt.Unix(),
	)
	return err
}

const eventColumns = `id, name, description, day_of_week, start_time,
	duration_minutes, is_active, created_by, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*domain.Event, error) {
	var (
		e                    domain.Event
		active               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.DayOfWeek, &e.StartTime,
		&e.DurationMinutes, &active, &e.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.IsActive = active != 0
	e.CreatedAt = unixUTC(createdAt)
	e.UpdatedAt = unixUTC(updatedAt)
	return &e, nil
}

// GetEvent returns an event by id or ErrNotFound.
func (r *SQLiteRepo) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListActiveEvents returns events with is_active set, ordered by weekday and start.
func (r *SQLiteRepo) ListActiveEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE is_active = 1
		ORDER BY day_of_week, start_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}
	return res, rows.Err()
}

// SetEventActive soft-enables or soft-disables an event.
func (r *SQLiteRepo) SetEventActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE events SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), nowUTC().Unix(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- Preferences ---

// UpsertGlobalPreference is last-write-wins on (user, channel).
func (r *SQLiteRepo) UpsertGlobalPreference(ctx context.Context, p *domain.GlobalPreference) error {
	if p == nil {
		return errors.New("nil global preference")
	}
	p.UpdatedAt = nowUTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO global_notif_prefs (user_id, channel, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, channel) DO UPDATE SET
			enabled    = excluded.enabled,
			updated_at = excluded.updated_at`,
		p.UserID, string(p.Channel), boolToInt(p.Enabled), p.UpdatedAt.Unix(),
	)
	return err
}

// GetGlobalPreference returns the row for (user, channel) or ErrNotFound.
func (r *SQLiteRepo) GetGlobalPreference(ctx context.Context, userID string, ch domain.Channel) (*domain.GlobalPreference, error) {
	var (
		enabled   int
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, updated_at FROM global_notif_prefs
		WHERE user_id = ? AND channel = ?`,
		userID, string(ch),
	).Scan(&enabled, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.GlobalPreference{
		UserID:    userID,
		Channel:   ch,
		Enabled:   enabled != 0,
		UpdatedAt: unixUTC(updatedAt),
	}, nil
}

// ListGlobalPreferences returns every explicit global switch of a member.
func (r *SQLiteRepo) ListGlobalPreferences(ctx context.Context, userID string) ([]domain.GlobalPreference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel, enabled, updated_at FROM global_notif_prefs
		WHERE user_id = ?
		ORDER BY channel`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.GlobalPreference
	for rows.Next() {
		var (
			ch        string
			enabled   int
			updatedAt int64
		)
		if err := rows.Scan(&ch, &enabled, &updatedAt); err != nil {
			return nil, err
		}
		res = append(res, domain.GlobalPreference{
			UserID:    userID,
			Channel:   domain.Channel(ch),
			Enabled:   enabled != 0,
			UpdatedAt: unixUTC(updatedAt),
		})
	}
	return res, rows.Err()
}

// UpsertEventPreference stores one row per (user, event, channel).
func (r *SQLiteRepo) UpsertEventPreference(ctx context.Context, p *domain.EventPreference) error {
	if p == nil {
		return errors.New("nil event preference")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = nowUTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_notif_prefs (
			id, user_id, event_id, channel, enabled,
			notify_at_10_min, notify_at_5_min, notify_at_start,
			custom_minutes_before, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, event_id, channel) DO UPDATE SET
			enabled               = excluded.enabled,
			notify_at_10_min      = excluded.notify_at_10_min,
			notify_at_5_min       = excluded.notify_at_5_min,
			notify_at_start       = excluded.notify_at_start,
			custom_minutes_before = excluded.custom_minutes_before,
			updated_at            = excluded.updated_at`,
		p.ID, p.UserID, p.EventID, string(p.Channel), boolToInt(p.Enabled),
		boolToInt(p.NotifyAt10Min), boolToInt(p.NotifyAt5Min), boolToInt(p.NotifyAtStart),
		toNullInt64(p.CustomMinutesBefore), p.UpdatedAt.Unix(),
	)
	return err
}

const eventPrefColumns = `id, user_id, event_id, channel, enabled,
	notify_at_10_min, notify_at_5_min, notify_at_start,
	custom_minutes_before, updated_at`

func (r *SQLiteRepo) queryEventPrefs(ctx context.Context, query string, args ...any) ([]domain.EventPreference, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.EventPreference
	for rows.Next() {
		var (
			p                    domain.EventPreference
			ch                   string
			enabled, n10, n5, n0 int
			custom               sql.NullInt64
			updatedAt            int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.EventID, &ch, &enabled,
			&n10, &n5, &n0, &custom, &updatedAt); err != nil {
			return nil, err
		}
		p.Channel = domain.Channel(ch)
		p.Enabled = enabled != 0
		p.NotifyAt10Min = n10 != 0
		p.NotifyAt5Min = n5 != 0
		p.NotifyAtStart = n0 != 0
		p.CustomMinutesBefore = fromNullInt64(custom)
		p.UpdatedAt = unixUTC(updatedAt)
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListEnabledEventPreferences returns the enabled rows of one event.
func (r *SQLiteRepo) ListEnabledEventPreferences(ctx context.Context, eventID string) ([]domain.EventPreference, error) {
	return r.queryEventPrefs(ctx, `
		SELECT `+eventPrefColumns+`
		FROM event_notif_prefs
		WHERE event_id = ? AND enabled = 1
		ORDER BY user_id, channel`, eventID)
}

// ListEventPreferencesByUser returns every per-event row of a member.
func (r *SQLiteRepo) ListEventPreferencesByUser(ctx context.Context, userID string) ([]domain.EventPreference, error) {
	return r.queryEventPrefs(ctx, `
		SELECT `+eventPrefColumns+`
		FROM event_notif_prefs
		WHERE user_id = ?
		ORDER BY event_id, channel`, userID)
}

// --- Delivery log ---

// InsertDeliveryRecord appends to the in-app log. ID and SentAt are filled
// when empty.
func (r *SQLiteRepo) InsertDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error {
	if rec == nil {
		return errors.New("nil delivery record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = nowUTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, event_id, type, channel, title, body, read, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, toNullString(rec.EventID), string(rec.Category), string(rec.Channel),
		rec.Title, rec.Body, boolToInt(rec.Read), rec.SentAt.UTC().UnixMilli(),
	)
	return err
}

// ListDeliveryRecords returns a member's log, newest first. limit <= 0 means no limit.
func (r *SQLiteRepo) ListDeliveryRecords(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.DeliveryRecord, error) {
	q := `
		SELECT id, user_id, event_id, type, channel, title, body, read, sent_at
		FROM notifications
		WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		q += ` AND read = 0`
	}
	q += ` ORDER BY sent_at DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec      domain.DeliveryRecord
			eventID  sql.NullString
			category string
			ch       string
			read     int
			sentAtMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &eventID, &category, &ch,
			&rec.Title, &rec.Body, &read, &sentAtMs); err != nil {
			return nil, err
		}
		rec.EventID = fromNullString(eventID)
		rec.Category = domain.Category(category)
		rec.Channel = domain.Channel(ch)
		rec.Read = read != 0
		rec.SentAt = time.UnixMilli(sentAtMs).UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}

// MarkDeliveryRead flips the read flag of one record owned by userID.
func (r *SQLiteRepo) MarkDeliveryRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// MarkAllDeliveriesRead flips the read flag of every record owned by userID.
func (r *SQLiteRepo) MarkAllDeliveriesRead(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	return err
}

// --- Push subscriptions ---

// SavePushSubscription upserts on endpoint; a re-subscribed endpoint moves
// to the new owner.
func (r *SQLiteRepo) SavePushSubscription(ctx context.Context, s *domain.PushSubscription) error {
	if s == nil {
		return errors.New("nil push subscription")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = nowUTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh  = excluded.p256dh,
			auth    = excluded.auth`,
		s.Endpoint, s.UserID, s.P256dh, s.Auth, s.CreatedAt.UTC().Unix(),
	)
	return err
}

// ListPushSubscriptions returns a member's push endpoints.
func (r *SQLiteRepo) ListPushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT endpoint, user_id, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = ?
		ORDER BY created_at, endpoint`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.PushSubscription
	for rows.Next() {
		var (
			s         domain.PushSubscription
			createdAt int64
		)
		if err := rows.Scan(&s.Endpoint, &s.UserID, &s.P256dh, &s.Auth, &createdAt); err != nil {
			return nil, err
		}
		s.CreatedAt = unixUTC(createdAt)
		res = append(res, s)
	}
	return res, rows.Err()
}

// DeletePushSubscription removes an endpoint. Deleting a missing endpoint is not an error.
func (r *SQLiteRepo) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
