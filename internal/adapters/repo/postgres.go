package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo     = (*Postgres)(nil)
	_ domain.SummaryRepo  = (*Postgres)(nil)
	_ domain.ScheduleRepo = (*Postgres)(nil)
)

const uniqueViolation = "23505"

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const userColumns = `id, email, password_hash, username, telegram_id, categories, preferred_time, delivery_method, subscribed, created_at, updated_at`

func scanUser(row pgx.Row) (domain.UserAccount, error) {
	var (
		user       domain.UserAccount
		telegramID sql.NullInt64
		method     string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Username, &telegramID, &user.Categories, &user.PreferredTime, &method, &user.Subscribed, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return domain.UserAccount{}, err
	}
	if telegramID.Valid {
		user.TelegramID = telegramID.Int64
	}
	user.DeliveryMethod = domain.DeliveryMethod(method)
	return user, nil
}

// Create сохраняет нового пользователя.
func (p *Postgres) Create(ctx context.Context, user domain.UserAccount) (domain.UserAccount, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if user.PreferredTime == "" {
		user.PreferredTime = domain.DefaultPreferredTime
	}
	if user.DeliveryMethod == "" {
		user.DeliveryMethod = domain.DeliveryTelegram
	}
	if user.Categories == nil {
		user.Categories = []string{}
	}
	var telegramID sql.NullInt64
	if user.TelegramID != 0 {
		telegramID = sql.NullInt64{Int64: user.TelegramID, Valid: true}
	}

	start := time.Now()
	created, err := scanUser(p.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, username, telegram_id, categories, preferred_time, delivery_method, subscribed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+userColumns,
		domain.NormalizeEmail(user.Email), user.PasswordHash, strings.TrimSpace(user.Username), telegramID,
		user.Categories, user.PreferredTime, string(user.DeliveryMethod), user.Subscribed))
	metrics.ObserveNetworkRequest("postgres", "users_create", "users", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "users_email_key":
				return domain.UserAccount{}, domain.ErrEmailTaken
			case "users_telegram_id_key":
				return domain.UserAccount{}, domain.ErrTelegramLinked
			}
		}
		return domain.UserAccount{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (p *Postgres) getUser(ctx context.Context, op, where string, arg any) (domain.UserAccount, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	metrics.ObserveNetworkRequest("postgres", op, "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAccount{}, domain.ErrUserNotFound
	}
	return user, err
}

// GetByID возвращает пользователя по ID.
func (p *Postgres) GetByID(ctx context.Context, id int64) (domain.UserAccount, error) {
	return p.getUser(ctx, "users_get_by_id", "id=$1", id)
}

// GetByTelegramID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTelegramID(ctx context.Context, telegramID int64) (domain.UserAccount, error) {
	return p.getUser(ctx, "users_get_by_tgid", "telegram_id=$1", telegramID)
}

// GetByEmail возвращает пользователя по email.
func (p *Postgres) GetByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	return p.getUser(ctx, "users_get_by_email", "email=$1", domain.NormalizeEmail(email))
}

// ListSubscribed возвращает подписанных пользователей.
func (p *Postgres) ListSubscribed(ctx context.Context) ([]domain.UserAccount, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE subscribed ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "users_list_subscribed", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserAccount
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (p *Postgres) updateUser(ctx context.Context, op, set string, telegramID int64, value any) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE users SET `+set+`=$2, updated_at=now() WHERE telegram_id=$1`, telegramID, value)
	metrics.ObserveNetworkRequest("postgres", op, "users", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateCategories заменяет категории пользователя.
func (p *Postgres) UpdateCategories(ctx context.Context, telegramID int64, categories []string) error {
	if categories == nil {
		categories = []string{}
	}
	return p.updateUser(ctx, "users_update_categories", "categories", telegramID, categories)
}

// UpdatePreferredTime обновляет время доставки.
func (p *Postgres) UpdatePreferredTime(ctx context.Context, telegramID int64, hhmm string) error {
	return p.updateUser(ctx, "users_update_preferred_time", "preferred_time", telegramID, hhmm)
}

// UpdateDeliveryMethod обновляет способ доставки.
func (p *Postgres) UpdateDeliveryMethod(ctx context.Context, telegramID int64, method domain.DeliveryMethod) error {
	return p.updateUser(ctx, "users_update_delivery_method", "delivery_method", telegramID, string(method))
}

// SetSubscribed включает или отключает подписку.
func (p *Postgres) SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error {
	return p.updateUser(ctx, "users_set_subscribed", "subscribed", telegramID, subscribed)
}

// ErrSummaryHashCollision возвращается, если разные тексты новостей дали одинаковый md5.
var ErrSummaryHashCollision = errors.New("news summary md5 collision")

// FindOrCreate атомарно возвращает новость с тем же текстом или создаёт новую.
// Уникальность держится на md5(summary_text), найденная строка сверяется по полному тексту.
// Второе значение равно true, если строка была вставлена.
func (p *Postgres) FindOrCreate(ctx context.Context, category string, item domain.NewsItem) (domain.NewsSummary, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		summary domain.NewsSummary
		created bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO news_summaries (category, title, summary_text, source_url)
VALUES ($1, $2, $3, $4)
ON CONFLICT ((md5(summary_text))) DO UPDATE SET category = news_summaries.category
RETURNING id, category, title, summary_text, source_url, created_at, (xmax = 0) AS inserted
`, category, item.Title, item.SummaryText, item.SourceURL).Scan(&summary.ID, &summary.Category, &summary.Title, &summary.SummaryText, &summary.SourceURL, &summary.CreatedAt, &created)
	metrics.ObserveNetworkRequest("postgres", "summaries_find_or_create", "news_summaries", start, err)
	if err != nil {
		return domain.NewsSummary{}, false, err
	}
	if summary.SummaryText != item.SummaryText {
		return domain.NewsSummary{}, false, fmt.Errorf("новость %d: %w", summary.ID, ErrSummaryHashCollision)
	}
	return summary, created, nil
}

// GetSummary возвращает новость по ID.
func (p *Postgres) GetSummary(ctx context.Context, id int64) (domain.NewsSummary, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var summary domain.NewsSummary
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, category, title, summary_text, source_url, created_at FROM news_summaries WHERE id=$1
`, id).Scan(&summary.ID, &summary.Category, &summary.Title, &summary.SummaryText, &summary.SourceURL, &summary.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "summaries_get", "news_summaries", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewsSummary{}, domain.ErrSummaryNotFound
	}
	return summary, err
}

// CreateIfAbsent создаёт запись расписания, если пары (пользователь, новость) ещё нет.
func (p *Postgres) CreateIfAbsent(ctx context.Context, entry domain.ScheduleEntry) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	methods := make([]string, 0, len(entry.SendMethods))
	for _, m := range entry.SendMethods {
		methods = append(methods, string(m))
	}
	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO schedule_entries (user_id, summary_id, send_time, send_methods)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, summary_id) DO NOTHING
`, entry.UserID, entry.SummaryID, entry.SendTime, methods)
	metrics.ObserveNetworkRequest("postgres", "schedule_entries_create", "schedule_entries", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ListForUser возвращает записи расписания пользователя по времени отправки.
func (p *Postgres) ListForUser(ctx context.Context, userID int64) ([]domain.ScheduleEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, summary_id, send_time, send_methods, created_at
FROM schedule_entries WHERE user_id=$1 ORDER BY send_time, id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "schedule_entries_list", "schedule_entries", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ScheduleEntry
	for rows.Next() {
		var (
			entry   domain.ScheduleEntry
			methods []string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.SummaryID, &entry.SendTime, &methods, &entry.CreatedAt); err != nil {
			return nil, err
		}
		for _, m := range methods {
			entry.SendMethods = append(entry.SendMethods, domain.SendMethod(m))
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
