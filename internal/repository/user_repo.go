package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"go-tour-booking/internal/model"
	"go-tour-booking/pkg/apierror"
)

// pgxPool is the subset of *pgxpool.Pool the repository needs. It is also
// satisfied by pgxmock.PgxPoolIface.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const (
	userColumns             = `id, name, email, role, password_changed_at, password_reset_token, password_reset_expires, active, created_at, updated_at`
	userColumnsWithPassword = userColumns + `, password_hash`
)

var updatableColumns = map[string]struct{}{
	model.ColumnName:                 {},
	model.ColumnEmail:                {},
	model.ColumnRole:                 {},
	model.ColumnPasswordHash:         {},
	model.ColumnPasswordChangedAt:    {},
	model.ColumnPasswordResetToken:   {},
	model.ColumnPasswordResetExpires: {},
	model.ColumnActive:               {},
}

type UserRepository struct {
	pool pgxPool
}

func NewUserRepository(pool pgxPool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string, opts model.ReadOptions) (model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1%s`, selectColumns(opts), activeClause(opts))

	u, err := scanUser(r.pool.QueryRow(ctx, query, id), opts)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, userNotFound(id)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string, opts model.ReadOptions) (model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(email) = lower($1)%s`, selectColumns(opts), activeClause(opts))

	u, err := scanUser(r.pool.QueryRow(ctx, query, model.NormalizeEmail(email)), opts)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, userNotFound(email)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, nu model.NewUser) (model.User, error) {
	if strings.TrimSpace(nu.PasswordHash) == "" {
		return model.User{}, fmt.Errorf("create user: %w: password hash is required", model.ErrValidation)
	}

	role := nu.Role
	if role == "" {
		role = model.RoleUser
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO users (id, name, email, role, password_hash, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $6)
		 RETURNING %s`, userColumns)

	u, err := scanUser(r.pool.QueryRow(ctx, query,
		id, strings.TrimSpace(nu.Name), model.NormalizeEmail(nu.Email), string(role), nu.PasswordHash, now), model.ActiveOnly)
	if isUniqueViolation(err) {
		return model.User{}, emailTaken(nu.Email)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UpdateByID applies one allow-listed update shape to an active user and
// returns the row as stored afterwards.
func (r *UserRepository) UpdateByID(ctx context.Context, id string, update model.UserUpdate) (model.User, error) {
	if err := update.Validate(); err != nil {
		return model.User{}, err
	}

	assignments := update.Assignments()
	args := make([]any, 0, len(assignments)+2)
	args = append(args, id)
	sets := make([]string, 0, len(assignments)+1)

	for _, a := range assignments {
		if _, ok := updatableColumns[a.Column]; !ok {
			return model.User{}, fmt.Errorf("update user: column %q is not updatable", a.Column)
		}
		args = append(args, a.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $1 AND active RETURNING %s`,
		strings.Join(sets, ", "), userColumns)

	u, err := scanUser(r.pool.QueryRow(ctx, query, args...), model.ActiveOnly)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, userNotFound(id)
	}
	if isUniqueViolation(err) {
		return model.User{}, emailTaken("")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// ConsumeResetToken applies change to the active user holding tokenHash,
// provided the token has not expired at now, and clears the reset fields. The
// check, the password write and the clear are one statement, so concurrent
// callers cannot both succeed and a failure leaves the token in place.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, change model.PasswordChange) (model.User, error) {
	if err := change.Validate(); err != nil {
		return model.User{}, err
	}

	query := fmt.Sprintf(`UPDATE users
		 SET password_hash = $3, password_changed_at = $4, password_reset_token = NULL, password_reset_expires = NULL, updated_at = $2
		 WHERE password_reset_token = $1 AND password_reset_expires > $2 AND active
		 RETURNING %s`, userColumns)

	u, err := scanUser(r.pool.QueryRow(ctx, query, tokenHash, now.UTC(), change.PasswordHash, change.ChangedAt.UTC()), model.ActiveOnly)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrInvalidOrExpiredResetToken
	}
	if err != nil {
		return model.User{}, fmt.Errorf("consume reset token: %w", err)
	}
	return u, nil
}

// RevokeResetToken clears the reset fields of user id only while they still
// hold tokenHash. A token replaced by a newer request is left alone.
func (r *UserRepository) RevokeResetToken(ctx context.Context, id string, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users
		 SET password_reset_token = NULL, password_reset_expires = NULL, updated_at = $3
		 WHERE id = $1 AND password_reset_token = $2`,
		id, tokenHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke reset token: %w", err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(id)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, page int, limit int, opts model.ReadOptions) ([]model.User, int, error) {
	page, limit = normalizePage(page, limit)

	var total int
	countQuery := `SELECT COUNT(*) FROM users WHERE true` + activeClause(opts)
	if err := r.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE true%s ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		selectColumns(opts), activeClause(opts))
	rows, err := r.pool.Query(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows, opts)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func selectColumns(opts model.ReadOptions) string {
	if opts.WithPassword {
		return userColumnsWithPassword
	}
	return userColumns
}

func activeClause(opts model.ReadOptions) string {
	if opts.IncludeInactive {
		return ""
	}
	return " AND active"
}

func scanUser(row pgx.Row, opts model.ReadOptions) (model.User, error) {
	var (
		u    model.User
		role string
	)
	dest := []any{
		&u.ID, &u.Name, &u.Email, &role, &u.PasswordChangedAt,
		&u.PasswordResetToken, &u.PasswordResetExpires, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	}
	if opts.WithPassword {
		dest = append(dest, &u.PasswordHash)
	}

	if err := row.Scan(dest...); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

func normalizePage(page int, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func userNotFound(ref string) error {
	return apierror.Wrap(model.ErrUserNotFound, "NOT_FOUND", "user not found", ref, http.StatusNotFound)
}

func emailTaken(email string) error {
	return apierror.Wrap(fmt.Errorf("%w: %w", model.ErrValidation, model.ErrUserAlreadyExists),
		"VALIDATION_ERROR", "email is already in use", model.NormalizeEmail(email), http.StatusBadRequest)
}
