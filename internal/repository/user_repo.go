package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"user-mgmt-api/internal/domain"
)

// ErrDuplicateEmail se devuelve cuando el email ya existe en la tabla users.
var ErrDuplicateEmail = errors.New("duplicate email")

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit int) ([]domain.User, int, error)
	// RecordFailedLogin incrementa el contador de fallos y marca la cuenta
	// como bloqueada al alcanzar el umbral, todo en un solo UPDATE atómico.
	RecordFailedLogin(ctx context.Context, id string, threshold int) (attempts int, locked bool, err error)
	ResetFailedLogins(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
	Unlock(ctx context.Context, id string) error
	SetProfessionalStatus(ctx context.Context, id string, isProfessional bool) error
}

const userColumns = `
	id, nickname, email, password_hash, role,
	first_name, last_name, bio, github_profile_url, linkedin_profile_url,
	is_professional, is_verified, failed_login_attempts, is_locked,
	created_at, updated_at
`

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Nickname,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Bio,
		user.GithubProfileURL,
		user.LinkedinProfileURL,
		user.IsProfessional,
		user.IsVerified,
		user.FailedLoginAttempts,
		user.IsLocked,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) Update(ctx context.Context, user domain.User) error {
	const query = `
		UPDATE users SET
			nickname = $2,
			email = $3,
			role = $4,
			first_name = $5,
			last_name = $6,
			bio = $7,
			github_profile_url = $8,
			linkedin_profile_url = $9,
			updated_at = $10
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Nickname,
		user.Email,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Bio,
		user.GithubProfileURL,
		user.LinkedinProfileURL,
		user.UpdatedAt,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	const countQuery = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at
		OFFSET $1 LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *PgUserRepository) RecordFailedLogin(ctx context.Context, id string, threshold int) (int, bool, error) {
	// Incremento y bloqueo en una sola sentencia para evitar updates
	// perdidos ante intentos fallidos concurrentes.
	const query = `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			is_locked = is_locked OR (failed_login_attempts + 1 >= $2),
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, is_locked
	`
	var attempts int
	var locked bool
	err := r.pool.QueryRow(ctx, query, id, threshold).Scan(&attempts, &locked)
	if err != nil {
		return 0, false, err
	}
	return attempts, locked, nil
}

func (r *PgUserRepository) ResetFailedLogins(ctx context.Context, id string) error {
	const query = `
		UPDATE users SET failed_login_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgUserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users SET is_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) Unlock(ctx context.Context, id string) error {
	const query = `
		UPDATE users SET is_locked = FALSE, failed_login_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) SetProfessionalStatus(ctx context.Context, id string, isProfessional bool) error {
	const query = `
		UPDATE users SET is_professional = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, isProfessional)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) scanOne(row pgx.Row) (domain.User, error) {
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Nickname,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.FirstName,
		&u.LastName,
		&u.Bio,
		&u.GithubProfileURL,
		&u.LinkedinProfileURL,
		&u.IsProfessional,
		&u.IsVerified,
		&u.FailedLoginAttempts,
		&u.IsLocked,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}
