package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"toolvault.org/internal/auth"
	"toolvault.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ auth.Store = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, email, password, roleName string) (auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return auth.User{}, auth.ErrInvalidInput
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return auth.User{}, auth.ErrInvalidInput
	}

	role, err := s.GetRoleByName(ctx, roleName)
	if err != nil {
		return auth.User{}, err
	}

	var user auth.User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, status, role_id)
		values ($1, $2, $3, $4, $5)
		returning id, email, password_hash, status, role_id, created_at, updated_at
	`, ids.New(), email, hash, auth.UserStatusActive, role.ID)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Status, &user.RoleID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.User{}, auth.ErrAlreadyExists
			case pgErrForeignKeyViolation:
				return auth.User{}, auth.ErrNotFound
			}
		}
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	var user auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, role_id, created_at, updated_at
		from users
		where id = $1
	`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Status, &user.RoleID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, role_id, created_at, updated_at
		from users
		where email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Status, &user.RoleID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return auth.User{}, err
	}
	if user.Status != auth.UserStatusActive {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from roles
		where name = $1
	`, name).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return auth.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

func (s *Store) ResolvePrincipal(ctx context.Context, userID string) (auth.Principal, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return auth.Principal{}, err
	}
	if user.Status != auth.UserStatusActive {
		return auth.Principal{}, auth.ErrNotFound
	}

	var role auth.Role
	err = s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from roles
		where id = $1
	`, user.RoleID).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Principal{}, err
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return auth.Principal{}, err
	}
	role.Permissions = perms
	return auth.NewPrincipal(&user, role), nil
}

func (s *Store) rolePermissions(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select permission_key
		from role_permissions
		where role_id = $1
		order by permission_key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		perms = append(perms, key)
	}
	return perms, rows.Err()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
