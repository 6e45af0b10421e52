package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, email, first_name, last_name, employee_id, role, status,
	department_id, manager_id, phone_number, position, created_at`

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, err := scanUser(getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FirstActiveByRole returns the earliest-created ACTIVE user holding the role.
// The created_at, id ordering is the deterministic tie-break for role-based
// approver resolution.
func (r *UserRepository) FirstActiveByRole(ctx context.Context, role entity.Role) (*entity.User, error) {
	user, err := scanUser(getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = ? AND status = 'ACTIVE'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, string(role)))
	if err == sql.ErrNoRows {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user by role", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("failed to get user by role: %w", err)
	}
	return user, nil
}

// ListActiveManagers returns ACTIVE users with role MANAGER in the department
func (r *UserRepository) ListActiveManagers(ctx context.Context, departmentID string) ([]*entity.User, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'MANAGER' AND status = 'ACTIVE' AND department_id = ?
		ORDER BY created_at ASC, id ASC
	`, departmentID)
	if err != nil {
		r.logger.Error("Failed to list managers", zap.String("department_id", departmentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*entity.User, error) {
	var u entity.User
	var role string
	var departmentID, managerID, phoneNumber, position sql.NullString

	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.EmployeeID,
		&role, &u.Status, &departmentID, &managerID, &phoneNumber, &position, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	u.Role = entity.Role(role)
	u.DepartmentID = departmentID.String
	u.ManagerID = managerID.String
	u.PhoneNumber = phoneNumber.String
	u.Position = position.String
	return &u, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
