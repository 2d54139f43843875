package family

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/familytree-core/internal/infrastructure/database"
)

// timeFormat is fixed-width so timestamps sort lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// errShareCodeTaken signals a share-code collision on insert; the service
// retries with a fresh code.
var errShareCodeTaken = errors.New("share code already in use")

// Repository defines persistence for families, roles, memberships and
// permission rows.
type Repository interface {
	EnsureRole(ctx context.Context, name string) (*Role, error)
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)

	CreateFamily(ctx context.Context, f *Family) (*Membership, error)
	GetFamily(ctx context.Context, id string) (*Family, error)
	GetFamilyByShareCode(ctx context.Context, code string) (*Family, error)
	UpdateFamily(ctx context.Context, f *Family) error
	DeleteFamily(ctx context.Context, id string) error
	ListFamiliesForUser(ctx context.Context, userID string) ([]Family, error)
	CountFamilies(ctx context.Context, userID string) (int, error)
	CountMembers(ctx context.Context, familyID string) (int, error)

	GetMembership(ctx context.Context, userID, familyID string) (*Membership, error)
	CreateMembership(ctx context.Context, m *Membership) error
	DeleteMembership(ctx context.Context, id string) error
	ListMembers(ctx context.Context, familyID string) ([]Member, error)
	MembershipPermissions(ctx context.Context, membershipID string) (map[string]bool, error)
	ReplaceRole(ctx context.Context, membershipID, roleName string) (*Membership, error)
	SetPermission(ctx context.Context, membershipID, key string, value bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed family repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) timestamp() (string, time.Time) {
	t := r.now().UTC()
	return t.Format(timeFormat), t
}

// EnsureRole returns the named role, creating it with its fixed description
// and role-level permission rows if absent. Calling it twice never
// duplicates anything.
func (r *SQLiteRepository) EnsureRole(ctx context.Context, name string) (*Role, error) {
	var role *Role
	err := database.WithTx(ctx, r.db, func(tx database.Querier) error {
		var err error
		role, err = ensureRole(ctx, tx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ensureRole is EnsureRole against an open transaction.
func ensureRole(ctx context.Context, q database.Querier, name string) (*Role, error) {
	if !IsValidRole(name) {
		return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO roles (id, name, description) VALUES (?, ?, ?)`,
		"rol-"+uuid.NewString()[:8], name, RoleDescription(name),
	); err != nil {
		return nil, fmt.Errorf("inserting role %s: %w", name, err)
	}

	var role Role
	if err := q.QueryRowContext(ctx,
		`SELECT id, name, description FROM roles WHERE name = ?`, name,
	).Scan(&role.ID, &role.Name, &role.Description); err != nil {
		return nil, fmt.Errorf("loading role %s: %w", name, err)
	}

	for _, p := range SeedDefaults(name) {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO permissions (id, key, name, value, role_id) VALUES (?, ?, ?, ?, ?)`,
			"prm-"+uuid.NewString()[:8], p.Key, p.Name, boolToInt(p.Value), role.ID,
		); err != nil {
			return nil, fmt.Errorf("seeding %s permission %s: %w", name, p.Key, err)
		}
	}

	return &role, nil
}

// RolePermissions returns the role-level default rows for a role.
func (r *SQLiteRepository) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, key, name, value FROM permissions WHERE role_id = ? ORDER BY rowid`, roleID)
	if err != nil {
		return nil, fmt.Errorf("getting role permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		p := Permission{RoleID: roleID}
		var value int
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &value); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		p.Value = value != 0
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return perms, nil
}

// insertPermissions writes a full set of membership-owned rows.
func insertPermissions(ctx context.Context, q database.Querier, membershipID string, perms []Permission) error {
	for _, p := range perms {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO permissions (id, key, name, value, membership_id) VALUES (?, ?, ?, ?, ?)`,
			"prm-"+uuid.NewString()[:8], p.Key, p.Name, boolToInt(p.Value), membershipID,
		); err != nil {
			return fmt.Errorf("granting %s: %w", p.Key, err)
		}
	}
	return nil
}

// CreateFamily inserts f together with the creator's membership and its
// seeded creator permissions in one transaction. ID and timestamps are set
// on f. A share-code collision returns errShareCodeTaken.
func (r *SQLiteRepository) CreateFamily(ctx context.Context, f *Family) (*Membership, error) {
	if f.ID == "" {
		f.ID = "fam-" + uuid.NewString()[:8]
	}
	now, t := r.timestamp()

	m := &Membership{
		ID:        "mbr-" + uuid.NewString()[:8],
		UserID:    f.CreatorID,
		FamilyID:  f.ID,
		RoleName:  RoleCreator,
		IsCreator: true,
		JoinedAt:  t,
	}

	err := database.WithTx(ctx, r.db, func(tx database.Querier) error {
		role, err := ensureRole(ctx, tx, RoleCreator)
		if err != nil {
			return err
		}
		m.RoleID = role.ID

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO families (id, name, motto, location, description, creator_id, share_code, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, nullString(f.Motto), nullString(f.Location), nullString(f.Description),
			f.CreatorID, f.ShareCode, now, now,
		); err != nil {
			if database.IsUniqueViolation(err) && strings.Contains(err.Error(), "families.share_code") {
				return errShareCodeTaken
			}
			return fmt.Errorf("inserting family: %w", err)
		}

		if err := insertMembership(ctx, tx, m, now); err != nil {
			return err
		}
		return insertPermissions(ctx, tx, m.ID, SeedDefaults(RoleCreator))
	})
	if err != nil {
		return nil, err
	}

	f.CreatedAt, f.UpdatedAt = t, t
	return m, nil
}

func insertMembership(ctx context.Context, q database.Querier, m *Membership, joinedAt string) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO memberships (id, user_id, family_id, role_id, is_creator, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.FamilyID, m.RoleID, boolToInt(m.IsCreator), joinedAt,
	); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("creating membership: %w", err)
	}
	return nil
}

const familyColumns = "id, name, motto, location, description, creator_id, share_code, created_at, updated_at"

// GetFamily retrieves a family by ID.
func (r *SQLiteRepository) GetFamily(ctx context.Context, id string) (*Family, error) {
	return scanFamily(r.db.QueryRowContext(ctx, "SELECT "+familyColumns+" FROM families WHERE id = ?", id))
}

// GetFamilyByShareCode retrieves a family by its (normalized) share code.
func (r *SQLiteRepository) GetFamilyByShareCode(ctx context.Context, code string) (*Family, error) {
	return scanFamily(r.db.QueryRowContext(ctx, "SELECT "+familyColumns+" FROM families WHERE share_code = ?", code))
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFamily(row scanner) (*Family, error) {
	var f Family
	var motto, location, description sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&f.ID, &f.Name, &motto, &location, &description,
		&f.CreatorID, &f.ShareCode, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("scanning family: %w", err)
	}

	f.Motto = motto.String
	f.Location = location.String
	f.Description = description.String
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &f, nil
}

// UpdateFamily stores the editable fields of f.
func (r *SQLiteRepository) UpdateFamily(ctx context.Context, f *Family) error {
	now, t := r.timestamp()

	result, err := r.db.ExecContext(ctx,
		`UPDATE families SET name = ?, motto = ?, location = ?, description = ?, updated_at = ? WHERE id = ?`,
		f.Name, nullString(f.Motto), nullString(f.Location), nullString(f.Description), now, f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating family: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrFamilyNotFound
	}
	f.UpdatedAt = t
	return nil
}

// DeleteFamily removes a family. Memberships and their permission rows go
// with it through ON DELETE CASCADE.
func (r *SQLiteRepository) DeleteFamily(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM families WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting family: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrFamilyNotFound
	}
	return nil
}

const userFamiliesWhere = `WHERE creator_id = ? OR id IN (SELECT family_id FROM memberships WHERE user_id = ?)`

// ListFamiliesForUser returns the families a user created or belongs to,
// newest first.
func (r *SQLiteRepository) ListFamiliesForUser(ctx context.Context, userID string) ([]Family, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+familyColumns+" FROM families "+userFamiliesWhere+" ORDER BY created_at DESC, id",
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing families: %w", err)
	}
	defer rows.Close()

	families := []Family{}
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, err
		}
		families = append(families, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating families: %w", err)
	}
	return families, nil
}

// CountFamilies returns how many families a user created or belongs to.
func (r *SQLiteRepository) CountFamilies(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM families "+userFamiliesWhere, userID, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting families: %w", err)
	}
	return n, nil
}

// CountMembers returns the number of memberships in a family.
func (r *SQLiteRepository) CountMembers(ctx context.Context, familyID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE family_id = ?", familyID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return n, nil
}

const membershipSelect = `SELECT m.id, m.user_id, m.family_id, m.role_id, r.name, m.is_creator, m.joined_at
	FROM memberships m JOIN roles r ON r.id = m.role_id`

func scanMembership(row scanner, extra ...any) (*Membership, error) {
	var m Membership
	var isCreator int
	var joinedAt string

	dest := append([]any{&m.ID, &m.UserID, &m.FamilyID, &m.RoleID, &m.RoleName, &isCreator, &joinedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("scanning membership: %w", err)
	}

	m.IsCreator = isCreator != 0
	m.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt) //nolint:errcheck // format is controlled
	return &m, nil
}

// GetMembership retrieves the membership of a user in a family.
func (r *SQLiteRepository) GetMembership(ctx context.Context, userID, familyID string) (*Membership, error) {
	return scanMembership(r.db.QueryRowContext(ctx,
		membershipSelect+" WHERE m.user_id = ? AND m.family_id = ?", userID, familyID))
}

// CreateMembership inserts m with the default permission rows of its role
// in one transaction. m.RoleName selects the role; ID, RoleID and JoinedAt
// are set on m. A second membership for the same pair gives ErrAlreadyMember.
func (r *SQLiteRepository) CreateMembership(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = "mbr-" + uuid.NewString()[:8]
	}
	now, t := r.timestamp()

	err := database.WithTx(ctx, r.db, func(tx database.Querier) error {
		role, err := ensureRole(ctx, tx, m.RoleName)
		if err != nil {
			return err
		}
		m.RoleID = role.ID

		if err := insertMembership(ctx, tx, m, now); err != nil {
			return err
		}
		return insertPermissions(ctx, tx, m.ID, SeedDefaults(m.RoleName))
	})
	if err != nil {
		return err
	}

	m.JoinedAt = t
	return nil
}

// DeleteMembership removes a membership and, by cascade, its permission rows.
func (r *SQLiteRepository) DeleteMembership(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM memberships WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// ListMembers returns a family's members in join order.
func (r *SQLiteRepository) ListMembers(ctx context.Context, familyID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.family_id, m.role_id, r.name, m.is_creator, m.joined_at, u.username, r.description
		 FROM memberships m
		 JOIN roles r ON r.id = m.role_id
		 JOIN users u ON u.id = m.user_id
		 WHERE m.family_id = ?
		 ORDER BY m.joined_at, m.rowid`, familyID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var username, description string
		m, err := scanMembership(rows, &username, &description)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{Membership: *m, Username: username, RoleDescription: description})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}
	return members, nil
}

// MembershipPermissions returns the stored rows of a membership by key.
func (r *SQLiteRepository) MembershipPermissions(ctx context.Context, membershipID string) (map[string]bool, error) {
	return membershipPermissions(ctx, r.db, membershipID)
}

func membershipPermissions(ctx context.Context, q database.Querier, membershipID string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT key, value FROM permissions WHERE membership_id = ?", membershipID)
	if err != nil {
		return nil, fmt.Errorf("getting membership permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[string]bool)
	for rows.Next() {
		var key string
		var value int
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms[key] = value != 0
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return perms, nil
}

// ReplaceRole moves a membership to roleName and replaces all of its
// permission rows with that role's defaults. Existing per-member overrides
// are discarded. The role update and the row replacement commit together.
func (r *SQLiteRepository) ReplaceRole(ctx context.Context, membershipID, roleName string) (*Membership, error) {
	var m *Membership
	err := database.WithTx(ctx, r.db, func(tx database.Querier) error {
		role, err := ensureRole(ctx, tx, roleName)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE memberships SET role_id = ? WHERE id = ?", role.ID, membershipID)
		if err != nil {
			return fmt.Errorf("updating membership role: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrMemberNotFound
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM permissions WHERE membership_id = ?", membershipID); err != nil {
			return fmt.Errorf("clearing permissions: %w", err)
		}
		if err := insertPermissions(ctx, tx, membershipID, SeedDefaults(roleName)); err != nil {
			return err
		}

		m, err = scanMembership(tx.QueryRowContext(ctx, membershipSelect+" WHERE m.id = ?", membershipID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetPermission upserts one per-membership override row.
func (r *SQLiteRepository) SetPermission(ctx context.Context, membershipID, key string, value bool) error {
	name := key
	for _, def := range catalog {
		if def.Key == key {
			name = def.Name
		}
	}

	return database.WithTx(ctx, r.db, func(tx database.Querier) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM memberships WHERE id = ?", membershipID).Scan(&exists); err != nil {
			return fmt.Errorf("checking membership: %w", err)
		}
		if exists == 0 {
			return ErrMemberNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO permissions (id, key, name, value, membership_id) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (membership_id, key) WHERE membership_id IS NOT NULL DO UPDATE SET value = excluded.value`,
			"prm-"+uuid.NewString()[:8], key, name, boolToInt(value), membershipID,
		); err != nil {
			return fmt.Errorf("setting permission %s: %w", key, err)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
