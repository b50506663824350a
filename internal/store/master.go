package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// lookup describes one of the two name+description master tables.
type lookup struct {
	table string
	label string
	fkCol string
}

var (
	businessUnits = lookup{table: "business_units", label: "business unit", fkCol: "business_unit_id"}
	jobRoles      = lookup{table: "roles", label: "role", fkCol: "role_id"}
)

func (q queries) listNamed(ctx context.Context, l lookup) ([]model.BusinessUnit, error) {
	rows, err := q.q.Query(ctx, `SELECT id, name, description, created_at FROM `+l.table+` ORDER BY name`)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list %s", l.table)
	}
	defer rows.Close()

	var out []model.BusinessUnit
	for rows.Next() {
		var r model.BusinessUnit
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, eris.Wrapf(err, "store: scan %s", l.table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "store: iterate %s", l.table)
}

func (q queries) getNamed(ctx context.Context, l lookup, id string) (*model.BusinessUnit, error) {
	var r model.BusinessUnit
	err := q.q.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM `+l.table+` WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt)
	if db.IsNoRows(err) {
		return nil, notFound(l.label, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get %s %s", l.label, id)
	}
	return &r, nil
}

func (q queries) checkNameFree(ctx context.Context, l lookup, name, exceptID string) error {
	n, err := q.count(ctx, `SELECT COUNT(*) FROM `+l.table+` WHERE name = ? AND id <> ?`, name, exceptID)
	if err != nil {
		return eris.Wrapf(err, "store: check %s name", l.label)
	}
	if n > 0 {
		return apperr.Validation("%s name %q already exists", l.label, name).WithFields("name")
	}
	return nil
}

func (q queries) createNamed(ctx context.Context, l lookup, name string, desc *string) (*model.BusinessUnit, error) {
	if err := q.checkNameFree(ctx, l, name, ""); err != nil {
		return nil, err
	}
	r := model.BusinessUnit{ID: uuid.New().String(), Name: name, Description: desc, CreatedAt: now()}
	_, err := q.q.Exec(ctx,
		`INSERT INTO `+l.table+` (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: insert %s", l.label)
	}
	return &r, nil
}

func (q queries) updateNamed(ctx context.Context, l lookup, id, name string, desc *string) (*model.BusinessUnit, error) {
	if err := q.checkNameFree(ctx, l, name, id); err != nil {
		return nil, err
	}
	n, err := q.q.Exec(ctx, `UPDATE `+l.table+` SET name = ?, description = ? WHERE id = ?`, name, desc, id)
	if err != nil {
		return nil, eris.Wrapf(err, "store: update %s %s", l.label, id)
	}
	if n == 0 {
		return nil, notFound(l.label, id)
	}
	return q.getNamed(ctx, l, id)
}

func (q queries) deleteNamed(ctx context.Context, l lookup, id string) error {
	if _, err := q.getNamed(ctx, l, id); err != nil {
		return err
	}
	users, err := q.count(ctx, `SELECT COUNT(*) FROM users WHERE `+l.fkCol+` = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "store: count users for %s", l.label)
	}
	if users > 0 {
		return apperr.Conflict("Cannot delete %s. It is being used by %d user(s).", l.label, users).WithCount(users)
	}
	if l == businessUnits {
		refs, err := q.count(ctx,
			`SELECT (SELECT COUNT(*) FROM strategic_goals WHERE business_unit_id = ?) + (SELECT COUNT(*) FROM analysis_batches WHERE business_unit_id = ?)`,
			id, id)
		if err != nil {
			return eris.Wrap(err, "store: count goals for business unit")
		}
		if refs > 0 {
			return apperr.Conflict("Cannot delete business unit. It is being used by %d goal(s) or batch(es).", refs).WithCount(refs)
		}
	}
	if _, err := q.q.Exec(ctx, `DELETE FROM `+l.table+` WHERE id = ?`, id); err != nil {
		return eris.Wrapf(err, "store: delete %s %s", l.label, id)
	}
	return nil
}

// ListBusinessUnits returns all business units ordered by name.
func (q queries) ListBusinessUnits(ctx context.Context) ([]model.BusinessUnit, error) {
	return q.listNamed(ctx, businessUnits)
}

// GetBusinessUnit returns one business unit.
func (q queries) GetBusinessUnit(ctx context.Context, id string) (*model.BusinessUnit, error) {
	return q.getNamed(ctx, businessUnits, id)
}

// CreateBusinessUnit inserts a business unit with a unique name.
func (q queries) CreateBusinessUnit(ctx context.Context, name string, desc *string) (*model.BusinessUnit, error) {
	return q.createNamed(ctx, businessUnits, name, desc)
}

// UpdateBusinessUnit renames or re-describes a business unit.
func (q queries) UpdateBusinessUnit(ctx context.Context, id, name string, desc *string) (*model.BusinessUnit, error) {
	return q.updateNamed(ctx, businessUnits, id, name, desc)
}

// DeleteBusinessUnit removes a business unit nobody references.
func (q queries) DeleteBusinessUnit(ctx context.Context, id string) error {
	return q.deleteNamed(ctx, businessUnits, id)
}

func toRole(bu *model.BusinessUnit) *model.Role {
	if bu == nil {
		return nil
	}
	return &model.Role{ID: bu.ID, Name: bu.Name, Description: bu.Description, CreatedAt: bu.CreatedAt}
}

// ListRoles returns all job roles ordered by name.
func (q queries) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := q.listNamed(ctx, jobRoles)
	if err != nil {
		return nil, err
	}
	out := make([]model.Role, 0, len(rows))
	for i := range rows {
		out = append(out, *toRole(&rows[i]))
	}
	return out, nil
}

// GetRole returns one job role.
func (q queries) GetRole(ctx context.Context, id string) (*model.Role, error) {
	r, err := q.getNamed(ctx, jobRoles, id)
	return toRole(r), err
}

// CreateRole inserts a job role with a unique name.
func (q queries) CreateRole(ctx context.Context, name string, desc *string) (*model.Role, error) {
	r, err := q.createNamed(ctx, jobRoles, name, desc)
	return toRole(r), err
}

// UpdateRole renames or re-describes a job role.
func (q queries) UpdateRole(ctx context.Context, id, name string, desc *string) (*model.Role, error) {
	r, err := q.updateNamed(ctx, jobRoles, id, name, desc)
	return toRole(r), err
}

// DeleteRole removes a job role no user holds.
func (q queries) DeleteRole(ctx context.Context, id string) error {
	return q.deleteNamed(ctx, jobRoles, id)
}

const userColumns = `id, name, email, role_id, business_unit_id, created_at`

func scanUser(row db.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.RoleID, &u.BusinessUnitID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (q queries) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := q.q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list users")
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan user")
		}
		out = append(out, *u)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate users")
}

// GetUser returns one user.
func (q queries) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(q.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if db.IsNoRows(err) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get user %s", id)
	}
	return u, nil
}

func (q queries) checkUserRefs(ctx context.Context, u model.User) error {
	n, err := q.count(ctx, `SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`, u.Email, u.ID)
	if err != nil {
		return eris.Wrap(err, "store: check user email")
	}
	if n > 0 {
		return apperr.Validation("email %q is already in use", u.Email).WithFields("email")
	}
	if u.RoleID != nil {
		if _, err := q.GetRole(ctx, *u.RoleID); err != nil {
			return refError(err, "role_id", *u.RoleID)
		}
	}
	if u.BusinessUnitID != nil {
		if _, err := q.GetBusinessUnit(ctx, *u.BusinessUnitID); err != nil {
			return refError(err, "business_unit_id", *u.BusinessUnitID)
		}
	}
	return nil
}

// refError turns a missing referenced row into a validation error.
func refError(err error, field, id string) error {
	if eris.Is(err, ErrNotFound) {
		return apperr.Validation("%s %s does not exist", field, id).WithFields(field)
	}
	return err
}

// CreateUser inserts a user with a unique email.
func (q queries) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	u.ID = uuid.New().String()
	if err := q.checkUserRefs(ctx, u); err != nil {
		return nil, err
	}
	u.CreatedAt = now()
	_, err := q.q.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.RoleID, u.BusinessUnitID, u.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert user")
	}
	return &u, nil
}

// UpdateUser replaces a user's editable fields.
func (q queries) UpdateUser(ctx context.Context, u model.User) (*model.User, error) {
	if _, err := q.GetUser(ctx, u.ID); err != nil {
		return nil, err
	}
	if err := q.checkUserRefs(ctx, u); err != nil {
		return nil, err
	}
	_, err := q.q.Exec(ctx,
		`UPDATE users SET name = ?, email = ?, role_id = ?, business_unit_id = ? WHERE id = ?`,
		u.Name, u.Email, u.RoleID, u.BusinessUnitID, u.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: update user %s", u.ID)
	}
	return q.GetUser(ctx, u.ID)
}

// DeleteUser removes a user that no goal, batch, KPI or task references.
func (q queries) DeleteUser(ctx context.Context, id string) error {
	if _, err := q.GetUser(ctx, id); err != nil {
		return err
	}
	refs, err := q.count(ctx, `SELECT
		(SELECT COUNT(*) FROM strategic_goals WHERE created_by_user_id = ?) +
		(SELECT COUNT(*) FROM analysis_batches WHERE created_by_user_id = ?) +
		(SELECT COUNT(*) FROM proposed_kpis WHERE assigned_user_id = ?) +
		(SELECT COUNT(*) FROM daily_tasks WHERE user_id = ?)`,
		id, id, id, id)
	if err != nil {
		return eris.Wrapf(err, "store: count references to user %s", id)
	}
	if refs > 0 {
		return apperr.Conflict("Cannot delete user. It is referenced by %d goal, batch, KPI or task record(s).", refs).WithCount(refs)
	}
	if _, err := q.q.Exec(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return eris.Wrapf(err, "store: delete user %s", id)
	}
	return nil
}
