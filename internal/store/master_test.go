package store

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
)

func TestBusinessUnit_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bu, err := s.CreateBusinessUnit(ctx, "Finance", nil)
	require.NoError(t, err)

	got, err := s.GetBusinessUnit(ctx, bu.ID)
	require.NoError(t, err)
	assert.Equal(t, "Finance", got.Name)
	assert.Nil(t, got.Description)

	desc := "Treasury and accounting"
	updated, err := s.UpdateBusinessUnit(ctx, bu.ID, "Finance & Accounting", &desc)
	require.NoError(t, err)
	assert.Equal(t, "Finance & Accounting", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, desc, *updated.Description)

	require.NoError(t, s.DeleteBusinessUnit(ctx, bu.ID))
	_, err = s.GetBusinessUnit(ctx, bu.ID)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestBusinessUnit_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBusinessUnit(ctx, "Finance", nil)
	require.NoError(t, err)
	_, err = s.CreateBusinessUnit(ctx, "Finance", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestBusinessUnit_DeleteGuardedByUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	_, err := s.CreateUser(ctx, model.User{Name: "Budi", Email: "budi@example.com", BusinessUnitID: &f.bu.ID})
	require.NoError(t, err)

	err = s.DeleteBusinessUnit(ctx, f.bu.ID)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	require.NotNil(t, ae.Count)
	assert.Equal(t, 2, *ae.Count)
	assert.Contains(t, ae.Message, "being used by 2 user(s)")

	// Still there.
	_, err = s.GetBusinessUnit(ctx, f.bu.ID)
	assert.NoError(t, err)
}

func TestRole_DeleteGuardedByUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	err := s.DeleteRole(ctx, f.role.ID)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, 1, *ae.Count)

	unused, err := s.CreateRole(ctx, "Analyst", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRole(ctx, unused.ID))

	roles, err := s.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Manager", roles[0].Name)
}

func TestDelete_Missing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.True(t, eris.Is(s.DeleteBusinessUnit(ctx, "nope"), ErrNotFound))
	assert.True(t, eris.Is(s.DeleteRole(ctx, "nope"), ErrNotFound))
	assert.True(t, eris.Is(s.DeleteUser(ctx, "nope"), ErrNotFound))
}

func TestUser_EmailUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	_, err := s.CreateUser(ctx, model.User{Name: "Other", Email: f.user.Email})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, []string{"email"}, ae.Fields)

	// Keeping one's own email on update is fine.
	f.user.Name = "Ayu Lestari"
	updated, err := s.UpdateUser(ctx, *f.user)
	require.NoError(t, err)
	assert.Equal(t, "Ayu Lestari", updated.Name)
}

func TestUser_UnknownRole(t *testing.T) {
	s := newTestStore(t)
	missing := "missing-role"

	_, err := s.CreateUser(context.Background(), model.User{Name: "X", Email: "x@example.com", RoleID: &missing})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"role_id"}, ae.Fields)
}

func TestUser_DeleteGuardedByGoals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	seedGoal(t, s, f, "Revenue", "1.000.000")

	err := s.DeleteUser(ctx, f.user.ID)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, 1, *ae.Count)

	lone, err := s.CreateUser(ctx, model.User{Name: "Lone", Email: "lone@example.com"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteUser(ctx, lone.ID))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
