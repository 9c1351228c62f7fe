package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/snuz/internal/store"
	"github.com/vovakirdan/snuz/internal/store/sqlite"
)

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("alice"))
	assert.True(t, ValidUsername("Bob42"))
	assert.False(t, ValidUsername(""))
	assert.False(t, ValidUsername("bad name"))
	assert.False(t, ValidUsername("x_y"))
}

func TestCreateAndLogin(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	defer st.Close()
	svc := New(st)
	ctx := context.Background()

	_, err = svc.Create(ctx, "no way")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.Login(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	u, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
