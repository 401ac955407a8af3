package access

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	moduleA = common.HexToAddress("0x000000000000000000000000000000000000a001")
	moduleB = common.HexToAddress("0x000000000000000000000000000000000000b001")
	player  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, s.Register(Tables()...))
	return s
}

func update(t *testing.T, s *store.Store, fn func(tx *store.Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func hasRole(t *testing.T, s *store.Store, scope common.Address, role common.Hash, account common.Address) bool {
	t.Helper()
	var result bool
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		var err error
		result, err = HasRole(tx, scope, role, account)
		return err
	}))
	return result
}

func TestGlobalGrantIsEffectiveOnEveryModule(t *testing.T) {
	s := newTestStore(t)
	update(t, s, func(tx *store.Tx) error { return Grant(tx, RootScope, RolePauser, player) })

	require.True(t, hasRole(t, s, RootScope, RolePauser, player))
	require.True(t, hasRole(t, s, moduleA, RolePauser, player))
	require.True(t, hasRole(t, s, moduleB, RolePauser, player))
}

func TestLocalGrantStaysOnItsModule(t *testing.T) {
	s := newTestStore(t)
	update(t, s, func(tx *store.Tx) error { return Grant(tx, moduleA, RolePauser, player) })

	require.True(t, hasRole(t, s, moduleA, RolePauser, player))
	require.False(t, hasRole(t, s, moduleB, RolePauser, player))
	require.False(t, hasRole(t, s, RootScope, RolePauser, player))
}

func TestRevokeTouchesOnlyTheTargetScope(t *testing.T) {
	s := newTestStore(t)
	update(t, s, func(tx *store.Tx) error {
		if err := Grant(tx, RootScope, RoleUpgrader, player); err != nil {
			return err
		}
		return Grant(tx, moduleA, RoleUpgrader, player)
	})

	update(t, s, func(tx *store.Tx) error { return Revoke(tx, moduleA, RoleUpgrader, player) })
	require.True(t, hasRole(t, s, moduleA, RoleUpgrader, player), "global grant still applies after local revoke")

	update(t, s, func(tx *store.Tx) error { return Revoke(tx, RootScope, RoleUpgrader, player) })
	require.False(t, hasRole(t, s, moduleA, RoleUpgrader, player))

	update(t, s, func(tx *store.Tx) error { return Grant(tx, moduleA, RoleUpgrader, player) })
	update(t, s, func(tx *store.Tx) error { return Revoke(tx, RootScope, RoleUpgrader, player) })
	require.True(t, hasRole(t, s, moduleA, RoleUpgrader, player), "root revoke leaves local grant intact")
}

func TestCheckRoleNamesAccountAndRole(t *testing.T) {
	s := newTestStore(t)
	err := s.View(context.Background(), func(tx *store.Tx) error {
		return CheckRole(tx, moduleA, RolePauser, player)
	})
	var missing *MissingRoleError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, player, missing.Account)
	require.Equal(t, RolePauser, missing.Role)
	require.Contains(t, err.Error(), "PAUSER_ROLE")
	require.Contains(t, err.Error(), player.Hex())
}

func TestGrantRejectsZeroAccount(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), func(tx *store.Tx) error {
		return Grant(tx, RootScope, RolePauser, common.Address{})
	})
	require.ErrorIs(t, err, ErrZeroAccount)
}
