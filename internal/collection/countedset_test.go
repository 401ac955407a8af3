package collection

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type mapStorage map[string][]byte

func (m mapStorage) id(table store.TableID, key store.Key, slot uint8) string {
	return fmt.Sprintf("%s/%x/%d", table.Hex(), key.Bytes(), slot)
}

func (m mapStorage) GetField(table store.TableID, key store.Key, slot uint8) ([]byte, error) {
	return m[m.id(table, key, slot)], nil
}

func (m mapStorage) SetField(table store.TableID, key store.Key, slot uint8, data []byte) error {
	m[m.id(table, key, slot)] = data
	return nil
}

func ints(values ...int64) []*big.Int {
	out := make([]*big.Int, 0, len(values))
	for _, v := range values {
		out = append(out, big.NewInt(v))
	}
	return out
}

func requireValues(t *testing.T, expected []int64, actual []*big.Int) {
	t.Helper()
	got := make([]int64, 0, len(actual))
	for _, v := range actual {
		got = append(got, v.Int64())
	}
	if expected == nil {
		expected = []int64{}
	}
	require.Equal(t, expected, got)
}

func TestCountedSetKeepsInsertionOrderAndCounts(t *testing.T) {
	st := mapStorage{}
	set := New(store.KeyOf(common.HexToHash("0x01")))

	for _, v := range ints(1, 2, 2, 5, 1, 1) {
		_, err := set.Add(st, v)
		require.NoError(t, err)
	}

	values, err := set.Values(st)
	require.NoError(t, err)
	requireValues(t, []int64{1, 2, 5}, values)

	count, err := set.Count(st, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)

	length, err := set.Len(st)
	require.NoError(t, err)
	require.Equal(t, uint64(3), length)

	at, err := set.At(st, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), at.Int64())

	_, err = set.At(st, 3)
	require.ErrorIs(t, err, ErrIndexOutRange)
}

func TestCountedSetRemoveCompactsPreservingOrder(t *testing.T) {
	st := mapStorage{}
	set := New(store.KeyOf(common.HexToHash("0x02")))
	for _, v := range ints(10, 20, 30, 40, 20) {
		_, err := set.Add(st, v)
		require.NoError(t, err)
	}

	remaining, err := set.Remove(st, big.NewInt(20))
	require.NoError(t, err)
	require.Equal(t, uint64(1), remaining)
	values, err := set.Values(st)
	require.NoError(t, err)
	requireValues(t, []int64{10, 20, 30, 40}, values)

	remaining, err = set.Remove(st, big.NewInt(20))
	require.NoError(t, err)
	require.Zero(t, remaining)
	values, err = set.Values(st)
	require.NoError(t, err)
	requireValues(t, []int64{10, 30, 40}, values)

	_, err = set.Remove(st, big.NewInt(10))
	require.NoError(t, err)
	_, err = set.Add(st, big.NewInt(20))
	require.NoError(t, err)
	values, err = set.Values(st)
	require.NoError(t, err)
	requireValues(t, []int64{30, 40, 20}, values)

	_, err = set.Remove(st, big.NewInt(99))
	require.ErrorIs(t, err, ErrNotMember)

	_, err = set.Remove(st, big.NewInt(40))
	require.NoError(t, err)
	_, err = set.Remove(st, big.NewInt(20))
	require.NoError(t, err)
	_, err = set.Add(st, big.NewInt(40))
	require.NoError(t, err)
	values, err = set.Values(st)
	require.NoError(t, err)
	requireValues(t, []int64{30, 40}, values)
}

func TestCountedSetPageClampsWithoutErrors(t *testing.T) {
	st := mapStorage{}
	set := New(store.KeyOf(common.HexToHash("0x03")))
	for _, v := range ints(1, 2, 3, 4, 5) {
		_, err := set.Add(st, v)
		require.NoError(t, err)
	}

	cases := []struct {
		offset, limit uint64
		expected      []int64
	}{
		{offset: 0, limit: 2, expected: []int64{1, 2}},
		{offset: 3, limit: 10, expected: []int64{4, 5}},
		{offset: 5, limit: 1, expected: nil},
		{offset: 9, limit: 1, expected: nil},
		{offset: 1, limit: 0, expected: nil},
		{offset: 2, limit: ^uint64(0), expected: []int64{3, 4, 5}},
	}
	for _, tc := range cases {
		page, err := set.Page(st, tc.offset, tc.limit)
		require.NoError(t, err)
		requireValues(t, tc.expected, page)
	}
}

func TestCountedSetsAreIsolatedByKey(t *testing.T) {
	st := mapStorage{}
	first := New(store.KeyOf(common.HexToHash("0x04")))
	second := New(store.KeyOf(common.HexToHash("0x04"), common.HexToHash("0x01")))
	_, err := first.Add(st, big.NewInt(7))
	require.NoError(t, err)

	length, err := second.Len(st)
	require.NoError(t, err)
	require.Zero(t, length)
}

func TestSetSystemRequiresInternalCaller(t *testing.T) {
	backing, err := store.New(store.NewMemoryBackend())
	require.NoError(t, err)
	admin := common.HexToAddress("0x00000000000000000000000000000000000ad001")
	ctx := context.Background()
	root, err := gameroot.New(ctx, gameroot.Config{Store: backing, Admin: admin})
	require.NoError(t, err)
	address, err := root.Deploy(NewSetSystem())
	require.NoError(t, err)
	_, err = root.RegisterSystemWithAddress(ctx, admin, address)
	require.NoError(t, err)

	key := store.KeyOf(common.HexToHash("0x05"))
	outsider := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	_, err = gameroot.Invoke(ctx, root, gameroot.Message{From: outsider}, SetSystemID,
		func(env *gameroot.Env, sys *SetSystem) error {
			_, err := sys.Add(env, key, big.NewInt(1))
			return err
		})
	require.Equal(t, gameroot.KindAuthorization, gameroot.KindOf(err))

	_, err = gameroot.Invoke(ctx, root, gameroot.Message{From: admin}, SetSystemID,
		func(env *gameroot.Env, sys *SetSystem) error {
			_, err := sys.Remove(env, key, big.NewInt(1))
			return err
		})
	require.Equal(t, gameroot.KindAuthorization, gameroot.KindOf(err), "admin is not an internal caller")

	require.NoError(t, root.GrantRole(ctx, admin, address, access.RoleInternal, outsider))
	_, err = gameroot.Invoke(ctx, root, gameroot.Message{From: outsider}, SetSystemID,
		func(env *gameroot.Env, sys *SetSystem) error {
			_, err := sys.Add(env, key, big.NewInt(1))
			return err
		})
	require.NoError(t, err)

	err = gameroot.View(ctx, root, outsider, SetSystemID, func(env *gameroot.Env, sys *SetSystem) error {
		values, err := sys.Values(env, key)
		requireValues(t, []int64{1}, values)
		return err
	})
	require.NoError(t, err)
}
