package gameroot

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testAdmin  = common.HexToAddress("0x00000000000000000000000000000000000ad001")
	testPlayer = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	counterKey = store.KeyOf()
)

var counterTable = store.DefineTable("test", "CounterTable",
	store.Field{Name: "Value", Type: store.FieldUint256},
)

type counterSystem struct {
	version string
}

func (c *counterSystem) Descriptor() Descriptor {
	return Descriptor{Prefix: "test.systems", Name: "CounterSystem", Version: c.version}
}

func (c *counterSystem) Tables() []store.Table {
	return []store.Table{counterTable}
}

func (c *counterSystem) Increment(env *Env) (uint64, error) {
	data, err := env.GetField(counterTable.ID, counterKey, 0)
	if err != nil {
		return 0, err
	}
	value, err := store.DecodeUint64(data)
	if err != nil {
		return 0, err
	}
	value++
	if err := env.SetField(counterTable.ID, counterKey, 0, store.EncodeUint64(value)); err != nil {
		return 0, err
	}
	env.Emit("CounterIncremented", "counter", map[string]any{"value": value})
	return value, nil
}

func (c *counterSystem) Bump(env *Env) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	_, err := c.Increment(env)
	return err
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordingListener) HandleEvents(events []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
}

func newTestRoot(t *testing.T) (*Root, *store.Store) {
	t.Helper()
	s, err := store.New(store.NewMemoryBackend())
	require.NoError(t, err)
	root, err := New(context.Background(), Config{
		Store: s,
		Admin: testAdmin,
		Clock: func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	return root, s
}

func deployCounter(t *testing.T, root *Root, version string) (common.Address, common.Hash) {
	t.Helper()
	address, err := root.Deploy(&counterSystem{version: version})
	require.NoError(t, err)
	id, err := root.RegisterSystemWithAddress(context.Background(), testAdmin, address)
	require.NoError(t, err)
	return address, id
}

func increment(ctx context.Context, root *Root, id common.Hash) (uint64, *Receipt, error) {
	var value uint64
	receipt, err := Invoke(ctx, root, Message{From: testPlayer}, id, func(env *Env, sys *counterSystem) error {
		var err error
		value, err = sys.Increment(env)
		return err
	})
	return value, receipt, err
}

func TestNewGrantsBootstrapRolesOnce(t *testing.T) {
	root, s := newTestRoot(t)
	ctx := context.Background()
	for _, role := range []common.Hash{access.RoleDefaultAdmin, access.RolePauser, access.RoleUpgrader} {
		ok, err := root.HasRole(ctx, access.RootScope, role, testAdmin)
		require.NoError(t, err)
		require.True(t, ok, access.RoleName(role))
	}

	require.NoError(t, root.RevokeRole(ctx, testAdmin, access.RootScope, access.RolePauser, testAdmin))
	again, err := New(ctx, Config{Store: s, Admin: testAdmin})
	require.NoError(t, err)
	ok, err := again.HasRole(ctx, access.RootScope, access.RolePauser, testAdmin)
	require.NoError(t, err)
	require.False(t, ok, "bootstrap must not run twice")
}

func TestSystemIDIsKeccakOfPrefixAndName(t *testing.T) {
	descriptor := (&counterSystem{}).Descriptor()
	require.Equal(t, SystemID("test.systems", "CounterSystem"), descriptor.ID())
	require.NotEqual(t, SystemID("test.systems", "Counter"), descriptor.ID())
}

func TestRegisterSystemGrantsStoreRolesAndResolves(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	address, id := deployCounter(t, root, "1")

	resolved, err := root.SystemAddress(ctx, id)
	require.NoError(t, err)
	require.Equal(t, address, resolved)

	for _, role := range []common.Hash{access.RoleStoreWriter, access.RoleInternal} {
		ok, err := root.HasRole(ctx, access.RootScope, role, address)
		require.NoError(t, err)
		require.True(t, ok)
	}

	unknown, err := root.SystemAddress(ctx, SystemID("test.systems", "Missing"))
	require.NoError(t, err)
	require.Equal(t, common.Address{}, unknown)
}

func TestRegisterSystemRequiresUpgrader(t *testing.T) {
	root, _ := newTestRoot(t)
	address, err := root.Deploy(&counterSystem{version: "1"})
	require.NoError(t, err)
	_, err = root.RegisterSystemWithAddress(context.Background(), testPlayer, address)
	require.Equal(t, KindAuthorization, KindOf(err))
}

func TestInvokeCommitsAndPublishesEvents(t *testing.T) {
	root, _ := newTestRoot(t)
	listener := &recordingListener{}
	root.AddListener(listener)
	_, id := deployCounter(t, root, "1")

	value, receipt, err := increment(context.Background(), root, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), value)
	event, ok := receipt.Find("CounterIncremented")
	require.True(t, ok)
	require.NotEmpty(t, event.ID)
	require.Len(t, listener.events, 1)
}

func TestReRegistrationPreservesTableData(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	firstAddress, id := deployCounter(t, root, "1")
	_, _, err := increment(ctx, root, id)
	require.NoError(t, err)

	secondAddress, secondID := deployCounter(t, root, "2")
	require.Equal(t, id, secondID)
	require.NotEqual(t, firstAddress, secondAddress)

	value, _, err := increment(ctx, root, id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), value)
}

func TestReRegistrationRetiresReplacedAddress(t *testing.T) {
	root, backing := newTestRoot(t)
	ctx := context.Background()
	firstAddress, id := deployCounter(t, root, "1")
	_, err := root.RegisterSystemWithAddress(ctx, testAdmin, firstAddress)
	require.NoError(t, err)
	secondAddress, _ := deployCounter(t, root, "2")

	lookup := func(address common.Address) common.Hash {
		var registeredAs common.Hash
		require.NoError(t, backing.View(ctx, func(tx *store.Tx) error {
			data, err := tx.GetField(SystemLookupTable.ID, store.KeyOf(store.AddressWord(address)), 0)
			if err != nil {
				return err
			}
			registeredAs, err = store.DecodeHash(data)
			return err
		}))
		return registeredAs
	}
	require.Equal(t, common.Hash{}, lookup(firstAddress))
	require.Equal(t, id, lookup(secondAddress))

	for _, role := range []common.Hash{access.RoleStoreWriter, access.RoleInternal} {
		retired, err := root.HasRole(ctx, access.RootScope, role, firstAddress)
		require.NoError(t, err)
		require.False(t, retired)
		current, err := root.HasRole(ctx, access.RootScope, role, secondAddress)
		require.NoError(t, err)
		require.True(t, current)
	}

	err = root.SetField(ctx, firstAddress, counterTable.ID, counterKey, 0, store.EncodeUint64(9))
	require.Equal(t, KindAuthorization, KindOf(err))
}

func TestInvokeRollsBackOnError(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	listener := &recordingListener{}
	root.AddListener(listener)
	_, id := deployCounter(t, root, "1")

	failure := errors.New("boom")
	_, err := Invoke(ctx, root, Message{From: testPlayer}, id, func(env *Env, sys *counterSystem) error {
		if _, err := sys.Increment(env); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Empty(t, listener.events)

	value, _, err := increment(ctx, root, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), value)
}

func TestInternalOperationsRejectExternalCallers(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	address, id := deployCounter(t, root, "1")

	_, err := Invoke(ctx, root, Message{From: testPlayer}, id, func(env *Env, sys *counterSystem) error {
		return sys.Bump(env)
	})
	require.Equal(t, KindAuthorization, KindOf(err))

	require.NoError(t, root.GrantRole(ctx, testAdmin, address, access.RoleInternal, testPlayer))
	_, err = Invoke(ctx, root, Message{From: testPlayer}, id, func(env *Env, sys *counterSystem) error {
		return sys.Bump(env)
	})
	require.NoError(t, err)
}

func TestUnregisteredModuleCannotWrite(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	address, id := deployCounter(t, root, "1")
	require.NoError(t, root.RevokeRole(ctx, testAdmin, access.RootScope, access.RoleStoreWriter, address))

	_, _, err := increment(ctx, root, id)
	var missing *access.MissingRoleError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, address, missing.Account)
	require.Equal(t, access.RoleStoreWriter, missing.Role)
}

func TestPauseBlocksInvocations(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	_, id := deployCounter(t, root, "1")

	require.Equal(t, KindAuthorization, KindOf(root.Pause(ctx, testPlayer)))
	require.NoError(t, root.Pause(ctx, testAdmin))
	_, _, err := increment(ctx, root, id)
	require.ErrorIs(t, err, ErrPaused)
	require.NoError(t, root.Unpause(ctx, testAdmin))
	_, _, err = increment(ctx, root, id)
	require.NoError(t, err)
}

func TestValueIsCreditedAndForwarded(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	address, id := deployCounter(t, root, "1")

	_, err := root.Invoke(ctx, Message{From: testPlayer, Value: big.NewInt(50)}, id, func(env *Env, _ System) error {
		require.Equal(t, int64(50), env.Value().Int64())
		return env.Transfer(testPlayer, big.NewInt(20))
	})
	require.NoError(t, err)

	moduleBalance, err := root.BalanceOf(ctx, address)
	require.NoError(t, err)
	require.Equal(t, int64(30), moduleBalance.Int64())
	playerBalance, err := root.BalanceOf(ctx, testPlayer)
	require.NoError(t, err)
	require.Equal(t, int64(20), playerBalance.Int64())

	_, err = root.Invoke(ctx, Message{From: testPlayer}, id, func(env *Env, _ System) error {
		return env.Transfer(testPlayer, big.NewInt(31))
	})
	require.Equal(t, KindInvariant, KindOf(err))
}

func TestExternalValueDoesNotSpendCallerLedger(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	address, id := deployCounter(t, root, "1")

	_, err := root.Invoke(ctx, Message{From: testPlayer, Value: big.NewInt(50)}, id, func(env *Env, _ System) error {
		return env.Transfer(testPlayer, big.NewInt(20))
	})
	require.NoError(t, err)
	_, err = root.Invoke(ctx, Message{From: testPlayer, Value: big.NewInt(100)}, id, func(*Env, System) error {
		return nil
	})
	require.NoError(t, err)

	playerBalance, err := root.BalanceOf(ctx, testPlayer)
	require.NoError(t, err)
	require.Equal(t, int64(20), playerBalance.Int64())
	moduleBalance, err := root.BalanceOf(ctx, address)
	require.NoError(t, err)
	require.Equal(t, int64(130), moduleBalance.Int64())
}

func TestViewRejectsWrites(t *testing.T) {
	root, _ := newTestRoot(t)
	_, id := deployCounter(t, root, "1")
	err := View(context.Background(), root, testPlayer, id, func(env *Env, sys *counterSystem) error {
		_, err := sys.Increment(env)
		return err
	})
	require.ErrorIs(t, err, ErrReadOnlyCall)
}

func TestExternalWritesNeedStoreWriterRole(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()
	deployCounter(t, root, "1")

	err := root.SetField(ctx, testPlayer, counterTable.ID, counterKey, 0, store.EncodeUint64(9))
	require.Equal(t, KindAuthorization, KindOf(err))

	require.NoError(t, root.GrantRole(ctx, testAdmin, access.RootScope, access.RoleStoreWriter, testPlayer))
	require.NoError(t, root.SetField(ctx, testPlayer, counterTable.ID, counterKey, 0, store.EncodeUint64(9)))

	records, err := root.GetRecords(ctx, counterTable.ID, []store.Key{counterKey}, 1)
	require.NoError(t, err)
	value, err := store.DecodeUint64(records[0][0])
	require.NoError(t, err)
	require.Equal(t, uint64(9), value)
}
