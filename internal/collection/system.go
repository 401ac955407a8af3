package collection

import (
	"errors"
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
)

const (
	opSetAdd    = "collection.add"
	opSetRemove = "collection.remove"
	opSetRead   = "collection.read"
)

// SetSystemDescriptor names the shared counted-set module.
var SetSystemDescriptor = gameroot.Descriptor{
	Prefix:  gameroot.PlatformPrefix,
	Name:    "StoreU256SetSystem",
	Version: "1",
}

// SetSystemID is the registry id of the counted-set module.
var SetSystemID = SetSystemDescriptor.ID()

// SetSystem exposes counted sets to other modules. Mutations are internal;
// reads are open.
type SetSystem struct{}

func NewSetSystem() *SetSystem {
	return &SetSystem{}
}

func (*SetSystem) Descriptor() gameroot.Descriptor { return SetSystemDescriptor }

func (*SetSystem) Tables() []store.Table { return []store.Table{SetTable} }

func (*SetSystem) Add(env *gameroot.Env, key store.Key, value *big.Int) (uint64, error) {
	if err := env.RequireInternal(); err != nil {
		return 0, err
	}
	count, err := New(key).Add(env, value)
	if err != nil {
		return 0, wrap(opSetAdd, err)
	}
	return count, nil
}

func (*SetSystem) Remove(env *gameroot.Env, key store.Key, value *big.Int) (uint64, error) {
	if err := env.RequireInternal(); err != nil {
		return 0, err
	}
	count, err := New(key).Remove(env, value)
	if err != nil {
		return 0, wrap(opSetRemove, err)
	}
	return count, nil
}

func (*SetSystem) Values(env *gameroot.Env, key store.Key) ([]*big.Int, error) {
	values, err := New(key).Values(env)
	return values, wrap(opSetRead, err)
}

func (*SetSystem) Page(env *gameroot.Env, key store.Key, offset, limit uint64) ([]*big.Int, error) {
	values, err := New(key).Page(env, offset, limit)
	return values, wrap(opSetRead, err)
}

func (*SetSystem) Len(env *gameroot.Env, key store.Key) (uint64, error) {
	length, err := New(key).Len(env)
	return length, wrap(opSetRead, err)
}

func (*SetSystem) At(env *gameroot.Env, key store.Key, index uint64) (*big.Int, error) {
	value, err := New(key).At(env, index)
	return value, wrap(opSetRead, err)
}

func (*SetSystem) Count(env *gameroot.Env, key store.Key, value *big.Int) (uint64, error) {
	count, err := New(key).Count(env, value)
	return count, wrap(opSetRead, err)
}

func wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotMember):
		return gameroot.Precondition(operation, "not_member", err)
	case errors.Is(err, ErrIndexOutRange):
		return gameroot.Precondition(operation, "index_out_of_range", err)
	case gameroot.KindOf(err) != gameroot.KindInternal:
		return err
	default:
		return gameroot.Internal(operation, "storage", err)
	}
}
