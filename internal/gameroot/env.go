package gameroot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const opRequireRole = "root.require_role"

// Env is the execution context of one module frame. Nested calls share the
// transaction of the top-level call.
type Env struct {
	ctx      context.Context
	root     *Root
	tx       *store.Tx
	sender   common.Address
	origin   common.Address
	self     common.Address
	value    *big.Int
	now      time.Time
	receipt  *Receipt
	external bool
	depth    int
}

func (e *Env) Context() context.Context { return e.ctx }

// Sender is the immediate caller: the external account or the calling module.
func (e *Env) Sender() common.Address { return e.sender }

// Origin is the external account that started the top-level call.
func (e *Env) Origin() common.Address { return e.origin }

// Self is the address of the running module.
func (e *Env) Self() common.Address { return e.self }

// Value is the native amount attached to this frame.
func (e *Env) Value() *big.Int { return new(big.Int).Set(e.value) }

// Now is fixed for the whole top-level call.
func (e *Env) Now() time.Time { return e.now }

func (e *Env) Writable() bool { return e.tx.Writable() }

func (e *Env) enter(id common.Hash, value *big.Int, fn func(*Env, System) error) error {
	if e.depth >= maxCallDepth {
		return Internal(opDispatch, "call_depth", ErrCallDepth)
	}
	address, err := resolveSystem(e.tx, id)
	if err != nil {
		return Internal(opDispatch, "resolve", err)
	}
	if address == (common.Address{}) {
		return Precondition(opDispatch, "not_registered", fmt.Errorf("%w: %s", ErrNotRegistered, id.Hex()))
	}
	sys, ok := e.root.codeAt(address)
	if !ok {
		return Precondition(opDispatch, "no_code", fmt.Errorf("%w: %s", ErrNoCode, address.Hex()))
	}

	amount := new(big.Int)
	if value != nil {
		amount.Set(value)
	}
	if amount.Sign() < 0 {
		return Precondition(opDispatch, "negative_value", fmt.Errorf("value %s", amount))
	}
	if amount.Sign() > 0 {
		if !e.tx.Writable() {
			return Precondition(opDispatch, "value_in_view", ErrReadOnlyCall)
		}
		// External value arrives from the caller's wallet, which the ledger
		// does not track, so only the callee is credited. A caller's ledger
		// entry holds what modules paid out to it and is not spent here.
		if e.external {
			err = e.credit(address, amount)
		} else {
			err = e.move(e.self, address, amount)
		}
		if err != nil {
			return err
		}
	}

	child := &Env{
		ctx:     e.ctx,
		root:    e.root,
		tx:      e.tx,
		sender:  e.self,
		origin:  e.origin,
		self:    address,
		value:   amount,
		now:     e.now,
		receipt: e.receipt,
		depth:   e.depth + 1,
	}
	return fn(child, sys)
}

// Call dispatches to the module registered under id with this module as sender.
func (e *Env) Call(id common.Hash, fn func(*Env, System) error) error {
	return e.enter(id, nil, fn)
}

// CallWithValue forwards value from this module's balance to the callee.
func (e *Env) CallWithValue(id common.Hash, value *big.Int, fn func(*Env, System) error) error {
	return e.enter(id, value, fn)
}

// SystemAddress resolves id inside the current call.
func (e *Env) SystemAddress(id common.Hash) (common.Address, error) {
	return resolveSystem(e.tx, id)
}

// Balance returns the running module's native balance.
func (e *Env) Balance() (*big.Int, error) {
	return readBalance(e.tx, e.self)
}

// Transfer moves native balance from the running module to an account.
func (e *Env) Transfer(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return Precondition(opTransfer, "zero_address", ErrZeroAddress)
	}
	if !e.tx.Writable() {
		return Precondition(opTransfer, "read_only", ErrReadOnlyCall)
	}
	return e.move(e.self, to, amount)
}

func (e *Env) credit(to common.Address, amount *big.Int) error {
	balance, err := readBalance(e.tx, to)
	if err != nil {
		return Internal(opTransfer, "read_balance", err)
	}
	if err := writeBalance(e.tx, to, balance.Add(balance, amount)); err != nil {
		return Internal(opTransfer, "write_balance", err)
	}
	return nil
}

func (e *Env) move(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	balance, err := readBalance(e.tx, from)
	if err != nil {
		return Internal(opTransfer, "read_balance", err)
	}
	if balance.Cmp(amount) < 0 {
		return Invariant(opTransfer, "insufficient_balance",
			fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), balance, amount))
	}
	if err := writeBalance(e.tx, from, balance.Sub(balance, amount)); err != nil {
		return Internal(opTransfer, "write_balance", err)
	}
	return e.credit(to, amount)
}

// RequireRole checks the sender's effective role on this module.
func (e *Env) RequireRole(role common.Hash) error {
	if err := access.CheckRole(e.tx, e.self, role, e.sender); err != nil {
		return Unauthorized(opRequireRole, err)
	}
	return nil
}

// RequireInternal restricts an operation to registered modules and local grantees.
func (e *Env) RequireInternal() error {
	return e.RequireRole(access.RoleInternal)
}

func (e *Env) requireWriter() error {
	if !e.tx.Writable() {
		return Precondition(opSetField, "read_only", ErrReadOnlyCall)
	}
	if err := access.CheckRole(e.tx, access.RootScope, access.RoleStoreWriter, e.self); err != nil {
		return Unauthorized(opSetField, err)
	}
	return nil
}

func (e *Env) SetField(table store.TableID, key store.Key, slot uint8, data []byte) error {
	if err := e.requireWriter(); err != nil {
		return err
	}
	if err := e.tx.SetField(table, key, slot, data); err != nil {
		return Internal(opSetField, "write", err)
	}
	return nil
}

func (e *Env) SetRecord(table store.TableID, key store.Key, fields [][]byte) error {
	if err := e.requireWriter(); err != nil {
		return err
	}
	if err := e.tx.SetRecord(table, key, fields); err != nil {
		return Internal(opSetField, "write", err)
	}
	return nil
}

func (e *Env) GetField(table store.TableID, key store.Key, slot uint8) ([]byte, error) {
	return e.tx.GetField(table, key, slot)
}

func (e *Env) GetRecord(table store.TableID, key store.Key, fieldCount int) ([][]byte, error) {
	return e.tx.GetRecord(table, key, fieldCount)
}

func (e *Env) HasRecord(table store.TableID, key store.Key) (bool, error) {
	return e.tx.HasRecord(table, key)
}

// Emit records an event; it is published only if the top-level call commits.
func (e *Env) Emit(name, topic string, args map[string]any) {
	if e.receipt == nil {
		return
	}
	e.receipt.Events = append(e.receipt.Events, Event{
		Name:      name,
		Emitter:   e.self,
		Topic:     topic,
		Args:      args,
		Timestamp: e.now,
	})
}

// Logger returns the root logger.
func (e *Env) Logger() *zap.Logger {
	return e.root.logger
}

// As narrows a dispatched module to its concrete system type.
func As[S System](sys System) (S, error) {
	module, ok := sys.(S)
	if !ok {
		var zero S
		return zero, Internal(opDispatch, "wrong_system", fmt.Errorf("%w: %s", ErrWrongSystem, sys.Descriptor()))
	}
	return module, nil
}

func typed[S System](fn func(*Env, S) error) func(*Env, System) error {
	return func(env *Env, sys System) error {
		module, err := As[S](sys)
		if err != nil {
			return err
		}
		return fn(env, module)
	}
}

// Call is the typed form of Env.Call.
func Call[S System](env *Env, id common.Hash, fn func(*Env, S) error) error {
	return env.Call(id, typed(fn))
}

// CallWithValue is the typed form of Env.CallWithValue.
func CallWithValue[S System](env *Env, id common.Hash, value *big.Int, fn func(*Env, S) error) error {
	return env.CallWithValue(id, value, typed(fn))
}

// Invoke is the typed form of Root.Invoke.
func Invoke[S System](ctx context.Context, root *Root, msg Message, id common.Hash, fn func(*Env, S) error) (*Receipt, error) {
	return root.Invoke(ctx, msg, id, typed(fn))
}

// View is the typed form of Root.View.
func View[S System](ctx context.Context, root *Root, from common.Address, id common.Hash, fn func(*Env, S) error) error {
	return root.View(ctx, from, id, typed(fn))
}
