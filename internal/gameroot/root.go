package gameroot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const namespace = "eno"

var (
	SystemRegistryTable = store.DefineTable(namespace, "SystemRegistryTable",
		store.Field{Name: "Address", Type: store.FieldAddress},
	)
	SystemLookupTable = store.DefineTable(namespace, "SystemLookupTable",
		store.Field{Name: "SystemId", Type: store.FieldBytes32},
	)
	RootStateTable = store.DefineTable(namespace, "RootStateTable",
		store.Field{Name: "Paused", Type: store.FieldBool},
		store.Field{Name: "Initialized", Type: store.FieldBool},
	)
	NativeBalanceTable = store.DefineTable(namespace, "NativeBalanceTable",
		store.Field{Name: "Amount", Type: store.FieldUint256},
	)
)

var (
	errMissingStore        = errors.New("store is required")
	errMissingAdmin        = errors.New("admin address is required")
	ErrZeroAddress         = errors.New("address must not be zero")
	ErrNotRegistered       = errors.New("system is not registered")
	ErrNoCode              = errors.New("no module deployed at address")
	ErrWrongSystem         = errors.New("module does not implement the requested system")
	ErrPaused              = errors.New("platform is paused")
	ErrNotPaused           = errors.New("platform is not paused")
	ErrReadOnlyCall        = errors.New("write attempted during a view call")
	ErrCallDepth           = errors.New("call depth exceeded")
	ErrInsufficientBalance = errors.New("insufficient native balance")
	noOpLogger             = zap.NewNop()
)

const (
	opRootNew         = "root.new"
	opRegisterSystem  = "root.register_system"
	opGrantRole       = "root.grant_role"
	opRevokeRole      = "root.revoke_role"
	opPause           = "root.pause"
	opUnpause         = "root.unpause"
	opSetField        = "root.set_field"
	opDeploy          = "root.deploy"
	opDispatch        = "root.dispatch"
	opTransfer        = "root.transfer"
	maxCallDepth      = 16
	rootAddressSource = "happijack.root"
)

var rootStateKey = store.KeyOf()

// Config wires a Root.
type Config struct {
	Store      *store.Store
	Admin      common.Address
	Address    common.Address
	Clock      func() time.Time
	Logger     *zap.Logger
	IDProvider IDProvider
}

// Message is the caller-supplied envelope of a top-level call.
type Message struct {
	From  common.Address
	Value *big.Int
}

// Root is the platform entry point: registry, role administration, dispatch.
type Root struct {
	store      *store.Store
	address    common.Address
	clock      func() time.Time
	logger     *zap.Logger
	idProvider IDProvider

	codeMu sync.RWMutex
	code   map[common.Address]System

	hooksMu   sync.RWMutex
	listeners []EventListener
	observers []CallObserver
}

// DefaultRootAddress is used when Config.Address is unset.
func DefaultRootAddress() common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(rootAddressSource)))
}

// New constructs the root and grants the admin its bootstrap roles once.
func New(ctx context.Context, cfg Config) (*Root, error) {
	if cfg.Store == nil {
		return nil, Internal(opRootNew, "missing_store", errMissingStore)
	}
	if cfg.Admin == (common.Address{}) {
		return nil, Internal(opRootNew, "missing_admin", errMissingAdmin)
	}
	address := cfg.Address
	if address == (common.Address{}) {
		address = DefaultRootAddress()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}

	tables := append(access.Tables(), SystemRegistryTable, SystemLookupTable, RootStateTable, NativeBalanceTable)
	if err := cfg.Store.Register(tables...); err != nil {
		return nil, Internal(opRootNew, "register_tables", err)
	}

	root := &Root{
		store:      cfg.Store,
		address:    address,
		clock:      clock,
		logger:     logger,
		idProvider: idProvider,
		code:       make(map[common.Address]System),
	}

	err := cfg.Store.Update(ctx, func(tx *store.Tx) error {
		fields, err := tx.GetRecord(RootStateTable.ID, rootStateKey, RootStateTable.FieldCount())
		if err != nil {
			return err
		}
		decoder := store.NewDecoder(fields)
		initialized := decoder.Bool(1)
		if err := decoder.Err(); err != nil {
			return err
		}
		if initialized {
			return nil
		}
		for _, role := range []common.Hash{access.RoleDefaultAdmin, access.RolePauser, access.RoleUpgrader} {
			if err := access.Grant(tx, access.RootScope, role, cfg.Admin); err != nil {
				return err
			}
		}
		return tx.SetField(RootStateTable.ID, rootStateKey, 1, store.EncodeBool(true))
	})
	if err != nil {
		return nil, Internal(opRootNew, "bootstrap", err)
	}
	return root, nil
}

func (r *Root) Address() common.Address {
	return r.address
}

// AddListener subscribes to committed events.
func (r *Root) AddListener(listener EventListener) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// AddObserver subscribes to call outcomes.
func (r *Root) AddObserver(observer CallObserver) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.observers = append(r.observers, observer)
}

// Deploy installs module code and returns its address. Redeploying the same
// descriptor returns the same address.
func (r *Root) Deploy(sys System) (common.Address, error) {
	if sys == nil {
		return common.Address{}, Internal(opDeploy, "missing_system", ErrNoCode)
	}
	if err := r.store.Register(sys.Tables()...); err != nil {
		return common.Address{}, Internal(opDeploy, "register_tables", err)
	}
	address := ModuleAddress(r.address, sys.Descriptor())
	r.codeMu.Lock()
	r.code[address] = sys
	r.codeMu.Unlock()
	r.logger.Debug("module deployed",
		zap.String("system", sys.Descriptor().String()),
		zap.String("address", address.Hex()))
	return address, nil
}

func (r *Root) codeAt(address common.Address) (System, bool) {
	r.codeMu.RLock()
	defer r.codeMu.RUnlock()
	sys, ok := r.code[address]
	return sys, ok
}

// RegisterSystem points id at address and grants the address the store-write
// and internal roles. Existing table data is untouched.
func (r *Root) RegisterSystem(ctx context.Context, caller common.Address, id common.Hash, address common.Address) error {
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		return r.registerSystem(tx, caller, id, address)
	})
	if err != nil {
		r.logError(opRegisterSystem, err)
		return err
	}
	r.logger.Info("system registered", zap.String("system_id", id.Hex()), zap.String("address", address.Hex()))
	return nil
}

// RegisterSystemWithAddress derives the id from the module deployed at address.
func (r *Root) RegisterSystemWithAddress(ctx context.Context, caller common.Address, address common.Address) (common.Hash, error) {
	sys, ok := r.codeAt(address)
	if !ok {
		return common.Hash{}, Precondition(opRegisterSystem, "no_code", fmt.Errorf("%w: %s", ErrNoCode, address.Hex()))
	}
	id := sys.Descriptor().ID()
	if err := r.RegisterSystem(ctx, caller, id, address); err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

func (r *Root) registerSystem(tx *store.Tx, caller common.Address, id common.Hash, address common.Address) error {
	if err := access.CheckRole(tx, access.RootScope, access.RoleUpgrader, caller); err != nil {
		return Unauthorized(opRegisterSystem, err)
	}
	if address == (common.Address{}) {
		return Precondition(opRegisterSystem, "zero_address", ErrZeroAddress)
	}
	previous, err := resolveSystem(tx, id)
	if err != nil {
		return Internal(opRegisterSystem, "resolve", err)
	}
	if previous != (common.Address{}) && previous != address {
		if err := retireSystemAddress(tx, id, previous); err != nil {
			return Internal(opRegisterSystem, "retire_previous", err)
		}
	}
	if err := tx.SetField(SystemRegistryTable.ID, store.KeyOf(id), 0, store.EncodeAddress(address)); err != nil {
		return Internal(opRegisterSystem, "write_registry", err)
	}
	if err := tx.SetField(SystemLookupTable.ID, store.KeyOf(store.AddressWord(address)), 0, store.EncodeHash(id)); err != nil {
		return Internal(opRegisterSystem, "write_lookup", err)
	}
	for _, role := range []common.Hash{access.RoleStoreWriter, access.RoleInternal} {
		if err := access.Grant(tx, access.RootScope, role, address); err != nil {
			return Internal(opRegisterSystem, "grant_roles", err)
		}
	}
	return nil
}

// retireSystemAddress strips a replaced module address of the global roles
// and the lookup row it was given for id. Local grants on its own scope stay.
func retireSystemAddress(tx *store.Tx, id common.Hash, address common.Address) error {
	lookupKey := store.KeyOf(store.AddressWord(address))
	data, err := tx.GetField(SystemLookupTable.ID, lookupKey, 0)
	if err != nil {
		return err
	}
	registeredAs, err := store.DecodeHash(data)
	if err != nil {
		return err
	}
	if registeredAs != id {
		return nil
	}
	if err := tx.SetField(SystemLookupTable.ID, lookupKey, 0, store.EncodeHash(common.Hash{})); err != nil {
		return err
	}
	for _, role := range []common.Hash{access.RoleStoreWriter, access.RoleInternal} {
		if err := access.Revoke(tx, access.RootScope, role, address); err != nil {
			return err
		}
	}
	return nil
}

// SystemAddress returns the registered address or the zero address.
func (r *Root) SystemAddress(ctx context.Context, id common.Hash) (common.Address, error) {
	var address common.Address
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		address, err = resolveSystem(tx, id)
		return err
	})
	return address, err
}

func resolveSystem(tx *store.Tx, id common.Hash) (common.Address, error) {
	data, err := tx.GetField(SystemRegistryTable.ID, store.KeyOf(id), 0)
	if err != nil {
		return common.Address{}, err
	}
	return store.DecodeAddress(data)
}

// GrantRole grants in the global scope when scope is access.RootScope and in
// the module's local scope otherwise. The caller needs the admin role there.
func (r *Root) GrantRole(ctx context.Context, caller, scope common.Address, role common.Hash, account common.Address) error {
	return r.changeRole(ctx, opGrantRole, caller, scope, role, account, access.Grant)
}

func (r *Root) RevokeRole(ctx context.Context, caller, scope common.Address, role common.Hash, account common.Address) error {
	return r.changeRole(ctx, opRevokeRole, caller, scope, role, account, access.Revoke)
}

func (r *Root) changeRole(
	ctx context.Context,
	operation string,
	caller, scope common.Address,
	role common.Hash,
	account common.Address,
	apply func(access.Writer, common.Address, common.Hash, common.Address) error,
) error {
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		if err := access.CheckRole(tx, scope, access.RoleDefaultAdmin, caller); err != nil {
			return Unauthorized(operation, err)
		}
		if err := apply(tx, scope, role, account); err != nil {
			if errors.Is(err, access.ErrZeroAccount) {
				return Precondition(operation, "zero_account", err)
			}
			return Internal(operation, "write_role", err)
		}
		return nil
	})
	if err != nil {
		r.logError(operation, err)
		return err
	}
	r.logger.Info("role updated",
		zap.String("operation", operation),
		zap.String("scope", scope.Hex()),
		zap.String("role", access.RoleName(role)),
		zap.String("account", account.Hex()))
	return nil
}

// HasRole reports effective membership (global OR local to scope).
func (r *Root) HasRole(ctx context.Context, scope common.Address, role common.Hash, account common.Address) (bool, error) {
	var result bool
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		result, err = access.HasRole(tx, scope, role, account)
		return err
	})
	return result, err
}

func (r *Root) Pause(ctx context.Context, caller common.Address) error {
	return r.setPaused(ctx, opPause, caller, true)
}

func (r *Root) Unpause(ctx context.Context, caller common.Address) error {
	return r.setPaused(ctx, opUnpause, caller, false)
}

func (r *Root) setPaused(ctx context.Context, operation string, caller common.Address, paused bool) error {
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		if err := access.CheckRole(tx, access.RootScope, access.RolePauser, caller); err != nil {
			return Unauthorized(operation, err)
		}
		current, err := isPaused(tx)
		if err != nil {
			return Internal(operation, "read_state", err)
		}
		if current == paused {
			if paused {
				return Precondition(operation, "already_paused", ErrPaused)
			}
			return Precondition(operation, "not_paused", ErrNotPaused)
		}
		return tx.SetField(RootStateTable.ID, rootStateKey, 0, store.EncodeBool(paused))
	})
	if err != nil {
		r.logError(operation, err)
	}
	return err
}

func (r *Root) Paused(ctx context.Context) (bool, error) {
	var paused bool
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		paused, err = isPaused(tx)
		return err
	})
	return paused, err
}

func isPaused(tx *store.Tx) (bool, error) {
	data, err := tx.GetField(RootStateTable.ID, rootStateKey, 0)
	if err != nil {
		return false, err
	}
	return store.DecodeBool(data)
}

// SetField is the external write path. The caller must hold the store-write role.
func (r *Root) SetField(ctx context.Context, caller common.Address, table store.TableID, key store.Key, slot uint8, data []byte) error {
	return r.externalWrite(ctx, caller, func(tx *store.Tx) error {
		return tx.SetField(table, key, slot, data)
	})
}

func (r *Root) SetRecord(ctx context.Context, caller common.Address, table store.TableID, key store.Key, fields [][]byte) error {
	return r.externalWrite(ctx, caller, func(tx *store.Tx) error {
		return tx.SetRecord(table, key, fields)
	})
}

func (r *Root) externalWrite(ctx context.Context, caller common.Address, write func(*store.Tx) error) error {
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		paused, err := isPaused(tx)
		if err != nil {
			return Internal(opSetField, "read_state", err)
		}
		if paused {
			return Precondition(opSetField, "paused", ErrPaused)
		}
		if err := access.CheckRole(tx, access.RootScope, access.RoleStoreWriter, caller); err != nil {
			return Unauthorized(opSetField, err)
		}
		if err := write(tx); err != nil {
			return Precondition(opSetField, "rejected", err)
		}
		return nil
	})
	if err != nil {
		r.logError(opSetField, err)
	}
	return err
}

func (r *Root) GetField(ctx context.Context, table store.TableID, key store.Key, slot uint8) ([]byte, error) {
	var data []byte
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		data, err = tx.GetField(table, key, slot)
		return err
	})
	return data, err
}

func (r *Root) GetRecord(ctx context.Context, table store.TableID, key store.Key, fieldCount int) ([][]byte, error) {
	var fields [][]byte
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		fields, err = tx.GetRecord(table, key, fieldCount)
		return err
	})
	return fields, err
}

// GetRecords reads several rows of one table in a single snapshot.
func (r *Root) GetRecords(ctx context.Context, table store.TableID, keys []store.Key, fieldCount int) ([][][]byte, error) {
	records := make([][][]byte, 0, len(keys))
	err := r.store.View(ctx, func(tx *store.Tx) error {
		for _, key := range keys {
			fields, err := tx.GetRecord(table, key, fieldCount)
			if err != nil {
				return err
			}
			records = append(records, fields)
		}
		return nil
	})
	return records, err
}

func (r *Root) HasRecord(ctx context.Context, table store.TableID, key store.Key) (bool, error) {
	var exists bool
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		exists, err = tx.HasRecord(table, key)
		return err
	})
	return exists, err
}

// BalanceOf returns the native balance credited to address.
func (r *Root) BalanceOf(ctx context.Context, address common.Address) (*big.Int, error) {
	var balance *big.Int
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		balance, err = readBalance(tx, address)
		return err
	})
	return balance, err
}

func readBalance(tx *store.Tx, address common.Address) (*big.Int, error) {
	data, err := tx.GetField(NativeBalanceTable.ID, store.KeyOf(store.AddressWord(address)), 0)
	if err != nil {
		return nil, err
	}
	return store.DecodeUint256(data)
}

func writeBalance(tx *store.Tx, address common.Address, amount *big.Int) error {
	return tx.SetField(NativeBalanceTable.ID, store.KeyOf(store.AddressWord(address)), 0, store.EncodeUint256(amount))
}

// Invoke runs fn against the module registered under id as one atomic call.
// msg.Value is credited to the module before fn runs.
func (r *Root) Invoke(ctx context.Context, msg Message, id common.Hash, fn func(env *Env, sys System) error) (*Receipt, error) {
	started := r.clock()
	receipt := &Receipt{}
	systemName := id.Hex()
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		paused, err := isPaused(tx)
		if err != nil {
			return Internal(opDispatch, "read_state", err)
		}
		if paused {
			return Precondition(opDispatch, "paused", ErrPaused)
		}
		caller := r.externalEnv(ctx, tx, msg.From, receipt, r.clock())
		return caller.enter(id, msg.Value, func(env *Env, sys System) error {
			systemName = sys.Descriptor().Name
			return fn(env, sys)
		})
	})
	r.observe(systemName, err, r.clock().Sub(started))
	if err != nil {
		return nil, err
	}
	r.assignEventIDs(receipt.Events)
	r.publish(receipt.Events)
	return receipt, nil
}

// View runs fn against the module registered under id without write access.
func (r *Root) View(ctx context.Context, from common.Address, id common.Hash, fn func(env *Env, sys System) error) error {
	return r.store.View(ctx, func(tx *store.Tx) error {
		caller := r.externalEnv(ctx, tx, from, nil, r.clock())
		return caller.enter(id, nil, fn)
	})
}

func (r *Root) externalEnv(ctx context.Context, tx *store.Tx, from common.Address, receipt *Receipt, now time.Time) *Env {
	return &Env{
		ctx:      ctx,
		root:     r,
		tx:       tx,
		sender:   from,
		origin:   from,
		self:     from,
		value:    new(big.Int),
		now:      now,
		receipt:  receipt,
		external: true,
	}
}

func (r *Root) observe(system string, err error, duration time.Duration) {
	r.hooksMu.RLock()
	observers := append([]CallObserver(nil), r.observers...)
	r.hooksMu.RUnlock()
	kind := KindOf(err)
	for _, observer := range observers {
		observer.ObserveCall(system, kind, duration)
	}
}

func (r *Root) assignEventIDs(events []Event) {
	for i := range events {
		id, err := r.idProvider.NewID()
		if err != nil {
			r.logger.Warn("event id generation failed", zap.String("event", events[i].Name), zap.Error(err))
			continue
		}
		events[i].ID = id
	}
}

func (r *Root) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	r.hooksMu.RLock()
	listeners := append([]EventListener(nil), r.listeners...)
	r.hooksMu.RUnlock()
	for _, listener := range listeners {
		listener.HandleEvents(events)
	}
}

func (r *Root) logError(operation string, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", CodeOf(err)),
		zap.Error(err),
	}
	switch KindOf(err) {
	case KindInternal:
		r.logger.Error("root operation failed", fields...)
	default:
		r.logger.Info("root operation rejected", fields...)
	}
}
