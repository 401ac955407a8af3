// Package access keeps role membership in two scopes: a global scope owned by
// the platform root and a local scope per module address.
package access

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const namespace = "eno"

// Role identifiers. The default admin role is the zero word.
var (
	RoleDefaultAdmin = common.Hash{}
	RolePauser       = crypto.Keccak256Hash([]byte("PAUSER_ROLE"))
	RoleUpgrader     = crypto.Keccak256Hash([]byte("UPGRADER_ROLE"))
	RoleStoreWriter  = crypto.Keccak256Hash([]byte("STORE_WRITER_ROLE"))
	RoleInternal     = crypto.Keccak256Hash([]byte("INTERNAL_ROLE"))
)

// RootScope addresses the global role table.
var RootScope = common.Address{}

var (
	GlobalRoleTable = store.DefineTable(namespace, "RoleGlobalTable",
		store.Field{Name: "HasRole", Type: store.FieldBool},
	)
	LocalRoleTable = store.DefineTable(namespace, "RoleLocalTable",
		store.Field{Name: "HasRole", Type: store.FieldBool},
	)
)

var ErrZeroAccount = errors.New("access: account must not be the zero address")

// MissingRoleError identifies the account and role that failed a check.
type MissingRoleError struct {
	Scope   common.Address
	Role    common.Hash
	Account common.Address
}

func (e *MissingRoleError) Error() string {
	if e.Scope == RootScope {
		return fmt.Sprintf("access: account %s is missing role %s", e.Account.Hex(), RoleName(e.Role))
	}
	return fmt.Sprintf("access: account %s is missing role %s on %s", e.Account.Hex(), RoleName(e.Role), e.Scope.Hex())
}

// RoleName renders the well-known roles by name.
func RoleName(role common.Hash) string {
	switch role {
	case RoleDefaultAdmin:
		return "DEFAULT_ADMIN_ROLE"
	case RolePauser:
		return "PAUSER_ROLE"
	case RoleUpgrader:
		return "UPGRADER_ROLE"
	case RoleStoreWriter:
		return "STORE_WRITER_ROLE"
	case RoleInternal:
		return "INTERNAL_ROLE"
	default:
		return role.Hex()
	}
}

// RoleByName resolves a well-known role name. Unknown names fail.
func RoleByName(name string) (common.Hash, bool) {
	for _, role := range []common.Hash{RoleDefaultAdmin, RolePauser, RoleUpgrader, RoleStoreWriter, RoleInternal} {
		if RoleName(role) == name {
			return role, true
		}
	}
	return common.Hash{}, false
}

// Tables lists the schemas used by this package.
func Tables() []store.Table {
	return []store.Table{GlobalRoleTable, LocalRoleTable}
}

// Reader is the read side of a store transaction.
type Reader interface {
	GetField(table store.TableID, key store.Key, slot uint8) ([]byte, error)
}

// Writer is the write side of a store transaction.
type Writer interface {
	Reader
	SetField(table store.TableID, key store.Key, slot uint8, data []byte) error
}

func globalKey(role common.Hash, account common.Address) store.Key {
	return store.KeyOf(role, store.AddressWord(account))
}

func localKey(scope common.Address, role common.Hash, account common.Address) store.Key {
	return store.KeyOf(store.AddressWord(scope), role, store.AddressWord(account))
}

func readFlag(r Reader, table store.TableID, key store.Key) (bool, error) {
	data, err := r.GetField(table, key, 0)
	if err != nil {
		return false, err
	}
	return store.DecodeBool(data)
}

// HasGlobalRole reads the global scope only.
func HasGlobalRole(r Reader, role common.Hash, account common.Address) (bool, error) {
	return readFlag(r, GlobalRoleTable.ID, globalKey(role, account))
}

// HasLocalRole reads the module-local scope only.
func HasLocalRole(r Reader, scope common.Address, role common.Hash, account common.Address) (bool, error) {
	if scope == RootScope {
		return false, nil
	}
	return readFlag(r, LocalRoleTable.ID, localKey(scope, role, account))
}

// HasRole reports the effective role: global OR local to scope.
func HasRole(r Reader, scope common.Address, role common.Hash, account common.Address) (bool, error) {
	global, err := HasGlobalRole(r, role, account)
	if err != nil || global {
		return global, err
	}
	return HasLocalRole(r, scope, role, account)
}

// CheckRole returns a MissingRoleError when account lacks the effective role.
func CheckRole(r Reader, scope common.Address, role common.Hash, account common.Address) error {
	ok, err := HasRole(r, scope, role, account)
	if err != nil {
		return err
	}
	if !ok {
		return &MissingRoleError{Scope: scope, Role: role, Account: account}
	}
	return nil
}

// Grant sets membership in exactly one scope: global for RootScope, local otherwise.
func Grant(w Writer, scope common.Address, role common.Hash, account common.Address) error {
	return setMembership(w, scope, role, account, true)
}

// Revoke clears membership in exactly one scope.
func Revoke(w Writer, scope common.Address, role common.Hash, account common.Address) error {
	return setMembership(w, scope, role, account, false)
}

func setMembership(w Writer, scope common.Address, role common.Hash, account common.Address, member bool) error {
	if account == (common.Address{}) {
		return ErrZeroAccount
	}
	if scope == RootScope {
		return w.SetField(GlobalRoleTable.ID, globalKey(role, account), 0, store.EncodeBool(member))
	}
	return w.SetField(LocalRoleTable.ID, localKey(scope, role, account), 0, store.EncodeBool(member))
}
