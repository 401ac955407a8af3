package gameroot

import (
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PlatformPrefix namespaces systems shipped with the platform itself.
const PlatformPrefix = "eno.systems"

// Descriptor names a module implementation.
type Descriptor struct {
	Prefix  string
	Name    string
	Version string
}

// ID returns keccak256(prefix + "." + name).
func (d Descriptor) ID() common.Hash {
	return SystemID(d.Prefix, d.Name)
}

func (d Descriptor) String() string {
	return d.Prefix + "." + d.Name + "@" + d.Version
}

// SystemID derives a system identifier.
func SystemID(prefix, name string) common.Hash {
	return crypto.Keccak256Hash([]byte(prefix + "." + name))
}

// System is a module that can be deployed to the root and dispatched to.
type System interface {
	Descriptor() Descriptor
	Tables() []store.Table
}

// ModuleAddress derives the deployment address of an implementation.
// The same descriptor always maps to the same address under a root.
func ModuleAddress(root common.Address, descriptor Descriptor) common.Address {
	codeHash := crypto.Keccak256([]byte(descriptor.String()))
	return crypto.CreateAddress2(root, [32]byte(descriptor.ID()), codeHash)
}
