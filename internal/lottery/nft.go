package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/collection"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

const (
	opMint    = "lottery.nft.mint"
	opReadNFT = "lottery.nft.read"
)

var TicketNFTSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameTicketNFTSystem", Version: "1"}

var TicketNFTSystemID = TicketNFTSystemDescriptor.ID()

// TicketNFTSystem records ticket ownership tokens. Token id equals ticket id.
// Tokens cannot be transferred.
type TicketNFTSystem struct{}

func NewTicketNFTSystem() *TicketNFTSystem {
	return &TicketNFTSystem{}
}

func (*TicketNFTSystem) Descriptor() gameroot.Descriptor { return TicketNFTSystemDescriptor }

func (*TicketNFTSystem) Tables() []store.Table {
	return []store.Table{LotteryTicketNFTOwnerTable, CounterTable}
}

func (*TicketNFTSystem) Mint(env *gameroot.Env, owner common.Address, tokenID uint64) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	if owner == (common.Address{}) {
		return classify(opMint, ErrZeroOwner)
	}
	exists, err := env.HasRecord(LotteryTicketNFTOwnerTable.ID, ticketKey(tokenID))
	if err != nil {
		return classify(opMint, err)
	}
	if exists {
		return classify(opMint, ErrTokenExists)
	}
	if err := env.SetField(LotteryTicketNFTOwnerTable.ID, ticketKey(tokenID), 0, store.EncodeAddress(owner)); err != nil {
		return err
	}
	if _, err := bumpCounter(env, nftSupply, 0); err != nil {
		return classify(opMint, err)
	}
	err = gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		_, err := set.Add(env, nftOwnerTokensKey(owner), new(big.Int).SetUint64(tokenID))
		return err
	})
	if err != nil {
		return err
	}
	env.Emit(EventTicketMinted, owner.Hex(), map[string]any{
		"from":     common.Address{}.Hex(),
		"to":       owner.Hex(),
		"token_id": tokenID,
	})
	return nil
}

func (*TicketNFTSystem) OwnerOf(env *gameroot.Env, tokenID uint64) (common.Address, error) {
	exists, err := env.HasRecord(LotteryTicketNFTOwnerTable.ID, ticketKey(tokenID))
	if err != nil {
		return common.Address{}, classify(opReadNFT, err)
	}
	if !exists {
		return common.Address{}, classify(opReadNFT, ErrTokenNotFound)
	}
	data, err := env.GetField(LotteryTicketNFTOwnerTable.ID, ticketKey(tokenID), 0)
	if err != nil {
		return common.Address{}, classify(opReadNFT, err)
	}
	owner, err := store.DecodeAddress(data)
	return owner, classify(opReadNFT, err)
}

func (*TicketNFTSystem) BalanceOf(env *gameroot.Env, owner common.Address) (uint64, error) {
	var balance uint64
	err := gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		var err error
		balance, err = set.Len(env, nftOwnerTokensKey(owner))
		return err
	})
	return balance, err
}

func (*TicketNFTSystem) TokenOfOwnerByIndex(env *gameroot.Env, owner common.Address, index uint64) (uint64, error) {
	var tokenID uint64
	err := gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		value, err := set.At(env, nftOwnerTokensKey(owner), index)
		if err != nil {
			return err
		}
		tokenID = value.Uint64()
		return nil
	})
	return tokenID, err
}

func (*TicketNFTSystem) TotalSupply(env *gameroot.Env) (uint64, error) {
	supply, err := readCounter(env, nftSupply)
	return supply, classify(opReadNFT, err)
}
