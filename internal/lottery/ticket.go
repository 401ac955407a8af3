package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

const (
	opCreateTicket = "lottery.ticket.create"
	opRecordReward = "lottery.ticket.record_reward"
	opReadTicket   = "lottery.ticket.read"
)

var TicketSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameTicketSystem", Version: "1"}

var TicketSystemID = TicketSystemDescriptor.ID()

// TicketSystem owns ticket rows, the per-game owner index and sold counters.
type TicketSystem struct{}

func NewTicketSystem() *TicketSystem {
	return &TicketSystem{}
}

func (*TicketSystem) Descriptor() gameroot.Descriptor { return TicketSystemDescriptor }

func (*TicketSystem) Tables() []store.Table {
	return []store.Table{LotteryTicketTable, LotteryGameTicketTable, LotteryGameTicketOwnerTable, CounterTable}
}

// CreateTicket issues the next global ticket id. Ids start at 1 so that 0 can
// mean "no ticket" in the owner index.
func (*TicketSystem) CreateTicket(env *gameroot.Env, gameID uint64, owner common.Address, luckyNumber, bonusPercent uint64) (uint64, error) {
	if err := env.RequireInternal(); err != nil {
		return 0, err
	}
	existing, err := ticketIDOf(env, gameID, owner)
	if err != nil {
		return 0, classify(opCreateTicket, err)
	}
	if existing != 0 {
		return 0, classify(opCreateTicket, ErrDuplicateTicket)
	}
	ticketID, err := bumpCounter(env, ticketCounter, 1)
	if err != nil {
		return 0, classify(opCreateTicket, err)
	}
	row := [][]byte{
		store.EncodeUint64(gameID),
		store.EncodeAddress(owner),
		store.EncodeUint64(luckyNumber),
		store.EncodeUint64(unixNow(env)),
		store.EncodeUint64(bonusPercent),
		store.EncodeBool(false),
		store.EncodeUint64(0),
		store.EncodeUint64(0),
		store.EncodeUint64(0),
	}
	if err := env.SetRecord(LotteryTicketTable.ID, ticketKey(ticketID), row); err != nil {
		return 0, err
	}
	if err := env.SetField(LotteryGameTicketOwnerTable.ID, ownerKey(gameID, owner), 0, store.EncodeUint64(ticketID)); err != nil {
		return 0, err
	}
	sold, err := soldCount(env, gameID)
	if err != nil {
		return 0, classify(opCreateTicket, err)
	}
	if err := env.SetField(LotteryGameTicketTable.ID, gameKey(gameID), 0, store.EncodeUint64(sold+1)); err != nil {
		return 0, err
	}
	return ticketID, nil
}

// RecordReward fills the reward fields of a ticket. They are written once.
func (*TicketSystem) RecordReward(env *gameroot.Env, ticketID, level uint64, amount *big.Int) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	ticket, err := loadTicket(env, ticketID)
	if err != nil {
		return classify(opRecordReward, err)
	}
	if ticket.IsRewardBonus {
		return classify(opRecordReward, ErrAlreadyClaimed)
	}
	key := ticketKey(ticketID)
	writes := []struct {
		slot uint8
		data []byte
	}{
		{5, store.EncodeBool(true)},
		{6, store.EncodeUint64(unixNow(env))},
		{7, store.EncodeUint64(level)},
		{8, store.EncodeUint256(amount)},
	}
	for _, write := range writes {
		if err := env.SetField(LotteryTicketTable.ID, key, write.slot, write.data); err != nil {
			return err
		}
	}
	return nil
}

func (*TicketSystem) Ticket(env *gameroot.Env, ticketID uint64) (Ticket, error) {
	ticket, err := loadTicket(env, ticketID)
	return ticket, classify(opReadTicket, err)
}

// TicketOf returns the owner's ticket id for a game, or 0.
func (*TicketSystem) TicketOf(env *gameroot.Env, gameID uint64, owner common.Address) (uint64, error) {
	ticketID, err := ticketIDOf(env, gameID, owner)
	return ticketID, classify(opReadTicket, err)
}

func (*TicketSystem) SoldCount(env *gameroot.Env, gameID uint64) (uint64, error) {
	sold, err := soldCount(env, gameID)
	return sold, classify(opReadTicket, err)
}
