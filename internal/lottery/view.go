package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

const opView = "lottery.view"

var ViewSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameTicketViewSystem", Version: "1"}

var ViewSystemID = ViewSystemDescriptor.ID()

// TicketInfo joins a ticket with its game and token owner.
type TicketInfo struct {
	Ticket     Ticket         `json:"ticket"`
	Game       Game           `json:"game"`
	TokenOwner common.Address `json:"token_owner"`
	Order      *uint64        `json:"order,omitempty"`
}

// GameInfo is everything a client shows for one game.
type GameInfo struct {
	Game           Game         `json:"game"`
	Settings       GameSettings `json:"settings"`
	Pool           Pool         `json:"pool"`
	TicketsSold    uint64       `json:"tickets_sold"`
	DrawNumber     uint64       `json:"draw_number"`
	LuckyNumberSum *big.Int     `json:"lucky_number_sum"`
	Result         Result       `json:"result"`
}

// ViewSystem serves read-only projections. It never writes.
type ViewSystem struct{}

func NewViewSystem() *ViewSystem {
	return &ViewSystem{}
}

func (*ViewSystem) Descriptor() gameroot.Descriptor { return ViewSystemDescriptor }

func (*ViewSystem) Tables() []store.Table { return nil }

func (*ViewSystem) GetLotteryTicketInfo(env *gameroot.Env, ticketID uint64) (TicketInfo, error) {
	ticket, err := loadTicket(env, ticketID)
	if err != nil {
		return TicketInfo{}, classify(opView, err)
	}
	game, err := loadGame(env, ticket.GameID)
	if err != nil {
		return TicketInfo{}, classify(opView, err)
	}
	info := TicketInfo{Ticket: ticket, Game: game}
	data, err := env.GetField(LotteryTicketNFTOwnerTable.ID, ticketKey(ticketID), 0)
	if err != nil {
		return TicketInfo{}, classify(opView, err)
	}
	if info.TokenOwner, err = store.DecodeAddress(data); err != nil {
		return TicketInfo{}, classify(opView, err)
	}
	stored, err := luckyNumberOrder(env, ticket.GameID, ticket.LuckyNumber)
	if err != nil {
		return TicketInfo{}, classify(opView, err)
	}
	if stored > 0 {
		order := stored - 1
		info.Order = &order
	}
	return info, nil
}

func (*ViewSystem) GetLotteryGameInfo(env *gameroot.Env, gameID uint64) (GameInfo, error) {
	game, err := loadGame(env, gameID)
	if err != nil {
		return GameInfo{}, classify(opView, err)
	}
	info := GameInfo{Game: game}
	if info.Settings, err = loadGameSettings(env, gameID); err != nil {
		return GameInfo{}, classify(opView, err)
	}
	if info.Pool, err = loadPool(env, gameID); err != nil {
		return GameInfo{}, classify(opView, err)
	}
	if info.TicketsSold, err = soldCount(env, gameID); err != nil {
		return GameInfo{}, classify(opView, err)
	}
	if info.DrawNumber, info.LuckyNumberSum, err = loadLuckyNumberState(env, gameID); err != nil {
		return GameInfo{}, classify(opView, err)
	}
	if info.Result, err = loadResult(env, gameID); err != nil {
		return GameInfo{}, classify(opView, err)
	}
	return info, nil
}

// GetTicketOfOwner returns the ticket id owner holds in a game, or 0.
func (*ViewSystem) GetTicketOfOwner(env *gameroot.Env, gameID uint64, owner common.Address) (uint64, error) {
	ticketID, err := ticketIDOf(env, gameID, owner)
	return ticketID, classify(opView, err)
}
