package lottery

import (
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"go.uber.org/zap"
)

const opBuyTicket = "lottery.sell.buy_ticket"

var SellSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameSellSystem", Version: "1"}

var SellSystemID = SellSystemDescriptor.ID()

// SellSystem is the public entry point for ticket purchases.
type SellSystem struct{}

func NewSellSystem() *SellSystem {
	return &SellSystem{}
}

func (*SellSystem) Descriptor() gameroot.Descriptor { return SellSystemDescriptor }

func (*SellSystem) Tables() []store.Table { return nil }

// BuyLotteryTicketETH sells one ticket to the sender. The attached value must
// equal the game's ticket price exactly.
func (*SellSystem) BuyLotteryTicketETH(env *gameroot.Env, gameID, luckyNumber uint64) (uint64, error) {
	buyer := env.Sender()
	game, err := loadGame(env, gameID)
	if err != nil {
		return 0, classify(opBuyTicket, err)
	}
	settings, err := loadGameSettings(env, gameID)
	if err != nil {
		return 0, classify(opBuyTicket, err)
	}
	if err := checkOpen(env, game, settings); err != nil {
		return 0, classify(opBuyTicket, err)
	}
	if luckyNumber == 0 || luckyNumber > settings.MaxLuckyNumber {
		return 0, classify(opBuyTicket, ErrInvalidLuckyNumber)
	}
	existing, err := ticketIDOf(env, gameID, buyer)
	if err != nil {
		return 0, classify(opBuyTicket, err)
	}
	if existing != 0 {
		return 0, classify(opBuyTicket, ErrDuplicateTicket)
	}
	price := env.Value()
	if price.Cmp(settings.TicketPrice) != 0 {
		return 0, classify(opBuyTicket, ErrInvalidPrice)
	}

	if game.Status == StatusCreated {
		err := gameroot.Call(env, GameSystemID, func(env *gameroot.Env, games *GameSystem) error {
			return games.SetStatus(env, gameID, StatusActive)
		})
		if err != nil {
			return 0, err
		}
	}
	var ticketID uint64
	err = gameroot.Call(env, TicketSystemID, func(env *gameroot.Env, tickets *TicketSystem) error {
		var err error
		ticketID, err = tickets.CreateTicket(env, gameID, buyer, luckyNumber, settings.TicketBonusPercent)
		return err
	})
	if err != nil {
		return 0, err
	}
	err = gameroot.Call(env, CoreSystemID, func(env *gameroot.Env, core *CoreSystem) error {
		return core.AddLotteryGameLuckyNumber(env, gameID, luckyNumber)
	})
	if err != nil {
		return 0, err
	}
	err = gameroot.Call(env, LuckyNumberSystemID, func(env *gameroot.Env, numbers *LuckyNumberSystem) error {
		return numbers.RecordTicket(env, gameID, luckyNumber)
	})
	if err != nil {
		return 0, err
	}
	err = gameroot.CallWithValue(env, BonusPoolSystemID, price, func(env *gameroot.Env, pool *BonusPoolSystem) error {
		return pool.AddTicketSale(env, gameID)
	})
	if err != nil {
		return 0, err
	}
	err = gameroot.Call(env, TicketNFTSystemID, func(env *gameroot.Env, nft *TicketNFTSystem) error {
		return nft.Mint(env, buyer, ticketID)
	})
	if err != nil {
		return 0, err
	}

	env.Emit(EventTicketBuy, GameTopic(gameID), map[string]any{
		"lottery_game_id": gameID,
		"buyer":           buyer.Hex(),
		"ticket_id":       ticketID,
		"lucky_number":    luckyNumber,
	})
	env.Logger().Debug("lottery ticket sold",
		zap.Uint64("lottery_game_id", gameID),
		zap.Uint64("ticket_id", ticketID),
		zap.String("buyer", buyer.Hex()))
	return ticketID, nil
}

func checkOpen(env *gameroot.Env, game Game, settings GameSettings) error {
	now := unixNow(env)
	switch {
	case game.Status == StatusVerified:
		return ErrGameAlreadyVerified
	case now < game.StartTime:
		return ErrGameNotStarted
	case now >= game.EndTime:
		return ErrGameClosed
	}
	sold, err := soldCount(env, game.ID)
	if err != nil {
		return err
	}
	if sold >= settings.MaxTicketCount {
		return ErrSoldOut
	}
	return nil
}
