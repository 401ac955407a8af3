package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/collection"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"go.uber.org/zap"
)

const opVerify = "lottery.verify"

var VerifySystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameLotteryResultVerifySystem", Version: "1"}

var VerifySystemID = VerifySystemDescriptor.ID()

// VerifySystem closes a game after its end time. Anyone may verify; the
// caller earns the verify fee.
type VerifySystem struct{}

func NewVerifySystem() *VerifySystem {
	return &VerifySystem{}
}

func (*VerifySystem) Descriptor() gameroot.Descriptor { return VerifySystemDescriptor }

func (*VerifySystem) Tables() []store.Table { return nil }

// Verify settles the pool, freezes the result when tickets were sold and
// marks the game verified. It succeeds once per game.
func (*VerifySystem) Verify(env *gameroot.Env, gameID uint64) (Result, error) {
	verifier := env.Sender()
	game, err := loadGame(env, gameID)
	if err != nil {
		return Result{}, classify(opVerify, err)
	}
	if game.Status == StatusVerified {
		return Result{}, classify(opVerify, ErrGameAlreadyVerified)
	}
	if unixNow(env) < game.EndTime {
		return Result{}, classify(opVerify, ErrGameNotEnded)
	}

	var pool Pool
	err = gameroot.Call(env, BonusPoolSystemID, func(env *gameroot.Env, bonus *BonusPoolSystem) error {
		var err error
		pool, err = bonus.Settle(env, gameID, verifier)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	sold, err := soldCount(env, gameID)
	if err != nil {
		return Result{}, classify(opVerify, err)
	}
	result := Result{}
	if sold > 0 {
		var draw uint64
		err = gameroot.Call(env, LuckyNumberSystemID, func(env *gameroot.Env, numbers *LuckyNumberSystem) error {
			var err error
			draw, err = numbers.DrawNumber(env, gameID)
			return err
		})
		if err != nil {
			return Result{}, err
		}
		err = gameroot.Call(env, CoreSystemID, func(env *gameroot.Env, core *CoreSystem) error {
			var err error
			result, err = core.ComputeLotteryResult(env, gameID, draw)
			return err
		})
		if err != nil {
			return Result{}, err
		}
	}

	err = gameroot.Call(env, GameSystemID, func(env *gameroot.Env, games *GameSystem) error {
		return games.SetStatus(env, gameID, StatusVerified)
	})
	if err != nil {
		return Result{}, err
	}
	err = gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		_, err := set.Remove(env, activeGamesKey(), new(big.Int).SetUint64(gameID))
		return err
	})
	if err != nil {
		return Result{}, err
	}

	env.Emit(EventResultVerified, GameTopic(gameID), map[string]any{
		"lottery_game_id": gameID,
		"lucky_number":    result.LuckyNumber,
		"verifier":        verifier.Hex(),
		"tickets_sold":    sold,
		"bonus":           pool.Bonus.String(),
		"refunded":        pool.Withdrawn.String(),
	})
	env.Logger().Info("lottery game verified",
		zap.Uint64("lottery_game_id", gameID),
		zap.Uint64("tickets_sold", sold),
		zap.Uint64("lucky_number", result.LuckyNumber))
	return result, nil
}
