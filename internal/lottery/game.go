package lottery

import (
	"fmt"
	"math"
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/collection"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"go.uber.org/zap"
)

const (
	opCreateGame = "lottery.game.create"
	opSetStatus  = "lottery.game.set_status"
	opReadGame   = "lottery.game.read"
)

var GameSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameSystem", Version: "1"}

var GameSystemID = GameSystemDescriptor.ID()

// GameSystem creates games and owns their lifecycle status.
type GameSystem struct{}

func NewGameSystem() *GameSystem {
	return &GameSystem{}
}

func (*GameSystem) Descriptor() gameroot.Descriptor { return GameSystemDescriptor }

func (*GameSystem) Tables() []store.Table {
	return []store.Table{LotteryGameTable, LotteryGameConfigTable, LotteryGameTierBonusTable, CounterTable}
}

// CreateLotteryGame opens a game owned by the sender. A zero startTime means
// now. The attached value seeds the bonus pool.
func (*GameSystem) CreateLotteryGame(env *gameroot.Env, description string, startTime, duration uint64) (uint64, error) {
	if duration == 0 {
		return 0, classify(opCreateGame, ErrInvalidDuration)
	}
	now := unixNow(env)
	if startTime == 0 {
		startTime = now
	}
	if startTime > math.MaxUint64-duration {
		return 0, classify(opCreateGame, fmt.Errorf("%w: start %d, duration %d", ErrEndTimeOverflow, startTime, duration))
	}
	settings, err := loadSettings(env)
	if err != nil {
		return 0, classify(opCreateGame, err)
	}
	if settings.TicketPrice.Sign() == 0 {
		return 0, classify(opCreateGame, ErrTicketPriceUnset)
	}
	if len(settings.TierBonusPercents) == 0 {
		return 0, classify(opCreateGame, ErrTierPercentsExhausted)
	}
	if err := settings.Validate(); err != nil {
		return 0, classify(opCreateGame, err)
	}

	gameID, err := bumpCounter(env, gameCounter, 0)
	if err != nil {
		return 0, classify(opCreateGame, err)
	}
	status := StatusCreated
	if startTime <= now {
		status = StatusActive
	}
	owner := env.Sender()
	endTime := startTime + duration
	key := gameKey(gameID)
	game := [][]byte{
		store.EncodeAddress(owner),
		store.EncodeString(description),
		store.EncodeUint64(startTime),
		store.EncodeUint64(endTime),
		store.EncodeUint64(uint64(status)),
	}
	if err := env.SetRecord(LotteryGameTable.ID, key, game); err != nil {
		return 0, err
	}
	snapshot := [][]byte{
		store.EncodeUint256(settings.TicketPrice),
		store.EncodeUint64(settings.MaxTicketCount),
		store.EncodeUint64(settings.MaxLuckyNumber),
		store.EncodeUint64(settings.OwnerFeeRate),
		store.EncodeUint64(settings.DevelopFeeRate),
		store.EncodeUint64(settings.VerifyFeeRate),
		store.EncodeUint64(settings.RefundPercent),
		store.EncodeUint64(settings.TicketBonusPercent),
		store.EncodeUint64(uint64(len(settings.TierBonusPercents))),
	}
	if err := env.SetRecord(LotteryGameConfigTable.ID, key, snapshot); err != nil {
		return 0, err
	}
	for tier, percent := range settings.TierBonusPercents {
		if err := env.SetField(LotteryGameTierBonusTable.ID, tierKey(gameID, uint64(tier)), 0, store.EncodeUint64(percent)); err != nil {
			return 0, err
		}
	}

	err = gameroot.CallWithValue(env, BonusPoolSystemID, env.Value(), func(env *gameroot.Env, pool *BonusPoolSystem) error {
		return pool.AddInitialBonus(env, gameID)
	})
	if err != nil {
		return 0, err
	}
	err = gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		_, err := set.Add(env, activeGamesKey(), new(big.Int).SetUint64(gameID))
		return err
	})
	if err != nil {
		return 0, err
	}

	env.Emit(EventGameCreated, GameTopic(gameID), map[string]any{
		"lottery_game_id": gameID,
		"owner":           owner.Hex(),
		"start_time":      startTime,
		"end_time":        endTime,
		"initial_bonus":   env.Value().String(),
	})
	env.Logger().Debug("lottery game created",
		zap.Uint64("lottery_game_id", gameID),
		zap.String("owner", owner.Hex()),
		zap.String("status", status.String()))
	return gameID, nil
}

// SetStatus moves a game forward. Setting the current status is a no-op.
func (*GameSystem) SetStatus(env *gameroot.Env, gameID uint64, status GameStatus) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	game, err := loadGame(env, gameID)
	if err != nil {
		return classify(opSetStatus, err)
	}
	if status < game.Status {
		return classify(opSetStatus, ErrStatusRegression)
	}
	if status == game.Status {
		return nil
	}
	return env.SetField(LotteryGameTable.ID, gameKey(gameID), 4, store.EncodeUint64(uint64(status)))
}

func (*GameSystem) Game(env *gameroot.Env, gameID uint64) (Game, error) {
	game, err := loadGame(env, gameID)
	return game, classify(opReadGame, err)
}

func (*GameSystem) GameSettings(env *gameroot.Env, gameID uint64) (GameSettings, error) {
	if _, err := loadGame(env, gameID); err != nil {
		return GameSettings{}, classify(opReadGame, err)
	}
	settings, err := loadGameSettings(env, gameID)
	return settings, classify(opReadGame, err)
}

// ActiveGames pages through games that have not been verified yet.
func (*GameSystem) ActiveGames(env *gameroot.Env, offset, limit uint64) ([]uint64, error) {
	var ids []uint64
	err := gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		values, err := set.Page(env, activeGamesKey(), offset, limit)
		if err != nil {
			return err
		}
		ids = toUint64s(values)
		return nil
	})
	return ids, err
}

func unixNow(env *gameroot.Env) uint64 {
	return uint64(env.Now().Unix())
}

func toUint64s(values []*big.Int) []uint64 {
	out := make([]uint64, 0, len(values))
	for _, value := range values {
		out = append(out, value.Uint64())
	}
	return out
}
