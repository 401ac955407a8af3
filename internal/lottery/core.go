package lottery

import (
	"math/big"
	"slices"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/collection"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
)

const (
	opAddLuckyNumber = "lottery.core.add_lucky_number"
	opComputeResult  = "lottery.core.compute_result"
	opReadCore       = "lottery.core.read"
)

var CoreSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameLotteryCoreSystem", Version: "1"}

var CoreSystemID = CoreSystemDescriptor.ID()

// CoreSystem indexes submitted lucky numbers per game and freezes the
// ranked result.
type CoreSystem struct{}

func NewCoreSystem() *CoreSystem {
	return &CoreSystem{}
}

func (*CoreSystem) Descriptor() gameroot.Descriptor { return CoreSystemDescriptor }

func (*CoreSystem) Tables() []store.Table {
	return []store.Table{LotteryGameResultTable, LotteryGameResultTierTable, LotteryGameResultOrderTable}
}

// AddLotteryGameLuckyNumber counts value into the game's pool. The pool is
// closed once the result is computed.
func (*CoreSystem) AddLotteryGameLuckyNumber(env *gameroot.Env, gameID, value uint64) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	computed, err := resultComputed(env, gameID)
	if err != nil {
		return classify(opAddLuckyNumber, err)
	}
	if computed {
		return classify(opAddLuckyNumber, ErrResultComputed)
	}
	return gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		_, err := set.Add(env, luckyNumbersKey(gameID), new(big.Int).SetUint64(value))
		return err
	})
}

func (*CoreSystem) GetLuckNumberCount(env *gameroot.Env, gameID, value uint64) (uint64, error) {
	var count uint64
	err := gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		var err error
		count, err = set.Count(env, luckyNumbersKey(gameID), new(big.Int).SetUint64(value))
		return err
	})
	return count, err
}

// GetLuckNumbers returns distinct values in first-insertion order.
func (*CoreSystem) GetLuckNumbers(env *gameroot.Env, gameID uint64) ([]uint64, error) {
	return luckyNumbers(env, gameID)
}

// GetLuckNumbersWithSort returns distinct values in ascending order.
func (*CoreSystem) GetLuckNumbersWithSort(env *gameroot.Env, gameID uint64) ([]uint64, error) {
	values, err := luckyNumbers(env, gameID)
	if err != nil {
		return nil, err
	}
	slices.Sort(values)
	return values, nil
}

// GetLuckNumberByClosest returns up to k distinct values ordered by distance
// to target. Equal distances put the smaller value first.
func (*CoreSystem) GetLuckNumberByClosest(env *gameroot.Env, gameID, target, k uint64) ([]uint64, error) {
	if k == 0 {
		return nil, classify(opReadCore, ErrClosestCountZero)
	}
	values, err := luckyNumbers(env, gameID)
	if err != nil {
		return nil, err
	}
	return closest(values, target, k), nil
}

// ComputeLotteryResult freezes the closest values to target into one tier
// per distinct value. The tier count is the game's configured N.
func (*CoreSystem) ComputeLotteryResult(env *gameroot.Env, gameID, target uint64) (Result, error) {
	if err := env.RequireInternal(); err != nil {
		return Result{}, err
	}
	computed, err := resultComputed(env, gameID)
	if err != nil {
		return Result{}, classify(opComputeResult, err)
	}
	if computed {
		return Result{}, classify(opComputeResult, ErrResultComputed)
	}
	settings, err := loadGameSettings(env, gameID)
	if err != nil {
		return Result{}, classify(opComputeResult, err)
	}
	tierCount := uint64(len(settings.TierBonusPercents))
	if tierCount == 0 {
		return Result{}, classify(opComputeResult, ErrTierPercentsExhausted)
	}

	var (
		values []*big.Int
		counts []uint64
	)
	err = gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		all, err := set.Values(env, luckyNumbersKey(gameID))
		if err != nil {
			return err
		}
		for _, value := range closest(toUint64s(all), target, tierCount) {
			count, err := set.Count(env, luckyNumbersKey(gameID), new(big.Int).SetUint64(value))
			if err != nil {
				return err
			}
			values = append(values, new(big.Int).SetUint64(value))
			counts = append(counts, count)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Computed: true, LuckyNumber: target, Tiers: make([]Tier, 0, len(values))}
	for order, value := range values {
		tier := Tier{Order: uint64(order), LuckyNumber: value.Uint64(), TicketCount: counts[order]}
		record := [][]byte{store.EncodeUint64(tier.LuckyNumber), store.EncodeUint64(tier.TicketCount)}
		if err := env.SetRecord(LotteryGameResultTierTable.ID, tierKey(gameID, tier.Order), record); err != nil {
			return Result{}, err
		}
		// Stored as order+1 so that an unwritten row reads as "not found".
		if err := env.SetField(LotteryGameResultOrderTable.ID, luckyOrderKey(gameID, tier.LuckyNumber), 0, store.EncodeUint64(tier.Order+1)); err != nil {
			return Result{}, err
		}
		result.Tiers = append(result.Tiers, tier)
	}
	summary := [][]byte{
		store.EncodeBool(true),
		store.EncodeUint64(target),
		store.EncodeUint64(uint64(len(result.Tiers))),
	}
	if err := env.SetRecord(LotteryGameResultTable.ID, gameKey(gameID), summary); err != nil {
		return Result{}, err
	}
	return result, nil
}

// GetLotteryLuckNumberOrder returns the frozen tier of value, or notFound.
func (*CoreSystem) GetLotteryLuckNumberOrder(env *gameroot.Env, gameID, value, notFound uint64) (uint64, error) {
	order, err := luckyNumberOrder(env, gameID, value)
	if err != nil {
		return 0, classify(opReadCore, err)
	}
	if order == 0 {
		return notFound, nil
	}
	return order - 1, nil
}

func (*CoreSystem) Result(env *gameroot.Env, gameID uint64) (Result, error) {
	result, err := loadResult(env, gameID)
	return result, classify(opReadCore, err)
}

func luckyNumbers(env *gameroot.Env, gameID uint64) ([]uint64, error) {
	var out []uint64
	err := gameroot.Call(env, collection.SetSystemID, func(env *gameroot.Env, set *collection.SetSystem) error {
		values, err := set.Values(env, luckyNumbersKey(gameID))
		if err != nil {
			return err
		}
		out = toUint64s(values)
		return nil
	})
	return out, err
}

func resultComputed(r reader, gameID uint64) (bool, error) {
	data, err := r.GetField(LotteryGameResultTable.ID, gameKey(gameID), 0)
	if err != nil {
		return false, err
	}
	return store.DecodeBool(data)
}

// luckyNumberOrder returns the stored order+1, or 0 when value is in no tier.
func luckyNumberOrder(r reader, gameID, value uint64) (uint64, error) {
	return readUint64(r, LotteryGameResultOrderTable, luckyOrderKey(gameID, value), 0)
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// closest orders values by (distance to target, value) and keeps the first k.
func closest(values []uint64, target, k uint64) []uint64 {
	ranked := slices.Clone(values)
	slices.SortFunc(ranked, func(a, b uint64) int {
		da, db := distance(a, target), distance(b, target)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
	if uint64(len(ranked)) > k {
		ranked = ranked[:k]
	}
	return ranked
}
