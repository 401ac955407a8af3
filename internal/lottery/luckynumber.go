package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	opRecordLuckyNumber = "lottery.lucky_number.record"
	opReadLuckyNumber   = "lottery.lucky_number.read"
)

var LuckyNumberSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameLuckyNumberSystem", Version: "1"}

var LuckyNumberSystemID = LuckyNumberSystemDescriptor.ID()

// LuckyNumberSystem accumulates the draw number of each game. Every sale
// chains the submitted number into a keccak digest; verification consumes the
// current value as the target of the result.
type LuckyNumberSystem struct{}

func NewLuckyNumberSystem() *LuckyNumberSystem {
	return &LuckyNumberSystem{}
}

func (*LuckyNumberSystem) Descriptor() gameroot.Descriptor { return LuckyNumberSystemDescriptor }

func (*LuckyNumberSystem) Tables() []store.Table {
	return []store.Table{LotteryGameLuckyNumTable}
}

func (*LuckyNumberSystem) RecordTicket(env *gameroot.Env, gameID, luckyNumber uint64) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	settings, err := loadGameSettings(env, gameID)
	if err != nil {
		return classify(opRecordLuckyNumber, err)
	}
	current, sum, err := loadLuckyNumberState(env, gameID)
	if err != nil {
		return classify(opRecordLuckyNumber, err)
	}
	sum.Add(sum, new(big.Int).SetUint64(luckyNumber))
	next := chainDraw(current, luckyNumber, sum, unixNow(env), settings.MaxLuckyNumber)
	return env.SetRecord(LotteryGameLuckyNumTable.ID, gameKey(gameID), [][]byte{
		store.EncodeUint64(next),
		store.EncodeUint256(sum),
	})
}

// DrawNumber is 0 until the first ticket is sold.
func (*LuckyNumberSystem) DrawNumber(env *gameroot.Env, gameID uint64) (uint64, error) {
	current, _, err := loadLuckyNumberState(env, gameID)
	return current, classify(opReadLuckyNumber, err)
}

// SumLuckyNumbers returns the sum of every submitted lucky number.
func (*LuckyNumberSystem) SumLuckyNumbers(env *gameroot.Env, gameID uint64) (*big.Int, error) {
	_, sum, err := loadLuckyNumberState(env, gameID)
	return sum, classify(opReadLuckyNumber, err)
}

// chainDraw maps keccak(previous, number, sum, now) into [1, maxLuckyNumber].
func chainDraw(previous, luckyNumber uint64, sum *big.Int, now, maxLuckyNumber uint64) uint64 {
	digest := crypto.Keccak256(
		store.EncodeUint64(previous),
		store.EncodeUint64(luckyNumber),
		store.EncodeUint256(sum),
		store.EncodeUint64(now),
	)
	modulus := new(big.Int).SetUint64(maxLuckyNumber)
	draw := new(big.Int).Mod(new(big.Int).SetBytes(digest), modulus)
	return draw.Uint64() + 1
}
