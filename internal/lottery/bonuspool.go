package lottery

import (
	"fmt"
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

const (
	opPoolSeed     = "lottery.pool.add_initial_bonus"
	opPoolSale     = "lottery.pool.add_ticket_sale"
	opPoolSettle   = "lottery.pool.settle"
	opPoolWithdraw = "lottery.pool.withdraw_bonus"
	opPoolRead     = "lottery.pool.read"
	opPoolWrite    = "lottery.pool.write"
)

var BonusPoolSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameBonusPoolSystem", Version: "1"}

var BonusPoolSystemID = BonusPoolSystemDescriptor.ID()

// BonusPoolSystem keeps the per-game ledger and holds the native value behind it.
// Every mutation preserves total == bonus + ownerFee + developFee + verifyFee.
type BonusPoolSystem struct{}

func NewBonusPoolSystem() *BonusPoolSystem {
	return &BonusPoolSystem{}
}

func (*BonusPoolSystem) Descriptor() gameroot.Descriptor { return BonusPoolSystemDescriptor }

func (*BonusPoolSystem) Tables() []store.Table {
	return []store.Table{LotteryGameBonusPoolTable}
}

// AddInitialBonus adds the attached value to both total and bonus.
func (*BonusPoolSystem) AddInitialBonus(env *gameroot.Env, gameID uint64) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	pool, err := loadPool(env, gameID)
	if err != nil {
		return classify(opPoolSeed, err)
	}
	amount := env.Value()
	pool.Total.Add(pool.Total, amount)
	pool.Bonus.Add(pool.Bonus, amount)
	return writePool(env, gameID, pool)
}

// AddTicketSale books one sale. Fees accrue at the game's rates and bonus is
// recomputed as the residual.
func (*BonusPoolSystem) AddTicketSale(env *gameroot.Env, gameID uint64) error {
	if err := env.RequireInternal(); err != nil {
		return err
	}
	settings, err := loadGameSettings(env, gameID)
	if err != nil {
		return classify(opPoolSale, err)
	}
	pool, err := loadPool(env, gameID)
	if err != nil {
		return classify(opPoolSale, err)
	}
	price := env.Value()
	pool.Total.Add(pool.Total, price)
	pool.OwnerFee.Add(pool.OwnerFee, percentOf(price, settings.OwnerFeeRate))
	pool.DevelopFee.Add(pool.DevelopFee, percentOf(price, settings.DevelopFeeRate))
	if pool.Bonus, err = residual(pool); err != nil {
		return classify(opPoolSale, err)
	}
	return writePool(env, gameID, pool)
}

// Settle finalizes the ledger at verification and pays fees into safe boxes.
// With no sales every fee is zero and refundPercent of the bonus goes back to
// the game owner. Otherwise the verify fee is cut from the bonus and each fee
// goes to its beneficiary.
func (*BonusPoolSystem) Settle(env *gameroot.Env, gameID uint64, verifier common.Address) (Pool, error) {
	if err := env.RequireInternal(); err != nil {
		return Pool{}, err
	}
	game, err := loadGame(env, gameID)
	if err != nil {
		return Pool{}, classify(opPoolSettle, err)
	}
	settings, err := loadGameSettings(env, gameID)
	if err != nil {
		return Pool{}, classify(opPoolSettle, err)
	}
	sold, err := soldCount(env, gameID)
	if err != nil {
		return Pool{}, classify(opPoolSettle, err)
	}
	pool, err := loadPool(env, gameID)
	if err != nil {
		return Pool{}, classify(opPoolSettle, err)
	}

	if sold == 0 {
		pool.OwnerFee = new(big.Int)
		pool.DevelopFee = new(big.Int)
		pool.VerifyFee = new(big.Int)
		pool.Bonus = new(big.Int).Set(pool.Total)
		pool.Withdrawn = percentOf(pool.Bonus, settings.RefundPercent)
		if err := writePool(env, gameID, pool); err != nil {
			return Pool{}, err
		}
		if err := payToSafeBox(env, game.Owner, pool.Withdrawn); err != nil {
			return Pool{}, err
		}
		return pool, nil
	}

	pool.VerifyFee = percentOf(pool.Bonus, settings.VerifyFeeRate)
	if pool.Bonus, err = residual(pool); err != nil {
		return Pool{}, classify(opPoolSettle, err)
	}
	if err := writePool(env, gameID, pool); err != nil {
		return Pool{}, err
	}
	developer, err := loadDeveloper(env)
	if err != nil {
		return Pool{}, classify(opPoolSettle, err)
	}
	if developer == (common.Address{}) {
		developer = game.Owner
	}
	payouts := []struct {
		to     common.Address
		amount *big.Int
	}{
		{game.Owner, pool.OwnerFee},
		{developer, pool.DevelopFee},
		{verifier, pool.VerifyFee},
	}
	for _, payout := range payouts {
		if err := payToSafeBox(env, payout.to, payout.amount); err != nil {
			return Pool{}, err
		}
	}
	return pool, nil
}

// WithdrawBonus pays one prize allocation. ticketBonusPercent of it goes to
// the ticket owner and the remainder to the game owner.
func (*BonusPoolSystem) WithdrawBonus(env *gameroot.Env, gameID uint64, allocation *big.Int, ticketOwner, gameOwner common.Address, ticketBonusPercent uint64) (*big.Int, error) {
	if err := env.RequireInternal(); err != nil {
		return nil, err
	}
	pool, err := loadPool(env, gameID)
	if err != nil {
		return nil, classify(opPoolWithdraw, err)
	}
	withdrawn := new(big.Int).Add(pool.Withdrawn, allocation)
	if ticketBonusPercent > 100 {
		return nil, classify(opPoolWithdraw, fmt.Errorf("%w: ticket bonus percent %d", ErrPoolUnderflow, ticketBonusPercent))
	}
	if allocation.Sign() <= 0 || withdrawn.Cmp(pool.Bonus) > 0 {
		return nil, classify(opPoolWithdraw, fmt.Errorf("%w: allocation %s, withdrawn %s of %s",
			ErrBonusExhausted, allocation, pool.Withdrawn, pool.Bonus))
	}
	pool.Withdrawn = withdrawn
	if err := writePool(env, gameID, pool); err != nil {
		return nil, err
	}
	payout := percentOf(allocation, ticketBonusPercent)
	remainder := new(big.Int).Sub(allocation, payout)
	if err := payToSafeBox(env, ticketOwner, payout); err != nil {
		return nil, err
	}
	if err := payToSafeBox(env, gameOwner, remainder); err != nil {
		return nil, err
	}
	return payout, nil
}

func (*BonusPoolSystem) Pool(env *gameroot.Env, gameID uint64) (Pool, error) {
	if _, err := loadGame(env, gameID); err != nil {
		return Pool{}, classify(opPoolRead, err)
	}
	pool, err := loadPool(env, gameID)
	return pool, classify(opPoolRead, err)
}

// residual is total less every fee. Fees above the total are an error.
func residual(pool Pool) (*big.Int, error) {
	bonus := new(big.Int).Sub(pool.Total, pool.OwnerFee)
	bonus.Sub(bonus, pool.DevelopFee)
	bonus.Sub(bonus, pool.VerifyFee)
	if bonus.Sign() < 0 {
		return nil, fmt.Errorf("%w: fees exceed total %s", ErrPoolUnderflow, pool.Total)
	}
	return bonus, nil
}

func writePool(env *gameroot.Env, gameID uint64, pool Pool) error {
	for _, v := range []*big.Int{pool.Total, pool.Bonus, pool.OwnerFee, pool.DevelopFee, pool.VerifyFee, pool.Withdrawn} {
		if err := store.CheckUint256(v); err != nil {
			return classify(opPoolWrite, fmt.Errorf("%w: %v", ErrPoolUnderflow, err))
		}
	}
	return env.SetRecord(LotteryGameBonusPoolTable.ID, gameKey(gameID), [][]byte{
		store.EncodeUint256(pool.Total),
		store.EncodeUint256(pool.Bonus),
		store.EncodeUint256(pool.OwnerFee),
		store.EncodeUint256(pool.DevelopFee),
		store.EncodeUint256(pool.VerifyFee),
		store.EncodeUint256(pool.Withdrawn),
	})
}

// payToSafeBox moves amount from the running module into owner's safe box.
func payToSafeBox(env *gameroot.Env, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return gameroot.CallWithValue(env, SafeBoxSystemID, amount, func(env *gameroot.Env, box *SafeBoxSystem) error {
		return box.DepositETH(env, owner)
	})
}
