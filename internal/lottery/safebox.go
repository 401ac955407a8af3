package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

const (
	opSafeBoxDeposit  = "lottery.safebox.deposit"
	opSafeBoxWithdraw = "lottery.safebox.withdraw"
	opSafeBoxRead     = "lottery.safebox.read"
)

var SafeBoxSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameLotteryWalletSafeBoxSystem", Version: "1"}

var SafeBoxSystemID = SafeBoxSystemDescriptor.ID()

// SafeBoxSystem holds native balances owed to accounts until they withdraw.
type SafeBoxSystem struct{}

func NewSafeBoxSystem() *SafeBoxSystem {
	return &SafeBoxSystem{}
}

func (*SafeBoxSystem) Descriptor() gameroot.Descriptor { return SafeBoxSystemDescriptor }

func (*SafeBoxSystem) Tables() []store.Table {
	return []store.Table{LotteryGameWalletSafeBoxTable}
}

// DepositETH credits the attached value to owner's box.
func (*SafeBoxSystem) DepositETH(env *gameroot.Env, owner common.Address) error {
	amount := env.Value()
	if amount.Sign() <= 0 {
		return classify(opSafeBoxDeposit, ErrZeroDeposit)
	}
	if owner == (common.Address{}) {
		return classify(opSafeBoxDeposit, ErrZeroOwner)
	}
	balance, err := readUint256(env, LotteryGameWalletSafeBoxTable, safeBoxKey(owner), 0)
	if err != nil {
		return classify(opSafeBoxDeposit, err)
	}
	balance.Add(balance, amount)
	if err := env.SetField(LotteryGameWalletSafeBoxTable.ID, safeBoxKey(owner), 0, store.EncodeUint256(balance)); err != nil {
		return err
	}
	env.Emit(EventSafeBoxDeposit, owner.Hex(), map[string]any{
		"owner":   owner.Hex(),
		"from":    env.Sender().Hex(),
		"amount":  amount.String(),
		"balance": balance.String(),
	})
	return nil
}

// WithdrawETH pays amount out of the sender's box.
func (*SafeBoxSystem) WithdrawETH(env *gameroot.Env, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return classify(opSafeBoxWithdraw, ErrZeroWithdraw)
	}
	owner := env.Sender()
	balance, err := readUint256(env, LotteryGameWalletSafeBoxTable, safeBoxKey(owner), 0)
	if err != nil {
		return classify(opSafeBoxWithdraw, err)
	}
	if balance.Cmp(amount) < 0 {
		return classify(opSafeBoxWithdraw, ErrInsufficientSafeBox)
	}
	balance.Sub(balance, amount)
	if err := env.SetField(LotteryGameWalletSafeBoxTable.ID, safeBoxKey(owner), 0, store.EncodeUint256(balance)); err != nil {
		return err
	}
	if err := env.Transfer(owner, amount); err != nil {
		return err
	}
	env.Emit(EventSafeBoxWithdraw, owner.Hex(), map[string]any{
		"owner":   owner.Hex(),
		"amount":  amount.String(),
		"balance": balance.String(),
	})
	return nil
}

func (*SafeBoxSystem) BalanceOf(env *gameroot.Env, owner common.Address) (*big.Int, error) {
	balance, err := readUint256(env, LotteryGameWalletSafeBoxTable, safeBoxKey(owner), 0)
	return balance, classify(opSafeBoxRead, err)
}
