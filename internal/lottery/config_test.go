package lottery

import (
	"math"
	"math/big"
	"testing"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSetGameConfigRejectsInvalidSettings(t *testing.T) {
	h := newHarness(t, nil)
	aboveUint64 := new(big.Int).Lsh(big.NewInt(1), 64)
	aboveUint256 := new(big.Int).Lsh(big.NewInt(1), 256)

	cases := []struct {
		name     string
		key      common.Hash
		newValue *big.Int
		oldValue *big.Int
	}{
		{"owner and develop fee reach 100", KeyOwnerFeeRate, big.NewInt(90), big.NewInt(10)},
		{"develop fee alone at 100", KeyDevelopFeeRate, big.NewInt(100), big.NewInt(10)},
		{"owner fee beyond uint64", KeyOwnerFeeRate, aboveUint64, big.NewInt(10)},
		{"verify fee above 100", KeyVerifyFeeRate, big.NewInt(101), big.NewInt(5)},
		{"refund above 100", KeyRefundPercent, big.NewInt(150), big.NewInt(30)},
		{"ticket bonus above 100", KeyTicketBonusPercent, big.NewInt(101), big.NewInt(80)},
		{"zero ticket price", KeyTicketPrice, big.NewInt(0), h.settings.TicketPrice},
		{"zero max ticket count", KeyMaxTicketCount, big.NewInt(0), big.NewInt(10_000)},
		{"zero max lucky number", KeyMaxLuckyNumber, big.NewInt(0), big.NewInt(999_999)},
		{"zero tiers", KeyTierCount, big.NewInt(0), big.NewInt(3)},
		{"tier count drops a tier", KeyTierCount, big.NewInt(2), big.NewInt(3)},
		{"tier count above max", KeyTierCount, big.NewInt(MaxTiers + 1), big.NewInt(3)},
		{"tier percent breaks sum", TierBonusKey(0), big.NewInt(60), big.NewInt(50)},
		{"inactive tier above 100", TierBonusKey(5), big.NewInt(101), big.NewInt(0)},
		{"unknown key beyond uint256", ConfigKey("lotteryGame"), aboveUint256, big.NewInt(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.client.SetGameConfig(h.ctx, adminAddress, tc.key, tc.newValue, tc.oldValue)
			requireKind(t, err, gameroot.KindPrecondition, ErrInvalidSettings)
			require.Equal(t, "lottery.config.set.invalid_settings", gameroot.CodeOf(err))
		})
	}

	settings, err := h.client.Settings(h.ctx)
	require.NoError(t, err)
	require.Equal(t, h.settings, settings)
}

func TestFeeChangesWithinBoundsKeepSalesAndVerifyWorking(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.client.SetGameConfig(h.ctx, adminAddress, KeyOwnerFeeRate, big.NewInt(60), big.NewInt(10)))
	require.NoError(t, h.client.SetGameConfig(h.ctx, adminAddress, KeyDevelopFeeRate, big.NewInt(30), big.NewInt(10)))
	err := h.client.SetGameConfig(h.ctx, adminAddress, KeyDevelopFeeRate, big.NewInt(60), big.NewInt(30))
	requireKind(t, err, gameroot.KindPrecondition, ErrInvalidSettings)
	require.NoError(t, h.client.SetGameConfig(h.ctx, adminAddress, KeyVerifyFeeRate, big.NewInt(100), big.NewInt(5)))

	gameID := h.createGame(player(0), nil, 0, day)
	h.buy(player(1), gameID, 7)
	pool := h.pool(gameID)
	requireAmount(t, percentOf(h.settings.TicketPrice, 60), pool.OwnerFee)
	requireAmount(t, percentOf(h.settings.TicketPrice, 30), pool.DevelopFee)

	h.advance(2 * day)
	_, _, err = h.client.Verify(h.ctx, verifierAddress, gameID)
	require.NoError(t, err)
	settled := h.pool(gameID)
	require.Zero(t, settled.Bonus.Sign())
	requireAmount(t, percentOf(h.settings.TicketPrice, 10), settled.VerifyFee)
}

func TestRejectedRefundLeavesZeroSaleVerifyWorking(t *testing.T) {
	h := newHarness(t, nil)
	err := h.client.SetGameConfig(h.ctx, adminAddress, KeyRefundPercent, big.NewInt(150), big.NewInt(30))
	requireKind(t, err, gameroot.KindPrecondition, ErrInvalidSettings)

	seed := big.NewInt(1_000_000)
	gameID := h.createGame(player(0), seed, 0, day)
	h.advance(2 * day)
	_, _, err = h.client.Verify(h.ctx, verifierAddress, gameID)
	require.NoError(t, err)

	info, err := h.client.GameInfo(h.ctx, gameID)
	require.NoError(t, err)
	require.Equal(t, StatusVerified, info.Game.Status)
	requireAmount(t, big.NewInt(300_000), h.safeBox(player(0)))
}

func TestTierTableSwapIsAdminCompareAndSet(t *testing.T) {
	h := newHarness(t, nil)
	current := h.settings.TierBonusPercents

	err := h.client.SetTierBonusPercents(h.ctx, player(1), []uint64{100}, current)
	requireKind(t, err, gameroot.KindAuthorization, nil)
	err = h.client.SetTierBonusPercents(h.ctx, adminAddress, []uint64{60, 40}, []uint64{50, 50})
	requireKind(t, err, gameroot.KindInvariant, ErrStaleConfig)
	err = h.client.SetTierBonusPercents(h.ctx, adminAddress, []uint64{60, 50}, current)
	requireKind(t, err, gameroot.KindPrecondition, ErrInvalidSettings)
	err = h.client.SetTierBonusPercents(h.ctx, adminAddress, nil, current)
	requireKind(t, err, gameroot.KindPrecondition, ErrInvalidSettings)

	require.NoError(t, h.client.SetTierBonusPercents(h.ctx, adminAddress, []uint64{60, 40}, current))
	settings, err := h.client.Settings(h.ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{60, 40}, settings.TierBonusPercents)
	dropped, err := h.client.GameConfig(h.ctx, TierBonusKey(2))
	require.NoError(t, err)
	require.Zero(t, dropped.Sign())

	gameID := h.createGame(player(0), nil, 0, day)
	info, err := h.client.GameInfo(h.ctx, gameID)
	require.NoError(t, err)
	require.Equal(t, []uint64{60, 40}, info.Settings.TierBonusPercents)
}

func TestCreateGameRejectsEndTimeOverflow(t *testing.T) {
	h := newHarness(t, nil)

	_, _, err := h.client.CreateGame(h.ctx, player(0), nil, "overflow", math.MaxUint64-10, 100)
	requireKind(t, err, gameroot.KindPrecondition, ErrEndTimeOverflow)
	require.Equal(t, "lottery.game.create.end_time_overflow", gameroot.CodeOf(err))

	gameID, _, err := h.client.CreateGame(h.ctx, player(0), nil, "last second", math.MaxUint64-100, 100)
	require.NoError(t, err)
	info, err := h.client.GameInfo(h.ctx, gameID)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), info.Game.EndTime)
	require.Equal(t, StatusCreated, info.Game.Status)

	_, _, err = h.client.Verify(h.ctx, verifierAddress, gameID)
	requireKind(t, err, gameroot.KindPrecondition, nil)
}

func TestPoolUnderflowIsAnErrorNotAPanic(t *testing.T) {
	_, err := residual(Pool{
		Total:      big.NewInt(10),
		OwnerFee:   big.NewInt(8),
		DevelopFee: big.NewInt(5),
		VerifyFee:  new(big.Int),
	})
	require.ErrorIs(t, err, ErrPoolUnderflow)

	h := newHarness(t, nil)
	gameID := h.createGame(player(0), big.NewInt(1_000), 0, day)
	caller := player(9)
	require.NoError(t, h.root.GrantRole(h.ctx, adminAddress, h.moduleAddress(BonusPoolSystemID), access.RoleInternal, caller))

	_, err = gameroot.Invoke(h.ctx, h.root, gameroot.Message{From: caller}, BonusPoolSystemID,
		func(env *gameroot.Env, pool *BonusPoolSystem) error {
			_, err := pool.WithdrawBonus(env, gameID, big.NewInt(100), player(1), player(0), 150)
			return err
		})
	requireKind(t, err, gameroot.KindInvariant, ErrPoolUnderflow)
	require.Zero(t, h.pool(gameID).Withdrawn.Sign())
}
