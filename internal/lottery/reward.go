package lottery

import (
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
)

const (
	opClaimReward = "lottery.reward.claim"
	opReadReward  = "lottery.reward.read"
)

var RewardSystemDescriptor = gameroot.Descriptor{Prefix: SystemPrefix, Name: "LotteryGameTicketBonusRewardSystem", Version: "1"}

var RewardSystemID = RewardSystemDescriptor.ID()

// RewardSystem pays winning tickets out of the verified bonus.
//
// Each filled tier gets its configured percent, renormalized over the tiers
// that have tickets; the last filled tier absorbs rounding. Inside a tier the
// share is split evenly and the last claimant takes the remainder, so a fully
// claimed result withdraws exactly the bonus.
type RewardSystem struct{}

func NewRewardSystem() *RewardSystem {
	return &RewardSystem{}
}

func (*RewardSystem) Descriptor() gameroot.Descriptor { return RewardSystemDescriptor }

func (*RewardSystem) Tables() []store.Table {
	return []store.Table{LotteryGameTierClaimTable}
}

// Claim is what a successful claim paid.
type Claim struct {
	TicketID    uint64   `json:"ticket_id"`
	GameID      uint64   `json:"lottery_game_id"`
	LuckyNumber uint64   `json:"lucky_number"`
	Order       uint64   `json:"order"`
	Allocation  *big.Int `json:"allocation"`
	Amount      *big.Int `json:"amount"`
}

func (*RewardSystem) ClaimTicketReward(env *gameroot.Env, ticketID uint64) (Claim, error) {
	ticket, err := loadTicket(env, ticketID)
	if err != nil {
		return Claim{}, classify(opClaimReward, err)
	}
	if ticket.Owner != env.Sender() {
		return Claim{}, classify(opClaimReward, ErrNotTicketOwner)
	}
	game, err := loadGame(env, ticket.GameID)
	if err != nil {
		return Claim{}, classify(opClaimReward, err)
	}
	if game.Status != StatusVerified {
		return Claim{}, classify(opClaimReward, ErrGameNotVerified)
	}
	if ticket.IsRewardBonus {
		return Claim{}, classify(opClaimReward, ErrAlreadyClaimed)
	}
	order, allocation, err := nextAllocation(env, ticket)
	if err != nil {
		return Claim{}, classify(opClaimReward, err)
	}

	claimKey := tierKey(ticket.GameID, order)
	claimed, err := readRecord(env, LotteryGameTierClaimTable, claimKey)
	if err != nil {
		return Claim{}, classify(opClaimReward, err)
	}
	claimedCount, claimedAmount := claimed.Uint64(0), claimed.Uint256(1)
	if err := claimed.Err(); err != nil {
		return Claim{}, classify(opClaimReward, err)
	}
	claimedAmount.Add(claimedAmount, allocation)
	if err := env.SetRecord(LotteryGameTierClaimTable.ID, claimKey, [][]byte{
		store.EncodeUint64(claimedCount + 1),
		store.EncodeUint256(claimedAmount),
	}); err != nil {
		return Claim{}, err
	}

	settings, err := loadGameSettings(env, ticket.GameID)
	if err != nil {
		return Claim{}, classify(opClaimReward, err)
	}
	payout := new(big.Int)
	if allocation.Sign() > 0 {
		err = gameroot.Call(env, BonusPoolSystemID, func(env *gameroot.Env, pool *BonusPoolSystem) error {
			var err error
			payout, err = pool.WithdrawBonus(env, ticket.GameID, allocation, ticket.Owner, game.Owner, settings.TicketBonusPercent)
			return err
		})
		if err != nil {
			return Claim{}, err
		}
	}
	err = gameroot.Call(env, TicketSystemID, func(env *gameroot.Env, tickets *TicketSystem) error {
		return tickets.RecordReward(env, ticketID, order, payout)
	})
	if err != nil {
		return Claim{}, err
	}

	claim := Claim{
		TicketID:    ticketID,
		GameID:      ticket.GameID,
		LuckyNumber: ticket.LuckyNumber,
		Order:       order,
		Allocation:  allocation,
		Amount:      payout,
	}
	env.Emit(EventRewardClaimed, GameTopic(ticket.GameID), map[string]any{
		"ticket_id":       ticketID,
		"lottery_game_id": ticket.GameID,
		"lucky_number":    ticket.LuckyNumber,
		"amount":          payout.String(),
		"order":           order,
	})
	return claim, nil
}

// PendingAllocation previews what the next claim of ticketID would withdraw.
func (*RewardSystem) PendingAllocation(env *gameroot.Env, ticketID uint64) (*big.Int, error) {
	ticket, err := loadTicket(env, ticketID)
	if err != nil {
		return nil, classify(opReadReward, err)
	}
	if ticket.IsRewardBonus {
		return new(big.Int), nil
	}
	_, allocation, err := nextAllocation(env, ticket)
	return allocation, classify(opReadReward, err)
}

func nextAllocation(r reader, ticket Ticket) (uint64, *big.Int, error) {
	result, err := loadResult(r, ticket.GameID)
	if err != nil {
		return 0, nil, err
	}
	if !result.Computed {
		return 0, nil, ErrResultNotComputed
	}
	stored, err := luckyNumberOrder(r, ticket.GameID, ticket.LuckyNumber)
	if err != nil {
		return 0, nil, err
	}
	if stored == 0 {
		return 0, nil, ErrNotWinner
	}
	order := stored - 1
	settings, err := loadGameSettings(r, ticket.GameID)
	if err != nil {
		return 0, nil, err
	}
	pool, err := loadPool(r, ticket.GameID)
	if err != nil {
		return 0, nil, err
	}
	share, err := tierShare(pool.Bonus, settings.TierBonusPercents, len(result.Tiers), order)
	if err != nil {
		return 0, nil, err
	}
	claimed, err := readRecord(r, LotteryGameTierClaimTable, tierKey(ticket.GameID, order))
	if err != nil {
		return 0, nil, err
	}
	claimedCount, claimedAmount := claimed.Uint64(0), claimed.Uint256(1)
	if err := claimed.Err(); err != nil {
		return 0, nil, err
	}
	ticketCount := result.Tiers[order].TicketCount
	if claimedCount+1 >= ticketCount {
		return order, share.Sub(share, claimedAmount), nil
	}
	return order, share.Quo(share, new(big.Int).SetUint64(ticketCount)), nil
}

// tierShare splits bonus over the first filled tiers by their percents.
func tierShare(bonus *big.Int, percents []uint64, filled int, order uint64) (*big.Int, error) {
	if filled > len(percents) {
		filled = len(percents)
	}
	if order >= uint64(filled) {
		return nil, ErrNotWinner
	}
	var total uint64
	for _, percent := range percents[:filled] {
		total += percent
	}
	if total == 0 {
		return nil, ErrTierPercentsExhausted
	}
	share := func(i int) *big.Int {
		out := new(big.Int).Mul(bonus, new(big.Int).SetUint64(percents[i]))
		return out.Quo(out, new(big.Int).SetUint64(total))
	}
	if int(order) < filled-1 {
		return share(int(order)), nil
	}
	rest := new(big.Int).Set(bonus)
	for i := 0; i < filled-1; i++ {
		rest.Sub(rest, share(i))
	}
	return rest, nil
}
