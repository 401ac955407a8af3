package lottery

import (
	"context"
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/ethereum/go-ethereum/common"
)

// Client drives the lottery modules through the root on behalf of external
// accounts. Every mutating method is one atomic top-level call.
type Client struct {
	root *gameroot.Root
}

func NewClient(root *gameroot.Root) *Client {
	return &Client{root: root}
}

func (c *Client) Root() *gameroot.Root {
	return c.root
}

func (c *Client) CreateGame(ctx context.Context, from common.Address, seed *big.Int, description string, startTime, duration uint64) (uint64, *gameroot.Receipt, error) {
	var gameID uint64
	receipt, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from, Value: seed}, GameSystemID,
		func(env *gameroot.Env, games *GameSystem) error {
			var err error
			gameID, err = games.CreateLotteryGame(env, description, startTime, duration)
			return err
		})
	return gameID, receipt, err
}

func (c *Client) BuyTicket(ctx context.Context, from common.Address, payment *big.Int, gameID, luckyNumber uint64) (uint64, *gameroot.Receipt, error) {
	var ticketID uint64
	receipt, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from, Value: payment}, SellSystemID,
		func(env *gameroot.Env, sell *SellSystem) error {
			var err error
			ticketID, err = sell.BuyLotteryTicketETH(env, gameID, luckyNumber)
			return err
		})
	return ticketID, receipt, err
}

func (c *Client) Verify(ctx context.Context, from common.Address, gameID uint64) (Result, *gameroot.Receipt, error) {
	var result Result
	receipt, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, VerifySystemID,
		func(env *gameroot.Env, verify *VerifySystem) error {
			var err error
			result, err = verify.Verify(env, gameID)
			return err
		})
	return result, receipt, err
}

func (c *Client) ClaimReward(ctx context.Context, from common.Address, ticketID uint64) (Claim, *gameroot.Receipt, error) {
	var claim Claim
	receipt, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, RewardSystemID,
		func(env *gameroot.Env, rewards *RewardSystem) error {
			var err error
			claim, err = rewards.ClaimTicketReward(env, ticketID)
			return err
		})
	return claim, receipt, err
}

func (c *Client) Deposit(ctx context.Context, from common.Address, amount *big.Int, owner common.Address) (*gameroot.Receipt, error) {
	return gameroot.Invoke(ctx, c.root, gameroot.Message{From: from, Value: amount}, SafeBoxSystemID,
		func(env *gameroot.Env, box *SafeBoxSystem) error {
			return box.DepositETH(env, owner)
		})
}

func (c *Client) Withdraw(ctx context.Context, from common.Address, amount *big.Int) (*gameroot.Receipt, error) {
	return gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, SafeBoxSystemID,
		func(env *gameroot.Env, box *SafeBoxSystem) error {
			return box.WithdrawETH(env, amount)
		})
}

func (c *Client) InitializeConfig(ctx context.Context, from common.Address, settings Settings) error {
	_, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, ConfigSystemID,
		func(env *gameroot.Env, config *ConfigSystem) error {
			return config.Initialize(env, settings)
		})
	return err
}

func (c *Client) SetGameConfig(ctx context.Context, from common.Address, key common.Hash, newValue, oldValue *big.Int) error {
	_, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, ConfigSystemID,
		func(env *gameroot.Env, config *ConfigSystem) error {
			return config.SetGameConfig(env, key, newValue, oldValue)
		})
	return err
}

func (c *Client) SetTierBonusPercents(ctx context.Context, from common.Address, newPercents, oldPercents []uint64) error {
	_, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, ConfigSystemID,
		func(env *gameroot.Env, config *ConfigSystem) error {
			return config.SetTierBonusPercents(env, newPercents, oldPercents)
		})
	return err
}

func (c *Client) SetDeveloperAddress(ctx context.Context, from, developer common.Address) error {
	_, err := gameroot.Invoke(ctx, c.root, gameroot.Message{From: from}, ConfigSystemID,
		func(env *gameroot.Env, config *ConfigSystem) error {
			return config.SetGameDeveloperAddress(env, developer)
		})
	return err
}

func (c *Client) GameConfig(ctx context.Context, key common.Hash) (*big.Int, error) {
	var value *big.Int
	err := gameroot.View(ctx, c.root, common.Address{}, ConfigSystemID, func(env *gameroot.Env, config *ConfigSystem) error {
		var err error
		value, err = config.GameConfig(env, key)
		return err
	})
	return value, err
}

func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var settings Settings
	err := gameroot.View(ctx, c.root, common.Address{}, ConfigSystemID, func(env *gameroot.Env, config *ConfigSystem) error {
		var err error
		settings, err = config.Settings(env)
		return err
	})
	return settings, err
}

func (c *Client) GameInfo(ctx context.Context, gameID uint64) (GameInfo, error) {
	var info GameInfo
	err := gameroot.View(ctx, c.root, common.Address{}, ViewSystemID, func(env *gameroot.Env, view *ViewSystem) error {
		var err error
		info, err = view.GetLotteryGameInfo(env, gameID)
		return err
	})
	return info, err
}

func (c *Client) TicketInfo(ctx context.Context, ticketID uint64) (TicketInfo, error) {
	var info TicketInfo
	err := gameroot.View(ctx, c.root, common.Address{}, ViewSystemID, func(env *gameroot.Env, view *ViewSystem) error {
		var err error
		info, err = view.GetLotteryTicketInfo(env, ticketID)
		return err
	})
	return info, err
}

func (c *Client) TicketOf(ctx context.Context, gameID uint64, owner common.Address) (uint64, error) {
	var ticketID uint64
	err := gameroot.View(ctx, c.root, owner, ViewSystemID, func(env *gameroot.Env, view *ViewSystem) error {
		var err error
		ticketID, err = view.GetTicketOfOwner(env, gameID, owner)
		return err
	})
	return ticketID, err
}

func (c *Client) ActiveGames(ctx context.Context, offset, limit uint64) ([]uint64, error) {
	var ids []uint64
	err := gameroot.View(ctx, c.root, common.Address{}, GameSystemID, func(env *gameroot.Env, games *GameSystem) error {
		var err error
		ids, err = games.ActiveGames(env, offset, limit)
		return err
	})
	return ids, err
}

// LuckyNumbers returns the distinct numbers of a game, ascending when sorted is set.
func (c *Client) LuckyNumbers(ctx context.Context, gameID uint64, sorted bool) ([]uint64, error) {
	var values []uint64
	err := gameroot.View(ctx, c.root, common.Address{}, CoreSystemID, func(env *gameroot.Env, core *CoreSystem) error {
		var err error
		if sorted {
			values, err = core.GetLuckNumbersWithSort(env, gameID)
		} else {
			values, err = core.GetLuckNumbers(env, gameID)
		}
		return err
	})
	return values, err
}

func (c *Client) LuckyNumberCount(ctx context.Context, gameID, value uint64) (uint64, error) {
	var count uint64
	err := gameroot.View(ctx, c.root, common.Address{}, CoreSystemID, func(env *gameroot.Env, core *CoreSystem) error {
		var err error
		count, err = core.GetLuckNumberCount(env, gameID, value)
		return err
	})
	return count, err
}

func (c *Client) Closest(ctx context.Context, gameID, target, k uint64) ([]uint64, error) {
	var values []uint64
	err := gameroot.View(ctx, c.root, common.Address{}, CoreSystemID, func(env *gameroot.Env, core *CoreSystem) error {
		var err error
		values, err = core.GetLuckNumberByClosest(env, gameID, target, k)
		return err
	})
	return values, err
}

func (c *Client) LuckyNumberOrder(ctx context.Context, gameID, value, notFound uint64) (uint64, error) {
	var order uint64
	err := gameroot.View(ctx, c.root, common.Address{}, CoreSystemID, func(env *gameroot.Env, core *CoreSystem) error {
		var err error
		order, err = core.GetLotteryLuckNumberOrder(env, gameID, value, notFound)
		return err
	})
	return order, err
}

func (c *Client) SafeBoxBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	err := gameroot.View(ctx, c.root, owner, SafeBoxSystemID, func(env *gameroot.Env, box *SafeBoxSystem) error {
		var err error
		balance, err = box.BalanceOf(env, owner)
		return err
	})
	return balance, err
}

func (c *Client) TicketOwner(ctx context.Context, ticketID uint64) (common.Address, error) {
	var owner common.Address
	err := gameroot.View(ctx, c.root, common.Address{}, TicketNFTSystemID, func(env *gameroot.Env, nft *TicketNFTSystem) error {
		var err error
		owner, err = nft.OwnerOf(env, ticketID)
		return err
	})
	return owner, err
}

// TicketsOf lists the ticket ids held by owner.
func (c *Client) TicketsOf(ctx context.Context, owner common.Address) ([]uint64, error) {
	var ids []uint64
	err := gameroot.View(ctx, c.root, owner, TicketNFTSystemID, func(env *gameroot.Env, nft *TicketNFTSystem) error {
		balance, err := nft.BalanceOf(env, owner)
		if err != nil {
			return err
		}
		ids = make([]uint64, 0, balance)
		for index := uint64(0); index < balance; index++ {
			tokenID, err := nft.TokenOfOwnerByIndex(env, owner, index)
			if err != nil {
				return err
			}
			ids = append(ids, tokenID)
		}
		return nil
	})
	return ids, err
}

func (c *Client) TotalSupply(ctx context.Context) (uint64, error) {
	var supply uint64
	err := gameroot.View(ctx, c.root, common.Address{}, TicketNFTSystemID, func(env *gameroot.Env, nft *TicketNFTSystem) error {
		var err error
		supply, err = nft.TotalSupply(env)
		return err
	})
	return supply, err
}

func (c *Client) PendingReward(ctx context.Context, ticketID uint64) (*big.Int, error) {
	var allocation *big.Int
	err := gameroot.View(ctx, c.root, common.Address{}, RewardSystemID, func(env *gameroot.Env, rewards *RewardSystem) error {
		var err error
		allocation, err = rewards.PendingAllocation(env, ticketID)
		return err
	})
	return allocation, err
}
