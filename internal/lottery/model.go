package lottery

import (
	"errors"
	"math/big"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

// GameStatus only moves forward: Created -> Active -> Verified.
type GameStatus uint64

const (
	StatusCreated GameStatus = iota
	StatusActive
	StatusVerified
)

func (s GameStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusVerified:
		return "verified"
	default:
		return "unknown"
	}
}

type Game struct {
	ID          uint64         `json:"id"`
	Owner       common.Address `json:"owner"`
	Description string         `json:"description"`
	StartTime   uint64         `json:"start_time"`
	EndTime     uint64         `json:"end_time"`
	Status      GameStatus     `json:"status"`
}

// GameSettings is the configuration snapshot taken when a game is created.
type GameSettings struct {
	TicketPrice        *big.Int `json:"ticket_price"`
	MaxTicketCount     uint64   `json:"max_ticket_count"`
	MaxLuckyNumber     uint64   `json:"max_lucky_number"`
	OwnerFeeRate       uint64   `json:"owner_fee_rate"`
	DevelopFeeRate     uint64   `json:"develop_fee_rate"`
	VerifyFeeRate      uint64   `json:"verify_fee_rate"`
	RefundPercent      uint64   `json:"refund_percent"`
	TicketBonusPercent uint64   `json:"ticket_bonus_percent"`
	TierBonusPercents  []uint64 `json:"tier_bonus_percents"`
}

// Pool is the per-game ledger. Total always equals Bonus plus the three fees.
type Pool struct {
	Total      *big.Int `json:"total"`
	Bonus      *big.Int `json:"bonus"`
	OwnerFee   *big.Int `json:"owner_fee"`
	DevelopFee *big.Int `json:"develop_fee"`
	VerifyFee  *big.Int `json:"verify_fee"`
	Withdrawn  *big.Int `json:"withdrawn"`
}

// Balanced reports whether total == bonus + ownerFee + developFee + verifyFee.
func (p Pool) Balanced() bool {
	sum := new(big.Int).Add(p.Bonus, p.OwnerFee)
	sum.Add(sum, p.DevelopFee)
	sum.Add(sum, p.VerifyFee)
	return sum.Cmp(p.Total) == 0
}

type Ticket struct {
	ID            uint64         `json:"id"`
	GameID        uint64         `json:"lottery_game_id"`
	Owner         common.Address `json:"owner"`
	LuckyNumber   uint64         `json:"lucky_number"`
	BuyTime       uint64         `json:"buy_time"`
	BonusPercent  uint64         `json:"bonus_percent"`
	IsRewardBonus bool           `json:"is_reward_bonus"`
	RewardTime    uint64         `json:"reward_time"`
	RewardLevel   uint64         `json:"reward_level"`
	RewardAmount  *big.Int       `json:"reward_amount"`
}

// Tier is one frozen result group: a distinct lucky number and how many
// tickets carry it. Order 0 is the closest.
type Tier struct {
	Order       uint64 `json:"order"`
	LuckyNumber uint64 `json:"lucky_number"`
	TicketCount uint64 `json:"ticket_count"`
}

type Result struct {
	Computed    bool   `json:"computed"`
	LuckyNumber uint64 `json:"lucky_number"`
	Tiers       []Tier `json:"tiers"`
}

type reader interface {
	GetField(table store.TableID, key store.Key, slot uint8) ([]byte, error)
	GetRecord(table store.TableID, key store.Key, fieldCount int) ([][]byte, error)
	HasRecord(table store.TableID, key store.Key) (bool, error)
}

func readRecord(r reader, table store.Table, key store.Key) (*store.Decoder, error) {
	fields, err := r.GetRecord(table.ID, key, table.FieldCount())
	if err != nil {
		return nil, err
	}
	return store.NewDecoder(fields), nil
}

func readUint64(r reader, table store.Table, key store.Key, slot uint8) (uint64, error) {
	data, err := r.GetField(table.ID, key, slot)
	if err != nil {
		return 0, err
	}
	return store.DecodeUint64(data)
}

func readUint256(r reader, table store.Table, key store.Key, slot uint8) (*big.Int, error) {
	data, err := r.GetField(table.ID, key, slot)
	if err != nil {
		return nil, err
	}
	return store.DecodeUint256(data)
}

func readCounter(r reader, name common.Hash) (uint64, error) {
	return readUint64(r, CounterTable, store.KeyOf(name), 0)
}

// bumpCounter returns the current counter value and stores value+1.
func bumpCounter(env *gameroot.Env, name common.Hash, start uint64) (uint64, error) {
	current, err := readCounter(env, name)
	if err != nil {
		return 0, err
	}
	if current < start {
		current = start
	}
	if err := env.SetField(CounterTable.ID, store.KeyOf(name), 0, store.EncodeUint64(current+1)); err != nil {
		return 0, err
	}
	return current, nil
}

func loadGame(r reader, gameID uint64) (Game, error) {
	key := gameKey(gameID)
	exists, err := r.HasRecord(LotteryGameTable.ID, key)
	if err != nil {
		return Game{}, err
	}
	if !exists {
		return Game{}, ErrGameNotFound
	}
	d, err := readRecord(r, LotteryGameTable, key)
	if err != nil {
		return Game{}, err
	}
	game := Game{
		ID:          gameID,
		Owner:       d.Address(0),
		Description: d.String(1),
		StartTime:   d.Uint64(2),
		EndTime:     d.Uint64(3),
		Status:      GameStatus(d.Uint64(4)),
	}
	return game, d.Err()
}

func loadGameSettings(r reader, gameID uint64) (GameSettings, error) {
	d, err := readRecord(r, LotteryGameConfigTable, gameKey(gameID))
	if err != nil {
		return GameSettings{}, err
	}
	settings := GameSettings{
		TicketPrice:        d.Uint256(0),
		MaxTicketCount:     d.Uint64(1),
		MaxLuckyNumber:     d.Uint64(2),
		OwnerFeeRate:       d.Uint64(3),
		DevelopFeeRate:     d.Uint64(4),
		VerifyFeeRate:      d.Uint64(5),
		RefundPercent:      d.Uint64(6),
		TicketBonusPercent: d.Uint64(7),
	}
	tierCount := d.Uint64(8)
	if err := d.Err(); err != nil {
		return GameSettings{}, err
	}
	settings.TierBonusPercents = make([]uint64, 0, tierCount)
	for tier := uint64(0); tier < tierCount; tier++ {
		percent, err := readUint64(r, LotteryGameTierBonusTable, tierKey(gameID, tier), 0)
		if err != nil {
			return GameSettings{}, err
		}
		settings.TierBonusPercents = append(settings.TierBonusPercents, percent)
	}
	return settings, nil
}

func loadPool(r reader, gameID uint64) (Pool, error) {
	d, err := readRecord(r, LotteryGameBonusPoolTable, gameKey(gameID))
	if err != nil {
		return Pool{}, err
	}
	pool := Pool{
		Total:      d.Uint256(0),
		Bonus:      d.Uint256(1),
		OwnerFee:   d.Uint256(2),
		DevelopFee: d.Uint256(3),
		VerifyFee:  d.Uint256(4),
		Withdrawn:  d.Uint256(5),
	}
	return pool, d.Err()
}

func loadTicket(r reader, ticketID uint64) (Ticket, error) {
	key := ticketKey(ticketID)
	exists, err := r.HasRecord(LotteryTicketTable.ID, key)
	if err != nil {
		return Ticket{}, err
	}
	if !exists {
		return Ticket{}, ErrTicketNotFound
	}
	d, err := readRecord(r, LotteryTicketTable, key)
	if err != nil {
		return Ticket{}, err
	}
	ticket := Ticket{
		ID:            ticketID,
		GameID:        d.Uint64(0),
		Owner:         d.Address(1),
		LuckyNumber:   d.Uint64(2),
		BuyTime:       d.Uint64(3),
		BonusPercent:  d.Uint64(4),
		IsRewardBonus: d.Bool(5),
		RewardTime:    d.Uint64(6),
		RewardLevel:   d.Uint64(7),
		RewardAmount:  d.Uint256(8),
	}
	return ticket, d.Err()
}

// ticketIDOf returns 0 when owner holds no ticket for the game.
func ticketIDOf(r reader, gameID uint64, owner common.Address) (uint64, error) {
	return readUint64(r, LotteryGameTicketOwnerTable, ownerKey(gameID, owner), 0)
}

func soldCount(r reader, gameID uint64) (uint64, error) {
	return readUint64(r, LotteryGameTicketTable, gameKey(gameID), 0)
}

func loadLuckyNumberState(r reader, gameID uint64) (current uint64, sum *big.Int, err error) {
	d, err := readRecord(r, LotteryGameLuckyNumTable, gameKey(gameID))
	if err != nil {
		return 0, nil, err
	}
	current = d.Uint64(0)
	sum = d.Uint256(1)
	return current, sum, d.Err()
}

func loadResult(r reader, gameID uint64) (Result, error) {
	d, err := readRecord(r, LotteryGameResultTable, gameKey(gameID))
	if err != nil {
		return Result{}, err
	}
	result := Result{Computed: d.Bool(0), LuckyNumber: d.Uint64(1)}
	tierCount := d.Uint64(2)
	if err := d.Err(); err != nil {
		return Result{}, err
	}
	result.Tiers = make([]Tier, 0, tierCount)
	for order := uint64(0); order < tierCount; order++ {
		td, err := readRecord(r, LotteryGameResultTierTable, tierKey(gameID, order))
		if err != nil {
			return Result{}, err
		}
		tier := Tier{Order: order, LuckyNumber: td.Uint64(0), TicketCount: td.Uint64(1)}
		if err := td.Err(); err != nil {
			return Result{}, err
		}
		result.Tiers = append(result.Tiers, tier)
	}
	return result, nil
}

func loadDeveloper(r reader) (common.Address, error) {
	data, err := r.GetField(GameSystemConfigTable.ID, singletonKey, 0)
	if err != nil {
		return common.Address{}, err
	}
	return store.DecodeAddress(data)
}

func percentOf(amount *big.Int, percent uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Quo(out, big.NewInt(100))
}

var (
	preconditionReasons = map[error]string{
		ErrGameNotFound:          "game_not_found",
		ErrInvalidLuckyNumber:    "invalid_lucky_number",
		ErrInvalidPrice:          "invalid_price",
		ErrDuplicateTicket:       "duplicate_ticket",
		ErrGameNotStarted:        "game_not_started",
		ErrGameNotEnded:          "game_not_ended",
		ErrGameClosed:            "game_closed",
		ErrGameAlreadyVerified:   "already_verified",
		ErrGameNotVerified:       "not_verified",
		ErrSoldOut:               "sold_out",
		ErrInvalidDuration:       "invalid_duration",
		ErrTicketPriceUnset:      "ticket_price_unset",
		ErrTicketNotFound:        "ticket_not_found",
		ErrNotTicketOwner:        "not_ticket_owner",
		ErrNotWinner:             "not_winner",
		ErrAlreadyClaimed:        "already_claimed",
		ErrResultComputed:        "result_computed",
		ErrResultNotComputed:     "result_not_computed",
		ErrConfigInitialized:     "config_initialized",
		ErrInvalidSettings:       "invalid_settings",
		ErrZeroDeveloper:         "zero_developer",
		ErrZeroDeposit:           "zero_deposit",
		ErrZeroOwner:             "zero_owner",
		ErrZeroWithdraw:          "zero_withdraw",
		ErrInsufficientSafeBox:   "insufficient_balance",
		ErrTokenExists:           "token_exists",
		ErrTokenNotFound:         "token_not_found",
		ErrClosestCountZero:      "invalid_count",
		ErrTierPercentsExhausted: "invalid_tier_percents",
		ErrEndTimeOverflow:       "end_time_overflow",
	}
	invariantReasons = map[error]string{
		ErrStaleConfig:      "stale_value",
		ErrBonusExhausted:   "bonus_exhausted",
		ErrStatusRegression: "status_regression",
		ErrPoolUnderflow:    "pool_underflow",
	}
)

// classify attaches a kind and code to sentinel errors. Errors that already
// carry a kind pass through unchanged.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var callErr *gameroot.CallError
	if errors.As(err, &callErr) || gameroot.KindOf(err) == gameroot.KindAuthorization {
		return err
	}
	for sentinel, reason := range preconditionReasons {
		if errors.Is(err, sentinel) {
			return gameroot.Precondition(operation, reason, err)
		}
	}
	for sentinel, reason := range invariantReasons {
		if errors.Is(err, sentinel) {
			return gameroot.Invariant(operation, reason, err)
		}
	}
	return gameroot.Internal(operation, "storage", err)
}
