package lottery

import "errors"

var (
	ErrGameNotFound          = errors.New("lotteryGameId does not exist")
	ErrInvalidLuckyNumber    = errors.New("luckyNumber is not valid")
	ErrInvalidPrice          = errors.New("price is not valid")
	ErrDuplicateTicket       = errors.New("you already have a ticket for this lotteryGameId")
	ErrGameNotStarted        = errors.New("lottery game has not started")
	ErrGameNotEnded          = errors.New("Lottery game has not ended")
	ErrGameClosed            = errors.New("lottery game is closed for sales")
	ErrGameAlreadyVerified   = errors.New("lottery game has already been verified")
	ErrGameNotVerified       = errors.New("lottery game has not been verified")
	ErrSoldOut               = errors.New("lottery game has sold every ticket")
	ErrInvalidDuration       = errors.New("duration must be positive")
	ErrTicketPriceUnset      = errors.New("ticket price is not configured")
	ErrTicketNotFound        = errors.New("ticket does not exist")
	ErrNotTicketOwner        = errors.New("caller does not own the ticket")
	ErrNotWinner             = errors.New("ticket lucky number is not in a winning tier")
	ErrAlreadyClaimed        = errors.New("ticket reward has already been claimed")
	ErrResultComputed        = errors.New("lottery result has already been computed")
	ErrResultNotComputed     = errors.New("lottery result has not been computed")
	ErrStaleConfig           = errors.New("old value is not equal to current value")
	ErrConfigInitialized     = errors.New("game config has already been initialized")
	ErrInvalidSettings       = errors.New("invalid lottery settings")
	ErrZeroDeveloper         = errors.New("developer address must not be zero")
	ErrZeroDeposit           = errors.New("deposit value must be positive")
	ErrZeroOwner             = errors.New("owner must not be the zero address")
	ErrZeroWithdraw          = errors.New("withdraw amount must be positive")
	ErrInsufficientSafeBox   = errors.New("safe box balance is insufficient")
	ErrTokenExists           = errors.New("token already minted")
	ErrTokenNotFound         = errors.New("token does not exist")
	ErrBonusExhausted        = errors.New("bonus pool has no remaining bonus for this allocation")
	ErrStatusRegression      = errors.New("game status can only move forward")
	ErrClosestCountZero      = errors.New("closest count must be positive")
	ErrTierPercentsExhausted = errors.New("tier bonus percents sum to zero")
	ErrEndTimeOverflow       = errors.New("startTime + duration overflows uint64")
	ErrPoolUnderflow         = errors.New("bonus pool field would be negative")
)
