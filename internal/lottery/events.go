package lottery

// Event names emitted by the lottery modules.
const (
	EventGameCreated       = "LotteryGameCreated"
	EventTicketBuy         = "LotteryTicketBuy"
	EventResultVerified    = "LotteryGameResultVerified"
	EventRewardClaimed     = "TicketBonusRewardClaimed"
	EventSafeBoxDeposit    = "WalletSafeBoxDeposit"
	EventSafeBoxWithdraw   = "WalletSafeBoxWithdraw"
	EventTicketMinted      = "Transfer"
	EventGameConfigUpdated = "GameConfigUpdated"
)
