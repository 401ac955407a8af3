package lottery

import (
	"strconv"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	namespace = "happiJack"

	// SystemPrefix namespaces every lottery module id.
	SystemPrefix = "happiJack.systems"
)

func uintField(name string) store.Field {
	return store.Field{Name: name, Type: store.FieldUint256}
}

var (
	LotteryGameTable = store.DefineTable(namespace, "LotteryGameTable",
		store.Field{Name: "Owner", Type: store.FieldAddress},
		store.Field{Name: "Description", Type: store.FieldString},
		uintField("StartTime"),
		uintField("EndTime"),
		uintField("Status"),
	)
	LotteryGameConfigTable = store.DefineTable(namespace, "LotteryGameConfigTable",
		uintField("TicketPrice"),
		uintField("MaxTicketCount"),
		uintField("MaxLuckyNumber"),
		uintField("OwnerFeeRate"),
		uintField("DevelopFeeRate"),
		uintField("VerifyFeeRate"),
		uintField("RefundPercent"),
		uintField("TicketBonusPercent"),
		uintField("TierCount"),
	)
	LotteryGameTierBonusTable = store.DefineTable(namespace, "LotteryGameTierBonusTable",
		uintField("BonusPercent"),
	)
	LotteryGameBonusPoolTable = store.DefineTable(namespace, "LotteryGameBonusPoolTable",
		uintField("TotalAmount"),
		uintField("BonusAmount"),
		uintField("OwnerFeeAmount"),
		uintField("DevelopFeeAmount"),
		uintField("VerifyFeeAmount"),
		uintField("BonusAmountWithdraw"),
	)
	LotteryTicketTable = store.DefineTable(namespace, "LotteryTicketTable",
		uintField("LotteryGameId"),
		store.Field{Name: "Owner", Type: store.FieldAddress},
		uintField("LuckyNumber"),
		uintField("BuyTime"),
		uintField("BonusPercent"),
		store.Field{Name: "IsRewardBonus", Type: store.FieldBool},
		uintField("RewardTime"),
		uintField("RewardLevel"),
		uintField("RewardAmount"),
	)
	LotteryGameTicketTable = store.DefineTable(namespace, "LotteryGameTicketTable",
		uintField("TicketSoldCount"),
	)
	LotteryGameTicketOwnerTable = store.DefineTable(namespace, "LotteryGameTicketOwnerTable",
		uintField("TicketId"),
	)
	LotteryGameLuckyNumTable = store.DefineTable(namespace, "LotteryGameLuckyNumTable",
		uintField("CurrentLuckyNumber"),
		uintField("SumLotteryTicketLuckyNumber"),
	)
	LotteryGameResultTable = store.DefineTable(namespace, "LotteryGameResultTable",
		store.Field{Name: "Computed", Type: store.FieldBool},
		uintField("LuckyNumber"),
		uintField("TierCount"),
	)
	LotteryGameResultTierTable = store.DefineTable(namespace, "LotteryGameResultTierTable",
		uintField("LuckyNumber"),
		uintField("TicketCount"),
	)
	LotteryGameResultOrderTable = store.DefineTable(namespace, "LotteryGameResultOrderTable",
		uintField("Order"),
	)
	LotteryGameTierClaimTable = store.DefineTable(namespace, "LotteryGameTierClaimTable",
		uintField("ClaimedCount"),
		uintField("ClaimedAmount"),
	)
	LotteryTicketNFTOwnerTable = store.DefineTable(namespace, "LotteryTicketNFTOwnerTable",
		store.Field{Name: "Owner", Type: store.FieldAddress},
	)
	LotteryGameWalletSafeBoxTable = store.DefineTable(namespace, "LotteryGameWalletSafeBoxTable",
		uintField("Amount"),
	)
	GameConfigTable = store.DefineTable(namespace, "GameConfigTable",
		uintField("Value"),
	)
	GameSystemConfigTable = store.DefineTable(namespace, "GameSystemConfigTable",
		store.Field{Name: "DeveloperAddress", Type: store.FieldAddress},
		store.Field{Name: "Initialized", Type: store.FieldBool},
	)
	CounterTable = store.DefineTable(namespace, "CounterTable",
		uintField("Value"),
	)
)

// Collection ids used as the first key word of counted sets.
var (
	ActiveGameCollection  = crypto.Keccak256Hash([]byte("ActiveGameCollectionTable"))
	LuckyNumberCollection = crypto.Keccak256Hash([]byte("LotteryGameLuckyNumberCollection"))
	NFTOwnerCollection    = crypto.Keccak256Hash([]byte("LotteryTicketNFTOwnerCollection"))
)

var (
	gameCounter   = crypto.Keccak256Hash([]byte("LotteryGameId"))
	ticketCounter = crypto.Keccak256Hash([]byte("LotteryTicketId"))
	nftSupply     = crypto.Keccak256Hash([]byte("LotteryTicketNFTSupply"))
	singletonKey  = store.KeyOf()
)

func gameKey(gameID uint64) store.Key {
	return store.KeyOf(store.Uint64Word(gameID))
}

func ticketKey(ticketID uint64) store.Key {
	return store.KeyOf(store.Uint64Word(ticketID))
}

func tierKey(gameID uint64, tier uint64) store.Key {
	return store.KeyOf(store.Uint64Word(gameID), store.Uint64Word(tier))
}

func ownerKey(gameID uint64, owner common.Address) store.Key {
	return store.KeyOf(store.Uint64Word(gameID), store.AddressWord(owner))
}

func luckyOrderKey(gameID, luckyNumber uint64) store.Key {
	return store.KeyOf(store.Uint64Word(gameID), store.Uint64Word(luckyNumber))
}

func activeGamesKey() store.Key {
	return store.KeyOf(ActiveGameCollection)
}

func luckyNumbersKey(gameID uint64) store.Key {
	return store.KeyOf(LuckyNumberCollection, store.Uint64Word(gameID))
}

func nftOwnerTokensKey(owner common.Address) store.Key {
	return store.KeyOf(NFTOwnerCollection, store.AddressWord(owner))
}

// safeBoxKey addresses a balance by owner, token type and token address.
// Native currency uses token type 0 and the zero token address.
func safeBoxKey(owner common.Address) store.Key {
	return store.KeyOf(store.AddressWord(owner), store.Uint64Word(nativeTokenType), store.AddressWord(common.Address{}))
}

const nativeTokenType = 0

// GameTopic is the event topic every per-game event is published under.
func GameTopic(gameID uint64) string {
	return strconv.FormatUint(gameID, 10)
}
