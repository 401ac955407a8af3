package server

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	defaultClosestK  = 3
)

type receiptPayload struct {
	Events []gameroot.Event `json:"events"`
}

func receiptOf(receipt *gameroot.Receipt) receiptPayload {
	if receipt == nil || receipt.Events == nil {
		return receiptPayload{Events: []gameroot.Event{}}
	}
	return receiptPayload{Events: receipt.Events}
}

// parseWei reads a base-10 amount. Empty means zero.
func parseWei(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(big.Int), true
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		writeBadRequest(c, "invalid_"+name, name+" must be an unsigned integer")
		return 0, false
	}
	return value, true
}

func uintQuery(c *gin.Context, name string, fallback uint64) (uint64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeBadRequest(c, "invalid_"+name, name+" must be an unsigned integer")
		return 0, false
	}
	return value, true
}

func addressParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		writeBadRequest(c, "invalid_address", "address must be a hex account address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func pageOf(c *gin.Context) (uint64, uint64, bool) {
	offset, ok := uintQuery(c, "offset", 0)
	if !ok {
		return 0, 0, false
	}
	limit, ok := uintQuery(c, "limit", defaultPageLimit)
	if !ok {
		return 0, 0, false
	}
	if limit == 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit, true
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	settings, err := h.lottery.Settings(c.Request.Context())
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsPayload{
		TicketPrice:        settings.TicketPrice.String(),
		MaxTicketCount:     settings.MaxTicketCount,
		MaxLuckyNumber:     settings.MaxLuckyNumber,
		OwnerFeeRate:       settings.OwnerFeeRate,
		DevelopFeeRate:     settings.DevelopFeeRate,
		VerifyFeeRate:      settings.VerifyFeeRate,
		RefundPercent:      settings.RefundPercent,
		TicketBonusPercent: settings.TicketBonusPercent,
		TierBonusPercents:  settings.TierBonusPercents,
		DeveloperAddress:   settings.DeveloperAddress,
	})
}

type settingsPayload struct {
	TicketPrice        string         `json:"ticket_price_wei"`
	MaxTicketCount     uint64         `json:"max_ticket_count"`
	MaxLuckyNumber     uint64         `json:"max_lucky_number"`
	OwnerFeeRate       uint64         `json:"owner_fee_rate"`
	DevelopFeeRate     uint64         `json:"develop_fee_rate"`
	VerifyFeeRate      uint64         `json:"verify_fee_rate"`
	RefundPercent      uint64         `json:"refund_percent"`
	TicketBonusPercent uint64         `json:"ticket_bonus_percent"`
	TierBonusPercents  []uint64       `json:"tier_bonus_percents"`
	DeveloperAddress   common.Address `json:"developer_address"`
}

func (h *httpHandler) handleListGames(c *gin.Context) {
	offset, limit, ok := pageOf(c)
	if !ok {
		return
	}
	ids, err := h.lottery.ActiveGames(c.Request.Context(), offset, limit)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	games := make([]lottery.GameInfo, 0, len(ids))
	for _, gameID := range ids {
		info, err := h.lottery.GameInfo(c.Request.Context(), gameID)
		if err != nil {
			h.writeCallError(c, err)
			return
		}
		games = append(games, info)
	}
	c.JSON(http.StatusOK, gin.H{"games": games, "offset": offset, "limit": limit})
}

func (h *httpHandler) handleGetGame(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	info, err := h.lottery.GameInfo(c.Request.Context(), gameID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleListLuckyNumbers(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	sorted := c.Query("sorted") == "true"
	values, err := h.lottery.LuckyNumbers(c.Request.Context(), gameID, sorted)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	if values == nil {
		values = []uint64{}
	}
	c.JSON(http.StatusOK, gin.H{"lottery_game_id": gameID, "lucky_numbers": values, "sorted": sorted})
}

func (h *httpHandler) handleGetLuckyNumber(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	value, ok := uintParam(c, "value")
	if !ok {
		return
	}
	count, err := h.lottery.LuckyNumberCount(c.Request.Context(), gameID, value)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	response := gin.H{"lottery_game_id": gameID, "lucky_number": value, "count": count}
	// Order is reported with the all-ones word as the not-found marker.
	const notFound = ^uint64(0)
	order, err := h.lottery.LuckyNumberOrder(c.Request.Context(), gameID, value, notFound)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	if order != notFound {
		response["order"] = order
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleClosest(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	target, ok := uintQuery(c, "target", 0)
	if !ok {
		return
	}
	k, ok := uintQuery(c, "k", defaultClosestK)
	if !ok {
		return
	}
	values, err := h.lottery.Closest(c.Request.Context(), gameID, target, k)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	if values == nil {
		values = []uint64{}
	}
	c.JSON(http.StatusOK, gin.H{"lottery_game_id": gameID, "target": target, "values": values})
}

func (h *httpHandler) handleGetTicket(c *gin.Context) {
	ticketID, ok := uintParam(c, "ticketID")
	if !ok {
		return
	}
	info, err := h.lottery.TicketInfo(c.Request.Context(), ticketID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handlePendingReward(c *gin.Context) {
	ticketID, ok := uintParam(c, "ticketID")
	if !ok {
		return
	}
	allocation, err := h.lottery.PendingReward(c.Request.Context(), ticketID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket_id": ticketID, "allocation_wei": allocation.String()})
}

func (h *httpHandler) handleAccountTickets(c *gin.Context) {
	owner, ok := addressParam(c)
	if !ok {
		return
	}
	ids, err := h.lottery.TicketsOf(c.Request.Context(), owner)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "ticket_ids": ids})
}

func (h *httpHandler) handleSafeBoxBalance(c *gin.Context) {
	owner, ok := addressParam(c)
	if !ok {
		return
	}
	balance, err := h.lottery.SafeBoxBalance(c.Request.Context(), owner)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "balance_wei": balance.String()})
}

func (h *httpHandler) handleMyTicket(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	ticketID, err := h.lottery.TicketOf(c.Request.Context(), gameID, callerOf(c))
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	if ticketID == 0 {
		c.JSON(http.StatusNotFound, errorPayload{Error: "no ticket in this game", Code: "http.ticket_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lottery_game_id": gameID, "ticket_id": ticketID})
}

type createGameRequest struct {
	Description string `json:"description"`
	StartTime   uint64 `json:"start_time"`
	Duration    uint64 `json:"duration"`
	SeedWei     string `json:"seed_wei"`
}

func (h *httpHandler) handleCreateGame(c *gin.Context) {
	var request createGameRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "invalid_request", "request body must be JSON")
		return
	}
	seed, ok := parseWei(request.SeedWei)
	if !ok {
		writeBadRequest(c, "invalid_amount", "seed_wei must be a non-negative integer")
		return
	}
	gameID, receipt, err := h.lottery.CreateGame(c.Request.Context(), callerOf(c), seed, request.Description, request.StartTime, request.Duration)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lottery_game_id": gameID, "receipt": receiptOf(receipt)})
}

type buyTicketRequest struct {
	LuckyNumber uint64 `json:"lucky_number"`
	PaymentWei  string `json:"payment_wei"`
}

func (h *httpHandler) handleBuyTicket(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	var request buyTicketRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "invalid_request", "request body must be JSON")
		return
	}
	payment, ok := parseWei(request.PaymentWei)
	if !ok {
		writeBadRequest(c, "invalid_amount", "payment_wei must be a non-negative integer")
		return
	}
	ticketID, receipt, err := h.lottery.BuyTicket(c.Request.Context(), callerOf(c), payment, gameID, request.LuckyNumber)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket_id": ticketID, "receipt": receiptOf(receipt)})
}

func (h *httpHandler) handleVerify(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	result, receipt, err := h.lottery.Verify(c.Request.Context(), callerOf(c), gameID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lottery_game_id": gameID, "result": result, "receipt": receiptOf(receipt)})
}

func (h *httpHandler) handleClaim(c *gin.Context) {
	ticketID, ok := uintParam(c, "ticketID")
	if !ok {
		return
	}
	claim, receipt, err := h.lottery.ClaimReward(c.Request.Context(), callerOf(c), ticketID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": claim, "receipt": receiptOf(receipt)})
}

type depositRequest struct {
	Owner     string `json:"owner"`
	AmountWei string `json:"amount_wei"`
}

func (h *httpHandler) handleDeposit(c *gin.Context) {
	var request depositRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "invalid_request", "request body must be JSON")
		return
	}
	owner := callerOf(c)
	if request.Owner != "" {
		if !common.IsHexAddress(request.Owner) {
			writeBadRequest(c, "invalid_address", "owner must be a hex account address")
			return
		}
		owner = common.HexToAddress(request.Owner)
	}
	amount, ok := parseWei(request.AmountWei)
	if !ok {
		writeBadRequest(c, "invalid_amount", "amount_wei must be a non-negative integer")
		return
	}
	receipt, err := h.lottery.Deposit(c.Request.Context(), callerOf(c), amount, owner)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptOf(receipt))
}

type withdrawRequest struct {
	AmountWei string `json:"amount_wei"`
}

func (h *httpHandler) handleWithdraw(c *gin.Context) {
	var request withdrawRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "invalid_request", "request body must be JSON")
		return
	}
	amount, ok := parseWei(request.AmountWei)
	if !ok {
		writeBadRequest(c, "invalid_amount", "amount_wei must be a non-negative integer")
		return
	}
	receipt, err := h.lottery.Withdraw(c.Request.Context(), callerOf(c), amount)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptOf(receipt))
}

type setConfigRequest struct {
	Key      string `json:"key"`
	NewValue string `json:"new_value"`
	OldValue string `json:"old_value"`
}

func (h *httpHandler) handleSetConfig(c *gin.Context) {
	var request setConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Key) == "" {
		writeBadRequest(c, "invalid_request", "key, new_value and old_value are required")
		return
	}
	newValue, ok := parseWei(request.NewValue)
	if !ok {
		writeBadRequest(c, "invalid_amount", "new_value must be a non-negative integer")
		return
	}
	oldValue, ok := parseWei(request.OldValue)
	if !ok {
		writeBadRequest(c, "invalid_amount", "old_value must be a non-negative integer")
		return
	}
	key := lottery.ConfigKey(strings.TrimSpace(request.Key))
	if err := h.lottery.SetGameConfig(c.Request.Context(), callerOf(c), key, newValue, oldValue); err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": request.Key, "value": newValue.String()})
}

type setTiersRequest struct {
	NewPercents []uint64 `json:"new_percents"`
	OldPercents []uint64 `json:"old_percents"`
}

func (h *httpHandler) handleSetTiers(c *gin.Context) {
	var request setTiersRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "invalid_request", "new_percents and old_percents must be lists of integers")
		return
	}
	if err := h.lottery.SetTierBonusPercents(c.Request.Context(), callerOf(c), request.NewPercents, request.OldPercents); err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier_bonus_percents": request.NewPercents})
}

type setDeveloperRequest struct {
	Address string `json:"address"`
}

func (h *httpHandler) handleSetDeveloper(c *gin.Context) {
	var request setDeveloperRequest
	if err := c.ShouldBindJSON(&request); err != nil || !common.IsHexAddress(request.Address) {
		writeBadRequest(c, "invalid_address", "address must be a hex account address")
		return
	}
	developer := common.HexToAddress(request.Address)
	if err := h.lottery.SetDeveloperAddress(c.Request.Context(), callerOf(c), developer); err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"developer_address": developer})
}

func (h *httpHandler) handlePause(c *gin.Context) {
	if err := h.lottery.Root().Pause(c.Request.Context(), callerOf(c)); err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *httpHandler) handleUnpause(c *gin.Context) {
	if err := h.lottery.Root().Unpause(c.Request.Context(), callerOf(c)); err != nil {
		h.writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
