package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/deploy"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "app_session"
	testTokenIssuer   = "happijack-api"
	testAudience      = "happijack"
)

var (
	testAdmin   = common.HexToAddress("0x00000000000000000000000000000000000ad001")
	testOwner   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	testPlayerA = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	testPlayerB = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

type apiFixture struct {
	t          *testing.T
	now        atomic.Int64
	client     *lottery.Client
	settings   lottery.Settings
	realtime   *RealtimeDispatcher
	recorder   *metrics.Recorder
	issuer     *auth.TokenIssuer
	server     *httptest.Server
	httpClient *http.Client
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &apiFixture{t: t, settings: lottery.DefaultSettings(), httpClient: &http.Client{}}
	f.now.Store(1_700_000_000)
	ctx := context.Background()

	backing, err := store.New(store.NewMemoryBackend())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	root, err := gameroot.New(ctx, gameroot.Config{
		Store: backing,
		Admin: testAdmin,
		Clock: func() time.Time { return time.Unix(f.now.Load(), 0) },
	})
	if err != nil {
		t.Fatalf("failed to create root: %v", err)
	}
	if _, err := deploy.Apply(ctx, root, testAdmin, nil, f.settings, nil); err != nil {
		t.Fatalf("failed to deploy: %v", err)
	}
	f.client = lottery.NewClient(root)
	f.realtime = NewRealtimeDispatcher()
	f.recorder = metrics.NewRecorder()
	root.AddListener(f.realtime)
	root.AddListener(f.recorder)
	root.AddObserver(f.recorder)

	f.issuer, err = auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testTokenIssuer,
		Audience:      testAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuers:       []string{testTokenIssuer},
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create session validator: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Lottery:           f.client,
		SessionValidator:  validator,
		Realtime:          f.realtime,
		Metrics:           f.recorder,
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	f.server = httptest.NewServer(handler)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) advance(d time.Duration) {
	f.now.Add(int64(d.Seconds()))
}

func (f *apiFixture) token(account common.Address) string {
	f.t.Helper()
	token, _, err := f.issuer.IssueToken(context.Background(), account, "")
	if err != nil {
		f.t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// call sends body as JSON, authenticated as account unless it is zero, and
// decodes the response into out when out is non-nil.
func (f *apiFixture) call(method, path string, account common.Address, body any, out any) int {
	f.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		f.t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if account != (common.Address{}) {
		request.Header.Set("Authorization", "Bearer "+f.token(account))
	}
	response, err := f.httpClient.Do(request)
	if err != nil {
		f.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			f.t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}

func (f *apiFixture) createGame(duration time.Duration) uint64 {
	f.t.Helper()
	var created struct {
		GameID uint64 `json:"lottery_game_id"`
	}
	status := f.call(http.MethodPost, "/api/games", testOwner, map[string]any{
		"description": "api game",
		"start_time":  f.now.Load(),
		"duration":    uint64(duration.Seconds()),
		"seed_wei":    "1000000",
	}, &created)
	if status != http.StatusCreated {
		f.t.Fatalf("create game: unexpected status %d", status)
	}
	return created.GameID
}

func (f *apiFixture) buy(account common.Address, gameID, luckyNumber uint64) (int, errorPayload) {
	f.t.Helper()
	var payload errorPayload
	status := f.call(http.MethodPost, "/api/games/"+itoa(gameID)+"/tickets", account, map[string]any{
		"lucky_number": luckyNumber,
		"payment_wei":  f.settings.TicketPrice.String(),
	}, &payload)
	return status, payload
}

func itoa(value uint64) string {
	return new(big.Int).SetUint64(value).String()
}

func TestLotteryRoutesPlayFullGame(t *testing.T) {
	f := newAPIFixture(t)
	gameID := f.createGame(time.Hour)

	if status, payload := f.buy(testPlayerA, gameID, 10); status != http.StatusCreated {
		t.Fatalf("buy A: unexpected status %d (%s)", status, payload.Code)
	}
	if status, payload := f.buy(testPlayerB, gameID, 20); status != http.StatusCreated {
		t.Fatalf("buy B: unexpected status %d (%s)", status, payload.Code)
	}

	var numbers struct {
		LuckyNumbers []uint64 `json:"lucky_numbers"`
	}
	if status := f.call(http.MethodGet, "/api/games/"+itoa(gameID)+"/lucky-numbers?sorted=true", common.Address{}, nil, &numbers); status != http.StatusOK {
		t.Fatalf("lucky numbers: unexpected status %d", status)
	}
	if len(numbers.LuckyNumbers) != 2 || numbers.LuckyNumbers[0] != 10 || numbers.LuckyNumbers[1] != 20 {
		t.Fatalf("unexpected lucky numbers %v", numbers.LuckyNumbers)
	}

	var early errorPayload
	if status := f.call(http.MethodPost, "/api/games/"+itoa(gameID)+"/verify", testPlayerA, nil, &early); status != http.StatusBadRequest {
		t.Fatalf("early verify: unexpected status %d", status)
	}

	f.advance(2 * time.Hour)
	var verified struct {
		Result lottery.Result `json:"result"`
	}
	if status := f.call(http.MethodPost, "/api/games/"+itoa(gameID)+"/verify", testPlayerA, nil, &verified); status != http.StatusOK {
		t.Fatalf("verify: unexpected status %d", status)
	}
	if !verified.Result.Computed || len(verified.Result.Tiers) != 2 {
		t.Fatalf("unexpected result %#v", verified.Result)
	}

	var game lottery.GameInfo
	if status := f.call(http.MethodGet, "/api/games/"+itoa(gameID), common.Address{}, nil, &game); status != http.StatusOK {
		t.Fatalf("game info: unexpected status %d", status)
	}
	if game.Game.Status != lottery.StatusVerified || game.TicketsSold != 2 {
		t.Fatalf("unexpected game info %#v", game.Game)
	}

	for _, player := range []common.Address{testPlayerA, testPlayerB} {
		var mine struct {
			TicketID uint64 `json:"ticket_id"`
		}
		if status := f.call(http.MethodGet, "/api/games/"+itoa(gameID)+"/ticket", player, nil, &mine); status != http.StatusOK {
			t.Fatalf("my ticket: unexpected status %d", status)
		}
		var claimed struct {
			Claim lottery.Claim `json:"claim"`
		}
		if status := f.call(http.MethodPost, "/api/tickets/"+itoa(mine.TicketID)+"/claim", player, nil, &claimed); status != http.StatusOK {
			t.Fatalf("claim: unexpected status %d", status)
		}
		if claimed.Claim.Amount == nil || claimed.Claim.Amount.Sign() <= 0 {
			t.Fatalf("expected a positive payout, got %v", claimed.Claim.Amount)
		}

		var again errorPayload
		if status := f.call(http.MethodPost, "/api/tickets/"+itoa(mine.TicketID)+"/claim", player, nil, &again); status != http.StatusBadRequest {
			t.Fatalf("second claim: unexpected status %d", status)
		}
		if again.Code != "lottery.reward.claim.already_claimed" {
			t.Fatalf("unexpected second claim code %q", again.Code)
		}
	}

	var balance struct {
		Balance string `json:"balance_wei"`
	}
	if status := f.call(http.MethodGet, "/api/accounts/"+testPlayerA.Hex()+"/safebox", common.Address{}, nil, &balance); status != http.StatusOK {
		t.Fatalf("safe box: unexpected status %d", status)
	}
	if balance.Balance == "0" {
		t.Fatalf("expected the ticket payout in the safe box")
	}
	if status := f.call(http.MethodPost, "/api/safebox/withdraw", testPlayerA, map[string]any{"amount_wei": balance.Balance}, nil); status != http.StatusOK {
		t.Fatalf("withdraw: unexpected status %d", status)
	}
}

func TestLotteryRoutesMapErrorKinds(t *testing.T) {
	f := newAPIFixture(t)
	gameID := f.createGame(time.Hour)
	if status, _ := f.buy(testPlayerA, gameID, 7); status != http.StatusCreated {
		t.Fatalf("buy: unexpected status %d", status)
	}

	status, payload := f.buy(testPlayerA, gameID, 8)
	if status != http.StatusBadRequest || payload.Code != "lottery.sell.buy_ticket.duplicate_ticket" {
		t.Fatalf("duplicate ticket: got %d %q", status, payload.Code)
	}

	var missing errorPayload
	if status := f.call(http.MethodGet, "/api/games/99", common.Address{}, nil, &missing); status != http.StatusNotFound {
		t.Fatalf("missing game: unexpected status %d (%s)", status, missing.Code)
	}

	if status := f.call(http.MethodPost, "/api/games", common.Address{}, map[string]any{"duration": 60}, nil); status != http.StatusUnauthorized {
		t.Fatalf("anonymous create: unexpected status %d", status)
	}

	setPrice := map[string]any{"key": "ticketPrice", "new_value": "1", "old_value": f.settings.TicketPrice.String()}
	var forbidden errorPayload
	if status := f.call(http.MethodPut, "/api/admin/config", testPlayerA, setPrice, &forbidden); status != http.StatusForbidden {
		t.Fatalf("non-admin config: unexpected status %d", status)
	}

	stale := map[string]any{"key": "ticketPrice", "new_value": "1", "old_value": "2"}
	var conflict errorPayload
	if status := f.call(http.MethodPut, "/api/admin/config", testAdmin, stale, &conflict); status != http.StatusConflict {
		t.Fatalf("stale config: unexpected status %d (%s)", status, conflict.Code)
	}
	if status := f.call(http.MethodPut, "/api/admin/config", testAdmin, setPrice, nil); status != http.StatusOK {
		t.Fatalf("admin config: unexpected status %d", status)
	}

	if status := f.call(http.MethodGet, "/api/games/abc", common.Address{}, nil, nil); status != http.StatusBadRequest {
		t.Fatalf("bad id: unexpected status %d", status)
	}
}

func TestAdminConfigKeepsSettingsValid(t *testing.T) {
	f := newAPIFixture(t)

	fees := map[string]any{"key": "ownerFeeRate", "new_value": "95", "old_value": "10"}
	var rejected errorPayload
	if status := f.call(http.MethodPut, "/api/admin/config", testAdmin, fees, &rejected); status != http.StatusBadRequest || rejected.Code != "lottery.config.set.invalid_settings" {
		t.Fatalf("invalid fee: got %d %q", status, rejected.Code)
	}

	tiers := map[string]any{"new_percents": []uint64{60, 40}, "old_percents": []uint64{50, 30, 20}}
	if status := f.call(http.MethodPut, "/api/admin/tiers", testPlayerA, tiers, nil); status != http.StatusForbidden {
		t.Fatalf("non-admin tiers: unexpected status %d", status)
	}
	if status := f.call(http.MethodPut, "/api/admin/tiers", testAdmin, tiers, nil); status != http.StatusOK {
		t.Fatalf("admin tiers: unexpected status %d", status)
	}
	var stale errorPayload
	if status := f.call(http.MethodPut, "/api/admin/tiers", testAdmin, tiers, &stale); status != http.StatusConflict || stale.Code != "lottery.config.set_tiers.stale_value" {
		t.Fatalf("stale tiers: got %d %q", status, stale.Code)
	}

	settings, err := f.client.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.OwnerFeeRate != 10 || len(settings.TierBonusPercents) != 2 {
		t.Fatalf("unexpected settings after admin writes: %+v", settings)
	}
}

func TestPauseRejectsMutations(t *testing.T) {
	f := newAPIFixture(t)
	gameID := f.createGame(time.Hour)

	if status := f.call(http.MethodPost, "/api/admin/pause", testPlayerA, nil, nil); status != http.StatusForbidden {
		t.Fatalf("non-pauser pause: unexpected status %d", status)
	}
	if status := f.call(http.MethodPost, "/api/admin/pause", testAdmin, nil, nil); status != http.StatusOK {
		t.Fatalf("pause: unexpected status %d", status)
	}
	var health struct {
		Paused bool `json:"paused"`
	}
	if status := f.call(http.MethodGet, "/healthz", common.Address{}, nil, &health); status != http.StatusOK || !health.Paused {
		t.Fatalf("health: unexpected status %d paused=%v", status, health.Paused)
	}
	if status, _ := f.buy(testPlayerA, gameID, 3); status != http.StatusBadRequest {
		t.Fatalf("paused buy: unexpected status %d", status)
	}
	if status := f.call(http.MethodPost, "/api/admin/unpause", testAdmin, nil, nil); status != http.StatusOK {
		t.Fatalf("unpause: unexpected status %d", status)
	}
	if status, _ := f.buy(testPlayerA, gameID, 3); status != http.StatusCreated {
		t.Fatalf("buy after unpause: unexpected status %d", status)
	}
}

func TestMetricsEndpointCountsCalls(t *testing.T) {
	f := newAPIFixture(t)
	f.createGame(time.Hour)

	response, err := f.httpClient.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	for _, want := range []string{
		`happijack_root_events_total{event="LotteryGameCreated"} 1`,
		`happijack_http_requests_total{method="POST",route="/api/games",status="201"} 1`,
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}
