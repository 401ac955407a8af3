// Package keeper verifies ended lottery games on a cron schedule.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSchedule = "@every 1m"
	pageSize        = 100
)

var (
	ErrMissingClient  = errors.New("keeper: lottery client is required")
	ErrMissingAddress = errors.New("keeper: address is required")
	ErrAlreadyStarted = errors.New("keeper: already started")
)

// RunObserver is told about every sweep.
type RunObserver interface {
	ObserveKeeperRun(verified int, err error)
}

// Config wires a Keeper. Schedule accepts standard five-field cron
// expressions and descriptors such as "@every 30s".
type Config struct {
	Client   *lottery.Client
	Address  common.Address
	Schedule string
	Logger   *zap.Logger
	Observer RunObserver
}

// Keeper sweeps the active game set and calls verify on every game whose
// window has closed. The keeper address collects the verify fee.
type Keeper struct {
	client   *lottery.Client
	address  common.Address
	schedule cron.Schedule
	spec     string
	logger   *zap.Logger
	observer RunObserver

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running sync.Mutex
}

func New(cfg Config) (*Keeper, error) {
	if cfg.Client == nil {
		return nil, ErrMissingClient
	}
	if cfg.Address == (common.Address{}) {
		return nil, ErrMissingAddress
	}
	spec := cfg.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("keeper: parse schedule %q: %w", spec, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keeper{
		client:   cfg.Client,
		address:  cfg.Address,
		schedule: schedule,
		spec:     spec,
		logger:   logger,
		observer: cfg.Observer,
	}, nil
}

// Start runs sweeps in the background until Stop or until ctx is done.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cron != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	scheduler := cron.New(cron.WithChain(cron.Recover(cronLogger{k.logger})))
	scheduler.Schedule(k.schedule, cron.FuncJob(func() {
		if _, err := k.Sweep(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			k.logger.Warn("keeper sweep failed", zap.Error(err))
		}
	}))
	scheduler.Start()
	k.cron = scheduler
	k.cancel = cancel
	k.logger.Info("keeper started", zap.String("schedule", k.spec), zap.String("address", k.address.Hex()))
	return nil
}

// Stop cancels the in-flight sweep and waits for it to return.
func (k *Keeper) Stop() {
	k.mu.Lock()
	scheduler, cancel := k.cron, k.cancel
	k.cron, k.cancel = nil, nil
	k.mu.Unlock()
	if scheduler == nil {
		return
	}
	cancel()
	<-scheduler.Stop().Done()
	k.logger.Info("keeper stopped")
}

// Sweep verifies every ended active game once and returns how many it
// verified. Games still open are skipped; other rejections are logged and do
// not stop the sweep. Overlapping sweeps are serialized.
func (k *Keeper) Sweep(ctx context.Context) (int, error) {
	k.running.Lock()
	defer k.running.Unlock()

	verified, err := k.sweep(ctx)
	if k.observer != nil {
		k.observer.ObserveKeeperRun(verified, err)
	}
	return verified, err
}

func (k *Keeper) sweep(ctx context.Context) (int, error) {
	// Verification removes games from the active set, so collect first.
	var gameIDs []uint64
	for offset := uint64(0); ; offset += pageSize {
		page, err := k.client.ActiveGames(ctx, offset, pageSize)
		if err != nil {
			return 0, fmt.Errorf("list active games: %w", err)
		}
		gameIDs = append(gameIDs, page...)
		if len(page) < pageSize {
			break
		}
	}

	verified := 0
	var failures []error
	for _, gameID := range gameIDs {
		if err := ctx.Err(); err != nil {
			return verified, err
		}
		result, _, err := k.client.Verify(ctx, k.address, gameID)
		switch {
		case err == nil:
			verified++
			k.logger.Info("keeper verified game",
				zap.Uint64("lottery_game_id", gameID),
				zap.Uint64("lucky_number", result.LuckyNumber))
		case errors.Is(err, lottery.ErrGameNotEnded):
		case gameroot.KindOf(err) == gameroot.KindInternal:
			failures = append(failures, fmt.Errorf("verify game %d: %w", gameID, err))
		default:
			k.logger.Warn("keeper skipped game",
				zap.Uint64("lottery_game_id", gameID),
				zap.String("code", gameroot.CodeOf(err)))
		}
	}
	return verified, errors.Join(failures...)
}

// cronLogger routes cron's own messages, including recovered job panics, to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
