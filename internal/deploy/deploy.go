package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Result maps every installed module name to its address.
type Result struct {
	Addresses map[string]common.Address
	// Registered lists the modules whose registry entry changed on this run.
	Registered []string
}

// Apply installs the manifest's modules on root as admin, hands out the
// manifest grants and seeds the lottery config once. Running it again against
// the same store only re-registers modules whose address moved.
func Apply(ctx context.Context, root *gameroot.Root, admin common.Address, manifest *Manifest, settings lottery.Settings, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if manifest == nil {
		manifest = DefaultManifest()
	}
	if err := manifest.Validate(); err != nil {
		return Result{}, err
	}

	result := Result{Addresses: make(map[string]common.Address, len(manifest.Systems))}
	for _, name := range manifest.Systems {
		sys, _ := lottery.SystemByName(name)
		address, err := root.Deploy(sys)
		if err != nil {
			return Result{}, fmt.Errorf("deploy %s: %w", name, err)
		}
		result.Addresses[name] = address

		id := sys.Descriptor().ID()
		current, err := root.SystemAddress(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("resolve %s: %w", name, err)
		}
		if current == address {
			continue
		}
		if err := root.RegisterSystem(ctx, admin, id, address); err != nil {
			return Result{}, fmt.Errorf("register %s: %w", name, err)
		}
		result.Registered = append(result.Registered, name)
	}

	for _, grant := range manifest.Grants {
		role, _ := access.RoleByName(grant.Role)
		scope := access.RootScope
		if grant.Scope != "" {
			scope = result.Addresses[grant.Scope]
		}
		account := common.HexToAddress(grant.Account)
		if err := root.GrantRole(ctx, admin, scope, role, account); err != nil {
			return Result{}, fmt.Errorf("grant %s to %s: %w", grant.Role, account.Hex(), err)
		}
	}

	if _, ok := result.Addresses[lottery.ConfigSystemDescriptor.Name]; ok {
		err := lottery.NewClient(root).InitializeConfig(ctx, admin, settings)
		switch {
		case errors.Is(err, lottery.ErrConfigInitialized):
			logger.Debug("lottery config already seeded")
		case err != nil:
			return Result{}, fmt.Errorf("seed lottery config: %w", err)
		default:
			logger.Info("lottery config seeded", zap.String("ticket_price_wei", settings.TicketPrice.String()))
		}
	}

	logger.Info("deployment applied",
		zap.Int("systems", len(result.Addresses)),
		zap.Strings("registered", result.Registered))
	return result, nil
}
