package lottery

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	opConfigInitialize   = "lottery.config.initialize"
	opConfigSet          = "lottery.config.set"
	opConfigRead         = "lottery.config.read"
	opConfigSetDeveloper = "lottery.config.set_developer"
	opConfigSetTiers     = "lottery.config.set_tiers"

	// MaxTiers bounds the number of prize tiers a game can carry.
	MaxTiers = 10
)

// ConfigKey derives the key of a named config value.
func ConfigKey(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

var (
	KeyTicketPrice        = ConfigKey("ticketPrice")
	KeyMaxTicketCount     = ConfigKey("maxTicketCount")
	KeyMaxLuckyNumber     = ConfigKey("maxLuckyNumber")
	KeyOwnerFeeRate       = ConfigKey("ownerFeeRate")
	KeyDevelopFeeRate     = ConfigKey("developFeeRate")
	KeyVerifyFeeRate      = ConfigKey("verifyFeeRate")
	KeyRefundPercent      = ConfigKey("refundPercent")
	KeyTicketBonusPercent = ConfigKey("ticketBonusPercent")
	KeyTierCount          = ConfigKey("tierCount")
)

// TierBonusKey is the config key of the bonus percent of tier i.
func TierBonusKey(tier int) common.Hash {
	return ConfigKey(fmt.Sprintf("tierBonusPercent.%d", tier))
}

// Settings are the platform-wide defaults copied into every new game.
type Settings struct {
	TicketPrice        *big.Int
	MaxTicketCount     uint64
	MaxLuckyNumber     uint64
	OwnerFeeRate       uint64
	DevelopFeeRate     uint64
	VerifyFeeRate      uint64
	RefundPercent      uint64
	TicketBonusPercent uint64
	TierBonusPercents  []uint64
	DeveloperAddress   common.Address
}

// DefaultSettings mirrors the values the platform was launched with.
func DefaultSettings() Settings {
	return Settings{
		TicketPrice:        big.NewInt(500_000_000_000_000), // 0.0005 native
		MaxTicketCount:     10_000,
		MaxLuckyNumber:     999_999,
		OwnerFeeRate:       10,
		DevelopFeeRate:     10,
		VerifyFeeRate:      5,
		RefundPercent:      30,
		TicketBonusPercent: 80,
		TierBonusPercents:  []uint64{50, 30, 20},
	}
}

func (s Settings) Validate() error {
	switch {
	case s.TicketPrice == nil || s.TicketPrice.Sign() <= 0:
		return fmt.Errorf("%w: ticket price must be positive", ErrInvalidSettings)
	case s.MaxTicketCount == 0:
		return fmt.Errorf("%w: max ticket count must be positive", ErrInvalidSettings)
	case s.MaxLuckyNumber == 0:
		return fmt.Errorf("%w: max lucky number must be positive", ErrInvalidSettings)
	case s.OwnerFeeRate >= 100, s.DevelopFeeRate >= 100, s.OwnerFeeRate+s.DevelopFeeRate >= 100:
		return fmt.Errorf("%w: owner and develop fee rates must stay below 100", ErrInvalidSettings)
	case s.VerifyFeeRate > 100, s.RefundPercent > 100, s.TicketBonusPercent > 100:
		return fmt.Errorf("%w: percentages must not exceed 100", ErrInvalidSettings)
	case len(s.TierBonusPercents) == 0 || len(s.TierBonusPercents) > MaxTiers:
		return fmt.Errorf("%w: tier count must be between 1 and %d", ErrInvalidSettings, MaxTiers)
	}
	var sum uint64
	for _, percent := range s.TierBonusPercents {
		if percent > 100 {
			return fmt.Errorf("%w: tier bonus percent %d exceeds 100", ErrInvalidSettings, percent)
		}
		sum += percent
	}
	if sum != 100 {
		return fmt.Errorf("%w: tier bonus percents sum to %d", ErrInvalidSettings, sum)
	}
	return nil
}

func (s Settings) values() map[common.Hash]*big.Int {
	values := map[common.Hash]*big.Int{
		KeyTicketPrice:        new(big.Int).Set(s.TicketPrice),
		KeyMaxTicketCount:     new(big.Int).SetUint64(s.MaxTicketCount),
		KeyMaxLuckyNumber:     new(big.Int).SetUint64(s.MaxLuckyNumber),
		KeyOwnerFeeRate:       new(big.Int).SetUint64(s.OwnerFeeRate),
		KeyDevelopFeeRate:     new(big.Int).SetUint64(s.DevelopFeeRate),
		KeyVerifyFeeRate:      new(big.Int).SetUint64(s.VerifyFeeRate),
		KeyRefundPercent:      new(big.Int).SetUint64(s.RefundPercent),
		KeyTicketBonusPercent: new(big.Int).SetUint64(s.TicketBonusPercent),
		KeyTierCount:          big.NewInt(int64(len(s.TierBonusPercents))),
	}
	for i, percent := range s.TierBonusPercents {
		values[TierBonusKey(i)] = new(big.Int).SetUint64(percent)
	}
	return values
}

// ConfigSystemDescriptor names the lottery config module.
var ConfigSystemDescriptor = gameroot.Descriptor{
	Prefix:  SystemPrefix,
	Name:    "LotteryGameConstantVariableSystem",
	Version: "1",
}

var ConfigSystemID = ConfigSystemDescriptor.ID()

// ConfigSystem stores keyed uint256 config values. Writes are admin-only
// compare-and-set.
type ConfigSystem struct{}

func NewConfigSystem() *ConfigSystem {
	return &ConfigSystem{}
}

func (*ConfigSystem) Descriptor() gameroot.Descriptor { return ConfigSystemDescriptor }

func (*ConfigSystem) Tables() []store.Table {
	return []store.Table{GameConfigTable, GameSystemConfigTable}
}

// Initialize seeds every setting once. Later calls fail.
func (*ConfigSystem) Initialize(env *gameroot.Env, settings Settings) error {
	if err := env.RequireRole(access.RoleDefaultAdmin); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return classify(opConfigInitialize, err)
	}
	initialized, err := configInitialized(env)
	if err != nil {
		return classify(opConfigInitialize, err)
	}
	if initialized {
		return classify(opConfigInitialize, ErrConfigInitialized)
	}
	for key, value := range settings.values() {
		if err := env.SetField(GameConfigTable.ID, store.KeyOf(key), 0, store.EncodeUint256(value)); err != nil {
			return err
		}
	}
	record := [][]byte{store.EncodeAddress(settings.DeveloperAddress), store.EncodeBool(true)}
	return env.SetRecord(GameSystemConfigTable.ID, singletonKey, record)
}

// SetGameConfig replaces the value under key only if it currently equals oldValue.
// Once the config is initialized, a write to a settings key must leave the
// settings valid.
func (*ConfigSystem) SetGameConfig(env *gameroot.Env, key common.Hash, newValue, oldValue *big.Int) error {
	if err := env.RequireRole(access.RoleDefaultAdmin); err != nil {
		return err
	}
	if newValue == nil {
		return classify(opConfigSet, fmt.Errorf("%w: missing value", ErrInvalidSettings))
	}
	if err := store.CheckUint256(newValue); err != nil {
		return classify(opConfigSet, fmt.Errorf("%w: %v", ErrInvalidSettings, err))
	}
	current, err := readConfig(env, key)
	if err != nil {
		return classify(opConfigSet, err)
	}
	if oldValue == nil || current.Cmp(oldValue) != 0 {
		return classify(opConfigSet, ErrStaleConfig)
	}
	if err := checkSettingsWith(env, key, newValue); err != nil {
		return classify(opConfigSet, err)
	}
	if err := env.SetField(GameConfigTable.ID, store.KeyOf(key), 0, store.EncodeUint256(newValue)); err != nil {
		return err
	}
	emitConfigUpdated(env, key, newValue, oldValue)
	return nil
}

// SetTierBonusPercents swaps the whole tier table at once, since single tier
// writes cannot keep the percents summing to 100. oldPercents must match the
// current table.
func (*ConfigSystem) SetTierBonusPercents(env *gameroot.Env, newPercents, oldPercents []uint64) error {
	if err := env.RequireRole(access.RoleDefaultAdmin); err != nil {
		return err
	}
	settings, err := loadSettings(env)
	if err != nil {
		return classify(opConfigSetTiers, err)
	}
	if !slices.Equal(settings.TierBonusPercents, oldPercents) {
		return classify(opConfigSetTiers, ErrStaleConfig)
	}
	settings.TierBonusPercents = slices.Clone(newPercents)
	if err := settings.Validate(); err != nil {
		return classify(opConfigSetTiers, err)
	}
	writes := map[common.Hash]*big.Int{
		KeyTierCount: big.NewInt(int64(len(newPercents))),
	}
	for i := range max(len(newPercents), len(oldPercents)) {
		var percent uint64
		if i < len(newPercents) {
			percent = newPercents[i]
		}
		writes[TierBonusKey(i)] = new(big.Int).SetUint64(percent)
	}
	for key, value := range writes {
		previous, err := readConfig(env, key)
		if err != nil {
			return classify(opConfigSetTiers, err)
		}
		if previous.Cmp(value) == 0 {
			continue
		}
		if err := env.SetField(GameConfigTable.ID, store.KeyOf(key), 0, store.EncodeUint256(value)); err != nil {
			return err
		}
		emitConfigUpdated(env, key, value, previous)
	}
	return nil
}

func emitConfigUpdated(env *gameroot.Env, key common.Hash, newValue, oldValue *big.Int) {
	env.Emit(EventGameConfigUpdated, key.Hex(), map[string]any{
		"key":       key.Hex(),
		"new_value": newValue.String(),
		"old_value": oldValue.String(),
	})
}

// checkSettingsWith validates the settings as they would read after key is
// set to value. Keys outside the active settings are not checked, and nothing
// is checked before Initialize.
func checkSettingsWith(r reader, key common.Hash, value *big.Int) error {
	initialized, err := configInitialized(r)
	if err != nil || !initialized {
		return err
	}
	settings, err := loadSettings(r)
	if err != nil {
		return err
	}
	if key == KeyTicketPrice {
		settings.TicketPrice = new(big.Int).Set(value)
		return settings.Validate()
	}
	if !value.IsUint64() {
		if isSettingsKey(key) {
			return fmt.Errorf("%w: value %s exceeds uint64", ErrInvalidSettings, value)
		}
		return nil
	}
	v := value.Uint64()
	scalars := map[common.Hash]*uint64{
		KeyMaxTicketCount:     &settings.MaxTicketCount,
		KeyMaxLuckyNumber:     &settings.MaxLuckyNumber,
		KeyOwnerFeeRate:       &settings.OwnerFeeRate,
		KeyDevelopFeeRate:     &settings.DevelopFeeRate,
		KeyVerifyFeeRate:      &settings.VerifyFeeRate,
		KeyRefundPercent:      &settings.RefundPercent,
		KeyTicketBonusPercent: &settings.TicketBonusPercent,
	}
	if target, ok := scalars[key]; ok {
		*target = v
		return settings.Validate()
	}
	if key == KeyTierCount {
		if v == 0 || v > MaxTiers {
			return fmt.Errorf("%w: tier count must be between 1 and %d", ErrInvalidSettings, MaxTiers)
		}
		percents := make([]uint64, v)
		for i := range percents {
			if percents[i], err = readConfigUint64(r, TierBonusKey(i)); err != nil {
				return err
			}
		}
		settings.TierBonusPercents = percents
		return settings.Validate()
	}
	for i := range MaxTiers {
		if key != TierBonusKey(i) {
			continue
		}
		if v > 100 {
			return fmt.Errorf("%w: tier bonus percent %d exceeds 100", ErrInvalidSettings, v)
		}
		if i >= len(settings.TierBonusPercents) {
			return nil
		}
		settings.TierBonusPercents[i] = v
		return settings.Validate()
	}
	return nil
}

func isSettingsKey(key common.Hash) bool {
	switch key {
	case KeyMaxTicketCount, KeyMaxLuckyNumber, KeyOwnerFeeRate, KeyDevelopFeeRate,
		KeyVerifyFeeRate, KeyRefundPercent, KeyTicketBonusPercent, KeyTierCount:
		return true
	}
	for i := range MaxTiers {
		if key == TierBonusKey(i) {
			return true
		}
	}
	return false
}

func configInitialized(r reader) (bool, error) {
	data, err := r.GetField(GameSystemConfigTable.ID, singletonKey, 1)
	if err != nil {
		return false, err
	}
	return store.DecodeBool(data)
}

func (*ConfigSystem) GameConfig(env *gameroot.Env, key common.Hash) (*big.Int, error) {
	value, err := readConfig(env, key)
	return value, classify(opConfigRead, err)
}

func (*ConfigSystem) SetGameDeveloperAddress(env *gameroot.Env, developer common.Address) error {
	if err := env.RequireRole(access.RoleDefaultAdmin); err != nil {
		return err
	}
	if developer == (common.Address{}) {
		return classify(opConfigSetDeveloper, ErrZeroDeveloper)
	}
	return env.SetField(GameSystemConfigTable.ID, singletonKey, 0, store.EncodeAddress(developer))
}

func (*ConfigSystem) DeveloperAddress(env *gameroot.Env) (common.Address, error) {
	developer, err := loadDeveloper(env)
	return developer, classify(opConfigRead, err)
}

// Settings reads the current defaults back as one value.
func (*ConfigSystem) Settings(env *gameroot.Env) (Settings, error) {
	settings, err := loadSettings(env)
	return settings, classify(opConfigRead, err)
}

func readConfig(r reader, key common.Hash) (*big.Int, error) {
	return readUint256(r, GameConfigTable, store.KeyOf(key), 0)
}

func readConfigUint64(r reader, key common.Hash) (uint64, error) {
	return readUint64(r, GameConfigTable, store.KeyOf(key), 0)
}

func loadSettings(r reader) (Settings, error) {
	var (
		settings Settings
		err      error
	)
	if settings.TicketPrice, err = readConfig(r, KeyTicketPrice); err != nil {
		return Settings{}, err
	}
	scalars := []struct {
		key    common.Hash
		target *uint64
	}{
		{KeyMaxTicketCount, &settings.MaxTicketCount},
		{KeyMaxLuckyNumber, &settings.MaxLuckyNumber},
		{KeyOwnerFeeRate, &settings.OwnerFeeRate},
		{KeyDevelopFeeRate, &settings.DevelopFeeRate},
		{KeyVerifyFeeRate, &settings.VerifyFeeRate},
		{KeyRefundPercent, &settings.RefundPercent},
		{KeyTicketBonusPercent, &settings.TicketBonusPercent},
	}
	for _, scalar := range scalars {
		if *scalar.target, err = readConfigUint64(r, scalar.key); err != nil {
			return Settings{}, err
		}
	}
	tierCount, err := readConfigUint64(r, KeyTierCount)
	if err != nil {
		return Settings{}, err
	}
	if tierCount > MaxTiers {
		tierCount = MaxTiers
	}
	settings.TierBonusPercents = make([]uint64, 0, tierCount)
	for i := 0; i < int(tierCount); i++ {
		percent, err := readConfigUint64(r, TierBonusKey(i))
		if err != nil {
			return Settings{}, err
		}
		settings.TierBonusPercents = append(settings.TierBonusPercents, percent)
	}
	if settings.DeveloperAddress, err = loadDeveloper(r); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
