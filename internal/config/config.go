package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "HAPPIJACK"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = DriverSQLite
	defaultDatabasePath      = "happijack.db"
	defaultBadgerDir         = "happijack.badger"
	defaultLogLevel          = "info"
	defaultCookieName        = "app_session"
	defaultSessionIssuer     = "happijack"
	defaultTokenIssuer       = "happijack-api"
	defaultTokenAudience     = "happijack"
	defaultTokenTTLMinutes   = 60
	defaultKeeperSchedule    = "@every 1m"
	defaultRequestsPerSecond = 20.0
	defaultBurst             = 40
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string

	DatabaseDriver string
	DatabasePath   string
	BadgerDir      string

	LogLevel  string
	SentryDSN string

	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration
	CookieName    string
	SessionIssuer string

	AdminAddress common.Address
	ManifestPath string

	Lottery lottery.Settings

	KeeperEnabled  bool
	KeeperSchedule string
	KeeperAddress  common.Address

	RequestsPerSecond float64
	Burst             int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	settings := lottery.DefaultSettings()
	tiers := make([]string, 0, len(settings.TierBonusPercents))
	for _, percent := range settings.TierBonusPercents {
		tiers = append(tiers, strconv.FormatUint(percent, 10))
	}

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.badger_dir", defaultBadgerDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.sentry_dsn", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.session_cookie", defaultCookieName)
	configViper.SetDefault("auth.session_issuer", defaultSessionIssuer)
	configViper.SetDefault("platform.admin_address", "")
	configViper.SetDefault("platform.manifest_path", "")
	configViper.SetDefault("lottery.ticket_price_wei", settings.TicketPrice.String())
	configViper.SetDefault("lottery.max_ticket_count", settings.MaxTicketCount)
	configViper.SetDefault("lottery.max_lucky_number", settings.MaxLuckyNumber)
	configViper.SetDefault("lottery.owner_fee_rate", settings.OwnerFeeRate)
	configViper.SetDefault("lottery.develop_fee_rate", settings.DevelopFeeRate)
	configViper.SetDefault("lottery.verify_fee_rate", settings.VerifyFeeRate)
	configViper.SetDefault("lottery.refund_percent", settings.RefundPercent)
	configViper.SetDefault("lottery.ticket_bonus_percent", settings.TicketBonusPercent)
	configViper.SetDefault("lottery.tier_bonus_percents", strings.Join(tiers, ","))
	configViper.SetDefault("lottery.developer_address", "")
	configViper.SetDefault("keeper.enabled", false)
	configViper.SetDefault("keeper.schedule", defaultKeeperSchedule)
	configViper.SetDefault("keeper.address", "")
	configViper.SetDefault("ratelimit.requests_per_second", defaultRequestsPerSecond)
	configViper.SetDefault("ratelimit.burst", defaultBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:      configViper.GetString("database.path"),
		BadgerDir:         configViper.GetString("database.badger_dir"),
		LogLevel:          configViper.GetString("log.level"),
		SentryDSN:         configViper.GetString("log.sentry_dsn"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		TokenIssuer:       configViper.GetString("auth.issuer"),
		TokenAudience:     configViper.GetString("auth.audience"),
		TokenTTL:          time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		CookieName:        configViper.GetString("auth.session_cookie"),
		SessionIssuer:     configViper.GetString("auth.session_issuer"),
		ManifestPath:      configViper.GetString("platform.manifest_path"),
		KeeperEnabled:     configViper.GetBool("keeper.enabled"),
		KeeperSchedule:    configViper.GetString("keeper.schedule"),
		RequestsPerSecond: configViper.GetFloat64("ratelimit.requests_per_second"),
		Burst:             configViper.GetInt("ratelimit.burst"),
	}

	var err error
	if cfg.AdminAddress, err = parseAddress(configViper, "platform.admin_address"); err != nil {
		return AppConfig{}, err
	}
	if cfg.KeeperAddress, err = parseAddress(configViper, "keeper.address"); err != nil {
		return AppConfig{}, err
	}
	if cfg.Lottery, err = loadLottery(configViper); err != nil {
		return AppConfig{}, err
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func loadLottery(configViper *viper.Viper) (lottery.Settings, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(configViper.GetString("lottery.ticket_price_wei")), 10)
	if !ok {
		return lottery.Settings{}, fmt.Errorf("lottery.ticket_price_wei must be a base-10 integer")
	}
	tiers, err := parsePercents(configViper.GetStringSlice("lottery.tier_bonus_percents"))
	if err != nil {
		return lottery.Settings{}, err
	}
	developer, err := parseAddress(configViper, "lottery.developer_address")
	if err != nil {
		return lottery.Settings{}, err
	}
	return lottery.Settings{
		TicketPrice:        price,
		MaxTicketCount:     configViper.GetUint64("lottery.max_ticket_count"),
		MaxLuckyNumber:     configViper.GetUint64("lottery.max_lucky_number"),
		OwnerFeeRate:       configViper.GetUint64("lottery.owner_fee_rate"),
		DevelopFeeRate:     configViper.GetUint64("lottery.develop_fee_rate"),
		VerifyFeeRate:      configViper.GetUint64("lottery.verify_fee_rate"),
		RefundPercent:      configViper.GetUint64("lottery.refund_percent"),
		TicketBonusPercent: configViper.GetUint64("lottery.ticket_bonus_percent"),
		TierBonusPercents:  tiers,
		DeveloperAddress:   developer,
	}, nil
}

// parsePercents accepts a YAML list or a comma separated env value.
func parsePercents(raw []string) ([]uint64, error) {
	var percents []uint64
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			percent, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("lottery.tier_bonus_percents: %q is not a percent", part)
			}
			percents = append(percents, percent)
		}
	}
	return percents, nil
}

func parseAddress(configViper *viper.Viper, key string) (common.Address, error) {
	raw := strings.TrimSpace(configViper.GetString(key))
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s must be a hex address", key)
	}
	return common.HexToAddress(raw), nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.session_cookie is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.AdminAddress == (common.Address{}) {
		return fmt.Errorf("platform.admin_address is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverBadger:
		if strings.TrimSpace(c.BadgerDir) == "" {
			return fmt.Errorf("database.badger_dir is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, badger, memory", c.DatabaseDriver)
	}
	if c.KeeperEnabled && c.KeeperAddress == (common.Address{}) {
		return fmt.Errorf("keeper.address is required when keeper.enabled is set")
	}
	if c.RequestsPerSecond <= 0 || c.Burst <= 0 {
		return fmt.Errorf("ratelimit.requests_per_second and ratelimit.burst must be positive")
	}
	if err := c.Lottery.Validate(); err != nil {
		return fmt.Errorf("lottery: %w", err)
	}
	return nil
}
