package service

import (
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseUri             string  `envconfig:"DATABASE_URI" required:"true"`
	DatabaseMaxConns        int     `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMaxIdleConns    int     `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime int     `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"1800"` // 30 minutes
	SentryDSN               string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	LogFilePath             string  `envconfig:"LOG_FILE_PATH"`
	JWTSecret               []byte  `envconfig:"JWT_SECRET" required:"true"`
	JWTRefreshTokenExpiry   int     `envconfig:"JWT_REFRESH_EXPIRY" default:"604800"` // in seconds, default 7 days
	JWTAccessTokenExpiry    int     `envconfig:"JWT_ACCESS_EXPIRY" default:"172800"`  // in seconds, default 2 days
	Host                    string  `envconfig:"HOST" default:"localhost:3000"`
	Port                    int     `envconfig:"PORT" default:"3000"`

	LNDAddress      string `envconfig:"LND_ADDRESS" required:"true"`
	LNDCertFile     string `envconfig:"LND_CERT_FILE"`
	LNDCertHex      string `envconfig:"LND_CERT_HEX"`
	LNDMacaroonFile string `envconfig:"LND_MACAROON_FILE"`
	LNDMacaroonHex  string `envconfig:"LND_MACAROON_HEX"`

	DefaultRateLimit int `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	StrictRateLimit  int `envconfig:"STRICT_RATE_LIMIT" default:"10"`
	BurstRateLimit   int `envconfig:"BURST_RATE_LIMIT" default:"1"`

	AllowAccountCreation bool   `envconfig:"ALLOW_ACCOUNT_CREATION" default:"true"`
	WebhookUrl           string `envconfig:"WEBHOOK_URL"`

	MaxFeeAmount          int64 `envconfig:"MAX_FEE_AMOUNT" default:"5000"`
	PaymentTimeoutSeconds int32 `envconfig:"PAYMENT_TIMEOUT_SECONDS" default:"60"`
	InvoiceExpirySeconds  int64 `envconfig:"INVOICE_EXPIRY_SECONDS" default:"86400"` // 24h

	PendingSweepIntervalSeconds int `envconfig:"PENDING_SWEEP_INTERVAL_SECONDS" default:"60"`
	BalanceProbeIntervalSeconds int `envconfig:"BALANCE_PROBE_INTERVAL_SECONDS" default:"3600"`

	// onboarding rewards: "reward_id=amount_in_sats;..."
	RewardCatalog RewardCatalogMap `envconfig:"REWARD_CATALOG" default:"welcome=100;backup=50;first_payment=50"`

	RabbitMQUri                  string `envconfig:"RABBITMQ_URI"`
	RabbitMQNotificationExchange string `envconfig:"RABBITMQ_NOTIFICATION_EXCHANGE" default:"wallet_notifications"`
}

// envconfig map decoder uses colon (:) as the default separator
// we have to override the decoder so we can parse "id=amount" pairs

type RewardCatalogMap map[string]int64

func (rcm *RewardCatalogMap) Decode(value string) error {
	m := map[string]int64{}
	for _, pair := range strings.Split(value, ";") {
		if pair == "" {
			continue
		}
		kvpair := strings.Split(pair, "=")
		if len(kvpair) != 2 {
			return fmt.Errorf("invalid map item: %q", pair)
		}
		amount, err := strconv.ParseInt(kvpair[1], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("invalid reward amount: %q", pair)
		}
		m[kvpair[0]] = amount
	}
	*rcm = m
	return nil
}
