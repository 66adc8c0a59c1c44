package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/akylbek/payment-system/esewa-gateway/internal/signer"
)

const (
	ProtocolV2     = "v2"
	ProtocolLegacy = "legacy"
)

type Config struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	NatsURL        string
	EventBroker    string
	JaegerEndpoint string
	Esewa          EsewaConfig
	Reconciler     ReconcilerConfig
}

type EsewaConfig struct {
	Protocol         string
	ProductCode      string
	SecretKey        string
	PaymentURL       string
	VerificationURL  string
	SuccessURL       string
	FailureURL       string
	SignedFieldNames string
	VerifyTimeout    time.Duration
}

type ReconcilerConfig struct {
	Enabled  bool
	Interval time.Duration
	Grace    time.Duration
	Batch    int
}

// ConfigurationError reports a setting the operator has to fix.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s is missing or invalid", e.Field)
}

var gatewayDefaults = map[string]struct{ paymentURL, verificationURL string }{
	ProtocolV2: {
		paymentURL:      "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		verificationURL: "https://rc.esewa.com.np/api/epay/transaction/status/",
	},
	ProtocolLegacy: {
		paymentURL:      "https://uat.esewa.com.np/epay/main",
		verificationURL: "https://uat.esewa.com.np/epay/transrec",
	},
}

// Load reads defaults, then the optional YAML file at path, then the environment.
// Nested keys map to env vars with "." replaced by "_" (esewa.secret_key -> ESEWA_SECRET_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		DatabaseDriver: v.GetString("database.driver"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		KafkaBrokers:   v.GetString("kafka.brokers"),
		NatsURL:        v.GetString("nats.url"),
		EventBroker:    v.GetString("event_broker"),
		JaegerEndpoint: v.GetString("jaeger.endpoint"),
		Esewa: EsewaConfig{
			Protocol:         strings.ToLower(v.GetString("esewa.protocol")),
			ProductCode:      v.GetString("esewa.product_code"),
			SecretKey:        v.GetString("esewa.secret_key"),
			PaymentURL:       v.GetString("esewa.payment_url"),
			VerificationURL:  v.GetString("esewa.verification_url"),
			SuccessURL:       v.GetString("esewa.success_url"),
			FailureURL:       v.GetString("esewa.failure_url"),
			SignedFieldNames: v.GetString("esewa.signed_field_names"),
			VerifyTimeout:    v.GetDuration("esewa.verify_timeout"),
		},
		Reconciler: ReconcilerConfig{
			Enabled:  v.GetBool("reconciler.enabled"),
			Interval: v.GetDuration("reconciler.interval"),
			Grace:    v.GetDuration("reconciler.grace"),
			Batch:    v.GetInt("reconciler.batch"),
		},
	}

	if defaults, ok := gatewayDefaults[cfg.Esewa.Protocol]; ok {
		if cfg.Esewa.PaymentURL == "" {
			cfg.Esewa.PaymentURL = defaults.paymentURL
		}
		if cfg.Esewa.VerificationURL == "" {
			cfg.Esewa.VerificationURL = defaults.verificationURL
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("event_broker", "none")
	v.SetDefault("jaeger.endpoint", "")

	v.SetDefault("esewa.protocol", ProtocolV2)
	v.SetDefault("esewa.product_code", "EPAYTEST")
	v.SetDefault("esewa.secret_key", "")
	v.SetDefault("esewa.payment_url", "")
	v.SetDefault("esewa.verification_url", "")
	v.SetDefault("esewa.success_url", "http://localhost:8081/api/payment/success")
	v.SetDefault("esewa.failure_url", "http://localhost:8081/api/payment/failure")
	v.SetDefault("esewa.signed_field_names", strings.Join(signer.DefaultSignedFieldNames, ","))
	v.SetDefault("esewa.verify_timeout", 10*time.Second)

	v.SetDefault("reconciler.enabled", false)
	v.SetDefault("reconciler.interval", time.Minute)
	v.SetDefault("reconciler.grace", 5*time.Minute)
	v.SetDefault("reconciler.batch", 50)
}

// Validate checks the gateway settings the core cannot run without.
func (c *EsewaConfig) Validate() error {
	switch c.Protocol {
	case ProtocolV2:
		if c.SecretKey == "" {
			return &ConfigurationError{Field: "esewa.secret_key"}
		}
		if strings.TrimSpace(c.SignedFieldNames) == "" {
			return &ConfigurationError{Field: "esewa.signed_field_names"}
		}
	case ProtocolLegacy:
	default:
		return &ConfigurationError{Field: "esewa.protocol"}
	}

	required := []struct{ field, value string }{
		{"esewa.product_code", c.ProductCode},
		{"esewa.payment_url", c.PaymentURL},
		{"esewa.verification_url", c.VerificationURL},
		{"esewa.success_url", c.SuccessURL},
		{"esewa.failure_url", c.FailureURL},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigurationError{Field: r.field}
		}
	}

	if c.VerifyTimeout <= 0 {
		return &ConfigurationError{Field: "esewa.verify_timeout"}
	}
	return nil
}
