package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvProduction = "production"

var ErrInsecureInProduction = errors.New("payment.insecure_skip_signature cannot be enabled in production")

type PaymentConfig struct {
	Environment string

	VNPayTmnCode       string
	VNPayHashSecret    string
	VNPayHashAlgorithm string

	MoMoPartnerCode string
	MoMoAccessKey   string
	MoMoSecretKey   string

	// InsecureSkipSignature turns off gateway signature checks for sandbox
	// testing. Refused in production.
	InsecureSkipSignature bool

	ConfirmTimeout        time.Duration
	RedisLock             bool
	LockTTL               time.Duration
	NotificationQueueSize int
	NotificationWorkers   int
	ReconcileInterval     time.Duration
}

func LoadPaymentConfig() (*PaymentConfig, error) {
	viper.SetDefault("environment", "development")
	viper.SetDefault("payment.vnpay.hash_algorithm", "sha256")
	viper.SetDefault("payment.insecure_skip_signature", false)
	viper.SetDefault("payment.confirm_timeout", 10*time.Second)
	viper.SetDefault("payment.redis_lock", true)
	viper.SetDefault("payment.lock_ttl", 30*time.Second)
	viper.SetDefault("payment.notification_queue_size", 1000)
	viper.SetDefault("payment.notification_workers", 4)
	viper.SetDefault("payment.reconcile_interval", 15*time.Minute)

	cfg := &PaymentConfig{
		Environment:           strings.ToLower(viper.GetString("environment")),
		VNPayTmnCode:          viper.GetString("payment.vnpay.tmn_code"),
		VNPayHashSecret:       viper.GetString("payment.vnpay.hash_secret"),
		VNPayHashAlgorithm:    strings.ToLower(viper.GetString("payment.vnpay.hash_algorithm")),
		MoMoPartnerCode:       viper.GetString("payment.momo.partner_code"),
		MoMoAccessKey:         viper.GetString("payment.momo.access_key"),
		MoMoSecretKey:         viper.GetString("payment.momo.secret_key"),
		InsecureSkipSignature: viper.GetBool("payment.insecure_skip_signature"),
		ConfirmTimeout:        viper.GetDuration("payment.confirm_timeout"),
		RedisLock:             viper.GetBool("payment.redis_lock"),
		LockTTL:               viper.GetDuration("payment.lock_ttl"),
		NotificationQueueSize: viper.GetInt("payment.notification_queue_size"),
		NotificationWorkers:   viper.GetInt("payment.notification_workers"),
		ReconcileInterval:     viper.GetDuration("payment.reconcile_interval"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *PaymentConfig) Validate() error {
	if c.InsecureSkipSignature && c.Environment == EnvProduction {
		return ErrInsecureInProduction
	}
	switch c.VNPayHashAlgorithm {
	case "sha256", "sha512":
	default:
		return errors.New("payment.vnpay.hash_algorithm must be sha256 or sha512")
	}
	if !c.InsecureSkipSignature {
		if c.VNPayHashSecret == "" {
			log.Printf("[CONFIG] VNPAY_HASH_SECRET is empty, every VNPay callback will fail verification")
		}
		if c.MoMoSecretKey == "" {
			log.Printf("[CONFIG] MOMO_SECRET_KEY is empty, every MoMo callback will fail verification")
		}
	}
	return nil
}
