package config

import (
	"log"

	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"environment": "APP_ENV",
	"server.port": "PORT",

	"database.driver":     "DATABASE_DRIVER",
	"database.host":       "DATABASE_HOST",
	"database.port":       "DATABASE_PORT",
	"database.user":       "DATABASE_USER",
	"database.password":   "DATABASE_PASSWORD",
	"database.name":       "DATABASE_NAME",
	"database.ssl_mode":   "DATABASE_SSL_MODE",
	"database.sqlite_dsn": "DATABASE_SQLITE_DSN",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",

	"payment.vnpay.tmn_code":          "VNPAY_TMN_CODE",
	"payment.vnpay.hash_secret":       "VNPAY_HASH_SECRET",
	"payment.vnpay.hash_algorithm":    "VNPAY_HASH_ALGORITHM",
	"payment.momo.partner_code":       "MOMO_PARTNER_CODE",
	"payment.momo.access_key":         "MOMO_ACCESS_KEY",
	"payment.momo.secret_key":         "MOMO_SECRET_KEY",
	"payment.insecure_skip_signature": "PAYMENT_INSECURE_SKIP_SIGNATURE",
	"payment.confirm_timeout":         "PAYMENT_CONFIRM_TIMEOUT",
	"payment.redis_lock":              "PAYMENT_REDIS_LOCK",
	"payment.lock_ttl":                "PAYMENT_LOCK_TTL",
	"payment.notification_queue_size": "PAYMENT_NOTIFICATION_QUEUE_SIZE",
	"payment.notification_workers":    "PAYMENT_NOTIFICATION_WORKERS",
	"payment.reconcile_interval":      "PAYMENT_RECONCILE_INTERVAL",
}

// Init loads an optional .env file and binds the environment variables every
// package reads through viper.
func Init(configFile string) {
	viper.SetConfigFile(configFile)
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}
