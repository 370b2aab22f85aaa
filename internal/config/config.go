package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"

	"github.com/vidinfra/subflow/internal/domain/proration"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig
	Event      EventConfig     `validate:"required"`
	Scheduler  SchedulerConfig `validate:"required"`
	Billing    BillingConfig   `validate:"required"`
}

type DeploymentConfig struct {
	Mode string `validate:"required,oneof=local dev prod"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level string `validate:"required,oneof=debug info warn error"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
}

// EventConfig configures the lifecycle event bus.
type EventConfig struct {
	Topic string `validate:"required"`
	// HostTopic carries notifications consumed from the host platform.
	HostTopic string `validate:"required"`
}

// SchedulerConfig bounds the best-effort task runner.
type SchedulerConfig struct {
	PollInterval time.Duration `validate:"required"`
	BatchSize    int           `validate:"required,gt=0"`
	Concurrency  int           `validate:"required,gt=0"`
}

// BillingConfig carries the store-level billing policies.
type BillingConfig struct {
	// MaxFailedPayments is the number of consecutive failures tolerated
	// before the subscription is cancelled and re-termed.
	MaxFailedPayments int `validate:"required,gt=0"`
	// CarryOutstandingBalance multiplies renewal totals by the failed-payment
	// count to carry unpaid amounts forward.
	CarryOutstandingBalance bool
	// SwitchSignUpFeeMode apportions sign-up fees on plan switches.
	SwitchSignUpFeeMode proration.SignUpFeeProration `validate:"required,oneof=none full difference"`
	// SwitchProrateLength reduces a switched subscription's length by
	// payments already made.
	SwitchProrateLength bool
	// SwitchExtendOnDowngrade defers the next payment on downgrades instead
	// of forfeiting the overpayment.
	SwitchExtendOnDowngrade bool
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/subflow")

	v.SetEnvPrefix("SUBFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", "local")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("event.topic", "subflow.lifecycle")
	v.SetDefault("event.hosttopic", "subflow.host")
	v.SetDefault("postgres.maxopenconns", 10)
	v.SetDefault("postgres.maxidleconns", 5)
	v.SetDefault("postgres.connmaxlifetimeminutes", 30)
	v.SetDefault("scheduler.pollinterval", time.Minute)
	v.SetDefault("scheduler.batchsize", 25)
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("billing.maxfailedpayments", 3)
	v.SetDefault("billing.switchsignupfeemode", string(proration.SignUpFeeProrationDifference))
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development and
// tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: "local"},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: "debug"},
		Event: EventConfig{
			Topic:     "subflow.lifecycle",
			HostTopic: "subflow.host",
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Minute,
			BatchSize:    25,
			Concurrency:  1,
		},
		Billing: BillingConfig{
			MaxFailedPayments:       3,
			CarryOutstandingBalance: false,
			SwitchSignUpFeeMode:     proration.SignUpFeeProrationDifference,
			SwitchProrateLength:     true,
			SwitchExtendOnDowngrade: true,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
