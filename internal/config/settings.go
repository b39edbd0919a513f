package config

import (
	"time"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
)

type (
	ServiceConfig struct {
		AppConfig AppConfig     `json:"app_config"`
		Logging   LoggingConfig `json:"logging"`
		Gateway   GatewayConfig `json:"gateway"`
		Backoff   BackoffConfig `json:"backoff"`
	}

	AppConfig struct {
		ServiceName    string `envconfig:"APP_SERVICE_NAME" default:"mq-gateway" json:"service_name"`
		ServiceVersion string `envconfig:"APP_SERVICE_VERSION" default:"0.0.0" json:"service_version"`
		CommitSHA      string `envconfig:"APP_COMMIT_SHA" default:"unknown" json:"commit_sha"`
		Env            string `envconfig:"APP_ENVIRONMENT" default:"unknown" json:"env"`
	}

	LoggingConfig struct {
		Level  string `envconfig:"LOGGING_LEVEL" default:"info" json:"level"`
		Format string `envconfig:"LOGGING_FORMAT" default:"json" json:"format"`
	}

	GatewayConfig struct {
		Manager           string        `envconfig:"MQ_MANAGER" default:"QM1" json:"manager"`
		Host              string        `envconfig:"MQ_HOST" default:"localhost" json:"host"`
		Channel           string        `envconfig:"MQ_CHANNEL" default:"DEV.APP.SVRCONN" json:"channel"`
		Port              int           `envconfig:"MQ_PORT" default:"5672" json:"port"`
		UserID            string        `envconfig:"MQ_USER_ID" default:"" json:"user_id"`
		Password          string        `envconfig:"MQ_PASSWORD" default:"guest" json:"password,omitempty"`
		Vhost             string        `envconfig:"MQ_VHOST" default:"/" json:"vhost"`
		ReconnectDelay    time.Duration `envconfig:"MQ_RECONNECT_DELAY" default:"500ms" json:"reconnect_delay"`
		BrowseWait        time.Duration `envconfig:"MQ_BROWSE_WAIT" default:"3s" json:"browse_wait"`
		ConnectTimeout    time.Duration `envconfig:"MQ_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		Heartbeat         time.Duration `envconfig:"MQ_HEARTBEAT" default:"10s" json:"heartbeat"`
		MaxConnectRetries int           `envconfig:"MQ_MAX_CONNECT_RETRIES" default:"5" json:"max_connect_retries"`
	}

	BackoffConfig struct {
		// BaseDelay is the amount of time to backoff after the first failure.
		BaseDelay time.Duration `envconfig:"BACKOFF_BASE_DELAY" default:"500ms" json:"base_delay"`
		// Multiplier is the factor with which to multiply backoffs after a
		// failed retry. Should ideally be greater than 1.
		Multiplier float64 `envconfig:"BACKOFF_MULTIPLIER" default:"1.6" json:"multiplier"`
		// Jitter is the factor with which backoffs are randomized.
		Jitter float64 `envconfig:"BACKOFF_JITTER" default:"0.2" json:"jitter"`
		// MaxDelay is the upper bound of backoff delay.
		MaxDelay time.Duration `envconfig:"BACKOFF_MAX_DELAY" default:"10s" json:"max_delay"`
	}
)
