package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server           `mapstructure:"server"`
	Postgres     Postgres         `mapstructure:"postgres"`
	Broker       Broker           `mapstructure:"broker"`
	Cron         Cron             `mapstructure:"cron"`
	Dispatcher   DispatcherConfig `mapstructure:"dispatcher"`
	Scheduler    SchedulerConfig  `mapstructure:"scheduler"`
	Provider     Provider         `mapstructure:"provider"`
	HTTPClient   HTTPClient       `mapstructure:"httpClient"`
	LoggingLevel string           `mapstructure:"logging-level"`
}

type Server struct {
	Port      string `mapstructure:"port"`
	BodyLimit int    `mapstructure:"body_limit"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type Broker struct {
	Kafka Kafka `mapstructure:"kafka"`
}

type Kafka struct {
	Brokers         string `mapstructure:"brokers"`
	ReaderTopic     string `mapstructure:"readerTopic"`
	ReaderUsr       string `mapstructure:"readerUsr"`
	ReaderUsrPwd    string `mapstructure:"readerUsrPwd"`
	ParkingLotTopic string `mapstructure:"parkingLotTopic"`
	WriterUsr       string `mapstructure:"writerUsr"`
	WriterUsrPwd    string `mapstructure:"writerUsrPwd"`
	MaxAttempts     int    `mapstructure:"maxAttempts"`
}

// Cron holds trigger specs for the periodic jobs. Each value is either a
// cron expression ("0 */5 * * * *") or an interval ("@every 1m").
type Cron struct {
	DispatchSpec string `mapstructure:"dispatchSpec"`
	OutreachSpec string `mapstructure:"outreachSpec"`
	ReaperSpec   string `mapstructure:"reaperSpec"`
}

// DispatcherConfig bounds one ProcessEvents call.
type DispatcherConfig struct {
	BatchSize int           `mapstructure:"batchSize"`
	Lease     time.Duration `mapstructure:"lease"`
}

// SchedulerConfig bounds one ProcessOutreachQueue call.
type SchedulerConfig struct {
	BatchSize   int           `mapstructure:"batchSize"`
	Workers     int           `mapstructure:"workers"`
	Lease       time.Duration `mapstructure:"lease"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
}

// Provider configures the outbound email provider API.
type Provider struct {
	BaseURL string `mapstructure:"baseURL"`
	APIKey  string `mapstructure:"apiKey"`
}

type HTTPClient struct {
	ConnectTimeout        time.Duration `mapstructure:"connectTimeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"TLSHandshakeTimeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"responseHeaderTimeout"`
	ExpectContinueTimeout time.Duration `mapstructure:"expectContinueTimeout"`

	IdleConnTimeout     time.Duration `mapstructure:"idleConnTimeout"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxIdleConnsPerHost"`
	MaxConnsPerHost     int           `mapstructure:"maxConnsPerHost"`
	KeepAlives          bool          `mapstructure:"keepAlives"`

	// Overall client timeout. 0 means deadlines come from the context.
	ClientTimeout time.Duration `mapstructure:"clientTimeout"`

	UserAgent  string `mapstructure:"userAgent"`
	MaxRetries int    `mapstructure:"maxRetries"`

	InsecureSkipVerify bool `mapstructure:"insecureSkipVerify"`
}

func NewConfig() (Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	var conf Config
	err := viper.ReadInConfig()
	// A missing .env file is fine; env vars alone are enough.
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	err = viper.Unmarshal(&conf)

	return conf, err
}
