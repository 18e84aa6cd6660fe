// Package casaConfig loads the settings shared by the exporters.
package casaConfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaClient"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaMqtt"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Casa struct {
		Host               string `mapstructure:"host"`
		Username           string `mapstructure:"username"`
		Password           string `mapstructure:"password"`
		InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"`
		PollInterval       int    `mapstructure:"pollInterval"`
		Timeout            int    `mapstructure:"timeout"`
	} `mapstructure:"casa"`
	Metrics struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Log struct {
		File string `mapstructure:"file"`
	} `mapstructure:"log"`
	Mqtt struct {
		Enabled     bool   `mapstructure:"enabled"`
		Broker      string `mapstructure:"broker"`
		ClientId    string `mapstructure:"clientId"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		TopicPrefix string `mapstructure:"topicPrefix"`
		Qos         int    `mapstructure:"qos"`
	} `mapstructure:"mqtt"`
	Influxdb struct {
		Host   string `mapstructure:"host"`
		Token  string `mapstructure:"token"`
		Org    string `mapstructure:"org"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"influxdb"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("casa.host", "")
	v.SetDefault("casa.username", "")
	v.SetDefault("casa.password", "")
	v.SetDefault("casa.insecureSkipVerify", true)
	v.SetDefault("casa.pollInterval", 30)
	v.SetDefault("casa.timeout", 15)
	v.SetDefault("metrics.port", 9123)
	v.SetDefault("log.file", "casa_exporter.log")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientId", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topicPrefix", "casa")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("influxdb.host", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "")
}

// Load reads defaults, the optional YAML file at path and CASA_ prefixed
// environment variables, in increasing priority.
func Load(v *viper.Viper, path string, logger *zap.SugaredLogger) (Config, error) {
	SetDefaults(v)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()
	v.SetEnvPrefix("casa")
	v.SetConfigType("yaml")

	cfg, err := os.ReadFile(path)
	if err != nil {
		logger.Info("No configuration file found. Using Default config")
	} else if err = v.ReadConfig(bytes.NewBuffer(cfg)); err != nil {
		return Config{}, fmt.Errorf("%w: reading %s: %w", ErrInvalidConfig, path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	if c.Mqtt.ClientId == "" {
		// brokers drop the older session when two clients share an id
		c.Mqtt.ClientId = "casa-exporter-" + uuid.NewString()[:8]
	}
	logger.Infof("Configuration for %s, polling every %v", c.Casa.Host, c.PollInterval())
	return c, nil
}

func (c Config) Validate() error {
	if c.Casa.Host == "" {
		return fmt.Errorf("%w: casa.host is required", ErrInvalidConfig)
	}
	if c.Casa.PollInterval <= 0 {
		return fmt.Errorf("%w: casa.pollInterval must be positive", ErrInvalidConfig)
	}
	if c.Casa.Timeout <= 0 {
		return fmt.Errorf("%w: casa.timeout must be positive", ErrInvalidConfig)
	}
	if c.Mqtt.Qos < 0 || c.Mqtt.Qos > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if c.Mqtt.Enabled && c.Mqtt.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrInvalidConfig)
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Casa.PollInterval) * time.Second
}

func (c Config) ClientOptions() casaClient.Options {
	opts := casaClient.DefaultOptions()
	opts.InsecureSkipVerify = c.Casa.InsecureSkipVerify
	opts.Timeout = time.Duration(c.Casa.Timeout) * time.Second
	return opts
}

func (c Config) MqttConfig() casaMqtt.Config {
	return casaMqtt.Config{
		Broker:      c.Mqtt.Broker,
		ClientId:    c.Mqtt.ClientId,
		Username:    c.Mqtt.Username,
		Password:    c.Mqtt.Password,
		TopicPrefix: c.Mqtt.TopicPrefix,
		Qos:         byte(c.Mqtt.Qos),
	}
}

// NewLogger logs JSON to stdout and, if set, to file.
func NewLogger(file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	if file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}
	return cfg.Build()
}
