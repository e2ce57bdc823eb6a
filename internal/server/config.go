package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the debug/ops HTTP server's own listen configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// defaults holds every SetDefault call LoadConfig needs, keyed exactly as
// they're read back with v.Get*. A table here means adding a default is a
// one-line entry rather than a new statement in the middle of LoadConfig's
// control flow.
var defaults = map[string]any{
	"server.host":     "127.0.0.1",
	"server.port":     8090,
	"server.dev_mode": false,

	"logging.level":  "info",
	"logging.format": "json",

	"data_dir":        "./data",
	"device.platform": "linux",

	// Fusion/channel cadence.
	"tick_interval": "500ms",
	"wear.interval": "5s",

	// Cloud upload; left blank so EnableCloud fails closed until configured.
	"cloud.base_url":        "",
	"cloud.app_id":          "",
	"cloud.app_api_key":     "",
	"cloud.tenant_id":       "",
	"cloud.hmac_secret":     "",
	"upload.batch_size":     16,
	"upload.max_batch_wait": "5s",
	"upload.max_queue_age":  "24h",
}

// configSearchPaths are tried, in order, when no explicit config path is given.
var configSearchPaths = []string{".", "./configs", "/etc/synheart"}

// LoadConfig reads the runtime's configuration from file and environment
// variables. configPath, if non-empty, is read verbatim; otherwise a
// "synheart" config file is searched for along configSearchPaths.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("synheart")
		v.SetConfigType("yaml")
		for _, p := range configSearchPaths {
			v.AddConfigPath(p)
		}
	}

	// Environment variable support: SYNHEART_SERVER_PORT=9090
	v.SetEnvPrefix("SYNHEART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults.
	}

	return v, nil
}
