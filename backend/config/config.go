package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"collabClient/backend/internal/scheduler"
)

const (
	configName = "collabClientConfig"
	envPrefix  = "COLLAB"
	redacted   = "***"
)

type Config struct {
	Relay struct {
		URL   string `mapstructure:"url"`
		Token string `mapstructure:"token"`
		// Discover 为 true 且 URL 为空时走 mDNS
		Discover bool          `mapstructure:"discover"`
		Service  string        `mapstructure:"service"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"relay"`
	API struct {
		Base string `mapstructure:"base"`
	} `mapstructure:"api"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Participant struct {
		Username string `mapstructure:"username"`
	} `mapstructure:"participant"`
	Document struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"document"`
	Sync struct {
		scheduler.Config `mapstructure:",squash"`
		SendQueue        int `mapstructure:"sendQueue"`
	} `mapstructure:"sync"`
	Bridge struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"bridge"`
	Redis struct {
		Addrs    []string      `mapstructure:"addrs"`
		Password string        `mapstructure:"password"`
		DraftTTL time.Duration `mapstructure:"draftTTL"`
	} `mapstructure:"redis"`
	Bolt struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"bolt"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.url", "")
	v.SetDefault("relay.token", "")
	v.SetDefault("relay.discover", false)
	v.SetDefault("relay.service", "_collabrelay._tcp")
	v.SetDefault("relay.timeout", 3*time.Second)
	v.SetDefault("api.base", "http://localhost:3001")
	v.SetDefault("auth.secret", "")
	v.SetDefault("participant.username", "")
	v.SetDefault("document.id", "")
	v.SetDefault("sync.snapshotInterval", scheduler.DefaultSnapshotInterval)
	v.SetDefault("sync.metadataDebounce", scheduler.DefaultMetadataDebounce)
	v.SetDefault("sync.formatDebounce", scheduler.DefaultFormatDebounce)
	v.SetDefault("sync.sendQueue", 256)
	v.SetDefault("bridge.port", 3050)
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.draftTTL", 24*time.Hour)
	v.SetDefault("bolt.path", "collab-drafts.db")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "doc-ops")
}

// Load 读取 collabClientConfig.yaml，环境变量 COLLAB_RELAY_URL 之类可以覆盖。
// 找不到配置文件时只用默认值。paths 为空时按 backend/config、config、当前目录查找
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		// 兼容从项目根目录或 backend 目录启动
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("config file %s not found, using defaults", configName)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Redacted 返回可以打日志的副本：token、密钥、密码和 DSN 里的密码被替换
func (c Config) Redacted() Config {
	out := c
	out.Relay.Token = mask(c.Relay.Token)
	out.Auth.Secret = mask(c.Auth.Secret)
	out.Redis.Password = mask(c.Redis.Password)
	out.Mysql.DSN = maskDSN(c.Mysql.DSN)
	return out
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return redacted
}

// maskDSN 只隐藏密码；解析不了时整串隐藏
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return redacted
	}
	if parsed.Passwd != "" {
		parsed.Passwd = redacted
	}
	return parsed.FormatDSN()
}
