package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/engine"
	"CardRoom/internal/game/table"

	"github.com/spf13/viper"
)

const EnvPrefix = "CARDROOM"

type Config struct {
	Server struct {
		Port            string
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	}
	Database struct {
		Driver string // postgres | sqlite3
		DSN    string
	}
	Redis struct {
		Addr     string // 为空时大厅目录和 nonce 用内存
		Password string
		DB       int
	}
	JWT struct {
		Secret string
		TTL    time.Duration
	}
	Log struct {
		Level string
	}
	Game   GameConfig
	Tables []TableConfig
	Bots   []bot.Profile
}

// GameConfig 所有桌子共用的计时与经济参数
type GameConfig struct {
	ActionTimeout   time.Duration `mapstructure:"action_timeout"`
	BotThinkMin     time.Duration `mapstructure:"bot_think_min"`
	BotThinkMax     time.Duration `mapstructure:"bot_think_max"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	NextHandDelay   time.Duration `mapstructure:"next_hand_delay"`
	RakebackPercent float64       `mapstructure:"rakeback_percent"`
	// StartingBalance 首次登录的账号初始余额
	StartingBalance int64         `mapstructure:"starting_balance"`
	LobbySync       time.Duration `mapstructure:"lobby_sync"`
	LedgerQueue     int           `mapstructure:"ledger_queue"`
}

type TableConfig struct {
	ID            string
	Name          string
	MaxSeats      int              `mapstructure:"max_seats"`
	SmallBlind    int64            `mapstructure:"small_blind"`
	BigBlind      int64            `mapstructure:"big_blind"`
	MinBuyIn      int64            `mapstructure:"min_buy_in"`
	MaxBuyIn      int64            `mapstructure:"max_buy_in"`
	Rake          table.RakeConfig `mapstructure:"rake"`
	BotsEnabled   bool             `mapstructure:"bots_enabled"`
	BotTarget     int              `mapstructure:"bot_target"`
	BotDifficulty string           `mapstructure:"bot_difficulty"`
	BotBuyIn      int64            `mapstructure:"bot_buy_in"`
}

var C Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:cardroom.db?_busy_timeout=5000")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")

	d := engine.DefaultTiming()
	v.SetDefault("game.action_timeout", d.ActionTimeout)
	v.SetDefault("game.bot_think_min", d.BotThinkMin)
	v.SetDefault("game.bot_think_max", d.BotThinkMax)
	v.SetDefault("game.disconnect_grace", d.DisconnectGrace)
	v.SetDefault("game.next_hand_delay", d.NextHandDelay)
	v.SetDefault("game.rakeback_percent", 0.0)
	v.SetDefault("game.starting_balance", 10000)
	v.SetDefault("game.lobby_sync", 2*time.Second)
	v.SetDefault("game.ledger_queue", 1024)
}

// Load 读取 YAML，环境变量 CARDROOM_* 覆盖同名键（如 CARDROOM_SERVER_PORT）
func Load(path string) error {
	c, err := Read(path)
	if err != nil {
		return err
	}
	C = *c
	return nil
}

func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Game.BotThinkMax < c.Game.BotThinkMin {
		errs = append(errs, errors.New("game.bot_think_max must be >= bot_think_min"))
	}
	if c.Game.LobbySync <= 0 {
		errs = append(errs, errors.New("game.lobby_sync must be positive"))
	}
	if c.Game.RakebackPercent < 0 || c.Game.RakebackPercent > 1 {
		errs = append(errs, fmt.Errorf("game.rakeback_percent %v not in [0,1]", c.Game.RakebackPercent))
	}
	if len(c.Tables) == 0 {
		errs = append(errs, errors.New("at least one table is required"))
	}
	seen := make(map[string]bool)
	for _, t := range c.Tables {
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate table id %q", t.ID))
		}
		seen[t.ID] = true
		if err := t.Engine().Validate(); err != nil {
			errs = append(errs, err)
		}
		if t.BotsEnabled && t.BotTarget > len(c.Bots) {
			errs = append(errs, fmt.Errorf("table %s: bot target %d exceeds %d configured bots", t.ID, t.BotTarget, len(c.Bots)))
		}
	}
	names := make(map[string]bool)
	for _, b := range c.Bots {
		if b.Name == "" || names[b.Name] {
			errs = append(errs, fmt.Errorf("bot name %q empty or duplicated", b.Name))
		}
		names[b.Name] = true
	}
	return errors.Join(errs...)
}

// Engine 转成牌桌协调器的建桌参数
func (t TableConfig) Engine() engine.Config {
	name := t.Name
	if name == "" {
		name = t.ID
	}
	// 不填难度时沿用名册里每个机器人自己的难度
	var difficulty bot.Difficulty
	if t.BotDifficulty != "" {
		difficulty = bot.ParseDifficulty(t.BotDifficulty)
	}
	return engine.Config{
		ID:            t.ID,
		Name:          name,
		MaxSeats:      t.MaxSeats,
		SmallBlind:    t.SmallBlind,
		BigBlind:      t.BigBlind,
		MinBuyIn:      t.MinBuyIn,
		MaxBuyIn:      t.MaxBuyIn,
		Rake:          t.Rake,
		BotsEnabled:   t.BotsEnabled,
		BotTarget:     t.BotTarget,
		BotDifficulty: difficulty,
		BotBuyIn:      t.BotBuyIn,
	}
}

func (g GameConfig) Timing() engine.Timing {
	return engine.Timing{
		ActionTimeout:   g.ActionTimeout,
		BotThinkMin:     g.BotThinkMin,
		BotThinkMax:     g.BotThinkMax,
		DisconnectGrace: g.DisconnectGrace,
		NextHandDelay:   g.NextHandDelay,
		RakebackPercent: g.RakebackPercent,
	}
}
