package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"CardRoom/internal/game/bot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
jwt:
  secret: test-secret
game:
  action_timeout: 15s
  rakeback_percent: 0.25
tables:
  - id: t1
    max_seats: 6
    small_blind: 5
    big_blind: 10
    min_buy_in: 100
    max_buy_in: 1000
    rake: { percent: 0.05, cap: 30, min_pot: 20 }
    bots_enabled: true
    bot_target: 1
bots:
  - { name: Ada, difficulty: pro }
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRead_DefaultsAndOverrides(t *testing.T) {
	c, err := Read(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Port)
	assert.Equal(t, "sqlite3", c.Database.Driver)
	assert.Equal(t, 24*time.Hour, c.JWT.TTL)
	assert.Equal(t, 15*time.Second, c.Game.ActionTimeout)
	assert.Equal(t, 30*time.Second, c.Game.DisconnectGrace, "未配置的键取默认值")
	assert.Equal(t, int64(10000), c.Game.StartingBalance)

	require.Len(t, c.Tables, 1)
	tc := c.Tables[0].Engine()
	assert.Equal(t, "t1", tc.Name, "没有名字时用 id")
	assert.Equal(t, int64(30), tc.Rake.Cap)
	assert.Equal(t, int64(20), tc.Rake.MinPot)
	assert.Empty(t, tc.BotDifficulty)

	require.Len(t, c.Bots, 1)
	assert.Equal(t, bot.Pro, c.Bots[0].Difficulty)

	timing := c.Game.Timing()
	assert.Equal(t, 0.25, timing.RakebackPercent)
}

func TestRead_EnvOverride(t *testing.T) {
	t.Setenv("CARDROOM_SERVER_PORT", ":9999")
	t.Setenv("CARDROOM_DATABASE_DRIVER", "postgres")
	c, err := Read(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Server.Port)
	assert.Equal(t, "postgres", c.Database.Driver)
}

func TestValidate(t *testing.T) {
	_, err := Read(writeConfig(t, "tables: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
	assert.Contains(t, err.Error(), "at least one table")

	dup := sample + `
  - { name: Ada }
`
	_, err = Read(writeConfig(t, dup))
	assert.ErrorContains(t, err, "duplicated")

	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_SetsGlobal(t *testing.T) {
	require.NoError(t, Load(writeConfig(t, sample)))
	assert.Equal(t, "test-secret", C.JWT.Secret)
}
