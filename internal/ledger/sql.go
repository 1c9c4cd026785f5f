package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore 关系库实现，postgres 用于线上，sqlite 用于本地和测试
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// rebind 把 ? 占位符换成 postgres 的 $n
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func schema(driver string) []string {
	serial, integer := "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER"
	if driver == DriverPostgres {
		serial, integer = "BIGSERIAL PRIMARY KEY", "BIGINT"
	}
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			balance %[1]s NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, integer),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS transactions (
			id %[1]s,
			account_id TEXT NOT NULL,
			amount %[2]s NOT NULL,
			kind TEXT NOT NULL,
			op_key TEXT UNIQUE,
			description TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, serial, integer),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS hand_history (
			id %[1]s,
			hand_id TEXT NOT NULL UNIQUE,
			table_id TEXT NOT NULL,
			hand_number %[2]s NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, serial, integer),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS rake_ledger (
			id %[1]s,
			hand_id TEXT NOT NULL UNIQUE,
			table_id TEXT NOT NULL,
			hand_number %[2]s NOT NULL,
			pot_amount %[2]s NOT NULL,
			rake_amount %[2]s NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, serial, integer),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS player_stats (
			account_id TEXT PRIMARY KEY,
			hands_played %[1]s NOT NULL DEFAULT 0,
			hands_won %[1]s NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, integer),
		`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_hand_history_table ON hand_history (table_id, hand_number)`,
	}
}

// Migrate 建表，可重复执行
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func opKeyArg(opKey string) sql.NullString {
	return sql.NullString{String: opKey, Valid: opKey != ""}
}

func (s *SQLStore) EnsureAccount(ctx context.Context, accountID string, initial int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO accounts (id, balance) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`), accountID, initial)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 && initial > 0 {
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO transactions (account_id, amount, kind, op_key, description)
			VALUES (?, ?, ?, ?, ?)
		`), accountID, initial, KindDeposit, opKeyArg(""), "initial balance")
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT balance FROM accounts WHERE id = ?`), accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (s *SQLStore) DebitBalance(ctx context.Context, accountID string, amount int64, opKey string) error {
	return s.applyDelta(ctx, accountID, -amount, KindBuyIn, opKey)
}

func (s *SQLStore) CreditBalance(ctx context.Context, accountID string, amount int64, opKey string) error {
	return s.applyDelta(ctx, accountID, amount, KindCashOut, opKey)
}

func (s *SQLStore) CreditRakeback(ctx context.Context, accountID string, amount int64, opKey string) error {
	return s.applyDelta(ctx, accountID, amount, KindRakeback, opKey)
}

// applyDelta 先写流水（op_key 唯一约束做幂等闸门），再改余额，同一事务
func (s *SQLStore) applyDelta(ctx context.Context, accountID string, delta int64, kind, opKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO transactions (account_id, amount, kind, op_key, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (op_key) DO NOTHING
	`), accountID, delta, kind, opKeyArg(opKey), kind)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// 已经记过账
		return nil
	}

	res, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE accounts SET balance = balance + ?
		WHERE id = ? AND balance + ? >= 0
	`), delta, accountID, delta)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM accounts WHERE id = ?`), accountID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return tx.Commit()
}

func (s *SQLStore) RecordTransaction(ctx context.Context, t Transaction) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO transactions (account_id, amount, kind, op_key, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (op_key) DO NOTHING
	`), t.AccountID, t.Amount, t.Kind, opKeyArg(t.OpKey), t.Description)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) RecordHandHistory(ctx context.Context, rec HandRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO hand_history (hand_id, table_id, hand_number, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (hand_id) DO NOTHING
	`), rec.HandID, rec.TableID, rec.HandNumber, string(rec.Payload))
	if err != nil {
		return fmt.Errorf("record hand history: %w", err)
	}
	return nil
}

func (s *SQLStore) RecordRakeLedger(ctx context.Context, e RakeEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rake_ledger (hand_id, table_id, hand_number, pot_amount, rake_amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (hand_id) DO NOTHING
	`), e.HandID, e.TableID, e.HandNumber, e.PotAmount, e.RakeAmount)
	if err != nil {
		return fmt.Errorf("record rake: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdatePlayerStats(ctx context.Context, accountID string, won bool) error {
	w := 0
	if won {
		w = 1
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO player_stats (account_id, hands_played, hands_won)
		VALUES (?, 1, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			hands_played = player_stats.hands_played + 1,
			hands_won = player_stats.hands_won + excluded.hands_won,
			updated_at = CURRENT_TIMESTAMP
	`), accountID, w)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	return nil
}

func (s *SQLStore) Stats(ctx context.Context, accountID string) (PlayerStats, error) {
	st := PlayerStats{AccountID: accountID}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT hands_played, hands_won FROM player_stats WHERE account_id = ?
	`), accountID).Scan(&st.HandsPlayed, &st.HandsWon)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}

// Transactions 按时间顺序列出某账户的流水
func (s *SQLStore) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT account_id, amount, kind, COALESCE(op_key, ''), COALESCE(description, '')
		FROM transactions WHERE account_id = ? ORDER BY id
	`), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.AccountID, &t.Amount, &t.Kind, &t.OpKey, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
