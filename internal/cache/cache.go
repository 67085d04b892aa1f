// Package cache implements the Live State Cache (C3): a namespaced,
// TTL-capable key-value store over positions, orders, heartbeats and general
// state, backed by its own speed-profiled sqlite database.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/paperloop/internal/database"
	"github.com/aristath/paperloop/internal/domain"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache wraps the live-state sqlite database.
type Cache struct {
	db  *database.DB
	log zerolog.Logger
}

// Open opens (and migrates) the cache database at path.
func Open(path string, log zerolog.Logger) (*Cache, error) {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileCache, Name: "cache"})
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	if err := db.Migrate(schemaSQL); err != nil {
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &Cache{db: db, log: log.With().Str("component", "cache").Logger()}, nil
}

// Close closes the underlying connection.
func (c *Cache) Close() error { return c.db.Close() }

// Ping issues a trivial query for liveness checks.
func (c *Cache) Ping() error {
	var one int
	if err := c.db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// --- raw key-value primitives -------------------------------------------------

// set writes value at key with an optional absolute expiry.
func (c *Cache) set(key string, value []byte, ttl *time.Duration) error {
	var expiresAt sql.NullString
	if ttl != nil {
		expiresAt = sql.NullString{String: time.Now().UTC().Add(*ttl).Format(time.RFC3339Nano), Valid: true}
	}
	_, err := c.db.Exec(`
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// get reads value at key, treating an expired row as absent (lazy TTL
// enforcement; expired rows stay in the table until SweepExpired runs).
func (c *Cache) get(key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullString
	err := c.db.QueryRow("SELECT value, expires_at FROM kv WHERE key = ?", key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if expiresAt.Valid {
		exp, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err == nil && time.Now().UTC().After(exp) {
			return nil, ErrNotFound
		}
	}
	return value, nil
}

func (c *Cache) delete(key string) error {
	if _, err := c.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

func (c *Cache) scanPrefix(prefix string) (map[string][]byte, error) {
	rows, err := c.db.Query("SELECT key, value, expires_at FROM kv WHERE key LIKE ? ESCAPE '\\'", likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("cache: scan prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		var expiresAt sql.NullString
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, fmt.Errorf("cache: scan prefix row: %w", err)
		}
		if expiresAt.Valid {
			if exp, err := time.Parse(time.RFC3339Nano, expiresAt.String); err == nil && now.After(exp) {
				continue
			}
		}
		out[key] = value
	}
	return out, rows.Err()
}

func likePrefix(prefix string) string {
	escaped := ""
	for _, r := range prefix {
		if r == '%' || r == '_' || r == '\\' {
			escaped += "\\"
		}
		escaped += string(r)
	}
	return escaped + "%"
}

// SweepExpired deletes every row past its expiry. Intended to run on a
// background interval alongside the lazy per-read filtering.
func (c *Cache) SweepExpired() (int64, error) {
	res, err := c.db.Exec("DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at < ?", time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("cache: sweep expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- typed accessors: positions:<symbol> --------------------------------------

func positionKey(symbol string) string { return "mm:positions:" + symbol }

// SetPosition writes a single position.
func (c *Cache) SetPosition(p domain.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: marshal position: %w", err)
	}
	return c.set(positionKey(p.Symbol), data, nil)
}

// GetPosition reads a single position.
func (c *Cache) GetPosition(symbol string) (*domain.Position, error) {
	data, err := c.get(positionKey(symbol))
	if err != nil {
		return nil, err
	}
	var p domain.Position
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("cache: unmarshal position: %w", err)
	}
	return &p, nil
}

// GetAllPositions returns every currently cached position, used by the
// watchdog (a separate process with no broker handle of its own) to read
// position state the trading process has already synced.
func (c *Cache) GetAllPositions() ([]domain.Position, error) {
	rows, err := c.scanPrefix("mm:positions:")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(rows))
	for _, data := range rows {
		var p domain.Position
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SyncPositions atomically replaces the entire positions namespace with
// broker truth: existing position keys not present in positions are deleted.
func (c *Cache) SyncPositions(positions []domain.Position) error {
	existing, err := c.scanPrefix("mm:positions:")
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(positions))
	for _, p := range positions {
		keep[positionKey(p.Symbol)] = true
	}
	return database.WithTransaction(c.db.Conn(), func(tx *sql.Tx) error {
		for key := range existing {
			if !keep[key] {
				if _, err := tx.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
					return fmt.Errorf("cache: sync positions delete %s: %w", key, err)
				}
			}
		}
		for _, p := range positions {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("cache: sync positions marshal: %w", err)
			}
			if _, err := tx.Exec(`
				INSERT INTO kv (key, value, expires_at) VALUES (?, ?, NULL)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = NULL
			`, positionKey(p.Symbol), data); err != nil {
				return fmt.Errorf("cache: sync positions upsert %s: %w", p.Symbol, err)
			}
		}
		return nil
	})
}

// --- typed accessors: orders:<broker_id>, orders:client:<client_id> ----------

func orderKey(brokerID string) string       { return "mm:orders:" + brokerID }
func orderClientKey(clientID string) string { return "mm:orders:client:" + clientID }

// SetOrder writes an order under its broker id, and maintains the
// client-id → broker-id index so callers can resolve either direction.
func (c *Cache) SetOrder(o domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("cache: marshal order: %w", err)
	}
	brokerID := o.ClientOrderID
	if o.BrokerOrderID != nil {
		brokerID = *o.BrokerOrderID
	}
	if err := c.set(orderKey(brokerID), data, nil); err != nil {
		return err
	}
	if o.BrokerOrderID != nil {
		if err := c.set(orderClientKey(o.ClientOrderID), []byte(*o.BrokerOrderID), nil); err != nil {
			return err
		}
	}
	return nil
}

// GetOrderByBrokerID reads an order by broker id (or client id, if no broker
// id has been assigned yet).
func (c *Cache) GetOrderByBrokerID(brokerID string) (*domain.Order, error) {
	data, err := c.get(orderKey(brokerID))
	if err != nil {
		return nil, err
	}
	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("cache: unmarshal order: %w", err)
	}
	return &o, nil
}

// GetOrderByClientID resolves the client-id index to a broker id, then reads
// the order.
func (c *Cache) GetOrderByClientID(clientID string) (*domain.Order, error) {
	brokerID, err := c.get(orderClientKey(clientID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No broker id assigned yet; the order may still be keyed under its client id.
			return c.GetOrderByBrokerID(clientID)
		}
		return nil, err
	}
	return c.GetOrderByBrokerID(string(brokerID))
}

// GetZombieOrders scans all cached orders and returns those that are open
// (non-terminal) and created before the maxAge cutoff.
func (c *Cache) GetZombieOrders(maxAge time.Duration) ([]domain.Order, error) {
	rows, err := c.scanPrefix("mm:orders:")
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	var zombies []domain.Order
	for key, data := range rows {
		if len(key) > len("mm:orders:client:") && key[:len("mm:orders:client:")] == "mm:orders:client:" {
			continue // index entry, not an order record
		}
		var o domain.Order
		if err := json.Unmarshal(data, &o); err != nil {
			continue
		}
		if !o.Status.Terminal() && o.CreatedAt.Before(cutoff) {
			zombies = append(zombies, o)
		}
	}
	return zombies, nil
}

// --- typed accessors: heartbeat:<process> -------------------------------------

func heartbeatKey(process string) string { return "mm:heartbeat:" + process }

// SetHeartbeat records process liveness with a TTL strictly larger than the
// declared heartbeat interval.
func (c *Cache) SetHeartbeat(process string, ttl time.Duration) error {
	hb := domain.HeartBeat{Process: process, LastSeen: time.Now().UTC()}
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("cache: marshal heartbeat: %w", err)
	}
	return c.set(heartbeatKey(process), data, &ttl)
}

// GetHeartbeat reads the last heartbeat for process, or ErrNotFound if it has
// expired or was never recorded.
func (c *Cache) GetHeartbeat(process string) (*domain.HeartBeat, error) {
	data, err := c.get(heartbeatKey(process))
	if err != nil {
		return nil, err
	}
	var hb domain.HeartBeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("cache: unmarshal heartbeat: %w", err)
	}
	return &hb, nil
}

// --- typed accessors: state:<key> ---------------------------------------------

func stateKey(key string) string { return "mm:state:" + key }

// SetState writes an arbitrary JSON-serializable value under state:<key>.
func (c *Cache) SetState(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal state %s: %w", key, err)
	}
	return c.set(stateKey(key), data, nil)
}

// GetState reads the raw JSON bytes stored at state:<key>.
func (c *Cache) GetState(key string) ([]byte, error) {
	return c.get(stateKey(key))
}

// SetStateBlob writes an opaque msgpack-encoded blob under state:<key>, a
// binary internal encoding distinct from the JSON wire format used
// everywhere else in the cache.
func (c *Cache) SetStateBlob(key string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: msgpack marshal state %s: %w", key, err)
	}
	return c.set(stateKey(key), data, nil)
}

// GetStateBlob reads and decodes a msgpack blob written by SetStateBlob.
func (c *Cache) GetStateBlob(key string, out interface{}) error {
	data, err := c.get(stateKey(key))
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cache: msgpack unmarshal state %s: %w", key, err)
	}
	return nil
}

// InitialEquity and EquityHistory have fixed well-known state keys per the
// configured cache keyspace.
const (
	keyInitialEquity    = "initial_equity"
	keyEquityHistory    = "equity_history"
	keyCurrentRegime    = "current_regime"
	keyOrderSubmissions = "order_submissions"
)

// orderSubmissionRetention bounds how long a submission timestamp is kept
// around; the watchdog only ever asks for a trailing one-minute window, so
// anything older is pruned the next time a submission is recorded.
const orderSubmissionRetention = 10 * time.Minute

// SetInitialEquity records the equity baseline the drawdown monitor measures
// total drawdown against.
func (c *Cache) SetInitialEquity(equity float64) error {
	return c.SetState(keyInitialEquity, equity)
}

// GetInitialEquity reads the equity baseline, if ever set.
func (c *Cache) GetInitialEquity() (float64, error) {
	data, err := c.GetState(keyInitialEquity)
	if err != nil {
		return 0, err
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("cache: unmarshal initial equity: %w", err)
	}
	return v, nil
}

// AppendEquityHistory appends equity to the rolling equity history list.
func (c *Cache) AppendEquityHistory(equity float64, maxLen int) error {
	var history []float64
	if data, err := c.GetState(keyEquityHistory); err == nil {
		_ = json.Unmarshal(data, &history)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	history = append(history, equity)
	if maxLen > 0 && len(history) > maxLen {
		history = history[len(history)-maxLen:]
	}
	return c.SetState(keyEquityHistory, history)
}

// GetEquityHistory reads the rolling equity history list.
func (c *Cache) GetEquityHistory() ([]float64, error) {
	data, err := c.GetState(keyEquityHistory)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("cache: unmarshal equity history: %w", err)
	}
	return history, nil
}

// RecordOrderSubmission appends ts to the rolling submission-timestamp list
// the watchdog's order-rate kill rule reads, pruning entries older than
// orderSubmissionRetention as a side effect.
func (c *Cache) RecordOrderSubmission(ts time.Time) error {
	var stamps []time.Time
	if data, err := c.GetState(keyOrderSubmissions); err == nil {
		_ = json.Unmarshal(data, &stamps)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	ts = ts.UTC()
	cutoff := ts.Add(-orderSubmissionRetention)
	kept := make([]time.Time, 0, len(stamps)+1)
	for _, s := range stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	kept = append(kept, ts)
	return c.SetState(keyOrderSubmissions, kept)
}

// CountOrderSubmissionsSince returns how many recorded submissions fall at
// or after since.
func (c *Cache) CountOrderSubmissionsSince(since time.Time) (int, error) {
	data, err := c.GetState(keyOrderSubmissions)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var stamps []time.Time
	if err := json.Unmarshal(data, &stamps); err != nil {
		return 0, fmt.Errorf("cache: unmarshal order submissions: %w", err)
	}

	since = since.UTC()
	count := 0
	for _, s := range stamps {
		if !s.Before(since) {
			count++
		}
	}
	return count, nil
}

// SetCurrentRegime records the most recently detected portfolio-level regime.
func (c *Cache) SetCurrentRegime(r domain.MarketRegime) error {
	return c.SetState(keyCurrentRegime, r)
}

// GetCurrentRegime reads the most recently detected portfolio-level regime.
func (c *Cache) GetCurrentRegime() (*domain.MarketRegime, error) {
	data, err := c.GetState(keyCurrentRegime)
	if err != nil {
		return nil, err
	}
	var r domain.MarketRegime
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("cache: unmarshal current regime: %w", err)
	}
	return &r, nil
}
