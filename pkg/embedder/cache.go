package embedder

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// CachedModel persists vectors of a wrapped Model in SQLite. Vectors are
// keyed by sha256 of the model name and text, so switching models never
// serves stale vectors.
type CachedModel struct {
	model Model
	db    *sql.DB
	log   *zap.Logger
}

// NewCachedModel opens (or creates) the cache database at path.
func NewCachedModel(model Model, path string, log *zap.Logger) (*CachedModel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	// One connection: writes are serialized and the pragmas below stick.
	db.SetMaxOpenConns(1)

	c := &CachedModel{model: model, db: db, log: log}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *CachedModel) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := c.db.Exec(p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS embeddings (
			key TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			dim INTEGER NOT NULL,
			vector BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Embed serves cached vectors and embeds the misses in one call to the
// wrapped model. Failing to write the cache is logged, not returned.
func (c *CachedModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	dim := c.model.Dimension()
	for i, t := range texts {
		keys[i] = c.key(t)
		v, err := c.lookup(ctx, keys[i], dim)
		if err != nil {
			return nil, err
		}
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
			continue
		}
		out[i] = v
	}

	if len(missTexts) == 0 {
		c.log.Debug("embedding cache hit", zap.Int("texts", len(texts)))
		return out, nil
	}
	c.log.Debug("embedding cache miss",
		zap.Int("texts", len(texts)),
		zap.Int("misses", len(missTexts)))

	vecs, err := c.model.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", c.model.Name(), len(vecs), len(missTexts))
	}

	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = vecs[j]
		missKeys[j] = keys[i]
	}
	if err := c.store(ctx, missKeys, vecs); err != nil {
		c.log.Warn("failed to write embedding cache", zap.Error(err))
	}
	return out, nil
}

func (c *CachedModel) lookup(ctx context.Context, key string, dim int) ([]float32, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, "SELECT vector FROM embeddings WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache lookup: %w", err)
	}
	if len(blob) != dim*4 {
		c.log.Warn("ignoring cached vector with wrong size",
			zap.String("key", key),
			zap.Int("bytes", len(blob)))
		return nil, nil
	}
	return decodeFloat32Slice(blob), nil
}

func (c *CachedModel) store(ctx context.Context, keys []string, vecs [][]float32) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO embeddings (key, model, dim, vector, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, k := range keys {
		if _, err := stmt.ExecContext(ctx, k, c.model.Name(), len(vecs[i]), encodeFloat32Slice(vecs[i]), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Len returns the number of cached vectors.
func (c *CachedModel) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n)
	return n, err
}

func (c *CachedModel) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model.Name()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Dimension returns the wrapped model's dimension.
func (c *CachedModel) Dimension() int { return c.model.Dimension() }

// Name returns the wrapped model's name. Cached and uncached vectors are
// interchangeable, so the name is not decorated.
func (c *CachedModel) Name() string { return c.model.Name() }

// Close closes the database.
func (c *CachedModel) Close() error {
	return c.db.Close()
}

func encodeFloat32Slice(f []float32) []byte {
	buf := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32Slice(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
