package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const nonceTTL = 5 * time.Minute

// NonceStore 一次性登录 nonce，防止签名重放
type NonceStore interface {
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume 原子地取出并删除，第二次返回 false
	Consume(ctx context.Context, nonce string) (bool, error)
}

type memNonces struct {
	mu     sync.Mutex
	nonces map[string]time.Time
}

func NewMemoryNonceStore() NonceStore {
	return &memNonces{nonces: make(map[string]time.Time)}
}

func (m *memNonces) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for n, exp := range m.nonces {
		if now.After(exp) {
			delete(m.nonces, n)
		}
	}
	m.nonces[nonce] = now.Add(ttl)
	return nil
}

func (m *memNonces) Consume(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(m.nonces, nonce)
	return time.Now().Before(exp), nil
}

type redisNonces struct {
	rdb *redis.Client
}

func NewRedisNonceStore(rdb *redis.Client) NonceStore {
	return &redisNonces{rdb: rdb}
}

func nonceKey(n string) string {
	return "auth:nonce:" + n
}

func (r *redisNonces) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	return r.rdb.Set(ctx, nonceKey(nonce), 1, ttl).Err()
}

func (r *redisNonces) Consume(ctx context.Context, nonce string) (bool, error) {
	n, err := r.rdb.Del(ctx, nonceKey(nonce)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GET/POST /auth/nonce
func (h *Handler) Nonce(c *gin.Context) {
	nonce, err := generateNonce()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate nonce"})
		return
	}

	// 防止重放
	if err := h.nonces.Put(c.Request.Context(), nonce, nonceTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce, "message": SignMessage(nonce)})
}
