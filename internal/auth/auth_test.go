package auth

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CardRoom/internal/ledger"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

// personalSign 模拟 MetaMask personal_sign
func personalSign(t *testing.T, msg string) (addr, sig string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	raw, err := crypto.Sign(crypto.Keccak256Hash([]byte(prefix)).Bytes(), key)
	require.NoError(t, err)
	raw[64] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), "0x" + hex.EncodeToString(raw)
}

func setup(t *testing.T, nonces NonceStore) (*gin.Engine, *ledger.MemoryStore) {
	gin.SetMode(gin.TestMode)
	store := ledger.NewMemoryStore()
	h := NewHandler(nonces, store, Options{Secret: secret, TTL: time.Hour, StartingBalance: 5000})
	r := gin.New()
	r.GET("/auth/nonce", h.Nonce)
	r.POST("/auth/login", h.Login)
	r.GET("/me", func(c *gin.Context) {
		c.Set("address", c.Query("addr"))
	}, h.Me)
	return r, store
}

func getNonce(t *testing.T, r *gin.Engine) string {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/nonce", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, SignMessage(body["nonce"]), body["message"])
	return body["nonce"]
}

func login(r *gin.Engine, req LoginRequest) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(req)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(raw)))
	return w
}

func TestLogin_FlowWithRedisNonces(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r, store := setup(t, NewRedisNonceStore(rdb))

	nonce := getNonce(t, r)
	assert.True(t, mr.Exists(nonceKey(nonce)))

	addr, sig := personalSign(t, SignMessage(nonce))
	w := login(r, LoginRequest{Address: addr, Signature: sig, Nonce: nonce})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(body["jwt"], claims, func(*jwt.Token) (interface{}, error) { return secret, nil })
	require.NoError(t, err)
	assert.Equal(t, addr, claims["sub"])

	// 首次登录开户
	b, err := store.Balance(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b)

	// 重放同一个 nonce 🔥
	w = login(r, LoginRequest{Address: addr, Signature: sig, Nonce: nonce})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_Rejections(t *testing.T) {
	r, _ := setup(t, NewMemoryNonceStore())

	// 别人的签名
	nonce := getNonce(t, r)
	_, sig := personalSign(t, SignMessage(nonce))
	other, _ := personalSign(t, "whatever")
	w := login(r, LoginRequest{Address: other, Signature: sig, Nonce: nonce})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 签名格式错误不会 panic
	nonce = getNonce(t, r)
	w = login(r, LoginRequest{Address: other, Signature: "0x1234", Nonce: nonce})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 没领过的 nonce
	w = login(r, LoginRequest{Address: other, Signature: sig, Nonce: "deadbeef"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe(t *testing.T) {
	r, store := setup(t, NewMemoryNonceStore())
	ctx := context.Background()
	require.NoError(t, store.EnsureAccount(ctx, "0xA", 700))
	require.NoError(t, store.UpdatePlayerStats(ctx, "0xA", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?addr=0xA", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"address":"0xA","balance":700,"handsPlayed":1,"handsWon":1}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?addr=0xB", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemoryNonceStore_Expiry(t *testing.T) {
	s := NewMemoryNonceStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "n1", time.Hour))
	require.NoError(t, s.Put(ctx, "n2", -time.Second))

	ok, err := s.Consume(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.Consume(ctx, "n1")
	assert.False(t, ok, "只能用一次")
	ok, _ = s.Consume(ctx, "n2")
	assert.False(t, ok, "过期")
}

func TestRecoverAddress(t *testing.T) {
	addr, sig := personalSign(t, "hello")
	got, err := RecoverAddress("hello", sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = RecoverAddress("hello", "zz")
	assert.ErrorIs(t, err, ErrBadSignature)
}
