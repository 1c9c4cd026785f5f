package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CardRoom/internal/ledger"
	"CardRoom/internal/utils"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var ErrBadSignature = errors.New("bad signature")

type LoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

type Options struct {
	Secret          []byte
	TTL             time.Duration
	StartingBalance int64 // 首次登录开户的初始余额
}

type Handler struct {
	nonces   NonceStore
	accounts ledger.Store
	opts     Options
}

// 工厂方法：创建 handler
func NewHandler(nonces NonceStore, accounts ledger.Store, opts Options) *Handler {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Handler{nonces: nonces, accounts: accounts, opts: opts}
}

// SignMessage 钱包需要签名的原文
func SignMessage(nonce string) string {
	return "Sign this message to authenticate with CardRoom. Nonce: " + nonce
}

// RecoverAddress 按 MetaMask personal_sign 的规则从签名恢复地址
func RecoverAddress(msg, signature string) (string, error) {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	hash := crypto.Keccak256Hash([]byte(prefix))

	sig := strings.TrimPrefix(signature, "0x")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil || len(sigBytes) != 65 {
		return "", ErrBadSignature
	}
	// 修正 V 值
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}
	pubKey, err := crypto.SigToPub(hash.Bytes(), sigBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// IssueToken 签发 HS256 JWT，sub 为钱包地址
func IssueToken(secret []byte, address string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": address,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	// 检查 nonce 是否有效，只允许一次
	ok, err := h.nonces.Consume(c.Request.Context(), req.Nonce)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "nonce store unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nonce"})
		return
	}

	recovered, err := RecoverAddress(SignMessage(req.Nonce), req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verify failed"})
		return
	}
	if !strings.EqualFold(recovered, req.Address) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature mismatch"})
		return
	}

	// 首次登录开户，已有账号不改余额
	if err := h.accounts.EnsureAccount(c.Request.Context(), recovered, h.opts.StartingBalance); err != nil {
		utils.Log.Error("ensure account failed", "address", recovered, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account unavailable"})
		return
	}

	// -----------------------------
	// ✓ 签名验证成功 → 生成 JWT
	// -----------------------------
	jwtStr, err := IssueToken(h.opts.Secret, recovered, h.opts.TTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt generation failed"})
		return
	}
	utils.Log.Info("login", "address", recovered)

	c.JSON(http.StatusOK, gin.H{
		"jwt":     jwtStr,
		"address": recovered,
	})
}

// GET /me 当前账号余额与战绩
func (h *Handler) Me(c *gin.Context) {
	addr := c.GetString("address")
	ctx := c.Request.Context()
	balance, err := h.accounts.Balance(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
		return
	}
	stats, err := h.accounts.Stats(ctx, addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":     addr,
		"balance":     balance,
		"handsPlayed": stats.HandsPlayed,
		"handsWon":    stats.HandsWon,
	})
}
