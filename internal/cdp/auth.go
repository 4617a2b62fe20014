package cdp

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 120 * time.Second

// apiSigner signs the per-request bearer token from the API key pair.
type apiSigner struct {
	keyID  string
	method jwt.SigningMethod
	key    any
}

func newAPISigner(keyID, secret string) (*apiSigner, error) {
	if keyID == "" || secret == "" {
		return nil, errors.New("API key id 与 secret 不能为空")
	}

	if block, _ := pem.Decode([]byte(secret)); block != nil {
		key, err := parseECKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("解析 EC API 私钥失败: %w", err)
		}
		return &apiSigner{keyID: keyID, method: jwt.SigningMethodES256, key: key}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, errors.New("API secret 既不是 PEM EC 私钥也不是 base64 Ed25519 私钥")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("Ed25519 私钥长度应为 %d 字节，实际 %d", ed25519.PrivateKeySize, len(raw))
	}
	return &apiSigner{keyID: keyID, method: jwt.SigningMethodEdDSA, key: ed25519.PrivateKey(raw)}, nil
}

type apiClaims struct {
	jwt.RegisteredClaims
	URIs []string `json:"uris"`
}

// sign issues a short lived token bound to "METHOD host/path".
func (s *apiSigner) sign(method, host, path string, now time.Time) (string, error) {
	claims := apiClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.keyID,
			Issuer:    "cdp",
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		URIs: []string{requestURI(method, host, path)},
	}
	token := jwt.NewWithClaims(s.method, claims)
	token.Header["kid"] = s.keyID
	token.Header["nonce"] = randomHex(16)
	return token.SignedString(s.key)
}

// walletSigner signs X-Wallet-Auth tokens with the wallet secret.
type walletSigner struct {
	key *ecdsa.PrivateKey
}

func newWalletSigner(secret string) (*walletSigner, error) {
	der, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("wallet secret 不是合法的 base64: %w", err)
	}
	key, err := parseECKey(der)
	if err != nil {
		return nil, fmt.Errorf("解析 wallet secret 失败: %w", err)
	}
	return &walletSigner{key: key}, nil
}

type walletClaims struct {
	jwt.RegisteredClaims
	URIs    []string `json:"uris"`
	ReqHash string   `json:"reqHash,omitempty"`
}

func (s *walletSigner) sign(method, host, path string, body []byte, now time.Time) (string, error) {
	hash, err := requestHash(body)
	if err != nil {
		return "", err
	}
	claims := walletClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		URIs:    []string{requestURI(method, host, path)},
		ReqHash: hash,
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.key)
}

// requestHash hashes the body re-encoded with sorted keys so the server can
// reproduce it independently of field order.
func requestHash(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("请求体不是合法 JSON: %w", err)
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func requestURI(method, host, path string) string {
	return strings.ToUpper(method) + " " + host + path
}

func parseECKey(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("私钥不是 ECDSA 类型")
	}
	return key, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(buf)
}
