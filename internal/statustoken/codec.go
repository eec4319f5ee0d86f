package statustoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// 会员状态令牌编解码。
// 令牌 = base64url(payload) + "." + base64url(HMAC-SHA256(secret, payload) 截断)。
// 服务端只保存当前有效令牌的哈希，重置 token_version 即可让全部历史令牌失效。

const (
	markerV1     byte = 0x01
	payloadLenV1      = 1 + 16 + 4
	macLenV1          = 16

	legacyPrefix = "m1|"
)

// ErrTokenInvalid 令牌格式或签名不合法
var ErrTokenInvalid = errors.New("status token invalid")

// Claims 令牌载荷
type Claims struct {
	UserPublicID uuid.UUID
	TokenVersion uint32
}

// Codec 状态令牌编解码器
type Codec struct {
	secret     []byte
	strategies []strategy
}

// New 创建编解码器
// 校验顺序：紧凑二进制格式优先，旧文本格式仅用于兼容校验，签发一律用新格式。
func New(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		strategies: []strategy{
			binaryStrategy{},
			legacyStrategy{},
		},
	}
}

// Issue 签发指定用户与版本的令牌（新格式）
func (c *Codec) Issue(publicID uuid.UUID, version uint32) string {
	payload := make([]byte, payloadLenV1)
	payload[0] = markerV1
	copy(payload[1:17], publicID[:])
	binary.BigEndian.PutUint32(payload[17:21], version)

	sig := c.sign(payload)[:macLenV1]
	return base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString(sig)
}

// Verify 校验令牌并返回载荷
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return nil, ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenInvalid
	}

	mac := c.sign(payload)
	for _, s := range c.strategies {
		claims, ok := s.decodePayload(payload)
		if !ok {
			continue
		}
		expected := mac[:s.macSize()]
		if !hmac.Equal(sig, expected) {
			return nil, ErrTokenInvalid
		}
		return claims, nil
	}
	return nil, ErrTokenInvalid
}

func (c *Codec) sign(payload []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(payload)
	return h.Sum(nil)
}

// Hash 计算令牌存储哈希（SHA-256 十六进制）
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type strategy interface {
	decodePayload(payload []byte) (*Claims, bool)
	macSize() int
}

// binaryStrategy 紧凑二进制载荷：marker(1) + user uuid(16) + version(4, 大端)
type binaryStrategy struct{}

func (binaryStrategy) decodePayload(payload []byte) (*Claims, bool) {
	if len(payload) != payloadLenV1 || payload[0] != markerV1 {
		return nil, false
	}
	var id uuid.UUID
	copy(id[:], payload[1:17])
	return &Claims{
		UserPublicID: id,
		TokenVersion: binary.BigEndian.Uint32(payload[17:21]),
	}, true
}

func (binaryStrategy) macSize() int {
	return macLenV1
}

// legacyStrategy 旧文本载荷："m1|<uuid>|<version>"，完整 32 字节 MAC，仅用于校验。
type legacyStrategy struct{}

func (legacyStrategy) decodePayload(payload []byte) (*Claims, bool) {
	text := string(payload)
	if !strings.HasPrefix(text, legacyPrefix) {
		return nil, false
	}
	parts := strings.Split(text, "|")
	if len(parts) != 3 {
		return nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, false
	}
	version, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return nil, false
	}
	return &Claims{
		UserPublicID: id,
		TokenVersion: uint32(version),
	}, true
}

func (legacyStrategy) macSize() int {
	return sha256.Size
}

// IssueLegacy 按旧文本格式签发令牌
// 仅供兼容性测试与灰度期数据校验，业务代码不应调用。
func (c *Codec) IssueLegacy(publicID uuid.UUID, version uint32) string {
	payload := []byte(legacyPrefix + publicID.String() + "|" + strconv.FormatUint(uint64(version), 10))
	sig := c.sign(payload)
	return base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString(sig)
}
