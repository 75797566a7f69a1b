package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// DefaultHashSalt is used when no salt is configured. Deployments should
// override it so identifiers are not comparable across sites.
const DefaultHashSalt = "ICT302HIVEMETRICS"

// DeviceHasher turns hardware addresses into stable opaque identifiers.
// Raw addresses are never persisted.
type DeviceHasher struct {
	salt string
}

// NewDeviceHasher returns a hasher using salt, or DefaultHashSalt when empty.
func NewDeviceHasher(salt string) DeviceHasher {
	if salt == "" {
		salt = DefaultHashSalt
	}
	return DeviceHasher{salt: salt}
}

// Hash returns hex(sha256(salt + address)). Addresses that parse as MACs
// are canonicalised to upper-case colon form first, so "aa-bb-.." and
// "AA:BB:.." hash identically.
func (h DeviceHasher) Hash(addr string) string {
	sum := sha256.Sum256([]byte(h.salt + NormalizeAddress(addr)))
	return hex.EncodeToString(sum[:])
}

// NormalizeAddress canonicalises a hardware address. Strings that are not
// MACs are trimmed and returned unchanged.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if hw, err := net.ParseMAC(addr); err == nil {
		return strings.ToUpper(hw.String())
	}
	return addr
}
