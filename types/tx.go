package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/proofchain/proofapi/cell"
)

// AddressSize is the byte width of an account address.
const AddressSize = 32

// Address identifies an account within a network.
type Address [AddressSize]byte

func (a Address) String() string { return "0:" + hex.EncodeToString(a[:]) }

// ParseAddress accepts either a bare 64-character hex string or the
// workchain-prefixed "0:<hex>" form.
func ParseAddress(s string) (Address, error) {
	var a Address
	if i := strings.IndexByte(s, ':'); i >= 0 {
		if _, err := strconv.ParseInt(s[:i], 10, 8); err != nil {
			return a, fmt.Errorf("invalid address workchain: %q", s[:i])
		}
		s = s[i+1:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != AddressSize {
		return a, fmt.Errorf("invalid address: %q", s)
	}
	copy(a[:], raw)
	return a, nil
}

// TransactionDescriptor identifies one transaction for a proof request. The
// hash is optional for the single-network variant and mandatory for the
// cross-ecosystem variant, where (address, lt) alone is not unique.
type TransactionDescriptor struct {
	Address     Address
	LogicalTime uint64
	TxHash      *cell.Hash
}

func (d TransactionDescriptor) String() string {
	if d.TxHash != nil {
		return fmt.Sprintf("%s@%d#%s", d.Address, d.LogicalTime, d.TxHash)
	}
	return fmt.Sprintf("%s@%d", d.Address, d.LogicalTime)
}

// Fingerprint is the deterministic cache key of a proof build.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:8]) }

// BuildFingerprint derives the cache key from the network id and the
// transaction descriptor.
func BuildFingerprint(networkID uint32, d TransactionDescriptor) Fingerprint {
	h := sha256.New()
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[:4], networkID)
	binary.BigEndian.PutUint64(buf[4:], d.LogicalTime)
	h.Write(buf[:])
	h.Write(d.Address[:])
	if d.TxHash != nil {
		h.Write(d.TxHash[:])
	}
	var f Fingerprint
	h.Sum(f[:0])
	return f
}
