// Package keys defines item types and the internal key layout used once
// memtable entries are flushed to a table:
//
//	userKey | fixed64LE(seq<<8 | type)
//
// Internal keys sort by user key ascending, then by sequence descending, so
// the newest version of a key is met first.
package keys

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

type ItemType uint8

const (
	TypeValue    ItemType = 0
	TypeDeletion ItemType = 1
)

func (t ItemType) String() string {
	switch t {
	case TypeValue:
		return "value"
	case TypeDeletion:
		return "deletion"
	default:
		return "unknown"
	}
}

const (
	// MaxSequence is the largest sequence that fits next to the type byte.
	MaxSequence uint64 = 1<<56 - 1

	TrailerLen = 8
)

var ErrInvalidInternalKey = errors.New("keys: invalid internal key")

// MakeInternalKey appends the trailer for seq and typ to a copy of userKey.
func MakeInternalKey(userKey []byte, seq uint64, typ ItemType) []byte {
	ikey := make([]byte, len(userKey)+TrailerLen)
	copy(ikey, userKey)
	binary.LittleEndian.PutUint64(ikey[len(userKey):], seq<<8|uint64(typ))
	return ikey
}

// ParseInternalKey splits an internal key. The returned user key aliases ikey.
func ParseInternalKey(ikey []byte) (userKey []byte, seq uint64, typ ItemType, err error) {
	if len(ikey) < TrailerLen {
		return nil, 0, 0, errors.Wrapf(ErrInvalidInternalKey, "length %d", len(ikey))
	}
	n := len(ikey) - TrailerLen
	trailer := binary.LittleEndian.Uint64(ikey[n:])
	typ = ItemType(trailer & 0xff)
	if typ > TypeDeletion {
		return nil, 0, 0, errors.Wrapf(ErrInvalidInternalKey, "type %d", typ)
	}
	return ikey[:n], trailer >> 8, typ, nil
}

// UserKey strips the trailer. Keys shorter than a trailer are returned as is.
func UserKey(ikey []byte) []byte {
	if len(ikey) < TrailerLen {
		return ikey
	}
	return ikey[:len(ikey)-TrailerLen]
}

func trailer(ikey []byte) uint64 {
	if len(ikey) < TrailerLen {
		return 0
	}
	return binary.LittleEndian.Uint64(ikey[len(ikey)-TrailerLen:])
}

// CompareInternal orders by user key, then by trailer descending.
func CompareInternal(a, b []byte) int {
	if c := bytes.Compare(UserKey(a), UserKey(b)); c != 0 {
		return c
	}
	ta, tb := trailer(a), trailer(b)
	switch {
	case ta > tb:
		return -1
	case ta < tb:
		return 1
	default:
		return 0
	}
}

// SeekKey is the smallest internal key for userKey, positioning a seek at its
// newest version.
func SeekKey(userKey []byte) []byte {
	return MakeInternalKey(userKey, MaxSequence, TypeDeletion)
}
