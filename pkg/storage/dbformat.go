package storage

import (
	"bytes"
	"encoding/binary"
)

// Comparator defines a total ordering over the []byte key space.
type Comparator interface {
	// Compare returns -1, 0, 1 if a is less than, equal to or greater than b respectively.
	// empty slice is assumed to be less than any non-empty slice.
	Compare(a, b []byte) int

	// Name returns the name of the comparator
	//
	// The data is stored in the sorted order determined by a comparator.
	// Hence opening a database with a different comparator than the one it was
	// created with will cause an error
	Name() string
}

// DefaultComparator is the default comparator which uses byte wise ordering.
var DefaultComparator Comparator = defaultComparator{}

type defaultComparator struct{}

func (d defaultComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (d defaultComparator) Name() string {
	return "BytewiseComparator"
}

// KeyKind defines the kind of operation an internal key carries.
type KeyKind uint8

const (
	// These are part of the file format and stored on the disk. Don't change.
	KeyKindDelete KeyKind = 0
	KeyKindSet    KeyKind = 1

	// keyKindSeek is the kind byte of the sentinel "maximum internal key
	// for a user key". Together with maxSequenceNumber it packs to an
	// all-ones footer.
	keyKindSeek KeyKind = 0xff
)

const (
	footerSize = 8

	// maxSequenceNumber is the largest sequence number that fits in the
	// 56-bit segment of the footer.
	maxSequenceNumber uint64 = (1 << 56) - 1

	// maxInternalFooter is the footer of the sentinel maximum internal key.
	maxInternalFooter uint64 = ^uint64(0)
)

// InternalKey is the key used for table files in the db.
//
// It consists of the user key along with an 8 byte footer.
// The footer packs a 7 byte sequence number and a 1 byte kind:
//    footer = sequenceNumber << 8 | kind
// For a given user key, keys with a larger footer sort first. So newer
// sequence numbers come before older ones.
type InternalKey []byte

// packSequenceAndKind packs a sequence number and a kind into a footer.
func packSequenceAndKind(seq uint64, kind KeyKind) uint64 {
	return seq<<8 | uint64(kind)
}

// NewInternalKey generates an InternalKey from a userKey, sequence number and kind.
func NewInternalKey(userKey []byte, seq uint64, kind KeyKind) InternalKey {
	ik := make(InternalKey, 0, len(userKey)+footerSize)
	ik = append(ik, userKey...)
	var footer [footerSize]byte
	binary.BigEndian.PutUint64(footer[:], packSequenceAndKind(seq, kind))
	return append(ik, footer[:]...)
}

// NewMaxInternalKey returns the sentinel maximum internal key for the user key.
// It sorts before every real key of the same user key.
func NewMaxInternalKey(userKey []byte) InternalKey {
	return NewInternalKey(userKey, maxSequenceNumber, keyKindSeek)
}

// UserKey extracts the user key part of the internal key.
// The returned slice aliases ik.
func (ik InternalKey) UserKey() []byte {
	return ik[:len(ik)-footerSize]
}

// Footer returns the packed sequence number and kind.
func (ik InternalKey) Footer() uint64 {
	return binary.BigEndian.Uint64(ik[len(ik)-footerSize:])
}

// SequenceNumber returns the sequence number of the internal key.
func (ik InternalKey) SequenceNumber() uint64 {
	return ik.Footer() >> 8
}

// Kind extracts the key kind from an internal key.
func (ik InternalKey) Kind() KeyKind {
	return KeyKind(ik.Footer() & 0xff)
}

// Valid returns if the internal key is valid structurally.
func (ik InternalKey) Valid() bool {
	return len(ik) >= footerSize
}

// Clone returns a copy of the internal key that doesn't share storage with ik.
func (ik InternalKey) Clone() InternalKey {
	if ik == nil {
		return nil
	}
	return append(InternalKey(nil), ik...)
}

// withFooter returns a copy of ik with its footer replaced.
func (ik InternalKey) withFooter(footer uint64) InternalKey {
	nk := ik.Clone()
	binary.BigEndian.PutUint64(nk[len(nk)-footerSize:], footer)
	return nk
}

// internalKeyComparator compares internal keys.
//
// Keys are first compared for their user key according to the user key comparator.
// Ties are broken by comparing the footer in decreasing order, so for the same
// user key a higher sequence number sorts first.
type internalKeyComparator struct {
	userKeyComparator Comparator
}

func (ic *internalKeyComparator) Compare(a, b []byte) int {
	ia, ib := InternalKey(a), InternalKey(b)
	if c := ic.userKeyComparator.Compare(ia.UserKey(), ib.UserKey()); c != 0 {
		return c
	}
	af, bf := ia.Footer(), ib.Footer()
	if af > bf {
		return -1
	} else if af < bf {
		return 1
	}
	return 0
}

func (ic *internalKeyComparator) Name() string {
	return "InternalKeyComparator"
}

func (ic *internalKeyComparator) userComparator() Comparator {
	return ic.userKeyComparator
}

// newInternalKeyComparator creates a new instance of an internalKeyComparator
// wrapping the given user key comparator.
func newInternalKeyComparator(userKeyComparator Comparator) *internalKeyComparator {
	return &internalKeyComparator{
		userKeyComparator: userKeyComparator,
	}
}
