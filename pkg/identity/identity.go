// Package identity computes the content-addressed identifiers used across
// the context store: NodeIDs for filesystem nodes and FrameIDs for frames.
//
// Every identifier is a SHA-256 digest over a domain-separated, length-prefixed
// encoding of its inputs. Identical inputs always produce identical bytes,
// so identifiers are stable across processes and machines.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the length in bytes of every identifier.
const Size = sha256.Size

// Domain prefixes for identifier hashing. The version suffix leaves room for
// a future algorithm migration without colliding with existing identifiers.
const (
	DomainNode  = "frames/node/v1"
	DomainFrame = "frames/frame/v1"
)

// Digest is a raw SHA-256 digest.
type Digest [Size]byte

// NodeID identifies a filesystem node by path, content and children.
type NodeID [Size]byte

// FrameID identifies a frame by owning node, agent, content and identity fields.
type FrameID [Size]byte

// HashContent returns the SHA-256 digest of raw content bytes.
func HashContent(content []byte) Digest {
	return sha256.Sum256(content)
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) MarshalText() ([]byte, error) { return marshalHex(d[:]) }

func (d *Digest) UnmarshalText(text []byte) error { return unmarshalHex("digest", text, d[:]) }

// ParseDigest decodes a hex encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	return d, d.UnmarshalText([]byte(s))
}

func (id NodeID) String() string { return hex.EncodeToString(id[:]) }

// Short returns the first 12 hex characters, for display.
func (id NodeID) Short() string { return id.String()[:12] }

// IsZero reports whether id is the all-zero identifier.
func (id NodeID) IsZero() bool { return id == NodeID{} }

func (id NodeID) MarshalText() ([]byte, error) { return marshalHex(id[:]) }

func (id *NodeID) UnmarshalText(text []byte) error { return unmarshalHex("node id", text, id[:]) }

// ParseNodeID decodes a hex encoded NodeID.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	return id, id.UnmarshalText([]byte(s))
}

func (id FrameID) String() string { return hex.EncodeToString(id[:]) }

// Short returns the first 12 hex characters, for display.
func (id FrameID) Short() string { return id.String()[:12] }

// IsZero reports whether id is the all-zero identifier.
func (id FrameID) IsZero() bool { return id == FrameID{} }

func (id FrameID) MarshalText() ([]byte, error) { return marshalHex(id[:]) }

func (id *FrameID) UnmarshalText(text []byte) error { return unmarshalHex("frame id", text, id[:]) }

// ParseFrameID decodes a hex encoded FrameID.
func ParseFrameID(s string) (FrameID, error) {
	var id FrameID
	return id, id.UnmarshalText([]byte(s))
}

func marshalHex(b []byte) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

func unmarshalHex(kind string, text []byte, dst []byte) error {
	if len(text) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("invalid %s %q: want %d hex characters", kind, text, hex.EncodedLen(len(dst)))
	}
	if _, err := hex.Decode(dst, text); err != nil {
		return fmt.Errorf("invalid %s %q: %w", kind, text, err)
	}
	return nil
}

// HashReader streams r into a SHA-256 digest.
func HashReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}
