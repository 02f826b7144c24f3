// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bureau-foundation/certasset/lib/codec"
)

// certificateDomain prefixes the signed message so a certificate
// signature can never be replayed as a signature over anything else.
const certificateDomain = "certasset.certificate"

// Certificate attests that a store published CertifiedData (the root
// digest of its certification tree) at Time.
type Certificate struct {
	CertifiedData []byte `cbor:"certified_data"`
	// Time is Unix nanoseconds.
	Time      int64  `cbor:"time"`
	Signature []byte `cbor:"signature"`
	PublicKey []byte `cbor:"public_key"`
}

// SignCertificate returns a certificate over root signed with key.
func SignCertificate(key ed25519.PrivateKey, root Digest, at time.Time) Certificate {
	certificate := Certificate{
		CertifiedData: root[:],
		Time:          at.UnixNano(),
		PublicKey:     key.Public().(ed25519.PublicKey),
	}
	certificate.Signature = ed25519.Sign(key, certificate.message())
	return certificate
}

func (c Certificate) message() []byte {
	message := make([]byte, 0, len(certificateDomain)+len(c.CertifiedData)+8)
	message = append(message, certificateDomain...)
	message = append(message, c.CertifiedData...)
	return binary.BigEndian.AppendUint64(message, uint64(c.Time))
}

// Verify checks the signature. When trusted is non-nil the embedded
// public key must equal it; otherwise the embedded key is used as is,
// which only proves the certificate was not altered after signing.
func (c Certificate) Verify(trusted ed25519.PublicKey) error {
	if len(c.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("certificate public key has wrong length: got %d bytes, want %d", len(c.PublicKey), ed25519.PublicKeySize)
	}
	if trusted != nil && !trusted.Equal(ed25519.PublicKey(c.PublicKey)) {
		return errors.New("certificate is signed by an untrusted key")
	}
	if !ed25519.Verify(ed25519.PublicKey(c.PublicKey), c.message(), c.Signature) {
		return errors.New("certificate signature is invalid")
	}
	return nil
}

// Root returns CertifiedData as a digest.
func (c Certificate) Root() (Digest, error) {
	var root Digest
	if len(c.CertifiedData) != len(root) {
		return root, fmt.Errorf("certified data is %d bytes, want %d", len(c.CertifiedData), len(root))
	}
	copy(root[:], c.CertifiedData)
	return root, nil
}

// EncodeCertificate returns the self-describing CBOR encoding.
func EncodeCertificate(certificate Certificate) ([]byte, error) {
	return codec.MarshalSelfDescribed(certificate)
}

// DecodeCertificate parses an encoded certificate.
func DecodeCertificate(data []byte) (Certificate, error) {
	var certificate Certificate
	if err := codec.UnmarshalSelfDescribed(data, &certificate); err != nil {
		return certificate, fmt.Errorf("decoding certificate: %w", err)
	}
	return certificate, nil
}

// ParsePublicKey decodes a hex-encoded Ed25519 public key, validating
// its length.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	keyBytes, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("hex-decoding public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has wrong length: got %d bytes, want %d", len(keyBytes), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(keyBytes), nil
}

// LoadOrCreateSigningKey reads an Ed25519 seed (hex) from path. If
// the file does not exist a new key is generated and its seed
// written with mode 0600.
func LoadOrCreateSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("hex-decoding signing key seed from %s: %w", path, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signing key seed in %s has wrong length: got %d bytes, want %d", path, len(seed), ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading signing key from %s: %w", path, err)
	}

	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Seed())+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing signing key to %s: %w", path, err)
	}
	return key, nil
}
