package sshx

import (
	"crypto/sha256"
	"encoding/base64"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/wp-autohealer/engine/internal/errkind"
)

// Fingerprint computes the base64 SHA-256 of a raw host key, bit-compatible
// with OpenSSH's "SHA256:" representation minus the prefix.
func Fingerprint(key ssh.PublicKey) string {
	sum := sha256.Sum256(key.Marshal())
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

// StrictHostKeyCallback builds an ssh.HostKeyCallback that enforces the
// documented strict verification policy: a stored fingerprint must match
// exactly; an absent fingerprint always fails (strict mode is always on
// at the core).
func StrictHostKeyCallback(expectedFingerprint string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return VerifyHostKey(expectedFingerprint, key)
	}
}

// VerifyHostKey is the concrete check used by the pool/executor when
// opening a transport; kept as a standalone function (rather than only a
// closure) so it is independently testable.
func VerifyHostKey(expectedFingerprint string, key ssh.PublicKey) error {
	actual := Fingerprint(key)
	if expectedFingerprint == "" {
		return errkind.HostKeyError("<none on record>", actual)
	}
	if actual != expectedFingerprint {
		return errkind.HostKeyError(expectedFingerprint, actual)
	}
	return nil
}
