// Package auth handles SSH public key authentication and the server host key.
package auth

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
)

// ErrAllowlistNotFound is returned when the allowlist file doesn't exist.
var ErrAllowlistNotFound = errors.New("allowlist file not found")

// Allowlist is a set of public keys in authorized_keys format.
type Allowlist struct {
	keys    [][]byte
	skipped int
}

// LoadAllowlist reads an OpenSSH authorized_keys file. Blank lines and
// comments are ignored; unparseable lines are counted in Skipped.
func LoadAllowlist(path string) (*Allowlist, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAllowlistNotFound
		}
		return nil, fmt.Errorf("opening allowlist: %w", err)
	}
	defer file.Close()

	a := &Allowlist{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			a.skipped++
			continue
		}
		a.keys = append(a.keys, key.Marshal())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading allowlist: %w", err)
	}
	return a, nil
}

// Len returns the number of accepted keys.
func (a *Allowlist) Len() int { return len(a.keys) }

// Skipped returns the number of lines that were not valid keys.
func (a *Allowlist) Skipped() int { return a.skipped }

// Allows reports whether key is in the allowlist.
func (a *Allowlist) Allows(key ssh.PublicKey) bool {
	if a == nil || key == nil {
		return false
	}
	raw := key.Marshal()
	for _, allowed := range a.keys {
		if bytes.Equal(raw, allowed) {
			return true
		}
	}
	return false
}

// Handler returns a public key callback that logs rejected fingerprints.
// A nil allowlist accepts every key.
func (a *Allowlist) Handler(logger *log.Logger) func(user string, key ssh.PublicKey) bool {
	return func(user string, key ssh.PublicKey) bool {
		if a == nil {
			return true
		}
		if a.Allows(key) {
			return true
		}
		logger.Warn("rejected key", "user", user, "fingerprint", ssh.FingerprintSHA256(key))
		return false
	}
}

// CreateEmptyAllowlist writes an allowlist holding only instructions.
func CreateEmptyAllowlist(path string) error {
	content := `# Cart terminal SSH allowlist
# One public key per line, OpenSSH authorized_keys format:
# ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIExample... user@host
`
	return os.WriteFile(path, []byte(content), 0o644)
}
