package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Algorithm = "argon2id"

	minArgon2Memory  uint32 = 8 * 1024
	minArgon2Time    uint32 = 1
	minArgon2Threads uint8  = 1
	minSaltLength    uint32 = 16
	minKeyLength     uint32 = 16
)

var ErrInvalidHash = errors.New("invalid password hash")

// Argon2Params are encoded into every digest, so changing them only affects
// newly hashed passwords. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32 `yaml:"memory"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type Hasher struct {
	params Argon2Params
}

func NewHasher(params Argon2Params) (*Hasher, error) {
	if params.Memory < minArgon2Memory {
		return nil, fmt.Errorf("argon2 memory must be at least %d KiB", minArgon2Memory)
	}
	if params.Time < minArgon2Time {
		return nil, fmt.Errorf("argon2 time must be at least %d", minArgon2Time)
	}
	if params.Parallelism < minArgon2Threads {
		return nil, fmt.Errorf("argon2 parallelism must be at least %d", minArgon2Threads)
	}
	if params.SaltLength < minSaltLength {
		return nil, fmt.Errorf("argon2 salt length must be at least %d", minSaltLength)
	}
	if params.KeyLength < minKeyLength {
		return nil, fmt.Errorf("argon2 key length must be at least %d", minKeyLength)
	}
	return &Hasher{params: params}, nil
}

// Hash returns a PHC-encoded argon2id digest of password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Algorithm,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest. A malformed digest is an
// error, a mismatch is not.
func (h *Hasher) Verify(digest, password string) (bool, error) {
	parsed, err := parseDigest(digest)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// NeedsRehash reports whether digest was produced with weaker parameters than
// the hasher's current ones.
func (h *Hasher) NeedsRehash(digest string) bool {
	parsed, err := parseDigest(digest)
	if err != nil {
		return true
	}
	return parsed.memory < h.params.Memory ||
		parsed.time < h.params.Time ||
		parsed.parallelism < h.params.Parallelism ||
		uint32(len(parsed.key)) != h.params.KeyLength
}

type parsedDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseDigest(digest string) (*parsedDigest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2Algorithm {
		return nil, ErrInvalidHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, ErrInvalidHash
	}

	var out parsedDigest
	for _, kv := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, ErrInvalidHash
		}
		switch key {
		case "m":
			out.memory = uint32(n)
		case "t":
			out.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, ErrInvalidHash
			}
			out.parallelism = uint8(n)
		default:
			return nil, ErrInvalidHash
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return nil, ErrInvalidHash
	}

	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) == 0 {
		return nil, ErrInvalidHash
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.key) == 0 {
		return nil, ErrInvalidHash
	}

	return &out, nil
}
