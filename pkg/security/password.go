package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
)

const (
	schemeArgon2id     = "argon2id"
	schemePBKDF2SHA256 = "pbkdf2_sha256"
	argonVersion       = argon2.Version
)

// ErrInvalidHash signals a stored password hash that cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash")

// ErrUnsupportedScheme is returned for hashes from algorithms we never verify.
var ErrUnsupportedScheme = errors.New("unsupported password hash scheme")

// ArgonParams captures the Argon2id parameters embedded into each hash string.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// HashPassword returns a PHC-formatted Argon2id hash for password.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	params := paramsFromConfig(cfg)
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Parallelism, params.KeyLen)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		schemeArgon2id, argonVersion,
		params.Memory, params.Time, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encoded. Argon2id hashes
// and accounts imported with pbkdf2_sha256 hashes are both accepted.
func VerifyPassword(password, encoded string) (bool, error) {
	switch schemeOf(encoded) {
	case schemeArgon2id:
		params, salt, want, err := decodeArgon(encoded)
		if err != nil {
			return false, err
		}
		got := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Parallelism, params.KeyLen)
		return subtle.ConstantTimeCompare(want, got) == 1, nil
	case schemePBKDF2SHA256:
		iterations, salt, want, err := decodePBKDF2(encoded)
		if err != nil {
			return false, err
		}
		got := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(want), sha256.New)
		return subtle.ConstantTimeCompare(want, got) == 1, nil
	case "":
		return false, ErrInvalidHash
	default:
		return false, ErrUnsupportedScheme
	}
}

// NeedsRehash reports whether a verified hash should be replaced with one
// produced by HashPassword under cfg.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	if schemeOf(encoded) != schemeArgon2id {
		return true
	}
	params, _, _, err := decodeArgon(encoded)
	if err != nil {
		return true
	}
	want := paramsFromConfig(cfg)
	return params.Memory != want.Memory ||
		params.Time != want.Time ||
		params.Parallelism != want.Parallelism ||
		params.KeyLen != want.KeyLen
}

func schemeOf(encoded string) string {
	if rest, ok := strings.CutPrefix(encoded, "$"); ok {
		scheme, _, _ := strings.Cut(rest, "$")
		if scheme == schemeArgon2id {
			return scheme
		}
		return ""
	}
	scheme, _, ok := strings.Cut(encoded, "$")
	if !ok {
		return ""
	}
	return scheme
}

func paramsFromConfig(cfg config.PasswordConfig) ArgonParams {
	return ArgonParams{
		Memory:      clamp(cfg.ArgonMemoryKB, 8, 512*1024),
		Time:        clamp(cfg.ArgonTime, 1, 10),
		Parallelism: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		SaltLen:     clamp(cfg.ArgonSaltLen, 8, 64),
		KeyLen:      clamp(cfg.ArgonKeyLen, 16, 64),
	}
}

// decodeArgon parses $argon2id$v=19$m=..,t=..,p=..$salt$key.
func decodeArgon(encoded string) (ArgonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != schemeArgon2id {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argonVersion) {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}

	var params ArgonParams
	for _, field := range strings.Split(parts[3], ",") {
		name, raw, ok := strings.Cut(field, "=")
		if !ok {
			return ArgonParams{}, nil, nil, ErrInvalidHash
		}
		bits := 32
		if name == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil {
			return ArgonParams{}, nil, nil, ErrInvalidHash
		}
		switch name {
		case "m":
			params.Memory = uint32(v)
		case "t":
			params.Time = uint32(v)
		case "p":
			params.Parallelism = uint8(v)
		default:
			return ArgonParams{}, nil, nil, ErrInvalidHash
		}
	}
	if params.Time == 0 || params.Memory == 0 || params.Parallelism == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}

// decodePBKDF2 parses pbkdf2_sha256$<iterations>$<salt>$<base64 key>.
func decodePBKDF2(encoded string) (int, string, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != schemePBKDF2SHA256 {
		return 0, "", nil, ErrInvalidHash
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 || parts[2] == "" {
		return 0, "", nil, ErrInvalidHash
	}
	key, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, "", nil, ErrInvalidHash
	}
	return iterations, parts[2], key, nil
}

func clamp(value, lo, hi int) uint32 {
	if value < lo {
		value = lo
	}
	if value > hi {
		value = hi
	}
	return uint32(value)
}
