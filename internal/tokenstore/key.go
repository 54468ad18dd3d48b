package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/crypto"
)

const (
	EnvEncryptionKey = "TOKEN_ENCRYPTION_KEY"

	defaultKeyFileName = ".campusadmin-token-key"
)

// resolveEncryptionKey returns the base64 key sealing the durable scope.
// Config wins over the environment, the environment over the key file. A
// missing key file is created with a fresh key, readable by the owner only.
func resolveEncryptionKey(cfg Config) (string, error) {
	for _, key := range []string{cfg.EncryptionKey, os.Getenv(EnvEncryptionKey)} {
		if key != "" {
			return key, nil
		}
	}

	path := keyFilePath(cfg.KeyFilePath)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %s is empty", path)
		}
		return key, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write key file %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("Generated token encryption key")
	return key, nil
}

// keyFilePath defaults to a dot file in the user's home directory, or the
// working directory when there is no home.
func keyFilePath(custom string) string {
	if custom != "" {
		return custom
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, defaultKeyFileName)
	}
	return defaultKeyFileName
}
