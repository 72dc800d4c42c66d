package services

import (
	"encoding/hex"
	"path/filepath"

	"lukechampine.com/blake3"
)

// UserCacheDir is the directory holding userID's plaintext under cacheDir.
// The user ID is hashed so it never appears on disk.
func UserCacheDir(cacheDir, userID string) string {
	sum := blake3.Sum256([]byte(userID))
	return filepath.Join(cacheDir, hex.EncodeToString(sum[:16]))
}

func digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
