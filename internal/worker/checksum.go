package worker

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyExecutable resolves command on PATH and checks it against the expected
// BLAKE3 digest.
func VerifyExecutable(command, expectedHash string) error {
	path, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("resolve worker executable: %w", err)
	}

	actual, err := ComputeBlake3Hash(path)
	if err != nil {
		return fmt.Errorf("hash worker executable: %w", err)
	}
	if !strings.EqualFold(actual, strings.TrimSpace(expectedHash)) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expectedHash, actual)
	}
	return nil
}
