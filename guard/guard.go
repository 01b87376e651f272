// Package guard holds the small safety checks applied to operator-supplied
// input before it touches the filesystem or the network: usernames become
// directory names, and downloaded bodies are bounded.
package guard

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxArtifactBytes caps a single downloaded recording (64 MiB).
const MaxArtifactBytes int64 = 64 << 20

// MaxImageBytes caps a CAPTCHA image download (4 MiB).
const MaxImageBytes int64 = 4 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("guard: path traversal detected")

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if userInput == "" || strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// LimitedReadAll reads at most maxBytes from r and fails if there is more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("guard: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}
