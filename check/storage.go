package check

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage writes, reads back and removes a probe file in dir.
func Storage(dir string) Check {
	return Func(func(ctx context.Context) error {
		path := filepath.Join(dir, "healthguard-"+uuid.NewString()+".txt")
		content := []byte("this is a healthguard storage probe\n")

		if err := os.WriteFile(path, content, 0o600); err != nil {
			return fmt.Errorf("unable to write file: %w", err)
		}
		defer os.Remove(path)

		got, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to read file: %w", err)
		}
		if !bytes.Equal(got, content) {
			return fmt.Errorf("file content does not match")
		}

		if err := os.Remove(path); err != nil {
			return fmt.Errorf("unable to delete file: %w", err)
		}

		return nil
	})
}
