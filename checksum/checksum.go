// Package checksum computes MD5 content digests and reads and writes them as
// md5sum-style sidecar files ("<hex>  <path>").
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Suffix is appended to a file's path to name its checksum sidecar.
const Suffix = ".md5"

// Reader returns the hex MD5 digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the hex MD5 digest of the file at path.
func File(ctx context.Context, path string) (digest string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return "", errors.E(err, "checksum: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	digest, err = Reader(in.Reader(ctx))
	if err != nil {
		return "", errors.E(err, "checksum: read", path)
	}
	return digest, nil
}

// Line formats a digest the way md5sum does.
func Line(digest, path string) string {
	return fmt.Sprintf("%s  %s\n", digest, path)
}

// WriteSidecar computes the digest of path and writes it to path+Suffix.
func WriteSidecar(ctx context.Context, path string) (string, error) {
	digest, err := File(ctx, path)
	if err != nil {
		return "", err
	}
	if err := file.WriteFile(ctx, path+Suffix, []byte(Line(digest, path))); err != nil {
		return "", errors.E(err, "checksum: write sidecar for", path)
	}
	return digest, nil
}

// ReadSidecar returns the digest recorded in path+Suffix. Both the md5sum
// format and the BSD format ("MD5 (path) = hex") are accepted.
func ReadSidecar(ctx context.Context, path string) (string, error) {
	data, err := file.ReadFile(ctx, path+Suffix)
	if err != nil {
		return "", err
	}
	return Parse(string(data))
}

// Parse extracts the digest from the first line of a sidecar file.
func Parse(s string) (string, error) {
	line := strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	var digest string
	switch {
	case strings.HasPrefix(line, "MD5 ("):
		i := strings.LastIndex(line, "= ")
		if i < 0 {
			return "", errors.E(errors.Invalid, "checksum: malformed sidecar line", line)
		}
		digest = strings.TrimSpace(line[i+2:])
	default:
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return "", errors.E(errors.Invalid, "checksum: empty sidecar")
		}
		digest = fields[0]
	}
	if _, err := hex.DecodeString(digest); err != nil || len(digest) != 2*md5.Size {
		return "", errors.E(errors.Invalid, "checksum: not an md5 digest:", digest)
	}
	return strings.ToLower(digest), nil
}
