package report

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/wfunc/bms-stand/internal/errors"
)

const hashChunkSize = 8192

// HashFile 分块读取文件计算 SHA-256
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrFileRead, path)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, errors.ErrFileRead, path)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
