package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Bytes 计算内存数据的 SHA-256 十六进制摘要，用于注册表文件指纹。
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// File 读取文件并计算 SHA-256，同时返回文件大小。
// 输出文件写完后用它回读确认落盘内容。
func File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
