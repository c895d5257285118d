package internal

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCachePath 基于语料路径生成默认的 SQLite 向量缓存路径：
// ~/.corep/data/<语料名>-<hash>.db。不同语料互不干扰。
func DefaultCachePath(corpusPath string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(corpusPath)
	if err != nil {
		absPath = corpusPath
	}

	dataDir := filepath.Join(homeDir, ".corep", "data")
	base := strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	hash := sha1.Sum([]byte(absPath))
	suffix := hex.EncodeToString(hash[:])[:12]
	filename := fmt.Sprintf("%s-%s.db", sanitizeName(base), suffix)
	return filepath.Join(dataDir, filename), nil
}

// sanitizeName 将名称中的危险字符替换为下划线。
// 用于生成文件系统友好的标识符。
func sanitizeName(name string) string {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "corpus"
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	if b.Len() == 0 {
		return "corpus"
	}
	return b.String()
}
