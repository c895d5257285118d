package internal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/DreamCats/corep/internal/config"
)

// LoadEnv 读取当前目录下的 .env 文件（若存在），不覆盖已有环境变量。
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadConfig 从指定路径读取并解析 YAML 配置文件。
// 路径为空时使用默认位置 ~/.corep/config/corep.yaml。
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// ConfigPath 返回实际使用的配置文件路径
func ConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return config.ExpandPath(configPath), nil
	}
	return config.DefaultPath()
}

// PrintConfigExample 向 w 打印一份最小配置示例。
func PrintConfigExample(w io.Writer) {
	path, _ := config.DefaultPath()

	fmt.Fprintf(w, `Create a configuration file at %s (or run 'corep init'):

corpus:
  path: ./data/regulatory_corpus.json

embedding:
  # "gemini", "openai" or "none" for keyword retrieval only
  provider: gemini
  # api_key: your-gemini-api-key     # or GEMINI_API_KEY / GOOGLE_API_KEY, also read from .env

analyzer:
  model: gemini-2.5-flash
  template_path: ./data/template_c0100.json

Usage:
  1. Create the config file
  2. Build the vector cache: corep cache rebuild
  3. Search: corep retrieve "goodwill deduction from CET1"
  4. Populate: corep populate --scenario bank.json "Calculate own funds"
`, path)
}
