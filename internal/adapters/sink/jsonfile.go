package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/platform/hash"
)

// AllFile 是汇总文件名。
const AllFile = "all.json"

// ChainNamer 把链 ID 映射为输出文件名。
type ChainNamer interface {
	ChainName(id model.ChainID) string
}

// JSONWriter 把可信列表写到目录：每条链一个文件，外加 all.json。
type JSONWriter struct {
	Dir   string
	Names ChainNamer
}

func NewJSONWriter(dir string, names ChainNamer) *JSONWriter {
	return &JSONWriter{Dir: dir, Names: names}
}

// Write 覆盖写出所有文件并返回文件清单（含 SHA-256）。
// 每个文件先写临时文件再 rename，读者不会看到写了一半的内容。
func (w *JSONWriter) Write(ctx context.Context, trusted model.Merged) ([]model.OutputFile, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	chains := trusted.ChainIDs()
	// 先检查文件名冲突，避免某条链的文件被汇总文件或其他链覆盖。
	owner := map[string]model.ChainID{AllFile: ""}
	for _, chain := range chains {
		name := w.fileName(chain)
		if other, ok := owner[name]; ok {
			if other == "" {
				return nil, fmt.Errorf("chain %s: file name %s is reserved", chain, name)
			}
			return nil, fmt.Errorf("chain %s: file name %s already used by chain %s", chain, name, other)
		}
		owner[name] = chain
	}

	files := make([]model.OutputFile, 0, len(chains)+1)
	total := 0
	for _, chain := range chains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		byAddr := trusted[chain]
		f, err := w.writeJSON(filepath.Join(w.Dir, w.fileName(chain)), byAddr)
		if err != nil {
			return nil, fmt.Errorf("write chain %s: %w", chain, err)
		}
		f.Chain = chain
		f.Tokens = len(byAddr)
		total += len(byAddr)
		files = append(files, f)
	}

	all, err := w.writeJSON(filepath.Join(w.Dir, AllFile), trusted)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", AllFile, err)
	}
	all.Tokens = total
	files = append(files, all)
	return files, nil
}

func (w *JSONWriter) fileName(chain model.ChainID) string {
	name := string(chain)
	if w.Names != nil {
		name = w.Names.ChainName(chain)
	}
	return name + ".json"
}

func (w *JSONWriter) writeJSON(path string, v any) (model.OutputFile, error) {
	data, err := Encode(v)
	if err != nil {
		return model.OutputFile{}, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return model.OutputFile{}, err
	}
	sum, _, err := hash.File(path)
	if err != nil {
		return model.OutputFile{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return model.OutputFile{Path: path, SHA256: sum}, nil
}

// Encode 使用 4 空格缩进，不转义 HTML 字符和非 ASCII 字符；map 键按字典序输出。
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
