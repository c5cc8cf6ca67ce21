package registry

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"token-aggregator/internal/adapters/sink"
	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/platform/hash"

	"gopkg.in/yaml.v3"
)

const (
	ChainsFile    = "chains.yaml"
	ProvidersFile = "providers.yaml"
)

//go:embed chains.yaml providers.yaml
var embedded embed.FS

// chainName 同时是输出文件名，只允许安全字符。
var chainName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// reservedChainName 与汇总文件同名，不能作为链的输出文件名。
var reservedChainName = strings.TrimSuffix(sink.AllFile, ".json")

// ChainBundle 是 chains.yaml 的结构。
type ChainBundle struct {
	Version    string        `yaml:"version"`
	BundleType string        `yaml:"bundle_type"`
	Chains     []model.Chain `yaml:"chains"`
}

// ProviderBundle 是 providers.yaml 的结构。
type ProviderBundle struct {
	Version    string           `yaml:"version"`
	BundleType string           `yaml:"bundle_type"`
	Providers  []model.Provider `yaml:"providers"`
}

// Loader 读取链表与 provider 表；Dir 为空时读取内嵌文件。
type Loader struct {
	Dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load 依次加载链表和 provider 表，完成交叉校验后返回 Registry。
func (l *Loader) Load(ctx context.Context) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chainsRaw, err := l.read(ChainsFile)
	if err != nil {
		return nil, fmt.Errorf("read chain registry: %w", err)
	}
	var chains ChainBundle
	if err := yaml.Unmarshal(chainsRaw, &chains); err != nil {
		return nil, fmt.Errorf("parse chain registry: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	providersRaw, err := l.read(ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("read provider registry: %w", err)
	}
	var providers ProviderBundle
	if err := yaml.Unmarshal(providersRaw, &providers); err != nil {
		return nil, fmt.Errorf("parse provider registry: %w", err)
	}

	reg, err := New(chains, providers)
	if err != nil {
		return nil, err
	}
	reg.ChainsSHA256 = hash.Bytes(chainsRaw)
	reg.ProvidersSHA256 = hash.Bytes(providersRaw)
	return reg, nil
}

func (l *Loader) read(name string) ([]byte, error) {
	if strings.TrimSpace(l.Dir) == "" {
		return embedded.ReadFile(name)
	}
	return os.ReadFile(filepath.Join(l.Dir, name))
}

// Load 使用内嵌注册表。
func Load(ctx context.Context) (*Registry, error) {
	return NewLoader("").Load(ctx)
}

// validateChains 检查链表的完整性与唯一性。
func validateChains(bundle ChainBundle) error {
	if strings.TrimSpace(bundle.Version) == "" {
		return errors.New("chain registry: version is required")
	}
	if len(bundle.Chains) == 0 {
		return errors.New("chain registry: chains is empty")
	}

	seenID := make(map[model.ChainID]struct{}, len(bundle.Chains))
	seenName := make(map[string]model.ChainID, len(bundle.Chains))
	seenPlatform := make(map[string]model.ChainID, len(bundle.Chains))
	for _, c := range bundle.Chains {
		id := model.ChainID(strings.TrimSpace(string(c.ID)))
		if id == "" {
			return errors.New("chain registry: chain id is required")
		}
		if _, ok := seenID[id]; ok {
			return fmt.Errorf("chain registry: duplicate chain id: %s", id)
		}
		seenID[id] = struct{}{}

		stem := c.Name
		if stem == "" {
			stem = string(id)
		}
		if stem == reservedChainName {
			return fmt.Errorf("chain registry: chain name %s is reserved for %s: %s", stem, sink.AllFile, id)
		}

		if c.Name != "" {
			if !chainName.MatchString(c.Name) {
				return fmt.Errorf("chain registry: invalid chain name %q: %s", c.Name, id)
			}
			if other, ok := seenName[c.Name]; ok {
				return fmt.Errorf("chain registry: chain name %s used by %s and %s", c.Name, other, id)
			}
			seenName[c.Name] = id
		}

		if c.Platform != "" {
			if other, ok := seenPlatform[c.Platform]; ok {
				return fmt.Errorf("chain registry: platform %s mapped to %s and %s", c.Platform, other, id)
			}
			seenPlatform[c.Platform] = id
		}

		switch c.Family {
		case "", model.FamilyEVM, model.FamilySolana:
		default:
			return fmt.Errorf("chain registry: unknown address family %q: %s", c.Family, id)
		}
	}
	return nil
}

// validateProviders 检查 provider 描述符，链 ID 必须出现在链表中。
func validateProviders(bundle ProviderBundle, known map[model.ChainID]model.Chain) error {
	if strings.TrimSpace(bundle.Version) == "" {
		return errors.New("provider registry: version is required")
	}
	if len(bundle.Providers) == 0 {
		return errors.New("provider registry: providers is empty")
	}

	seen := make(map[string]struct{}, len(bundle.Providers))
	active := 0
	for _, p := range bundle.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return errors.New("provider registry: provider name is required")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("provider registry: duplicate provider: %s", name)
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("provider registry: url is required: %s", name)
		}
		if p.Disabled {
			continue
		}
		active++

		if len(p.Chains) == 0 {
			return fmt.Errorf("provider registry: no chains for provider: %s", name)
		}
		if len(p.Chains) > 1 && !strings.Contains(p.URL, model.ChainPlaceholder) {
			return fmt.Errorf("provider registry: url without %s serves several chains: %s", model.ChainPlaceholder, name)
		}

		chainSeen := make(map[model.ChainID]struct{}, len(p.Chains))
		for _, c := range p.Chains {
			if _, ok := known[c.ID]; !ok {
				return fmt.Errorf("provider registry: %s: unknown chain id %q", name, c.ID)
			}
			if _, ok := chainSeen[c.ID]; ok {
				return fmt.Errorf("provider registry: %s: duplicate chain id %s", name, c.ID)
			}
			chainSeen[c.ID] = struct{}{}
			if !p.ByChainID && strings.TrimSpace(c.Slug) == "" {
				return fmt.Errorf("provider registry: %s: slug is required for chain %s", name, c.ID)
			}
		}
	}
	if active == 0 {
		return errors.New("provider registry: every provider is disabled")
	}
	return nil
}
