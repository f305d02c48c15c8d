package source_map

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	e "github.com/fansqz/go-debug-adapter/error"
)

// Rule 路径映射规则，Replacement为nil表示匹配但不映射（屏蔽本地不存在的源文件）
type Rule struct {
	Pattern     string
	Replacement *string
}

type compiledRule struct {
	head        string
	wildcard    bool
	replacement *string
}

type cacheKey struct {
	dir  string
	file string
}

type cacheValue struct {
	local string
	ok    bool
}

// SourceMap 将引擎报告的源文件路径映射为本地路径
type SourceMap struct {
	rules []compiledRule
	cache map[cacheKey]cacheValue
}

// New 按顺序编译映射规则，非法的glob返回用户错误
func New(rules []Rule) (*SourceMap, error) {
	sm := &SourceMap{cache: make(map[cacheKey]cacheValue)}
	for _, rule := range rules {
		pattern := toSlash(rule.Pattern)
		head := strings.TrimSuffix(strings.TrimSuffix(pattern, "**"), "*")
		wildcard := head != pattern
		head = strings.TrimRight(head, "/")
		if head == "" || !doublestar.ValidatePattern(head) {
			return nil, e.NewUserError("Invalid glob pattern: %s", rule.Pattern)
		}
		sm.rules = append(sm.rules, compiledRule{
			head:        path.Clean(head),
			wildcard:    wildcard,
			replacement: rule.Replacement,
		})
	}
	return sm, nil
}

// Resolve 解析dir/file对应的本地路径。
// 第二个返回值为false表示命中了屏蔽规则，没有本地路径。
// 没有命中任何规则时返回规范化后的原路径。
func (s *SourceMap) Resolve(dir, file string) (string, bool) {
	key := cacheKey{dir: dir, file: file}
	if v, ok := s.cache[key]; ok {
		return v.local, v.ok
	}
	full := file
	if dir != "" && !path.IsAbs(toSlash(file)) {
		full = dir + "/" + file
	}
	local, ok := s.ToLocal(full)
	s.cache[key] = cacheValue{local: local, ok: ok}
	return local, ok
}

// ToLocal 依次匹配规则，第一个匹配的规则生效
func (s *SourceMap) ToLocal(enginePath string) (string, bool) {
	normalized := NormalizePath(enginePath)
	for _, rule := range s.rules {
		rest, matched := rule.match(normalized)
		if !matched {
			continue
		}
		if rule.replacement == nil {
			return "", false
		}
		return NormalizePath(*rule.replacement + rest), true
	}
	return normalized, true
}

// match 在路径的组件边界上寻找能匹配head的最短前缀，返回剩余部分
func (r *compiledRule) match(p string) (string, bool) {
	for i := 0; i <= len(p); i++ {
		if i != len(p) && p[i] != '/' {
			continue
		}
		prefix := p[:i]
		if prefix == "" {
			prefix = "/"
		}
		rest := p[i:]
		if r.wildcard && rest == "" {
			continue
		}
		if ok, _ := doublestar.Match(r.head, prefix); ok {
			return rest, true
		}
	}
	return "", false
}

// NormalizePath 统一分隔符并折叠.和..
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(toSlash(p))
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
