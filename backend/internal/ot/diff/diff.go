// Package diff 计算两个完整文本版本之间的字符级差异。
//
// 基于 LCS 动态规划，时间和内存都是 O(|old|*|new|)，只适合编辑器里中小规模的文档。
package diff

import (
	"strings"
	"unicode/utf8"
)

type Kind int

const (
	Equal Kind = iota
	Insert
	Delete
)

func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Span 一段连续的、同一分类的文本
type Span struct {
	Kind Kind
	Text string
}

// Len 返回 span 的字符（rune）长度
func (s Span) Len() int { return utf8.RuneCountInString(s.Text) }

// units 把文本切成字符单元：合法字符取它的 UTF-8 字节，非法字节单独成一个单元。
// 单元个数与 []rune 的长度一致，拼回去与原文逐字节相同
func units(s string) []string {
	out := make([]string, 0, len(s))
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		out = append(out, s[i:i+size])
		i += size
	}
	return out
}

// Diff 返回把 oldText 变成 newText 的 span 序列，按文档顺序从左到右。
// 当前游标处两边字符相同时总是归为 Equal，不会拆成 delete+insert。
func Diff(oldText, newText string) []Span {
	a, b := units(oldText), units(newText)

	var spans []Span

	// 公共前缀直接作为 Equal，缩小 DP 表
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	if p > 0 {
		spans = append(spans, Span{Kind: Equal, Text: strings.Join(a[:p], "")})
		a, b = a[p:], b[p:]
	}

	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return spans
	}

	// dp[i*w+j] = LCS(a[i:], b[j:])
	w := m + 1
	dp := make([]int, (n+1)*w)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i*w+j] = dp[(i+1)*w+j+1] + 1
			} else {
				dp[i*w+j] = max(dp[(i+1)*w+j], dp[i*w+j+1])
			}
		}
	}
	// 沿 a 前进的 LCS 不小于沿 b 前进时优先删除
	preferDelete := func(i, j int) bool {
		return dp[(i+1)*w+j] >= dp[i*w+j+1]
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			start := i
			for i < n && j < m && a[i] == b[j] {
				i++
				j++
			}
			spans = append(spans, Span{Kind: Equal, Text: strings.Join(a[start:i], "")})

		case preferDelete(i, j):
			start := i
			i++
			for i < n && a[i] != b[j] && preferDelete(i, j) {
				i++
			}
			spans = append(spans, Span{Kind: Delete, Text: strings.Join(a[start:i], "")})

		default:
			start := j
			j++
			for j < m && a[i] != b[j] && !preferDelete(i, j) {
				j++
			}
			spans = append(spans, Span{Kind: Insert, Text: strings.Join(b[start:j], "")})
		}
	}
	if i < n {
		spans = append(spans, Span{Kind: Delete, Text: strings.Join(a[i:], "")})
	}
	if j < m {
		spans = append(spans, Span{Kind: Insert, Text: strings.Join(b[j:], "")})
	}
	return spans
}

// Old 拼接 Equal 和 Delete span，得到旧文本
func Old(spans []Span) string {
	return join(spans, Delete)
}

// New 拼接 Equal 和 Insert span，得到新文本
func New(spans []Span) string {
	return join(spans, Insert)
}

func join(spans []Span, side Kind) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Kind == Equal || s.Kind == side {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}
