package tool

import "strings"

// Kind identifies which handler executes a tool. The source platform routed
// on raw category/name substrings at call time; here the match happens once
// per request via [ResolveKind] and dispatch is a lookup on the resulting
// enum.
type Kind int

const (
	KindUnknown Kind = iota
	KindWebSearch
	KindHTTPRequest
	KindJSONTransform
	KindTextProcess
	KindMathCalculate
	KindDatetime
	KindCustom
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindWebSearch:
		return "web_search"
	case KindHTTPRequest:
		return "http_request"
	case KindJSONTransform:
		return "json_transform"
	case KindTextProcess:
		return "text_process"
	case KindMathCalculate:
		return "math_calculate"
	case KindDatetime:
		return "datetime"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// kindPatterns lists, in fixed dispatch priority order, the substrings that
// map a tool's category or name to a Kind.
var kindPatterns = []struct {
	kind       Kind
	substrings []string
}{
	{KindWebSearch, []string{"search", "web"}},
	{KindHTTPRequest, []string{"http", "api", "request"}},
	{KindJSONTransform, []string{"json", "transform"}},
	{KindTextProcess, []string{"text", "string"}},
	{KindMathCalculate, []string{"math", "calculate"}},
	{KindDatetime, []string{"datetime", "date", "time"}},
}

// ResolveKind determines the execution kind for a tool. Custom tools with
// wrapper code always resolve to [KindCustom]. Otherwise the category is
// matched case-insensitively against the priority-ordered substring table,
// falling back to the tool's name; no match resolves to [KindUnknown].
func ResolveKind(t *Tool) Kind {
	if t.IsCustom && strings.TrimSpace(t.WrapperCode) != "" {
		return KindCustom
	}
	if k := matchKind(t.Category); k != KindUnknown {
		return k
	}
	return matchKind(t.Name)
}

func matchKind(s string) Kind {
	s = strings.ToLower(s)
	if s == "" {
		return KindUnknown
	}
	for _, p := range kindPatterns {
		for _, sub := range p.substrings {
			if strings.Contains(s, sub) {
				return p.kind
			}
		}
	}
	return KindUnknown
}
