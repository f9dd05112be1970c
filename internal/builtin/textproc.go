package builtin

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Fixed extraction expressions. RE2 has no backtracking, so user text of any
// shape runs in linear time.
var (
	urlPattern      = regexp.MustCompile(`https?://[^\s<>"]+`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+`)
	defaultSentence = 3
)

// TextProcess applies one string operation to the required "text" parameter.
//
// Operations: word_count, extract_urls, extract_emails, summarize, split,
// replace, trim, lowercase, uppercase; any other operation passes the text
// through unchanged. summarize is naive truncation to the first
// max_sentences sentences (default 3), not semantic summarization.
func (t *Tools) TextProcess(ctx context.Context, params map[string]any) tool.Result {
	start := time.Now()

	text, ok := stringParam(params, "text")
	if !ok {
		if _, present := params["text"]; !present {
			return tool.Errf(start, "Text processing requires a 'text' parameter")
		}
		// Present but empty: operations on "" are well-defined.
		text = ""
	}

	switch stringOr(params, "operation", "") {
	case "word_count":
		return tool.Ok(map[string]any{
			"words":      len(strings.Fields(text)),
			"characters": len([]rune(text)),
			"lines":      strings.Count(text, "\n") + 1,
		}, start)

	case "extract_urls":
		urls := urlPattern.FindAllString(text, -1)
		if urls == nil {
			urls = []string{}
		}
		return tool.Ok(map[string]any{"urls": urls, "count": len(urls)}, start)

	case "extract_emails":
		emails := emailPattern.FindAllString(text, -1)
		if emails == nil {
			emails = []string{}
		}
		return tool.Ok(map[string]any{"emails": emails, "count": len(emails)}, start)

	case "summarize":
		maxSentences := intOr(params, "max_sentences", defaultSentence)
		if maxSentences < 1 {
			maxSentences = defaultSentence
		}
		summary, used := summarize(text, maxSentences)
		return tool.Ok(map[string]any{"summary": summary, "sentences": used}, start)

	case "split":
		delimiter := stringOr(params, "delimiter", ",")
		parts := strings.Split(text, delimiter)
		return tool.Ok(map[string]any{"parts": parts, "count": len(parts)}, start)

	case "replace":
		pattern, ok := stringParam(params, "pattern")
		if !ok {
			return tool.Errf(start, "replace operation requires a 'pattern' parameter")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return tool.Errf(start, "Invalid replace pattern: %v", err)
		}
		replacement := stringOr(params, "replacement", "")
		return tool.Ok(map[string]any{"result": re.ReplaceAllString(text, replacement)}, start)

	case "trim":
		return tool.Ok(map[string]any{"result": strings.TrimSpace(text)}, start)

	case "lowercase":
		return tool.Ok(map[string]any{"result": strings.ToLower(text)}, start)

	case "uppercase":
		return tool.Ok(map[string]any{"result": strings.ToUpper(text)}, start)

	default:
		return tool.Ok(map[string]any{"result": text}, start)
	}
}

// summarize keeps the first max sentences, rejoined with sentence breaks and
// a trailing period.
func summarize(text string, max int) (string, int) {
	raw := sentenceSplit.Split(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return "", 0
	}
	if len(sentences) > max {
		sentences = sentences[:max]
	}
	return strings.Join(sentences, ". ") + ".", len(sentences)
}
