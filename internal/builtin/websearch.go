package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/resilience"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// searchResult is one normalized entry in a web search response.
type searchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// instantAnswer is the subset of the DuckDuckGo Instant Answer response the
// handler consumes.
type instantAnswer struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// WebSearch performs a single query against the instant-answer search
// endpoint and returns a flat result list: the abstract first (when present)
// followed by up to max_results related topics (default 5). The abstract
// does not count against max_results.
//
// The outbound call is bounded by the configured search timeout (10 s by
// default). Network failures and non-2xx statuses produce a Success:false
// envelope; WebSearch never raises past its own boundary.
func (t *Tools) WebSearch(ctx context.Context, params map[string]any) tool.Result {
	start := time.Now()

	query, ok := stringParam(params, "query")
	if !ok {
		return tool.Errf(start, "Web search requires a 'query' parameter")
	}
	maxResults := intOr(params, "max_results", defaultMaxResults)
	if maxResults < 1 {
		maxResults = defaultMaxResults
	}

	endpoint, err := url.Parse(t.searchEndpoint)
	if err != nil {
		return tool.Errf(start, "Search endpoint misconfigured: %v", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	endpoint.RawQuery = q.Encode()

	answer, err := t.fetchInstantAnswer(ctx, endpoint)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return tool.Errf(start, "Search request timed out after %s", t.searchTimeout)
		}
		return tool.Errf(start, "Search request failed: %v", err)
	}

	// max_results bounds the related topics; the abstract, when present, is
	// an extra leading entry and does not count against it.
	results := make([]searchResult, 0, maxResults+1)
	if answer.AbstractText != "" {
		results = append(results, searchResult{
			Title:   answer.Heading,
			Snippet: answer.AbstractText,
			URL:     answer.AbstractURL,
			Source:  "instant_answer",
		})
	}
	topics := 0
	for _, topic := range answer.RelatedTopics {
		if topics == maxResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, searchResult{
			Title:   topicTitle(topic.Text),
			Snippet: topic.Text,
			URL:     topic.FirstURL,
			Source:  "related_topic",
		})
		topics++
	}

	return tool.Ok(map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	}, start)
}

// fetchInstantAnswer performs the bounded outbound call behind the
// endpoint's circuit breaker.
func (t *Tools) fetchInstantAnswer(ctx context.Context, endpoint *url.URL) (*instantAnswer, error) {
	var breaker *resilience.Breaker
	if t.breakers != nil {
		breaker = t.breakers.For(endpoint.Hostname())
		if err := breaker.Allow(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.searchTimeout)
	defer cancel()

	answer, err := func() (*instantAnswer, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, errSearchStatus(resp.StatusCode)
		}

		var answer instantAnswer
		if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
			return nil, err
		}
		return &answer, nil
	}()

	if breaker != nil {
		breaker.Report(endpoint.Hostname(), err)
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return answer, err
}

type errSearchStatus int

func (e errSearchStatus) Error() string {
	return fmt.Sprintf("search endpoint returned status %d", int(e))
}

// topicTitle derives a short title from a related-topic text, which comes
// back as "Title - description".
func topicTitle(text string) string {
	if title, _, found := strings.Cut(text, " - "); found {
		return title
	}
	return text
}
