package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trioctl/trio/internal/registry"
)

func toArgs(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	return out
}

func TestWebSearchTool_Name(t *testing.T) {
	tool := NewWebSearchTool(&Config{})
	if tool.Name() != "web_search" {
		t.Errorf("expected name 'web_search', got '%s'", tool.Name())
	}
}

func TestWebSearchTool_Description(t *testing.T) {
	tool := NewWebSearchTool(&Config{})
	desc := tool.Description()
	if desc == "" {
		t.Error("description should not be empty")
	}
}

func TestWebSearchTool_Schema(t *testing.T) {
	tool := NewWebSearchTool(&Config{})
	schema := tool.ParameterSchema()

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schema, &schemaMap); err != nil {
		t.Fatalf("failed to unmarshal schema: %v", err)
	}

	props, ok := schemaMap["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("schema should have properties")
	}

	if _, ok := props["query"]; !ok {
		t.Error("schema should have query property")
	}

	required, ok := schemaMap["required"].([]interface{})
	if !ok || len(required) == 0 {
		t.Error("schema should have required fields")
	}
}

func TestWebSearchTool_Execute_InvalidParams(t *testing.T) {
	tool := NewWebSearchTool(&Config{})

	result, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Success {
		t.Error("expected error result for missing query")
	}
}

func TestWebSearchTool_Execute_SearXNG(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("expected path /search, got %s", r.URL.Path)
		}

		query := r.URL.Query().Get("q")
		if query == "" {
			t.Error("query parameter is missing")
		}

		response := map[string]interface{}{
			"query": query,
			"results": []map[string]interface{}{
				{
					"title":   "Test Result 1",
					"url":     "https://example.com/1",
					"content": "This is the first test result",
				},
				{
					"title":   "Test Result 2",
					"url":     "https://example.com/2",
					"content": "This is the second test result",
				},
				{
					"title":   "Test Result 3",
					"url":     "https://example.com/3",
					"content": "This is the third test result",
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&Config{
		SearXNGURL:     server.URL,
		DefaultBackend: BackendSearXNG,
	})

	args := toArgs(t, SearchParams{Query: "test query", ResultCount: 3})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("unexpected error: %s", result.Error)
	}

	var response SearchResponse
	if err := json.Unmarshal([]byte(result.Output), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if response.Query != "test query" {
		t.Errorf("expected query 'test query', got '%s'", response.Query)
	}

	if response.Backend != BackendSearXNG {
		t.Errorf("expected backend SearXNG, got %s", response.Backend)
	}

	if len(response.Results) != 3 {
		t.Errorf("expected 3 results, got %d", len(response.Results))
	}

	if response.Results[0].Title != "Test Result 1" {
		t.Errorf("expected title 'Test Result 1', got '%s'", response.Results[0].Title)
	}
}

func TestWebSearchTool_Execute_Brave(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Subscription-Token")
		if apiKey != "test-api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		response := map[string]interface{}{
			"web": map[string]interface{}{
				"results": []map[string]interface{}{
					{
						"title":       "Brave Result 1",
						"url":         "https://example.com/brave1",
						"description": "First result from Brave",
					},
					{
						"title":       "Brave Result 2",
						"url":         "https://example.com/brave2",
						"description": "Second result from Brave",
					},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&Config{
		BraveAPIKey:    "test-api-key",
		DefaultBackend: BackendBraveSearch,
	})
	tool.httpClient = server.Client()

	args := toArgs(t, SearchParams{
		Query:       "test query",
		ResultCount: 2,
		Backend:     BackendBraveSearch,
	})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output == "" && result.Success {
		t.Error("expected either output or a failure reason")
	}
}

func TestWebSearchTool_Caching(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		response := map[string]interface{}{
			"query": r.URL.Query().Get("q"),
			"results": []map[string]interface{}{
				{
					"title":   "Cached Result",
					"url":     "https://example.com/cached",
					"content": "This result should be cached",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&Config{
		SearXNGURL:     server.URL,
		DefaultBackend: BackendSearXNG,
		CacheTTL:       2,
	})

	args := toArgs(t, SearchParams{Query: "cache test", ResultCount: 1})

	result1, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if !result1.Success {
		t.Errorf("first call returned error: %s", result1.Error)
	}
	if callCount != 1 {
		t.Errorf("expected 1 server call, got %d", callCount)
	}

	result2, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if !result2.Success {
		t.Errorf("second call returned error: %s", result2.Error)
	}
	if callCount != 1 {
		t.Errorf("expected still 1 server call (cached), got %d", callCount)
	}

	time.Sleep(3 * time.Second)

	result3, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("third Execute failed: %v", err)
	}
	if !result3.Success {
		t.Errorf("third call returned error: %s", result3.Error)
	}
	if callCount != 2 {
		t.Errorf("expected 2 server calls after cache expiry, got %d", callCount)
	}
}

func TestWebSearchTool_SearchTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		categories := r.URL.Query().Get("categories")

		response := map[string]interface{}{
			"query": r.URL.Query().Get("q"),
			"results": []map[string]interface{}{
				{
					"title":   "Result for " + categories,
					"url":     "https://example.com/" + categories,
					"content": "Content for " + categories,
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&Config{
		SearXNGURL:     server.URL,
		DefaultBackend: BackendSearXNG,
	})

	tests := []struct {
		name        string
		searchType  SearchType
		expectedCat string
	}{
		{"web search", SearchTypeWeb, "general"},
		{"image search", SearchTypeImage, "images"},
		{"news search", SearchTypeNews, "news"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := toArgs(t, SearchParams{Query: "test", Type: tt.searchType, ResultCount: 1})

			result, err := tool.Execute(context.Background(), args)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}

			if !result.Success {
				t.Errorf("unexpected error: %s", result.Error)
			}

			var response SearchResponse
			if err := json.Unmarshal([]byte(result.Output), &response); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}

			if response.Type != tt.searchType {
				t.Errorf("expected type %s, got %s", tt.searchType, response.Type)
			}
		})
	}
}

func TestWebSearchTool_ResultCountLimit(t *testing.T) {
	tool := NewWebSearchTool(&Config{
		DefaultBackend:     BackendSearXNG,
		DefaultResultCount: 5,
	})

	tests := []struct {
		name          string
		requestCount  int
		expectedCount int
	}{
		{"default count", 0, 5},
		{"custom count", 3, 3},
		{"over limit", 25, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := SearchParams{Query: "test", ResultCount: tt.requestCount}

			if params.ResultCount == 0 {
				params.ResultCount = tool.config.DefaultResultCount
			} else if params.ResultCount > 20 {
				params.ResultCount = 20
			}

			if params.ResultCount != tt.expectedCount {
				t.Errorf("expected count %d, got %d", tt.expectedCount, params.ResultCount)
			}
		})
	}
}

func TestWebSearchTool_DefaultBackendSelection(t *testing.T) {
	tests := []struct {
		name            string
		config          *Config
		expectedBackend SearchBackend
	}{
		{
			name:            "SearXNG when URL provided",
			config:          &Config{SearXNGURL: "http://searxng.example.com"},
			expectedBackend: BackendSearXNG,
		},
		{
			name:            "DuckDuckGo when no config",
			config:          &Config{},
			expectedBackend: BackendDuckDuckGo,
		},
		{
			name:            "Explicit backend",
			config:          &Config{DefaultBackend: BackendBraveSearch, BraveAPIKey: "key"},
			expectedBackend: BackendBraveSearch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewWebSearchTool(tt.config)
			if tool.config.DefaultBackend != tt.expectedBackend {
				t.Errorf("expected backend %s, got %s", tt.expectedBackend, tool.config.DefaultBackend)
			}
		})
	}
}

func TestWebSearchTool_InterfaceCompliance(t *testing.T) {
	var _ registry.Tool = (*WebSearchTool)(nil)
}

func TestSearchParams_Validation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"query": r.URL.Query().Get("q"),
			"results": []map[string]interface{}{
				{
					"title":   "Test Result",
					"url":     "https://example.com/test",
					"content": "Test content",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&Config{
		SearXNGURL:     server.URL,
		DefaultBackend: BackendSearXNG,
	})

	tests := []struct {
		name        string
		params      SearchParams
		shouldError bool
	}{
		{
			name:        "valid params",
			params:      SearchParams{Query: "test query", Type: SearchTypeWeb, ResultCount: 5},
			shouldError: false,
		},
		{
			name:        "empty query",
			params:      SearchParams{Query: ""},
			shouldError: true,
		},
		{
			name:        "minimal valid params",
			params:      SearchParams{Query: "test"},
			shouldError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := toArgs(t, tt.params)
			result, err := tool.Execute(context.Background(), args)

			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}

			if tt.shouldError && result.Success {
				t.Error("expected error result but got success")
			}

			if !tt.shouldError && !result.Success {
				t.Errorf("expected success but got error: %s", result.Error)
			}
		})
	}
}
