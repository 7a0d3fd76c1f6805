package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v6"
	"github.com/elastic/go-elasticsearch/v6/esapi"
)

// HTTPClient implements Client on the Elasticsearch REST API, addressing
// documents by index, type and id.
type HTTPClient struct {
	es *elasticsearch.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client targeting baseURL
// (e.g. "http://localhost:9200").
func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{strings.TrimRight(baseURL, "/")},
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &HTTPClient{es: es}, nil
}

// Close is a no-op; the transport holds no per-client resources.
func (c *HTTPClient) Close() error { return nil }

// --- Documents ---

func (c *HTTPClient) Get(ctx context.Context, index, docType, id string) (*Hit, error) {
	var hit Hit
	req := esapi.GetRequest{Index: index, DocumentType: docType, DocumentID: id}
	if err := c.perform(ctx, req, &hit); err != nil {
		return nil, err
	}
	if !hit.Found {
		return nil, &Error{Status: http.StatusNotFound, Reason: "document " + id + " not found"}
	}
	return &hit, nil
}

func (c *HTTPClient) Index(ctx context.Context, index, docType, id string, doc map[string]any) error {
	body, err := jsonBody(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: index, DocumentType: docType, DocumentID: id, Body: body}
	return c.perform(ctx, req, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, index, docType, id string) error {
	req := esapi.DeleteRequest{Index: index, DocumentType: docType, DocumentID: id}
	return c.perform(ctx, req, nil)
}

func (c *HTTPClient) Search(ctx context.Context, index string, docTypes []string, query map[string]any) (*SearchResult, error) {
	req := esapi.SearchRequest{Index: []string{index}, DocumentType: docTypes}
	if query != nil {
		body, err := jsonBody(query)
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	var resp struct {
		Hits struct {
			Total json.RawMessage `json:"total"`
			Hits  []Hit           `json:"hits"`
		} `json:"hits"`
	}
	if err := c.perform(ctx, req, &resp); err != nil {
		return nil, err
	}
	total, err := parseTotal(resp.Hits.Total)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Total: total, Hits: resp.Hits.Hits}, nil
}

// parseTotal accepts both the numeric and the {"value": n} total forms.
func parseTotal(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("decoding hits total: %w", err)
	}
	return obj.Value, nil
}

func (c *HTTPClient) Bulk(ctx context.Context, index string, items []BulkItem) (*BulkResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, it := range items {
		meta := map[string]any{it.Action: map[string]string{"_type": it.Type, "_id": it.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("marshaling bulk action: %w", err)
		}
		if it.Action == ActionIndex {
			if err := enc.Encode(it.Doc); err != nil {
				return nil, fmt.Errorf("marshaling bulk document %s: %w", it.ID, err)
			}
		}
	}

	var resp struct {
		Items []map[string]struct {
			ID     string          `json:"_id"`
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := c.perform(ctx, esapi.BulkRequest{Index: index, Body: &buf}, &resp); err != nil {
		return nil, err
	}
	out := &BulkResult{Items: make([]BulkItemResult, 0, len(resp.Items))}
	for _, item := range resp.Items {
		for action, r := range item {
			res := BulkItemResult{Action: action, ID: r.ID, Status: r.Status}
			if len(r.Error) > 0 && string(r.Error) != "null" {
				res.Err = parseError(r.Status, r.Error)
			}
			out.Items = append(out.Items, res)
		}
	}
	return out, nil
}

// --- Indexes ---

func (c *HTTPClient) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	req := esapi.IndicesCreateRequest{Index: name}
	if body != nil {
		r, err := jsonBody(body)
		if err != nil {
			return err
		}
		req.Body = r
	}
	return c.perform(ctx, req, nil)
}

func (c *HTTPClient) DeleteIndex(ctx context.Context, name string) error {
	return c.perform(ctx, esapi.IndicesDeleteRequest{Index: []string{name}}, nil)
}

func (c *HTTPClient) IndexExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, esapi.IndicesExistsRequest{Index: []string{name}})
}

func (c *HTTPClient) CloseIndex(ctx context.Context, name string) error {
	return c.perform(ctx, esapi.IndicesCloseRequest{Index: []string{name}}, nil)
}

func (c *HTTPClient) OpenIndex(ctx context.Context, name string) error {
	return c.perform(ctx, esapi.IndicesOpenRequest{Index: []string{name}}, nil)
}

func (c *HTTPClient) Refresh(ctx context.Context, name string) error {
	return c.perform(ctx, esapi.IndicesRefreshRequest{Index: []string{name}}, nil)
}

func (c *HTTPClient) GetSettings(ctx context.Context, name string) (map[string]any, error) {
	var resp map[string]struct {
		Settings map[string]any `json:"settings"`
	}
	if err := c.perform(ctx, esapi.IndicesGetSettingsRequest{Index: []string{name}}, &resp); err != nil {
		return nil, err
	}
	if entry, ok := resp[name]; ok {
		return entry.Settings, nil
	}
	// name was an alias; the response is keyed by the physical index.
	for _, entry := range resp {
		return entry.Settings, nil
	}
	return map[string]any{}, nil
}

func (c *HTTPClient) PutSettings(ctx context.Context, name string, settings map[string]any) error {
	body, err := jsonBody(settings)
	if err != nil {
		return err
	}
	return c.perform(ctx, esapi.IndicesPutSettingsRequest{Index: []string{name}, Body: body}, nil)
}

func (c *HTTPClient) GetMapping(ctx context.Context, name, docType string) (map[string]any, error) {
	var resp map[string]struct {
		Mappings map[string]map[string]any `json:"mappings"`
	}
	req := esapi.IndicesGetMappingRequest{Index: []string{name}, DocumentType: []string{docType}}
	if err := c.perform(ctx, req, &resp); err != nil {
		return nil, err
	}
	for _, entry := range resp {
		if m, ok := entry.Mappings[docType]; ok {
			return m, nil
		}
	}
	return nil, nil
}

func (c *HTTPClient) PutMapping(ctx context.Context, name, docType string, body map[string]any) error {
	r, err := jsonBody(body)
	if err != nil {
		return err
	}
	req := esapi.IndicesPutMappingRequest{Index: []string{name}, DocumentType: docType, Body: r}
	return c.perform(ctx, req, nil)
}

// --- Aliases ---

func (c *HTTPClient) GetAlias(ctx context.Context, alias string) ([]string, error) {
	var resp map[string]json.RawMessage
	if err := c.perform(ctx, esapi.IndicesGetAliasRequest{Name: []string{alias}}, &resp); err != nil {
		return nil, err
	}
	indexes := make([]string, 0, len(resp))
	for name := range resp {
		indexes = append(indexes, name)
	}
	sort.Strings(indexes)
	return indexes, nil
}

func (c *HTTPClient) AliasExists(ctx context.Context, alias string) (bool, error) {
	return c.exists(ctx, esapi.IndicesExistsAliasRequest{Name: []string{alias}})
}

func (c *HTTPClient) UpdateAliases(ctx context.Context, actions []AliasAction) error {
	body, err := jsonBody(map[string]any{"actions": actions})
	if err != nil {
		return err
	}
	return c.perform(ctx, esapi.IndicesUpdateAliasesRequest{Body: body}, nil)
}

// --- Transport ---

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// exists runs a HEAD request; 404 means absent.
func (c *HTTPClient) exists(ctx context.Context, req esapi.Request) (bool, error) {
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return false, fmt.Errorf("performing request: %w", err)
	}
	if res.Body != nil {
		res.Body.Close()
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, &Error{Status: res.StatusCode, Reason: http.StatusText(res.StatusCode)}
	default:
		return true, nil
	}
}

// perform runs req and decodes a successful response body into result when
// result is non-nil. Error responses become *Error.
func (c *HTTPClient) perform(ctx context.Context, req esapi.Request, result any) error {
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	var body []byte
	if res.Body != nil {
		defer res.Body.Close()
		body, err = io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
	}

	if res.IsError() {
		return responseError(res.StatusCode, body)
	}
	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func responseError(status int, body []byte) *Error {
	var errResp struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && len(errResp.Error) > 0 {
		return parseError(status, errResp.Error)
	}
	return &Error{Status: status, Reason: strings.TrimSpace(string(body))}
}

// parseError decodes both the structured error object and the older
// "Type[reason]" string form.
func parseError(status int, raw json.RawMessage) *Error {
	var obj struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(raw, &obj) == nil && (obj.Type != "" || obj.Reason != "") {
		return &Error{Status: status, Type: obj.Type, Reason: obj.Reason}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		e := &Error{Status: status, Reason: s}
		if i := strings.IndexByte(s, '['); i > 0 && !strings.Contains(s[:i], " ") {
			e.Type = s[:i]
		}
		return e
	}
	return &Error{Status: status, Reason: string(raw)}
}
