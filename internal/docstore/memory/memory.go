// Package memory implements docstore.Client in process. It applies the
// same alias, close/open and mapping-merge rules as an Elasticsearch
// cluster, which makes it suitable for tests and dry runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alfredjeanlab/docsync/internal/docstore"
)

// Store is an in-process document store.
type Store struct {
	mu      sync.Mutex
	indexes map[string]*index
	aliases map[string]map[string]bool // alias -> physical indexes
	ops     []string
	fail    map[string]error
}

type index struct {
	name     string
	closed   bool
	settings map[string]any
	mappings map[string]map[string]any
	docs     map[string]map[string]map[string]any // type -> id -> source
	version  map[string]int64
}

// Compile-time check that Store implements docstore.Client.
var _ docstore.Client = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		indexes: make(map[string]*index),
		aliases: make(map[string]map[string]bool),
		fail:    make(map[string]error),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Ops returns the mutating operations applied so far, in order, as
// "op target" strings.
func (s *Store) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ops))
	copy(out, s.ops)
	return out
}

// ResetOps clears the operation log.
func (s *Store) ResetOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

// FailNext makes the next call of op (e.g. "put_mapping") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

// Indexes returns the physical index names, sorted.
func (s *Store) Indexes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Documents returns a copy of the documents of docType in a physical index
// or alias, keyed by id.
func (s *Store) Documents(name, docType string) map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.resolve(name)
	if err != nil {
		return nil
	}
	out := make(map[string]map[string]any, len(idx.docs[docType]))
	for id, doc := range idx.docs[docType] {
		out[id] = deepCopy(doc).(map[string]any)
	}
	return out
}

// Closed reports whether the physical index is closed.
func (s *Store) Closed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	return ok && idx.closed
}

func (s *Store) record(op, target string) error {
	if err, ok := s.fail[op]; ok {
		delete(s.fail, op)
		return err
	}
	s.ops = append(s.ops, op+" "+target)
	return nil
}

func (s *Store) check(op string) error {
	if err, ok := s.fail[op]; ok {
		delete(s.fail, op)
		return err
	}
	return nil
}

// resolve maps a physical index or single-index alias to its index.
func (s *Store) resolve(name string) (*index, error) {
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	targets := s.aliases[name]
	switch len(targets) {
	case 0:
		return nil, notFound(docstore.TypeIndexNotFound, "no such index ["+name+"]")
	case 1:
		for phys := range targets {
			return s.indexes[phys], nil
		}
	}
	return nil, &docstore.Error{
		Status: http.StatusBadRequest,
		Type:   docstore.TypeIllegalArg,
		Reason: "alias [" + name + "] has more than one index associated with it",
	}
}

func (s *Store) resolveOpen(name string) (*index, error) {
	idx, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if idx.closed {
		return nil, &docstore.Error{Status: http.StatusForbidden, Type: docstore.TypeIndexClosed, Reason: "closed [" + idx.name + "]"}
	}
	return idx, nil
}

func notFound(typ, reason string) *docstore.Error {
	return &docstore.Error{Status: http.StatusNotFound, Type: typ, Reason: reason}
}

func badRequest(typ, reason string) *docstore.Error {
	return &docstore.Error{Status: http.StatusBadRequest, Type: typ, Reason: reason}
}

// --- Documents ---

func (s *Store) Get(_ context.Context, name, docType, id string) (*docstore.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get"); err != nil {
		return nil, err
	}
	idx, err := s.resolveOpen(name)
	if err != nil {
		return nil, err
	}
	doc, ok := idx.docs[docType][id]
	if !ok {
		return nil, notFound("", "document ["+id+"] not found")
	}
	return &docstore.Hit{
		Index:   idx.name,
		Type:    docType,
		ID:      id,
		Version: idx.version[docType+"/"+id],
		Found:   true,
		Source:  deepCopy(doc).(map[string]any),
	}, nil
}

func (s *Store) Index(_ context.Context, name, docType, id string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("index", name+"/"+docType+"/"+id); err != nil {
		return err
	}
	idx, err := s.resolveOpen(name)
	if err != nil {
		return err
	}
	if derr := idx.put(docType, id, doc); derr != nil {
		return derr
	}
	return nil
}

func (s *Store) Delete(_ context.Context, name, docType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete", name+"/"+docType+"/"+id); err != nil {
		return err
	}
	idx, err := s.resolveOpen(name)
	if err != nil {
		return err
	}
	if _, ok := idx.docs[docType][id]; !ok {
		return notFound("", "document ["+id+"] not found")
	}
	delete(idx.docs[docType], id)
	return nil
}

func (s *Store) Bulk(_ context.Context, name string, items []docstore.BulkItem) (*docstore.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("bulk", name); err != nil {
		return nil, err
	}
	idx, err := s.resolveOpen(name)
	if err != nil {
		return nil, err
	}
	res := &docstore.BulkResult{Items: make([]docstore.BulkItemResult, 0, len(items))}
	for _, it := range items {
		out := docstore.BulkItemResult{Action: it.Action, ID: it.ID, Status: http.StatusOK}
		switch it.Action {
		case docstore.ActionIndex:
			if derr := idx.put(it.Type, it.ID, it.Doc); derr != nil {
				out.Status, out.Err = derr.Status, derr
			} else {
				out.Status = http.StatusCreated
			}
		case docstore.ActionDelete:
			if _, ok := idx.docs[it.Type][it.ID]; ok {
				delete(idx.docs[it.Type], it.ID)
			} else {
				out.Status = http.StatusNotFound
			}
		default:
			derr := badRequest(docstore.TypeIllegalArg, "unknown bulk action ["+it.Action+"]")
			out.Status, out.Err = derr.Status, derr
		}
		res.Items = append(res.Items, out)
	}
	return res, nil
}

// put validates doc against the type's mapping and stores its JSON form.
func (idx *index) put(docType, id string, doc map[string]any) *docstore.Error {
	data, err := json.Marshal(doc)
	if err != nil {
		return badRequest(docstore.TypeMapperParsing, "failed to parse document: "+err.Error())
	}
	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		return badRequest(docstore.TypeMapperParsing, "failed to parse document: "+err.Error())
	}

	m, ok := idx.mappings[docType]
	if !ok {
		m = map[string]any{"properties": map[string]any{}}
		idx.mappings[docType] = m
	}
	if derr := checkStrict(docType, m, stored); derr != nil {
		return derr
	}

	if idx.docs[docType] == nil {
		idx.docs[docType] = make(map[string]map[string]any)
	}
	idx.docs[docType][id] = stored
	idx.version[docType+"/"+id]++
	return nil
}

// checkStrict rejects keys missing from a strict mapping, descending into
// nested and object properties.
func checkStrict(path string, m map[string]any, doc map[string]any) *docstore.Error {
	props, _ := m["properties"].(map[string]any)
	strict := m["dynamic"] == "strict"
	for key, v := range doc {
		sub, ok := props[key].(map[string]any)
		if !ok {
			if strict {
				return badRequest(docstore.TypeStrictMapping,
					"mapping set to strict, dynamic introduction of ["+key+"] within ["+path+"] is not allowed")
			}
			continue
		}
		if _, hasProps := sub["properties"]; !hasProps {
			continue
		}
		// Nested objects inherit strictness unless they override it.
		if _, ok := sub["dynamic"]; !ok && strict {
			sub = withDynamic(sub, "strict")
		}
		var children []map[string]any
		switch x := v.(type) {
		case map[string]any:
			children = append(children, x)
		case []any:
			for _, item := range x {
				if obj, ok := item.(map[string]any); ok {
					children = append(children, obj)
				}
			}
		}
		for _, child := range children {
			if derr := checkStrict(key, sub, child); derr != nil {
				return derr
			}
		}
	}
	return nil
}

func withDynamic(m map[string]any, dynamic string) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["dynamic"] = dynamic
	return out
}

// Search supports match_all, ids and term queries plus from/size paging.
func (s *Store) Search(_ context.Context, name string, docTypes []string, query map[string]any) (*docstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("search"); err != nil {
		return nil, err
	}

	var targets []*index
	if idx, ok := s.indexes[name]; ok {
		targets = append(targets, idx)
	} else if phys := s.aliases[name]; len(phys) > 0 {
		for _, p := range sortedKeys(phys) {
			targets = append(targets, s.indexes[p])
		}
	} else {
		return nil, notFound(docstore.TypeIndexNotFound, "no such index ["+name+"]")
	}

	match, err := matcher(query)
	if err != nil {
		return nil, err
	}

	var hits []docstore.Hit
	for _, idx := range targets {
		if idx.closed {
			return nil, &docstore.Error{Status: http.StatusForbidden, Type: docstore.TypeIndexClosed, Reason: "closed [" + idx.name + "]"}
		}
		types := docTypes
		if len(types) == 0 {
			types = sortedKeys(idx.docs)
		}
		for _, t := range types {
			ids := make([]string, 0, len(idx.docs[t]))
			for id := range idx.docs[t] {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
			for _, id := range ids {
				doc := idx.docs[t][id]
				if !match(id, doc) {
					continue
				}
				hits = append(hits, docstore.Hit{
					Index:   idx.name,
					Type:    t,
					ID:      id,
					Version: idx.version[t+"/"+id],
					Source:  deepCopy(doc).(map[string]any),
				})
			}
		}
	}

	from, size := intParam(query, "from", 0), intParam(query, "size", 10)
	total := int64(len(hits))
	if from > len(hits) {
		from = len(hits)
	}
	end := from + size
	if end > len(hits) {
		end = len(hits)
	}
	return &docstore.SearchResult{Total: total, Hits: hits[from:end]}, nil
}

func matcher(query map[string]any) (func(id string, doc map[string]any) bool, error) {
	q, _ := query["query"].(map[string]any)
	if len(q) == 0 {
		return func(string, map[string]any) bool { return true }, nil
	}
	if _, ok := q["match_all"]; ok {
		return func(string, map[string]any) bool { return true }, nil
	}
	if ids, ok := q["ids"].(map[string]any); ok {
		want := make(map[string]bool)
		values, _ := ids["values"].([]any)
		for _, v := range values {
			want[fmt.Sprint(v)] = true
		}
		if strs, ok := ids["values"].([]string); ok {
			for _, v := range strs {
				want[v] = true
			}
		}
		return func(id string, _ map[string]any) bool { return want[id] }, nil
	}
	if term, ok := q["term"].(map[string]any); ok && len(term) == 1 {
		for field, v := range term {
			if obj, ok := v.(map[string]any); ok {
				v = obj["value"]
			}
			want := fmt.Sprint(v)
			return func(_ string, doc map[string]any) bool {
				got, ok := doc[field]
				return ok && fmt.Sprint(got) == want
			}, nil
		}
	}
	return nil, badRequest("parsing_exception", "unsupported query")
}

func intParam(query map[string]any, key string, def int) int {
	switch v := query[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// --- Indexes ---

func (s *Store) CreateIndex(_ context.Context, name string, body map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create_index", name); err != nil {
		return err
	}
	if _, ok := s.indexes[name]; ok {
		return badRequest(docstore.TypeIndexExists, "index ["+name+"] already exists")
	}
	if _, ok := s.aliases[name]; ok {
		return badRequest("invalid_index_name_exception", "an alias with the name ["+name+"] already exists")
	}

	idx := &index{
		name:     name,
		settings: map[string]any{"number_of_shards": "5", "number_of_replicas": "1"},
		mappings: make(map[string]map[string]any),
		docs:     make(map[string]map[string]map[string]any),
		version:  make(map[string]int64),
	}
	if settings, ok := body["settings"].(map[string]any); ok {
		mergeInto(idx.settings, docstore.NormalizeSettings(settings))
	}
	if mappings, ok := body["mappings"].(map[string]any); ok {
		for docType, m := range mappings {
			mm, ok := m.(map[string]any)
			if !ok {
				return badRequest(docstore.TypeMapperParsing, "mapping ["+docType+"] is not an object")
			}
			idx.mappings[docType] = deepCopy(mm).(map[string]any)
		}
	}
	s.indexes[name] = idx
	return nil
}

func (s *Store) DeleteIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete_index", name); err != nil {
		return err
	}
	if _, ok := s.indexes[name]; !ok {
		return notFound(docstore.TypeIndexNotFound, "no such index ["+name+"]")
	}
	delete(s.indexes, name)
	for alias, phys := range s.aliases {
		delete(phys, name)
		if len(phys) == 0 {
			delete(s.aliases, alias)
		}
	}
	return nil
}

func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("index_exists"); err != nil {
		return false, err
	}
	_, isIndex := s.indexes[name]
	return isIndex || len(s.aliases[name]) > 0, nil
}

func (s *Store) CloseIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("close_index", name); err != nil {
		return err
	}
	idx, err := s.resolve(name)
	if err != nil {
		return err
	}
	idx.closed = true
	return nil
}

func (s *Store) OpenIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("open_index", name); err != nil {
		return err
	}
	idx, err := s.resolve(name)
	if err != nil {
		return err
	}
	idx.closed = false
	return nil
}

func (s *Store) Refresh(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("refresh"); err != nil {
		return err
	}
	_, err := s.resolveOpen(name)
	return err
}

// --- Settings and mappings ---

func (s *Store) GetSettings(_ context.Context, name string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get_settings"); err != nil {
		return nil, err
	}
	idx, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"index": deepCopy(idx.settings)}, nil
}

func (s *Store) PutSettings(_ context.Context, name string, settings map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("put_settings", name); err != nil {
		return err
	}
	idx, err := s.resolve(name)
	if err != nil {
		return err
	}
	flat := docstore.NormalizeSettings(settings)
	if _, ok := flat["number_of_shards"]; ok {
		return badRequest(docstore.TypeIllegalArg, "can't change the number of shards for an index")
	}
	if _, ok := flat["analysis"]; ok && !idx.closed {
		return badRequest(docstore.TypeIllegalArg,
			"Can't update non dynamic settings [[index.analysis]] for open indices ["+idx.name+"]")
	}
	mergeInto(idx.settings, flat)
	return nil
}

func (s *Store) GetMapping(_ context.Context, name, docType string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get_mapping"); err != nil {
		return nil, err
	}
	idx, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	m, ok := idx.mappings[docType]
	if !ok {
		return nil, nil
	}
	return deepCopy(m).(map[string]any), nil
}

func (s *Store) PutMapping(_ context.Context, name, docType string, body map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("put_mapping", name+"/"+docType); err != nil {
		return err
	}
	idx, err := s.resolveOpen(name)
	if err != nil {
		return err
	}

	live, ok := idx.mappings[docType]
	if !ok {
		idx.mappings[docType] = deepCopy(body).(map[string]any)
		return nil
	}
	merged := deepCopy(live).(map[string]any)
	liveProps, _ := merged["properties"].(map[string]any)
	if liveProps == nil {
		liveProps = make(map[string]any)
		merged["properties"] = liveProps
	}
	newProps, _ := body["properties"].(map[string]any)
	if conflicts := mergeProperties(liveProps, newProps, ""); len(conflicts) > 0 {
		return badRequest(docstore.TypeIllegalArg, "Merge failed with failures {["+strings.Join(conflicts, ", ")+"]}")
	}
	if dyn, ok := body["dynamic"]; ok {
		merged["dynamic"] = dyn
	}
	idx.mappings[docType] = merged
	return nil
}

// mergeProperties adds incoming properties to live, returning the fields
// whose definition cannot change in place.
func mergeProperties(live, incoming map[string]any, prefix string) []string {
	var conflicts []string
	for _, name := range sortedKeys(incoming) {
		in, _ := incoming[name].(map[string]any)
		cur, ok := live[name].(map[string]any)
		if !ok {
			live[name] = deepCopy(in)
			continue
		}
		path := prefix + name
		curType, inType := typeOf(cur), typeOf(in)
		if curType != inType {
			conflicts = append(conflicts, fmt.Sprintf("mapper [%s] of different type, current_type [%s], merged_type [%s]", path, curType, inType))
			continue
		}
		for _, attr := range []string{"index", "analyzer", "format"} {
			if fmt.Sprint(cur[attr]) != fmt.Sprint(in[attr]) && in[attr] != nil {
				conflicts = append(conflicts, fmt.Sprintf("mapper [%s] has different [%s] values", path, attr))
			}
		}
		if inProps, ok := in["properties"].(map[string]any); ok {
			curProps, _ := cur["properties"].(map[string]any)
			if curProps == nil {
				curProps = make(map[string]any)
				cur["properties"] = curProps
			}
			conflicts = append(conflicts, mergeProperties(curProps, inProps, path+".")...)
		}
		if inFields, ok := in["fields"].(map[string]any); ok {
			curFields, _ := cur["fields"].(map[string]any)
			if curFields == nil {
				curFields = make(map[string]any)
				cur["fields"] = curFields
			}
			conflicts = append(conflicts, mergeProperties(curFields, inFields, path+".")...)
		}
	}
	return conflicts
}

func typeOf(p map[string]any) string {
	if t, ok := p["type"].(string); ok {
		return t
	}
	if _, ok := p["properties"]; ok {
		return "object"
	}
	return ""
}

// --- Aliases ---

func (s *Store) GetAlias(_ context.Context, alias string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get_alias"); err != nil {
		return nil, err
	}
	phys := s.aliases[alias]
	if len(phys) == 0 {
		return nil, notFound("aliases_not_found_exception", "alias ["+alias+"] missing")
	}
	return sortedKeys(phys), nil
}

func (s *Store) AliasExists(_ context.Context, alias string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("alias_exists"); err != nil {
		return false, err
	}
	return len(s.aliases[alias]) > 0, nil
}

func (s *Store) UpdateAliases(_ context.Context, actions []docstore.AliasAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var targets []string
	for _, a := range actions {
		switch {
		case a.Add != nil:
			targets = append(targets, "+"+a.Add.Alias+"->"+a.Add.Index)
		case a.Remove != nil:
			targets = append(targets, "-"+a.Remove.Alias+"->"+a.Remove.Index)
		}
	}
	if err := s.record("update_aliases", strings.Join(targets, ",")); err != nil {
		return err
	}

	// Validate everything first so the update applies atomically.
	for _, a := range actions {
		switch {
		case a.Add != nil:
			if _, ok := s.indexes[a.Add.Index]; !ok {
				return notFound(docstore.TypeIndexNotFound, "no such index ["+a.Add.Index+"]")
			}
			if _, ok := s.indexes[a.Add.Alias]; ok {
				return badRequest("invalid_alias_name_exception", "an index exists with the same name as the alias ["+a.Add.Alias+"]")
			}
		case a.Remove != nil:
			if !s.aliases[a.Remove.Alias][a.Remove.Index] {
				return notFound("aliases_not_found_exception", "aliases ["+a.Remove.Alias+"] missing on ["+a.Remove.Index+"]")
			}
		default:
			return badRequest(docstore.TypeIllegalArg, "alias action requires add or remove")
		}
	}
	for _, a := range actions {
		if a.Add != nil {
			if s.aliases[a.Add.Alias] == nil {
				s.aliases[a.Add.Alias] = make(map[string]bool)
			}
			s.aliases[a.Add.Alias][a.Add.Index] = true
			continue
		}
		delete(s.aliases[a.Remove.Alias], a.Remove.Index)
		if len(s.aliases[a.Remove.Alias]) == 0 {
			delete(s.aliases, a.Remove.Alias)
		}
	}
	return nil
}

// --- Helpers ---

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				mergeInto(cur, sub)
				continue
			}
			dst[k] = deepCopy(sub)
			continue
		}
		dst[k] = v
	}
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
