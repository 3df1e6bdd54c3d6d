package devapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

type queryRequest struct {
	Query   map[string]any `json:"query"`
	Options struct {
		SortBy map[string]int `json:"sortBy"`
	} `json:"options"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	limit := intParam(r, "limit", 10)
	page := intParam(r, "page", 1)

	s.mu.Lock()
	docs, ok := s.collections[collection]
	docs = append([]Document(nil), docs...)
	s.mu.Unlock()
	if !ok && collection != CollectionAsset && collection != CollectionDriver &&
		collection != CollectionGeodata && collection != CollectionForm {
		writeError(w, "Unknown collection", http.StatusNotFound)
		return
	}

	matched := make([]Document, 0, len(docs))
	for _, d := range docs {
		ok, err := matches(d, req.Query)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if ok {
			matched = append(matched, d)
		}
	}
	sortDocuments(matched, req.Options.SortBy)

	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  matched[start:end],
		"total":   len(matched),
	})
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// lookup resolves a dotted path inside nested documents.
func lookup(doc Document, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// matches evaluates the subset of the query language used by the client:
// equality, {$regex, $options} and $or.
func matches(doc Document, query map[string]any) (bool, error) {
	for key, cond := range query {
		if key == "$or" {
			clauses, ok := cond.([]any)
			if !ok {
				return false, fmt.Errorf("$or expects an array")
			}
			hit := false
			for _, c := range clauses {
				clause, ok := c.(map[string]any)
				if !ok {
					return false, fmt.Errorf("$or clause must be an object")
				}
				m, err := matches(doc, clause)
				if err != nil {
					return false, err
				}
				if m {
					hit = true
					break
				}
			}
			if !hit {
				return false, nil
			}
			continue
		}
		value, _ := lookup(doc, key)
		if op, ok := cond.(map[string]any); ok {
			if pattern, ok := op["$regex"].(string); ok {
				flags, _ := op["$options"].(string)
				if strings.Contains(flags, "i") {
					pattern = "(?i)" + pattern
				}
				re, err := regexp.Compile(pattern)
				if err != nil {
					return false, fmt.Errorf("invalid $regex: %w", err)
				}
				if !re.MatchString(fmt.Sprint(value)) {
					return false, nil
				}
				continue
			}
		}
		if fmt.Sprint(value) != fmt.Sprint(cond) {
			return false, nil
		}
	}
	return true, nil
}

// sortDocuments orders by the first sortBy field; -1 is descending.
func sortDocuments(docs []Document, sortBy map[string]int) {
	for field, dir := range sortBy {
		sort.SliceStable(docs, func(i, j int) bool {
			a, _ := lookup(docs[i], field)
			b, _ := lookup(docs[j], field)
			if dir < 0 {
				return fmt.Sprint(a) > fmt.Sprint(b)
			}
			return fmt.Sprint(a) < fmt.Sprint(b)
		})
		return
	}
}

func (s *Server) handleFormData(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var probe struct {
		FormID string `json:"_form_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, "Body must be an object", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.submissions = append(s.submissions, body)
	n := len(s.submissions)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "result": map[string]any{"_id": fmt.Sprintf("fd-%d", n)}})
}

func (s *Server) handleListFormData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": s.Submissions()})
}
