package queryhelper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectTypenameAddsToEverySelectionSet(t *testing.T) {
	q := "{ product(id: 1) { title price } }"
	got := InjectTypename(q)
	assert.Contains(t, got, "__typename")
	// every opening brace gets one, so two selection sets get two injections
	assert.Equal(t, 2, countOccurrences(got, "__typename"))
}

func TestInjectTypenameIsIdempotent(t *testing.T) {
	once := InjectTypename("{ product { title } }")
	twice := InjectTypename(once)
	assert.Equal(t, once, twice)
}

func TestUnwrapRootFieldSingleKey(t *testing.T) {
	got := UnwrapRootField(map[string]interface{}{"product": map[string]interface{}{"title": "A"}})
	assert.Equal(t, map[string]interface{}{"title": "A"}, got)
}

func TestUnwrapRootFieldMultiKeyLeftAsIs(t *testing.T) {
	data := map[string]interface{}{"a": 1, "b": 2}
	got := UnwrapRootField(data)
	assert.Equal(t, data, got)
}

func TestRelinkResolvesRefs(t *testing.T) {
	entities := map[string]interface{}{
		"Product:1": map[string]interface{}{"title": "Widget", "maker": map[string]interface{}{"$ref": "Vendor:1"}},
		"Vendor:1":  map[string]interface{}{"name": "Acme"},
	}
	data := map[string]interface{}{"$ref": "Product:1"}

	got := Relink(data, entities)
	product := got.(map[string]interface{})
	assert.Equal(t, "Widget", product["title"])
	maker := product["maker"].(map[string]interface{})
	assert.Equal(t, "Acme", maker["name"])
}

func TestRelinkHandlesCycles(t *testing.T) {
	entities := map[string]interface{}{
		"A": map[string]interface{}{"next": map[string]interface{}{"$ref": "B"}},
		"B": map[string]interface{}{"next": map[string]interface{}{"$ref": "A"}},
	}
	got := Relink(map[string]interface{}{"$ref": "A"}, entities)
	a := got.(map[string]interface{})
	b := a["next"].(map[string]interface{})
	// the cycle back to A is left as an unresolved ref rather than looping
	assert.Contains(t, b["next"], "$ref")
}

func TestQuerySuccessUnwrapsRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"product":{"title":"A","__typename":"Product"}}}`))
	}))
	defer srv.Close()

	err, data := Query(context.Background(), nil, srv.URL, "{ product { title } }", nil)
	require.Nil(t, err)
	m := data.(map[string]interface{})
	assert.Equal(t, "A", m["title"])
}

func TestQueryGraphQLErrorCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"field not found"}]}`))
	}))
	defer srv.Close()

	err, data := Query(context.Background(), nil, srv.URL, "{ product { title } }", nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorGraphQL, err.Category)
	assert.Nil(t, data)
}

func TestQueryNetworkErrorCategoryOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err, _ := Query(context.Background(), nil, srv.URL, "{ product { title } }", nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorNetwork, err.Category)
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}
