package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"relayloader/internal/model"
)

func TestMatchFilter(t *testing.T) {
	row := model.Row{
		"id":        int64(3),
		"title":     []byte("Write docs"),
		"completed": false,
		"due":       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"note":      nil,
	}

	tests := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"empty filter", nil, true},
		{"equality across int types", map[string]interface{}{"id": 3}, true},
		{"bytes equal string", map[string]interface{}{"title": "Write docs"}, true},
		{"slice means in", map[string]interface{}{"id": []int{1, 3}}, true},
		{"slice miss", map[string]interface{}{"id": []int{1, 2}}, false},
		{"nil matches null", map[string]interface{}{"note": nil}, true},
		{"nil misses value", map[string]interface{}{"id": nil}, false},
		{"not equal", map[string]interface{}{"completed": NotEq(true)}, true},
		{"greater than", map[string]interface{}{"id": Gt(2)}, true},
		{"less or equal", map[string]interface{}{"id": Lte(2)}, false},
		{"time range", map[string]interface{}{"due": Lt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))}, true},
		{"like prefix", map[string]interface{}{"title": Like("Write%")}, true},
		{"like single char", map[string]interface{}{"title": Like("Writ_ docs")}, true},
		{"like escapes regexp", map[string]interface{}{"title": Like("Write.docs")}, false},
		{"is not null", map[string]interface{}{"note": IsNull(false)}, false},
		{"all must match", map[string]interface{}{"id": 3, "completed": true}, false},
		{"text ignores case", map[string]interface{}{"title": "WRITE DOCS"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchFilter(row, tt.filter))
		})
	}
}

func TestMatchFilter_ScannedColumnTypes(t *testing.T) {
	// values as the MySQL driver scans them
	row := model.Row{
		"completed": int64(1),
		"archived":  []byte("0"),
		"status":    []byte("done"),
		"price":     []byte("12.50"),
	}

	tests := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"tinyint true", map[string]interface{}{"completed": true}, true},
		{"tinyint false", map[string]interface{}{"completed": false}, false},
		{"text tinyint false", map[string]interface{}{"archived": false}, true},
		{"collation case", map[string]interface{}{"status": "DONE"}, true},
		{"collation miss", map[string]interface{}{"status": "todo"}, false},
		{"decimal text", map[string]interface{}{"price": 12.5}, true},
		{"decimal text in", map[string]interface{}{"price": []interface{}{1.0, 12.5}}, true},
		{"decimal text range", map[string]interface{}{"price": Gt(10)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchFilter(row, tt.filter))
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name   string
		a, b   interface{}
		want   int
		wantOK bool
	}{
		{"nil first", nil, 1, -1, true},
		{"int types", int64(2), 3, -1, true},
		{"bool against int", true, int64(1), 0, true},
		{"int against bool", int64(0), true, -1, true},
		{"numeric text against number", "12.50", 12.5, 0, true},
		{"bytes against number", []byte("3"), 2, 1, true},
		{"text stays text", "10", "9", -1, true},
		{"bools", false, true, -1, true},
		{"bool against word", true, "yes", 0, false},
		{"number against word", 1, "abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CompareValues(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSortRows(t *testing.T) {
	rows := []model.Row{
		{"id": 1, "title": "b"},
		{"id": 2, "title": "c"},
		{"id": 3, "title": "a"},
	}

	SortRows(rows, &OrderBy{Field: "title", Direction: Desc})
	assert.Equal(t, []interface{}{2, 1, 3}, []interface{}{rows[0]["id"], rows[1]["id"], rows[2]["id"]})

	SortRows(rows, &OrderBy{Field: "title", Direction: Asc})
	assert.Equal(t, []interface{}{3, 1, 2}, []interface{}{rows[0]["id"], rows[1]["id"], rows[2]["id"]})
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "7", KeyString(int64(7)))
	assert.Equal(t, "7", KeyString(7))
	assert.Equal(t, "7", KeyString(float64(7)))
	assert.Equal(t, "7.5", KeyString(7.5))
	assert.Equal(t, "abc", KeyString([]byte("abc")))
	assert.Equal(t, "", KeyString(nil))
}
