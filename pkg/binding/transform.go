package binding

import "sort"

// IsObjectOfLists reports whether v is a non-empty object whose values are all arrays
// of the same length.
func IsObjectOfLists(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return false
	}
	length := -1
	for _, val := range m {
		items, ok := asSlice(val)
		if !ok {
			return false
		}
		if length >= 0 && len(items) != length {
			return false
		}
		length = len(items)
	}
	return true
}

// ObjectOfListsToListOfObjects turns column data into rows. The row count is taken from
// the first column in key order; shorter columns leave nil cells.
func ObjectOfListsToListOfObjects(m map[string]any) []map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	columns := make(map[string][]any, len(keys))
	for _, k := range keys {
		items, _ := asSlice(m[k])
		columns[k] = items
	}

	length := 0
	if len(keys) > 0 {
		length = len(columns[keys[0]])
	}

	rows := make([]map[string]any, 0, length)
	for i := 0; i < length; i++ {
		row := make(map[string]any, len(keys))
		for _, k := range keys {
			col := columns[k]
			if i < len(col) {
				row[k] = col[i]
			} else {
				row[k] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}
