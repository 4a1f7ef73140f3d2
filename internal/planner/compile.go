package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"relayloader/internal/model"
)

// Compile translates field arguments and requested field names into
// QueryOptions. It returns nil when args is nil; callers fall back to Defaults.
//
// Recognized keys:
//   - limit, offset: page size
//   - skip, index: start row
//   - order, orderBy: sort field, "reverse:" prefix for descending
//   - any model attribute: equality (or IN, or Predicate) filter
//
// Other keys are ignored so that relay and custom arguments can share the map.
func Compile(args map[string]interface{}, requested []string, m *model.Model, cfg CompileConfig) (*QueryOptions, error) {
	if args == nil {
		return nil, nil
	}
	opts := Defaults(requested, m, CompileConfig{})
	opts.Limit = 0

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := args[key]
		switch key {
		case "limit", "offset":
			n, err := toNonNegativeInt(key, value)
			if err != nil {
				return nil, err
			}
			opts.Limit = n
		case "skip", "index":
			n, err := toNonNegativeInt(key, value)
			if err != nil {
				return nil, err
			}
			opts.Index = n
		case "order", "orderBy":
			s, ok := value.(string)
			if !ok {
				// Structured orderBy values (connection enums) are handled by
				// the connection adapter.
				continue
			}
			order, err := ParseOrder(s)
			if err != nil {
				return nil, err
			}
			if !m.HasAttribute(order.Field) {
				return nil, fmt.Errorf("unknown order field %q on %s", order.Field, m.Name)
			}
			opts.OrderBy = order
		default:
			if m.HasAttribute(key) {
				WithFilter(key, value)(opts)
			}
		}
	}

	opts.Limit = cfg.ClampLimit(opts.Limit)
	opts.Window()
	return opts, nil
}

// Defaults returns the options used when a field has no arguments: the
// requested projection and a full window.
func Defaults(requested []string, m *model.Model, cfg CompileConfig) *QueryOptions {
	opts := &QueryOptions{
		Attributes: ProjectAttributes(requested, m),
		Limit:      cfg.window(),
	}
	opts.Window()
	return opts
}

// ProjectAttributes keeps the requested names that are storage attributes of
// m, with the primary key first.
func ProjectAttributes(requested []string, m *model.Model) []string {
	attrs := []string{m.PrimaryKey}
	for _, name := range requested {
		if m.HasAttribute(name) {
			attrs = AddAttributes(attrs, name)
		}
	}
	return attrs
}

func toNonNegativeInt(key string, value interface{}) (int, error) {
	var n int
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be non-negative", key)
	}
	return n, nil
}
