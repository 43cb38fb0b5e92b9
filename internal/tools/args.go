package tools

import "github.com/clawdesk/clawbench/internal/errs"

func argString(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok {
		if required {
			return "", errs.Newf(errs.Validation, "missing required argument %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.Newf(errs.Validation, "argument %q must be a string", key)
	}
	return s, nil
}

func argBool(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func argInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func argStringSlice(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, errs.Newf(errs.Validation, "missing required argument %q", key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, errs.Newf(errs.Validation, "argument %q must be an array", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errs.Newf(errs.Validation, "argument %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
