package event

// SingleException is one exception value, optionally with its own stacktrace.
type SingleException struct {
	path       string
	Type       string
	Value      string
	Module     string
	Stacktrace *Stacktrace
}

func (e *SingleException) Kind() Kind   { return KindSingleException }
func (e *SingleException) Path() string { return e.path }

// Hash prefers the stacktrace followed by the exception type. Without a
// usable stacktrace the type and value are used.
func (e *SingleException) Hash(opts HashOptions) []string {
	var out []string
	if e.Stacktrace != nil {
		out = e.Stacktrace.Hash(opts)
		if len(out) > 0 && e.Type != "" {
			out = append(out, e.Type)
		}
	}
	if len(out) == 0 {
		for _, s := range []string{e.Type, e.Value} {
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Exception is a chain of exception values, innermost cause first.
type Exception struct {
	path   string
	Values []*SingleException
}

func (e *Exception) Kind() Kind   { return KindException }
func (e *Exception) Path() string { return e.path }

// Hash always prefers stacktraces over values: if any value in the chain
// has a hashable stacktrace, only stacktrace-bearing values contribute.
func (e *Exception) Hash(opts HashOptions) []string {
	var out []string
	for _, v := range e.Values {
		if v.Stacktrace == nil {
			continue
		}
		if tokens := v.Stacktrace.Hash(opts); len(tokens) > 0 {
			out = append(out, tokens...)
			if v.Type != "" {
				out = append(out, v.Type)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, v := range e.Values {
		out = append(out, v.Hash(opts)...)
	}
	return out
}

// parseException accepts the aggregate form {"values": [...]}, a bare list
// of values, or a single exception object.
func parseException(path string, raw any) (Capability, error) {
	switch t := raw.(type) {
	case []any:
		return parseExceptionValues(path, t)
	case map[string]any:
		if values, ok := t["values"]; ok {
			if values == nil {
				return &Exception{path: path}, nil
			}
			list, ok := values.([]any)
			if !ok {
				return nil, invalidSection(path, "values must be a list")
			}
			return parseExceptionValues(path, list)
		}
		return parseSingleException(path, t)
	default:
		return nil, invalidSection(path, "expected an object or a list")
	}
}

func parseExceptionValues(path string, list []any) (*Exception, error) {
	exc := &Exception{path: path, Values: make([]*SingleException, 0, len(list))}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		v, err := parseSingleException(path, m)
		if err != nil {
			return nil, err
		}
		exc.Values = append(exc.Values, v)
	}
	return exc, nil
}

func parseSingleException(path string, m map[string]any) (*SingleException, error) {
	e := &SingleException{
		path:   path,
		Type:   stringField(m, "type"),
		Value:  stringField(m, "value"),
		Module: stringField(m, "module"),
	}
	if raw, ok := m["stacktrace"]; ok && raw != nil {
		sm, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidSection(path, "stacktrace must be an object")
		}
		st, err := parseStacktrace(path, sm)
		if err != nil {
			return nil, err
		}
		e.Stacktrace = st
	}
	return e, nil
}
