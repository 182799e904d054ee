package event

// Message is a log message, grouped by its unformatted template.
type Message struct {
	path      string
	Message   string
	Formatted string
}

func (m *Message) Kind() Kind   { return KindMessage }
func (m *Message) Path() string { return m.path }

func (m *Message) Hash(HashOptions) []string {
	if m.Message != "" {
		return []string{m.Message}
	}
	if m.Formatted != "" {
		return []string{m.Formatted}
	}
	return nil
}

// parseMessage accepts a legacy top-level string or a log entry object.
func parseMessage(path string, raw any) (*Message, error) {
	switch t := raw.(type) {
	case string:
		return &Message{path: path, Message: t}, nil
	case map[string]any:
		return &Message{
			path:      path,
			Message:   stringField(t, "message"),
			Formatted: stringField(t, "formatted"),
		}, nil
	default:
		return nil, invalidSection(path, "expected a string or an object")
	}
}

// Template is a rendering error inside a template file.
type Template struct {
	path        string
	Filename    string
	ContextLine string
}

func (t *Template) Kind() Kind   { return KindTemplate }
func (t *Template) Path() string { return t.path }

func (t *Template) Hash(HashOptions) []string {
	if t.Filename == "" || t.ContextLine == "" {
		return nil
	}
	return []string{t.Filename, t.ContextLine}
}
