package registry

// Arguments holds bound, shape-checked argument values keyed by parameter name.
// Values are in the canonical forms produced by semtype.Normalize, so accessors
// never need to guess: a missing or differently shaped value yields the zero value.
type Arguments struct {
	values map[string]any
}

// NewArguments wraps already-normalized values. The map is owned by the returned Arguments.
func NewArguments(values map[string]any) *Arguments {
	if values == nil {
		values = map[string]any{}
	}
	return &Arguments{values: values}
}

// Value returns the raw bound value.
func (a *Arguments) Value(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Len returns the number of bound values.
func (a *Arguments) Len() int {
	return len(a.values)
}

// Map returns a shallow copy of the bound values.
func (a *Arguments) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

func (a *Arguments) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

func (a *Arguments) Strings(name string) []string {
	s, _ := a.values[name].([]string)
	return s
}

func (a *Arguments) Int64(name string) int64 {
	n, _ := a.values[name].(int64)
	return n
}

func (a *Arguments) Int(name string) int {
	return int(a.Int64(name))
}

func (a *Arguments) Bool(name string) bool {
	b, _ := a.values[name].(bool)
	return b
}

func (a *Arguments) Bytes(name string) []byte {
	b, _ := a.values[name].([]byte)
	return b
}

func (a *Arguments) Dict(name string) map[string]any {
	m, _ := a.values[name].(map[string]any)
	return m
}
