package routing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/codec"
)

// Kind is the declared type of an action parameter.
type Kind uint8

const (
	// KindRequest receives the whole *api.Request.
	KindRequest Kind = iota + 1
	// KindBody receives the request body decoded with the codec.
	KindBody
	KindString
	KindStrings
	KindInt
	KindInt64
	KindBool
	KindFloat64
)

var kindNames = [...]string{
	KindRequest: "request",
	KindBody:    "body",
	KindString:  "string",
	KindStrings: "[]string",
	KindInt:     "int",
	KindInt64:   "int64",
	KindBool:    "bool",
	KindFloat64: "float64",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) primitive() bool {
	return k >= KindString && k <= KindFloat64
}

// Param declares one action parameter.
type Param struct {
	Name     string
	Kind     Kind
	Nullable bool

	// Default is used when the querystring value is missing or malformed.
	// Only meaningful when HasDefault is set.
	Default    any
	HasDefault bool

	// New returns a pointer for KindBody parameters to decode into.
	New func() any
}

// RequestParam declares a parameter bound to the whole request.
func RequestParam(name string) Param {
	return Param{Name: name, Kind: KindRequest}
}

// BodyParam declares a parameter decoded from the request body into the
// value returned by newFn, which must be a pointer.
func BodyParam(name string, newFn func() any) Param {
	return Param{Name: name, Kind: KindBody, New: newFn}
}

// QueryParam declares a querystring parameter.
func QueryParam(name string, kind Kind) Param {
	return Param{Name: name, Kind: kind}
}

// WithDefault returns a copy of p with a default value. A nil default
// makes the parameter nullable.
func (p Param) WithDefault(v any) Param {
	p.Default = v
	p.HasDefault = true
	if v == nil {
		p.Nullable = true
	}
	return p
}

// Optional returns a copy of p that binds to null when missing or malformed.
func (p Param) Optional() Param {
	return p.WithDefault(nil)
}

func (p Param) signature() string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteByte(' ')
	b.WriteString(p.Kind.String())
	if p.Nullable {
		b.WriteByte('?')
	}
	if p.HasDefault {
		fmt.Fprintf(&b, "=%v", p.Default)
	}
	return b.String()
}

// BindError is a missing or malformed querystring parameter. It is
// answered with a 400 and the action is not invoked.
type BindError struct {
	Param string
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return "Invalid or missing parameter: " + e.Param
}

// Response renders the 400 answer for the failed parameter.
func (e *BindError) Response() *api.Response {
	return api.Text(e.Error(), api.StatusBadRequest)
}

type strategy uint8

const (
	bindNone strategy = iota
	bindWholeRequest
	bindBody
	bindQuery
)

// binding is the per-action parameter plan, fixed at build time.
type binding struct {
	strategy strategy
	params   []Param
	index    map[string]int
}

func compileBinding(params []Param) (*binding, error) {
	b := &binding{params: params, index: make(map[string]int, len(params))}
	for i, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter %d has no name", i)
		}
		if _, dup := b.index[p.Name]; dup {
			return nil, fmt.Errorf("parameter %q declared twice", p.Name)
		}
		b.index[p.Name] = i
	}

	switch {
	case len(params) == 0:
		b.strategy = bindNone
	case len(params) == 1 && params[0].Kind == KindRequest:
		b.strategy = bindWholeRequest
	case len(params) == 1 && params[0].Kind == KindBody:
		if params[0].New == nil {
			return nil, fmt.Errorf("body parameter %q has no New", params[0].Name)
		}
		b.strategy = bindBody
	default:
		for _, p := range params {
			if !p.Kind.primitive() {
				return nil, fmt.Errorf("parameter %q of kind %s must be the only parameter", p.Name, p.Kind)
			}
			if err := checkDefault(p); err != nil {
				return nil, err
			}
		}
		b.strategy = bindQuery
	}
	return b, nil
}

func checkDefault(p Param) error {
	if !p.HasDefault || p.Default == nil {
		return nil
	}
	var ok bool
	switch p.Kind {
	case KindString:
		_, ok = p.Default.(string)
	case KindStrings:
		_, ok = p.Default.([]string)
	case KindInt:
		_, ok = p.Default.(int)
	case KindInt64:
		_, ok = p.Default.(int64)
	case KindBool:
		_, ok = p.Default.(bool)
	case KindFloat64:
		_, ok = p.Default.(float64)
	}
	if !ok {
		return fmt.Errorf("default %v (%T) does not match parameter %q of kind %s", p.Default, p.Default, p.Name, p.Kind)
	}
	return nil
}

// binder applies bindings using the dispatcher's codec.
type binder struct {
	codec codec.Codec
}

func (b binder) bind(bd *binding, req *api.Request) (*Args, error) {
	args := &Args{binding: bd, values: make([]any, len(bd.params))}

	switch bd.strategy {
	case bindWholeRequest:
		args.values[0] = req
	case bindBody:
		v := bd.params[0].New()
		if err := b.codec.Unmarshal(req.Body, v); err != nil {
			return nil, fmt.Errorf("failed to decode body parameter %q: %w", bd.params[0].Name, err)
		}
		args.values[0] = v
	case bindQuery:
		q := req.QueryValues()
		for i, p := range bd.params {
			v, err := parsePrimitive(p.Kind, q[p.Name])
			if err != nil {
				if !p.HasDefault {
					return nil, &BindError{Param: p.Name}
				}
				v = p.Default
			}
			args.values[i] = v
		}
	}
	return args, nil
}

var errMissing = errors.New("missing")

func parsePrimitive(kind Kind, values []string) (any, error) {
	if len(values) == 0 {
		return nil, errMissing
	}
	s := values[0]
	switch kind {
	case KindString:
		return s, nil
	case KindStrings:
		return values, nil
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 32)
		return int(n), err
	case KindInt64:
		return strconv.ParseInt(s, 10, 64)
	case KindBool:
		switch {
		case strings.EqualFold(s, "true"):
			return true, nil
		case strings.EqualFold(s, "false"):
			return false, nil
		}
		return nil, fmt.Errorf("invalid bool %q", s)
	case KindFloat64:
		return strconv.ParseFloat(s, 64)
	}
	return nil, fmt.Errorf("unsupported kind %s", kind)
}

// Args holds the bound parameter values of one invocation. Typed getters
// return the zero value for null or differently typed parameters.
type Args struct {
	binding  *binding
	values   []any
	instance any
}

// Value returns the bound value of the named parameter.
func (a *Args) Value(name string) any {
	i, ok := a.binding.index[name]
	if !ok {
		return nil
	}
	return a.values[i]
}

// IsNull reports whether the named parameter bound to null.
func (a *Args) IsNull(name string) bool {
	return a.Value(name) == nil
}

// Instance returns the per-request controller instance, if any.
func (a *Args) Instance() any {
	return a.instance
}

// Request returns the whole-request parameter.
func (a *Args) Request() *api.Request {
	if len(a.values) == 0 {
		return nil
	}
	r, _ := a.values[0].(*api.Request)
	return r
}

// Body returns the decoded body parameter.
func (a *Args) Body() any {
	if a.binding.strategy != bindBody {
		return nil
	}
	return a.values[0]
}

// String returns a string parameter.
func (a *Args) String(name string) string {
	v, _ := a.Value(name).(string)
	return v
}

// Strings returns a string-array parameter.
func (a *Args) Strings(name string) []string {
	v, _ := a.Value(name).([]string)
	return v
}

// Int returns an int parameter.
func (a *Args) Int(name string) int {
	v, _ := a.Value(name).(int)
	return v
}

// Int64 returns an int64 parameter.
func (a *Args) Int64(name string) int64 {
	v, _ := a.Value(name).(int64)
	return v
}

// Bool returns a bool parameter.
func (a *Args) Bool(name string) bool {
	v, _ := a.Value(name).(bool)
	return v
}

// Float64 returns a float64 parameter.
func (a *Args) Float64(name string) float64 {
	v, _ := a.Value(name).(float64)
	return v
}
