package udf

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapgrid/pkg/formula"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// ReservedNamespaces cannot be claimed by scripts. The functions
// listing groups the built-in set under "builtin".
var ReservedNamespaces = []string{"builtin"}

// Registry holds loaded script modules and resolves namespaced formula
// functions. It implements formula.Resolver. All methods are safe for
// concurrent use; hot reload swaps the module set while evaluations are
// running.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*LoadedModule
	threads *ThreadPool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]*LoadedModule),
		threads: NewThreadPool(0),
	}
}

// LoadAndRegister loads all scripts from dir into a fresh registry.
func LoadAndRegister(dir string) (*Registry, error) {
	modules, err := NewLoader(dir).Load()
	if err != nil {
		return nil, err
	}
	registry := NewRegistry()
	if err := registry.RegisterAll(modules); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register adds a module. Reserved and duplicate namespaces are
// rejected.
func (r *Registry) Register(module *LoadedModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkNamespace(module.Namespace, r.modules); err != nil {
		return err
	}
	r.modules[module.Namespace] = module
	return nil
}

// RegisterAll registers modules in order, stopping at the first error.
func (r *Registry) RegisterAll(modules []*LoadedModule) error {
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Replace swaps the entire module set, as a hot reload does. The new
// set is validated first; on error the previous set stays in place.
func (r *Registry) Replace(modules []*LoadedModule) error {
	next := make(map[string]*LoadedModule, len(modules))
	for _, m := range modules {
		if err := checkNamespace(m.Namespace, next); err != nil {
			return err
		}
		next[m.Namespace] = m
	}
	r.mu.Lock()
	r.modules = next
	r.mu.Unlock()
	return nil
}

// Reload loads dir and replaces the module set, keeping the old set on
// any load error.
func (r *Registry) Reload(dir string) error {
	modules, err := NewLoader(dir).Load()
	if err != nil {
		return err
	}
	return r.Replace(modules)
}

func checkNamespace(ns string, existing map[string]*LoadedModule) error {
	for _, reserved := range ReservedNamespaces {
		if ns == reserved {
			return &RegistryError{Namespace: ns, Message: "namespace is reserved"}
		}
	}
	if _, ok := existing[ns]; ok {
		return &RegistryError{Namespace: ns, Message: "namespace already registered"}
	}
	return nil
}

// Has reports whether a namespace is registered.
func (r *Registry) Has(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[namespace]
	return ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Get returns the module for a namespace, nil when absent.
func (r *Registry) Get(namespace string) *LoadedModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[namespace]
}

// Namespaces returns the registered namespaces, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for ns := range r.modules {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Modules returns all registered modules sorted by namespace, for the
// functions listing.
func (r *Registry) Modules() []*LoadedModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LoadedModule, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

// Resolve implements formula.Resolver. Names are namespace.function,
// matched case-sensitively: Starlark identifiers are case-sensitive, so
// the formula spelling must match the script's.
func (r *Registry) Resolve(name string) (*formula.Func, bool) {
	ns, fnName, found := strings.Cut(name, ".")
	if !found {
		return nil, false
	}
	module := r.Get(ns)
	if module == nil {
		return nil, false
	}
	export, ok := module.Exports[fnName]
	if !ok {
		return nil, false
	}
	callable, ok := export.(starlark.Callable)
	if !ok {
		return nil, false
	}

	doc := ""
	for _, f := range module.Functions {
		if f.Name == fnName {
			doc = f.Docstring
			break
		}
	}
	return r.wrap(name, doc, callable), true
}

// wrap adapts a Starlark callable to the evaluator's function shape.
// Arity is left to Starlark itself; a mismatch surfaces as a #VALUE
// outcome like any other script failure.
func (r *Registry) wrap(fullName, doc string, fn starlark.Callable) *formula.Func {
	return &formula.Func{
		Name:    fullName,
		Doc:     doc,
		MinArgs: 0,
		MaxArgs: -1,
		Call: func(_ *formula.CallCtx, args []value.Value) value.Value {
			tuple := make(starlark.Tuple, len(args))
			for i, a := range args {
				sv, err := toStarlark(a)
				if err != nil {
					return value.Errorf(value.ErrCodeType, "%s argument %d: %v", fullName, i+1, err)
				}
				tuple[i] = sv
			}

			thread := r.threads.Get("udf:" + fullName)
			defer r.threads.Put(thread)
			res, err := starlark.Call(thread, fn, tuple, nil)
			if err != nil {
				return value.Errorf(value.ErrCodeValue, "%s: %s", fullName, scriptError(err))
			}

			out, err := fromStarlark(res)
			if err != nil {
				return value.Errorf(value.ErrCodeType, "%s: %v", fullName, err)
			}
			return out
		},
	}
}

// scriptError strips the backtrace from Starlark evaluation errors;
// cell error messages carry the failure line only.
func scriptError(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Msg
	}
	return err.Error()
}

// RegistryError is a namespace registration failure.
type RegistryError struct {
	Namespace string
	Message   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("namespace %q: %s", e.Namespace, e.Message)
}
