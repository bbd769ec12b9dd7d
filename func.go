// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/focal/texture"
)

var (
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeOfTex     = reflect.TypeOf((*texture.Tex)(nil))
	typeOfWindow  = reflect.TypeOf(WindowSpec{})
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
	typeOfFloat   = reflect.TypeOf(float64(0))
	typeOfFloats  = reflect.TypeOf([]float64(nil))
)

// outKind describes the first result of a focal function.
type outKind int

const (
	outScalar outKind = iota
	outVector
	outTexture
)

// A Func wraps a user-defined focal function. The wrapped function
// must have the form
//
//	func([ctx context.Context,] win *texture.Tex[, w focal.WindowSpec][, extra args...]) out[, error]
//
// where out is float64, []float64, or, for chunk-mode functions,
// *texture.Tex. The optional WindowSpec parameter receives the run's
// window geometry; the extra arguments are bound from the run
// configuration's Args.
//
// Funcs registered with RegisterFunc can be referenced by name,
// which is required for distributed execution: remote workers
// resolve the name against their own registry, so registration must
// happen during package initialization, identically in every
// process.
type Func struct {
	name        string
	fn          reflect.Value
	contextFunc bool
	windowArg   bool
	errFunc     bool
	args        []reflect.Type
	out         outKind
}

// FuncOf wraps fn as a focal Func. It returns an error of kind
// errors.Invalid if fn's signature is not an accepted focal function
// form.
func FuncOf(fn interface{}) (*Func, error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("focal: %T is not a function", fn))
	}
	if t.IsVariadic() {
		return nil, errors.E(errors.Invalid, "focal: variadic focal functions are not supported")
	}
	f := &Func{fn: reflect.ValueOf(fn)}
	i := 0
	if t.NumIn() > i && t.In(i) == typeOfContext {
		f.contextFunc = true
		i++
	}
	if t.NumIn() <= i || t.In(i) != typeOfTex {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("focal: function %s does not take a *texture.Tex neighborhood", t))
	}
	i++
	if t.NumIn() > i && t.In(i) == typeOfWindow {
		f.windowArg = true
		i++
	}
	for ; i < t.NumIn(); i++ {
		f.args = append(f.args, t.In(i))
	}
	switch t.NumOut() {
	case 2:
		if t.Out(1) != typeOfError {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("focal: function %s: second result must be error", t))
		}
		f.errFunc = true
		fallthrough
	case 1:
		switch t.Out(0) {
		case typeOfFloat:
			f.out = outScalar
		case typeOfFloats:
			f.out = outVector
		case typeOfTex:
			f.out = outTexture
		default:
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("focal: function %s: result must be float64, []float64, or *texture.Tex", t))
		}
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("focal: function %s: wrong number of results", t))
	}
	return f, nil
}

// Name returns the name under which f was registered, or "" for an
// unregistered func.
func (f *Func) Name() string { return f.name }

// Chunky tells whether f is a chunk-mode function, i.e. returns a
// whole texture rather than per-pixel values.
func (f *Func) Chunky() bool { return f.out == outTexture }

// Bind checks the provided extra arguments against f's signature and
// returns them as call values. Binding is performed once per task so
// that argument type errors surface before any evaluation.
func (f *Func) Bind(args []interface{}) ([]reflect.Value, error) {
	if len(args) != len(f.args) {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("focal: function %s takes %d extra arguments, got %d", f, len(f.args), len(args)))
	}
	argv := make([]reflect.Value, len(args))
	for i, arg := range args {
		v := reflect.ValueOf(arg)
		if !v.IsValid() || !v.Type().AssignableTo(f.args[i]) {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("focal: function %s: argument %d: %T is not assignable to %s", f, i, arg, f.args[i]))
		}
		argv[i] = v
	}
	return argv, nil
}

// call invokes the wrapped function, converting panics into errors
// of kind errors.Fatal: a panicking focal function aborts the run.
func (f *Func) call(ctx context.Context, tex *texture.Tex, w WindowSpec, argv []reflect.Value) (out reflect.Value, err error) {
	in := make([]reflect.Value, 0, 2+len(argv)+1)
	if f.contextFunc {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, reflect.ValueOf(tex))
	if f.windowArg {
		in = append(in, reflect.ValueOf(w))
	}
	in = append(in, argv...)
	defer func() {
		if e := recover(); e != nil {
			err = errors.E(errors.Fatal,
				fmt.Sprintf("focal: function %s panicked: %v\n%s", f, e, debug.Stack()))
		}
	}()
	rvs := f.fn.Call(in)
	if f.errFunc && !rvs[1].IsNil() {
		return reflect.Value{}, errors.E(errors.Fatal, rvs[1].Interface().(error))
	}
	return rvs[0], nil
}

// Eval invokes f on a single window, returning one output value per
// band. Scalar functions return a single-element vector. Eval must
// not be called on chunk-mode functions.
func (f *Func) Eval(ctx context.Context, win *texture.Tex, w WindowSpec, argv []reflect.Value) ([]float64, error) {
	if f.out == outTexture {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("focal: chunk-mode function %s invoked in window mode", f))
	}
	out, err := f.call(ctx, win, w, argv)
	if err != nil {
		return nil, err
	}
	if f.out == outScalar {
		return []float64{out.Float()}, nil
	}
	return out.Interface().([]float64), nil
}

// EvalChunk invokes f once on an entire padded chunk. The function
// must return a texture; its band count determines the number of
// output bands.
func (f *Func) EvalChunk(ctx context.Context, chunk *texture.Tex, w WindowSpec, argv []reflect.Value) (*texture.Tex, error) {
	if f.out != outTexture {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("focal: window-mode function %s invoked in chunk mode", f))
	}
	out, err := f.call(ctx, chunk, w, argv)
	if err != nil {
		return nil, err
	}
	tex, _ := out.Interface().(*texture.Tex)
	if tex == nil {
		return nil, errors.E(errors.Fatal, fmt.Sprintf("focal: chunk function %s returned nil", f))
	}
	return tex, nil
}

// String returns the func's registered name, or its type for
// unregistered funcs.
func (f *Func) String() string {
	if f.name != "" {
		return f.name
	}
	return f.fn.Type().String()
}

var (
	funcsMu sync.Mutex
	funcs   = map[string]*Func{}
)

// RegisterFunc registers fn under the provided name and returns the
// resulting Func. It is intended to be called from package
// initialization so that every process (and every remote worker)
// shares the same registry. RegisterFunc panics if the name is
// already taken or fn is not a valid focal function.
func RegisterFunc(name string, fn interface{}) *Func {
	f, err := FuncOf(fn)
	if err != nil {
		panic(fmt.Sprintf("focal.RegisterFunc %q: %v", name, err))
	}
	f.name = name
	funcsMu.Lock()
	defer funcsMu.Unlock()
	if _, ok := funcs[name]; ok {
		panic(fmt.Sprintf("focal.RegisterFunc %q: already registered", name))
	}
	funcs[name] = f
	return f
}

// Lookup returns the Func registered under name.
func Lookup(name string) (*Func, bool) {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	f, ok := funcs[name]
	return f, ok
}

// FuncNames returns the sorted names of all registered funcs.
func FuncNames() []string {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
