package refparse

import (
	"reflect"
	"sync"

	"github.com/lexandro/assetindex-mcp/asset"
)

// DefaultMaxDepth bounds how deep the visitor descends into nested objects.
const DefaultMaxDepth = 7

// Reference is implemented by loaded object values that point at another asset.
type Reference interface {
	AssetRef() (target asset.ID, local int32, ok bool)
}

// Loaded is what an ObjectLoader returns for a binary-structured record.
// Kind refines the record's classification (Model, Terrain or Binary);
// KindUnknown leaves it unchanged.
type Loaded struct {
	Kind    asset.Kind
	Objects []any
}

// ObjectLoader deserializes a binary-structured record into a graph of Go values.
type ObjectLoader interface {
	LoadObjects(path string) (Loaded, error)
}

// ContainerKind is the dispatch class of a type in the visitor plan.
type ContainerKind int

const (
	Leaf ContainerKind = iota
	SingleRef
	RefCollection
	Composite
)

var referenceType = reflect.TypeOf((*Reference)(nil)).Elem()

// typePlan is the memoized dispatch entry for one concrete type.
type typePlan struct {
	kind   ContainerKind
	fields []int // Composite structs: indexes of non-leaf fields
}

// Visitor walks loaded objects and collects references. Plans are built once
// per concrete type and shared across calls; a Visitor is safe for concurrent use.
type Visitor struct {
	MaxDepth int

	mu    sync.Mutex
	plans map[reflect.Type]*typePlan
}

// NewVisitor creates a visitor with the default depth bound.
func NewVisitor() *Visitor {
	return &Visitor{
		MaxDepth: DefaultMaxDepth,
		plans:    make(map[reflect.Type]*typePlan),
	}
}

// Collect returns every reference reachable from objs within MaxDepth levels.
func (v *Visitor) Collect(objs []any) []Ref {
	w := walk{
		visitor: v,
		visited: make(map[visitKey]struct{}),
	}
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		w.visit(reflect.ValueOf(obj), 0)
	}
	return w.refs
}

// Plan returns the container kind for t. Exposed for tests and diagnostics.
func (v *Visitor) Plan(t reflect.Type) ContainerKind {
	return v.plan(t).kind
}

func (v *Visitor) plan(t reflect.Type) *typePlan {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.planLocked(t)
}

func (v *Visitor) planLocked(t reflect.Type) *typePlan {
	if p, ok := v.plans[t]; ok {
		return p
	}
	// Register before descending so recursive types terminate. While being
	// built the entry reads as Composite.
	p := &typePlan{kind: Composite}
	v.plans[t] = p

	switch {
	case t.Implements(referenceType):
		p.kind = SingleRef
	case t.Kind() == reflect.Interface:
		// Resolved against the dynamic type at visit time.
		p.kind = Composite
	case t.Kind() == reflect.Pointer:
		if v.planLocked(t.Elem()).kind == Leaf {
			p.kind = Leaf
		}
	case t.Kind() == reflect.Slice, t.Kind() == reflect.Array:
		if v.planLocked(t.Elem()).kind == Leaf {
			p.kind = Leaf
		} else {
			p.kind = RefCollection
		}
	case t.Kind() == reflect.Map:
		if v.planLocked(t.Elem()).kind == Leaf {
			p.kind = Leaf
		} else {
			p.kind = RefCollection
		}
	case t.Kind() == reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if v.planLocked(f.Type).kind != Leaf {
				p.fields = append(p.fields, i)
			}
		}
		if len(p.fields) == 0 {
			p.kind = Leaf
		}
	default:
		p.kind = Leaf
	}
	return p
}

type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// walk is the per-call state: collected refs and the visited set.
type walk struct {
	visitor *Visitor
	visited map[visitKey]struct{}
	refs    []Ref
}

func (w *walk) visit(val reflect.Value, depth int) {
	if depth > w.visitor.MaxDepth || !val.IsValid() {
		return
	}
	for val.Kind() == reflect.Interface {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	p := w.visitor.plan(val.Type())
	switch p.kind {
	case Leaf:
		return
	case SingleRef:
		if val.Kind() == reflect.Pointer && val.IsNil() {
			return
		}
		if ref, ok := val.Interface().(Reference); ok {
			if target, local, ok := ref.AssetRef(); ok {
				w.refs = append(w.refs, Ref{Target: target, Local: local, HasLocal: true})
			}
		}
	case RefCollection:
		switch val.Kind() {
		case reflect.Map:
			iter := val.MapRange()
			for iter.Next() {
				w.visit(iter.Value(), depth+1)
			}
		default:
			for i := 0; i < val.Len(); i++ {
				w.visit(val.Index(i), depth+1)
			}
		}
	case Composite:
		if val.Kind() == reflect.Pointer {
			if val.IsNil() {
				return
			}
			key := visitKey{ptr: val.Pointer(), typ: val.Type()}
			if _, seen := w.visited[key]; seen {
				return
			}
			w.visited[key] = struct{}{}
			w.visit(val.Elem(), depth)
			return
		}
		if val.Kind() != reflect.Struct {
			return
		}
		for _, i := range p.fields {
			w.visit(val.Field(i), depth+1)
		}
	}
}
