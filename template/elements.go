package template

import "github.com/nativetool/devirt/hir"

// Finder is the result of element-finding: a single full-tree
// walk of a function body collecting bookkeeping the Value Extractor
// and template builder need.
type Finder struct {
	// Returns maps a ReturnableBlock to the list of NonLocalReturn
	// values whose Target is that block, after the inline-constructor
	// filter.
	Returns map[*hir.ReturnableBlock][]hir.Expr

	// Variables is the set of every Variable referenced anywhere in
	// the body (by GetValue or as a SetValue target).
	Variables map[*hir.Variable]bool
}

// FindElements walks body once.
func FindElements(body hir.Expr) *Finder {
	f := &Finder{
		Returns:   make(map[*hir.ReturnableBlock][]hir.Expr),
		Variables: make(map[*hir.Variable]bool),
	}
	f.walk(body)
	return f
}

func (f *Finder) walk(e hir.Expr) {
	if e == nil {
		return
	}
	switch v := e.(type) {
	case hir.Block:
		for _, s := range v.Statements {
			f.walk(s)
		}
	case hir.Branch:
		for _, a := range v.Arms {
			f.walk(a)
		}
	case hir.Try:
		f.walk(v.Body)
		for _, c := range v.Catches {
			f.walk(c)
		}
	case hir.Call:
		f.walk(v.DispatchReceiver)
		f.walk(v.ExtensionReceiver)
		for _, a := range v.Args {
			f.walk(a)
		}
	case hir.ConstructorCall:
		for _, a := range v.Args {
			f.walk(a)
		}
	case hir.DelegatingConstructorCall:
		for _, a := range v.Args {
			f.walk(a)
		}
	case hir.GetValue:
		if v.Variable != nil {
			f.Variables[v.Variable] = true
		}
	case hir.SetValue:
		if v.Variable != nil {
			f.Variables[v.Variable] = true
		}
		f.walk(v.Value)
	case hir.GetField:
		f.walk(v.Receiver)
	case hir.SetField:
		f.walk(v.Receiver)
		f.walk(v.Value)
	case hir.TypeOperatorCall:
		if v.IsCast {
			f.walk(v.Argument)
		}
	case hir.ReturnableBlockExpr:
		f.walk(v.Body)
	case hir.NonLocalReturn:
		f.walk(v.Value)
		if includeNonLocalReturn(v) {
			f.Returns[v.Target] = append(f.Returns[v.Target], v.Value)
		}
	case hir.SuspendableExpr:
		f.walk(v.Body)
		for _, p := range v.Points {
			for _, val := range p.Values {
				f.walk(val)
			}
		}
	case hir.GetObjectValue, hir.Const:
		// leaves, nothing to recurse into
	}
}

// includeNonLocalReturn applies the filter: "Non-local returns
// whose return target is annotated as an inline constructor and whose
// type is not Unit are filtered out."
func includeNonLocalReturn(r hir.NonLocalReturn) bool {
	if r.Target == nil {
		return true
	}
	if r.Target.IsInlineConstructor && r.Target.ReturnType != hir.Unit {
		return false
	}
	return true
}
