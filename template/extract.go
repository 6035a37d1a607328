package template

import (
	"fmt"

	"github.com/nativetool/devirt/direrr"
	"github.com/nativetool/devirt/hir"
)

// ExtractValues implements the expression value extractor: given
// one hir.Expr, it calls yield with each value-producing sub-expression
// reachable without crossing a statement boundary.
func ExtractValues(fr *Finder, e hir.Expr, yield func(hir.Expr) error) error {
	switch v := e.(type) {
	case hir.Block:
		if len(v.Statements) == 0 {
			return yield(syntheticSingleton(hir.Unit))
		}
		return ExtractValues(fr, v.Statements[len(v.Statements)-1], yield)

	case hir.Branch:
		for _, arm := range v.Arms {
			if err := ExtractValues(fr, arm, yield); err != nil {
				return err
			}
		}
		return nil

	case hir.Try:
		if err := ExtractValues(fr, v.Body, yield); err != nil {
			return err
		}
		for _, c := range v.Catches {
			if err := ExtractValues(fr, c, yield); err != nil {
				return err
			}
		}
		return nil

	case hir.ReturnableBlockExpr:
		for _, rv := range fr.Returns[v.Block] {
			if err := ExtractValues(fr, rv, yield); err != nil {
				return err
			}
		}
		return nil

	case hir.SuspendableExpr:
		for _, p := range v.Points {
			for _, rv := range p.Values {
				if err := ExtractValues(fr, rv, yield); err != nil {
					return err
				}
			}
		}
		return nil

	case hir.TypeOperatorCall:
		if v.IsCast {
			// Casts propagate through to their argument, re-wrapped with
			// the same cast target so narrowing survives to each leaf.
			return ExtractValues(fr, v.Argument, func(inner hir.Expr) error {
				return yield(hir.TypeOperatorCall{
					IsCast:      true,
					CastKind:    v.CastKind,
					Argument:    inner,
					TypeOperand: v.TypeOperand,
				})
			})
		}
		// Non-cast type operators produce a value of their declared type.
		return yield(v)

	case hir.SetField:
		// Field writes yield themselves.
		return yield(v)

	case hir.Call, hir.ConstructorCall, hir.DelegatingConstructorCall,
		hir.GetValue, hir.GetField, hir.GetObjectValue, hir.Const:
		return yield(v)

	default:
		t := hir.StaticType(e)
		if t == hir.Unit || t == hir.Nothing {
			return yield(syntheticSingleton(t))
		}
		return direrr.Malformed(fmt.Sprintf("%T", e), "expression does not produce a value and is not Unit/Nothing-typed")
	}
}

// Values collects ExtractValues' yields into a slice, for callers that
// don't need streaming (the common case in the Template Builder).
func Values(fr *Finder, e hir.Expr) ([]hir.Expr, error) {
	var out []hir.Expr
	err := ExtractValues(fr, e, func(v hir.Expr) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// syntheticSingleton represents the extractor's fallback value for a
// Unit/Nothing-typed expression with no applicable rule: a GetObjectValue
// of that type, i.e. a singleton.
func syntheticSingleton(t *hir.Class) hir.Expr {
	return hir.GetObjectValue{Type: t}
}
