package hir

// Unit and Nothing are well-known sentinel classes a producer uses for
// expressions with no useful value (Unit) or that never return
// (Nothing), per the rule "if the expression's static type is Unit
// or Nothing and no rule applies, the extractor yields a synthetic
// singleton of that type".
var (
	Unit    = &Class{Name: "Unit", IsFinal: true}
	Nothing = &Class{Name: "Nothing", IsFinal: true}
)

// StaticType recovers the statically known type of an expression,
// structurally, for the handful of Extractor rules that need it
// (the Unit/Nothing fallback, and the declared-type projection for
// non-cast type operators and field writes).
//
// It returns nil when e carries no single statically useful type
// (e.g. a Branch whose arms disagree) — callers that reach this case
// without already having a more specific rule have found malformed IR.
func StaticType(e Expr) *Class {
	switch v := e.(type) {
	case Block:
		if len(v.Statements) == 0 {
			return Unit
		}
		return StaticType(v.Statements[len(v.Statements)-1])
	case Branch:
		if len(v.Arms) == 0 {
			return Unit
		}
		return StaticType(v.Arms[0])
	case Try:
		return StaticType(v.Body)
	case Call:
		if v.Callee != nil {
			return v.ReturnTypeOf()
		}
		return nil
	case ConstructorCall:
		return v.Class
	case DelegatingConstructorCall:
		return v.ConstructedClass
	case GetValue:
		return nil // variables/parameters are not statically single-typed here
	case SetValue:
		return Unit
	case GetField:
		if v.Field != nil {
			return nil
		}
		return nil
	case SetField:
		return StaticType(v.Value)
	case GetObjectValue:
		return v.Type
	case Const:
		return v.Type
	case TypeOperatorCall:
		if v.IsCast {
			return v.TypeOperand
		}
		return v.DeclaredType
	case ReturnableBlockExpr:
		return v.Block.ReturnType
	case NonLocalReturn:
		return Nothing
	case SuspendableExpr:
		return StaticType(v.Body)
	default:
		return nil
	}
}

// ReturnTypeOf is a small convenience so Call doesn't need to embed a
// return-type field redundant with Callee.
func (c Call) ReturnTypeOf() *Class {
	return callReturnType(c.Callee)
}

// ReturnType is filled on Function by the producer (the function's
// declared return type), used here for Call's static type and by the
// constraint graph for external-callee fallback Sources.
func callReturnType(f *Function) *Class {
	if f == nil {
		return nil
	}
	return f.ReturnType
}
