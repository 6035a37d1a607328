// Package hir is the concrete, Go-native shape of the IR that the
// analysis treats as an external collaborator. A real frontend (say,
// a Kotlin/IR or JVM-bytecode reader) would construct these types; this
// package plays the role go/ast + go/types play as input to
// golang.org/x/tools/go/ssa's builder.
package hir

// Class is a class or interface declaration as seen by the producer.
type Class struct {
	Name        string
	Module      string // empty if declared in this module
	IsExternal  bool
	IsOpaque    bool // forward-declared or Obj-C interop: collapses to ids.Virtual
	IsInterface bool
	IsFinal     bool
	IsAbstract  bool
	SuperTypes  []*Class
}

// Field is a field declaration; ReceiverType is informational only (the
// constraint graph keys fields by Name alone).
type Field struct {
	Name         string
	ReceiverType *Class // nil for a static field
}

// Param is a function parameter. A suspend Function carries one
// synthetic trailing Param for its continuation.
type Param struct {
	Index int
	IsContinuation bool
}

// Variable is a local variable; Values are every IR expression ever
// assigned to it (across its declaration and all subsequent writes),
// filled in by the producer. Element-finding does not add to Values: it
// only records which variables a body references.
type Variable struct {
	Name   string
	Values []Expr
}

// ReturnableBlock is addressed by NonLocalReturn expressions that
// target it; element-finding collects, for each one, the list of such returns.
type ReturnableBlock struct {
	Name               string
	IsInlineConstructor bool
	ReturnType         *Class // nil/Unit-like if not meaningfully typed
}

// SuspendPoint marks a resumption point of a suspendable expression;
// Element-finding collects, for each suspendable expression, its suspension points.
type SuspendPoint struct {
	Values []Expr
}

// Function is a function, method, or field-initializer body.
type Function struct {
	Name             string
	Module           string
	IsExternal       bool
	IsExported       bool
	IsAbstract       bool
	IsOverride       bool
	OverrideOwner    *Class // non-nil when IsOverride and owner is reachable
	Owner            *Class // non-nil for methods
	IsSuspend        bool
	ResumesCoroutine bool // true if this function overrides the coroutine resume method
	Params           []Param
	ReturnType       *Class
	Body             Expr // typically a Block whose last statement is the return value

	// ReturnTarget is the function's own implicit ReturnableBlock: a
	// plain `return expr` statement anywhere in Body is represented as
	// a NonLocalReturn targeting this block, so element-finding's
	// per-block return collection also gives us the function's
	// early-return values uniformly. Nil if the body has no early
	// returns (only a fall-through value).
	ReturnTarget *ReturnableBlock

	// VtableSlot/MethodHash are filled for overridable members by the
	// host's VtableBuilder; -1 / 0 mean "not applicable".
	VtableSlot int
	MethodHash uint64
}

// Module is the top-level traversable unit the analysis consumes.
type Module struct {
	Name      string
	Classes   []*Class
	Functions []*Function
	// MainFunction is the sole root for a program build; nil for a library.
	MainFunction *Function
}

// VtableBuilder is the external hook supplying vtable/itable layout and
// method-hash computation.
type VtableBuilder interface {
	// VtableEntries returns, for class c, the ordered vtable slots and
	// the FunctionId-bearing *Function that implements each.
	VtableEntries(c *Class) []*Function
	// ITableEntries returns, for class c, the interface-method-hash ->
	// implementation map (only called for non-abstract c).
	ITableEntries(c *Class) map[uint64]*Function
	// VtableIndex returns the vtable slot of an overridable function.
	VtableIndex(f *Function) int
	// MethodHash returns the 64-bit interface-method hash of a name.
	MethodHash(name string) uint64
	// ResolveOverride resolves f as overridden starting from super's scope,
	// used for super-qualified calls.
	ResolveOverride(f *Function, super *Class) *Function
}
