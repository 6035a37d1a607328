package devirt

import (
	"strconv"

	"github.com/nativetool/devirt/ids"
	"github.com/nativetool/devirt/template"
)

// Rewrite replaces every call site in templates that resolved to exactly
// one possible Private callee with a direct call. The
// VtableCall/ItableCall node becomes a NodeStaticCall to that callee,
// with the receiver folded in as the call's leading argument (matching
// the receiver-as-Parameter(0) convention symtab/template already use
// for methods). Call sites with zero, multiple, or non-Private-callee
// candidates are left as virtual calls: zero means dead or malformed
// code, several means the dispatch is still ambiguous, and an External
// or Public callee gains nothing from inlining its call site since the
// indirection cost is paid at the call, not the callee.
func Rewrite(templates []*template.FunctionTemplate, sites []Site) int {
	bySite := make(map[string]Site, len(sites))
	for _, s := range sites {
		bySite[siteKey(s.Enclosing, s.Ordinal)] = s
	}

	rewritten := 0
	for _, t := range templates {
		for i := range t.Body.Nodes {
			n := &t.Body.Nodes[i]
			if n.Kind != template.NodeVtableCall && n.Kind != template.NodeItableCall {
				continue
			}
			if n.CallSite == nil {
				continue
			}
			s, ok := bySite[siteKey(n.CallSite.Enclosing, n.CallSite.Ordinal)]
			if !ok || len(s.PossibleCallees) != 1 {
				continue
			}
			callee := s.PossibleCallees[0]
			if callee.Kind != ids.FunctionPrivate {
				continue
			}
			rewriteToDirectCall(n, callee)
			rewritten++
		}
	}
	return rewritten
}

func rewriteToDirectCall(n *template.Node, callee ids.FunctionId) {
	if n.Receiver != nil {
		n.Args = append([]template.Edge{*n.Receiver}, n.Args...)
	}
	n.Kind = template.NodeStaticCall
	n.Callee = callee
	n.Receiver = nil
	n.VtableIndex = 0
	n.MethodHash = 0
	n.CallSite = nil
}

func siteKey(f ids.FunctionId, ordinal int) string {
	return funcKeyOf(f) + "@" + strconv.Itoa(ordinal)
}
