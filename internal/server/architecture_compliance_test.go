package server

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type registeredRoute struct {
	method    string
	path      string
	handler   string
	operation string
}

type boundaryCalls struct {
	service []string
	sweeper []string
	// storage holds calls that reach past the service into its index or
	// content store.
	storage []string
}

func TestBlobRoutesUseServiceBoundary(t *testing.T) {
	routes := parseRegisteredRoutes(t)
	handlers := parseServerHandlers(t)

	blobRoutes := make([]registeredRoute, 0)
	for _, route := range routes {
		if strings.HasPrefix(route.path, "/v1/") {
			blobRoutes = append(blobRoutes, route)
		}
	}
	if len(blobRoutes) == 0 {
		t.Fatal("no /v1 routes discovered")
	}

	for _, route := range blobRoutes {
		fn, ok := handlers[route.handler]
		if !ok {
			t.Fatalf("handler %q for %s %s not found", route.handler, route.method, route.path)
		}
		calls := inspectBoundaryCalls(fn)
		if len(calls.storage) > 0 {
			t.Fatalf("handler %q (%s %s) bypasses the service: %v", route.handler, route.method, route.path, calls.storage)
		}
		if len(calls.service) == 0 && len(calls.sweeper) == 0 {
			t.Fatalf("handler %q (%s %s) does not call a service boundary", route.handler, route.method, route.path)
		}
	}
}

func TestBlobRoutesAreInstrumented(t *testing.T) {
	seen := make(map[string]string)
	for _, route := range parseRegisteredRoutes(t) {
		if !strings.HasPrefix(route.path, "/v1/") {
			continue
		}
		if route.operation == "" {
			t.Fatalf("route %s %s is not instrumented", route.method, route.path)
		}
		if prev, ok := seen[route.operation]; ok {
			t.Fatalf("operation %q used by both %s and %s %s", route.operation, prev, route.method, route.path)
		}
		seen[route.operation] = route.method + " " + route.path
	}
}

func parseRegisteredRoutes(t *testing.T) []registeredRoute {
	t.Helper()

	routesPath := filepath.Join(serverPackageDir(t), "routes.go")
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, routesPath, nil, 0)
	if err != nil {
		t.Fatalf("parse routes.go: %v", err)
	}

	routes := make([]registeredRoute, 0)
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "HandleFunc" || len(call.Args) != 2 {
			return true
		}

		patternLit, ok := call.Args[0].(*ast.BasicLit)
		if !ok || patternLit.Kind != token.STRING {
			return true
		}
		pattern, err := strconv.Unquote(patternLit.Value)
		if err != nil {
			t.Fatalf("unquote route pattern %q: %v", patternLit.Value, err)
		}
		parts := strings.SplitN(pattern, " ", 2)
		if len(parts) != 2 {
			return true
		}

		route := registeredRoute{
			method: strings.TrimSpace(parts[0]),
			path:   strings.TrimSpace(parts[1]),
		}

		handlerExpr := call.Args[1]
		if wrap, ok := handlerExpr.(*ast.CallExpr); ok {
			// s.instrument("op", s.handleX)
			wrapSel, ok := wrap.Fun.(*ast.SelectorExpr)
			if !ok || wrapSel.Sel.Name != "instrument" || len(wrap.Args) != 2 {
				return true
			}
			if lit, ok := wrap.Args[0].(*ast.BasicLit); ok && lit.Kind == token.STRING {
				route.operation, _ = strconv.Unquote(lit.Value)
			}
			handlerExpr = wrap.Args[1]
		}

		handlerSel, ok := handlerExpr.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := handlerSel.X.(*ast.Ident)
		if !ok || recv.Name != "s" {
			return true
		}
		route.handler = handlerSel.Sel.Name

		routes = append(routes, route)
		return true
	})

	return routes
}

func parseServerHandlers(t *testing.T) map[string]*ast.FuncDecl {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(serverPackageDir(t), "handlers*.go"))
	if err != nil {
		t.Fatalf("glob handler files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no handler files found")
	}

	out := make(map[string]*ast.FuncDecl)
	fset := token.NewFileSet()
	for _, filePath := range files {
		if strings.HasSuffix(filePath, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", filePath, err)
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Name == nil || !strings.HasPrefix(fn.Name.Name, "handle") {
				continue
			}
			if !isServerReceiver(fn.Recv) {
				continue
			}
			out[fn.Name.Name] = fn
		}
	}
	return out
}

func inspectBoundaryCalls(fn *ast.FuncDecl) boundaryCalls {
	calls := boundaryCalls{}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		chain := selectorChain(sel)
		if len(chain) < 3 || chain[0] != "s" {
			return true
		}

		switch chain[1] {
		case "service":
			if chain[2] == "index" || chain[2] == "blobs" {
				calls.storage = append(calls.storage, strings.Join(chain, "."))
				return false
			}
			calls.service = append(calls.service, chain[2])
		case "sweeper":
			calls.sweeper = append(calls.sweeper, chain[2])
		}
		return false
	})
	calls.service = uniqueSorted(calls.service)
	calls.sweeper = uniqueSorted(calls.sweeper)
	calls.storage = uniqueSorted(calls.storage)
	return calls
}

// selectorChain flattens a.b.c into [a b c].
func selectorChain(sel *ast.SelectorExpr) []string {
	var parts []string
	var expr ast.Expr = sel
	for {
		switch e := expr.(type) {
		case *ast.SelectorExpr:
			parts = append(parts, e.Sel.Name)
			expr = e.X
		case *ast.Ident:
			parts = append(parts, e.Name)
			slices.Reverse(parts)
			return parts
		default:
			return nil
		}
	}
}

func isServerReceiver(recv *ast.FieldList) bool {
	if recv == nil || len(recv.List) != 1 {
		return false
	}
	star, ok := recv.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	ident, ok := star.X.(*ast.Ident)
	return ok && ident.Name == "Server"
}

func serverPackageDir(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(file)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	slices.Sort(out)
	return out
}
