// Package parser compiles a Buzz token stream straight to textual
// assembly: there is no intervening AST (the original buzzparser.c this
// is grounded on is single-pass too). Expression and statement grammar
// productions double as code generation steps — parsing an expression
// leaves its value computation already emitted to the output buffer.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/buzzlang/buzz/lang/token"
)

// Options tunes diagnostic behavior that doesn't change program semantics.
type Options struct {
	// Strict makes any reference to an undeclared identifier, read or
	// assignment (which is otherwise silently promoted to a new global,
	// §4.5 [FULL]), log a diagnostic through the caller-supplied Warn hook
	// instead of passing silently.
	Strict bool
	Warn   func(pos token.Position, format string, args ...any)

	// Builtins pre-declares standard-library module tables (e.g. "math",
	// "io") as already-resolved globals, in the same order the host binds
	// their closures into vm.VM.Globals (see stdlib.GlobalNames) — so a
	// script that never assigns to "math" still resolves it without
	// tripping the Strict implicit-global warning.
	Builtins []string
}

// Parser consumes a token stream and emits Buzz assembly text.
type Parser struct {
	toks []token.Token
	pos  int
	opts Options

	out strings.Builder

	globals    map[string]int32
	nextGlobal int32
	labelNum   int

	scope *scope
}

type symKind int

const (
	symGlobal symKind = iota
	symLocal
)

type sym struct {
	kind symKind
	slot int32
}

type scope struct {
	vars      map[string]sym
	parent    *scope
	nextLocal int32 // next free local slot in the enclosing function
	funcRoot  bool  // true at the outermost scope of a function body
}

// New returns a Parser ready to compile toks (as produced by lang/lexer).
func New(toks []token.Token, opts Options) *Parser {
	if opts.Warn == nil {
		opts.Warn = func(token.Position, string, ...any) {}
	}
	p := &Parser{
		toks:    toks,
		opts:    opts,
		globals: map[string]int32{},
		scope:   &scope{vars: map[string]sym{}, funcRoot: true, nextLocal: 1},
	}
	for _, name := range opts.Builtins {
		if _, ok := p.globals[name]; ok {
			continue
		}
		id := p.nextGlobal
		p.nextGlobal++
		p.globals[name] = id
		p.scope.vars[name] = sym{kind: symGlobal, slot: id}
	}
	return p
}

// Compile parses the whole token stream and returns the generated
// assembly text, ready for lang/assembler.Assemble.
func (p *Parser) Compile() (string, error) {
	if err := p.statList(token.EOF); err != nil {
		return "", err
	}
	p.emit("done")
	return p.out.String(), nil
}

// --- token stream helpers ---

func (p *Parser) cur() token.Token { return p.toks[p.pos] }
func (p *Parser) atEnd() bool      { return p.cur().Kind == token.EOF }

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) match(k token.Kind) (token.Token, bool) {
	if p.check(k) {
		return p.advance(), true
	}
	return token.Token{}, false
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if t, ok := p.match(k); ok {
		return t, nil
	}
	return token.Token{}, fmt.Errorf("%s: expected %s, got %s %q", p.cur().Pos, k, p.cur().Kind, p.cur().Literal)
}

func (p *Parser) skipStateEnds() {
	for p.check(token.StateEnd) {
		p.advance()
	}
}

func (p *Parser) emit(format string, args ...any) {
	fmt.Fprintf(&p.out, format+"\n", args...)
}

func (p *Parser) newLabel(prefix string) string {
	p.labelNum++
	return fmt.Sprintf("%s_%d", prefix, p.labelNum)
}

// --- statements ---

func (p *Parser) statList(stop token.Kind) error {
	p.skipStateEnds()
	for !p.atEnd() && !p.check(stop) {
		if err := p.stat(); err != nil {
			return err
		}
		p.skipStateEnds()
	}
	return nil
}

func (p *Parser) block() error {
	if _, err := p.expect(token.BlockOpen); err != nil {
		return err
	}
	if err := p.statList(token.BlockClose); err != nil {
		return err
	}
	_, err := p.expect(token.BlockClose)
	return err
}

func (p *Parser) stat() error {
	switch p.cur().Kind {
	case token.Var:
		return p.varStat()
	case token.Fun:
		return p.namedFunStat()
	case token.If:
		return p.ifStat()
	case token.While:
		return p.whileStat()
	case token.For:
		return p.forStat()
	case token.Return:
		return p.returnStat()
	default:
		return p.exprStat()
	}
}

func (p *Parser) varStat() error {
	p.advance() // 'var'
	name, err := p.expect(token.Id)
	if err != nil {
		return err
	}
	sym := p.declare(name.Literal)
	if _, ok := p.match(token.Assign); ok {
		if err := p.expr(); err != nil {
			return err
		}
	} else {
		p.emit("pushnil")
	}
	p.storeSym(sym)
	return nil
}

// declare introduces name as a new variable in the current scope: a local
// slot inside a function, a global id at top level.
func (p *Parser) declare(name string) sym {
	if p.scope.parent == nil {
		id, ok := p.globals[name]
		if !ok {
			id = p.nextGlobal
			p.nextGlobal++
			p.globals[name] = id
		}
		s := sym{kind: symGlobal, slot: id}
		p.scope.vars[name] = s
		return s
	}
	root := p.funcRootScope()
	slot := root.nextLocal
	root.nextLocal++
	s := sym{kind: symLocal, slot: slot}
	p.scope.vars[name] = s
	return s
}

func (p *Parser) funcRootScope() *scope {
	s := p.scope
	for !s.funcRoot {
		s = s.parent
	}
	return s
}

// resolve looks name up through the enclosing scope chain; if not found
// it is silently promoted to a new global unless Options.Strict asked for
// a diagnostic (§4.5 [FULL] — see SPEC_FULL.md/DESIGN.md for the Open
// Question this resolves).
func (p *Parser) resolve(name string, pos token.Position) sym {
	for s := p.scope; s != nil; s = s.parent {
		if sy, ok := s.vars[name]; ok {
			return sy
		}
	}
	if p.opts.Strict {
		p.opts.Warn(pos, "undeclared identifier %q promoted to global", name)
	}
	id, ok := p.globals[name]
	if !ok {
		id = p.nextGlobal
		p.nextGlobal++
		p.globals[name] = id
	}
	top := p.scope
	for top.parent != nil {
		top = top.parent
	}
	top.vars[name] = sym{kind: symGlobal, slot: id}
	return sym{kind: symGlobal, slot: id}
}

func (p *Parser) loadSym(s sym) {
	if s.kind == symGlobal {
		p.emit("pushi %d", s.slot)
		p.emit("gload")
	} else {
		p.emit("lload %d", s.slot)
	}
}

func (p *Parser) storeSym(s sym) {
	if s.kind == symGlobal {
		p.emit("pushi %d", s.slot)
		p.emit("gstore")
	} else {
		p.emit("lstore %d", s.slot)
	}
}

func (p *Parser) ifStat() error {
	p.advance()
	if _, err := p.expect(token.ParOpen); err != nil {
		return err
	}
	if err := p.cond(); err != nil {
		return err
	}
	if _, err := p.expect(token.ParClose); err != nil {
		return err
	}
	elseLabel := p.newLabel("else")
	p.emit("jumpz %s", elseLabel)
	if err := p.block(); err != nil {
		return err
	}
	endLabel := p.newLabel("endif")
	p.emit("jump %s", endLabel)
	p.emit("%s:", elseLabel)
	if _, ok := p.match(token.Else); ok {
		if err := p.block(); err != nil {
			return err
		}
	}
	p.emit("%s:", endLabel)
	return nil
}

func (p *Parser) whileStat() error {
	p.advance()
	if _, err := p.expect(token.ParOpen); err != nil {
		return err
	}
	top := p.newLabel("wtop")
	end := p.newLabel("wend")
	p.emit("%s:", top)
	if err := p.cond(); err != nil {
		return err
	}
	if _, err := p.expect(token.ParClose); err != nil {
		return err
	}
	p.emit("jumpz %s", end)
	if err := p.block(); err != nil {
		return err
	}
	p.emit("jump %s", top)
	p.emit("%s:", end)
	return nil
}

// forStat implements the C-style three-clause loop: for (init; cond; post) block.
// With no AST to hold the post-statement, it is compiled from a saved
// token span after the body, the one place this parser reaches backward
// instead of straight through the stream.
func (p *Parser) forStat() error {
	p.advance()
	if _, err := p.expect(token.ParOpen); err != nil {
		return err
	}
	if err := p.stat(); err != nil {
		return err
	}
	if _, err := p.expect(token.StateEnd); err != nil {
		return err
	}
	top := p.newLabel("ftop")
	end := p.newLabel("fend")
	p.emit("%s:", top)
	if err := p.cond(); err != nil {
		return err
	}
	p.emit("jumpz %s", end)
	if _, err := p.expect(token.StateEnd); err != nil {
		return err
	}

	postStart := p.pos
	depth := 0
	for !(p.check(token.ParClose) && depth == 0) {
		if p.check(token.ParOpen) {
			depth++
		} else if p.check(token.ParClose) {
			depth--
		}
		p.advance()
	}
	postEnd := p.pos
	if _, err := p.expect(token.ParClose); err != nil {
		return err
	}
	if err := p.block(); err != nil {
		return err
	}

	saved, savedToks := p.pos, p.toks
	p.toks = p.toks[:postEnd]
	p.pos = postStart
	if err := p.stat(); err != nil {
		return err
	}
	p.toks, p.pos = savedToks, saved

	p.emit("jump %s", top)
	p.emit("%s:", end)
	return nil
}

func (p *Parser) returnStat() error {
	p.advance()
	if p.check(token.StateEnd) || p.check(token.BlockClose) {
		p.emit("ret0")
		return nil
	}
	if err := p.expr(); err != nil {
		return err
	}
	p.emit("ret1")
	return nil
}

// namedFunStat parses `function name(params) block` as a statement,
// binding name in the enclosing scope to a non-capturing closure.
func (p *Parser) namedFunStat() error {
	p.advance()
	name, err := p.expect(token.Id)
	if err != nil {
		return err
	}
	target := p.declare(name.Literal)
	if err := p.funcLiteral(false); err != nil {
		return err
	}
	p.storeSym(target)
	return nil
}

// exprStat handles assignment (idref "=" expr) and bare expression
// statements (calls), distinguished by whether an '=' follows the idref.
func (p *Parser) exprStat() error {
	if p.check(token.Id) {
		return p.idrefStat()
	}
	if err := p.expr(); err != nil {
		return err
	}
	p.emit("pop")
	return nil
}

// idrefChain is one parsed reference: a base identifier plus zero or more
// .field / [expr] accessors. The codegen strategy for `a.b.c = v` is the
// "buffered write" trick: walk the chain computing/pushing each
// intermediate table, then either emit the final tget (read) or pop the
// value and tput into the last table (write) — so read and write share
// the chain-walking code and only diverge at the last step.
type accessor struct {
	isDot bool               // a.b, as opposed to a[expr]
	push  func(p *Parser)    // pushes this accessor's key value on top of the stack
}

type idrefChain struct {
	base      sym
	accessors []accessor
}

func (p *Parser) idrefStat() error {
	chain, err := p.parseIdref()
	if err != nil {
		return err
	}
	if _, ok := p.match(token.Assign); ok {
		return p.emitAssign(chain)
	}
	if err := p.emitLoadAndCalls(chain); err != nil {
		return err
	}
	p.emit("pop")
	return nil
}

func (p *Parser) parseIdref() (idrefChain, error) {
	name, err := p.expect(token.Id)
	if err != nil {
		return idrefChain{}, err
	}
	chain := idrefChain{base: p.resolve(name.Literal, name.Pos)}
	for {
		switch {
		case p.check(token.Dot):
			p.advance()
			field, err := p.expect(token.Id)
			if err != nil {
				return idrefChain{}, err
			}
			lit := field.Literal
			chain.accessors = append(chain.accessors, accessor{isDot: true, push: func(p *Parser) { p.emit("pushs %q", lit) }})
		case p.check(token.IdxOpen):
			p.advance()
			start := p.pos
			for depth := 0; !(p.check(token.IdxClose) && depth == 0); p.advance() {
				if p.atEnd() {
					return idrefChain{}, fmt.Errorf("%s: expected %s, got %s", p.cur().Pos, token.IdxClose, p.cur().Kind)
				}
				if p.check(token.IdxOpen) {
					depth++
				} else if p.check(token.IdxClose) {
					depth--
				}
			}
			end := p.pos
			if _, err := p.expect(token.IdxClose); err != nil {
				return idrefChain{}, err
			}
			toks := append([]token.Token(nil), p.toks[start:end]...)
			chain.accessors = append(chain.accessors, accessor{push: func(p *Parser) { p.replay(toks) }})
		default:
			return chain, nil
		}
	}
}

// replay re-emits code for a previously parsed sub-expression's token
// span by re-running expr() over it — the same "saved span, re-descend"
// technique forStat uses for its post-statement.
func (p *Parser) replay(toks []token.Token) {
	toks = append(toks, token.Token{Kind: token.EOF})
	saved, savedPos, savedToks := p.pos, p.pos, p.toks
	p.toks, p.pos = toks, 0
	_ = p.expr()
	p.toks, p.pos = savedToks, saved
	_ = savedPos
}

func (p *Parser) emitLoad(chain idrefChain) {
	p.loadSym(chain.base)
	for _, acc := range chain.accessors {
		acc.push(p)
		p.emit("tget")
	}
}

// emitAssign parses the RHS expression and stores it at chain: a bare
// name becomes gstore/lstore, a field/index chain walks every accessor
// but the last via tget to reach the target table, then pushes the final
// key and the RHS value in tput's table,key,value order before tput.
func (p *Parser) emitAssign(chain idrefChain) error {
	if len(chain.accessors) == 0 {
		if err := p.expr(); err != nil {
			return err
		}
		p.storeSym(chain.base)
		return nil
	}
	p.loadSym(chain.base)
	for _, acc := range chain.accessors[:len(chain.accessors)-1] {
		acc.push(p)
		p.emit("tget")
	}
	chain.accessors[len(chain.accessors)-1].push(p)
	if err := p.expr(); err != nil {
		return err
	}
	p.emit("tput")
	return nil
}

// emitLoadAndCalls loads chain and applies every trailing call suffix.
// The first suffix gets method-call treatment when chain ends in a dot
// accessor: `a.b(...)` binds `a` as self and emits calls, so a table of
// bound-looking methods (stigmergy/swarm handles, §4.10-4.11 [FULL]) can
// read its receiver back via vm.VM.Self() without needing a captured
// closure per instance. Anything else — a bare name or an index accessor
// — falls back to the plain callc a closure value normally gets.
func (p *Parser) emitLoadAndCalls(chain idrefChain) error {
	if n := len(chain.accessors); n > 0 && chain.accessors[n-1].isDot && p.check(token.ParOpen) {
		p.loadSym(chain.base)
		for _, acc := range chain.accessors[:n-1] {
			acc.push(p)
			p.emit("tget")
		}
		p.emit("dup") // ..., owner, owner
		chain.accessors[n-1].push(p)
		p.emit("tget") // ..., owner, closure
		if err := p.emitCall(true); err != nil {
			return err
		}
	} else {
		p.emitLoad(chain)
	}
	return p.callSuffixes()
}

// --- expressions (lowest to highest precedence) ---

func (p *Parser) expr() error { return p.orExpr() }

func (p *Parser) cond() error { return p.orExpr() }

func (p *Parser) orExpr() error {
	if err := p.andExpr(); err != nil {
		return err
	}
	for p.check(token.AndOr) && p.cur().Literal == "or" {
		p.advance()
		if err := p.andExpr(); err != nil {
			return err
		}
		p.emit("or")
	}
	return nil
}

func (p *Parser) andExpr() error {
	if err := p.cmpExpr(); err != nil {
		return err
	}
	for p.check(token.AndOr) && p.cur().Literal == "and" {
		p.advance()
		if err := p.cmpExpr(); err != nil {
			return err
		}
		p.emit("and")
	}
	return nil
}

var cmpMnemonic = map[string]string{
	"==": "eq", "!=": "neq", "<": "lt", ">": "gt", "<=": "lte", ">=": "gte",
}

func (p *Parser) cmpExpr() error {
	if err := p.sumExpr(); err != nil {
		return err
	}
	for p.check(token.Cmp) {
		op := p.advance().Literal
		if err := p.sumExpr(); err != nil {
			return err
		}
		p.emit(cmpMnemonic[op])
	}
	return nil
}

func (p *Parser) sumExpr() error {
	if err := p.productExpr(); err != nil {
		return err
	}
	for p.check(token.AddSub) {
		op := p.advance().Literal
		if err := p.productExpr(); err != nil {
			return err
		}
		if op == "+" {
			p.emit("add")
		} else {
			p.emit("sub")
		}
	}
	return nil
}

func (p *Parser) productExpr() error {
	if err := p.moduloExpr(); err != nil {
		return err
	}
	for p.check(token.MulDiv) {
		op := p.advance().Literal
		if err := p.moduloExpr(); err != nil {
			return err
		}
		if op == "*" {
			p.emit("mul")
		} else {
			p.emit("div")
		}
	}
	return nil
}

func (p *Parser) moduloExpr() error {
	if err := p.powerExpr(); err != nil {
		return err
	}
	for p.check(token.Mod) {
		p.advance()
		if err := p.powerExpr(); err != nil {
			return err
		}
		p.emit("mod")
	}
	return nil
}

func (p *Parser) powerExpr() error {
	if err := p.unaryExpr(); err != nil {
		return err
	}
	if p.check(token.Pow) {
		p.advance()
		if err := p.powerExpr(); err != nil { // right-associative
			return err
		}
		p.emit("pow")
	}
	return nil
}

func (p *Parser) unaryExpr() error {
	switch {
	case p.check(token.Not):
		p.advance()
		if err := p.unaryExpr(); err != nil {
			return err
		}
		p.emit("not")
		return nil
	case p.check(token.AddSub) && p.cur().Literal == "-":
		p.advance()
		if err := p.unaryExpr(); err != nil {
			return err
		}
		p.emit("unm")
		return nil
	default:
		return p.operand()
	}
}

func (p *Parser) operand() error {
	switch {
	case p.check(token.Const):
		lit := p.advance().Literal
		if strings.Contains(lit, ".") {
			f, err := strconv.ParseFloat(lit, 32)
			if err != nil {
				return err
			}
			p.emit("pushf %s", strconv.FormatFloat(f, 'g', -1, 32))
		} else {
			n, err := strconv.ParseInt(lit, 10, 32)
			if err != nil {
				return err
			}
			p.emit("pushi %d", n)
		}
		return nil
	case p.check(token.String):
		lit := p.advance().Literal
		p.emit("pushs %q", lit)
		return nil
	case p.check(token.Nil):
		p.advance()
		p.emit("pushnil")
		return nil
	case p.check(token.ParOpen):
		p.advance()
		if err := p.expr(); err != nil {
			return err
		}
		_, err := p.expect(token.ParClose)
		return err
	case p.check(token.BlockOpen):
		return p.tableCtor()
	case p.check(token.Fun):
		return p.funcLiteral(true)
	case p.check(token.Id):
		chain, err := p.parseIdref()
		if err != nil {
			return err
		}
		return p.emitLoadAndCalls(chain)
	default:
		return fmt.Errorf("%s: unexpected token %s %q", p.cur().Pos, p.cur().Kind, p.cur().Literal)
	}
}

// callSuffixes handles zero or more trailing "(args)" call applications
// on whatever value is currently on top of the stack (a loaded idref).
// Every suffix here is a plain callc; the one self-binding call a chain
// can have is emitted by emitLoadAndCalls before this loop ever runs.
func (p *Parser) callSuffixes() error {
	for p.check(token.ParOpen) {
		if err := p.emitCall(false); err != nil {
			return err
		}
	}
	return nil
}

// emitCall consumes "(args)" and emits the matching call instruction.
// withSelf assumes the caller already pushed a self value below the
// closure that's now on top of the stack.
func (p *Parser) emitCall(withSelf bool) error {
	p.advance() // '('
	argc := 0
	p.emit("pusht")
	for !p.check(token.ParClose) {
		p.emit("dup")
		p.emit("pushi %d", argc)
		if err := p.expr(); err != nil {
			return err
		}
		p.emit("tput")
		argc++
		if _, ok := p.match(token.ListSep); !ok {
			break
		}
	}
	if _, err := p.expect(token.ParClose); err != nil {
		return err
	}
	if withSelf {
		p.emit("calls")
	} else {
		p.emit("callc")
	}
	return nil
}

// funcLiteral parses `function "(" params ")" block` and leaves a closure
// value on the stack. lambda is true for function expressions (which
// capture the enclosing function's locals by value via pushl) and makes
// funcLiteral consume the `function` keyword itself; named function
// statements pass lambda=false, after namedFunStat has already consumed
// `function` and the name, and get a non-capturing pushcn closure.
func (p *Parser) funcLiteral(lambda bool) error {
	if lambda {
		p.advance() // 'function'
	}
	if _, err := p.expect(token.ParOpen); err != nil {
		return err
	}

	skip := p.newLabel("fnskip")
	entry := p.newLabel("fnbody")
	p.emit("jump %s", skip)
	p.emit("%s:", entry)

	// A lambda's pushl captures every local slot already declared in the
	// enclosing function (locals[1:], slot 0 being the args table) into the
	// closure, and call() places them at the front of the new activation's
	// own locals, slots 1..numCaptures. So the lambda's own params/locals
	// must start numbering right after that, not at 1 — otherwise a
	// parameter slot would alias a captured value.
	numCaptures := int32(0)
	if lambda {
		numCaptures = p.funcRootScope().nextLocal - 1
	}
	bodyScope := &scope{vars: map[string]sym{}, parent: p.scope, funcRoot: true, nextLocal: 1 + numCaptures}
	outer := p.scope
	p.scope = bodyScope

	paramIdx := 0
	for !p.check(token.ParClose) {
		name, err := p.expect(token.Id)
		if err != nil {
			p.scope = outer
			return err
		}
		s := p.declare(name.Literal)
		p.emit("lload 0")
		p.emit("pushi %d", paramIdx)
		p.emit("tget")
		p.storeSym(s)
		paramIdx++
		if _, ok := p.match(token.ListSep); !ok {
			break
		}
	}
	if _, err := p.expect(token.ParClose); err != nil {
		p.scope = outer
		return err
	}

	if err := p.block(); err != nil {
		p.scope = outer
		return err
	}
	p.emit("pushnil")
	p.emit("ret1")
	p.scope = outer
	p.emit("%s:", skip)

	if lambda {
		p.emit("pushl %s", entry)
	} else {
		p.emit("pushcn %s", entry)
	}
	return nil
}

// tableCtor parses `{ [key =] expr , ... }`. A bare `{1,2,3}` gets
// sequential integer keys; `{x = 1, y = 2}` uses identifier keys as
// strings; `{[expr] = v}` uses a computed key.
func (p *Parser) tableCtor() error {
	p.advance() // '{'
	p.emit("pusht")
	idx := 0
	for !p.check(token.BlockClose) {
		p.emit("dup")
		switch {
		case p.check(token.IdxOpen):
			p.advance()
			if err := p.expr(); err != nil {
				return err
			}
			if _, err := p.expect(token.IdxClose); err != nil {
				return err
			}
			if _, err := p.expect(token.Assign); err != nil {
				return err
			}
		case p.check(token.Id) && p.peekIsColonAssign():
			key := p.advance().Literal
			p.advance() // '='
			p.emit("pushs %q", key)
		default:
			p.emit("pushi %d", idx)
			idx++
		}
		if err := p.expr(); err != nil {
			return err
		}
		p.emit("tput")
		if _, ok := p.match(token.ListSep); !ok {
			break
		}
	}
	_, err := p.expect(token.BlockClose)
	return err
}

// peekIsColonAssign reports whether the identifier at p.pos is
// immediately followed by '=', i.e. a `key = value` table entry rather
// than a bare positional value that happens to start with an identifier
// (e.g. a variable reference).
func (p *Parser) peekIsColonAssign() bool {
	return p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == token.Assign
}
