package rules

import (
	"fmt"

	"github.com/orneryd/graphrule/pkg/graph"
)

// ParseRule parses rule text into a Rule. The grammar:
//
//	Rule        := MatchClause? WhereClause? Body ReturnClause?
//	MatchClause := 'MATCH' PathPattern (',' PathPattern)*
//	WhereClause := 'WHERE' Expression
//	Body        := (CreateClause | SetClause)+
//	CreateClause:= 'CREATE' CreateItem (',' CreateItem)*
//	SetClause   := 'SET' Ident '.' Ident '=' Expression (',' ...)*
//
// Keywords are case-insensitive. Errors are *ParseError values carrying the
// byte offset of the failure.
func ParseRule(text string) (*Rule, error) {
	tokens, err := newLexer(text).lexAll()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	rule, err := p.parseRule()
	if err != nil {
		return nil, err
	}
	rule.Text = text
	return rule, nil
}

// ParseExpression parses a standalone expression, as used by SET values and
// programmatic action construction.
func ParseExpression(text string) (Expr, error) {
	tokens, err := newLexer(text).lexAll()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, p.errorf("unexpected %q after expression", p.peek().text)
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
	anonN  int
}

func (p *parser) parseRule() (*Rule, error) {
	rule := &Rule{}

	if p.atKeyword("MATCH") {
		p.advance()
		for {
			pattern, err := p.parsePathPattern()
			if err != nil {
				return nil, err
			}
			rule.Matches = append(rule.Matches, pattern)
			if !p.at(tokComma) {
				break
			}
			p.advance()
		}
	}

	if p.atKeyword("WHERE") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		rule.Where = expr
	}

	for p.atKeyword("CREATE") || p.atKeyword("SET") {
		if p.atKeyword("CREATE") {
			p.advance()
			for {
				templates, err := p.parseCreateItem()
				if err != nil {
					return nil, err
				}
				rule.Actions = append(rule.Actions, templates...)
				if !p.at(tokComma) {
					break
				}
				p.advance()
			}
		} else {
			p.advance()
			for {
				tmpl, err := p.parseSetItem()
				if err != nil {
					return nil, err
				}
				rule.Actions = append(rule.Actions, tmpl)
				if !p.at(tokComma) {
					break
				}
				p.advance()
			}
		}
	}

	if len(rule.Actions) == 0 {
		return nil, p.errorf("rule requires at least one CREATE or SET clause")
	}

	if p.atKeyword("RETURN") {
		p.advance()
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			rule.Returns = append(rule.Returns, expr)
			if !p.at(tokComma) {
				break
			}
			p.advance()
		}
	}

	if !p.at(tokEOF) {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return rule, nil
}

// ---- patterns ----

func (p *parser) parsePathPattern() (*PathPattern, error) {
	start, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pattern := &PathPattern{Start: start}

	for p.atEdgeStart() {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		pattern.Segments = append(pattern.Segments, Segment{Rel: rel, Node: node})
	}
	return pattern, nil
}

// parseNodePattern parses '(' Ident? (':' Label)* PropertyMap? ')' with
// literal-only property values.
func (p *parser) parseNodePattern() (NodePattern, error) {
	variable, labels, props, err := p.parseNodeElement()
	if err != nil {
		return NodePattern{}, err
	}
	values, err := p.literalProperties(props)
	if err != nil {
		return NodePattern{}, err
	}
	return NodePattern{Variable: variable, Labels: labels, Properties: values}, nil
}

// parseNodeElement parses the shared node syntax with expression-valued
// properties; MATCH folds them to literals, CREATE keeps the expressions.
func (p *parser) parseNodeElement() (string, []string, map[string]Expr, error) {
	if !p.at(tokLParen) {
		return "", nil, nil, p.errorf("expected '(', got %q", p.peek().text)
	}
	p.advance()

	var variable string
	var labels []string

	if p.at(tokIdent) && !p.isReserved(p.peek()) {
		variable = p.peek().text
		p.advance()
	}
	for p.at(tokColon) {
		p.advance()
		if !p.at(tokIdent) {
			return "", nil, nil, p.errorf("expected label after ':'")
		}
		labels = append(labels, p.peek().text)
		p.advance()
	}

	props := map[string]Expr{}
	if p.at(tokLBrace) {
		var err error
		props, err = p.parsePropertyMap()
		if err != nil {
			return "", nil, nil, err
		}
	}

	if !p.at(tokRParen) {
		return "", nil, nil, p.errorf("expected ')', got %q", p.peek().text)
	}
	p.advance()
	return variable, labels, props, nil
}

// atEdgeStart reports whether the next tokens begin a relationship:
// '-' or '<' '-'.
func (p *parser) atEdgeStart() bool {
	if p.at(tokMinus) {
		return true
	}
	return p.at(tokLt) && p.tokens[p.pos+1].typ == tokMinus
}

// parseRelPattern parses Edge '[' Ident? (':' Type)? HopSpec? PropertyMap? ']' Edge.
func (p *parser) parseRelPattern() (RelPattern, error) {
	rel, props, err := p.parseRelElement()
	if err != nil {
		return RelPattern{}, err
	}
	values, err := p.literalProperties(props)
	if err != nil {
		return RelPattern{}, err
	}
	rel.Properties = values
	return rel, nil
}

func (p *parser) parseRelElement() (RelPattern, map[string]Expr, error) {
	rel := RelPattern{Direction: graph.Both}

	incoming := false
	if p.at(tokLt) {
		p.advance()
		if !p.at(tokMinus) {
			return rel, nil, p.errorf("expected '-' after '<'")
		}
		p.advance()
		incoming = true
	} else if p.at(tokMinus) {
		p.advance()
	} else {
		return rel, nil, p.errorf("expected relationship, got %q", p.peek().text)
	}

	props := map[string]Expr{}
	if p.at(tokLBracket) {
		p.advance()

		if p.at(tokIdent) && !p.isReserved(p.peek()) {
			rel.Variable = p.peek().text
			p.advance()
		}
		if p.at(tokColon) {
			p.advance()
			if !p.at(tokIdent) {
				return rel, nil, p.errorf("expected relationship type after ':'")
			}
			rel.Type = p.peek().text
			p.advance()
		}
		if p.at(tokStar) {
			p.advance()
			if err := p.parseHopSpec(&rel); err != nil {
				return rel, nil, err
			}
		}
		if p.at(tokLBrace) {
			var err error
			props, err = p.parsePropertyMap()
			if err != nil {
				return rel, nil, err
			}
		}

		if !p.at(tokRBracket) {
			return rel, nil, p.errorf("expected ']', got %q", p.peek().text)
		}
		p.advance()
	}

	outgoing := false
	if !p.at(tokMinus) {
		return rel, nil, p.errorf("expected '-' after relationship, got %q", p.peek().text)
	}
	p.advance()
	if p.at(tokGt) {
		p.advance()
		outgoing = true
	}

	switch {
	case incoming && outgoing:
		return rel, nil, p.errorf("relationship cannot point both ways")
	case incoming:
		rel.Direction = graph.Incoming
	case outgoing:
		rel.Direction = graph.Outgoing
	default:
		rel.Direction = graph.Both
	}
	return rel, props, nil
}

// parseHopSpec parses the tail of '*' (Int)? ('..' (Int)?)?. The leading
// '*' is already consumed.
func (p *parser) parseHopSpec(rel *RelPattern) error {
	if p.at(tokInt) {
		n := int(p.peek().i)
		rel.MinHops = &n
		p.advance()
	}
	if p.at(tokDotDot) {
		p.advance()
		if p.at(tokInt) {
			n := int(p.peek().i)
			rel.MaxHops = &n
			p.advance()
		} else {
			rel.Unbounded = true
		}
		if rel.MinHops == nil {
			one := 1
			rel.MinHops = &one
		}
	} else if rel.MinHops != nil {
		// '*n' means exactly n hops
		n := *rel.MinHops
		rel.MaxHops = &n
	} else {
		// bare '*' is one-or-more, unbounded
		one := 1
		rel.MinHops = &one
		rel.Unbounded = true
	}
	if rel.MinHops != nil && rel.MaxHops != nil && *rel.MaxHops < *rel.MinHops {
		return p.errorf("invalid hop range *%d..%d", *rel.MinHops, *rel.MaxHops)
	}
	return nil
}

// parsePropertyMap parses '{' (Ident|String) ':' Expression (',' ...)* '}'.
func (p *parser) parsePropertyMap() (map[string]Expr, error) {
	if !p.at(tokLBrace) {
		return nil, p.errorf("expected '{'")
	}
	p.advance()

	props := make(map[string]Expr)
	if p.at(tokRBrace) {
		p.advance()
		return props, nil
	}
	for {
		var key string
		switch {
		case p.at(tokIdent):
			key = p.peek().text
		case p.at(tokString):
			key = p.peek().str
		default:
			return nil, p.errorf("expected property key, got %q", p.peek().text)
		}
		p.advance()

		if !p.at(tokColon) {
			return nil, p.errorf("expected ':' after property key %q", key)
		}
		p.advance()

		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		props[key] = value

		if p.at(tokComma) {
			p.advance()
			continue
		}
		break
	}
	if !p.at(tokRBrace) {
		return nil, p.errorf("expected '}', got %q", p.peek().text)
	}
	p.advance()
	return props, nil
}

// literalProperties folds expression-valued properties into concrete
// values. Match patterns may only constrain on literals.
func (p *parser) literalProperties(props map[string]Expr) (map[string]any, error) {
	values := make(map[string]any, len(props))
	for key, expr := range props {
		v, ok := literalValue(expr)
		if !ok {
			return nil, p.errorf("property %q in a match pattern must be a literal", key)
		}
		values[key] = v
	}
	return values, nil
}

// literalValue reduces an expression to a constant, handling negated
// numbers and lists of literals.
func literalValue(e Expr) (any, bool) {
	switch v := e.(type) {
	case *Literal:
		return v.Value, true
	case *Unary:
		if v.Op != OpNeg {
			return nil, false
		}
		inner, ok := literalValue(v.Operand)
		if !ok {
			return nil, false
		}
		switch n := inner.(type) {
		case int64:
			return -n, true
		case float64:
			return -n, true
		}
		return nil, false
	case *ListExpr:
		items := make([]any, 0, len(v.Items))
		for _, item := range v.Items {
			iv, ok := literalValue(item)
			if !ok {
				return nil, false
			}
			items = append(items, iv)
		}
		return items, true
	}
	return nil, false
}

// ---- CREATE / SET ----

// parseCreateItem parses one CreateItem and lowers it into action
// templates. A node element with at least one label creates a node; a
// bare (x) references an existing binding; properties without a label are
// rejected. Relationships must be directed.
func (p *parser) parseCreateItem() ([]ActionTemplate, error) {
	var templates []ActionTemplate

	variable, labels, props, err := p.parseNodeElement()
	if err != nil {
		return nil, err
	}
	prevVar, tmpl, err := p.lowerCreateNode(variable, labels, props)
	if err != nil {
		return nil, err
	}
	if tmpl != nil {
		templates = append(templates, tmpl)
	}

	for p.atEdgeStart() {
		rel, relProps, err := p.parseRelElement()
		if err != nil {
			return nil, err
		}
		if rel.Direction == graph.Both {
			return nil, p.errorf("CREATE requires a directed relationship")
		}
		if rel.MinHops != nil || rel.MaxHops != nil || rel.Unbounded {
			return nil, p.errorf("CREATE cannot use variable-length relationships")
		}
		if rel.Type == "" {
			return nil, p.errorf("CREATE requires a relationship type")
		}

		nextVariable, nextLabels, nextProps, err := p.parseNodeElement()
		if err != nil {
			return nil, err
		}
		nextVar, nextTmpl, err := p.lowerCreateNode(nextVariable, nextLabels, nextProps)
		if err != nil {
			return nil, err
		}
		if nextTmpl != nil {
			templates = append(templates, nextTmpl)
		}

		from, to := prevVar, nextVar
		if rel.Direction == graph.Incoming {
			from, to = nextVar, prevVar
		}
		templates = append(templates, &CreateRelTemplate{
			Variable:   rel.Variable,
			FromVar:    from,
			ToVar:      to,
			Type:       rel.Type,
			Properties: relProps,
		})
		prevVar = nextVar
	}
	return templates, nil
}

// lowerCreateNode decides whether a node element creates a node or
// references a binding, returning the variable later segments join on.
func (p *parser) lowerCreateNode(variable string, labels []string, props map[string]Expr) (string, ActionTemplate, error) {
	if len(labels) == 0 && len(props) == 0 {
		if variable == "" {
			return "", nil, p.errorf("CREATE node needs a variable, a label, or properties")
		}
		return variable, nil, nil
	}
	if len(labels) == 0 {
		return "", nil, p.errorf("CREATE node requires at least one label")
	}
	if variable == "" {
		p.anonN++
		variable = fmt.Sprintf("_anon%d", p.anonN)
	}
	return variable, &CreateNodeTemplate{Variable: variable, Labels: labels, Properties: props}, nil
}

func (p *parser) parseSetItem() (ActionTemplate, error) {
	if !p.at(tokIdent) || p.isReserved(p.peek()) {
		return nil, p.errorf("expected variable in SET item")
	}
	target := p.peek().text
	p.advance()

	if !p.at(tokDot) {
		return nil, p.errorf("expected '.' in SET item")
	}
	p.advance()

	if !p.at(tokIdent) {
		return nil, p.errorf("expected property name in SET item")
	}
	key := p.peek().text
	p.advance()

	if !p.at(tokEq) {
		return nil, p.errorf("expected '=' in SET item")
	}
	p.advance()

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &SetPropertyTemplate{Target: target, Key: key, Value: value}, nil
}

// ---- expressions ----

// Precedence, loosest first: OR, AND, NOT, comparison/IN/IS NULL,
// additive, multiplicative, unary minus, primary.
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	// Postfix IS NULL / IS NOT NULL
	if p.atKeyword("IS") {
		p.advance()
		negated := false
		if p.atKeyword("NOT") {
			p.advance()
			negated = true
		}
		if !p.atKeyword("NULL") {
			return nil, p.errorf("expected NULL after IS")
		}
		p.advance()
		op := OpIsNull
		if negated {
			op = OpIsNotNull
		}
		return &Unary{Op: op, Operand: left}, nil
	}

	if p.atKeyword("IN") {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: OpIn, Left: left, Right: right}, nil
	}

	var op BinaryOp
	switch p.peek().typ {
	case tokEq:
		op = OpEq
	case tokNe:
		op = OpNe
	case tokLt:
		op = OpLt
	case tokLe:
		op = OpLe
	case tokGt:
		op = OpGt
	case tokGe:
		op = OpGe
	default:
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		op := OpAdd
		if p.at(tokMinus) {
			op = OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(tokStar) || p.at(tokSlash) || p.at(tokPercent) {
		var op BinaryOp
		switch p.peek().typ {
		case tokStar:
			op = OpMul
		case tokSlash:
			op = OpDiv
		default:
			op = OpMod
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.at(tokMinus) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.typ {
	case tokInt:
		p.advance()
		return &Literal{Value: tok.i}, nil
	case tokFloat:
		p.advance()
		return &Literal{Value: tok.f}, nil
	case tokString:
		p.advance()
		return &Literal{Value: tok.str}, nil
	case tokLParen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.at(tokRParen) {
			return nil, p.errorf("expected ')'")
		}
		p.advance()
		return expr, nil
	case tokLBracket:
		p.advance()
		list := &ListExpr{}
		if p.at(tokRBracket) {
			p.advance()
			return list, nil
		}
		for {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
			if p.at(tokComma) {
				p.advance()
				continue
			}
			break
		}
		if !p.at(tokRBracket) {
			return nil, p.errorf("expected ']'")
		}
		p.advance()
		return list, nil
	case tokIdent:
		switch {
		case tok.isKeyword("NULL"):
			p.advance()
			return &Literal{Value: nil}, nil
		case tok.isKeyword("TRUE"):
			p.advance()
			return &Literal{Value: true}, nil
		case tok.isKeyword("FALSE"):
			p.advance()
			return &Literal{Value: false}, nil
		}
		if p.isReserved(tok) {
			return nil, p.errorf("unexpected keyword %q", tok.text)
		}
		p.advance()
		if p.at(tokDot) {
			p.advance()
			if !p.at(tokIdent) {
				return nil, p.errorf("expected property name after '.'")
			}
			prop := p.peek().text
			p.advance()
			return &PropertyAccess{Variable: tok.text, Property: prop}, nil
		}
		return &VarRef{Name: tok.text}, nil
	}
	return nil, p.errorf("unexpected %q", tok.text)
}

// ---- plumbing ----

var reservedWords = []string{
	"MATCH", "WHERE", "CREATE", "SET", "RETURN",
	"AND", "OR", "NOT", "IN", "IS",
}

func (p *parser) isReserved(tok token) bool {
	for _, kw := range reservedWords {
		if tok.isKeyword(kw) {
			return true
		}
	}
	return false
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) at(typ tokenType) bool {
	return p.tokens[p.pos].typ == typ
}

func (p *parser) atKeyword(kw string) bool {
	return p.tokens[p.pos].isKeyword(kw)
}

func (p *parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}
