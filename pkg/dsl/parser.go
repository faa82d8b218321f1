package dsl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Node is one rule match in the parse tree. Tokens holds the rule's
// significant tokens in source order; keywords are dropped.
type Node struct {
	Rule     string
	Tokens   []Token
	Children []*Node
}

// Child returns the first child node with the given rule.
func (n *Node) Child(rule string) *Node {
	for _, child := range n.Children {
		if child.Rule == rule {
			return child
		}
	}
	return nil
}

// Tree is a parsed command line: an optional head command followed by
// zero or more modifiers.
type Tree struct {
	Head      *Node
	Modifiers []*Node
}

// SyntaxError reports input the grammar does not accept.
type SyntaxError struct {
	Input  string
	Pos    int
	Token  string
	Reason string
}

func (e *SyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s at position %d near %q", e.Reason, e.Pos, e.Token)
	}
	return fmt.Sprintf("%s at position %d", e.Reason, e.Pos)
}

// Usage is the short grammar summary shown with syntax errors.
const Usage = "Syntax: verb kind target. " +
	`play/queue/search/info kind "name"|ID, ` +
	`library add/remove kind target [in playlist "name"], ` +
	"pause, resume, skip [n], seek secs, status [limit n], " +
	"modifiers: volume n|+n|-n, mode shuffle|repeat|normal, device \"name\""

// MaxSeekSeconds is the largest accepted seek position. It is exact as a
// float64 and its millisecond value fits in an int64.
const MaxSeekSeconds = 1e15

type class int

const (
	classNone class = iota
	classAction
	classQuery
)

var (
	unsignedInt = regexp.MustCompile(`^[0-9]+$`)
	signedInt   = regexp.MustCompile(`^[+-]?[0-9]+$`)
	deltaInt    = regexp.MustCompile(`^[+-][0-9]+$`)
	seconds     = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

type headRule func(p *parser) (*Node, class, error)

var headRules = map[string]headRule{
	"play":      (*parser).play,
	"pause":     bare("pause", classAction),
	"resume":    bare("resume", classAction),
	"skip":      (*parser).skip,
	"seek":      (*parser).seek,
	"queue":     (*parser).queue,
	"library":   (*parser).library,
	"search":    (*parser).search,
	"info":      (*parser).info,
	"recommend": (*parser).recommend,
	"status":    bare("status", classQuery),
}

var modifierKeywords = map[string]class{
	"volume": classAction,
	"mode":   classAction,
	"device": classAction,
	"limit":  classQuery,
	"offset": classQuery,
}

// ParseTree lexes and parses a command line. Head selection is by the
// first keyword, optional elements match greedily and there is no
// backtracking, so every accepted input has exactly one tree.
func ParseTree(input string) (*Tree, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	if len(tokens) == 0 {
		return nil, p.fail("empty command")
	}

	tree := &Tree{}
	cls := classNone
	first := tokens[0].keyword()
	if _, isModifier := modifierKeywords[first]; !isModifier {
		rule, ok := headRules[first]
		if !ok {
			return nil, p.fail("unknown command")
		}
		p.pos++
		tree.Head, cls, err = rule(p)
		if err != nil {
			return nil, err
		}
	}

	for !p.done() {
		mod, err := p.modifier(cls)
		if err != nil {
			return nil, err
		}
		tree.Modifiers = append(tree.Modifiers, mod)
	}
	if tree.Head == nil && len(tree.Modifiers) == 0 {
		return nil, p.fail("empty command")
	}
	return tree, nil
}

// Parse turns a command line into a Command.
func Parse(input string) (Command, error) {
	tree, err := ParseTree(input)
	if err != nil {
		return Command{}, err
	}
	return Transform(tree)
}

type parser struct {
	input  string
	tokens []Token
	pos    int
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() (Token, bool) {
	if p.done() {
		return Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) peekKeyword(word string) bool {
	tok, ok := p.peek()
	return ok && tok.keyword() == word
}

func (p *parser) fail(reason string) error {
	tok, ok := p.peek()
	if !ok {
		return &SyntaxError{Input: p.input, Pos: len([]rune(p.input)), Reason: reason}
	}
	return &SyntaxError{Input: p.input, Pos: tok.Pos, Token: tok.Text, Reason: reason}
}

func (p *parser) expectKeyword(word string) error {
	if !p.peekKeyword(word) {
		return p.fail(fmt.Sprintf("expected %q", word))
	}
	p.pos++
	return nil
}

func (p *parser) kind() (Token, error) {
	tok, ok := p.peek()
	if !ok || tok.Quoted() {
		return Token{}, p.fail("expected kind (track, album, artist, playlist)")
	}
	if _, ok := ParseKind(tok.Text); !ok {
		return Token{}, p.fail("expected kind (track, album, artist, playlist)")
	}
	p.pos++
	return tok, nil
}

func (p *parser) isTarget() bool {
	tok, ok := p.peek()
	return ok && (tok.Quoted() || IsBareID(tok.Text))
}

func (p *parser) target() (Token, error) {
	if !p.isTarget() {
		return Token{}, p.fail("expected quoted name or 22 character id")
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, nil
}

func (p *parser) targets() ([]Token, error) {
	first, err := p.target()
	if err != nil {
		return nil, err
	}
	out := []Token{first}
	for p.isTarget() {
		out = append(out, p.tokens[p.pos])
		p.pos++
	}
	return out, nil
}

func (p *parser) number(pattern *regexp.Regexp, what string) (Token, error) {
	tok, ok := p.peek()
	if !ok || tok.Quoted() || !pattern.MatchString(tok.Text) {
		return Token{}, p.fail("expected " + what)
	}
	if pattern == seconds {
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil || v > MaxSeekSeconds {
			return Token{}, p.fail(what + " out of range")
		}
	} else if _, err := strconv.Atoi(tok.Text); err != nil {
		return Token{}, p.fail(what + " out of range")
	}
	p.pos++
	return tok, nil
}

// context parses `in <kind> <target>`. When playlistOnly is set the kind
// must be playlist.
func (p *parser) context(playlistOnly bool) (*Node, error) {
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	if playlistOnly && !p.peekKeyword(string(KindPlaylist)) {
		return nil, p.fail(`expected "playlist"`)
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	target, err := p.target()
	if err != nil {
		return nil, err
	}
	return &Node{Rule: "context", Tokens: []Token{kind, target}}, nil
}

func bare(rule string, cls class) headRule {
	return func(*parser) (*Node, class, error) {
		return &Node{Rule: rule}, cls, nil
	}
}

func (p *parser) play() (*Node, class, error) {
	kind, err := p.kind()
	if err != nil {
		return nil, 0, err
	}
	target, err := p.target()
	if err != nil {
		return nil, 0, err
	}
	node := &Node{Rule: "play", Tokens: []Token{kind, target}}
	if p.peekKeyword("in") {
		ctx, err := p.context(false)
		if err != nil {
			return nil, 0, err
		}
		node.Children = append(node.Children, ctx)
	}
	return node, classAction, nil
}

func (p *parser) skip() (*Node, class, error) {
	node := &Node{Rule: "skip"}
	if tok, ok := p.peek(); ok && !tok.Quoted() && signedInt.MatchString(tok.Text) {
		n, err := p.number(signedInt, "skip count")
		if err != nil {
			return nil, 0, err
		}
		node.Tokens = append(node.Tokens, n)
	}
	return node, classAction, nil
}

func (p *parser) seek() (*Node, class, error) {
	pos, err := p.number(seconds, "position in seconds")
	if err != nil {
		return nil, 0, err
	}
	return &Node{Rule: "seek", Tokens: []Token{pos}}, classAction, nil
}

func (p *parser) queue() (*Node, class, error) {
	kind, err := p.kind()
	if err != nil {
		return nil, 0, err
	}
	targets, err := p.targets()
	if err != nil {
		return nil, 0, err
	}
	return &Node{Rule: "queue", Tokens: append([]Token{kind}, targets...)}, classAction, nil
}

func (p *parser) library() (*Node, class, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, 0, p.fail("expected add, remove, create, delete or list")
	}
	verb := tok.keyword()
	switch verb {
	case "add", "remove":
		p.pos++
		kind, err := p.kind()
		if err != nil {
			return nil, 0, err
		}
		targets, err := p.targets()
		if err != nil {
			return nil, 0, err
		}
		node := &Node{Rule: "library_" + verb, Tokens: append([]Token{kind}, targets...)}
		if p.peekKeyword("in") {
			ctx, err := p.context(true)
			if err != nil {
				return nil, 0, err
			}
			node.Children = append(node.Children, ctx)
		}
		return node, classAction, nil
	case "create", "delete":
		p.pos++
		if err := p.expectKeyword(string(KindPlaylist)); err != nil {
			return nil, 0, err
		}
		target, err := p.target()
		if err != nil {
			return nil, 0, err
		}
		return &Node{Rule: "library_" + verb, Tokens: []Token{target}}, classAction, nil
	case "list":
		p.pos++
		kind, err := p.kind()
		if err != nil {
			return nil, 0, err
		}
		return &Node{Rule: "library_list", Tokens: []Token{kind}}, classQuery, nil
	default:
		return nil, 0, p.fail("expected add, remove, create, delete or list")
	}
}

func (p *parser) search() (*Node, class, error) {
	kind, err := p.kind()
	if err != nil {
		return nil, 0, err
	}
	node := &Node{Rule: "search", Tokens: []Token{kind}}
	for {
		tok, ok := p.peek()
		if !ok || !tok.Quoted() {
			break
		}
		node.Tokens = append(node.Tokens, tok)
		p.pos++
	}
	if len(node.Tokens) == 1 {
		return nil, 0, p.fail("expected quoted search term")
	}
	return node, classQuery, nil
}

func (p *parser) info() (*Node, class, error) {
	kind, err := p.kind()
	if err != nil {
		return nil, 0, err
	}
	target, err := p.target()
	if err != nil {
		return nil, 0, err
	}
	return &Node{Rule: "info", Tokens: []Token{kind, target}}, classQuery, nil
}

func (p *parser) recommend() (*Node, class, error) {
	kind, err := p.kind()
	if err != nil {
		return nil, 0, err
	}
	node := &Node{Rule: "recommend", Tokens: []Token{kind}}
	if tok, ok := p.peek(); ok && !tok.Quoted() && unsignedInt.MatchString(tok.Text) {
		n, err := p.number(unsignedInt, "count")
		if err != nil {
			return nil, 0, err
		}
		node.Tokens = append(node.Tokens, n)
	}
	ctx, err := p.context(true)
	if err != nil {
		return nil, 0, err
	}
	node.Children = append(node.Children, ctx)
	return node, classQuery, nil
}

func (p *parser) modifier(cls class) (*Node, error) {
	tok, _ := p.peek()
	word := tok.keyword()
	want, ok := modifierKeywords[word]
	if !ok {
		return nil, p.fail("unexpected token")
	}
	switch {
	case want == classAction && cls == classQuery:
		return nil, p.fail(word + " cannot modify a query")
	case want == classQuery && cls != classQuery:
		return nil, p.fail(word + " only applies to queries")
	}
	p.pos++

	switch word {
	case "volume":
		next, ok := p.peek()
		if ok && !next.Quoted() && deltaInt.MatchString(next.Text) {
			n, err := p.number(deltaInt, "volume change")
			if err != nil {
				return nil, err
			}
			return &Node{Rule: "volume_rel", Tokens: []Token{n}}, nil
		}
		n, err := p.number(unsignedInt, "volume 0-100 or +n/-n")
		if err != nil {
			return nil, err
		}
		return &Node{Rule: "volume", Tokens: []Token{n}}, nil
	case "mode":
		next, ok := p.peek()
		if !ok || next.Quoted() {
			return nil, p.fail("expected shuffle, repeat or normal")
		}
		switch strings.ToLower(next.Text) {
		case ModeShuffle, ModeRepeat, ModeNormal:
		default:
			return nil, p.fail("expected shuffle, repeat or normal")
		}
		p.pos++
		return &Node{Rule: "mode", Tokens: []Token{next}}, nil
	case "device":
		next, ok := p.peek()
		if !ok || !next.Quoted() {
			return nil, p.fail("expected quoted device name")
		}
		p.pos++
		return &Node{Rule: "device", Tokens: []Token{next}}, nil
	default:
		n, err := p.number(unsignedInt, word+" count")
		if err != nil {
			return nil, err
		}
		return &Node{Rule: word, Tokens: []Token{n}}, nil
	}
}
