package dsl

// ParseFilter parses a filter string into a sequence of Comparison nodes.
// An empty string parses to zero comparisons (§4.1: "Empty filter string
// => parse succeeds with zero comparisons"). Any unconsumed suffix after a
// syntactically complete parse is itself a failure.
func ParseFilter(input string) ([]Comparison, error) {
	s := &scanner{input: input}
	s.skipSpace()
	if s.eof() {
		return nil, nil
	}

	var comparisons []Comparison
	for {
		c, err := s.parseComparison()
		if err != nil {
			return nil, err
		}
		comparisons = append(comparisons, c)

		s.skipSpace()
		if s.eof() {
			break
		}
		if !s.consumeKeywordCI("AND") {
			return nil, &ParseError{Offset: s.pos, Expected: "AND or end of input"}
		}
		s.skipSpace()
	}

	if !s.eof() {
		return nil, &ParseError{Offset: s.pos, Expected: "end of input"}
	}
	return comparisons, nil
}

// parseComparison parses `identifier comparator literal`, the single leaf
// production of the filter grammar.
func (s *scanner) parseComparison() (Comparison, error) {
	ident, err := s.parseIdentifier()
	if err != nil {
		return Comparison{}, err
	}
	s.skipSpace()
	cmp, err := s.parseComparator()
	if err != nil {
		return Comparison{}, err
	}
	s.skipSpace()
	lit, err := s.parseLiteral()
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{Identifier: ident, Comparator: cmp, Literal: lit}, nil
}

// ParseOrderBy parses a single order-by clause: one identifier optionally
// followed by ASC/DESC (case-insensitive), defaulting to Ascending. The
// store-level order-by parameter is a list of such strings; callers parse
// each entry independently with this function.
func ParseOrderBy(input string) (OrderByClause, error) {
	s := &scanner{input: input}
	s.skipSpace()

	ident, err := s.parseIdentifier()
	if err != nil {
		return OrderByClause{}, err
	}

	s.skipSpace()
	direction := Ascending
	if s.consumeKeywordCI("DESC") {
		direction = Descending
	} else if s.consumeKeywordCI("ASC") {
		direction = Ascending
	}

	s.skipSpace()
	if !s.eof() {
		return OrderByClause{}, &ParseError{Offset: s.pos, Expected: "end of input"}
	}
	return OrderByClause{Identifier: ident, Direction: direction}, nil
}
