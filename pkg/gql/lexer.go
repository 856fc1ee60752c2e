// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gql

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"regexp"
	"unicode/utf8"

	"github.com/alecthomas/participle/lexer"
)

// longestDef is a regexp lexer definition, which picks the longest match
// among the named groups. Each named group is a token type, anonymous groups
// are matched and skipped.
type longestDef struct {
	re      *regexp.Regexp
	symbols map[string]rune
}

type longestLexer struct {
	def *longestDef
	pos lexer.Position
	buf []byte
}

var newLine = []byte("\n")

func newLongestDef(pattern string) (*longestDef, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	re.Longest()

	d := &longestDef{re: re, symbols: map[string]rune{"EOF": lexer.EOF}}
	for i, nm := range re.SubexpNames() {
		if i > 0 && nm != "" {
			d.symbols[nm] = tokenType(i)
		}
	}
	return d, nil
}

func tokenType(group int) rune {
	return lexer.EOF - rune(group)
}

func (d *longestDef) Symbols() map[string]rune {
	return d.symbols
}

func (d *longestDef) Lex(r io.Reader) (lexer.Lexer, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	ll := &longestLexer{def: d, buf: buf}
	ll.pos = lexer.Position{Filename: lexer.NameOfReader(r), Line: 1, Column: 1}
	return ll, nil
}

func (l *longestLexer) Next() (lexer.Token, error) {
	names := l.def.re.SubexpNames()
	for len(l.buf) > 0 {
		m := l.def.re.FindSubmatchIndex(l.buf)
		if m == nil || m[0] != 0 {
			rn, _ := utf8.DecodeRune(l.buf)
			return lexer.Token{}, fmt.Errorf("unexpected %q at %s", rn, l.pos)
		}

		tok := lexer.Token{Pos: l.pos, Value: string(l.buf[:m[1]])}
		l.advance(m[1])

		for g := 1; 2*g < len(m); g++ {
			if m[2*g] < 0 {
				continue
			}
			if names[g] == "" {
				break
			}
			tok.Type = tokenType(g)
			return tok, nil
		}
	}
	return lexer.EOFToken(l.pos), nil
}

func (l *longestLexer) advance(n int) {
	chunk := l.buf[:n]
	l.pos.Offset += n
	if nl := bytes.Count(chunk, newLine); nl > 0 {
		l.pos.Line += nl
		l.pos.Column = utf8.RuneCount(chunk[bytes.LastIndex(chunk, newLine):])
	} else {
		l.pos.Column += utf8.RuneCount(chunk)
	}
	l.buf = l.buf[n:]
}
