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
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

var (
	gqlLexer = lexer.Must(newLongestDef(`(\s+)` +
		`|(?P<Keyword>(?i)CREATE|APPEND|READ|MULTIREAD|SUBSCRIBE|INFO|LIST|HELP|WITH|FROM|LIMIT)` +
		`|(?P<Ident>[a-zA-Z_][a-zA-Z0-9_]*)` +
		`|(?P<String>"([^\\"]|\\.)*"|'([^\\']|\\.)*')` +
		`|(?P<Operator>[,=])` +
		`|(?P<Value>[a-zA-Z0-9_\-\\/!@|#$%^&\*+~:\.]+)`,
	))

	parser = participle.MustBuild(
		&Command{},
		participle.Lexer(gqlLexer),
		participle.Unquote("String"),
		participle.CaseInsensitive("Keyword"),
	)
)

type (
	// Command is one shell command
	Command struct {
		Create *Create `  @@`
		Append *Append `| @@`
		Scan   *Scan   `| @@`
		Info   *Info   `| @@`
		List   bool    `| @"LIST"`
		Help   bool    `| @"HELP"`
	}

	// Create is CREATE [<log>] [WITH k=v, ...]. Without the log name a
	// random name is assigned
	Create struct {
		Kw   bool    `"CREATE"`
		Log  string  `(@String|@Ident|@Value)?`
		Meta []*Pair `("WITH" @@ ("," @@)*)?`
	}

	Pair struct {
		Key   string `@Ident`
		Value string `"=" (@String|@Value|@Ident)`
	}

	// Append is APPEND <log> <data>
	Append struct {
		Kw   bool   `"APPEND"`
		Log  string `(@String|@Ident|@Value)`
		Data string `(@String|@Value|@Ident)`
	}

	// Scan is READ|MULTIREAD|SUBSCRIBE <log> [FROM <recno>] [LIMIT <number>].
	// FROM accepts negative numbers relative to the last record
	Scan struct {
		Op    string `@("READ"|"MULTIREAD"|"SUBSCRIBE")`
		Log   string `(@String|@Ident|@Value)`
		From  *int64 `("FROM" @Value)?`
		Limit *int64 `("LIMIT" @Value)?`
	}

	Info struct {
		Kw  bool   `"INFO"`
		Log string `(@String|@Ident|@Value)`
	}
)

// Parse parses the command line
func Parse(cmd string) (*Command, error) {
	c := &Command{}
	if err := parser.ParseString(cmd, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Metadata returns the WITH pairs as a map
func (c *Create) Metadata() map[string]string {
	res := make(map[string]string, len(c.Meta))
	for _, p := range c.Meta {
		res[p.Key] = p.Value
	}
	return res
}

// Kind returns the upper-cased operation keyword
func (s *Scan) Kind() string {
	return strings.ToUpper(s.Op)
}

// FromOr returns FROM value or def if it is not specified
func (s *Scan) FromOr(def int64) int64 {
	if s.From == nil {
		return def
	}
	return *s.From
}

// LimitOr returns LIMIT value or def if it is not specified
func (s *Scan) LimitOr(def int64) int64 {
	if s.Limit == nil {
		return def
	}
	return *s.Limit
}

func (c *Command) String() string {
	switch {
	case c.Create != nil:
		return c.Create.String()
	case c.Append != nil:
		return fmt.Sprint("APPEND ", quote(c.Append.Log), " ", quote(c.Append.Data))
	case c.Scan != nil:
		return c.Scan.String()
	case c.Info != nil:
		return fmt.Sprint("INFO ", quote(c.Info.Log))
	case c.List:
		return "LIST"
	case c.Help:
		return "HELP"
	}
	return ""
}

func (c *Create) String() string {
	var sb strings.Builder
	sb.WriteString("CREATE")
	if c.Log != "" {
		sb.WriteString(" ")
		sb.WriteString(quote(c.Log))
	}
	for i, p := range c.Meta {
		if i == 0 {
			sb.WriteString(" WITH ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Key)
		sb.WriteString("=")
		sb.WriteString(quote(p.Value))
	}
	return sb.String()
}

func (s *Scan) String() string {
	res := s.Kind() + " " + quote(s.Log)
	if s.From != nil {
		res += " FROM " + strconv.FormatInt(*s.From, 10)
	}
	if s.Limit != nil {
		res += " LIMIT " + strconv.FormatInt(*s.Limit, 10)
	}
	return res
}

func quote(s string) string {
	return strconv.Quote(s)
}
