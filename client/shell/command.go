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

package shell

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/api/rpc"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/gql"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/kr/logfmt"
	"github.com/pkg/errors"
)

type (
	// config is shared by the commands of one shell session
	config struct {
		cli api.Client
		eng *event.Engine
		out io.Writer
	}

	metaHandler store.Metadata
)

var helpText = []struct{ cmd, help string }{
	{"create [<log>] [with k=v, ...]", "create new log, a random name is used if <log> is omitted"},
	{"append <log> <data>", "append the data as the next record"},
	{"read <log> [from <recno>] [limit <n>]", "read records, negative recno counts from the end"},
	{"multiread <log> [from <recno>] [limit <n>]", "stream existing records through a subscription"},
	{"subscribe <log> [from <recno>] [limit <n>]", "follow the log, from the next record by default"},
	{"info <log>", "show the log description"},
	{"list", "list all logs"},
	{"help", "show help"},
	{"quit", "exit the program"},
}

func newConfig(cli api.Client, out io.Writer) (*config, error) {
	eng := event.NewEngine()
	if err := eng.Init(context.Background()); err != nil {
		return nil, err
	}
	return &config{cli: cli, eng: eng, out: out}, nil
}

func (cfg *config) close() {
	cfg.eng.Shutdown()
}

// Exec runs one command and writes its result to out
func Exec(ctx context.Context, cli api.Client, line string, out io.Writer) error {
	cfg, err := newConfig(cli, out)
	if err != nil {
		return err
	}
	defer cfg.close()
	return execCmd(ctx, line, cfg)
}

func execCmd(ctx context.Context, line string, cfg *config) error {
	c, err := gql.Parse(line)
	if err != nil {
		return err
	}

	switch {
	case c.Create != nil:
		return createFn(ctx, c.Create, cfg)
	case c.Append != nil:
		return appendFn(ctx, c.Append, cfg)
	case c.Scan != nil:
		switch c.Scan.Kind() {
		case "READ":
			return readFn(ctx, c.Scan, cfg)
		case "MULTIREAD":
			return multireadFn(ctx, c.Scan, cfg)
		}
		return subscribeFn(ctx, c.Scan, cfg)
	case c.Info != nil:
		return infoFn(ctx, c.Info.Log, cfg)
	case c.List:
		return listFn(ctx, cfg)
	case c.Help:
		return helpFn(cfg)
	}
	return errors.Errorf("unknown command %q", line)
}

// ParseName returns the log name by its printable or human readable form.
// The second value is true if s is a human readable name.
func ParseName(s string) (name.Name, bool, error) {
	n, err := name.Parse(s)
	if err != nil {
		return n, false, err
	}
	return n, n.String() != s, nil
}

// ParseMeta parses metadata in logfmt form, e.g. `dsc="room 1" unit=C`
func ParseMeta(s string) (store.Metadata, error) {
	md := make(store.Metadata)
	if err := logfmt.Unmarshal([]byte(s), metaHandler(md)); err != nil {
		return nil, errors.Wrapf(err, "could not parse metadata %q", s)
	}
	return md, nil
}

func (mh metaHandler) HandleLogfmt(key, val []byte) error {
	mh[string(key)] = string(val)
	return nil
}

//===================== create =====================

func createFn(ctx context.Context, cr *gql.Create, cfg *config) error {
	md := store.Metadata(cr.Metadata())
	return Create(ctx, cfg.cli, cr.Log, md, cfg.out)
}

// Create creates the log. The random name is used if log is empty, the human
// readable name is kept in the metadata.
func Create(ctx context.Context, cli api.Client, log string, md store.Metadata, out io.Writer) error {
	md = md.Copy(1)
	n := name.New()
	if log != "" {
		var (
			human bool
			err   error
		)
		if n, human, err = ParseName(log); err != nil {
			return err
		}
		if human {
			md[store.MdExternalName] = log
		}
	}

	li, err := cli.Create(ctx, n, md)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s\n", li.Name)
	return nil
}

//===================== append =====================

func appendFn(ctx context.Context, ap *gql.Append, cfg *config) error {
	n, _, err := ParseName(ap.Log)
	if err != nil {
		return err
	}
	rec, err := cfg.cli.Append(ctx, n, []byte(ap.Data))
	if err != nil {
		return err
	}
	fmt.Fprintf(cfg.out, "appended recno=%d ts=%s\n", rec.Recno, rec.Ts)
	return nil
}

//===================== read =====================

func readFn(ctx context.Context, sc *gql.Scan, cfg *config) error {
	n, _, err := ParseName(sc.Log)
	if err != nil {
		return err
	}

	recno := sc.FromOr(1)
	left := sc.LimitOr(0)
	total := 0
	start := time.Now()
	for left >= 0 && ctx.Err() == nil {
		nrecs := api.MaxReadRecords
		if left > 0 && left < int64(nrecs) {
			nrecs = int(left)
		}

		recs, err := cfg.cli.Read(ctx, n, recno, nrecs)
		if status.FromError(err) == status.NotFound && total > 0 {
			break
		}
		if err != nil {
			return err
		}

		for _, r := range recs {
			printRecord(cfg.out, r)
		}
		total += len(recs)
		if len(recs) < nrecs {
			break
		}
		recno = recs[len(recs)-1].Recno + 1
		if left > 0 {
			if left -= int64(len(recs)); left == 0 {
				break
			}
		}
	}

	fmt.Fprintf(cfg.out, "\ntotal: %s, exec. time %s\n\n", humanize.Comma(int64(total)), time.Since(start))
	return nil
}

//===================== multiread, subscribe =====================

func multireadFn(ctx context.Context, sc *gql.Scan, cfg *config) error {
	n, _, err := ParseName(sc.Log)
	if err != nil {
		return err
	}
	s, err := cfg.eng.Multiread(rpc.NewRemoteLog(cfg.cli, n), sc.FromOr(1), sc.LimitOr(0))
	if err != nil {
		return err
	}
	return printStream(ctx, s, cfg.out)
}

func subscribeFn(ctx context.Context, sc *gql.Scan, cfg *config) error {
	n, _, err := ParseName(sc.Log)
	if err != nil {
		return err
	}

	from := sc.From
	if from == nil {
		li, err := cfg.cli.Info(ctx, n)
		if err != nil {
			return err
		}
		next := li.LastRecno + 1
		from = &next
	}

	s, err := cfg.eng.Subscribe(rpc.NewRemoteLog(cfg.cli, n), *from, sc.LimitOr(0))
	if err != nil {
		return err
	}
	return printStream(ctx, s, cfg.out)
}

func printStream(ctx context.Context, s *event.Stream, out io.Writer) error {
	defer s.Cancel()
	total := 0
	err := s.ForEach(ctx, func(ev *event.Event) error {
		switch ev.Type {
		case event.Data:
			printRecord(out, *ev.Record)
			total++
		case event.EndOfSubscription:
			if st := ev.Status; st.IsError() {
				fmt.Fprintf(out, "subscription is over: %s\n", st)
			}
		case event.Shutdown:
			fmt.Fprintln(out, "shutdown")
		}
		return nil
	})
	if ctx.Err() != nil {
		err = nil
	}
	fmt.Fprintf(out, "\ntotal: %s\n\n", humanize.Comma(int64(total)))
	return err
}

//===================== info, list =====================

func infoFn(ctx context.Context, log string, cfg *config) error {
	n, _, err := ParseName(log)
	if err != nil {
		return err
	}
	li, err := cfg.cli.Info(ctx, n)
	if err != nil {
		return err
	}

	fmt.Fprintf(cfg.out, "\n%12s  %s", "NAME", li.Name)
	fmt.Fprintf(cfg.out, "\n%12s  %s", "HEX", li.Name.Hex())
	fmt.Fprintf(cfg.out, "\n%12s  %s", "RECORDS", humanize.Comma(li.LastRecno))
	if ct, err := time.Parse(time.RFC3339Nano, li.Metadata[store.MdCreationTime]); err == nil {
		fmt.Fprintf(cfg.out, "\n%12s  %s (%s)", "CREATED", ct.Format(time.RFC3339), humanize.Time(ct))
	}
	fmt.Fprintf(cfg.out, "\n%12s  %s\n\n", "METADATA", li.Metadata)
	return nil
}

func listFn(ctx context.Context, cfg *config) error {
	names, err := cfg.cli.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cfg.out, n)
	}
	fmt.Fprintf(cfg.out, "\ntotal: %d logs\n\n", len(names))
	return nil
}

//===================== help =====================

func helpFn(cfg *config) error {
	fmt.Fprintf(cfg.out, "\n\t%-10s\n", "[HELP]")
	for _, h := range helpText {
		fmt.Fprintf(cfg.out, "\n\t%-45s %s", h.cmd, h.help)
	}
	fmt.Fprint(cfg.out, "\n\n")
	return nil
}

func printRecord(w io.Writer, r records.Record) {
	data := string(r.Data)
	if !utf8.ValidString(data) {
		data = strconv.QuoteToASCII(data)
	}
	fmt.Fprintf(w, "%8d  %s  %8s  %s\n", r.Recno, r.Ts, humanize.Bytes(uint64(len(r.Data))), data)
}
