package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/asdf"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/models"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/stnode"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	switch sub {
	case "uris":
		urisCmd(os.Args[2:])
	case "check":
		checkCmd(os.Args[2:])
	case "new":
		newCmd(os.Args[2:])
	case "schema":
		schemaCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "dmctl: inspect and check data model files\n\nUsage:\n  dmctl uris [-json]\n  dmctl check [-flush required|all|extra] [-lazy] [-o out.yaml] [-metrics] file.yaml|file.json\n  dmctl new -model WfiImage [-flush required|all|extra] [-o out.yaml]\n  dmctl schema <schema-uri|tag-uri>\n\nEnvironment:\n  DATAMODELS_VALIDATE=false           skip validation on assignment and read\n  DATAMODELS_STRICT_VALIDATION=false  load out-of-range enumerated values with a warning")
}

type uriEntry struct {
	URI   string `json:"uri"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Model bool   `json:"model"`
}

func urisCmd(args []string) {
	fs := flag.NewFlagSet("uris", flag.ExitOnError)
	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = fs.Parse(args)

	models.Init()
	reg := registry.Default()
	var out []uriEntry
	add := func(kind string, uris []string, lookup func(string) (registry.Registrable, bool)) {
		for _, u := range uris {
			e, ok := lookup(u)
			if !ok {
				continue
			}
			_, model := e.(*stnode.Class)
			out = append(out, uriEntry{URI: u, Kind: kind, Name: e.Name(), Role: e.Role().String(), Model: model})
		}
	}
	add("schema", reg.SchemaURIs(), reg.LookupBySchema)
	add("tag", reg.TagURIs(), reg.LookupByTag)

	if asJSON {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fatalf("encode: %v", err)
		}
		fmt.Println(string(b))
		return
	}
	for _, e := range out {
		fmt.Printf("%-6s %-14s %-28s %s\n", e.Kind, e.Role, e.Name, e.URI)
	}
}

func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	var flush, out string
	var lazy, showMetrics bool
	fs.StringVar(&flush, "flush", "", "materialize defaults before writing: required, all or extra")
	fs.BoolVar(&lazy, "lazy", false, "defer nested tagged subtrees until accessed")
	fs.StringVar(&out, "o", "", "write the checked tree to this file (- for stdout)")
	fs.BoolVar(&showMetrics, "metrics", false, "print collected metrics to stderr")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	if showMetrics {
		defer dumpMetrics(os.Stderr)
	}

	eng := models.Engine()
	if lazy {
		eng = models.LazyEngine()
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fatalf("open: %v", err)
	}
	decode := eng.Decode
	if strings.HasSuffix(fs.Arg(0), ".json") {
		decode = eng.DecodeJSON
	}
	v, err := decode(f)
	_ = f.Close()
	if err != nil {
		report(err)
		os.Exit(1)
	}
	node, ok := v.(stnode.Node)
	if !ok {
		fatalf("%s: top-level value is %T, not a model node", fs.Arg(0), v)
	}
	if err := validate(node); err != nil {
		report(err)
		os.Exit(1)
	}
	if flush != "" {
		mode, err := stnode.ParseFlushMode(flush)
		if err != nil {
			fatalf("%v", err)
		}
		if err := stnode.Flush(node, mode, true); err != nil {
			fatalf("flush: %v", err)
		}
	}
	fmt.Fprintf(os.Stderr, "%s: ok (%s)\n", fs.Arg(0), describe(node))
	if out != "" {
		write(eng, node, out)
	}
}

func newCmd(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	var model, flush, out string
	fs.StringVar(&model, "model", "", "class name of the data or reference model")
	fs.StringVar(&flush, "flush", "required", "defaults to materialize: required, all or extra")
	fs.StringVar(&out, "o", "-", "output filename (- for stdout)")
	_ = fs.Parse(args)
	if model == "" {
		fs.Usage()
		os.Exit(2)
	}
	models.Init()
	var cls *stnode.Class
	var names []string
	for _, c := range models.Classes() {
		if c.Name() == model {
			cls = c
		}
		names = append(names, c.Name())
	}
	if cls == nil {
		sort.Strings(names)
		fatalf("unknown model %q (known: %s)", model, strings.Join(names, ", "))
	}
	obj, err := stnode.NewObject(cls, nil)
	if err != nil {
		fatalf("%v", err)
	}
	mode, err := stnode.ParseFlushMode(flush)
	if err != nil {
		fatalf("%v", err)
	}
	if err := obj.Flush(mode, true); err != nil {
		fatalf("flush: %v", err)
	}
	write(models.Engine(), obj, out)
}

// schemaCmd prints the JSON Schema projection of a model schema, accepting
// either its schema URI or a tag serializing it.
func schemaCmd(args []string) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	models.Init()
	uri := fs.Arg(0)
	if e, ok := registry.Default().ModelByTag(uri); ok {
		if cls, ok := e.(*stnode.Class); ok {
			if s, ok := cls.SchemaForTag(uri); ok {
				uri = s
			}
		}
	}
	d, err := models.Catalog.Lookup(uri)
	if err != nil {
		fatalf("%v", err)
	}
	b, err := d.MarshalJSONSchema()
	if err != nil {
		fatalf("encode: %v", err)
	}
	fmt.Println(string(b))
}

func validate(n stnode.Node) error {
	if v, ok := n.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

func describe(n stnode.Node) string {
	if tn, ok := n.(stnode.TaggedNode); ok && tn.Tag() != "" {
		return tn.Tag()
	}
	if n.Class() != nil {
		return n.Class().Name()
	}
	return "untyped"
}

func write(eng *asdf.Engine, v any, out string) {
	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			fatalf("create: %v", err)
		}
		defer f.Close()
		w = f
	}
	if strings.HasSuffix(out, ".json") {
		b, err := eng.ToJSON(v)
		if err == nil {
			_, err = w.Write(append(b, '\n'))
		}
		if err != nil {
			report(err)
			os.Exit(1)
		}
		return
	}
	if err := eng.Encode(w, v); err != nil {
		report(err)
		os.Exit(1)
	}
}

func report(err error) {
	if ve, ok := dm.AsValidationError(err); ok {
		fmt.Fprintf(os.Stderr, "invalid %s:\n", ve.Node)
		for _, it := range ve.Issues {
			fmt.Fprintf(os.Stderr, "  %s: %s (%s)\n", it.Path, it.Message, it.Code)
		}
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
}

func dumpMetrics(w io.Writer) {
	mfs, err := metrics.Registry().Gather()
	if err != nil {
		fmt.Fprintln(w, "metrics:", err)
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			val := m.GetCounter().GetValue()
			if g := m.GetGauge(); g != nil {
				val = g.GetValue()
			}
			fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), val)
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
