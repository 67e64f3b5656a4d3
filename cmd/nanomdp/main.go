package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/dump"
	"github.com/nanomdp/nanomdp/internal/loader"
	"github.com/nanomdp/nanomdp/internal/options"
	"github.com/nanomdp/nanomdp/internal/stubs"
	"github.com/nanomdp/nanomdp/internal/tables"
	"github.com/nanomdp/nanomdp/pkg"
)

const (
	exitOK = iota
	exitUsage
	exitLoad
	exitLowering
	exitIO
)

func main() {
	in_path := flag.String("in", "", "input PE assembly")
	out_path := flag.String("out", "", "output nano image")
	dump_path := flag.String("dump", "", "write a textual dump here")
	exclude_path := flag.String("exclude", "", "file listing excluded type names")
	order_path := flag.String("order", "", "file fixing the type emission order")
	stubs_dir := flag.String("stubs", "", "directory for native stub headers")
	compress_attrs := flag.Bool("compress-attrs", false, "pre-sort attributes for runtime folding")
	expand_enums := flag.Bool("expand-enums", false, "encode enums as their underlying type")
	log_level := flag.String("log", "err", "log level: none, err, debug")
	debug_graph := flag.Bool("debug", false, "dump the loaded object graph")

	flag.Parse()
	pkg.SetLogLevel(pkg.ParseLogLevel(*log_level))
	if *debug_graph {
		pkg.SetLogLevel(pkg.LogLevelDebug)
	}

	if *in_path == "" || *out_path == "" {
		fmt.Fprintln(os.Stderr, "usage: nanomdp -in <assembly> -out <image> [options]")
		flag.PrintDefaults()
		os.Exit(exitUsage)
	}

	opts := tables.Options{
		CompressAttributes: *compress_attrs,
		ExpandEnums:        *expand_enums,
	}
	if *exclude_path != "" {
		set, err := options.ReadExcludeSet(*exclude_path)
		if err != nil {
			pkg.ErrorLog("reading exclude list:", err)
			os.Exit(exitUsage)
		}
		opts.ExcludedTypes = set
	}
	if *order_path != "" {
		order, err := options.ReadTypeOrder(*order_path)
		if err != nil {
			pkg.ErrorLog("reading type order:", err)
			os.Exit(exitUsage)
		}
		opts.ExplicitOrder = order
	}

	asm, err := loader.Load(*in_path)
	if err != nil {
		pkg.ErrorLog("loading", *in_path, ":", err)
		os.Exit(exitLoad)
	}
	pkg.InfoLog("loaded", asm.Name, asm.Version.String(),
		"types:", len(asm.Types), "refs:", len(asm.TypeRefs))
	if *debug_graph {
		spew.Fdump(os.Stderr, asm.Refs)
		for _, td := range asm.Types {
			pkg.DebugLog("type", td.TypeFullName(),
				"fields:", len(td.Fields), "methods:", len(td.Methods))
		}
	}

	tables.ApplyExcludes(asm, opts.ExcludedTypes)
	removed := tables.MinimizeAssembly(asm)
	if removed > 0 {
		pkg.InfoLog("minimizer removed", removed, "unreachable types")
	}

	ctx, err := tables.NewContext(asm, opts)
	if err != nil {
		pkg.ErrorLog("lowering:", err)
		os.Exit(loweringExit(err))
	}
	ctx.CompleteMinimization()

	if err := tables.WriteImageFile(ctx, *out_path); err != nil {
		pkg.ErrorLog("writing image:", err)
		os.Exit(loweringExit(err))
	}
	pkg.InfoLog("wrote", *out_path)

	if *dump_path != "" {
		if err := dump.WriteFile(ctx, *dump_path); err != nil {
			pkg.ErrorLog("writing dump:", err)
			os.Exit(exitIO)
		}
	}
	if *stubs_dir != "" {
		n, err := stubs.Generate(asm, *stubs_dir)
		if err != nil {
			pkg.ErrorLog("writing stubs:", err)
			os.Exit(exitIO)
		}
		pkg.InfoLog("wrote", n, "stub headers")
	}
}

// loweringExit tells lowering failures apart from plain I/O.
func loweringExit(err error) int {
	if errors.Is(err, tables.ERR_UNRESOLVED) ||
		errors.Is(err, tables.ERR_UNSUPPORTED) ||
		errors.Is(err, tables.ERR_INVARIANT) {
		return exitLowering
	}
	return exitIO
}
