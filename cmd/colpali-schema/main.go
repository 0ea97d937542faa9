// Command colpali-schema renders the Vespa application package for the page
// schema into a directory, or prints the schema definition.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kefio/ColPali-Workbench/internal/db/vespa"
	"github.com/kefio/ColPali-Workbench/internal/domain"
	pagerepo "github.com/kefio/ColPali-Workbench/internal/repository/page"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "colpali-schema:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	def := domain.DefaultSchemaConfig()

	fs := flag.NewFlagSet("colpali-schema", flag.ContinueOnError)
	out := fs.String("out", "application", "output directory for the application package")
	app := fs.String("app", "colpali", "application name")
	printOnly := fs.Bool("print", false, "print the schema to stdout instead of writing a package")
	fs.StringVar(&def.Schema, "schema", def.Schema, "schema (document type) name")
	fs.IntVar(&def.PatchDim, "patch-dim", def.PatchDim, "patch embedding dimension, multiple of 8")
	fs.IntVar(&def.MaxQueryPatches, "max-query-patches", def.MaxQueryPatches, "query token inputs in the rerank profile")
	fs.IntVar(&def.MaxLinksPerNode, "hnsw-max-links", def.MaxLinksPerNode, "HNSW max links per node")
	fs.IntVar(&def.ExploreAtInsert, "hnsw-explore-at-insert", def.ExploreAtInsert, "HNSW neighbors explored at insert")
	fs.IntVar(&def.RerankCount, "rerank-count", def.RerankCount, "second-phase rerank count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	schema, err := pagerepo.Schema(def)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	if *printOnly {
		sd, err := vespa.RenderSchema(schema)
		if err != nil {
			return fmt.Errorf("render schema: %w", err)
		}
		fmt.Print(sd)
		return nil
	}

	if err := vespa.WritePackage(*out, *app, schema); err != nil {
		return fmt.Errorf("write package: %w", err)
	}
	fmt.Printf("wrote application package %q to %s\n", *app, *out)
	return nil
}
