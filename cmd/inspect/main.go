// inspect dumps the contents of a fieldnotes database for debugging:
// raw keys by prefix, decoded index lists, or one record.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
	"fieldnotes/pkg/state"
)

func main() {
	var (
		dbPath  = flag.String("db", "./.database", "Pebble DB path")
		prefix  = flag.String("prefix", "", "list keys under this prefix")
		key     = flag.String("key", "", "print the value at this key")
		indexes = flag.Bool("indexes", false, "decode and print every index list")
	)
	flag.Parse()

	logger.InitWithLevel("error")

	store, err := kv.Open(state.Layout(*dbPath).Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open db at %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch {
	case *key != "":
		val, err := store.Get(ctx, *key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get %s: %v\n", *key, err)
			os.Exit(1)
		}
		fmt.Println(string(val))
	case *indexes:
		listKeys, err := store.Keys(ctx, keys.IndexPrefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list indexes: %v\n", err)
			os.Exit(1)
		}
		for _, lk := range listKeys {
			name, nerr := keys.IndexName(lk)
			if nerr != nil {
				name = lk
			}
			items, err := store.LRange(ctx, lk, 0, -1)
			if err != nil {
				fmt.Fprintf(os.Stderr, "range %s: %v\n", lk, err)
				continue
			}
			fmt.Printf("%s (%d entries)\n", name, len(items))
			for i, it := range items {
				fmt.Printf("  %3d %s\n", i, it)
			}
		}
	default:
		ks, err := store.Keys(ctx, *prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "keys %q: %v\n", *prefix, err)
			os.Exit(1)
		}
		for _, k := range ks {
			fmt.Println(k)
		}
		if len(ks) == 0 && *prefix != "" && !strings.Contains(*prefix, ":") {
			fmt.Fprintln(os.Stderr, "hint: prefixes are namespaced, e.g. record: list: ratelimit: vault:")
		}
	}
}
