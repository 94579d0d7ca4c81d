// Command repoctl is the operator CLI for a single repo's bonsai<->hg
// mapping: add entries and look them up in either direction, against
// the same sqlite-backed store the running server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/facebook/sapling-sub046/pkg/bonsaihgmapping"
	"github.com/facebook/sapling-sub046/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "mapping-add":
		mappingAdd(os.Args[2:])
	case "mapping-lookup":
		mappingLookup(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: repoctl <command> [flags]

commands:
  mapping-add     -data-dir DIR -repo-id N -bonsai HEX -hg HEX
  mapping-lookup  -data-dir DIR -repo-id N [-bonsai HEX] [-hg HEX]`)
}

func mappingAdd(args []string) {
	fs := flag.NewFlagSet("mapping-add", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "repo data directory")
	repoID := fs.Int("repo-id", 0, "repo id")
	bonsaiHex := fs.String("bonsai", "", "bonsai changeset id (hex)")
	hgHex := fs.String("hg", "", "hg changeset id (hex)")
	fs.Parse(args)

	mapping := openMapping(*dataDir)
	defer mapping.Close()

	bcsID, err := types.ParseBonsaiChangesetID(*bonsaiHex)
	if err != nil {
		log.Fatalf("invalid -bonsai: %v", err)
	}
	hgID, err := types.ParseHgChangesetID(*hgHex)
	if err != nil {
		log.Fatalf("invalid -hg: %v", err)
	}

	entry := bonsaihgmapping.Entry{RepoID: types.RepoID(*repoID), BcsID: bcsID, HgCsID: hgID}
	if err := mapping.Add(context.Background(), entry); err != nil {
		log.Fatalf("add: %v", err)
	}
	fmt.Println("ok")
}

func mappingLookup(args []string) {
	fs := flag.NewFlagSet("mapping-lookup", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "repo data directory")
	repoID := fs.Int("repo-id", 0, "repo id")
	bonsaiHex := fs.String("bonsai", "", "bonsai changeset id (hex), to resolve to an hg id")
	hgHex := fs.String("hg", "", "hg changeset id (hex), to resolve to a bonsai id")
	fs.Parse(args)

	mapping := openMapping(*dataDir)
	defer mapping.Close()

	ctx := context.Background()
	rid := types.RepoID(*repoID)

	if *bonsaiHex != "" {
		bcsID, err := types.ParseBonsaiChangesetID(*bonsaiHex)
		if err != nil {
			log.Fatalf("invalid -bonsai: %v", err)
		}
		got, err := mapping.GetByBonsai(ctx, rid, []types.BonsaiChangesetID{bcsID})
		if err != nil {
			log.Fatalf("lookup: %v", err)
		}
		if hg, ok := got[bcsID]; ok {
			fmt.Println(hg.String())
		} else {
			fmt.Println("not found")
			os.Exit(1)
		}
		return
	}

	if *hgHex != "" {
		hgID, err := types.ParseHgChangesetID(*hgHex)
		if err != nil {
			log.Fatalf("invalid -hg: %v", err)
		}
		got, err := mapping.GetByHg(ctx, rid, []types.HgChangesetID{hgID})
		if err != nil {
			log.Fatalf("lookup: %v", err)
		}
		if bcs, ok := got[hgID]; ok {
			fmt.Println(bcs.String())
		} else {
			fmt.Println("not found")
			os.Exit(1)
		}
		return
	}

	log.Fatal("one of -bonsai or -hg is required")
}

func openMapping(dataDir string) *bonsaihgmapping.SQLMapping {
	if dataDir == "" {
		log.Fatal("-data-dir is required")
	}
	mapping, err := bonsaihgmapping.OpenSQLMapping("file:" + filepath.Join(dataDir, "mapping.db"))
	if err != nil {
		log.Fatalf("open mapping: %v", err)
	}
	return mapping
}
