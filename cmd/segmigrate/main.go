// Command segmigrate verifies a repo's on-disk segmented changelog
// (idmap, iddag, version pointer) for internal consistency, and backs
// up the segments directory before reporting findings, mirroring the
// backup-then-inspect shape of this fleet's other migration tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/facebook/sapling-sub046/pkg/segmented"
	"github.com/facebook/sapling-sub046/pkg/types"
)

var (
	dataDir    = flag.String("data-dir", "", "repo data directory (expects <data-dir>/segments)")
	repoID     = flag.Int("repo-id", 0, "repo id to check the version pointer against")
	dryRun     = flag.Bool("dry-run", false, "report findings without creating a backup")
	backupPath = flag.String("backup", "", "backup destination (default: <data-dir>/segments.backup)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags)

	if *dataDir == "" {
		log.Fatal("-data-dir is required")
	}
	segmentsDir := filepath.Join(*dataDir, "segments")
	if _, err := os.Stat(segmentsDir); os.IsNotExist(err) {
		log.Fatalf("segments directory not found at %s", segmentsDir)
	}

	if !*dryRun {
		dest := *backupPath
		if dest == "" {
			dest = segmentsDir + ".backup"
		}
		log.Printf("backing up %s to %s", segmentsDir, dest)
		if err := copyDir(segmentsDir, dest); err != nil {
			log.Fatalf("backup failed: %v", err)
		}
	}

	ctx := context.Background()
	idmap, err := segmented.OpenIdMap(ctx, filepath.Join(segmentsDir, "idmap"))
	if err != nil {
		log.Fatalf("open idmap: %v", err)
	}
	defer idmap.Close()

	dag, err := segmented.OpenIdDag(ctx, filepath.Join(segmentsDir, "iddag"))
	if err != nil {
		log.Fatalf("open iddag: %v", err)
	}
	defer dag.Close()

	versions, err := segmented.OpenVersionStore("file:" + filepath.Join(segmentsDir, "version.db"))
	if err != nil {
		log.Fatalf("open version store: %v", err)
	}
	defer versions.Close()

	report, err := verify(ctx, idmap, dag, versions, types.RepoID(*repoID))
	if err != nil {
		log.Fatalf("verify: %v", err)
	}

	fmt.Println(report)
}

func verify(ctx context.Context, idmap *segmented.IdMap, dag *segmented.IdDag, versions *segmented.VersionStore, repoID types.RepoID) (string, error) {
	var issues []string
	var maxMaster types.Id

	for id := segmented.BaseOf(types.GroupMaster); ; id++ {
		v, ok, err := idmap.FindVertexByID(id)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if gotID, found, err := idmap.FindIDByVertex(v); err != nil {
			return "", err
		} else if !found || gotID != id {
			issues = append(issues, fmt.Sprintf("vertex %s does not round-trip to id %d", v, id))
		}
		maxMaster = id
	}

	version, found, err := versions.Get(ctx, repoID)
	if err != nil {
		return "", err
	}
	if !found {
		issues = append(issues, fmt.Sprintf("no version row for repo %d", repoID))
	} else if version.IdMapVersion != uint64(maxMaster) {
		issues = append(issues, fmt.Sprintf("version pointer idmap_version=%d does not match highest assigned master id %d", version.IdMapVersion, maxMaster))
	}

	if maxMaster > 0 {
		if _, err := dag.Ancestors(types.GroupMaster, []types.Id{maxMaster}); err != nil {
			issues = append(issues, fmt.Sprintf("iddag has no segment covering head id %d: %v", maxMaster, err))
		}
	}

	if len(issues) == 0 {
		return fmt.Sprintf("ok: %d master ids assigned, version pointer consistent", maxMaster), nil
	}
	msg := fmt.Sprintf("found %d issue(s):", len(issues))
	for _, i := range issues {
		msg += "\n  - " + i
	}
	return msg, nil
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := copyDir(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
