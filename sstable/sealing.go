// Sealing and lifecycle (C7): atomic publication of one generation's
// component family, crash recovery of a half-sealed generation, and
// atomic multi-component delete. Grounded on the teacher's go-fs exclusive
// create/rename contract (storage.Storage, adapted from lib/go-fs), applied
// here to the "mc" format's TemporaryTOC-then-TOC convention spec.md §4.6
// describes rather than the teacher's own (simpler) single-file commit.
package sstable

import (
	"bytes"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/filenames"
	"github.com/nogodb/mcsstable/internal/logging"
	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// sealTOC publishes a generation's component family by writing a
// TemporaryTOC, fsyncing the directory, renaming it to the final TOC, and
// fsyncing the directory again — the point at which a scanner may safely
// consider the generation complete (spec.md §4.6).
func sealTOC(s storage.Storage, generation string, components []metadata.ComponentName) error {
	toc := &metadata.TOC{Components: components}
	var buf bytes.Buffer
	if _, err := toc.WriteTo(&buf); err != nil {
		return err
	}

	tmpName := filenames.TemporaryTOCName(generation)
	tmpW, err := s.Create(tmpName)
	if err != nil {
		return err
	}
	if _, err := tmpW.Write(buf.Bytes()); err != nil {
		tmpW.Abort()
		return errs.Wrap(errs.Io, err)
	}
	if err := tmpW.Finish(); err != nil {
		return err
	}
	if err := s.SyncDir(); err != nil {
		return err
	}

	finalName := filenames.TOCName(generation)
	if err := s.Rename(tmpName, finalName); err != nil {
		return err
	}
	if err := s.SyncDir(); err != nil {
		return err
	}
	logging.L().Info("sstable sealed", zap.String("generation", generation), zap.Int("components", len(components)))
	return nil
}

// RecoverIncomplete scans s for generations whose TemporaryTOC was never
// renamed to TOC — the crash window spec.md §4.6/§7 calls out — and
// removes every file belonging to them, including the TemporaryTOC itself.
// A generation with both a TemporaryTOC and a final TOC is a completed
// seal whose directory fsync simply never got acknowledged back to the
// writer; it is left alone, since a previously-sealed generation is
// immutable.
func RecoverIncomplete(s storage.Storage) ([]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	haveTOC := make(map[string]bool)
	haveTemp := make(map[string]string)
	for _, n := range names {
		d, ok := filenames.Parse(n)
		if !ok {
			continue
		}
		switch d.Component {
		case "TOC.txt":
			haveTOC[d.Generation] = true
		case "TemporaryTOC.txt":
			haveTemp[d.Generation] = n
		}
	}

	var recovered []string
	for gen, tempName := range haveTemp {
		if haveTOC[gen] {
			continue
		}
		if err := removeGeneration(s, names, gen); err != nil {
			return recovered, err
		}
		recovered = append(recovered, gen)
		logging.L().Warn("removed incomplete sstable generation", zap.String("generation", gen), zap.String("temporary_toc", tempName))
	}
	return recovered, nil
}

// DeleteGeneration atomically removes a sealed generation: the TOC is
// renamed back to a TemporaryTOC first (spec.md §7 "the rename is the
// de-publish point — a scanner that already opened the TOC keeps reading
// the still-present component files"), then every component is removed,
// then the TemporaryTOC itself. ENOENT is forgiven at every step so a
// delete can be retried after a partial failure.
func DeleteGeneration(s storage.Storage, generation string) error {
	names, err := s.List()
	if err != nil {
		return err
	}

	finalName := filenames.TOCName(generation)
	tmpName := filenames.TemporaryTOCName(generation)
	if containsName(names, finalName) {
		if err := s.Rename(finalName, tmpName); err != nil && err != storage.ErrNotFound {
			return err
		}
		if err := s.SyncDir(); err != nil {
			return err
		}
	}
	return removeGeneration(s, names, generation)
}

// removeGeneration removes every component belonging to generation. The
// component files are independent of one another (spec.md §4.6 "every
// listed component file is removed"), so their removal fans out across an
// errgroup.Group instead of running one file at a time; the TemporaryTOC
// itself is removed last, sequentially, once every component is gone.
func removeGeneration(s storage.Storage, names []string, generation string) error {
	var g errgroup.Group
	for _, n := range names {
		d, ok := filenames.Parse(n)
		if !ok || d.Generation != generation {
			continue
		}
		name := n
		g.Go(func() error {
			if err := s.Remove(name); err != nil && err != storage.ErrNotFound {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// the TemporaryTOC may not have matched Parse's component mapping if it
	// was just created by DeleteGeneration's rename above; remove it
	// explicitly too.
	if err := s.Remove(filenames.TemporaryTOCName(generation)); err != nil && err != storage.ErrNotFound {
		return err
	}
	return nil
}

func containsName(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
