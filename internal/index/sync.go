package index

import (
	"log/slog"

	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/content"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// drift is the difference between the content root and the index.
type drift struct {
	stale []string // on disk, missing from the index or with another checksum
	gone  []string // indexed, no longer on disk
}

func diff(disk []models.ArticleMetadata, indexed map[string]string) drift {
	var d drift
	seen := make(map[string]struct{}, len(disk))
	for _, m := range disk {
		seen[m.Path] = struct{}{}
		if indexed[m.Path] != m.Checksum {
			d.stale = append(d.stale, m.Path)
		}
	}
	for p := range indexed {
		if _, ok := seen[p]; !ok {
			d.gone = append(d.gone, p)
		}
	}
	return d
}

func scan(db *DB, store storage.Provider) (drift, error) {
	disk, err := store.List("")
	if err != nil {
		return drift{}, err
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return drift{}, err
	}
	return diff(disk, indexed), nil
}

// Sync brings the index in line with the content root. Files that fail to
// parse are logged and skipped so one bad article does not block startup.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	d, err := scan(db, store)
	if err != nil {
		return err
	}

	var indexed, failed int
	for _, p := range d.stale {
		data, err := store.Read(p)
		if err == nil {
			err = IndexFile(db, p, data)
		}
		if err != nil {
			failed++
			logger.Warn("sync: skipped article", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}
	for _, p := range d.gone {
		if err := db.DeleteArticle(p); err != nil {
			failed++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	logger.Info("sync: done",
		slog.Int("indexed", indexed),
		slog.Int("removed", len(d.gone)),
		slog.Int("failed", failed))
	return nil
}

// IndexFile parses an article file and stores its metadata, search text and
// media references.
func IndexFile(db ArticleIndex, path string, data []byte) error {
	doc, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertArticle(ArticleRow{
		Path:     path,
		Title:    doc.Title,
		Checksum: checksum.Sum(data),
		Category: doc.Category,
		Status:   string(doc.Status),
		Tags:     doc.Tags,
		Summary:  doc.Summary,
	}, content.Text(doc.Blocks), doc.Media)
}
