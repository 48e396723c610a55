package services

import (
	"errors"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mdverse-hand/models"
	"mdverse-hand/snapshot"
)

// Outcome ist das Ergebnis der Reconciliation eines Datensatzes.
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeModified
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeModified:
		return "modified"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// DatasetKey ist der natürliche Schlüssel eines Datensatzes im Snapshot.
type DatasetKey struct {
	DataSource     string
	IDInDataSource string
}

// ReconcileResult ist die disjunkte Partition der verarbeiteten Datensätze.
type ReconcileResult struct {
	New       []uint
	Modified  []uint
	Unchanged []uint

	// Outcome und interne ID je natürlichem Schlüssel
	Outcomes map[DatasetKey]Outcome
	IDs      map[DatasetKey]uint
}

// NewReconcileResult erstellt eine leere Ergebnis-Partition.
func NewReconcileResult() *ReconcileResult {
	return &ReconcileResult{
		Outcomes: map[DatasetKey]Outcome{},
		IDs:      map[DatasetKey]uint{},
	}
}

// Record trägt ein Outcome in die Partitionen ein.
func (r *ReconcileResult) Record(key DatasetKey, outcome Outcome, id uint) {
	r.Outcomes[key] = outcome
	r.IDs[key] = id
	switch outcome {
	case OutcomeNew:
		r.New = append(r.New, id)
	case OutcomeModified:
		r.Modified = append(r.Modified, id)
	case OutcomeUnchanged:
		r.Unchanged = append(r.Unchanged, id)
	}
}

// RemoveID entfernt eine Dataset-ID aus allen Partitionen (Fall: doppelter
// Schlüssel innerhalb eines Snapshots — das Outcome wird neu eingetragen).
func (r *ReconcileResult) RemoveID(id uint) {
	r.New = removeUint(r.New, id)
	r.Modified = removeUint(r.Modified, id)
	r.Unchanged = removeUint(r.Unchanged, id)
}

func removeUint(ids []uint, id uint) []uint {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// MergeOutcome verschmilzt das Outcome einer Duplikat-Zeile mit dem bereits
// eingetragenen Outcome desselben Schlüssels. Ein in diesem Lauf angelegter
// Datensatz bleibt "new", auch wenn die Duplikat-Zeile identisch ist — sonst
// würden die nachgelagerten Builder einen frisch angelegten Datensatz als
// unverändert überspringen und seine Dateien nie aufbauen.
func MergeOutcome(prev, next Outcome) Outcome {
	if prev == OutcomeNew {
		return OutcomeNew
	}
	if next == OutcomeUnchanged {
		return prev
	}
	return next
}

// DatasetRefs sind die vorab aufgelösten Fremdentitäten einer
// Datensatz-Zeile. Die Auflösung läuft bewusst vor der
// Datensatz-Transaktion: ein angelegter Author bleibt auch bestehen, wenn
// die Transaktion scheitert (harmlose Waise, kein Konsistenzproblem).
type DatasetRefs struct {
	SourceID uint
	Authors  []models.Author
	Keywords []models.Keyword
}

// Reconciler entscheidet für jeden eingehenden Datensatz, ob er neu,
// unverändert oder modifiziert ist, und persistiert entsprechend.
// Datensätze, die im Snapshot fehlen, werden nie gelöscht — Snapshots sind
// kumulativ, nicht erschöpfend.
type Reconciler struct {
	db       *gorm.DB
	resolver *Resolver
	logger   *zap.Logger
}

// NewReconciler erstellt eine neue Reconciler-Instanz.
func NewReconciler(db *gorm.DB, resolver *Resolver, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, resolver: resolver, logger: logger}
}

// Resolve löst Quelle, Autoren und Keywords einer Datensatz-Zeile auf und
// legt fehlende Entitäten an. Doppelte Autorennamen innerhalb einer Zeile
// werden dedupliziert.
func (rc *Reconciler) Resolve(row snapshot.DatasetRow) (DatasetRefs, error) {
	refs := DatasetRefs{}

	sourceID, err := rc.resolver.DataSource(row.DataSource)
	if err != nil {
		return refs, err
	}
	refs.SourceID = sourceID

	refs.Authors = make([]models.Author, 0, len(row.Authors))
	seenAuthors := map[string]bool{}
	for _, name := range row.Authors {
		if seenAuthors[name] {
			continue
		}
		seenAuthors[name] = true
		author, err := rc.resolver.Author(name, "")
		if err != nil {
			return refs, err
		}
		refs.Authors = append(refs.Authors, author)
	}

	refs.Keywords = make([]models.Keyword, 0, len(row.Keywords))
	for _, entry := range row.Keywords {
		keyword, err := rc.resolver.Keyword(entry)
		if err != nil {
			return refs, err
		}
		refs.Keywords = append(refs.Keywords, keyword)
	}

	return refs, nil
}

// ReconcileOne klassifiziert und persistiert genau eine Datensatz-Zeile
// innerhalb der übergebenen Transaktion.
func (rc *Reconciler) ReconcileOne(tx *gorm.DB, row snapshot.DatasetRow, refs DatasetRefs) (Outcome, uint, error) {
	var existing models.Dataset
	err := tx.Preload("Authors").Preload("Keywords").
		Where("data_source_id = ? AND id_in_data_source = ?", refs.SourceID, row.IDInDataSource).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created := models.Dataset{
			DataSourceID:     refs.SourceID,
			IDInDataSource:   row.IDInDataSource,
			DOI:              row.DOI,
			DateCreated:      row.DateCreated,
			DateLastModified: row.DateLastModified,
			DateLastCrawled:  row.DateLastCrawled,
			FileNumber:       row.FileNumber,
			DownloadNumber:   row.DownloadNumber,
			ViewNumber:       row.ViewNumber,
			License:          row.License,
			URL:              row.URL,
			Title:            row.Title,
			Description:      row.Description,
			Authors:          refs.Authors,
			Keywords:         refs.Keywords,
		}
		if err := tx.Create(&created).Error; err != nil {
			return 0, 0, err
		}
		return OutcomeNew, created.ID, nil

	case err != nil:
		return 0, 0, err
	}

	if !rc.scalarsChanged(&existing, row) &&
		!authorSetChanged(existing.Authors, refs.Authors) &&
		!keywordSetChanged(existing.Keywords, refs.Keywords) {
		return OutcomeUnchanged, existing.ID, nil
	}

	// Modifiziert: alle Felder überschreiben (inklusive der von der
	// Vergleichslogik ausgenommenen Download-/View-Zähler) und beide
	// Relationen-Mengen als Ganzes ersetzen, nicht mergen.
	updates := map[string]interface{}{
		"doi":                row.DOI,
		"date_created":       row.DateCreated,
		"date_last_modified": row.DateLastModified,
		"date_last_crawled":  row.DateLastCrawled,
		"file_number":        row.FileNumber,
		"download_number":    row.DownloadNumber,
		"view_number":        row.ViewNumber,
		"license":            row.License,
		"url":                row.URL,
		"title":              row.Title,
		"description":        row.Description,
	}
	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return 0, 0, err
	}
	if err := tx.Model(&existing).Association("Authors").Replace(refs.Authors); err != nil {
		return 0, 0, err
	}
	if err := tx.Model(&existing).Association("Keywords").Replace(refs.Keywords); err != nil {
		return 0, 0, err
	}
	return OutcomeModified, existing.ID, nil
}

// scalarsChanged vergleicht die getrackten Skalarfelder mit exakter
// Ungleichheit. Download- und View-Zähler sind explizit ausgenommen: sie
// schwanken unabhängig vom Inhalt und würden sonst laufend unechte
// "modified"-Klassifikationen erzeugen.
func (rc *Reconciler) scalarsChanged(existing *models.Dataset, row snapshot.DatasetRow) bool {
	return existing.DOI != row.DOI ||
		existing.DateCreated != row.DateCreated ||
		existing.DateLastModified != row.DateLastModified ||
		existing.DateLastCrawled != row.DateLastCrawled ||
		existing.FileNumber != row.FileNumber ||
		existing.License != row.License ||
		existing.URL != row.URL ||
		existing.Title != row.Title ||
		existing.Description != row.Description
}

// authorSetChanged vergleicht Autoren-Mengen (Reihenfolge egal,
// case-sensitiv). Leere Menge gegen leere Menge ist unverändert — manche
// Quellen liefern schlicht keine Autoren.
func authorSetChanged(stored, incoming []models.Author) bool {
	if len(stored) != len(incoming) {
		return true
	}
	a := make([]string, len(stored))
	b := make([]string, len(incoming))
	for i, author := range stored {
		a[i] = author.Name + "\x00" + author.Orcid
	}
	for i, author := range incoming {
		b[i] = author.Name + "\x00" + author.Orcid
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// keywordSetChanged vergleicht Keyword-Mengen (Reihenfolge egal; Einträge
// sind vom Normalizer bereits lowercase).
func keywordSetChanged(stored, incoming []models.Keyword) bool {
	if len(stored) != len(incoming) {
		return true
	}
	a := make([]string, len(stored))
	b := make([]string, len(incoming))
	for i, keyword := range stored {
		a[i] = keyword.Entry
	}
	for i, keyword := range incoming {
		b[i] = keyword.Entry
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}
