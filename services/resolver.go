package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mdverse-hand/models"
)

// Resolver bildet natürliche Schlüssel (Name, Eintrag, ...) auf gespeicherte
// Entitäten ab und legt fehlende Entitäten an ("get or create"). Alle
// Lookups werden pro Lauf memoisiert: der Cache gehört zur Resolver-Instanz
// und eine Instanz lebt genau einen Ingestion-Lauf lang — kein globaler
// Zustand.
//
// Gegen parallele Duplikat-Anlage schützt das Unique-Constraint im Schema
// plus "insert on conflict do nothing, re-select". Parallele Läufe selbst
// werden vom IngestService serialisiert.
type Resolver struct {
	db     *gorm.DB
	logger *zap.Logger

	dataSources map[string]uint
	authors     map[authorKey]uint
	keywords    map[string]uint
	fileTypes   map[string]uint
	thermostats map[string]uint
	barostats   map[string]uint
	integrators map[string]uint
}

type authorKey struct {
	name  string
	orcid string
}

// NewResolver erstellt einen Resolver mit leerem Lauf-Cache.
func NewResolver(db *gorm.DB, logger *zap.Logger) *Resolver {
	return &Resolver{
		db:          db,
		logger:      logger,
		dataSources: map[string]uint{},
		authors:     map[authorKey]uint{},
		keywords:    map[string]uint{},
		fileTypes:   map[string]uint{},
		thermostats: map[string]uint{},
		barostats:   map[string]uint{},
		integrators: map[string]uint{},
	}
}

// DataSource liefert die ID der Quelle mit dem gegebenen Namen und legt sie
// bei Bedarf an.
func (r *Resolver) DataSource(name string) (uint, error) {
	if id, ok := r.dataSources[name]; ok {
		return id, nil
	}

	var source models.DataSource
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB { return db.Where("name = ?", name).First(&source) },
		func(db *gorm.DB) *gorm.DB {
			source = models.DataSource{Name: name}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&source)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("data source %q: %w", name, err)
	}
	r.dataSources[name] = source.ID
	return source.ID, nil
}

// Author liefert den Author mit dem gegebenen (Name, ORCID)-Paar und legt
// ihn bei Bedarf an. Exaktes String-Matching; Namensvarianten werden nicht
// zusammengeführt.
func (r *Resolver) Author(name, orcid string) (models.Author, error) {
	key := authorKey{name: name, orcid: orcid}
	if id, ok := r.authors[key]; ok {
		return models.Author{ID: id, Name: name, Orcid: orcid}, nil
	}

	var author models.Author
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB {
			return db.Where("name = ? AND orcid = ?", name, orcid).First(&author)
		},
		func(db *gorm.DB) *gorm.DB {
			author = models.Author{Name: name, Orcid: orcid}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&author)
		},
	)
	if err != nil {
		return models.Author{}, fmt.Errorf("author %q: %w", name, err)
	}
	r.authors[key] = author.ID
	return author, nil
}

// Keyword liefert das Keyword mit dem gegebenen (bereits normalisierten)
// Eintrag und legt es bei Bedarf an.
func (r *Resolver) Keyword(entry string) (models.Keyword, error) {
	if id, ok := r.keywords[entry]; ok {
		return models.Keyword{ID: id, Entry: entry}, nil
	}

	var keyword models.Keyword
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB { return db.Where("entry = ?", entry).First(&keyword) },
		func(db *gorm.DB) *gorm.DB {
			keyword = models.Keyword{Entry: entry}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&keyword)
		},
	)
	if err != nil {
		return models.Keyword{}, fmt.Errorf("keyword %q: %w", entry, err)
	}
	r.keywords[entry] = keyword.ID
	return keyword, nil
}

// FileType liefert die ID des Dateityps mit dem gegebenen Namen und legt
// ihn bei Bedarf an.
func (r *Resolver) FileType(name string) (uint, error) {
	if id, ok := r.fileTypes[name]; ok {
		return id, nil
	}

	var fileType models.FileType
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB { return db.Where("name = ?", name).First(&fileType) },
		func(db *gorm.DB) *gorm.DB {
			fileType = models.FileType{Name: name}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fileType)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("file type %q: %w", name, err)
	}
	r.fileTypes[name] = fileType.ID
	return fileType.ID, nil
}

// Thermostat liefert die ID des Thermostats mit dem gegebenen Namen und
// legt ihn bei Bedarf an.
func (r *Resolver) Thermostat(name string) (uint, error) {
	if id, ok := r.thermostats[name]; ok {
		return id, nil
	}

	var thermostat models.Thermostat
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB { return db.Where("name = ?", name).First(&thermostat) },
		func(db *gorm.DB) *gorm.DB {
			thermostat = models.Thermostat{Name: name}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&thermostat)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("thermostat %q: %w", name, err)
	}
	r.thermostats[name] = thermostat.ID
	return thermostat.ID, nil
}

// Barostat liefert die ID des Barostats mit dem gegebenen Namen und legt
// ihn bei Bedarf an.
func (r *Resolver) Barostat(name string) (uint, error) {
	if id, ok := r.barostats[name]; ok {
		return id, nil
	}

	var barostat models.Barostat
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB { return db.Where("name = ?", name).First(&barostat) },
		func(db *gorm.DB) *gorm.DB {
			barostat = models.Barostat{Name: name}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&barostat)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("barostat %q: %w", name, err)
	}
	r.barostats[name] = barostat.ID
	return barostat.ID, nil
}

// Integrator liefert die ID des Integrators mit dem gegebenen Namen und
// legt ihn bei Bedarf an.
func (r *Resolver) Integrator(name string) (uint, error) {
	if id, ok := r.integrators[name]; ok {
		return id, nil
	}

	var integrator models.Integrator
	err := r.getOrCreate(
		func(db *gorm.DB) *gorm.DB { return db.Where("name = ?", name).First(&integrator) },
		func(db *gorm.DB) *gorm.DB {
			integrator = models.Integrator{Name: name}
			return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&integrator)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("integrator %q: %w", name, err)
	}
	r.integrators[name] = integrator.ID
	return integrator.ID, nil
}

// getOrCreate implementiert das Muster select -> insert on conflict ->
// re-select. Der Re-Select fängt den Fall ab, dass ein Insert wegen des
// Unique-Constraints keine Zeile angelegt hat.
func (r *Resolver) getOrCreate(find func(*gorm.DB) *gorm.DB, create func(*gorm.DB) *gorm.DB) error {
	result := find(r.db)
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	result = create(r.db)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return find(r.db).Error
}
