package models

// Keyword repräsentiert ein normalisiertes Schlagwort (lowercase, getrimmt).
type Keyword struct {
	ID    uint   `json:"id" gorm:"primaryKey;column:keyword_id"`
	Entry string `json:"entry" gorm:"uniqueIndex;not null"`

	Datasets []Dataset `json:"-" gorm:"many2many:datasets_keywords_link"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Keyword) TableName() string {
	return "keywords"
}
