// internal/models/substance.go
package models

type Substance struct {
	BaseModel
	Code              string       `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Name              string       `json:"name" gorm:"size:255;not null"`
	OpiumActList      OpiumActList `json:"opium_act_list" gorm:"type:varchar(10);default:'none'"`
	PrecursorCategory string       `json:"precursor_category,omitempty" gorm:"size:20"`
	BaseUnit          string       `json:"base_unit" gorm:"size:10;not null;default:'g'"`
	IsActive          bool         `json:"is_active" gorm:"default:true"`
}

// IsControlled reports whether the substance is scheduled under the Opium Act
// or classified as a drug precursor.
func (s *Substance) IsControlled() bool {
	return (s.OpiumActList != "" && s.OpiumActList != OpiumActListNone) || s.PrecursorCategory != ""
}
