package models

import (
	"time"

	"gorm.io/gorm"
)

// Recipe is a stored recipe with its ordered ingredients and steps.
// Times are minutes; a nil time or servings means unknown.
type Recipe struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	Title              string             `gorm:"size:200;not null;index" json:"title"`
	Description        string             `gorm:"type:text" json:"description"`
	CuisineType        string             `gorm:"size:50;index" json:"cuisine_type"`
	DifficultyLevel    string             `gorm:"size:20;index" json:"difficulty_level"`
	PrepTime           *int               `json:"prep_time"`
	CookTime           *int               `json:"cook_time"`
	TotalTime          *int               `gorm:"index" json:"total_time"`
	Servings           *int               `json:"servings"`
	DietaryPreferences []string           `gorm:"serializer:json;type:text" json:"dietary_preferences"`
	Source             string             `gorm:"size:50;index" json:"source"`
	SourceID           string             `gorm:"size:100" json:"source_id"`
	ImageURL           string             `gorm:"type:text" json:"image_url"`
	Ingredients        []RecipeIngredient `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"ingredients"`
	Instructions       []Instruction      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"instructions"`
	Nutrition          *Nutrition         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"nutrition"`
}

// RecipeIngredient is one line of a recipe's ingredient list.
type RecipeIngredient struct {
	ID       uint     `gorm:"primaryKey" json:"id"`
	RecipeID uint     `gorm:"index;not null" json:"recipe_id"`
	Position int      `gorm:"not null;default:0" json:"position"`
	Name     string   `gorm:"size:100;not null;index" json:"name"`
	Quantity *float64 `json:"quantity"`
	Unit     string   `gorm:"size:50" json:"unit"`
	Notes    string   `gorm:"type:text" json:"notes"`
}

// TableName keeps the table name used by the SQL migrations.
func (RecipeIngredient) TableName() string { return "ingredients" }

// Instruction is one numbered step.
type Instruction struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	RecipeID    uint   `gorm:"index;not null" json:"recipe_id"`
	StepNumber  int    `gorm:"not null" json:"step_number"`
	Description string `gorm:"type:text;not null" json:"description"`
}

// Nutrition holds per-serving values. Any of them may be unknown.
type Nutrition struct {
	ID            uint     `gorm:"primaryKey" json:"id"`
	RecipeID      uint     `gorm:"uniqueIndex;not null" json:"recipe_id"`
	Calories      *int     `json:"calories"`
	Protein       *float64 `json:"protein"`
	Carbohydrates *float64 `json:"carbohydrates"`
	Fat           *float64 `json:"fat"`
	Fiber         *float64 `json:"fiber"`
	Sugar         *float64 `json:"sugar"`
	Sodium        *float64 `json:"sodium"`
}

// TableName matches the singular table the migrations create.
func (Nutrition) TableName() string { return "nutrition" }

// BeforeSave fills TotalTime from prep and cook time when it was left unset.
func (r *Recipe) BeforeSave(tx *gorm.DB) error {
	r.FillTotalTime()
	return nil
}

// FillTotalTime sets TotalTime to PrepTime+CookTime when TotalTime is nil
// and at least one part is known.
func (r *Recipe) FillTotalTime() {
	if r.TotalTime != nil || (r.PrepTime == nil && r.CookTime == nil) {
		return
	}
	total := 0
	if r.PrepTime != nil {
		total += *r.PrepTime
	}
	if r.CookTime != nil {
		total += *r.CookTime
	}
	r.TotalTime = &total
}

// EffectiveTotalTime returns TotalTime, or prep+cook when TotalTime is unset.
func (r *Recipe) EffectiveTotalTime() *int {
	if r.TotalTime != nil {
		return r.TotalTime
	}
	c := *r
	c.FillTotalTime()
	return c.TotalTime
}
