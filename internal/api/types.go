package api

import (
	"encoding/json"
	"fmt"
)

// Recipe is one entry of the household's recipe library.
type Recipe struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	PrepTime string   `json:"prep_time"`
	Servings string   `json:"servings"`
}

// RecipesResponse is the top-level structure of the recipe library endpoint.
type RecipesResponse struct {
	Recipes []Recipe `json:"recipes"`
}

// PlannedMeal is one slot of the weekly meal plan. EntryKey (e.g.
// "mon_dinner") is the opaque key referenced by the grocery selections.
type PlannedMeal struct {
	EntryKey    string `json:"entry_key"`
	Day         string `json:"day"`
	Slot        string `json:"slot"`
	RecipeID    string `json:"recipe_id"`
	RecipeTitle string `json:"recipe_title"`
	Servings    int    `json:"servings"`
}

// MealPlan is the weekly meal plan document.
type MealPlan struct {
	WeekStart string        `json:"week_start"`
	Meals     []PlannedMeal `json:"meals"`
}

// Me is the current session user record.
type Me struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	HouseholdID string `json:"household_id"`
}

// DecodeRecipes decodes a cached recipe library payload.
func DecodeRecipes(payload json.RawMessage) ([]Recipe, error) {
	var resp RecipesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode recipes: %w", err)
	}
	return resp.Recipes, nil
}

// DecodeRecipe decodes a cached single-recipe payload.
func DecodeRecipe(payload json.RawMessage) (*Recipe, error) {
	var recipe Recipe
	if err := json.Unmarshal(payload, &recipe); err != nil {
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}
	return &recipe, nil
}

// DecodeMealPlan decodes a cached meal plan payload.
func DecodeMealPlan(payload json.RawMessage) (*MealPlan, error) {
	var plan MealPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode meal plan: %w", err)
	}
	return &plan, nil
}

// DecodeMe decodes a cached session user payload.
func DecodeMe(payload json.RawMessage) (*Me, error) {
	var me Me
	if err := json.Unmarshal(payload, &me); err != nil {
		return nil, fmt.Errorf("failed to decode user record: %w", err)
	}
	return &me, nil
}
