package schema

import (
	"github.com/deckflow/deckflow-go/deckflow"
)

// builtinRequirements declares the supported metric keys. The tables
// mirror the upstream agent's contract: every response carries a
// structured_data mapping and a paragraph, with per-key shape, size
// bounds, and a fallback used when correction is needed.
func builtinRequirements() []*DataRequirement {
	return []*DataRequirement{
		{
			Key:            "monthly sales over time",
			Category:       deckflow.CategoryBar,
			Format:         FormatMonthYearValue,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
				Pattern("paragraph", `.{20,}`),
			},
			ExpectedSize: SizeBounds{Min: 8, Max: 15},
			TransformationHints: []string{
				"Ensure all numeric values are integers or floats, not strings",
				"Month names should be 3-letter abbreviations: Jan, Feb, Mar, etc.",
				"Years should be 4-digit integers: 2022, 2023, 2024",
				"Missing months should have 0 values, not null",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"Jan": map[string]interface{}{"2023": 0, "2024": 0},
					"Feb": map[string]interface{}{"2023": 0, "2024": 0},
					"Mar": map[string]interface{}{"2023": 0, "2024": 0},
				},
				"paragraph": "Sales data analysis unavailable.",
			},
		},
		{
			Key:            "monthly sales year over year",
			Category:       deckflow.CategoryBar,
			Format:         FormatMonthYearValue,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
			},
			ExpectedSize: SizeBounds{Min: 10, Max: 15},
			TransformationHints: []string{
				"Include year-over-year comparison in paragraph",
				"Highlight growth trends and seasonal patterns",
				"All values must be numeric (int/float)",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"Jan": map[string]interface{}{"2023": 0, "2024": 0},
					"Feb": map[string]interface{}{"2023": 0, "2024": 0},
				},
				"paragraph": "Year-over-year sales analysis unavailable.",
			},
		},
		{
			Key:            "monthly orders by user type",
			Category:       deckflow.CategoryStackedBar,
			Format:         FormatMonthCategories,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
			},
			ExpectedSize: SizeBounds{Min: 6, Max: 24},
			TransformationHints: []string{
				"Date format: MMM-YY (e.g., Oct-22, Nov-22)",
				"User types: Network, Returning, New (exact spelling)",
				"All order counts must be integers >= 0",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"Jan-24": map[string]interface{}{"Network": 0, "Returning": 0, "New": 0},
					"Feb-24": map[string]interface{}{"Network": 0, "Returning": 0, "New": 0},
				},
				"paragraph": "User type order analysis unavailable.",
			},
		},
		{
			Key:            "scalapay users demographic",
			Category:       deckflow.CategoryPie,
			Format:         FormatNestedCategories,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
				Required("structured_data.Age in percentages"),
				Required("structured_data.Gender in percentages"),
			},
			ExpectedSize: SizeBounds{Min: 2, Max: 4},
			TransformationHints: []string{
				"All percentages must sum to 100 within each category",
				"Age ranges: 18-24, 25-34, 35-44, 45-54, 55-64",
				"Gender: M (Male), F (Female)",
				"Card types: credit, debit, prepaid",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"Age in percentages":    map[string]interface{}{"25-34": 30, "35-44": 40, "45-54": 30},
					"Gender in percentages": map[string]interface{}{"M": 20, "F": 80},
				},
				"paragraph": "Demographic analysis unavailable.",
			},
		},
		{
			Key:            "scalapay users demographic in percentages",
			Category:       deckflow.CategoryPie,
			Format:         FormatNestedCategories,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
				Required("structured_data.Age in percentages"),
				Required("structured_data.Gender in percentages"),
			},
			ExpectedSize: SizeBounds{Min: 2, Max: 4},
			TransformationHints: []string{
				"Percentages should be integers between 0-100",
				"Each category should sum to 100%",
				"Use standard age brackets and gender categories",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"Age in percentages":    map[string]interface{}{"25-34": 35, "35-44": 45, "45-54": 20},
					"Gender in percentages": map[string]interface{}{"M": 15, "F": 85},
				},
				"paragraph": "User demographic breakdown unavailable.",
			},
		},
		{
			Key:            "AOV",
			Category:       deckflow.CategoryLine,
			Format:         FormatTimeValue,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
			},
			ExpectedSize: SizeBounds{Min: 6, Max: 36},
			TransformationHints: []string{
				"Date format: YYYY-MM (e.g., 2023-01, 2024-02)",
				"AOV values should be float with 2 decimal places",
				"Include currency analysis in paragraph",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"2024-01": 45.67, "2024-02": 48.23, "2024-03": 46.89,
				},
				"paragraph": "Average Order Value trend analysis unavailable.",
			},
		},
		{
			Key:            "monthly sales by product type over time",
			Category:       deckflow.CategoryStackedBar,
			Format:         FormatMonthCategories,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
			},
			ExpectedSize: SizeBounds{Min: 6, Max: 24},
			TransformationHints: []string{
				"Product types: 'Pay in 3', 'Pay in 4' (exact spelling)",
				"Date format: MMM-YY",
				"Sales values should be numeric",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{
					"Jan-24": map[string]interface{}{"Pay in 3": 0, "Pay in 4": 0},
					"Feb-24": map[string]interface{}{"Pay in 3": 0, "Pay in 4": 0},
				},
				"paragraph": "Product type sales analysis unavailable.",
			},
		},
		{
			Key:            "orders by product type (i.e. pay in 3, pay in 4)",
			Category:       deckflow.CategoryPie,
			Format:         FormatCategoryPercentage,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
			},
			ExpectedSize: SizeBounds{Min: 2, Max: 3},
			TransformationHints: []string{
				"Product types: 'Pay in 3', 'Pay in 4'",
				"Values can be counts or percentages",
				"Include total order volume in paragraph",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{"Pay in 3": 65, "Pay in 4": 35},
				"paragraph":       "Product type distribution analysis unavailable.",
			},
		},
		{
			Key:            "AOV by product type (i.e. pay in 3, pay in 4)",
			Category:       deckflow.CategoryBar,
			Format:         FormatCategoryPercentage,
			RequiredFields: []string{"structured_data", "paragraph"},
			Rules: []Rule{
				Required("structured_data"),
				Required("paragraph"),
			},
			ExpectedSize: SizeBounds{Min: 2, Max: 3},
			TransformationHints: []string{
				"AOV values should be float with 2 decimal places",
				"Compare AOV differences between product types",
				"Include insights about customer spending behavior",
			},
			Fallback: map[string]interface{}{
				"structured_data": map[string]interface{}{"Pay in 3": 42.85, "Pay in 4": 67.12},
				"paragraph":       "AOV by product type analysis unavailable.",
			},
		},
	}
}
