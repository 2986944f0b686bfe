package catalog

import (
	"strconv"
	"strings"
)

// AmountFactor derives the multiplier that scales per-100g/ml nutrition
// values to a product's full textual amount. "500 g" yields 5, "1,5 l"
// yields 15, piece-based amounts ("6 pcs", "1 Stk") yield 1 because the
// piece weight is unknown.
func AmountFactor(textualAmount string) float64 {
	fields := strings.Fields(strings.TrimSpace(textualAmount))
	if len(fields) < 2 {
		return 1
	}
	value, err := strconv.ParseFloat(strings.Replace(fields[0], ",", ".", 1), 64)
	if err != nil || value <= 0 {
		return 1
	}
	switch strings.ToLower(fields[1]) {
	case "g", "ml":
		return value / 100
	case "kg", "l":
		return value * 1000 / 100
	default:
		return 1
	}
}

// Scale multiplies every nutrition value by f.
func (n Nutrition) Scale(f float64) Nutrition {
	return Nutrition{
		EnergyKCal:    n.EnergyKCal * f,
		Protein:       n.Protein * f,
		Fats:          n.Fats * f,
		Sugars:        n.Sugars * f,
		Carbohydrates: n.Carbohydrates * f,
	}
}

// Add sums two nutrition records.
func (n Nutrition) Add(o Nutrition) Nutrition {
	return Nutrition{
		EnergyKCal:    n.EnergyKCal + o.EnergyKCal,
		Protein:       n.Protein + o.Protein,
		Fats:          n.Fats + o.Fats,
		Sugars:        n.Sugars + o.Sugars,
		Carbohydrates: n.Carbohydrates + o.Carbohydrates,
	}
}

// TotalNutrition scales p's per-100 nutrition to its full amount.
func (p Product) TotalNutrition() Nutrition {
	return p.Nutrition.Scale(AmountFactor(p.TextualAmount))
}
