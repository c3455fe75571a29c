package templates

import (
	"corkboard-backend/internal/application/recommendations"
	"corkboard-backend/internal/domain"
)

// Default is a seed question set.
type Default struct {
	Name   string
	Fields []domain.Field
}

var painPoints = []string{"spreads altos", "ejecución lenta", "soporte lento", "retiros lentos", "plataforma inestable"}
var instruments = []string{"FX", "XAU", "Índices", "Cripto", "Acciones"}

// Defaults returns fresh copies of the IB and Trader seed templates. Both
// carry the questions the recommendation rules read.
func Defaults() []Default {
	return []Default{
		{
			Name: "IB",
			Fields: []domain.Field{
				{ID: "ib-client-type", Label: recommendations.LabelClientType, Type: domain.FieldSelect, Options: []string{"IB", "Copytrader", "Cuenta"}, X: 1, Y: 1, W: 3, H: 2, Order: 0},
				{ID: "ib-volume", Label: recommendations.LabelVolume, Type: domain.FieldCurrency, X: 4, Y: 1, W: 3, H: 2, Order: 1},
				{ID: "ib-budget", Label: recommendations.LabelBudget, Type: domain.FieldCurrency, X: 7, Y: 1, W: 3, H: 2, Order: 2},
				{ID: "ib-pain", Label: recommendations.LabelPainPoints, Type: domain.FieldMultiSelect, Options: append([]string{}, painPoints...), X: 1, Y: 3, W: 4, H: 2, Order: 3},
				{ID: "ib-referrals", Label: "Referred clients", Type: domain.FieldNumber, X: 5, Y: 3, W: 3, H: 2, Order: 4},
				{ID: "ib-notes", Label: "Notes", Type: domain.FieldNote, X: 1, Y: 5, W: 6, H: 3, Order: 5},
			},
		},
		{
			Name: "Trader",
			Fields: []domain.Field{
				{ID: "tr-client-type", Label: recommendations.LabelClientType, Type: domain.FieldSelect, Options: []string{"IB", "Copytrader", "Cuenta"}, X: 1, Y: 1, W: 3, H: 2, Order: 0},
				{ID: "tr-instruments", Label: recommendations.LabelInstruments, Type: domain.FieldMultiSelect, Options: append([]string{}, instruments...), X: 4, Y: 1, W: 3, H: 2, Order: 1},
				{ID: "tr-volume", Label: recommendations.LabelVolume, Type: domain.FieldCurrency, X: 7, Y: 1, W: 3, H: 2, Order: 2},
				{ID: "tr-pain", Label: recommendations.LabelPainPoints, Type: domain.FieldMultiSelect, Options: append([]string{}, painPoints...), X: 1, Y: 3, W: 4, H: 2, Order: 3},
				{ID: "tr-budget", Label: recommendations.LabelBudget, Type: domain.FieldCurrency, X: 5, Y: 3, W: 3, H: 2, Order: 4},
				{ID: "tr-platform", Label: "Current platform", Type: domain.FieldText, X: 8, Y: 3, W: 3, H: 2, Order: 5},
				{ID: "tr-since", Label: "Trading since", Type: domain.FieldDate, X: 1, Y: 5, W: 3, H: 2, Order: 6},
				{ID: "tr-notes", Label: "Notes", Type: domain.FieldNote, X: 4, Y: 5, W: 6, H: 3, Order: 7},
			},
		},
	}
}
