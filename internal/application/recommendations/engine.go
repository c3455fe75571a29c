// Package recommendations turns a client's answers into ranked product suggestions.
package recommendations

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"corkboard-backend/internal/domain"

	"github.com/dustin/go-humanize"
)

// Question labels the rules read. Templates migrated from the Spanish board
// carry the alias labels, which are accepted too.
const (
	LabelPainPoints  = "Pain points"
	LabelVolume      = "Monthly volume (USD)"
	LabelBudget      = "Budget / average ticket (USD)"
	LabelInstruments = "Main instruments"
	LabelClientType  = "Client type"
)

var aliases = map[string][]string{
	LabelVolume:      {"Volumen mensual (USD)"},
	LabelBudget:      {"Presupuesto / Ticket medio (USD)"},
	LabelInstruments: {"Instrumentos principales"},
	LabelClientType:  {"Tipo de cliente (IB / Copytrader / Cuenta)"},
}

const (
	volumeThreshold = 50000
	budgetThreshold = 5000
)

type signals struct {
	answers  domain.Answers
	labelMap map[string]string
}

func (s signals) get(label string) (interface{}, bool) {
	for _, l := range append([]string{label}, aliases[label]...) {
		if id, ok := s.labelMap[strings.TrimSpace(l)]; ok && id != "" {
			v, ok := s.answers[id]
			return v, ok
		}
	}
	return nil, false
}

func (s signals) list(label string) []string {
	v, _ := s.get(label)
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// number follows loose numeric conversion: missing and null are 0, numeric
// strings parse, anything else is not a number (and never passes a threshold).
func (s signals) number(label string) (float64, bool) {
	v, ok := s.get(label)
	if !ok || v == nil {
		return 0, true
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		t := strings.TrimSpace(x)
		if t == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func (s signals) text(label string) string {
	v, _ := s.get(label)
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func mk(title, reason string, score int) domain.Recommendation {
	return domain.Recommendation{ID: fmt.Sprintf("%s-%d", title, score), Title: title, Reason: reason, Score: score}
}

// Compute applies the rule battery to answers, resolving question labels
// through labelMap. A label missing from the map is an absent signal. The
// result is sorted by score descending; ties keep rule order.
func Compute(answers domain.Answers, labelMap map[string]string) []domain.Recommendation {
	s := signals{answers: answers, labelMap: labelMap}
	var recs []domain.Recommendation

	pain := s.list(LabelPainPoints)
	if contains(pain, "spreads altos") {
		recs = append(recs, mk("Plan Spreads Bajos", "Reporta spreads altos", 20))
	}
	if contains(pain, "ejecución lenta") {
		recs = append(recs, mk("Servidor Pro + VPS", "Menor latencia", 18))
	}
	if vol, ok := s.number(LabelVolume); ok && vol >= volumeThreshold {
		recs = append(recs, mk("Cuenta ECN + Rebate", "Volumen ≈ $"+humanize.Commaf(vol), 25))
	}
	if budget, ok := s.number(LabelBudget); ok && budget >= budgetThreshold && s.text(LabelClientType) == "Copytrader" {
		recs = append(recs, mk("Programa Copy Pro", "Copytrader con presupuesto", 22))
	}
	if contains(s.list(LabelInstruments), "XAU") {
		recs = append(recs, mk("Rutas XAU baja latencia", "Opera oro", 12))
	}
	if len(recs) == 0 {
		recs = append(recs, mk("Onboarding + Diagnóstico", "Sin señales fuertes", 8))
	}

	sort.SliceStable(recs, func(a, b int) bool { return recs[a].Score > recs[b].Score })
	return recs
}

// Score sums the weights of recs.
func Score(recs []domain.Recommendation) int {
	total := 0
	for _, r := range recs {
		total += r.Score
	}
	return total
}
