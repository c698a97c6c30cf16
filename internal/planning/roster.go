package planning

import (
	"sort"
	"strings"

	"github.com/Maelco1/reset/internal/models"
)

// Supported algorithms and roster orders.
const (
	AlgorithmSimple = "simple"
	OrderAsc        = "asc"
	OrderDesc       = "desc"
)

// ParamError carries a user-facing validation message.
type ParamError struct {
	Message string
}

func (e *ParamError) Error() string {
	return e.Message
}

// AutoAssignmentParams configures one auto-assignment run.
type AutoAssignmentParams struct {
	Populations  []models.UserType `json:"populations"`
	Order        string            `json:"order"`
	StartTrigram string            `json:"start_trigram"`
	Algorithm    string            `json:"algorithm"`
	Rotations    int               `json:"rotations"`
}

// DefaultParams selects both populations, ascending order and one rotation.
func DefaultParams() AutoAssignmentParams {
	return AutoAssignmentParams{
		Populations: []models.UserType{models.UserTypeDoctor, models.UserTypeSubstitute},
		Order:       OrderAsc,
		Algorithm:   AlgorithmSimple,
		Rotations:   1,
	}
}

// Normalize trims and lower-cases the free-form fields and dedupes populations.
func (p AutoAssignmentParams) Normalize() AutoAssignmentParams {
	seen := make(map[models.UserType]struct{}, len(p.Populations))
	populations := make([]models.UserType, 0, len(p.Populations))
	for _, pop := range p.Populations {
		if strings.TrimSpace(string(pop)) == "" {
			continue
		}
		normalized := models.ParseUserType(string(pop))
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		populations = append(populations, normalized)
	}
	p.Populations = populations
	p.Order = strings.ToLower(strings.TrimSpace(p.Order))
	if p.Order != OrderDesc {
		p.Order = OrderAsc
	}
	p.Algorithm = strings.ToLower(strings.TrimSpace(p.Algorithm))
	if p.Algorithm == "" {
		p.Algorithm = AlgorithmSimple
	}
	p.StartTrigram = models.NormalizeTrigram(p.StartTrigram)
	return p
}

// RosterEntry is one practitioner visited by a rotation.
type RosterEntry struct {
	Trigram  string          `json:"trigram"`
	UserType models.UserType `json:"user_type"`
}

// Validate checks the parameters against the directory and returns the roster to walk.
func (p AutoAssignmentParams) Validate(directory []models.DirectoryEntry) ([]RosterEntry, error) {
	if len(p.Populations) == 0 {
		return nil, &ParamError{Message: "Sélectionnez au moins une population."}
	}
	if p.Algorithm != AlgorithmSimple {
		return nil, &ParamError{Message: "Algorithme inconnu."}
	}
	if p.Rotations < 1 {
		return nil, &ParamError{Message: "Le nombre de rotations doit être un entier positif."}
	}
	if p.StartTrigram == "" {
		return nil, &ParamError{Message: "Sélectionnez un trigramme de départ."}
	}
	roster := BuildRoster(directory, p)
	for _, entry := range roster {
		if entry.Trigram == p.StartTrigram {
			return roster, nil
		}
	}
	return nil, &ParamError{Message: "Le trigramme de départ doit appartenir à la population sélectionnée."}
}

// BuildRoster filters the directory by population, keeps unique trigrams sorted
// case-insensitively, reverses them for descending order and rotates the list so it starts at
// the start trigram when present.
func BuildRoster(directory []models.DirectoryEntry, p AutoAssignmentParams) []RosterEntry {
	allowed := make(map[models.UserType]struct{}, len(p.Populations))
	for _, pop := range p.Populations {
		allowed[pop] = struct{}{}
	}

	seen := make(map[string]struct{})
	roster := make([]RosterEntry, 0, len(directory))
	for _, entry := range directory {
		userType, practitioner := populationOf(entry.Role)
		if !practitioner {
			continue
		}
		if _, ok := allowed[userType]; !ok {
			continue
		}
		trigram := models.NormalizeTrigram(entry.Trigram)
		if trigram == "" {
			trigram = models.NormalizeTrigram(entry.Username)
		}
		if trigram == "" {
			continue
		}
		if _, dup := seen[trigram]; dup {
			continue
		}
		seen[trigram] = struct{}{}
		roster = append(roster, RosterEntry{Trigram: trigram, UserType: userType})
	}

	sort.SliceStable(roster, func(i, j int) bool {
		return strings.ToLower(roster[i].Trigram) < strings.ToLower(roster[j].Trigram)
	})
	if p.Order == OrderDesc {
		for i, j := 0, len(roster)-1; i < j; i, j = i+1, j-1 {
			roster[i], roster[j] = roster[j], roster[i]
		}
	}

	for i, entry := range roster {
		if entry.Trigram == p.StartTrigram {
			return append(roster[i:], roster[:i]...)
		}
	}
	return roster
}

func populationOf(role models.UserRole) (models.UserType, bool) {
	switch role {
	case models.RoleDoctor:
		return models.UserTypeDoctor, true
	case models.RoleSubstitute:
		return models.UserTypeSubstitute, true
	default:
		return "", false
	}
}
