package planning

import (
	"github.com/Maelco1/reset/internal/models"
)

// StepwiseParams extends the rotation parameters with the good-duty unlock ratio.
type StepwiseParams struct {
	AutoAssignmentParams
	NormalThreshold int     `json:"normal_threshold"`
	GoodQuota       int     `json:"good_quota"`
	Skipped         []int64 `json:"skipped"`
}

// ValidateRatio checks the unlock ratio.
func (p StepwiseParams) ValidateRatio() error {
	if p.NormalThreshold < 1 {
		return &ParamError{Message: "Le seuil de gardes normales doit être un entier positif."}
	}
	if p.GoodQuota < 0 {
		return &ParamError{Message: "Le quota de bonnes gardes doit être un entier positif ou nul."}
	}
	return nil
}

// StepOffer is one held proposal of the step-by-step mode.
type StepOffer struct {
	Trigram      string                 `json:"trigram"`
	UserType     models.UserType        `json:"user_type"`
	Pass         int                    `json:"pass"`
	Normal       *models.PlanningChoice `json:"normal,omitempty"`
	Good         *models.PlanningChoice `json:"good,omitempty"`
	GoodUnlocked bool                   `json:"good_unlocked"`
	NormalCount  int                    `json:"normal_count"`
	GoodCount    int                    `json:"good_count"`
	Reason       string                 `json:"reason,omitempty"`
}

// Offered reports whether the step proposes at least one request.
func (o StepOffer) Offered() bool {
	return o.Normal != nil || o.Good != nil
}

// GoodUnlocked applies floor(normalCount / threshold) * quota > goodCount.
func GoodUnlocked(normalCount, goodCount, threshold, quota int) bool {
	if threshold < 1 {
		return false
	}
	return (normalCount/threshold)*quota > goodCount
}

// PlanStepwise builds the held offers of the step-by-step mode. Each practitioner receives at
// most one normal offer per pass and a good offer when the ratio unlocks one. Offers of earlier
// steps count as projected holdings for later ones; the unlock is evaluated before the step's
// own normal offer. Requests listed in p.Skipped are ignored.
func PlanStepwise(roster []RosterEntry, in AutoAssignmentInput, p StepwiseParams) []StepOffer {
	offers := make([]StepOffer, 0)
	if len(roster) == 0 || p.Rotations < 1 || p.NormalThreshold < 1 {
		return offers
	}

	skip := make(map[int64]struct{}, len(p.Skipped))
	for _, id := range p.Skipped {
		skip[id] = struct{}{}
	}

	normalCount := make(map[string]int)
	goodCount := make(map[string]int)
	for _, req := range in.Requests {
		if req.Status != models.StatusValidated || !req.IsActive {
			continue
		}
		trigram := models.NormalizeTrigram(req.Trigram)
		if models.ParseGuardNature(string(req.GuardNature)) == models.NatureGood {
			goodCount[trigram]++
		} else {
			normalCount[trigram]++
		}
	}

	st := newAssignmentState(roster, in)
	for pass := 1; pass <= p.Rotations; pass++ {
		offeredThisPass := 0
		for _, entry := range roster {
			offer := StepOffer{Trigram: entry.Trigram, UserType: entry.UserType, Pass: pass}
			q := st.pending[entry.Trigram]
			if q == nil {
				q = &queues{}
			}

			// the normal held in this same step does not count towards the unlock
			offer.GoodUnlocked = GoodUnlocked(normalCount[entry.Trigram], goodCount[entry.Trigram], p.NormalThreshold, p.GoodQuota)

			normal := st.findNext(entry.Trigram, q.normals, "", skip)
			if normal != nil {
				offer.Normal = copyChoice(normal)
				st.take(entry.Trigram, *offer.Normal)
				normalCount[entry.Trigram]++
			}

			if offer.GoodUnlocked {
				if good := st.findNext(entry.Trigram, q.goods, "", skip); good != nil {
					offer.Good = copyChoice(good)
					st.take(entry.Trigram, *offer.Good)
					goodCount[entry.Trigram]++
				}
			}
			offer.NormalCount = normalCount[entry.Trigram]
			offer.GoodCount = goodCount[entry.Trigram]

			if !offer.Offered() {
				switch {
				case len(q.normals) == 0 && len(q.goods) == 0:
					offer.Reason = ReasonNothingEligible
				case offer.GoodUnlocked:
					offer.Reason = ReasonNoCompatible
				default:
					offer.Reason = ReasonNoNormal
				}
			} else {
				offeredThisPass++
			}
			offers = append(offers, offer)
		}
		if offeredThisPass == 0 {
			break
		}
	}
	return offers
}
