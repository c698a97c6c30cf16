package planning

import (
	"encoding/json"
	"strconv"

	"github.com/jmoiron/sqlx/types"

	"github.com/Maelco1/reset/internal/models"
)

// ConsolidatedIndex renders "i" for primaries and "i.r" for alternatives.
func ConsolidatedIndex(index *int, rank *int) string {
	if index == nil {
		return ""
	}
	out := strconv.Itoa(*index)
	if rank != nil && *rank > 1 {
		out += "." + strconv.Itoa(*rank)
	}
	return out
}

// BuildWorkQueue mirrors the pending active requests into work-queue rows in priority order.
func BuildWorkQueue(requests []models.PlanningChoice) []models.WorkQueueEntry {
	pending := make([]models.PlanningChoice, 0, len(requests))
	for _, req := range requests {
		if req.Status == models.StatusPending && req.IsActive {
			pending = append(pending, req)
		}
	}
	SortByPriority(pending)

	entries := make([]models.WorkQueueEntry, 0, len(pending))
	for _, req := range pending {
		meta, _ := json.Marshal(map[string]string{
			"planning_day_label": req.PlanningDayLabel,
			"slot_type_code":     req.SlotTypeCode,
		})
		var root *int
		if req.ChoiceIndex != nil {
			root = models.IntPtr(*req.ChoiceIndex)
		}
		var priority *int
		if req.ChoiceRank != nil {
			priority = models.IntPtr(*req.ChoiceRank)
		}
		entries = append(entries, models.WorkQueueEntry{
			ChoiceID:          req.ID,
			PlanningReference: req.PlanningReference,
			TourNumber:        req.TourNumber,
			Trigram:           models.NormalizeTrigram(req.Trigram),
			UserID:            req.UserID,
			UserType:          req.UserType,
			Day:               req.Day,
			ColumnNumber:      req.ColumnNumber,
			ColumnLabel:       req.ColumnLabel,
			PlanningDayLabel:  req.PlanningDayLabel,
			SlotTypeCode:      req.SlotTypeCode,
			GuardNature:       models.ParseGuardNature(string(req.GuardNature)),
			ActivityType:      req.ActivityType,
			ChoiceIndex:       req.ChoiceIndex,
			RootChoiceIndex:   root,
			ChoiceRank:        req.ChoiceRank,
			ConsolidatedIndex: ConsolidatedIndex(req.ChoiceIndex, req.ChoiceRank),
			Priority:          priority,
			Status:            req.Status,
			IsActive:          req.IsActive,
			CreatedAt:         req.CreatedAt,
			Metadata:          types.JSONText(meta),
		})
	}
	return entries
}

// Chunk splits entries into batches of at most size rows.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = len(items)
	}
	chunks := make([][]T, 0, (len(items)+size-1)/max(size, 1))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
