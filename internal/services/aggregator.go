package services

import (
	"log"

	"github.com/loopcard/backend/internal/models"
)

// Aggregate folds a set of ledger entries belonging to one owner into a
// stats snapshot. It is deterministic and side-effect free apart from a
// data-quality log line on unknown operation codes. Callers must pre-filter
// to a single card or user; the fold does not check ownership.
//
// Soft-deleted entries are excluded from the financial buckets but still
// count toward TotalAllEntries and the deleted audit counters. Available is
// computed once at the end from the bucket totals, never accumulated inside
// the fold.
func Aggregate(entries []models.LedgerEntry) models.StatsSnapshot {
	var stats models.StatsSnapshot

	for _, e := range entries {
		stats.TotalAllEntries++

		if e.IsDeleted || e.Status == models.EntryStatusDeleted {
			stats.TotalDeletedEntries++
			stats.DeletedAmount += e.Amount
			continue
		}

		switch e.Operation {
		case models.OpDeposit, models.OpBalanceOverride:
			stats.MoneyIn += e.Amount
		case models.OpRefund:
			stats.Refund += e.Amount
		case models.OpApproved:
			stats.Posted += e.Amount
		case models.OpReversed:
			// Informational only: a reversal never decrements Posted.
			stats.Reversed += e.Amount
		case models.OpRejected:
			stats.Rejected += e.Amount
		case models.OpPending:
			stats.Pending += e.Amount
		case models.OpWithdrawal:
			stats.Withdrawal += e.Amount
		default:
			log.Printf("[STATS] data quality: unknown operation %q on entry %s", e.Operation, e.ID)
		}
	}

	stats.ComputeAvailable()
	return stats
}
