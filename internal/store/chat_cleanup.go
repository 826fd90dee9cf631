package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
)

const day = 24 * time.Hour

// CleanupResult reports what a cleanup pass removed
type CleanupResult struct {
	DeletedConversations int     `json:"deletedConversations"`
	FreedSpaceMB         float64 `json:"freedSpaceMB"`
	KeptRecent           int     `json:"keptRecent"`
}

// conversationSize is the compact JSON length of one conversation
func conversationSize(c entities.Conversation) int {
	data, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return len(data)
}

// listSize is the compact JSON length of an array holding items of the given
// sizes: brackets plus one comma between neighbours
func listSize(sizes []int) int {
	total := 2
	for _, n := range sizes {
		total += n
	}
	if len(sizes) > 1 {
		total += len(sizes) - 1
	}
	return total
}

func bytesToMB(n int) float64 {
	return math.Round(float64(n)/constants.BytesPerMB*100) / 100
}

// SmartCleanup applies the retention policy. A conversation survives the age
// phase when it is newer than either keepRecentDays or dataRetentionDays.
// If the survivors still exceed maxStorageSize, the least recently updated
// are evicted one at a time until the list fits or is empty.
// Disabled auto-cleanup makes this a no-op.
func (s *ChatStore) SmartCleanup(ctx context.Context) (CleanupResult, error) {
	if s.policy == nil {
		return CleanupResult{}, nil
	}
	policy := s.policy.PrivacySettings()
	if !policy.AutoCleanup {
		return CleanupResult{}, nil
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.now()
	retention := time.Duration(policy.DataRetentionDays) * day
	keepRecent := time.Duration(policy.KeepRecentDays) * day

	var (
		kept      []entities.Conversation
		keptSizes []int
		deleted   int
		freed     int
	)
	for _, c := range s.GetState().Conversations {
		age := now.Sub(c.UpdatedAt)
		size := conversationSize(c)
		if age < keepRecent || age < retention {
			kept = append(kept, c)
			keptSizes = append(keptSizes, size)
			continue
		}
		deleted++
		freed += size
	}

	budget := policy.MaxStorageSizeMB * constants.BytesPerMB
	if total := listSize(keptSizes); total > budget {
		order := make([]int, len(kept))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return kept[order[a]].UpdatedAt.After(kept[order[b]].UpdatedAt)
		})
		sortedKept := make([]entities.Conversation, len(kept))
		sortedSizes := make([]int, len(kept))
		for i, j := range order {
			sortedKept[i] = kept[j]
			sortedSizes[i] = keptSizes[j]
		}
		kept, keptSizes = sortedKept, sortedSizes

		for len(kept) > 0 && total > budget {
			last := len(kept) - 1
			deleted++
			freed += keptSizes[last]
			kept, keptSizes = kept[:last], keptSizes[:last]
			total = listSize(keptSizes)
		}
	}

	if kept == nil {
		kept = []entities.Conversation{}
	}
	s.SetState(func(st *ChatState) {
		st.Conversations = kept
		st.listChanged()
	})
	if err := s.save(ctx); err != nil {
		return CleanupResult{}, err
	}

	keptRecent := 0
	for _, c := range kept {
		if now.Sub(c.UpdatedAt) < keepRecent {
			keptRecent++
		}
	}

	result := CleanupResult{
		DeletedConversations: deleted,
		FreedSpaceMB:         bytesToMB(freed),
		KeptRecent:           keptRecent,
	}
	s.Logger().Info("Smart cleanup completed", logutil.Fields{
		"deleted":    result.DeletedConversations,
		"freed_mb":   result.FreedSpaceMB,
		"keptRecent": result.KeptRecent,
	})
	return result, nil
}

// CleanupOldConversations keeps only conversations updated within daysToKeep.
// It returns the number removed.
func (s *ChatStore) CleanupOldConversations(ctx context.Context, daysToKeep int) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cutoff := s.now().Add(-time.Duration(daysToKeep) * day)
	deleted := 0
	s.SetState(func(st *ChatState) {
		kept := make([]entities.Conversation, 0, len(st.Conversations))
		for _, c := range st.Conversations {
			if c.UpdatedAt.After(cutoff) {
				kept = append(kept, c)
			}
		}
		deleted = len(st.Conversations) - len(kept)
		if deleted > 0 {
			st.Conversations = kept
			st.listChanged()
		}
	})

	if deleted == 0 {
		return 0, nil
	}
	if err := s.save(ctx); err != nil {
		return deleted, err
	}
	s.Logger().Info("Old conversations removed", logutil.Fields{"deleted": deleted, "days": daysToKeep})
	return deleted, nil
}
