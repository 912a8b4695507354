package windowing

import "github.com/petasbytes/go-toolchat/memory"

// Stats summarizes the result of window preparation.
//
// Fields:
//   - Total: estimated tokens for the included messages, system message included.
//   - Budget: the input token budget used (<= 0 means unlimited).
//   - IncludedGroups: number of groups included.
//   - SkippedGroups: sendable groups left out for budget.
//   - OrphanGroups: groups dropped because no provider accepts them.
//   - OverBudgetNewest: true when the newest group alone does not fit.
type Stats struct {
	Total            int
	Budget           int
	IncludedGroups   int
	SkippedGroups    int
	OrphanGroups     int
	OverBudgetNewest bool
}

// PrepareSendWindow returns the messages of msgs (oldest→newest) to send.
//
// Rules:
//   - A leading system message is always kept and its cost charged first.
//   - Orphan groups are dropped.
//   - With budget > 0, whole groups are included newest→oldest while the total
//     stays within budget; scanning stops at the first group that does not fit.
//   - If the newest group does not fit, the window is empty and OverBudgetNewest is set.
//
// The returned slice never aliases msgs.
func PrepareSendWindow(msgs []memory.Message, budget int, c TokenCounter) ([]memory.Message, Stats) {
	stats := Stats{Budget: budget}
	if len(msgs) == 0 {
		return nil, stats
	}

	var system *memory.Message
	rest := msgs
	if msgs[0].Role == memory.RoleSystem {
		system = &msgs[0]
		rest = msgs[1:]
		stats.Total = c.CountMessage(msgs[0])
	}

	groups := make([]Group, 0, len(rest))
	for _, g := range GroupBlocks(rest) {
		if g.Kind == GroupOrphan {
			stats.OrphanGroups++
			continue
		}
		groups = append(groups, g)
	}

	// Walk newest → oldest; keep is the index of the oldest included group.
	keep := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := c.CountGroup(groups[gi], rest)
		if budget > 0 && stats.Total+cost > budget {
			if gi == len(groups)-1 {
				vlogf("newest group over budget", "budget", budget, "cost", cost)
				return nil, Stats{
					Budget:           budget,
					SkippedGroups:    len(groups),
					OrphanGroups:     stats.OrphanGroups,
					OverBudgetNewest: true,
				}
			}
			break
		}
		stats.Total += cost
		keep = gi
	}
	stats.IncludedGroups = len(groups) - keep
	stats.SkippedGroups = keep

	window := make([]memory.Message, 0, len(rest)+1)
	if system != nil {
		window = append(window, *system)
	}
	for _, g := range groups[keep:] {
		window = append(window, rest[g.Start:g.End]...)
	}
	return window, stats
}
