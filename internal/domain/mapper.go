package domain

// MapTaskUpdates derives the per-task answers for a survey.
// The result has exactly one entry per active task id.
func MapTaskUpdates(status SiteStatus, toggles map[string]TaskUpdate, activeTasks []Task) map[string]TaskUpdate {
	out := make(map[string]TaskUpdate, len(activeTasks))
	for _, task := range activeTasks {
		switch status {
		case SiteStatusNormal:
			out[task.ID] = TaskUpdate{Status: Productive}
		case SiteStatusClosed:
			out[task.ID] = TaskUpdate{Status: NonProductive}
		default:
			toggle, ok := toggles[task.ID]
			if !ok || toggle.Status != NonProductive {
				out[task.ID] = TaskUpdate{Status: Productive}
				continue
			}
			update := TaskUpdate{Status: NonProductive, DelayReason: toggle.DelayReason}
			if toggle.DelayReason == ReasonOther {
				update.DelayReasonOther = toggle.DelayReasonOther
			}
			out[task.ID] = update
		}
	}
	return out
}
