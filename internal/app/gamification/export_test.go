package gamification

// LockedUsers reports how many per-user locks are live.
func (e *Engine) LockedUsers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.locks)
}
