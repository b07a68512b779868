package sessionbridge

// RefreshWaiters reports how many callers are blocked on a shared refresh.
func (g *Gateway) RefreshWaiters() int {
	return int(g.refresher.waiting.Load())
}
