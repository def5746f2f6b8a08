// Package csync provides small generic containers guarded by a RWMutex.
//
// They exist for state touched both by caller goroutines and by transport
// goroutines that complete requests in the background, such as the HTTP
// transport's in-flight registry or a test fake's record of issued
// requests.
//
//	inflight := csync.NewMap[string, *handle]()
//	inflight.Set(h.ID(), h)
//	inflight.Range(func(id string, h *handle) bool {
//		h.Cancel()
//		return true
//	})
package csync
