package session

import "time"

// RecordChunk appends metadata for a received media chunk to the user's
// session (creating it on first touch), prunes the window, and returns the
// chunk's 1-based index plus the current window size.
func (s *Store) RecordChunk(userID string, chunk ChunkRecord, now time.Time) (int, WindowSize) {
	for {
		sess := s.GetOrCreate(userID, now)
		sess.mu.Lock()
		if sess.ended {
			sess.mu.Unlock()
			continue
		}
		sess.chunkCount++
		chunk.Index = sess.chunkCount
		chunk.Timestamp = now
		sess.chunks = append(sess.chunks, chunk)
		sess.prune(now, s.cfg)
		idx, size := chunk.Index, WindowSize{Objects: len(sess.objects), Activities: len(sess.activities)}
		sess.mu.Unlock()
		return idx, size
	}
}

// RecordObservations appends analyzed objects and activities to the user's
// session and prunes the window. Entries carry their own absolute timestamps;
// pruning happens eagerly on every write, never lazily on read.
func (s *Store) RecordObservations(userID string, objects []ObservedObject, activities []ObservedActivity, now time.Time) WindowSize {
	for {
		sess := s.GetOrCreate(userID, now)
		sess.mu.Lock()
		if sess.ended {
			sess.mu.Unlock()
			continue
		}
		sess.objects = append(sess.objects, objects...)
		sess.activities = append(sess.activities, activities...)
		sess.totalObjects += len(objects)
		sess.totalActivities += len(activities)
		sess.lastActivity = now
		sess.prune(now, s.cfg)
		size := WindowSize{Objects: len(sess.objects), Activities: len(sess.activities)}
		sess.mu.Unlock()
		return size
	}
}

// Window returns a pruned, copied view of the user's memory window. The
// second return is false when no session is live. Window itself does not
// mutate the session; entries past the horizon are filtered from the copy.
func (s *Store) Window(userID string, now time.Time) (View, bool) {
	sess := s.Get(userID)
	if sess == nil {
		return View{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return View{}, false
	}

	cutoff := now.Add(-s.cfg.RetentionHorizon)
	var v View
	for _, o := range sess.objects {
		if !o.Timestamp.Before(cutoff) {
			v.Objects = append(v.Objects, o)
		}
	}
	for _, a := range sess.activities {
		if !a.Timestamp.Before(cutoff) {
			v.Activities = append(v.Activities, a)
		}
	}
	return v, true
}

// prune drops entries older than the retention horizon and enforces the
// per-kind count caps. Caller must hold sess.mu.
func (sess *Session) prune(now time.Time, cfg Config) {
	cutoff := now.Add(-cfg.RetentionHorizon)

	sess.objects = pruneByAge(sess.objects, func(o ObservedObject) time.Time { return o.Timestamp }, cutoff)
	sess.activities = pruneByAge(sess.activities, func(a ObservedActivity) time.Time { return a.Timestamp }, cutoff)
	sess.chunks = pruneByAge(sess.chunks, func(c ChunkRecord) time.Time { return c.Timestamp }, cutoff)

	if cfg.MaxObjects > 0 && len(sess.objects) > cfg.MaxObjects {
		sess.objects = sess.objects[len(sess.objects)-cfg.MaxObjects:]
	}
	if cfg.MaxActivities > 0 && len(sess.activities) > cfg.MaxActivities {
		sess.activities = sess.activities[len(sess.activities)-cfg.MaxActivities:]
	}
	if cfg.MaxChunks > 0 && len(sess.chunks) > cfg.MaxChunks {
		sess.chunks = sess.chunks[len(sess.chunks)-cfg.MaxChunks:]
	}
}

// pruneByAge keeps entries whose timestamp is at or after cutoff. Entries are
// appended in arrival order, so the first young entry marks the keep point.
func pruneByAge[T any](xs []T, ts func(T) time.Time, cutoff time.Time) []T {
	keep := len(xs)
	for i, x := range xs {
		if !ts(x).Before(cutoff) {
			keep = i
			break
		}
	}
	if keep == 0 {
		return xs
	}
	return append(xs[:0], xs[keep:]...)
}
