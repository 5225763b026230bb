package kernel

// SanityCheck returns the tasks that have gone longer than their sanity
// interval without checking in.
func (k *Kernel) SanityCheck() []TaskInfo {
	sr := k.irq.Disable()
	now := k.ticks
	var late []TaskInfo
	for i := range k.tasks {
		t := &k.tasks[i]
		if t.state == TaskFree || t.sanityInterval == 0 {
			continue
		}
		if int32(now-(t.sanityLast+t.sanityInterval)) > 0 {
			late = append(late, t.infoLocked())
		}
	}
	k.irq.Restore(sr)

	for _, ti := range late {
		k.log.Warn().
			Str("task", ti.Name).
			Uint32("last", ti.SanityLast).
			Uint32("interval", ti.SanityInterval).
			Msg("sanity check-in missed")
	}
	return late
}
