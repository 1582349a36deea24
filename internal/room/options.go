package room

// Options are a room's resolved, effective settings. They are immutable
// after the room's first use, with the one exception spec.md carves out:
// EnablePublish may be upgraded from false to true on a later acquisition
// (see Room.SetEnablePublish).
type Options struct {
	// EnableFullData maintains the snapshot hash and delivers fullData to
	// callbacks.
	EnableFullData bool
	// HistoryLength caps the history list; 0 disables history.
	HistoryLength int
	// EnablePublish marks the room a producer: exempt from idle reaping,
	// allowed to call Publish.
	EnablePublish bool
	// CleanOnStartUp deletes the existing snapshot/history keys on this
	// producer's first publish.
	CleanOnStartUp bool
}

// DefaultOptions mirrors the defaults spec.md's option table lists.
func DefaultOptions() Options {
	return Options{
		EnableFullData: true,
		HistoryLength:  0,
		EnablePublish:  false,
		CleanOnStartUp: false,
	}
}

// OptionsInput is a partial override of Options: a nil field means "use
// the base value", matching the source's object-spread-over-defaults
// idiom without Go's inability to distinguish a zero value from an
// unset one.
type OptionsInput struct {
	EnableFullData *bool
	HistoryLength  *int
	EnablePublish  *bool
	CleanOnStartUp *bool
}

// ResolveOptions merges in over DefaultOptions.
func ResolveOptions(in OptionsInput) Options {
	return mergeOptions(DefaultOptions(), in)
}

func mergeOptions(base Options, in OptionsInput) Options {
	out := base
	if in.EnableFullData != nil {
		out.EnableFullData = *in.EnableFullData
	}
	if in.HistoryLength != nil {
		out.HistoryLength = *in.HistoryLength
	}
	if in.EnablePublish != nil {
		out.EnablePublish = *in.EnablePublish
	}
	if in.CleanOnStartUp != nil {
		out.CleanOnStartUp = *in.CleanOnStartUp
	}
	return out
}

// BoolPtr and IntPtr are small helpers for building an OptionsInput
// literal without a local variable per field.
func BoolPtr(v bool) *bool { return &v }
func IntPtr(v int) *int    { return &v }
