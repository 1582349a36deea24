package roommanager

import "errors"

// ErrPatternNotAllowedForProducer is returned by CreateRoom when the
// caller both names a pattern (wildcard) room and requests EnablePublish.
var ErrPatternNotAllowedForProducer = errors.New("roommanager: pattern rooms cannot be producers")
