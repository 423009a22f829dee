package idx2

import "github.com/sirupsen/logrus"

// Observer receives progress callbacks during Encode/Decode, the Go form
// of the idx2 library's caller-supplied progress hooks (spec.md §6).
// Encode and Decode call it only from the goroutine they run on.
type Observer interface {
	// OnEncodeBrick fires once a brick at (level, brickIndex) has been
	// transformed and its channels registered (not yet necessarily
	// flushed to disk).
	OnEncodeBrick(level int, brickIndex int64)
	// OnFlushChunk fires once per store file written to path, with n the
	// total payload bytes of the chunks in that file (trailer and footer
	// not counted).
	OnFlushChunk(path string, n int)
	// OnTimer fires once, with stage "decode", after Decode has decoded
	// its bricks; Encode does not call it.
	OnTimer(stage string)
}

// logrusObserver is the default Observer, logging each callback as a
// structured entry the way cmd/distri's build reports package progress.
type logrusObserver struct {
	log *logrus.Entry
}

// NewLogrusObserver wraps log (or logrus.StandardLogger() if nil) as an
// Observer.
func NewLogrusObserver(log logrus.FieldLogger) Observer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &logrusObserver{log: log.WithField("component", "idx2")}
}

func (o *logrusObserver) OnEncodeBrick(level int, brickIndex int64) {
	o.log.WithFields(logrus.Fields{"level": level, "brick": brickIndex}).Debug("encoded brick")
}

func (o *logrusObserver) OnFlushChunk(path string, n int) {
	o.log.WithFields(logrus.Fields{"path": path, "bytes": n}).Debug("flushed chunk")
}

func (o *logrusObserver) OnTimer(stage string) {
	o.log.WithField("stage", stage).Info("working")
}
