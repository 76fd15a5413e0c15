package tdms

import "github.com/sirupsen/logrus"

// _lg is the package-level logger used by every [File], and by a [Writer]
// constructed without the WithLogger option. Recoverable
// conditions (incomplete segments, invalid UTF-8, unknown versions, index
// mismatches) are logged here rather than returned as errors.
var _lg = logrus.New()

// SetLogger replaces the package-level logger. Every [File] logs through it,
// as does any [Writer] constructed afterwards without the WithLogger option.
func SetLogger(lg *logrus.Logger) {
	_lg = lg
}

func warnIncompleteSegment(lg *logrus.Logger, segmentIndex int, available, declared uint64) {
	lg.WithFields(logrus.Fields{
		"segment":   segmentIndex,
		"available": available,
		"declared":  declared,
	}).Warn("segment truncated before its declared raw data ended")
}

func warnInvalidUTF8(lg *logrus.Logger, path string) {
	lg.WithField("object", path).Warn("invalid UTF-8 in string data, substituted U+FFFD")
}

func warnUnknownVersion(lg *logrus.Logger, version uint32) {
	lg.WithField("version", version).Warn("unrecognised segment version, proceeding with v4713 semantics")
}

func warnIndexMismatch(lg *logrus.Logger, reason string) {
	lg.WithField("reason", reason).Warn("index file does not match data file, discard and regenerate")
}

func warnDimensionForced(lg *logrus.Logger, path string, dimension uint32) {
	lg.WithFields(logrus.Fields{
		"object":    path,
		"dimension": dimension,
	}).Warn("raw data index dimension is not 1, forcing to 1")
}

func logSegmentAppended(lg *logrus.Logger, leadInOffset int64, rawBytes int) {
	lg.WithFields(logrus.Fields{
		"leadInOffset": leadInOffset,
		"rawBytes":     rawBytes,
	}).Debug("appended raw data to previous segment")
}

func logSegmentWritten(lg *logrus.Logger, leadInOffset int64, numObjects, rawBytes int) {
	lg.WithFields(logrus.Fields{
		"leadInOffset": leadInOffset,
		"numObjects":   numObjects,
		"rawBytes":     rawBytes,
	}).Debug("wrote new segment")
}
