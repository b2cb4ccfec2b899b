package logging

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestLevelStrings(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestLevelJSON(t *testing.T) {
	var cfg struct {
		Level Level `json:"level"`
	}
	test.That(t, json.Unmarshal([]byte(`{"level":"warn"}`), &cfg), test.ShouldBeNil)
	test.That(t, cfg.Level, test.ShouldEqual, WARN)

	md, err := json.Marshal(cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(md), test.ShouldEqual, `{"level":"warn"}`)

	test.That(t, json.Unmarshal([]byte(`{"level":"nope"}`), &cfg), test.ShouldNotBeNil)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("inferred depth", "width", 4, "height", 2)
	logger.Named("viewer").Infof("listening on %s", "localhost:0")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entries := logs.All()
	test.That(t, entries[0].Message, test.ShouldEqual, "inferred depth")
	test.That(t, entries[0].ContextMap()["width"], test.ShouldEqual, int64(4))
	test.That(t, entries[1].LoggerName, test.ShouldEqual, "viewer")
	test.That(t, logs.FilterMessageSnippet("listening").Len(), test.ShouldEqual, 1)
}

func TestGlobal(t *testing.T) {
	orig := Global()
	defer ReplaceGlobal(orig)

	logger := NewBlankLogger("blank")
	ReplaceGlobal(logger)
	test.That(t, Global(), test.ShouldEqual, logger)
	test.That(t, NewLoggerAtLevel("x", ERROR).Desugar().Core().Enabled(INFO.AsZap()), test.ShouldBeFalse)
}
