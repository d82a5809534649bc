package logging

import (
	"testing"
)

func TestLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	t.Run("default discards", func(t *testing.T) {
		SetLogger(nil)
		// Must not panic and must accept records.
		Logger().Info("into the void")
	})

	t.Run("capture roundtrip", func(t *testing.T) {
		var buf CaptureBuffer
		SetLogger(NewCaptureLogger(&buf))

		Logger().Debug("registered signer", "index", 0)
		if !buf.Contains("registered signer") {
			t.Errorf("captured = %q", buf.String())
		}
		if !buf.Contains("index=0") {
			t.Errorf("captured = %q", buf.String())
		}

		buf.Reset()
		if buf.String() != "" {
			t.Error("Reset did not clear the buffer")
		}
	})

	t.Run("nil restores discard", func(t *testing.T) {
		var buf CaptureBuffer
		SetLogger(NewCaptureLogger(&buf))
		SetLogger(nil)
		Logger().Info("quiet again")
		if buf.String() != "" {
			t.Errorf("captured = %q", buf.String())
		}
	})
}
