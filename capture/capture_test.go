package capture

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultConstraints(t *testing.T) {
	c := DefaultConstraints()
	want := Constraints{Width: 1280, Height: 720, SampleRate: 16000, BlockSize: 4096}
	if c != want {
		t.Errorf("DefaultConstraints() = %+v, want %+v", c, want)
	}
}

func TestUnsupported(t *testing.T) {
	dev, err := Unsupported.Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Acquire() error = %v, want ErrUnsupported", err)
	}
	if dev != nil {
		t.Error("Acquire() returned a device")
	}
}
