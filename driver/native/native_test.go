package native

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gcl/driver"
)

func TestUsageFor(t *testing.T) {
	tests := []struct {
		typ  driver.MemoryType
		want gputypes.BufferUsage
	}{
		{driver.MemoryLocal,
			gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
		{driver.MemoryRemote,
			gputypes.BufferUsageStorage | gputypes.BufferUsageMapWrite |
				gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
		{driver.MemoryStagingRead,
			gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
		{driver.MemoryStagingWrite,
			gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := usageFor(tt.typ); got != tt.want {
				t.Errorf("usageFor(%v) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestNewFromHandleRejectsEmptyHandle(t *testing.T) {
	if _, err := NewFromHandle(nil, nil); err == nil {
		t.Fatal("NewFromHandle(nil) succeeded, want error")
	}
	// The null handle carries no hal device or queue.
	if _, err := NewFromHandle(driver.NullDeviceHandle{}, nil); err == nil {
		t.Fatal("NewFromHandle(NullDeviceHandle{}) succeeded, want error")
	}
}

func TestSpirvWords(t *testing.T) {
	// SPIR-V magic number 0x07230203 in little-endian byte order.
	b := []byte{0x03, 0x02, 0x23, 0x07, 0xFF, 0x00, 0x00, 0x00}
	words := spirvWords(b)
	if len(words) != 2 {
		t.Fatalf("len(words) = %d, want 2", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("words[0] = %#x, want 0x07230203", words[0])
	}
	if words[1] != 0xFF {
		t.Errorf("words[1] = %#x, want 0xFF", words[1])
	}
}

func TestSpirvWordsTruncates(t *testing.T) {
	// Trailing bytes short of a full word are dropped.
	if got := spirvWords([]byte{1, 2, 3}); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
