package null

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gcl/driver"
)

// TestAllocBuffer tests allocation of each memory type.
func TestAllocBuffer(t *testing.T) {
	tests := []struct {
		name     string
		typ      driver.MemoryType
		size     uint64
		wantHost bool
		wantErr  error
	}{
		{name: "local", typ: driver.MemoryLocal, size: 4096, wantHost: false},
		{name: "remote", typ: driver.MemoryRemote, size: 256, wantHost: true},
		{name: "staging read", typ: driver.MemoryStagingRead, size: 1 << 20, wantHost: true},
		{name: "staging write", typ: driver.MemoryStagingWrite, size: 1 << 20, wantHost: true},
		{name: "zero size", typ: driver.MemoryLocal, size: 0, wantErr: driver.ErrInvalidSize},
	}

	a := New()
	defer a.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := a.AllocBuffer(tt.typ, tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AllocBuffer() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AllocBuffer() error = %v", err)
			}
			if buf.Size() != tt.size {
				t.Errorf("Size() = %d, want %d", buf.Size(), tt.size)
			}
			if buf.Address() == 0 {
				t.Error("Address() = 0, want nonzero")
			}
			if (buf.Host() != nil) != tt.wantHost {
				t.Errorf("Host() != nil is %v, want %v", buf.Host() != nil, tt.wantHost)
			}
		})
	}
}

// TestAddressesDisjoint tests that live buffer address ranges never overlap.
func TestAddressesDisjoint(t *testing.T) {
	a := New()
	defer a.Close()

	type span struct{ lo, hi uint64 }
	var spans []span
	for i := 0; i < 16; i++ {
		buf, err := a.AllocBuffer(driver.MemoryLocal, 5000)
		if err != nil {
			t.Fatalf("AllocBuffer() error = %v", err)
		}
		spans = append(spans, span{buf.Address(), buf.Address() + buf.Size()})
	}

	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi {
				t.Fatalf("ranges overlap: [%#x,%#x) and [%#x,%#x)",
					spans[i].lo, spans[i].hi, spans[j].lo, spans[j].hi)
			}
		}
	}
}

// TestOutOfMemory tests the simulated memory limit.
func TestOutOfMemory(t *testing.T) {
	a := NewWithLimit(1 << 20)
	defer a.Close()

	buf, err := a.AllocBuffer(driver.MemoryLocal, 1<<20)
	if err != nil {
		t.Fatalf("AllocBuffer() error = %v", err)
	}

	if _, err := a.AllocBuffer(driver.MemoryLocal, 1); !errors.Is(err, driver.ErrOutOfMemory) {
		t.Fatalf("AllocBuffer() error = %v, want ErrOutOfMemory", err)
	}

	// Freeing makes room again.
	a.FreeBuffer(buf)
	if _, err := a.AllocBuffer(driver.MemoryLocal, 1<<19); err != nil {
		t.Fatalf("AllocBuffer() after free error = %v", err)
	}

	free, ok := a.GlobalFreeMemory()
	if !ok {
		t.Fatal("GlobalFreeMemory() ok = false")
	}
	if want := uint64(1<<20 - 1<<19); free != want {
		t.Errorf("GlobalFreeMemory() = %d, want %d", free, want)
	}
}

// TestOutOfMemoryHugeRequest tests that a request near the top of the
// address range fails cleanly instead of wrapping the limit check.
func TestOutOfMemoryHugeRequest(t *testing.T) {
	a := New()
	defer a.Close()

	if _, err := a.AllocBuffer(driver.MemoryLocal, 4096); err != nil {
		t.Fatalf("AllocBuffer() error = %v", err)
	}
	if _, err := a.AllocBuffer(driver.MemoryLocal, math.MaxUint64-2048); !errors.Is(err, driver.ErrOutOfMemory) {
		t.Fatalf("AllocBuffer(huge) error = %v, want ErrOutOfMemory", err)
	}
}

// TestStats tests alloc/free accounting.
func TestStats(t *testing.T) {
	a := New()
	defer a.Close()

	b1, _ := a.AllocBuffer(driver.MemoryLocal, 100)
	b2, _ := a.AllocBuffer(driver.MemoryRemote, 200)
	a.FreeBuffer(b1)
	a.FreeBuffer(b1) // double free is ignored

	s := a.Stats()
	if s.Allocs != 2 || s.Frees != 1 || s.Live != 1 || s.UsedBytes != 200 {
		t.Errorf("Stats() = %+v, want 2 allocs, 1 free, 1 live, 200 used", s)
	}
	a.FreeBuffer(b2)
}

// TestCompileProgram tests the stub program path.
func TestCompileProgram(t *testing.T) {
	a := New()
	defer a.Close()

	p, err := a.CompileProgram("fill", "@compute fn main() {}")
	if err != nil {
		t.Fatalf("CompileProgram() error = %v", err)
	}
	if p.Name() != "fill" {
		t.Errorf("Name() = %q, want %q", p.Name(), "fill")
	}
	p.Destroy()

	if _, err := a.CompileProgram("empty", ""); !errors.Is(err, driver.ErrEmptyProgram) {
		t.Errorf("CompileProgram(empty) error = %v, want ErrEmptyProgram", err)
	}
}

// TestClosed tests post-Close behavior.
func TestClosed(t *testing.T) {
	a := New()
	a.Close()

	if _, err := a.AllocBuffer(driver.MemoryLocal, 16); !errors.Is(err, driver.ErrAdapterClosed) {
		t.Errorf("AllocBuffer() error = %v, want ErrAdapterClosed", err)
	}
	if _, err := a.CompileProgram("p", "src"); !errors.Is(err, driver.ErrAdapterClosed) {
		t.Errorf("CompileProgram() error = %v, want ErrAdapterClosed", err)
	}
}
