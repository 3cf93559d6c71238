// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gcl/cache"
	"github.com/gogpu/gcl/driver"
)

// shaderCacheCapacity is the per-shard capacity of the compiled SPIR-V
// cache.
const shaderCacheCapacity = 32

// shaderCache caches compiled SPIR-V keyed by WGSL source. Compilation
// dominates program creation cost, so each distinct source is compiled
// once per adapter; module creation stays per-program because module
// handles are destroyed with their program.
type shaderCache struct {
	spirv *cache.Sharded[string, []uint32]
}

func newShaderCache() *shaderCache {
	return &shaderCache{
		spirv: cache.NewSharded[string, []uint32](shaderCacheCapacity, cache.StringHasher),
	}
}

// compile returns the SPIR-V words for source, compiling on a miss.
func (c *shaderCache) compile(source string) ([]uint32, error) {
	return c.spirv.GetOrCreate(source, func() ([]uint32, error) {
		return compileToSPIRV(source)
	})
}

func (c *shaderCache) clear() { c.spirv.Clear() }

// compileToSPIRV compiles WGSL source to SPIR-V words.
func compileToSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("gcl: shader compilation failed: %w", err)
	}
	return spirvWords(spirvBytes), nil
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}

// CompileProgram compiles WGSL source into a program backed by a HAL
// shader module. Compilation results are cached per source.
func (a *Adapter) CompileProgram(name, source string) (driver.Program, error) {
	if source == "" {
		return nil, driver.ErrEmptyProgram
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, driver.ErrAdapterClosed
	}
	a.mu.Unlock()

	spirv, err := a.shaders.compile(source)
	if err != nil {
		return nil, err
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: name,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gcl: shader module creation failed: %w", err)
	}

	return &program{adapter: a, name: name, module: module}, nil
}

// program is a compiled kernel backed by a HAL shader module.
type program struct {
	adapter *Adapter
	name    string
	module  hal.ShaderModule
}

func (p *program) Name() string { return p.name }

// Destroy releases the shader module. Safe to call more than once.
func (p *program) Destroy() {
	if p.module == nil {
		return
	}
	p.adapter.device.DestroyShaderModule(p.module)
	p.module = nil
}

var _ driver.Program = (*program)(nil)
