package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Precheck compiles processed WGSL to SPIR-V offline so syntax and type errors surface
// with the shader key before any device object is created.
//
// Parameters:
//   - s: the parsed shader
//
// Returns:
//   - error: the wrapped compiler error, or nil
func Precheck(s Shader) error {
	spirv, err := naga.Compile(s.Source())
	if err != nil {
		return fmt.Errorf("shader %s: precheck failed: %w", s.Key(), err)
	}
	if len(spirv) < 4 || binary.LittleEndian.Uint32(spirv) != spirvMagic {
		return fmt.Errorf("shader %s: precheck produced an invalid SPIR-V module", s.Key())
	}
	return nil
}
