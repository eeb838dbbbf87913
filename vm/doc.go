// Package vm implements the Geck script virtual machine.
//
// This package contains:
//   - Tagged value representation with legacy coercion rules
//   - Bounded data and return stacks
//   - Program image loading and building
//   - Bytecode interpreter
//   - Disassembler
package vm
