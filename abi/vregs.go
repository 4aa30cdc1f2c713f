package abi

// VRegCounter is the trivial VRegAllocator: a monotonically increasing
// counter shared across classes.
type VRegCounter struct {
	next uint
}

// Alloc returns a fresh virtual register of the class matching ty.
func (v *VRegCounter) Alloc(ty Type) Reg {
	r := VirtualReg(ty.Class(), v.next)
	v.next++
	return r
}

// Count returns how many virtual registers have been allocated.
func (v *VRegCounter) Count() uint { return v.next }
