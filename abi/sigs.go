package abi

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("windlass.abi")

// ---------------------------------------------------------------------------
// Interned signature data
// ---------------------------------------------------------------------------

// SigID identifies an interned signature within its catalog.
type SigID uint32

// SigData records the classification of one interned signature. The ABIArgs
// themselves live in the catalog's shared arena; rets occupy the range
// directly before args (rets are classified first).
type SigData struct {
	// argsEnd and retsEnd are exclusive end offsets into the shared
	// arena. Rets span [previous signature's argsEnd, retsEnd); args span
	// [retsEnd, argsEnd).
	argsEnd uint32
	retsEnd uint32

	sizedStackArgSpace uint32
	sizedStackRetSpace uint32

	// stackRetArg is the index (within args) of the synthetic return-area
	// pointer argument, or -1 when the return values fit registers.
	stackRetArg int

	callConv CallConv
}

// SizedStackArgSpace returns the stack argument space in bytes.
func (d *SigData) SizedStackArgSpace() uint32 { return d.sizedStackArgSpace }

// SizedStackRetSpace returns the stack return space in bytes.
func (d *SigData) SizedStackRetSpace() uint32 { return d.sizedStackRetSpace }

// CallConv returns the signature's convention.
func (d *SigData) CallConv() CallConv { return d.callConv }

// LimitError reports that a signature's sized stack argument or return
// space exceeds the backend's implementation limit.
type LimitError struct {
	Which ArgsOrRets
	Size  uint32
	Limit uint32
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("abi: sized stack %s space of %d bytes exceeds implementation limit of %d",
		e.Which, e.Size, e.Limit)
}

// ---------------------------------------------------------------------------
// SignatureCatalog
// ---------------------------------------------------------------------------

// SignatureCatalog interns signatures and stores their classified argument
// and return locations in a single shared arena.
type SignatureCatalog struct {
	mach     ArgClassifier
	interned map[string]SigID
	abiArgs  []ABIArg
	sigs     []SigData
}

// NewSignatureCatalog builds an empty catalog classifying with mach.
func NewSignatureCatalog(mach ArgClassifier) *SignatureCatalog {
	return &SignatureCatalog{
		mach:     mach,
		interned: make(map[string]SigID),
	}
}

// Intern classifies sig and records it. Interning the same signature twice
// is a caller bug and panics; use Lookup to reuse an existing entry. The
// only recoverable failure is a LimitError.
func (c *SignatureCatalog) Intern(sig *Signature) (SigID, error) {
	key := sig.key()
	if id, ok := c.interned[key]; ok {
		panic(fmt.Sprintf("abi: signature %s interned twice (existing id %d)", sig, id))
	}
	data, err := c.classify(sig)
	if err != nil {
		return 0, err
	}
	id := SigID(len(c.sigs))
	c.sigs = append(c.sigs, data)
	c.interned[key] = id
	return id, nil
}

// Lookup returns the id of a previously interned signature.
func (c *SignatureCatalog) Lookup(sig *Signature) (SigID, bool) {
	id, ok := c.interned[sig.key()]
	return id, ok
}

// classify computes a SigData for sig, pushing its rets and then its args
// into the arena. The ordering is load-bearing: Args and Rets recover their
// slices purely from the recorded end offsets.
func (c *SignatureCatalog) classify(sig *Signature) (SigData, error) {
	for _, r := range sig.Rets {
		if r.Purpose == PurposeStructReturn {
			panic(fmt.Sprintf("abi: explicit struct-return return value not allowed: %s", sig))
		}
	}

	// A struct-return parameter stands in for the return value: the
	// pointer is classified as the sole (pointer-typed) return.
	rets := sig.Rets
	if i := sig.structReturnIndex(); i >= 0 {
		if len(sig.Rets) != 0 {
			panic(fmt.Sprintf("abi: no return values allowed with a struct-return parameter: %s", sig))
		}
		rets = []Param{sig.Params[i]}
	}

	arenaStart := len(c.abiArgs)
	rollback := func() { c.abiArgs = c.abiArgs[:arenaStart] }

	retSpace, _, err := c.mach.ComputeArgLocs(sig.CallConv, rets, ForRets, false, NewArgsAccumulator(&c.abiArgs))
	if err != nil {
		rollback()
		return SigData{}, err
	}
	retsEnd := uint32(len(c.abiArgs))

	if limit := c.mach.StackArgRetSizeLimit(); retSpace > limit {
		rollback()
		return SigData{}, &LimitError{Which: ForRets, Size: retSpace, Limit: limit}
	}

	needRetArea := retSpace > 0
	if needRetArea && sig.structReturnIndex() >= 0 {
		panic(fmt.Sprintf("abi: struct-return pointer cannot itself need a return area: %s", sig))
	}

	argSpace, retAreaIdx, err := c.mach.ComputeArgLocs(sig.CallConv, sig.Params, ForArgs, needRetArea, NewArgsAccumulator(&c.abiArgs))
	if err != nil {
		rollback()
		return SigData{}, err
	}
	argsEnd := uint32(len(c.abiArgs))

	if limit := c.mach.StackArgRetSizeLimit(); argSpace > limit {
		rollback()
		return SigData{}, &LimitError{Which: ForArgs, Size: argSpace, Limit: limit}
	}

	log.Debugf("interned %s: argsEnd=%d retsEnd=%d argSpace=%d retSpace=%d retAreaIdx=%d",
		sig, argsEnd, retsEnd, argSpace, retSpace, retAreaIdx)

	return SigData{
		argsEnd:            argsEnd,
		retsEnd:            retsEnd,
		sizedStackArgSpace: argSpace,
		sizedStackRetSpace: retSpace,
		stackRetArg:        retAreaIdx,
		callConv:           sig.CallConv,
	}, nil
}

// Data returns the interned record for id.
func (c *SignatureCatalog) Data(id SigID) *SigData {
	return &c.sigs[id]
}

// Args returns the classified arguments of id, including any synthetic
// return-area pointer at the end.
func (c *SignatureCatalog) Args(id SigID) []ABIArg {
	d := &c.sigs[id]
	return c.abiArgs[d.retsEnd:d.argsEnd]
}

// Rets returns the classified return values of id.
func (c *SignatureCatalog) Rets(id SigID) []ABIArg {
	d := &c.sigs[id]
	var start uint32
	if id > 0 {
		start = c.sigs[id-1].argsEnd
	}
	return c.abiArgs[start:d.retsEnd]
}

// Arg returns one classified argument.
func (c *SignatureCatalog) Arg(id SigID, idx int) ABIArg {
	return c.Args(id)[idx]
}

// Ret returns one classified return value.
func (c *SignatureCatalog) Ret(id SigID, idx int) ABIArg {
	return c.Rets(id)[idx]
}

// RetAreaPtrArg returns the synthetic return-area pointer argument, if the
// signature carries one.
func (c *SignatureCatalog) RetAreaPtrArg(id SigID) (ABIArg, bool) {
	d := &c.sigs[id]
	if d.stackRetArg < 0 {
		return ABIArg{}, false
	}
	return c.Args(id)[d.stackRetArg], true
}

// NumArgs returns the number of formal arguments, excluding any synthetic
// return-area pointer.
func (c *SignatureCatalog) NumArgs(id SigID) int {
	n := len(c.Args(id))
	if c.sigs[id].stackRetArg >= 0 {
		n--
	}
	return n
}

// NumRets returns the number of return values.
func (c *SignatureCatalog) NumRets(id SigID) int {
	return len(c.Rets(id))
}
