package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("windlass.vm")

// The host call convention passes up to 16 values per register bank, in
// x0.., f0.., v0.. order. Anything wider goes through memory.
const argRegsPerBank = 16

// ValKind says which register bank a call value travels through.
type ValKind uint8

const (
	ValX ValKind = iota
	ValF
	ValV
)

// Val is one argument or result of a host-to-guest call.
type Val struct {
	Kind ValKind
	Bits uint64
	Vec  [16]byte
}

func XVal(x uint64) Val    { return Val{Kind: ValX, Bits: x} }
func FVal(bits uint64) Val { return Val{Kind: ValF, Bits: bits} }
func VVal(v [16]byte) Val  { return Val{Kind: ValV, Vec: v} }

// HostFunc handles one call_indirect_host suspension. It reads its
// arguments from and writes its results to the machine state directly,
// using the same register convention as guest calls.
type HostFunc func(*MachineState) error

// Vm couples a machine state, a code image, and a host function table
// into something callable from Go.
type Vm struct {
	state  *MachineState
	interp *Interpreter
	hosts  map[uint8]HostFunc
}

// NewVm builds a fresh machine around a code image.
func NewVm(code []byte, memSize, stackSize uint64) *Vm {
	state := NewMachineState(memSize, stackSize)
	return &Vm{
		state:  state,
		interp: NewInterpreter(state, code),
		hosts:  make(map[uint8]HostFunc),
	}
}

func (vm *Vm) State() *MachineState { return vm.state }

// RegisterHost installs fn behind a call_indirect_host id.
func (vm *Vm) RegisterHost(id uint8, fn HostFunc) {
	vm.hosts[id] = fn
}

// Call runs the function at entry with the given arguments and returns
// results of the requested kinds. Host calls encountered along the way
// are dispatched through the registered table; a trap comes back as the
// error.
func (vm *Vm) Call(entry uint64, args []Val, rets []ValKind) ([]Val, error) {
	if err := vm.setArgs(args); err != nil {
		return nil, err
	}
	vm.state.SetLR(HostReturnAddr)
	vm.interp.SetPC(entry)
	log.Debugf("call: entry=%#x args=%d rets=%d", entry, len(args), len(rets))

	for {
		switch done := vm.interp.Run().(type) {
		case DoneReturnToHost:
			return vm.getRets(rets)
		case DoneCallIndirectHost:
			fn, ok := vm.hosts[done.ID]
			if !ok {
				return nil, fmt.Errorf("vm: no host function registered for id %d", done.ID)
			}
			if err := fn(vm.state); err != nil {
				return nil, fmt.Errorf("vm: host function %d: %w", done.ID, err)
			}
			vm.interp.SetPC(done.Resume)
		case DoneTrap:
			return nil, done
		default:
			return nil, fmt.Errorf("vm: unexpected done reason %T", done)
		}
	}
}

func (vm *Vm) setArgs(args []Val) error {
	var xi, fi, vi int
	for _, arg := range args {
		switch arg.Kind {
		case ValX:
			if xi == argRegsPerBank {
				return fmt.Errorf("vm: too many integer arguments, at most %d fit in registers", argRegsPerBank)
			}
			vm.state.X(XReg(xi)).SetU64(arg.Bits)
			xi++
		case ValF:
			if fi == argRegsPerBank {
				return fmt.Errorf("vm: too many float arguments, at most %d fit in registers", argRegsPerBank)
			}
			vm.state.F(FReg(fi)).SetBits64(arg.Bits)
			fi++
		case ValV:
			if vi == argRegsPerBank {
				return fmt.Errorf("vm: too many vector arguments, at most %d fit in registers", argRegsPerBank)
			}
			*vm.state.V(VReg(vi)) = arg.Vec
			vi++
		default:
			return fmt.Errorf("vm: unknown argument kind %d", arg.Kind)
		}
	}
	return nil
}

func (vm *Vm) getRets(kinds []ValKind) ([]Val, error) {
	out := make([]Val, 0, len(kinds))
	var xi, fi, vi int
	for _, kind := range kinds {
		switch kind {
		case ValX:
			if xi == argRegsPerBank {
				return nil, fmt.Errorf("vm: too many integer results, at most %d fit in registers", argRegsPerBank)
			}
			out = append(out, XVal(vm.state.X(XReg(xi)).U64()))
			xi++
		case ValF:
			if fi == argRegsPerBank {
				return nil, fmt.Errorf("vm: too many float results, at most %d fit in registers", argRegsPerBank)
			}
			out = append(out, FVal(vm.state.F(FReg(fi)).Bits64()))
			fi++
		case ValV:
			if vi == argRegsPerBank {
				return nil, fmt.Errorf("vm: too many vector results, at most %d fit in registers", argRegsPerBank)
			}
			out = append(out, VVal(*vm.state.V(VReg(vi))))
			vi++
		default:
			return nil, fmt.Errorf("vm: unknown result kind %d", kind)
		}
	}
	return out, nil
}
