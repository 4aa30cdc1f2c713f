// Windlass CLI - runs and inspects windlass images
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/windlass/image"
	"github.com/chazu/windlass/manifest"
	"github.com/chazu/windlass/vm"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:])
	case "dis":
		err = cmdDis(args[1:])
	case "info":
		err = cmdInfo(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: windlass <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run [image]    Run an image's entry function\n")
	fmt.Fprintf(os.Stderr, "  dis <image>    Disassemble an image's code\n")
	fmt.Fprintf(os.Stderr, "  info <image>   Show image metadata\n")
	fmt.Fprintf(os.Stderr, "\nWithout an image argument, run reads windlass.toml for the path.\n")
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	entry := fs.String("entry", "", "Entry function (default from manifest, then 'main')")
	verbosity := fs.Int("v", -1, "Log verbosity (default from manifest)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return err
	}

	path := m.ImagePath()
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return fmt.Errorf("no image given and no image.path in %s", manifest.Filename)
	}

	if *verbosity < 0 {
		*verbosity = m.Log.Verbosity
	}
	commonlog.Configure(*verbosity, nil)

	img, err := image.ReadFile(path)
	if err != nil {
		return err
	}

	entryName := m.Image.Entry
	if *entry != "" {
		entryName = *entry
	}
	entryPC, ok := img.Func(entryName)
	if !ok {
		return fmt.Errorf("image %s has no function %q", img.Name, entryName)
	}

	memSize := m.VM.MemorySize
	if memSize == 0 {
		memSize = img.MemorySize
	}
	stackSize := m.VM.StackSize
	if stackSize == 0 {
		stackSize = img.StackSize
	}

	machine := vm.NewVm(img.Code, memSize, stackSize)
	registerBuiltins(machine)

	rets, err := machine.Call(entryPC, nil, []vm.ValKind{vm.ValX})
	if err != nil {
		return err
	}
	os.Exit(int(int64(rets[0].Bits)))
	return nil
}

// Builtin host functions available to every image.
const (
	hostPrintInt  = 0 // prints x0 as a signed integer
	hostPrintChar = 1 // prints x0 as a rune
)

func registerBuiltins(machine *vm.Vm) {
	machine.RegisterHost(hostPrintInt, func(m *vm.MachineState) error {
		_, err := fmt.Println(m.X(0).I64())
		return err
	})
	machine.RegisterHost(hostPrintChar, func(m *vm.MachineState) error {
		_, err := fmt.Printf("%c", rune(m.X(0).U32()))
		return err
	})
}

func cmdDis(args []string) error {
	fs := flag.NewFlagSet("dis", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("dis takes exactly one image path")
	}

	img, err := image.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	for _, f := range img.Funcs {
		fmt.Printf("%s @ %#x\n", f.Name, f.Entry)
	}
	fmt.Print(vm.Disassemble(img.Code))
	return nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("info takes exactly one image path")
	}

	img, err := image.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Name:        %s\n", img.Name)
	fmt.Printf("ID:          %s\n", img.ID)
	fmt.Printf("Code:        %d bytes\n", len(img.Code))
	fmt.Printf("Functions:   %d\n", len(img.Funcs))
	for _, f := range img.Funcs {
		fmt.Printf("  %s @ %#x\n", f.Name, f.Entry)
	}
	if img.StackSize != 0 {
		fmt.Printf("Stack:       %d bytes\n", img.StackSize)
	}
	if img.MemorySize != 0 {
		fmt.Printf("Memory:      %d bytes\n", img.MemorySize)
	}
	return nil
}
