package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/vela-lang/vela/internal/backend"
	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/config"
	"github.com/vela-lang/vela/internal/native"
)

// BackendType determines the default execution backend.
// Can be set at build time using: -ldflags "-X main.BackendType=vm".
var BackendType = "native"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "aot":
		err = cmdAOT(os.Args[2:])
	case "jit-report":
		err = cmdJITReport(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colorize(os.Stderr, "error: "+err.Error(), "31"))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vela <command> [arguments]

Commands:
  run <file%s> [--backend vm|native] [--app name]   execute a compiled bundle
  disasm <file%s>                                   print the bytecode listing
  aot <file%s> [-o file.go]                         emit the compiled-function package
  jit-report <file%s>                               show per-function compilation status
`, config.BundleFileExt, config.BundleFileExt, config.BundleFileExt, config.BundleFileExt)
}

// colorize wraps text in an ANSI color when the destination stream is a
// terminal, so piped output stays free of escape sequences.
func colorize(dst *os.File, text, code string) string {
	if !isatty.IsTerminal(dst.Fd()) && !isatty.IsCygwinTerminal(dst.Fd()) {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

func loadBundle(path string) (*bytecode.Program, error) {
	if !strings.HasSuffix(path, config.BundleFileExt) {
		return nil, fmt.Errorf("expected a %s bundle, got %s", config.BundleFileExt, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bundle, err := bytecode.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return bundle.Program, nil
}

func cmdRun(args []string) error {
	var path, backendName, appName string
	backendName = BackendType
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--backend":
			if i+1 >= len(args) {
				return fmt.Errorf("--backend requires a value")
			}
			i++
			backendName = args[i]
		case "--app":
			if i+1 >= len(args) {
				return fmt.Errorf("--app requires a value")
			}
			i++
			appName = args[i]
		default:
			if path != "" {
				return fmt.Errorf("unexpected argument: %s", args[i])
			}
			path = args[i]
		}
	}
	if path == "" {
		return fmt.Errorf("run: missing bundle path")
	}

	program, err := loadBundle(path)
	if err != nil {
		return err
	}

	eng := backend.New(backendName, program)

	// App config sits next to the bundle.
	cfgPath := filepath.Join(filepath.Dir(path), config.AppConfigFileName)
	values, err := config.LoadAppConfig(cfgPath)
	if err != nil {
		return err
	}
	if values != nil {
		eng.SetConfig(values)
	}

	return eng.RunApp(appName)
}

func cmdDisasm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("disasm: expected exactly one bundle path")
	}
	program, err := loadBundle(args[0])
	if err != nil {
		return err
	}
	fmt.Print(bytecode.DisassembleProgram(program))
	return nil
}

func cmdAOT(args []string) error {
	var path, out string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			if i+1 >= len(args) {
				return fmt.Errorf("-o requires a value")
			}
			i++
			out = args[i]
		default:
			if path != "" {
				return fmt.Errorf("unexpected argument: %s", args[i])
			}
			path = args[i]
		}
	}
	if path == "" {
		return fmt.Errorf("aot: missing bundle path")
	}

	program, err := loadBundle(path)
	if err != nil {
		return err
	}
	src, err := native.EmitAOTPackage(native.CompileRegistry(program))
	if err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(src)
		return err
	}
	return os.WriteFile(out, src, 0o644)
}

func cmdJITReport(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("jit-report: expected exactly one bundle path")
	}
	program, err := loadBundle(args[0])
	if err != nil {
		return err
	}
	cp := native.CompileRegistry(program)

	compiled := 0
	for _, fn := range program.Functions {
		if _, ok := cp.Compiled(fn.Name); ok {
			compiled++
			fmt.Printf("%s  %s/%d\n", colorize(os.Stdout, "compiled   ", "32"), fn.Name, fn.Arity())
		} else {
			fmt.Printf("%s  %s/%d\n", colorize(os.Stdout, "interpreted", "33"), fn.Name, fn.Arity())
		}
	}
	fmt.Printf("\n%d of %d functions compiled\n", compiled, len(program.Functions))
	return nil
}
