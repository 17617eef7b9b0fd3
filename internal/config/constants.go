package config

const SourceFileExt = ".vela"

// BundleFileExt is the extension of compiled program bundles.
const BundleFileExt = ".vbc"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".vela"}

// AppConfigFileName is the default per-app config file looked up next to
// the program being run.
const AppConfigFileName = "vela.yaml"

// JITLogEnvVar gates native-compilation diagnostics. Any non-empty value
// enables them.
const JITLogEnvVar = "VELA_JIT_LOG"

// Built-in function names
const (
	PrintFuncName   = "print"
	PrintlnFuncName = "println"
	LenFuncName     = "len"
	StrFuncName     = "str"
	TypeOfFuncName  = "typeOf"
	AssertFuncName  = "assert"
)

// Built-in type names
const (
	ListTypeName   = "List"
	MapTypeName    = "Map"
	BytesTypeName  = "Bytes"
	ResultTypeName = "Result"
	TaskTypeName   = "Task"
	BoxTypeName    = "Box"
)
